// Package bolttree implements the file tree database on bbolt.
package bolttree

import (
	"bytes"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/ssargent/cabinetdb/pkg/engine/backend"
)

var bucketName = []byte("records")

// tryLockTimeout bounds how long Open waits for the file lock in try-lock mode.
const tryLockTimeout = 10 * time.Millisecond

// Store implements backend.Backend using bbolt (embedded B+ tree).
type Store struct {
	db    *bolt.DB
	path  string
	count atomic.Int64
	log   zerolog.Logger
}

// Open creates or opens a bbolt database at opts.Path. Recognised
// parameters: msiz (initial mmap size) and psiz (page size).
func Open(opts backend.Options) (backend.Backend, error) {
	msiz, err := opts.Params.Int("msiz", 0)
	if err != nil {
		return nil, err
	}
	psiz, err := opts.Params.Int("psiz", 0)
	if err != nil {
		return nil, err
	}

	if _, err := os.Stat(opts.Path); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if !opts.Create || opts.ReadOnly {
			return nil, errors.Wrapf(err, "open %s", opts.Path)
		}
	} else if opts.Truncate && !opts.ReadOnly {
		if err := os.Remove(opts.Path); err != nil {
			return nil, err
		}
	}

	bopts := &bolt.Options{
		ReadOnly:        opts.ReadOnly,
		InitialMmapSize: int(msiz),
		PageSize:        int(psiz),
		NoSync:          true,
	}
	if opts.TryLock {
		bopts.Timeout = tryLockTimeout
	}

	db, err := bolt.Open(opts.Path, 0600, bopts)
	if err != nil {
		if errors.Is(err, bolt.ErrTimeout) {
			return nil, errors.Wrapf(backend.ErrBusy, "open %s", opts.Path)
		}
		if errors.Is(err, bolt.ErrInvalid) || errors.Is(err, bolt.ErrChecksum) || errors.Is(err, bolt.ErrVersionMismatch) {
			return nil, errors.Wrapf(backend.ErrCorrupt, "open %s: %v", opts.Path, err)
		}
		return nil, errors.Wrap(err, "opening bolt db")
	}

	s := &Store{db: db, path: opts.Path, log: opts.Logger}
	if !opts.ReadOnly {
		if err := db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(bucketName)
			return err
		}); err != nil {
			_ = db.Close()
			return nil, errors.Wrap(err, "creating bucket")
		}
	}
	if err := db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket(bucketName); b != nil {
			s.count.Store(int64(b.Stats().KeyN))
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// seek reports whether key exists, independent of whether its value is empty.
func seek(c *bolt.Cursor, key []byte) ([]byte, bool) {
	k, v := c.Seek(key)
	if k == nil || !bytes.Equal(k, key) {
		return nil, false
	}
	return v, true
}

func (s *Store) Get(key []byte) ([]byte, bool, error) {
	var (
		val   []byte
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		var v []byte
		if v, found = seek(b.Cursor(), key); found {
			val = append([]byte{}, v...)
		}
		return nil
	})
	return val, found, err
}

func (s *Store) Set(key, value []byte) error {
	var added bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return backend.ErrReadOnly
		}
		_, exists := seek(b.Cursor(), key)
		added = !exists
		return b.Put(key, value)
	})
	if err != nil {
		return mapErr(err)
	}
	if added {
		s.count.Add(1)
	}
	return nil
}

func (s *Store) Delete(key []byte) (bool, error) {
	var found bool
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return backend.ErrReadOnly
		}
		if _, found = seek(b.Cursor(), key); !found {
			return nil
		}
		return b.Delete(key)
	})
	if err != nil {
		return false, mapErr(err)
	}
	if found {
		s.count.Add(-1)
	}
	return found, nil
}

func (s *Store) Locate(pos backend.Position, key []byte) ([]byte, []byte, bool, error) {
	var k, v []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		switch pos {
		case backend.First:
			k, v = c.First()
		case backend.Last:
			k, v = c.Last()
		case backend.AtOrAfter:
			k, v = c.Seek(key)
		case backend.After:
			k, v = c.Seek(key)
			if k != nil && bytes.Equal(k, key) {
				k, v = c.Next()
			}
		case backend.AtOrBefore:
			k, v = c.Seek(key)
			if k == nil {
				k, v = c.Last()
			} else if !bytes.Equal(k, key) {
				k, v = c.Prev()
			}
		case backend.Before:
			k, v = c.Seek(key)
			if k == nil {
				k, v = c.Last()
			} else {
				k, v = c.Prev()
			}
		}
		if k != nil {
			k = append([]byte{}, k...)
			v = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil || k == nil {
		return nil, nil, false, err
	}
	return k, v, true, nil
}

func (s *Store) Scan(fn func(key, value []byte) bool) error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if !fn(k, v) {
				return nil
			}
		}
		return nil
	})
}

func (s *Store) Clear() error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketName); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket(bucketName)
		return err
	})
	if err != nil {
		return mapErr(err)
	}
	s.count.Store(0)
	return nil
}

func (s *Store) Count() (int64, error) { return s.count.Load(), nil }

func (s *Store) Size() (int64, error) {
	var size int64
	err := s.db.View(func(tx *bolt.Tx) error {
		size = tx.Size()
		return nil
	})
	return size, err
}

func (s *Store) Sync(hard bool) error {
	if !hard {
		return nil
	}
	return s.db.Sync()
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ordered() bool { return true }

// CopyTo writes a consistent copy of the database file to dest.
func (s *Store) CopyTo(dest string) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(dest, 0600)
	})
}

func (s *Store) Status() map[string]string {
	st := map[string]string{
		"organization": "tree",
		"pagesize":     strconv.Itoa(s.db.Info().PageSize),
	}
	stats := s.db.Stats()
	st["freepages"] = strconv.Itoa(stats.FreePageN)
	st["txcommits"] = strconv.FormatInt(stats.TxStats.GetWrite(), 10)
	return st
}

func mapErr(err error) error {
	if errors.Is(err, bolt.ErrTxNotWritable) || errors.Is(err, bolt.ErrDatabaseReadOnly) {
		return errors.Wrap(backend.ErrReadOnly, err.Error())
	}
	if errors.Is(err, bolt.ErrKeyRequired) {
		return errors.Wrap(backend.ErrNotSupported, "empty keys")
	}
	return err
}
