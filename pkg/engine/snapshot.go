package engine

import (
	"bufio"
	"io"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/ssargent/cabinetdb/pkg/codec"
	"github.com/ssargent/cabinetdb/pkg/engine/backend"
)

// snapshotMagic opens every snapshot file.
const snapshotMagic = "KCSNAP01"

// DumpSnapshot writes every record to the file at dest.
func (s *Session) DumpSnapshot(dest string) bool {
	s.reset()
	if !s.lockExclusive(false) {
		return false
	}
	defer s.db.mu.Unlock()

	n, err := s.db.dump(dest)
	if err != nil {
		s.failErr(err)
		return false
	}
	s.db.log.Info().Str("dest", dest).Int64("records", n).Msg("snapshot dumped")
	return true
}

func (db *DB) dump(dest string) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), filepath.Base(dest)+".tmp-*")
	if err != nil {
		return 0, errors.Wrap(err, "creating snapshot")
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	w := bufio.NewWriter(tmp)
	if _, err := w.WriteString(snapshotMagic); err != nil {
		return 0, err
	}

	rc := codec.NewRecordCodec()
	var (
		n       int64
		failure error
	)
	err = db.be.Scan(func(k, v []byte) bool {
		buf, err := rc.Encode(k, v)
		if err == nil {
			_, err = w.Write(buf)
		}
		if err != nil {
			failure = err
			return false
		}
		n++
		return true
	})
	if err == nil {
		err = failure
	}
	if err != nil {
		return 0, errors.Wrap(err, "writing snapshot")
	}
	if err := w.Flush(); err != nil {
		return 0, err
	}
	if err := tmp.Sync(); err != nil {
		return 0, err
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	return n, os.Rename(tmp.Name(), dest)
}

// LoadSnapshot stores every record of the snapshot file at src. Existing
// records not in the snapshot are kept.
func (s *Session) LoadSnapshot(src string) bool {
	s.reset()
	if !s.lockExclusive(true) {
		return false
	}
	defer s.db.mu.Unlock()

	n, err := s.db.load(src)
	if err != nil {
		s.failErr(err)
		return false
	}
	s.db.log.Info().Str("src", src).Int64("records", n).Msg("snapshot loaded")
	return s.synced()
}

func (db *DB) load(src string) (int64, error) {
	f, err := os.Open(src)
	if err != nil {
		return 0, errors.Wrap(err, "opening snapshot")
	}
	defer f.Close()

	magic := make([]byte, len(snapshotMagic))
	if _, err := io.ReadFull(f, magic); err != nil || string(magic) != snapshotMagic {
		return 0, errors.Wrap(backend.ErrCorrupt, "not a snapshot file")
	}

	sr := codec.NewStreamReader(f, int64(len(snapshotMagic)))
	var n int64
	for {
		rec, err := sr.Next()
		if err == io.EOF {
			return n, nil
		}
		if errors.Is(err, codec.ErrShortRecord) || errors.Is(err, codec.ErrChecksum) {
			return n, errors.Wrapf(backend.ErrCorrupt, "snapshot: %v", err)
		}
		if err != nil {
			return n, err
		}
		old, found, err := db.be.Get(rec.Key)
		if err != nil {
			return n, err
		}
		db.journal(rec.Key, old, found)
		if err := db.be.Set(rec.Key, rec.Value); err != nil {
			return n, err
		}
		n++
	}
}
