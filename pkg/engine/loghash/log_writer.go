package loghash

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ssargent/cabinetdb/pkg/codec"
)

// LogWriterConfig holds configuration for the log writer
type LogWriterConfig struct {
	FilePath      string        // Path to the active data file
	FsyncInterval time.Duration // Background fsync after writes (0 = only on Sync)
	BufferSize    int           // Write buffer size
}

// LogWriter handles append-only writes to the active data file
type LogWriter struct {
	file       *os.File
	writer     *bufio.Writer
	codec      *codec.RecordCodec
	fsyncTimer *time.Timer
	config     LogWriterConfig
	mutex      sync.Mutex
	offset     int64 // Current write offset
}

// NewLogWriter creates a new log writer with the given configuration
func NewLogWriter(config LogWriterConfig) (*LogWriter, error) {
	if err := os.MkdirAll(filepath.Dir(config.FilePath), 0750); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}

	offset, err := file.Seek(0, 2)
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	if config.BufferSize <= 0 {
		config.BufferSize = 64 * 1024
	}
	writer := &LogWriter{
		file:   file,
		writer: bufio.NewWriterSize(file, config.BufferSize),
		codec:  codec.NewRecordCodec(),
		config: config,
		offset: offset,
	}

	if config.FsyncInterval > 0 {
		writer.fsyncTimer = time.AfterFunc(config.FsyncInterval, func() {
			writer.mutex.Lock()
			defer writer.mutex.Unlock()
			_ = writer.sync(true)
		})
	}

	return writer, nil
}

// Put appends a key-value pair to the log file and returns the record offset and size
func (w *LogWriter) Put(key, value []byte) (int64, int, error) {
	data, err := w.codec.Encode(key, value)
	if err != nil {
		return 0, 0, err
	}
	return w.append(data)
}

// PutTombstone appends a deletion marker for key.
func (w *LogWriter) PutTombstone(key []byte) (int64, int, error) {
	data, err := w.codec.EncodeTombstone(key)
	if err != nil {
		return 0, 0, err
	}
	return w.append(data)
}

// append writes data and flushes it to the OS so readers see it immediately.
func (w *LogWriter) append(data []byte) (int64, int, error) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	n, err := w.writer.Write(data)
	if err != nil {
		return 0, 0, errors.Wrap(err, "append record")
	}
	if err := w.writer.Flush(); err != nil {
		return 0, 0, errors.Wrap(err, "flush record")
	}

	recordOffset := w.offset
	w.offset += int64(n)

	if w.fsyncTimer != nil {
		w.fsyncTimer.Reset(w.config.FsyncInterval)
	}

	return recordOffset, n, nil
}

// Sync flushes buffered writes, forcing them to disk when hard is set.
func (w *LogWriter) Sync(hard bool) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.sync(hard)
}

func (w *LogWriter) sync(hard bool) error {
	if err := w.writer.Flush(); err != nil {
		return err
	}
	if !hard {
		return nil
	}
	return w.file.Sync()
}

// Truncate discards the whole log.
func (w *LogWriter) Truncate() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.writer.Reset(w.file)
	if err := w.file.Truncate(0); err != nil {
		return err
	}
	if _, err := w.file.Seek(0, 0); err != nil {
		return err
	}
	w.offset = 0
	return nil
}

// Close closes the log writer and ensures all data is synced
func (w *LogWriter) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.fsyncTimer != nil {
		w.fsyncTimer.Stop()
	}

	if err := w.sync(true); err != nil {
		_ = w.file.Close()
		return err
	}

	return w.file.Close()
}

// Size returns the current size of the log file
func (w *LogWriter) Size() int64 {
	w.mutex.Lock()
	defer w.mutex.Unlock()
	return w.offset
}

// Path returns the file path
func (w *LogWriter) Path() string {
	return w.config.FilePath
}
