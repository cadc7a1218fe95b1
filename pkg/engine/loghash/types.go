package loghash

import (
	"github.com/ssargent/cabinetdb/pkg/engine/backend"
)

// IndexEntry represents the location of a key-value pair in the log
type IndexEntry struct {
	Offset    int64  // Byte offset within the file
	Size      uint32 // Size of the record in bytes
	Timestamp uint64 // Record timestamp
}

// RecoveryResult describes what Open found in the data file.
type RecoveryResult struct {
	RecordsValidated int64
	RecordsTruncated int64
	FileSizeBefore   int64
	FileSizeAfter    int64
	DeadRecords      int64
}

// ActiveFile is the data file name inside a directory hash database.
const ActiveFile = "active.data"

// ErrCorruption is reported for unreadable records.
var ErrCorruption = backend.ErrCorrupt
