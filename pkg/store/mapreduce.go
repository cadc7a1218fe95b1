package store

import (
	"github.com/ssargent/cabinetdb/pkg/engine"
)

// RunMapReduce runs a map-reduce pass over every record. Most callers want
// the mapreduce package, which wraps this with typed callbacks.
func (db *DB) RunMapReduce(mr *engine.MapReduce) error {
	return db.do("map reduce", func(s *engine.Session) bool { return s.MapReduce(mr) })
}
