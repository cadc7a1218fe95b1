// Package mapreduce runs Mapper and Reducer pairs over a store. Intermediate
// records are grouped by key in a temporary tree database that is removed
// when the job ends.
package mapreduce

import (
	"iter"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"

	"github.com/ssargent/cabinetdb/pkg/engine"
	"github.com/ssargent/cabinetdb/pkg/log"
	"github.com/ssargent/cabinetdb/pkg/store"
)

var (
	// ErrValuesConsumed is reported by Values.Err when values are read
	// again after the sequence was used up.
	ErrValuesConsumed = errors.New("mapreduce: values already consumed")
	// ErrCollect is returned by Collector.Collect when the temporary store
	// rejects a record.
	ErrCollect = errors.New("mapreduce: could not store intermediate record")
)

// Collector receives the intermediate records of a mapper.
type Collector interface {
	Collect(key, value []byte) error
}

// Mapper is called once per record. The slices are only valid during the
// call.
type Mapper interface {
	Map(key, value []byte, c Collector) error
}

// Reducer is called once per distinct intermediate key with every value
// collected for it.
type Reducer interface {
	Reduce(key []byte, values *Values) error
}

// MapperFunc adapts a function to Mapper.
type MapperFunc func(key, value []byte, c Collector) error

func (f MapperFunc) Map(key, value []byte, c Collector) error { return f(key, value, c) }

// ReducerFunc adapts a function to Reducer.
type ReducerFunc func(key []byte, values *Values) error

func (f ReducerFunc) Reduce(key []byte, values *Values) error { return f(key, values) }

type collector engine.Emitter

func (c collector) Collect(key, value []byte) error {
	if !c(key, value) {
		return errors.Wrapf(ErrCollect, "key %q", key)
	}
	return nil
}

// Values is the forward-only sequence of values for one key. It can be read
// once, either with Next and Value or with All. Value slices are only valid
// during the Reduce call.
type Values struct {
	it      *engine.ValueIterator
	cur     []byte
	started bool
	done    bool
	err     error
}

// Next advances to the next value. Calling it again after it returned false
// sets ErrValuesConsumed.
func (v *Values) Next() bool {
	v.started = true
	if v.done {
		if v.err == nil {
			v.err = ErrValuesConsumed
		}
		return false
	}
	b, ok := v.it.Next()
	if !ok {
		v.done, v.cur = true, nil
		if err := v.it.Err(); err != nil {
			v.err = err
		}
		return false
	}
	v.cur = b
	return true
}

// Value returns the current value.
func (v *Values) Value() []byte { return v.cur }

// Err returns the error that ended the sequence, if any.
func (v *Values) Err() error { return v.err }

// All returns the values as an iterator. A sequence already started by Next
// or a previous All yields nothing and sets ErrValuesConsumed.
func (v *Values) All() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		if v.started {
			if v.err == nil {
				v.err = ErrValuesConsumed
			}
			return
		}
		for v.Next() {
			if !yield(v.cur) {
				return
			}
		}
	}
}

// Options tune a Job.
type Options struct {
	// UseLocks holds the store exclusively while mapping. Without it other
	// writers may change records during the map phase.
	UseLocks bool
	// CompressTemporaryStore compresses intermediate records with snappy.
	CompressTemporaryStore bool
	// TemporaryDir holds the temporary store; empty means os.TempDir.
	TemporaryDir string
	// Threads above one reduce keys concurrently, in no particular order.
	Threads int
}

// DefaultOptions locks the store and compresses intermediate records.
func DefaultOptions() Options {
	return Options{UseLocks: true, CompressTemporaryStore: true}
}

// Job is a single map-reduce run.
type Job struct {
	Mapper  Mapper
	Reducer Reducer
	Options Options
	// Logger receives mapper and reducer failures; it defaults to
	// log.MapReduce.
	Logger *zerolog.Logger
}

// Execute runs the job over db. A mapper or reducer failure is logged and
// stops the job, which then fails with a *store.Error of category
// LogicalInconsistency.
func (j *Job) Execute(db *store.DB) error {
	logger := log.MapReduce
	if j.Logger != nil {
		logger = *j.Logger
	}
	logger = logger.With().Str("job", ksuid.New().String()).Logger()

	mr := &engine.MapReduce{
		TempDir: j.Options.TemporaryDir,
		Options: engine.MapReduceOptions{
			NoLock:     !j.Options.UseLocks,
			NoCompress: !j.Options.CompressTemporaryStore,
			Threads:    j.Options.Threads,
		},
	}
	if j.Mapper != nil {
		mr.Map = func(key, value []byte, emit engine.Emitter) bool {
			return log.Guard(logger, "mapper failed", func() error {
				return j.Mapper.Map(key, value, collector(emit))
			})
		}
	}
	if j.Reducer != nil {
		mr.Reduce = func(key []byte, it *engine.ValueIterator) bool {
			return log.Guard(logger, "reducer failed", func() error {
				values := &Values{it: it}
				if err := j.Reducer.Reduce(key, values); err != nil {
					return errors.Wrapf(err, "key %q", key)
				}
				if err := it.Err(); err != nil {
					return errors.Wrapf(err, "key %q", key)
				}
				return nil
			})
		}
	}

	logger.Debug().Int("threads", j.Options.Threads).Msg("map-reduce started")
	if err := db.RunMapReduce(mr); err != nil {
		return err
	}
	logger.Debug().Msg("map-reduce finished")
	return nil
}
