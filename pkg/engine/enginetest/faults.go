// Package enginetest injects backend failures into engine databases.
package enginetest

import (
	"sync"
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/ssargent/cabinetdb/pkg/engine"
	"github.com/ssargent/cabinetdb/pkg/engine/backend"
)

// ErrInjected is the failure returned by a faulted operation.
var ErrInjected = errors.New("injected fault")

// Faults decides which backend calls fail. A nil predicate never fails.
type Faults struct {
	mu     sync.Mutex
	set    func(key []byte) bool
	delete func(key []byte) bool
	get    func(key []byte) bool
	err    error
}

// FailSet makes Set fail for matching keys.
func (f *Faults) FailSet(match func(key []byte) bool) *Faults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set = match
	return f
}

// FailDelete makes Delete fail for matching keys.
func (f *Faults) FailDelete(match func(key []byte) bool) *Faults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delete = match
	return f
}

// FailGet makes Get fail for matching keys.
func (f *Faults) FailGet(match func(key []byte) bool) *Faults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.get = match
	return f
}

// WithError replaces the injected error, e.g. with backend.ErrCorrupt.
func (f *Faults) WithError(err error) *Faults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	return f
}

// Key matches one key.
func Key(k string) func([]byte) bool {
	return func(b []byte) bool { return string(b) == k }
}

func (f *Faults) check(pred func(*Faults) func([]byte) bool, key []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p := pred(f); p != nil && p(key) {
		if f.err != nil {
			return errors.Wrap(f.err, ErrInjected.Error())
		}
		return ErrInjected
	}
	return nil
}

// Inject wraps the backend of typ with f until the test ends.
func Inject(t testing.TB, typ engine.Type, f *Faults) {
	t.Helper()
	var inner backend.Factory
	inner = engine.Register(typ, func(opts backend.Options) (backend.Backend, error) {
		b, err := inner(opts)
		if err != nil {
			return nil, err
		}
		return &faulty{Backend: b, f: f}, nil
	})
	t.Cleanup(func() { engine.Register(typ, inner) })
}

type faulty struct {
	backend.Backend
	f *Faults
}

func (b *faulty) Get(key []byte) ([]byte, bool, error) {
	if err := b.f.check(func(f *Faults) func([]byte) bool { return f.get }, key); err != nil {
		return nil, false, err
	}
	return b.Backend.Get(key)
}

func (b *faulty) Set(key, value []byte) error {
	if err := b.f.check(func(f *Faults) func([]byte) bool { return f.set }, key); err != nil {
		return err
	}
	return b.Backend.Set(key, value)
}

func (b *faulty) Delete(key []byte) (bool, error) {
	if err := b.f.check(func(f *Faults) func([]byte) bool { return f.delete }, key); err != nil {
		return false, err
	}
	return b.Backend.Delete(key)
}
