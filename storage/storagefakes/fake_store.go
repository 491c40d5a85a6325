// Package storagefakes provides an in-memory Store for testing.
package storagefakes

import (
	"sync"

	apperrors "github.com/tradewell/backoffice-session/internal/errors"
	"github.com/tradewell/backoffice-session/storage"
)

// FakeStore is a mutex-guarded in-memory Store with synchronous
// event dispatch. Write counters and a failure toggle support
// throttling and degraded-storage tests.
type FakeStore struct {
	mu      sync.Mutex
	values  map[string]string
	subs    map[int]func(storage.Event)
	nextSub int

	writeCounts map[string]int
	failWrites  bool
}

// NewFakeStore creates an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		values:      make(map[string]string),
		subs:        make(map[int]func(storage.Event)),
		writeCounts: make(map[string]int),
	}
}

var _ storage.Store = (*FakeStore)(nil)

func (f *FakeStore) Get(key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.values[key]
	if !ok {
		return "", storage.ErrKeyNotFound
	}
	return value, nil
}

func (f *FakeStore) Set(key, value string) error {
	f.mu.Lock()
	if f.failWrites {
		f.mu.Unlock()
		return apperrors.ErrStorageUnavailable
	}
	old, existed := f.values[key]
	f.values[key] = value
	f.writeCounts[key]++
	subs := f.snapshotSubs()
	f.mu.Unlock()

	if !existed || old != value {
		for _, fn := range subs {
			fn(storage.Event{Key: key, NewValue: value, OldValue: old})
		}
	}
	return nil
}

func (f *FakeStore) Delete(key string) error {
	f.mu.Lock()
	if f.failWrites {
		f.mu.Unlock()
		return apperrors.ErrStorageUnavailable
	}
	old, existed := f.values[key]
	delete(f.values, key)
	subs := f.snapshotSubs()
	f.mu.Unlock()

	if existed {
		for _, fn := range subs {
			fn(storage.Event{Key: key, OldValue: old, Deleted: true})
		}
	}
	return nil
}

func (f *FakeStore) Subscribe(fn func(storage.Event)) (cancel func()) {
	f.mu.Lock()
	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

// Seed sets a value without firing events or counting the write.
func (f *FakeStore) Seed(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
}

// Has reports whether key is present.
func (f *FakeStore) Has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.values[key]
	return ok
}

// Keys returns all present keys.
func (f *FakeStore) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.values))
	for k := range f.values {
		keys = append(keys, k)
	}
	return keys
}

// WriteCount returns how many times Set succeeded for key.
func (f *FakeStore) WriteCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeCounts[key]
}

// FailWrites makes subsequent Set/Delete calls return
// ErrStorageUnavailable.
func (f *FakeStore) FailWrites(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrites = fail
}

// snapshotSubs must be called with f.mu held.
func (f *FakeStore) snapshotSubs() []func(storage.Event) {
	subs := make([]func(storage.Event), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	return subs
}
