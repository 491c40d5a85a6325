package storage

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	apperrors "github.com/tradewell/backoffice-session/internal/errors"
)

const tempPrefix = ".tmp-"

// FileStore is the production Store: one file per key inside a
// profile directory. Peer processes sharing the directory observe
// each other's writes through a filesystem watcher, which is what
// makes the cross-context logout and restoration signals work
// without a server round trip.
type FileStore struct {
	dir     string
	log     zerolog.Logger
	watcher *fsnotify.Watcher

	mu      sync.Mutex
	cache   map[string]string
	subs    map[int]func(Event)
	nextSub int

	closeOnce sync.Once
	done      chan struct{}
}

// NewFileStore opens (creating if needed) the store at dir and starts
// watching it for peer mutations.
func NewFileStore(dir string, log zerolog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "[NewFileStore] create profile dir")
	}

	fs := &FileStore{
		dir:   dir,
		log:   log.With().Str("component", "filestore").Logger(),
		cache: make(map[string]string),
		subs:  make(map[int]func(Event)),
		done:  make(chan struct{}),
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "[NewFileStore] read profile dir")
	}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		value, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		fs.cache[entry.Name()] = string(value)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "[NewFileStore] create watcher")
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, errors.Wrap(err, "[NewFileStore] watch profile dir")
	}
	fs.watcher = watcher

	go fs.watchLoop()
	return fs, nil
}

var _ Store = (*FileStore)(nil)

func (fs *FileStore) Get(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	value, err := os.ReadFile(filepath.Join(fs.dir, key))
	if os.IsNotExist(err) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", errors.Wrapf(apperrors.ErrStorageUnavailable, "[FileStore.Get] %s: %v", key, err)
	}
	return string(value), nil
}

func (fs *FileStore) Set(key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(fs.dir, tempPrefix)
	if err != nil {
		return errors.Wrapf(apperrors.ErrStorageUnavailable, "[FileStore.Set] %s: %v", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return errors.Wrapf(apperrors.ErrStorageUnavailable, "[FileStore.Set] %s: %v", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrapf(apperrors.ErrStorageUnavailable, "[FileStore.Set] %s: %v", key, err)
	}
	if err := os.Rename(tmpName, filepath.Join(fs.dir, key)); err != nil {
		_ = os.Remove(tmpName)
		return errors.Wrapf(apperrors.ErrStorageUnavailable, "[FileStore.Set] %s: %v", key, err)
	}

	fs.mu.Lock()
	old, existed := fs.cache[key]
	fs.cache[key] = value
	subs := fs.snapshotSubs()
	fs.mu.Unlock()

	if !existed || old != value {
		dispatch(subs, Event{Key: key, NewValue: value, OldValue: old})
	}
	return nil
}

func (fs *FileStore) Delete(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(fs.dir, key)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(apperrors.ErrStorageUnavailable, "[FileStore.Delete] %s: %v", key, err)
	}

	fs.mu.Lock()
	old, existed := fs.cache[key]
	delete(fs.cache, key)
	subs := fs.snapshotSubs()
	fs.mu.Unlock()

	if existed {
		dispatch(subs, Event{Key: key, OldValue: old, Deleted: true})
	}
	return nil
}

func (fs *FileStore) Subscribe(fn func(Event)) (cancel func()) {
	fs.mu.Lock()
	id := fs.nextSub
	fs.nextSub++
	fs.subs[id] = fn
	fs.mu.Unlock()

	return func() {
		fs.mu.Lock()
		delete(fs.subs, id)
		fs.mu.Unlock()
	}
}

// Close stops the watcher. Store reads and writes remain usable.
func (fs *FileStore) Close() error {
	var err error
	fs.closeOnce.Do(func() {
		close(fs.done)
		err = fs.watcher.Close()
	})
	return err
}

// watchLoop turns filesystem notifications into store events. Local
// mutations already updated the cache, so they are filtered out here
// and only peer writes reach the subscribers a second way.
func (fs *FileStore) watchLoop() {
	for {
		select {
		case <-fs.done:
			return
		case event, ok := <-fs.watcher.Events:
			if !ok {
				return
			}
			fs.handleFsEvent(event)
		case err, ok := <-fs.watcher.Errors:
			if !ok {
				return
			}
			fs.log.Warn().Err(err).Msg("store watcher error")
		}
	}
}

func (fs *FileStore) handleFsEvent(event fsnotify.Event) {
	key := filepath.Base(event.Name)
	if strings.HasPrefix(key, ".") || validateKey(key) != nil {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Write):
		value, err := os.ReadFile(event.Name)
		if err != nil {
			return
		}
		fs.mu.Lock()
		old, existed := fs.cache[key]
		if existed && old == string(value) {
			fs.mu.Unlock()
			return
		}
		fs.cache[key] = string(value)
		subs := fs.snapshotSubs()
		fs.mu.Unlock()
		dispatch(subs, Event{Key: key, NewValue: string(value), OldValue: old})

	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		fs.mu.Lock()
		old, existed := fs.cache[key]
		if !existed {
			fs.mu.Unlock()
			return
		}
		delete(fs.cache, key)
		subs := fs.snapshotSubs()
		fs.mu.Unlock()
		dispatch(subs, Event{Key: key, OldValue: old, Deleted: true})
	}
}

// snapshotSubs must be called with fs.mu held.
func (fs *FileStore) snapshotSubs() []func(Event) {
	subs := make([]func(Event), 0, len(fs.subs))
	for _, fn := range fs.subs {
		subs = append(subs, fn)
	}
	return subs
}

func dispatch(subs []func(Event), ev Event) {
	for _, fn := range subs {
		fn(ev)
	}
}

func validateKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return errors.Wrapf(apperrors.ErrInvalidKey, "%q", key)
	}
	return nil
}
