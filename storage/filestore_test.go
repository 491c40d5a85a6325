package storage_test

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	apperrors "github.com/tradewell/backoffice-session/internal/errors"
	"github.com/tradewell/backoffice-session/storage"
)

func newFileStore(t *testing.T, dir string) *storage.FileStore {
	t.Helper()
	fs, err := storage.NewFileStore(dir, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = fs.Close() })
	return fs
}

type eventSink struct {
	mu     sync.Mutex
	events []storage.Event
}

func (s *eventSink) record(ev storage.Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *eventSink) find(key string) (storage.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range s.events {
		if ev.Key == key {
			return ev, true
		}
	}
	return storage.Event{}, false
}

func TestFileStore_RoundTrip(t *testing.T) {
	fs := newFileStore(t, t.TempDir())

	require.NoError(t, fs.Set(storage.KeyAccessToken, "token-value"))
	value, err := fs.Get(storage.KeyAccessToken)
	require.NoError(t, err)
	require.Equal(t, "token-value", value)

	require.NoError(t, fs.Set(storage.KeyAccessToken, "replaced"))
	value, err = fs.Get(storage.KeyAccessToken)
	require.NoError(t, err)
	require.Equal(t, "replaced", value)

	require.NoError(t, fs.Delete(storage.KeyAccessToken))
	_, err = fs.Get(storage.KeyAccessToken)
	require.ErrorIs(t, err, storage.ErrKeyNotFound)
}

func TestFileStore_MissingKey(t *testing.T) {
	fs := newFileStore(t, t.TempDir())

	_, err := fs.Get("never_written")
	require.ErrorIs(t, err, storage.ErrKeyNotFound)

	// Deleting a missing key is not an error.
	require.NoError(t, fs.Delete("never_written"))
}

func TestFileStore_KeyValidation(t *testing.T) {
	fs := newFileStore(t, t.TempDir())

	for _, key := range []string{"", "a/b", `a\b`, "../escape"} {
		require.ErrorIs(t, fs.Set(key, "x"), apperrors.ErrInvalidKey)
		_, err := fs.Get(key)
		require.ErrorIs(t, err, apperrors.ErrInvalidKey)
		require.ErrorIs(t, fs.Delete(key), apperrors.ErrInvalidKey)
	}
}

func TestFileStore_LoadsExistingState(t *testing.T) {
	dir := t.TempDir()
	writer := newFileStore(t, dir)
	require.NoError(t, writer.Set(storage.KeyLanguage, "es"))
	require.NoError(t, writer.Close())

	// A new store over the same directory sees what the old one wrote,
	// the way a reopened profile keeps its persisted session.
	reader := newFileStore(t, dir)
	value, err := reader.Get(storage.KeyLanguage)
	require.NoError(t, err)
	require.Equal(t, "es", value)
}

func TestFileStore_LocalEvents(t *testing.T) {
	fs := newFileStore(t, t.TempDir())
	sink := &eventSink{}
	cancel := fs.Subscribe(sink.record)
	defer cancel()

	require.NoError(t, fs.Set(storage.KeySessionLogout, "1700000000000"))
	ev, ok := sink.find(storage.KeySessionLogout)
	require.True(t, ok)
	require.Equal(t, "1700000000000", ev.NewValue)
	require.False(t, ev.Deleted)

	require.NoError(t, fs.Delete(storage.KeySessionLogout))
	sink.mu.Lock()
	last := sink.events[len(sink.events)-1]
	sink.mu.Unlock()
	require.Equal(t, storage.KeySessionLogout, last.Key)
	require.True(t, last.Deleted)
	require.Equal(t, "1700000000000", last.OldValue)
}

func TestFileStore_PeerEvents(t *testing.T) {
	dir := t.TempDir()
	local := newFileStore(t, dir)
	peer := newFileStore(t, dir)

	sink := &eventSink{}
	cancel := local.Subscribe(sink.record)
	defer cancel()

	// A write by the peer process surfaces as an event locally.
	require.NoError(t, peer.Set(storage.KeyAccessToken, "peer-token"))
	require.Eventually(t, func() bool {
		ev, ok := sink.find(storage.KeyAccessToken)
		return ok && ev.NewValue == "peer-token" && !ev.Deleted
	}, 2*time.Second, 10*time.Millisecond)

	value, err := local.Get(storage.KeyAccessToken)
	require.NoError(t, err)
	require.Equal(t, "peer-token", value)

	// Peer deletions surface too.
	require.NoError(t, peer.Delete(storage.KeyAccessToken))
	require.Eventually(t, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		for _, ev := range sink.events {
			if ev.Key == storage.KeyAccessToken && ev.Deleted {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFileStore_OwnWritesNotDoubled(t *testing.T) {
	fs := newFileStore(t, t.TempDir())
	sink := &eventSink{}
	cancel := fs.Subscribe(sink.record)
	defer cancel()

	require.NoError(t, fs.Set(storage.KeyUserID, "user-1"))

	// Give the watcher time to observe our own rename; the cache check
	// must swallow it.
	time.Sleep(200 * time.Millisecond)
	sink.mu.Lock()
	count := 0
	for _, ev := range sink.events {
		if ev.Key == storage.KeyUserID {
			count++
		}
	}
	sink.mu.Unlock()
	require.Equal(t, 1, count)
}

func TestFileStore_SessionKeysCoverIdentitySnapshot(t *testing.T) {
	// Teardown relies on this list being exhaustive. Spot-check the
	// critical members and the deliberate exclusions.
	listed := map[string]bool{}
	for _, key := range storage.SessionKeys {
		listed[key] = true
	}
	for _, key := range []string{
		storage.KeyAccessToken,
		storage.KeyRefreshToken,
		storage.KeyIDToken,
		storage.KeyJWT,
		storage.KeyLoginTime,
		storage.KeyLastActivity,
		storage.KeyUserID,
		storage.KeyUserEmail,
		storage.KeyPartitionKey,
		storage.KeyAvailableOrgs,
	} {
		require.True(t, listed[key], "key %q must be torn down", key)
	}
	require.False(t, listed[storage.KeyLanguage])
	require.False(t, listed[storage.KeySessionLogout])
}
