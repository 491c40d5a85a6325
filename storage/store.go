// Package storage provides the durable key-value store shared by
// every client context of the same user profile. Tokens, timestamps
// and identity snapshots all live here; peers observe each other's
// mutations through store events.
package storage

import (
	apperrors "github.com/tradewell/backoffice-session/internal/errors"
)

// ErrKeyNotFound is returned by Get for absent keys.
var ErrKeyNotFound = apperrors.ErrKeyNotFound

// Event describes a single key mutation. Deleted events carry the
// last known value in OldValue and an empty NewValue.
type Event struct {
	Key      string
	NewValue string
	OldValue string
	Deleted  bool
}

// Store is the durable key-value surface. Values are strings; absent
// keys yield ErrKeyNotFound. Subscribers receive every mutation,
// including mutations performed by peer contexts sharing the store.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error

	// Subscribe registers fn for mutation events. The returned cancel
	// function detaches the subscriber; it is safe to call more than
	// once.
	Subscribe(fn func(Event)) (cancel func())
}
