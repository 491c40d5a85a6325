// Package broadcast carries control messages between client contexts
// of the same user: logout and restoration announcements travel here
// instead of through the server.
package broadcast

// MessageType tags a cross-context control message.
type MessageType string

const (
	// TypeForceLogout is sent when a peer tore the session down
	// (expiry or explicit logout). Receivers tear down immediately
	// without re-running their own expiry evaluation.
	TypeForceLogout MessageType = "FORCE_LOGOUT"

	// TypeAutoLogout is the network layer's variant of TypeForceLogout,
	// emitted when an authenticated call came back 401.
	TypeAutoLogout MessageType = "AUTO_LOGOUT"

	// TypeContextRestored is sent after a context rebuilt its
	// in-memory state from the store, so peers can adopt it without
	// re-deriving it themselves.
	TypeContextRestored MessageType = "CONTEXT_RESTORED"

	// TypeLoginCompleted is sent by the context that finished a fresh
	// login.
	TypeLoginCompleted MessageType = "LOGIN_COMPLETED"
)

// Message is a single in-flight control message. Never persisted.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"` // epoch milliseconds
	TabID     string      `json:"tabId,omitempty"`
}

// IsLogout reports whether the message demands a teardown.
func (m Message) IsLogout() bool {
	return m.Type == TypeForceLogout || m.Type == TypeAutoLogout
}
