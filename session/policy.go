// Package session implements the client session lifecycle: the
// expiry policy, the activity tracker, the in-memory authenticated
// context, and the orchestrating validator that ties them to the
// store and the broadcast channel.
package session

import (
	"strconv"
	"time"

	"github.com/tradewell/backoffice-session/storage"
)

// Reason explains why a session was judged expired or invalid.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonMissingSessionData Reason = "missing_session_data"
	ReasonMaxSessionDuration Reason = "max_session_duration"
	ReasonInactivityTimeout  Reason = "inactivity_timeout"

	// ReasonInvalidTokens is produced by the orchestrator, not the
	// policy: the token set failed structural validation.
	ReasonInvalidTokens Reason = "invalid_tokens"
)

// Verdict is the ephemeral result of an expiry evaluation.
type Verdict struct {
	Expired bool
	Reason  Reason
}

// Policy computes session validity from the two independent
// timeouts: an absolute ceiling since login and an inactivity window
// since the last recorded interaction.
type Policy struct {
	store              storage.Store
	maxSessionDuration time.Duration
	inactivityTimeout  time.Duration
}

// NewPolicy creates a Policy reading timestamps from the store.
func NewPolicy(store storage.Store, maxSessionDuration, inactivityTimeout time.Duration) *Policy {
	return &Policy{
		store:              store,
		maxSessionDuration: maxSessionDuration,
		inactivityTimeout:  inactivityTimeout,
	}
}

// Evaluate returns the verdict for the stored session at now.
// The absolute-duration check runs before the inactivity check;
// either alone is terminal. Activity never extends the ceiling.
func (p *Policy) Evaluate(now time.Time) Verdict {
	loginTime, ok := p.readMillis(storage.KeyLoginTime)
	if !ok {
		return Verdict{Expired: true, Reason: ReasonMissingSessionData}
	}
	lastActivity, ok := p.readMillis(storage.KeyLastActivity)
	if !ok {
		return Verdict{Expired: true, Reason: ReasonMissingSessionData}
	}

	nowMillis := now.UnixMilli()

	if time.Duration(nowMillis-loginTime)*time.Millisecond > p.maxSessionDuration {
		return Verdict{Expired: true, Reason: ReasonMaxSessionDuration}
	}
	if time.Duration(nowMillis-lastActivity)*time.Millisecond > p.inactivityTimeout {
		return Verdict{Expired: true, Reason: ReasonInactivityTimeout}
	}
	return Verdict{}
}

func (p *Policy) readMillis(key string) (int64, bool) {
	value, err := p.store.Get(key)
	if err != nil {
		return 0, false
	}
	millis, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, false
	}
	return millis, true
}
