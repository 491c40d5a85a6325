package session

import (
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tradewell/backoffice-session/storage"
	"golang.org/x/time/rate"
)

// Signal is a user-interaction signal type. The set mirrors the
// document-level events the UI layer listens to in passive mode.
type Signal string

const (
	SignalPointerPress Signal = "mousedown"
	SignalPointerMove  Signal = "mousemove"
	SignalKeyPress     Signal = "keypress"
	SignalScroll       Signal = "scroll"
	SignalTouchStart   Signal = "touchstart"
	SignalClick        Signal = "click"
)

// ActivitySignals is the fixed set of signals counted as activity.
var ActivitySignals = []Signal{
	SignalPointerPress,
	SignalPointerMove,
	SignalKeyPress,
	SignalScroll,
	SignalTouchStart,
	SignalClick,
}

// Tracker throttle-writes the last-activity timestamp on user
// interaction. High-frequency signals (mousemove, scroll) are gated
// twice: a local rate limiter avoids touching the store per burst,
// and the stored timestamp is the authoritative check since peers
// write it too.
type Tracker struct {
	store         storage.Store
	authenticated func() bool
	throttle      time.Duration
	nowTime       func() time.Time
	log           zerolog.Logger

	mu      sync.Mutex
	started bool
	limiter *rate.Limiter
}

// TrackerOption modifies a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerNowTime sets the now time function (primarily for testing)
func WithTrackerNowTime(nowFunc func() time.Time) TrackerOption {
	return func(t *Tracker) {
		t.nowTime = nowFunc
	}
}

// NewTracker creates a stopped Tracker. authenticated gates every
// observation: signals arriving while unauthenticated are dropped.
func NewTracker(store storage.Store, authenticated func() bool, throttle time.Duration, log zerolog.Logger, options ...TrackerOption) *Tracker {
	t := &Tracker{
		store:         store,
		authenticated: authenticated,
		throttle:      throttle,
		nowTime:       time.Now,
		log:           log.With().Str("component", "activity-tracker").Logger(),
	}
	for _, opt := range options {
		opt(t)
	}
	return t
}

// Start attaches the tracker. Idempotent.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.started = true
	t.limiter = rate.NewLimiter(rate.Every(t.throttle), 1)
}

// Stop detaches the tracker so no further signals write to the
// store. Called at teardown; leaking observers across login/logout
// cycles would fire writes into a cleared store.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = false
	t.limiter = nil
}

// Started reports whether the tracker is attached.
func (t *Tracker) Started() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.started
}

// Observe records one interaction signal. Writes are bounded to at
// most one per throttle interval regardless of signal volume.
func (t *Tracker) Observe(sig Signal) {
	t.mu.Lock()
	if !t.started || t.limiter == nil {
		t.mu.Unlock()
		return
	}
	limiter := t.limiter
	t.mu.Unlock()

	if !t.authenticated() {
		return
	}
	if !limiter.Allow() {
		return
	}

	now := t.nowTime().UnixMilli()
	last, err := t.store.Get(storage.KeyLastActivity)
	if err == nil {
		lastMillis, parseErr := strconv.ParseInt(last, 10, 64)
		if parseErr == nil && time.Duration(now-lastMillis)*time.Millisecond <= t.throttle {
			// A peer refreshed the timestamp recently enough.
			return
		}
	}
	if err := t.store.Set(storage.KeyLastActivity, strconv.FormatInt(now, 10)); err != nil {
		t.log.Warn().Err(err).Str("signal", string(sig)).Msg("activity write failed")
	}
}
