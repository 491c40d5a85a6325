package session

import (
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tradewell/backoffice-session/broadcast"
	"github.com/tradewell/backoffice-session/storage"
	"github.com/tradewell/backoffice-session/token"
)

// Navigator redirects the UI to a route. Consumed by teardown to
// land the user on the unauthenticated entry route.
type Navigator interface {
	NavigateTo(route string)
}

// Notifier surfaces a user-visible, dismissible notice.
type Notifier interface {
	Notify(title, description string)
}

// Settings are the validator's tunables, usually derived from
// configuration.
type Settings struct {
	LoginRoute           string
	ShowExpirationNotice bool
	RestoreAnnounceDelay time.Duration

	// RevalidateInterval drives the low-frequency safety-net
	// re-validation. Event triggers (visibility, store events,
	// broadcasts) are the primary mechanism.
	RevalidateInterval time.Duration
}

// Deps holds the validator's collaborators.
type Deps struct {
	Store     storage.Store
	Channel   broadcast.Channel
	Announcer *broadcast.Announcer
	Tokens    *token.Validator
	Policy    *Policy
	Context   *Context
	Tracker   *Tracker
	Navigator Navigator
	Notifier  Notifier
}

// Validator orchestrates the session lifecycle of one client
// context: it decides at each trigger point whether the session is
// alive, restores context for fresh tabs, and performs the idempotent
// teardown when the session ends.
type Validator struct {
	deps     Deps
	settings Settings
	tabID    string
	nowTime  func() time.Time
	log      zerolog.Logger

	mu          sync.Mutex
	state       State
	tearingDown bool

	cancels  []func()
	stopOnce sync.Once
	stopped  chan struct{}
}

// ValidatorOption modifies a Validator.
type ValidatorOption func(*Validator)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ValidatorOption {
	return func(v *Validator) {
		v.nowTime = nowFunc
	}
}

// NewValidator creates a Validator. tabID identifies this client
// context on the broadcast channel; construct it once at context
// startup and inject it here.
func NewValidator(deps Deps, settings Settings, tabID string, log zerolog.Logger, options ...ValidatorOption) (*Validator, error) {
	if deps.Store == nil {
		return nil, errors.New("[NewValidator] Store is required")
	}
	if deps.Channel == nil {
		return nil, errors.New("[NewValidator] Channel is required")
	}
	if deps.Announcer == nil {
		return nil, errors.New("[NewValidator] Announcer is required")
	}
	if deps.Tokens == nil {
		return nil, errors.New("[NewValidator] Tokens is required")
	}
	if deps.Policy == nil {
		return nil, errors.New("[NewValidator] Policy is required")
	}
	if deps.Context == nil {
		return nil, errors.New("[NewValidator] Context is required")
	}
	if deps.Tracker == nil {
		return nil, errors.New("[NewValidator] Tracker is required")
	}
	if deps.Navigator == nil {
		return nil, errors.New("[NewValidator] Navigator is required")
	}

	v := &Validator{
		deps:     deps,
		settings: settings,
		tabID:    tabID,
		nowTime:  time.Now,
		log:      log.With().Str("component", "session-validator").Str("tab_id", tabID).Logger(),
		stopped:  make(chan struct{}),
	}
	for _, opt := range options {
		opt(v)
	}
	return v, nil
}

// Start runs the mount trigger and attaches the event-driven
// triggers: store mutations, broadcast messages, and the periodic
// safety net.
func (v *Validator) Start() {
	cancelStore := v.deps.Store.Subscribe(v.onStoreEvent)
	cancelChannel := v.deps.Channel.Subscribe(v.onBroadcast)
	v.mu.Lock()
	v.cancels = append(v.cancels, cancelStore, cancelChannel)
	v.mu.Unlock()

	if v.settings.RevalidateInterval > 0 {
		go v.revalidateLoop()
	}

	v.mount()
}

// Stop detaches all triggers and the activity tracker.
func (v *Validator) Stop() {
	v.stopOnce.Do(func() {
		close(v.stopped)
	})
	v.mu.Lock()
	cancels := v.cancels
	v.cancels = nil
	v.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	v.deps.Tracker.Stop()
}

// State returns the current lifecycle state.
func (v *Validator) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// mount reconciles persisted tokens with in-memory state at page
// load. Tokens without memory means a fresh tab: validate then
// restore. Memory without tokens means the memory is stale: tear
// down immediately.
func (v *Validator) mount() {
	hasTokens := v.hasStoredAccessToken()
	authenticated := v.deps.Context.IsAuthenticated()

	switch {
	case hasTokens && !authenticated:
		if v.ValidateSession() {
			v.restoreFromPersistent()
		}
	case !hasTokens && authenticated:
		v.log.Warn().Msg("in-memory auth without stored tokens, tearing down")
		v.teardown(ReasonInvalidTokens, teardownOpts{announce: true, msgType: broadcast.TypeForceLogout})
	case hasTokens && authenticated:
		v.ValidateSession()
	}
}

// ValidateSession is the single validation entry point. It returns
// true when the session is alive; any failure runs teardown and
// returns false. Reentrancy-guarded: overlapping triggers cannot
// double-execute teardown.
func (v *Validator) ValidateSession() bool {
	v.mu.Lock()
	if v.tearingDown {
		v.mu.Unlock()
		return false
	}
	v.mu.Unlock()

	if !v.deps.Tokens.TokenSetValid() {
		v.teardown(ReasonInvalidTokens, teardownOpts{
			announce: true,
			msgType:  broadcast.TypeForceLogout,
			notify:   true,
		})
		return false
	}

	verdict := v.deps.Policy.Evaluate(v.nowTime())
	if verdict.Expired {
		v.log.Info().Str("reason", string(verdict.Reason)).Msg("session expired")
		v.teardown(verdict.Reason, teardownOpts{
			announce: true,
			msgType:  broadcast.TypeForceLogout,
			notify:   true,
		})
		return false
	}

	// Alive: extend the inactivity window. StateValid requires
	// in-memory auth too; a fresh tab reaches it through restoration,
	// not through this pass.
	v.UpdateLastActivity()
	if v.deps.Context.IsAuthenticated() {
		v.setState(StateValid)
	}
	return true
}

// IsSessionValid derives validity without side effects, for route
// guards.
func (v *Validator) IsSessionValid() bool {
	if !v.deps.Context.IsAuthenticated() {
		return false
	}
	if !v.deps.Tokens.TokenSetValid() {
		return false
	}
	return !v.deps.Policy.Evaluate(v.nowTime()).Expired
}

// UpdateLastActivity writes the last-activity timestamp unthrottled.
// The throttled path is the Tracker; this one backs successful
// validation passes and explicit calls.
func (v *Validator) UpdateLastActivity() {
	now := strconv.FormatInt(v.nowTime().UnixMilli(), 10)
	if err := v.deps.Store.Set(storage.KeyLastActivity, now); err != nil {
		v.log.Warn().Err(err).Msg("last activity write failed")
	}
}

// Logout is the explicit, user-initiated teardown. The expiry notice
// is suppressed: the user asked for this.
func (v *Validator) Logout() {
	v.teardown(ReasonNone, teardownOpts{
		announce: true,
		msgType:  broadcast.TypeForceLogout,
	})
}

// AutoLogout is the teardown triggered by a 401 from an
// authenticated backend call. The server has already decided; no
// local expiry evaluation runs.
func (v *Validator) AutoLogout() {
	v.teardown(ReasonInvalidTokens, teardownOpts{
		announce: true,
		msgType:  broadcast.TypeAutoLogout,
		notify:   true,
	})
}

// VisibilityChanged re-validates when the context becomes visible
// again, catching expiry or external teardown that happened while
// backgrounded.
func (v *Validator) VisibilityChanged(visible bool) {
	if visible && v.deps.Context.IsAuthenticated() {
		v.ValidateSession()
	}
}

// SessionOpened transitions to valid after a completed login and
// attaches the activity tracker.
func (v *Validator) SessionOpened() {
	v.setState(StateValid)
	v.deps.Tracker.Start()
}

func (v *Validator) onStoreEvent(ev storage.Event) {
	switch ev.Key {
	case storage.KeyAccessToken:
		// A peer removed the critical token key.
		if ev.Deleted && v.deps.Context.IsAuthenticated() {
			v.teardownFromPeer()
		}
	case storage.KeySessionLogout:
		// Fallback logout signal toggled by a peer.
		if !ev.Deleted && ev.NewValue != "" && v.deps.Context.IsAuthenticated() {
			v.teardownFromPeer()
		}
	case storage.KeyLastActivity:
		// Peers keep this fresh; nothing to do locally.
	}
}

func (v *Validator) onBroadcast(msg broadcast.Message) {
	if msg.IsLogout() {
		if v.deps.Context.IsAuthenticated() {
			v.log.Info().Str("type", string(msg.Type)).Str("from", msg.TabID).Msg("peer logout received")
			v.teardownFromPeer()
		}
		return
	}

	switch msg.Type {
	case broadcast.TypeContextRestored, broadcast.TypeLoginCompleted:
		// A peer established state; adopt it if this context is
		// still unauthenticated.
		if !v.deps.Context.IsAuthenticated() && v.hasStoredAccessToken() {
			if v.deps.Context.RestoreFromStore() {
				v.setState(StateValid)
				v.deps.Tracker.Start()
			}
		}
	}
}

// teardownFromPeer tears down without announcing or re-evaluating:
// the peer already decided, and echoing the announcement would only
// bounce between contexts.
func (v *Validator) teardownFromPeer() {
	v.teardown(ReasonInvalidTokens, teardownOpts{})
}

// restoreFromPersistent rebuilds in-memory state from the store for
// a context with valid tokens but no authenticated memory. Returns
// true when restoration occurred. Teardown wins if both race.
func (v *Validator) restoreFromPersistent() bool {
	v.mu.Lock()
	if v.tearingDown {
		v.mu.Unlock()
		return false
	}
	v.mu.Unlock()

	if !v.deps.Context.RestoreFromStore() {
		// Insufficient identity snapshot. Not an error: normal login
		// flow applies.
		return false
	}

	v.mu.Lock()
	if v.tearingDown || v.state == StateTornDown {
		// A teardown signal arrived mid-restoration.
		v.mu.Unlock()
		v.deps.Context.Clear()
		return false
	}
	v.state = StateValid
	v.mu.Unlock()

	v.deps.Tracker.Start()

	// Let the local UI settle before peers react.
	delay := v.settings.RestoreAnnounceDelay
	announcer := v.deps.Announcer
	time.AfterFunc(delay, announcer.AnnounceRestored)

	v.log.Info().Msg("context restored from persistent store")
	return true
}

type teardownOpts struct {
	announce bool
	msgType  broadcast.MessageType
	notify   bool
}

// teardown invalidates all local session state. Idempotent: a second
// call while one is in progress, or after completion against an
// already-unauthenticated context, is a no-op. Never panics outward;
// storage failures are logged and do not prevent the redirect, since
// failing toward logout is the safe direction.
func (v *Validator) teardown(reason Reason, opts teardownOpts) {
	v.mu.Lock()
	if v.tearingDown || v.state == StateTornDown {
		v.mu.Unlock()
		return
	}
	v.tearingDown = true
	v.state = StateInvalid
	v.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			v.log.Error().Interface("panic", r).Msg("panic during teardown")
		}
		v.mu.Lock()
		v.tearingDown = false
		v.state = StateTornDown
		v.mu.Unlock()
	}()

	// Announce before clearing local state so peers hear it even if
	// cleanup fails midway.
	if opts.announce {
		v.deps.Announcer.AnnounceLogout(opts.msgType)
	}

	for _, key := range storage.SessionKeys {
		if err := v.deps.Store.Delete(key); err != nil {
			v.log.Warn().Err(err).Str("key", key).Msg("teardown key removal failed")
		}
	}

	v.deps.Tracker.Stop()
	v.deps.Context.Clear()

	if opts.notify && v.settings.ShowExpirationNotice && v.deps.Notifier != nil {
		v.deps.Notifier.Notify("Session expired", "Your session has expired. Please sign in again.")
	}

	v.deps.Navigator.NavigateTo(v.settings.LoginRoute)
	v.log.Info().Str("reason", string(reason)).Msg("session torn down")
}

func (v *Validator) revalidateLoop() {
	ticker := time.NewTicker(v.settings.RevalidateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-v.stopped:
			return
		case <-ticker.C:
			if v.deps.Context.IsAuthenticated() {
				v.ValidateSession()
			}
		}
	}
}

func (v *Validator) hasStoredAccessToken() bool {
	value, err := v.deps.Store.Get(storage.KeyAccessToken)
	return err == nil && value != ""
}

func (v *Validator) setState(s State) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.state = s
}
