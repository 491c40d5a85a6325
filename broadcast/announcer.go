package broadcast

import (
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/tradewell/backoffice-session/storage"
)

// Announcer is the single front door for cross-context signaling.
// Logout announcements go out over two independent backends: the
// broadcast channel and a set-then-clear toggle of the
// session_logout store key. Delivery guarantees differ per platform,
// so peers treat either signal alone as sufficient.
type Announcer struct {
	channel    Channel
	store      storage.Store
	tabID      string
	clearDelay time.Duration
	nowTime    func() time.Time
	log        zerolog.Logger
}

// AnnouncerOption modifies an Announcer.
type AnnouncerOption func(*Announcer)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) AnnouncerOption {
	return func(a *Announcer) {
		a.nowTime = nowFunc
	}
}

// WithClearDelay sets how long the session_logout key stays set
// before it is removed again.
func WithClearDelay(d time.Duration) AnnouncerOption {
	return func(a *Announcer) {
		a.clearDelay = d
	}
}

// NewAnnouncer builds an Announcer tagging outgoing messages with
// tabID. The tab ID is constructed once at context startup and
// injected here; there is no ambient singleton.
func NewAnnouncer(channel Channel, store storage.Store, tabID string, log zerolog.Logger, options ...AnnouncerOption) *Announcer {
	a := &Announcer{
		channel:    channel,
		store:      store,
		tabID:      tabID,
		clearDelay: 250 * time.Millisecond,
		nowTime:    time.Now,
		log:        log.With().Str("component", "announcer").Logger(),
	}
	for _, opt := range options {
		opt(a)
	}
	return a
}

// AnnounceLogout tells every peer context to tear down. msgType must
// be TypeForceLogout or TypeAutoLogout. Both backends fire; failures
// on either path are logged and do not stop the other.
func (a *Announcer) AnnounceLogout(msgType MessageType) {
	now := a.nowTime().UnixMilli()

	if err := a.channel.Publish(Message{Type: msgType, Timestamp: now, TabID: a.tabID}); err != nil {
		a.log.Warn().Err(err).Msg("logout broadcast failed")
	}

	// Storage fallback: toggling the key reaches peers that missed
	// the channel message.
	if err := a.store.Set(storage.KeySessionLogout, strconv.FormatInt(now, 10)); err != nil {
		a.log.Warn().Err(err).Msg("logout storage signal failed")
		return
	}
	time.AfterFunc(a.clearDelay, func() {
		if err := a.store.Delete(storage.KeySessionLogout); err != nil {
			a.log.Warn().Err(err).Msg("logout storage signal cleanup failed")
		}
	})
}

// AnnounceRestored tells peers that this context rebuilt its state
// from the store.
func (a *Announcer) AnnounceRestored() {
	a.publish(TypeContextRestored)
}

// AnnounceLogin tells peers that a fresh login completed in this
// context.
func (a *Announcer) AnnounceLogin() {
	a.publish(TypeLoginCompleted)
}

func (a *Announcer) publish(msgType MessageType) {
	msg := Message{Type: msgType, Timestamp: a.nowTime().UnixMilli(), TabID: a.tabID}
	if err := a.channel.Publish(msg); err != nil {
		a.log.Warn().Err(err).Str("type", string(msgType)).Msg("broadcast failed")
	}
}

// TabID returns the injected per-context identifier.
func (a *Announcer) TabID() string { return a.tabID }
