package session_test

import (
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/tradewell/backoffice-session/broadcast"
	"github.com/tradewell/backoffice-session/session"
	"github.com/tradewell/backoffice-session/storage"
	"github.com/tradewell/backoffice-session/storage/storagefakes"
	"github.com/tradewell/backoffice-session/token"
)

type fakeNavigator struct {
	count  int32
	mu     sync.Mutex
	routes []string
}

func (n *fakeNavigator) NavigateTo(route string) {
	atomic.AddInt32(&n.count, 1)
	n.mu.Lock()
	n.routes = append(n.routes, route)
	n.mu.Unlock()
}

func (n *fakeNavigator) Count() int { return int(atomic.LoadInt32(&n.count)) }

type fakeNotifier struct {
	count int32
}

func (n *fakeNotifier) Notify(title, description string) {
	atomic.AddInt32(&n.count, 1)
}

func (n *fakeNotifier) Count() int { return int(atomic.LoadInt32(&n.count)) }

type tabFixture struct {
	store     *storagefakes.FakeStore
	hub       *broadcast.Hub
	ctx       *session.Context
	tracker   *session.Tracker
	validator *session.Validator
	navigator *fakeNavigator
	notifier  *fakeNotifier
}

// newTab builds one client context over the shared store and hub,
// the way separate browser tabs share storage and the broadcast
// channel.
func newTab(t *testing.T, store *storagefakes.FakeStore, hub *broadcast.Hub, tabID string, nowFunc func() time.Time) *tabFixture {
	t.Helper()
	return newTabWithSettings(t, store, hub, tabID, nowFunc, session.Settings{
		LoginRoute:           "/",
		ShowExpirationNotice: true,
		RestoreAnnounceDelay: 5 * time.Millisecond,
	})
}

func newTabWithSettings(t *testing.T, store *storagefakes.FakeStore, hub *broadcast.Hub, tabID string, nowFunc func() time.Time, settings session.Settings) *tabFixture {
	t.Helper()

	log := zerolog.Nop()
	sessionCtx := session.NewContext(store, log)
	tracker := session.NewTracker(store, sessionCtx.IsAuthenticated, 30*time.Second, log, session.WithTrackerNowTime(nowFunc))
	announcer := broadcast.NewAnnouncer(hub, store, tabID, log,
		broadcast.WithNowTime(nowFunc),
		broadcast.WithClearDelay(5*time.Millisecond),
	)
	navigator := &fakeNavigator{}
	notifier := &fakeNotifier{}

	validator, err := session.NewValidator(
		session.Deps{
			Store:     store,
			Channel:   hub,
			Announcer: announcer,
			Tokens:    token.NewValidator(store, log, token.WithNowTime(nowFunc)),
			Policy:    session.NewPolicy(store, testMaxSessionDuration, testInactivityTimeout),
			Context:   sessionCtx,
			Tracker:   tracker,
			Navigator: navigator,
			Notifier:  notifier,
		},
		settings,
		tabID,
		log,
		session.WithNowTime(nowFunc),
	)
	require.NoError(t, err)

	return &tabFixture{
		store:     store,
		hub:       hub,
		ctx:       sessionCtx,
		tracker:   tracker,
		validator: validator,
		navigator: navigator,
		notifier:  notifier,
	}
}

func validIDToken(t *testing.T, now time.Time) string {
	t.Helper()
	raw, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.MapClaims{
		"sub":   "user-1",
		"email": "jane@example.com",
		"exp":   now.Add(48 * time.Hour).Unix(),
	}).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return raw
}

// seedLoggedInSession writes the full persisted record a successful
// login leaves behind.
func seedLoggedInSession(t *testing.T, store *storagefakes.FakeStore, now time.Time) {
	t.Helper()
	store.Seed(storage.KeyAccessToken, "access-token-value")
	store.Seed(storage.KeyRefreshToken, "refresh-token-value")
	store.Seed(storage.KeyIDToken, validIDToken(t, now))
	store.Seed(storage.KeyJWT, validIDToken(t, now))
	store.Seed(storage.KeyLoginTime, strconv.FormatInt(now.UnixMilli(), 10))
	store.Seed(storage.KeyLastActivity, strconv.FormatInt(now.UnixMilli(), 10))
	store.Seed(storage.KeyUserID, "user-1")
	store.Seed(storage.KeyUserName, "Jane")
	store.Seed(storage.KeyUserLastname, "Doe")
	store.Seed(storage.KeyUserEmail, "jane@example.com")
	store.Seed(storage.KeyPartitionKey, "pk-1")
	store.Seed(storage.KeyAvailableOrgs, `[{"id":"org-1","organization":"Acme Grain","partitionKey":"pk-1"}]`)
	store.Seed(storage.KeyCurrentOrgID, "org-1")
}

func TestValidator_ValidateSession(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("valid session touches last activity", func(t *testing.T) {
		now := base
		store := storagefakes.NewFakeStore()
		seedLoggedInSession(t, store, now)
		tab := newTab(t, store, broadcast.NewHub(broadcast.DefaultChannelName), "tab-a", func() time.Time { return now })
		tab.ctx.SetUser(&session.User{ID: "user-1", Email: "jane@example.com"})

		now = now.Add(10 * time.Minute)
		require.True(t, tab.validator.ValidateSession())
		require.Equal(t, session.StateValid, tab.validator.State())

		value, err := store.Get(storage.KeyLastActivity)
		require.NoError(t, err)
		require.Equal(t, strconv.FormatInt(now.UnixMilli(), 10), value)
	})

	t.Run("inactivity expiry clears every session key", func(t *testing.T) {
		now := base
		store := storagefakes.NewFakeStore()
		seedLoggedInSession(t, store, now)
		store.Seed(storage.KeyLanguage, "es")
		tab := newTab(t, store, broadcast.NewHub(broadcast.DefaultChannelName), "tab-a", func() time.Time { return now })
		tab.ctx.SetUser(&session.User{ID: "user-1", Email: "jane@example.com"})
		tab.validator.SessionOpened()

		now = base.Add(testInactivityTimeout + time.Millisecond)
		require.False(t, tab.validator.ValidateSession())
		require.Equal(t, session.StateTornDown, tab.validator.State())
		require.False(t, tab.ctx.IsAuthenticated())

		for _, key := range storage.SessionKeys {
			require.False(t, store.Has(key), "key %q should be removed", key)
		}
		language, err := store.Get(storage.KeyLanguage)
		require.NoError(t, err)
		require.Equal(t, "es", language)
		require.False(t, tab.tracker.Started())
	})

	t.Run("absolute ceiling expires an active session", func(t *testing.T) {
		now := base
		store := storagefakes.NewFakeStore()
		seedLoggedInSession(t, store, now)
		tab := newTab(t, store, broadcast.NewHub(broadcast.DefaultChannelName), "tab-a", func() time.Time { return now })
		tab.ctx.SetUser(&session.User{ID: "user-1", Email: "jane@example.com"})

		// Stay active the whole time.
		now = base.Add(testMaxSessionDuration - time.Minute)
		store.Seed(storage.KeyLastActivity, strconv.FormatInt(now.UnixMilli(), 10))
		now = now.Add(2 * time.Minute)
		require.False(t, tab.validator.ValidateSession())
		require.Equal(t, session.StateTornDown, tab.validator.State())
	})

	t.Run("missing tokens tear down", func(t *testing.T) {
		now := base
		store := storagefakes.NewFakeStore()
		tab := newTab(t, store, broadcast.NewHub(broadcast.DefaultChannelName), "tab-a", func() time.Time { return now })
		tab.ctx.SetUser(&session.User{ID: "user-1", Email: "jane@example.com"})

		require.False(t, tab.validator.ValidateSession())
		require.Equal(t, session.StateTornDown, tab.validator.State())
	})
}

func TestValidator_TeardownIdempotent(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := storagefakes.NewFakeStore()
	seedLoggedInSession(t, store, base)
	tab := newTab(t, store, broadcast.NewHub(broadcast.DefaultChannelName), "tab-a", func() time.Time { return base })
	tab.ctx.SetUser(&session.User{ID: "user-1", Email: "jane@example.com"})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tab.validator.AutoLogout()
		}()
	}
	wg.Wait()
	// A third call after completion is also a no-op.
	tab.validator.AutoLogout()

	require.Equal(t, 1, tab.navigator.Count())
	require.Equal(t, 1, tab.notifier.Count())
	require.Equal(t, session.StateTornDown, tab.validator.State())
}

func TestValidator_TeardownWithFailingStorage(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := storagefakes.NewFakeStore()
	seedLoggedInSession(t, store, base)
	tab := newTab(t, store, broadcast.NewHub(broadcast.DefaultChannelName), "tab-a", func() time.Time { return base })
	tab.ctx.SetUser(&session.User{ID: "user-1", Email: "jane@example.com"})
	tab.validator.SessionOpened()

	// Key removal fails across the board; teardown must still clear
	// memory and land the user on the login route.
	store.FailWrites(true)
	tab.validator.AutoLogout()

	require.Equal(t, session.StateTornDown, tab.validator.State())
	require.False(t, tab.ctx.IsAuthenticated())
	require.False(t, tab.tracker.Started())
	require.Equal(t, 1, tab.navigator.Count())
	require.Equal(t, 1, tab.notifier.Count())
	// The persisted record survived, memory did not.
	require.True(t, store.Has(storage.KeyAccessToken))
}

func TestValidator_RevalidateSafetyNet(t *testing.T) {
	now := time.Now()
	store := storagefakes.NewFakeStore()
	seedLoggedInSession(t, store, now)
	hub := broadcast.NewHub(broadcast.DefaultChannelName)
	defer func() { _ = hub.Close() }()
	tab := newTabWithSettings(t, store, hub, "tab-a", time.Now, session.Settings{
		LoginRoute:           "/",
		ShowExpirationNotice: true,
		RestoreAnnounceDelay: 5 * time.Millisecond,
		RevalidateInterval:   10 * time.Millisecond,
	})

	tab.validator.Start()
	defer tab.validator.Stop()
	require.True(t, tab.ctx.IsAuthenticated())

	// The session ages past the absolute ceiling with no event
	// trigger; only the ticker can notice. The ceiling is used here
	// because no activity write can push it back.
	store.Seed(storage.KeyLoginTime, strconv.FormatInt(now.Add(-25*time.Hour).UnixMilli(), 10))

	require.Eventually(t, func() bool {
		return tab.validator.State() == session.StateTornDown
	}, time.Second, 5*time.Millisecond)
	require.False(t, tab.ctx.IsAuthenticated())
	require.Equal(t, 1, tab.navigator.Count())
}

func TestValidator_ExplicitLogoutIsSilent(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := storagefakes.NewFakeStore()
	seedLoggedInSession(t, store, base)
	tab := newTab(t, store, broadcast.NewHub(broadcast.DefaultChannelName), "tab-a", func() time.Time { return base })
	tab.ctx.SetUser(&session.User{ID: "user-1", Email: "jane@example.com"})

	tab.validator.Logout()

	require.Equal(t, 1, tab.navigator.Count())
	require.Equal(t, 0, tab.notifier.Count())
	require.False(t, tab.ctx.IsAuthenticated())
}

func TestValidator_MountRestoration(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("fresh tab with valid tokens restores context", func(t *testing.T) {
		store := storagefakes.NewFakeStore()
		seedLoggedInSession(t, store, base)
		hub := broadcast.NewHub(broadcast.DefaultChannelName)
		defer func() { _ = hub.Close() }()
		tab := newTab(t, store, hub, "tab-a", func() time.Time { return base })

		tab.validator.Start()
		defer tab.validator.Stop()

		require.Equal(t, session.StateValid, tab.validator.State())
		user := tab.ctx.User()
		require.NotNil(t, user)
		require.Equal(t, "user-1", user.ID)
		require.Equal(t, "jane@example.com", user.Email)
		current := tab.ctx.CurrentOrganization()
		require.NotNil(t, current)
		require.Equal(t, "org-1", current.ID)
		require.True(t, tab.tracker.Started())
	})

	t.Run("stale in-memory auth without tokens tears down", func(t *testing.T) {
		store := storagefakes.NewFakeStore()
		hub := broadcast.NewHub(broadcast.DefaultChannelName)
		defer func() { _ = hub.Close() }()
		seedLoggedInSession(t, store, base)
		tab := newTab(t, store, hub, "tab-a", func() time.Time { return base })
		tab.ctx.SetUser(&session.User{ID: "user-1", Email: "jane@example.com"})
		// The token vanished while memory still says authenticated.
		require.NoError(t, store.Delete(storage.KeyAccessToken))

		tab.validator.Start()
		defer tab.validator.Stop()

		require.Equal(t, session.StateTornDown, tab.validator.State())
		require.False(t, tab.ctx.IsAuthenticated())
	})

	t.Run("insufficient snapshot leaves tab unauthenticated", func(t *testing.T) {
		store := storagefakes.NewFakeStore()
		seedLoggedInSession(t, store, base)
		require.NoError(t, store.Delete(storage.KeyUserID))
		require.NoError(t, store.Delete(storage.KeyUserEmail))
		hub := broadcast.NewHub(broadcast.DefaultChannelName)
		defer func() { _ = hub.Close() }()
		tab := newTab(t, store, hub, "tab-a", func() time.Time { return base })

		tab.validator.Start()
		defer tab.validator.Stop()

		require.False(t, tab.ctx.IsAuthenticated())
		require.Equal(t, 0, tab.navigator.Count())
		// Without restored auth the lifecycle state and the derived
		// check must agree: not valid.
		require.Equal(t, session.StateUninitialized, tab.validator.State())
		require.False(t, tab.validator.IsSessionValid())
	})
}

func TestValidator_CrossTabLogout(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	nowFunc := func() time.Time { return base }

	store := storagefakes.NewFakeStore()
	seedLoggedInSession(t, store, base)
	hub := broadcast.NewHub(broadcast.DefaultChannelName)
	defer func() { _ = hub.Close() }()

	tabA := newTab(t, store, hub, "tab-a", nowFunc)
	tabB := newTab(t, store, hub, "tab-b", nowFunc)

	tabA.validator.Start()
	defer tabA.validator.Stop()
	tabB.validator.Start()
	defer tabB.validator.Stop()

	require.True(t, tabA.ctx.IsAuthenticated())
	require.True(t, tabB.ctx.IsAuthenticated())

	tabA.validator.Logout()

	require.Eventually(t, func() bool {
		return !tabB.ctx.IsAuthenticated() && tabB.validator.State() == session.StateTornDown
	}, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return tabB.navigator.Count() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestValidator_PeerRestorationAdoption(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	nowFunc := func() time.Time { return base }

	store := storagefakes.NewFakeStore()
	hub := broadcast.NewHub(broadcast.DefaultChannelName)
	defer func() { _ = hub.Close() }()

	// Tab B starts first with nothing persisted.
	tabB := newTab(t, store, hub, "tab-b", nowFunc)
	tabB.validator.Start()
	defer tabB.validator.Stop()
	require.False(t, tabB.ctx.IsAuthenticated())

	// A login completes elsewhere and the record lands in the store.
	seedLoggedInSession(t, store, base)
	tabA := newTab(t, store, hub, "tab-a", nowFunc)
	tabA.validator.Start()
	defer tabA.validator.Stop()
	require.True(t, tabA.ctx.IsAuthenticated())

	// Tab A announces its restoration; tab B adopts the state.
	require.Eventually(t, func() bool {
		return tabB.ctx.IsAuthenticated()
	}, time.Second, 5*time.Millisecond)
	user := tabB.ctx.User()
	require.NotNil(t, user)
	require.Equal(t, "user-1", user.ID)
}

func TestValidator_VisibilityChange(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	store := storagefakes.NewFakeStore()
	seedLoggedInSession(t, store, base)
	tab := newTab(t, store, broadcast.NewHub(broadcast.DefaultChannelName), "tab-a", func() time.Time { return now })
	tab.ctx.SetUser(&session.User{ID: "user-1", Email: "jane@example.com"})
	tab.validator.SessionOpened()

	// Session expires while the tab is hidden.
	now = base.Add(testInactivityTimeout + time.Minute)
	tab.validator.VisibilityChanged(true)

	require.Equal(t, session.StateTornDown, tab.validator.State())
	require.False(t, tab.ctx.IsAuthenticated())
}

func TestValidator_IsSessionValid(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	now := base
	store := storagefakes.NewFakeStore()
	seedLoggedInSession(t, store, base)
	tab := newTab(t, store, broadcast.NewHub(broadcast.DefaultChannelName), "tab-a", func() time.Time { return now })

	// Unauthenticated memory: derived validity is false even with a
	// valid persisted record.
	require.False(t, tab.validator.IsSessionValid())

	tab.ctx.SetUser(&session.User{ID: "user-1", Email: "jane@example.com"})
	require.True(t, tab.validator.IsSessionValid())

	now = base.Add(testInactivityTimeout + time.Minute)
	require.False(t, tab.validator.IsSessionValid())
	// Derived check has no side effects.
	require.True(t, store.Has(storage.KeyAccessToken))
}
