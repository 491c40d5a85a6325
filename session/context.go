package session

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tradewell/backoffice-session/storage"
)

// User is the in-memory identity of the authenticated user.
type User struct {
	ID       string
	Name     string
	LastName string
	Email    string
}

// Organization is one organization available to the user. The JSON
// field names match the persisted available_organizations array.
type Organization struct {
	ID           string `json:"id"`
	PartitionKey string `json:"partitionKey"`
	Name         string `json:"organization"`
	Role         string `json:"role"`
	Type         string `json:"type"`
	Registered   string `json:"registered"`
	IDCustomer   string `json:"idCustomer"`
}

// Context holds the in-memory authenticated state of one client
// context. The store carries a persisted mirror of everything here;
// the mirror is a cache of server-confirmed data, never the source
// of truth. Setters write through so a freshly opened peer context
// can restore without a network round trip.
type Context struct {
	store storage.Store
	log   zerolog.Logger

	mu            sync.RWMutex
	user          *User
	availableOrgs []Organization
	currentOrg    *Organization
	loadingOrgs   bool
}

// NewContext creates an unauthenticated Context.
func NewContext(store storage.Store, log zerolog.Logger) *Context {
	return &Context{
		store: store,
		log:   log.With().Str("component", "session-context").Logger(),
	}
}

// IsAuthenticated reports whether a user is set.
func (c *Context) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.user != nil
}

// User returns a copy of the current user, or nil.
func (c *Context) User() *User {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return nil
	}
	u := *c.user
	return &u
}

// SetUser installs the authenticated user and mirrors the identity
// snapshot to the store.
func (c *Context) SetUser(user *User) {
	c.mu.Lock()
	c.user = user
	c.mu.Unlock()

	if user == nil {
		return
	}
	c.persist(storage.KeyUserID, user.ID)
	c.persist(storage.KeyUserName, user.Name)
	c.persist(storage.KeyUserLastname, user.LastName)
	c.persist(storage.KeyUserEmail, user.Email)
}

// AvailableOrganizations returns a copy of the organization list.
func (c *Context) AvailableOrganizations() []Organization {
	c.mu.RLock()
	defer c.mu.RUnlock()
	orgs := make([]Organization, len(c.availableOrgs))
	copy(orgs, c.availableOrgs)
	return orgs
}

// SetAvailableOrganizations installs the organization list and
// mirrors it to the store as a JSON array.
func (c *Context) SetAvailableOrganizations(orgs []Organization) {
	c.mu.Lock()
	c.availableOrgs = orgs
	c.mu.Unlock()

	if len(orgs) == 0 {
		return
	}
	encoded, err := json.Marshal(orgs)
	if err != nil {
		c.log.Error().Err(err).Msg("encoding organizations snapshot")
		return
	}
	c.persist(storage.KeyAvailableOrgs, string(encoded))
}

// CurrentOrganization returns a copy of the selected organization,
// or nil.
func (c *Context) CurrentOrganization() *Organization {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.currentOrg == nil {
		return nil
	}
	org := *c.currentOrg
	return &org
}

// SetCurrentOrganization selects an organization and mirrors its id
// and name to the store.
func (c *Context) SetCurrentOrganization(org *Organization) {
	c.mu.Lock()
	c.currentOrg = org
	c.mu.Unlock()

	if org == nil {
		return
	}
	c.persist(storage.KeyCurrentOrgID, org.ID)
	c.persist(storage.KeyCurrentOrgName, org.Name)
}

// SetLoadingOrganizations flags an in-flight organization fetch.
func (c *Context) SetLoadingOrganizations(loading bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadingOrgs = loading
}

// IsLoadingOrganizations reports an in-flight organization fetch.
func (c *Context) IsLoadingOrganizations() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadingOrgs
}

// Clear drops all in-memory state. The persisted mirror is not
// touched here; removing stored keys is teardown's job.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = nil
	c.availableOrgs = nil
	c.currentOrg = nil
	c.loadingOrgs = false
}

// RestoreFromStore rebuilds in-memory state from the persisted
// snapshot without writing anything back. It returns true when a
// user was restored. Missing identity fields are not an error: the
// context simply stays unauthenticated.
func (c *Context) RestoreFromStore() bool {
	userID, err := c.store.Get(storage.KeyUserID)
	if err != nil || userID == "" {
		return false
	}
	userEmail, err := c.store.Get(storage.KeyUserEmail)
	if err != nil || userEmail == "" {
		return false
	}
	userName, _ := c.store.Get(storage.KeyUserName)
	userLastname, _ := c.store.Get(storage.KeyUserLastname)

	user := &User{
		ID:       userID,
		Name:     userName,
		LastName: userLastname,
		Email:    userEmail,
	}

	var orgs []Organization
	if raw, err := c.store.Get(storage.KeyAvailableOrgs); err == nil && raw != "" {
		if err := json.Unmarshal([]byte(raw), &orgs); err != nil {
			c.log.Warn().Err(err).Msg("corrupt organizations snapshot, skipping")
			orgs = nil
		}
	}

	var current *Organization
	if currentID, err := c.store.Get(storage.KeyCurrentOrgID); err == nil && currentID != "" {
		for i := range orgs {
			if orgs[i].ID == currentID {
				org := orgs[i]
				current = &org
				break
			}
		}
	}

	c.mu.Lock()
	c.user = user
	c.availableOrgs = orgs
	c.currentOrg = current
	c.mu.Unlock()

	c.log.Debug().Str("user_id", userID).Int("organizations", len(orgs)).Msg("context restored from store")
	return true
}

func (c *Context) persist(key, value string) {
	if err := c.store.Set(key, value); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("snapshot write failed")
	}
}
