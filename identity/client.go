package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	validatorlib "github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/tradewell/backoffice-session/broadcast"
	"github.com/tradewell/backoffice-session/internal/config"
	apperrors "github.com/tradewell/backoffice-session/internal/errors"
	"github.com/tradewell/backoffice-session/session"
	"github.com/tradewell/backoffice-session/storage"
	"golang.org/x/oauth2"
)

// Client talks to the identity/organization backend using the stored
// tokens as bearer credentials.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokenURL   string
	clientID   string

	store      storage.Store
	sessionCtx *session.Context
	announcer  *broadcast.Announcer
	validate   *validatorlib.Validate
	nowTime    func() time.Time
	log        zerolog.Logger
}

// ClientOption modifies a Client.
type ClientOption func(*Client)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ClientOption {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

// WithHTTPClient sets the HTTP client; wire a Transport into it so
// authenticated calls carry credentials and the 401 hook.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates an identity backend client.
func NewClient(cfg config.IdentityConfig, store storage.Store, sessionCtx *session.Context, announcer *broadcast.Announcer, log zerolog.Logger, options ...ClientOption) *Client {
	c := &Client{
		httpClient: http.DefaultClient,
		baseURL:    cfg.GetIdentityBaseURL(),
		tokenURL:   cfg.GetTokenURL(),
		clientID:   cfg.GetClientID(),
		store:      store,
		sessionCtx: sessionCtx,
		announcer:  announcer,
		validate:   validatorlib.New(),
		nowTime:    time.Now,
		log:        log.With().Str("component", "identity-client").Logger(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Login authenticates with the resource-owner password grant, writes
// the session record and identity/organization snapshots, and
// announces the completed login to peer contexts.
func (c *Client) Login(ctx context.Context, email, password string) error {
	creds := Credentials{Email: email, Password: password}
	if err := c.validate.Struct(creds); err != nil {
		return errors.Wrap(apperrors.ErrInvalidCredentials, err.Error())
	}

	conf := &oauth2.Config{
		ClientID: c.clientID,
		Endpoint: oauth2.Endpoint{TokenURL: c.tokenURL},
	}
	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := conf.PasswordCredentialsToken(tokenCtx, email, password)
	if err != nil {
		return errors.Wrap(err, "[Client.Login] password grant")
	}
	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return errors.New("[Client.Login] token response missing id_token")
	}

	// The session record is written in a fixed order: both timestamps
	// first, the access token last. A peer that observes the access
	// token therefore never sees a record without its timestamps.
	loginMillis := strconv.FormatInt(c.nowTime().UnixMilli(), 10)
	record := []struct{ key, value string }{
		{storage.KeyLoginTime, loginMillis},
		{storage.KeyLastActivity, loginMillis},
		{storage.KeyJWT, idToken},
		{storage.KeyIDToken, idToken},
		{storage.KeyRefreshToken, tok.RefreshToken},
		{storage.KeyAccessToken, tok.AccessToken},
	}
	for _, entry := range record {
		if err := c.store.Set(entry.key, entry.value); err != nil {
			return errors.Wrapf(err, "[Client.Login] writing %s", entry.key)
		}
	}

	customer, err := c.GetIdentity(ctx)
	if err != nil {
		return errors.Wrap(err, "[Client.Login] fetching identity")
	}
	c.persist(storage.KeyUserName, customer.FirstName)
	c.persist(storage.KeyUserLastname, customer.LastName)
	c.persist(storage.KeyUserID, customer.ID)
	c.persist(storage.KeyCustomerID, customer.ID)
	c.persist(storage.KeyUserEmail, customer.Email)
	c.sessionCtx.SetUser(&session.User{
		ID:       customer.ID,
		Name:     customer.FirstName,
		LastName: customer.LastName,
		Email:    customer.Email,
	})

	options, err := c.GetPartitionKeys(ctx)
	if err != nil {
		return errors.Wrap(err, "[Client.Login] fetching partition keys")
	}

	var partitionKey string
	if len(options) > 0 {
		orgs := make([]session.Organization, 0, len(options))
		for _, opt := range options {
			id := opt.Organization.ID
			if id == "" {
				id = opt.Value
			}
			orgType := opt.Organization.Type
			if orgType == "" {
				orgType = "Organizational"
			}
			orgs = append(orgs, session.Organization{
				ID:           id,
				PartitionKey: opt.Value,
				Name:         opt.Label,
				Type:         orgType,
			})
		}
		c.sessionCtx.SetAvailableOrganizations(orgs)

		partitionKey = options[0].Value
		c.persist(storage.KeyPartitionKey, partitionKey)
		first := orgs[0]
		c.sessionCtx.SetCurrentOrganization(&first)
	}

	if partitionKey != "" {
		if err := c.LoadOrganizationData(ctx, partitionKey); err != nil {
			return errors.Wrap(err, "[Client.Login] loading organization data")
		}
	}

	c.announcer.AnnounceLogin()
	c.log.Info().Str("user_id", customer.ID).Msg("login completed")
	return nil
}

// GetIdentity fetches the current customer identity.
func (c *Client) GetIdentity(ctx context.Context) (*Customer, error) {
	var envelope customerEnvelope
	if err := c.getJSON(ctx, c.baseURL+"/identity/v2/customers", &envelope); err != nil {
		return nil, errors.Wrap(err, "[Client.GetIdentity]")
	}
	return &envelope.Data, nil
}

// GetPartitionKeys fetches the organizations available to the user.
func (c *Client) GetPartitionKeys(ctx context.Context) ([]OrganizationOption, error) {
	var options []OrganizationOption
	if err := c.getJSON(ctx, c.baseURL+"/partition_keys", &options); err != nil {
		return nil, errors.Wrap(err, "[Client.GetPartitionKeys]")
	}
	return options, nil
}

// GetOrganizations fetches organization details for a partition key.
func (c *Client) GetOrganizations(ctx context.Context, partitionKey string) ([]OrganizationDetails, error) {
	endpoint := fmt.Sprintf("%s/organizations?partition_key=%s", c.baseURL, url.QueryEscape(partitionKey))
	var envelope organizationsEnvelope
	if err := c.getJSON(ctx, endpoint, &envelope); err != nil {
		return nil, errors.Wrap(err, "[Client.GetOrganizations]")
	}
	return envelope.Data, nil
}

// GetPersonByID fetches a CRM person record.
func (c *Client) GetPersonByID(ctx context.Context, id string) (*Person, error) {
	var person Person
	if err := c.getJSON(ctx, c.baseURL+"/crm-people/people/"+url.PathEscape(id), &person); err != nil {
		return nil, errors.Wrap(err, "[Client.GetPersonByID]")
	}
	return &person, nil
}

// LoadOrganizationData persists the organization and representative
// display snapshots for the selected partition key. Representative
// lookups are best-effort: a missing person record does not fail the
// login.
func (c *Client) LoadOrganizationData(ctx context.Context, partitionKey string) error {
	organizations, err := c.GetOrganizations(ctx, partitionKey)
	if err != nil {
		return errors.Wrap(err, "[Client.LoadOrganizationData]")
	}

	var representativeID string
	if len(organizations) > 0 {
		org := organizations[0]
		for _, extra := range org.Extras {
			if extra.Key == organizationOwnerKey && len(extra.Values) > 0 {
				representativeID = extra.Values[0].Value
				c.persist(storage.KeyRepresentativeID, representativeID)
				break
			}
		}
		if org.BusinessName != "" {
			c.persist(storage.KeyCompanyBusinessName, org.BusinessName)
		}
		if org.BusinessType != "" {
			c.persist(storage.KeyCompanyBusinessType, org.BusinessType)
		}
		if len(org.Phones) > 0 {
			if org.Phones[0].CallingCode != "" {
				c.persist(storage.KeyCompanyCallingCode, org.Phones[0].CallingCode)
			}
			if org.Phones[0].PhoneNumber != "" {
				c.persist(storage.KeyCompanyPhoneNumber, org.Phones[0].PhoneNumber)
			}
		}
		if len(org.Addresses) > 0 && org.Addresses[0].Line != "" {
			c.persist(storage.KeyCompanyAddressLine, org.Addresses[0].Line)
		}
	}

	if representativeID != "" {
		person, err := c.GetPersonByID(ctx, representativeID)
		if err != nil {
			c.log.Warn().Err(err).Str("person_id", representativeID).Msg("representative lookup failed")
		} else {
			c.persist(storage.KeyRepresentativeFullName, person.FullName)
			if person.FirstName != "" {
				c.persist(storage.KeyRepresentativeFirstName, person.FirstName)
			}
			if person.LastName != "" {
				c.persist(storage.KeyRepresentativeLastName, person.LastName)
			}
			if len(person.Emails) > 0 {
				c.persist(storage.KeyRepresentativeEmail, person.Emails[0].Value)
			}
			if len(person.Phones) > 0 {
				c.persist(storage.KeyRepresentativeCallingCode, person.Phones[0].CallingCode)
				c.persist(storage.KeyRepresentativePhoneNumber, person.Phones[0].PhoneNumber)
			}
		}
	}

	c.persist(storage.KeyPartitionKey, partitionKey)
	return nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return apperrors.ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Errorf("unexpected status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) persist(key, value string) {
	if err := c.store.Set(key, value); err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("snapshot write failed")
	}
}
