package identity

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tradewell/backoffice-session/storage"
)

// authExcludedEndpoints never receive bearer credentials.
var authExcludedEndpoints = []string{
	"/oauth/token",
}

// hookExcludedEndpoints do not trigger the 401 auto-logout hook and
// do not get created_by fields injected. These are the endpoints
// used before or during session establishment.
var hookExcludedEndpoints = []string{
	"/identity/customers",
	"/identity/v2/customers",
	"/partition_keys",
	"/organizations",
	"/oauth/token",
}

// Transport decorates requests with the stored bearer token and
// partition-key headers, and treats a 401 on any authenticated call
// as an authoritative remote teardown signal. The hook fires
// asynchronously so the failed call's own error handling is never
// blocked.
type Transport struct {
	base              http.RoundTripper
	store             storage.Store
	onUnauthorized    func()
	unauthorizedDelay time.Duration
	log               zerolog.Logger
}

// NewTransport wraps base (http.DefaultTransport when nil).
// onUnauthorized runs shortly after any non-excluded call returns
// 401.
func NewTransport(base http.RoundTripper, store storage.Store, onUnauthorized func(), log zerolog.Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{
		base:              base,
		store:             store,
		onUnauthorized:    onUnauthorized,
		unauthorizedDelay: 100 * time.Millisecond,
		log:               log.With().Str("component", "identity-transport").Logger(),
	}
}

var _ http.RoundTripper = (*Transport)(nil)

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(req.Context())

	if !matchesAny(req.URL.Path, authExcludedEndpoints) {
		t.addAuthHeaders(out)
		if !matchesAny(req.URL.Path, hookExcludedEndpoints) {
			t.addAuditFields(out)
		}
	}

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized && !matchesAny(req.URL.Path, hookExcludedEndpoints) {
		t.log.Error().Str("url", req.URL.String()).Msg("unauthorized response from backend")
		if t.onUnauthorized != nil {
			// Deferred so the caller sees its 401 first.
			time.AfterFunc(t.unauthorizedDelay, t.onUnauthorized)
		}
	}
	return resp, nil
}

func (t *Transport) addAuthHeaders(req *http.Request) {
	bearer, err := t.store.Get(storage.KeyJWT)
	if err != nil || bearer == "" {
		bearer, _ = t.store.Get(storage.KeyIDToken)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	partitionKey, err := t.store.Get(storage.KeyPartitionKey)
	if err != nil || partitionKey == "" {
		return
	}
	// The backend services disagree on the header name; send the
	// whole set.
	req.Header.Set("_partitionkey", partitionKey)
	req.Header.Set("bt-organization", partitionKey)
	req.Header.Set("bt-uid", partitionKey)
	req.Header.Set("organization_id", partitionKey)
	req.Header.Set("pk-organization", partitionKey)
}

// addAuditFields injects created_by/registered_by identity fields
// into JSON bodies of PUT and POST requests.
func (t *Transport) addAuditFields(req *http.Request) {
	if req.Method != http.MethodPost && req.Method != http.MethodPut {
		return
	}
	if req.Body == nil {
		return
	}

	raw, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		req.Body = io.NopCloser(bytes.NewReader(nil))
		return
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		// Not a JSON object; forward untouched.
		req.Body = io.NopCloser(bytes.NewReader(raw))
		return
	}

	userID, _ := t.store.Get(storage.KeyUserID)
	userName, _ := t.store.Get(storage.KeyUserName)
	body["created_by_id"] = userID
	body["created_by_name"] = userName
	body["registered_by_id"] = userID
	body["registered_by_name"] = userName

	encoded, err := json.Marshal(body)
	if err != nil {
		req.Body = io.NopCloser(bytes.NewReader(raw))
		return
	}
	req.Body = io.NopCloser(bytes.NewReader(encoded))
	req.ContentLength = int64(len(encoded))
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
}

func matchesAny(path string, endpoints []string) bool {
	for _, endpoint := range endpoints {
		if strings.Contains(path, endpoint) {
			return true
		}
	}
	return false
}
