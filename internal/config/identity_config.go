package config

import "os"

const (
	tokenURLVar = "IDENTITY_TOKEN_URL"
	baseURLVar  = "IDENTITY_BASE_URL"
	clientIDVar = "IDENTITY_CLIENT_ID"
)

type IdentityConfig interface {
	// GetTokenURL is the OAuth2 token endpoint used for the password
	// grant at login.
	GetTokenURL() string

	// GetIdentityBaseURL is the base URL for identity/organization
	// REST calls.
	GetIdentityBaseURL() string

	GetClientID() string
}

type Identity struct {
	file *File
}

var _ IdentityConfig = Identity{}

func (i Identity) GetTokenURL() string {
	if url := os.Getenv(tokenURLVar); url != "" {
		return url
	}
	if i.file != nil && i.file.Identity.TokenURL != "" {
		return i.file.Identity.TokenURL
	}
	return "http://localhost:8080/oauth/token"
}

func (i Identity) GetIdentityBaseURL() string {
	if url := os.Getenv(baseURLVar); url != "" {
		return url
	}
	if i.file != nil && i.file.Identity.BaseURL != "" {
		return i.file.Identity.BaseURL
	}
	return "http://localhost:8080"
}

func (i Identity) GetClientID() string {
	if id := os.Getenv(clientIDVar); id != "" {
		return id
	}
	if i.file != nil && i.file.Identity.ClientID != "" {
		return i.file.Identity.ClientID
	}
	return "backoffice-client"
}
