// Package token validates the persisted bearer token set on the
// client side. Validation is structural only: the ID token is decoded
// without signature verification, since the client holds no keys and
// the server remains the authority (a 401 on any call overrides
// whatever this package concluded).
package token

import (
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	apperrors "github.com/tradewell/backoffice-session/internal/errors"
	"github.com/tradewell/backoffice-session/storage"
)

// Validator checks the stored token set. It fails closed: any absent
// token, decode failure, or storage error yields "invalid", never an
// error to the caller.
type Validator struct {
	store   storage.Store
	nowTime func() time.Time
	log     zerolog.Logger
}

// ValidatorOption modifies a Validator.
type ValidatorOption func(*Validator)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ValidatorOption {
	return func(v *Validator) {
		v.nowTime = nowFunc
	}
}

// NewValidator creates a Validator over the session store.
func NewValidator(store storage.Store, log zerolog.Logger, options ...ValidatorOption) *Validator {
	v := &Validator{
		store:   store,
		nowTime: time.Now,
		log:     log.With().Str("component", "token-validator").Logger(),
	}
	for _, opt := range options {
		opt(v)
	}
	return v
}

// TokenSetValid reports whether all three bearer tokens are present
// and the ID token has not expired. No side effects.
func (v *Validator) TokenSetValid() bool {
	accessToken, err := v.store.Get(storage.KeyAccessToken)
	if err != nil || accessToken == "" {
		return false
	}
	refreshToken, err := v.store.Get(storage.KeyRefreshToken)
	if err != nil || refreshToken == "" {
		return false
	}
	idToken, err := v.store.Get(storage.KeyIDToken)
	if err != nil || idToken == "" {
		return false
	}

	claims, err := DecodeClaims(idToken)
	if err != nil {
		v.log.Debug().Err(err).Msg("id token undecodable")
		return false
	}
	if !claims.ExpiresAt.IsZero() && claims.ExpiresAt.Before(v.nowTime()) {
		return false
	}
	return true
}

// Claims is the subset of ID token claims the session core cares
// about. ExpiresAt is zero when the token carries no exp claim.
type Claims struct {
	Subject   string
	Email     string
	ExpiresAt time.Time
}

// DecodeClaims decodes a structured token without verifying its
// signature. The token must have exactly three dot-separated
// segments with a base64 JSON payload.
func DecodeClaims(raw string) (Claims, error) {
	if strings.Count(raw, ".") != 2 {
		return Claims{}, errors.Wrap(apperrors.ErrMalformedToken, "[DecodeClaims] token must have 3 segments")
	}

	parsed, _, err := jwtlib.NewParser().ParseUnverified(raw, jwtlib.MapClaims{})
	if err != nil {
		return Claims{}, errors.Wrap(apperrors.ErrMalformedToken, err.Error())
	}
	mapClaims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return Claims{}, errors.Wrap(apperrors.ErrMalformedToken, "[DecodeClaims] error extracting claims")
	}

	var claims Claims
	claims.Subject, _ = mapClaims["sub"].(string)
	claims.Email, _ = mapClaims["email"].(string)
	if exp, ok := mapClaims["exp"].(float64); ok {
		claims.ExpiresAt = time.Unix(int64(exp), 0)
	}
	return claims, nil
}
