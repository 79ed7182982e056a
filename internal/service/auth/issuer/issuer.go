// Package issuer mints and checks short-lived signed access tokens.
// Access tokens are self-contained: Verify does no I/O and nothing is persisted.
package issuer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/authgate/internal/apperrors"
	"github.com/nkiryanov/authgate/internal/models"
)

const (
	defaultAccessTokenTTL = 15 * time.Minute
	defaultSigningMethod  = "HS256"
)

type AccessTokenClaims struct {
	jwt.RegisteredClaims
	Scopes []string `json:"scp,omitempty"`
}

// Issuer config with sensible default
type Config struct {
	// Secret key to sign access token
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm: HS256, HS384 or HS512
	// If not set than default is used
	Alg string

	// Access token lifetime
	// If not set than default is used
	AccessTTL time.Duration

	// Clock, time.Now if not set
	Now func() time.Time
}

type Issuer struct {
	key       []byte
	alg       jwt.SigningMethod
	accessTTL time.Duration
	now       func() time.Time
}

func New(cfg Config) (*Issuer, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("secret key must not be empty")
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}
	alg, ok := jwt.GetSigningMethod(cfg.Alg).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, fmt.Errorf("unsupported signing method %q, only HMAC methods allowed", cfg.Alg)
	}

	if cfg.AccessTTL < 0 {
		return nil, fmt.Errorf("access token ttl must not be negative, got %s", cfg.AccessTTL)
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = defaultAccessTokenTTL
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Issuer{
		key:       []byte(cfg.SecretKey),
		alg:       alg,
		accessTTL: cfg.AccessTTL,
		now:       cfg.Now,
	}, nil
}

func (i *Issuer) TTL() time.Duration {
	return i.accessTTL
}

// Issue signed access token for subject
func (i *Issuer) Issue(subject string, scopes []string) (models.IssuedToken, error) {
	if subject == "" {
		return models.IssuedToken{}, errors.New("error while issuing access token. Err: empty subject")
	}

	// JWT numeric dates have second precision
	now := i.now().Truncate(time.Second)
	expiresAt := now.Add(i.accessTTL)

	token := jwt.NewWithClaims(
		i.alg,
		AccessTokenClaims{
			RegisteredClaims: jwt.RegisteredClaims{
				ID:        uuid.NewString(),
				Subject:   subject,
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(expiresAt),
			},
			Scopes: scopes,
		},
	)

	signed, err := token.SignedString(i.key)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing access token. Err: %w", err)
	}

	return models.IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// Parse and validate access token
// Any failure except expiration is reported as invalid signature
func (i *Issuer) Verify(access string) (models.Principal, error) {
	claims := &AccessTokenClaims{}

	_, err := jwt.ParseWithClaims(
		access,
		claims,
		func(t *jwt.Token) (any, error) {
			return i.key, nil
		},
		jwt.WithValidMethods([]string{i.alg.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return models.Principal{}, fmt.Errorf("error while validating token. Err: %w", apperrors.ErrAccessTokenExpired)
	case err != nil:
		return models.Principal{}, fmt.Errorf("error while parsing token: %s. Err: %w", err, apperrors.ErrInvalidSignature)
	case claims.Subject == "":
		return models.Principal{}, fmt.Errorf("error while parsing token: no subject. Err: %w", apperrors.ErrInvalidSignature)
	}

	return models.Principal{Subject: claims.Subject, Scopes: claims.Scopes}, nil
}
