package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer     = "bugtrail"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Claims are the verified contents of a signed token.
type Claims struct {
	Role      Role       `json:"role"`
	TokenType TokenClass `json:"type"`
	jwt.RegisteredClaims
}

// Codec issues and decodes RS256-signed tokens. The private key signs, the
// public key verifies, so verification can be distributed without exposing
// signing capability. Key material is supplied, never generated here.
type Codec struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// CodecOption configures Codec behavior.
type CodecOption func(*Codec)

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			c.issuer = issuer
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) {
		if ttl > 0 {
			c.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) CodecOption {
	return func(c *Codec) {
		if ttl > 0 {
			c.refreshTTL = ttl
		}
	}
}

// WithCodecClock overrides the time source (useful for tests).
func WithCodecClock(fn func() time.Time) CodecOption {
	return func(c *Codec) {
		if fn != nil {
			c.now = fn
		}
	}
}

// NewCodec parses the PEM-encoded RSA key pair and constructs a Codec.
func NewCodec(privatePEM, publicPEM []byte, opts ...CodecOption) (*Codec, error) {
	priv, err := jwt.ParseRSAPrivateKeyFromPEM(privatePEM)
	if err != nil {
		return nil, fmt.Errorf("auth: parse private key: %w", err)
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(publicPEM)
	if err != nil {
		return nil, fmt.Errorf("auth: parse public key: %w", err)
	}
	c := &Codec{
		privateKey: priv,
		publicKey:  pub,
		issuer:     defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessTTL returns the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// IssueAccess signs a short-lived access token for the account.
func (c *Codec) IssueAccess(accountID string, role Role) (token, jti string, expiresAt time.Time, err error) {
	return c.issue(accountID, role, TokenClassAccess, c.accessTTL)
}

// IssueRefresh signs a long-lived refresh token for the account.
func (c *Codec) IssueRefresh(accountID string, role Role) (token, jti string, expiresAt time.Time, err error) {
	return c.issue(accountID, role, TokenClassRefresh, c.refreshTTL)
}

func (c *Codec) issue(accountID string, role Role, class TokenClass, ttl time.Duration) (string, string, time.Time, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return "", "", time.Time{}, fmt.Errorf("%w: account id is required", ErrInvalidInput)
	}
	if !role.Valid() {
		return "", "", time.Time{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}

	now := c.now().UTC()
	exp := now.Add(ttl)
	jti := uuid.NewString()
	claims := Claims{
		Role:      role,
		TokenType: class,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(c.privateKey)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, jti, exp, nil
}

// Decode verifies the signature and temporal claims and returns the token's
// claims. Expiry is reported as ErrTokenExpired so callers can react
// differently from other invalidity. Decode does not enforce the token
// class; callers must check Claims.TokenType explicitly.
func (c *Codec) Decode(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodRS256 {
			return nil, ErrInvalidToken
		}
		return c.publicKey, nil
	}, jwt.WithTimeFunc(func() time.Time { return c.now().UTC() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, ErrInvalidToken
	}
	if claims.Issuer != c.issuer {
		return nil, ErrInvalidToken
	}
	if !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != TokenClassAccess && claims.TokenType != TokenClassRefresh {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
