package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/robceliesius/plugin-ably/internal/realtime"
)

// ErrNoSecret is returned when the issuer has no signing secret configured.
var ErrNoSecret = errors.New("token secret is not configured")

// Claims represents the claims carried by an issued realtime credential.
type Claims struct {
	ClientID   string `json:"client_id"`
	Capability string `json:"capability,omitempty"`
	jwt.RegisteredClaims
}

// IssuerConfig holds JWT configuration.
type IssuerConfig struct {
	Secret     []byte
	Issuer     string
	Audience   string
	TTL        time.Duration
	Capability string
}

// Issuer signs and verifies realtime credentials.
type Issuer struct {
	cfg IssuerConfig
	now func() time.Time
}

// NewIssuer creates an issuer for the given configuration.
func NewIssuer(cfg IssuerConfig) *Issuer {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	return &Issuer{cfg: cfg, now: time.Now}
}

// Issue creates a signed credential bound to clientID.
func (i *Issuer) Issue(clientID string) (*realtime.Token, error) {
	if len(i.cfg.Secret) == 0 {
		return nil, ErrNoSecret
	}

	now := i.now()
	expires := now.Add(i.cfg.TTL)
	claims := Claims{
		ClientID:   clientID,
		Capability: i.cfg.Capability,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   clientID,
			Issuer:    i.cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if i.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{i.cfg.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.Secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &realtime.Token{
		Token:      signed,
		Issued:     now.UnixMilli(),
		Expires:    expires.UnixMilli(),
		ClientID:   clientID,
		Capability: i.cfg.Capability,
	}, nil
}

// Verify parses and validates a credential.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	if len(i.cfg.Secret) == 0 {
		return nil, ErrNoSecret
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return i.cfg.Secret, nil
	}, jwt.WithTimeFunc(i.now))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	if i.cfg.Issuer != "" && claims.Issuer != i.cfg.Issuer {
		return nil, fmt.Errorf("invalid issuer")
	}

	if i.cfg.Audience != "" {
		validAudience := false
		for _, aud := range claims.Audience {
			if aud == i.cfg.Audience {
				validAudience = true
				break
			}
		}
		if !validAudience {
			return nil, fmt.Errorf("invalid audience")
		}
	}

	return claims, nil
}
