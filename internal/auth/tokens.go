// Package auth mints the two HMAC-signed bearer tokens returned by login:
// the session token the frontend presents to this service, and the broker
// token the frontend presents to the realtime broker when opening its
// WebSocket connection.
//
// The two tokens are signed with independent secrets so either can be
// rotated without invalidating the other. Both are compact HS256 JWTs with
// the standard {"alg":"HS256","typ":"JWT"} header the broker expects.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/realtime-ai/realtime-message-gateway/internal/user"
)

const (
	// DefaultTokenTTL is the expiry applied when no TTL is configured.
	DefaultTokenTTL = time.Hour

	// MaxTokenTTL caps configured expiries. Long-lived bearer tokens with
	// no revocation path are not worth more than a day.
	MaxTokenTTL = 24 * time.Hour
)

// SessionClaims are the claims of the session token: {sub, name, iat, exp}.
type SessionClaims struct {
	jwt.RegisteredClaims

	// Name is the user's display name, included so the frontend can render
	// the identity without a profile fetch.
	Name string `json:"name"`
}

// BrokerInfo is the info object the broker attaches to the connection and
// echoes into presence events.
type BrokerInfo struct {
	Name string `json:"name"`
}

// BrokerClaims are the claims of the broker token: {sub, info, exp}.
type BrokerClaims struct {
	jwt.RegisteredClaims

	Info BrokerInfo `json:"info"`
}

// Issuer signs and verifies HS256 tokens with a single raw-byte secret.
// Create one per token kind; session and broker secrets are independent.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer creates an Issuer. ttl of zero means DefaultTokenTTL; values
// above MaxTokenTTL are clamped.
func NewIssuer(secret []byte, ttl time.Duration) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if ttl > MaxTokenTTL {
		ttl = MaxTokenTTL
	}
	return &Issuer{secret: secret, ttl: ttl}, nil
}

// TTL returns the expiry window applied to issued tokens.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// IssueSession mints the session token for u.
func (i *Issuer) IssueSession(u *user.User) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		Name: u.Name,
	}
	return i.sign(claims)
}

// IssueBroker mints the broker connection token for u.
func (i *Issuer) IssueBroker(u *user.User) (string, error) {
	claims := BrokerClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(i.ttl)),
		},
		Info: BrokerInfo{Name: u.Name},
	}
	return i.sign(claims)
}

func (i *Issuer) sign(claims jwt.Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// VerifySession parses and verifies a session token issued by this Issuer.
func (i *Issuer) VerifySession(tokenString string) (*SessionClaims, error) {
	var claims SessionClaims
	if err := i.verify(tokenString, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

// VerifyBroker parses and verifies a broker token issued by this Issuer.
func (i *Issuer) VerifyBroker(tokenString string) (*BrokerClaims, error) {
	var claims BrokerClaims
	if err := i.verify(tokenString, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

func (i *Issuer) verify(tokenString string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (any, error) {
			// Reject anything but HMAC to block alg-confusion tokens.
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", t.Header["alg"])
			}
			return i.secret, nil
		},
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if !token.Valid {
		return ErrTokenInvalid
	}
	return nil
}
