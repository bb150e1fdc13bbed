package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrAuthRejected covers every credential failure: the connection attempt
// must never reach the open state when this is returned.
var ErrAuthRejected = errors.New("auth: credential rejected")

// Identity is the verified principal behind a connection.
type Identity struct {
	UserID int64
	Name   string
}

// Verifier validates HMAC-signed tokens presented at handshake time. Token
// refresh lives entirely outside the connection core; the supervisor only
// ever sees accept or reject.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a token and maps it to a stable identity.
func (v *Verifier) Verify(token string) (*Identity, error) {
	if token == "" {
		return nil, ErrAuthRejected
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrAuthRejected
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrAuthRejected
	}

	userID, err := userIDFromClaims(claims)
	if err != nil {
		return nil, ErrAuthRejected
	}

	ident := &Identity{UserID: userID}
	if name, ok := claims["name"].(string); ok {
		ident.Name = name
	}
	return ident, nil
}

// Issue signs a token for the given identity; used by the auth layer and
// by tests that need a valid handshake credential.
func (v *Verifier) Issue(ident Identity, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"id":   ident.UserID,
		"name": ident.Name,
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

func userIDFromClaims(claims jwt.MapClaims) (int64, error) {
	switch id := claims["id"].(type) {
	case float64:
		return int64(id), nil
	case string:
		return strconv.ParseInt(id, 10, 64)
	}
	if sub, ok := claims["sub"].(string); ok {
		return strconv.ParseInt(sub, 10, 64)
	}
	return 0, errors.New("no user id claim")
}
