package utils // package utils provides helpers for access token handling

import (
	"errors"  // sentinel errors for token validation
	"strconv" // parsing string subjects
	"time"    // expirations

	"github.com/golang-jwt/jwt/v5" // JWT library for signing and parsing tokens
)

// ErrInvalidToken is returned when a token cannot be parsed, is signed with
// a different algorithm or secret, has expired, or lacks a usable subject.
var ErrInvalidToken = errors.New("invalid token")

// AccessToken represents a signed JWT access token along with its expiry.
type AccessToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// Identity is the authenticated caller extracted from a verified token.
type Identity struct {
	UserID uint64
	Role   string
}

// NewAccessToken builds and signs an HS256 JWT for a user.  The service
// itself never issues tokens; this is used by tests and local tooling to
// produce tokens compatible with the identity provider.
func NewAccessToken(secret string, userID uint64, role string, ttl time.Duration) (AccessToken, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := jwt.MapClaims{
		"sub":  strconv.FormatUint(userID, 10),
		"role": role,
		"exp":  exp.Unix(),
		"iat":  now.Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken verifies an HS256 token and returns the caller's
// identity.  The subject may be encoded either as a string or a number,
// since issuers differ.
func ParseAccessToken(secret, raw string) (Identity, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		// Only HMAC signatures are accepted.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tok.Valid {
		return Identity{}, ErrInvalidToken
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}

	var id uint64
	switch sub := claims["sub"].(type) {
	case string:
		id, err = strconv.ParseUint(sub, 10, 64)
		if err != nil {
			return Identity{}, ErrInvalidToken
		}
	case float64:
		if sub <= 0 {
			return Identity{}, ErrInvalidToken
		}
		id = uint64(sub)
	default:
		return Identity{}, ErrInvalidToken
	}
	if id == 0 {
		return Identity{}, ErrInvalidToken
	}
	role, _ := claims["role"].(string)
	return Identity{UserID: id, Role: role}, nil
}
