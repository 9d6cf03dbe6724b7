// Package auth mints and checks the signed access tokens used on protected
// endpoints.  Tokens are HS256 JWTs carrying sub (user id), role, jti and
// the usual exp/iat pair.  Because a signed token stays verifiable until it
// expires, logout effectiveness depends on the denylist: invalidated token
// ids are rejected even while the signature is still good.
package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken is returned when an access token fails verification for
// any reason: bad signature, expiry, malformed claims, or denylisted id.
var ErrInvalidToken = errors.New("invalid access token")

// Denylist records invalidated token ids until their natural expiry.
type Denylist interface {
	Add(ctx context.Context, jti string, ttl time.Duration) error
	Has(ctx context.Context, jti string) (bool, error)
}

// Claims is the verified identity extracted from an access token.
type Claims struct {
	UserID uint64
	Role   string
	JTI    string
	Exp    time.Time
}

// Issuer signs, verifies and invalidates access tokens.
type Issuer struct {
	secret   []byte
	ttl      time.Duration
	denylist Denylist
}

// NewIssuer builds an Issuer from the signing secret, the access token TTL
// in minutes and a denylist implementation.
func NewIssuer(secret string, ttlMin int, dl Denylist) *Issuer {
	return &Issuer{
		secret:   []byte(secret),
		ttl:      time.Duration(ttlMin) * time.Minute,
		denylist: dl,
	}
}

// Issue signs a new access token bound to the user.  Every token gets a
// fresh jti so it can be invalidated independently of the user's other
// sessions.
func (i *Issuer) Issue(userID uint64, role string) (string, time.Time, error) {
	exp := time.Now().UTC().Add(i.ttl)
	claims := jwt.MapClaims{
		"sub":  strconv.FormatUint(userID, 10),
		"role": role,
		"jti":  uuid.NewString(),
		"exp":  exp.Unix(),
		"iat":  time.Now().UTC().Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify parses the token, checks the signature and expiry, and rejects
// tokens whose id sits on the denylist.
func (i *Issuer) Verify(ctx context.Context, raw string) (Claims, error) {
	claims, err := i.parse(raw)
	if err != nil {
		return Claims{}, err
	}
	banned, err := i.denylist.Has(ctx, claims.JTI)
	if err != nil {
		return Claims{}, err
	}
	if banned {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// Invalidate puts the token's id on the denylist for the remainder of its
// life.  A token that no longer verifies needs no entry and is not an
// error: logout must stay idempotent.
func (i *Issuer) Invalidate(ctx context.Context, raw string) error {
	claims, err := i.parse(raw)
	if err != nil {
		return nil
	}
	ttl := time.Until(claims.Exp)
	if ttl <= 0 {
		return nil
	}
	return i.denylist.Add(ctx, claims.JTI, ttl)
}

func (i *Issuer) parse(raw string) (Claims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		// Reject tokens signed with anything but HMAC.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	})
	if err != nil || !tok.Valid {
		return Claims{}, ErrInvalidToken
	}
	mc, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, ErrInvalidToken
	}
	out := Claims{}
	switch sub := mc["sub"].(type) {
	case string:
		id, err := strconv.ParseUint(sub, 10, 64)
		if err != nil {
			return Claims{}, ErrInvalidToken
		}
		out.UserID = id
	case float64:
		out.UserID = uint64(sub)
	default:
		return Claims{}, ErrInvalidToken
	}
	if role, ok := mc["role"].(string); ok {
		out.Role = role
	}
	jti, ok := mc["jti"].(string)
	if !ok || jti == "" {
		return Claims{}, ErrInvalidToken
	}
	out.JTI = jti
	if exp, ok := mc["exp"].(float64); ok {
		out.Exp = time.Unix(int64(exp), 0).UTC()
	}
	return out, nil
}
