// Package auth provides password hashing and signed, purpose-bound tokens.
//
// EMAIL CONFIRMATION FLOW:
// 1. A user registers (or changes their email)
// 2. The server issues a token binding the email address to the
//    "email-confirm" purpose and mails a link containing it
// 3. The user opens /confirm_email/{token}
// 4. The server redeems the token: signature, purpose and age must all check
//    out, and the email address comes back as the payload
//
// JWT STRUCTURE (three base64-encoded parts separated by dots):
//
//	HEADER.PAYLOAD.SIGNATURE
//	- Header: {"alg":"HS256","typ":"JWT"}
//	- Payload: {"sub":"a@x.com","purpose":"email-confirm","iat":1700000000,...}
//	- Signature: HMAC-SHA256(header+"."+payload, secretKey)
//
// The max age is chosen by the redeemer, not baked into the token, so the
// same token format serves any lifetime policy.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

// PurposeEmailConfirm is the purpose tag of email-confirmation tokens.
const PurposeEmailConfirm = "email-confirm"

const tokenIssuer = "ivr-board"

// MinSecretLength is the shortest signing secret NewTokenService accepts.
const MinSecretLength = 16

// ErrInvalidToken is returned by Redeem for every kind of failure.
// Callers must not be able to tell a forged token from an expired one.
var ErrInvalidToken = errors.New("auth: invalid or expired token")

// TokenService issues and redeems signed, time-stamped tokens.
//
// It holds the HMAC secret used to sign and verify tokens. The same secret
// must be used for both operations.
type TokenService struct {
	secret []byte
	now    func() time.Time
}

// NewTokenService creates a TokenService with the given secret.
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("auth: token secret must be at least %d characters", MinSecretLength)
	}
	return &TokenService{secret: []byte(secret), now: time.Now}, nil
}

// claims is the JWT payload: the registered claims plus the purpose tag.
// "sub" carries the payload (an email address for confirmation tokens).
type claims struct {
	jwt.RegisteredClaims
	Purpose string `json:"purpose"`
}

// Issue creates a signed token binding payload to purpose.
func (s *TokenService) Issue(payload, purpose string) (string, error) {
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       xid.New().String(),
			Subject:  payload,
			IssuedAt: jwt.NewNumericDate(s.now()),
			Issuer:   tokenIssuer,
		},
		Purpose: purpose,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Redeem verifies a token and returns its payload.
//
// VALIDATION CHECKS:
//   - Signature is valid and the algorithm is HS256 (no algorithm confusion)
//   - Issuer matches
//   - Purpose matches the expected purpose
//   - The token was issued no more than maxAge ago
//
// Any failure yields ErrInvalidToken and nothing else.
func (s *TokenService) Redeem(tokenStr, purpose string, maxAge time.Duration) (string, error) {
	var c claims
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&c,
		func(token *jwt.Token) (any, error) {
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	if c.Purpose != purpose || c.Subject == "" || c.IssuedAt == nil {
		return "", ErrInvalidToken
	}
	if s.now().Sub(c.IssuedAt.Time) > maxAge {
		return "", ErrInvalidToken
	}

	return c.Subject, nil
}
