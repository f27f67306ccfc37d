// WHY BCRYPT?
// bcrypt is a password hashing function specifically designed to be slow.
// That slowness is what makes offline brute-force against a leaked users
// table expensive.
//
// bcrypt automatically:
//   - Generates a random salt per call (two users with the same password get different hashes)
//   - Embeds the salt in the output hash (no separate salt column needed)
//   - Controls the work factor via "cost" (higher = slower = harder to crack)
//
// Hash format (the full output of bcrypt.GenerateFromPassword):
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (12 rounds → 2^12 iterations)
//	 version

package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt work factor used in production.
const DefaultCost = 12

// MaxPasswordBytes is bcrypt's input limit. Longer input would be
// silently truncated, so Hash rejects it instead.
const MaxPasswordBytes = 72

// GeneratedPasswordLength and generatedPasswordAlphabet describe the
// passwords mailed out by the credential-recovery flow.
const (
	GeneratedPasswordLength   = 16
	generatedPasswordAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// PasswordService provides bcrypt hashing, verification and random
// password generation.
//
// It's a struct (not free functions) so that the cost can be injected
// in tests: cost 4 makes tests run in milliseconds.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService with the given cost.
// A cost outside bcrypt's allowed range falls back to DefaultCost.
func NewPasswordService(cost int) *PasswordService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &PasswordService{cost: cost}
}

// NewPasswordServiceForTest creates a PasswordService with bcrypt's minimum
// cost. Do NOT use in production.
func NewPasswordServiceForTest() *PasswordService {
	return &PasswordService{cost: bcrypt.MinCost}
}

// Hash hashes the given plaintext password with bcrypt.
//
// Returns an error if the plaintext is longer than 72 bytes: bcrypt would
// silently ignore everything past that point.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", fmt.Errorf("auth: password must be %d bytes or fewer", MaxPasswordBytes)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify reports whether plaintext matches the stored bcrypt hash.
//
// bcrypt.CompareHashAndPassword compares in constant time. A malformed
// hash is treated like a mismatch: the caller only ever learns "no".
func (p *PasswordService) Verify(hash, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// GeneratePassword returns a random password of GeneratedPasswordLength
// characters drawn uniformly from A–Z and 0–9.
//
// rand.Int gives an unbiased index (no modulo bias), and crypto/rand makes
// the result unpredictable; the password is mailed to the user as their
// new credential.
func (p *PasswordService) GeneratePassword() (string, error) {
	max := big.NewInt(int64(len(generatedPasswordAlphabet)))
	buf := make([]byte, GeneratedPasswordLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("auth: generating password: %w", err)
		}
		buf[i] = generatedPasswordAlphabet[n.Int64()]
	}
	return string(buf), nil
}
