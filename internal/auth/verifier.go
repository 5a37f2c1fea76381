// Package auth checks the shared bot password.
//
// The plain password is never kept in memory after startup: a Verifier holds
// only its bcrypt hash.
package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/dmitrijs2005/cloudkeeper/internal/common"
	"golang.org/x/crypto/bcrypt"
)

// Verifier compares candidate passwords against the configured secret.
type Verifier struct {
	hash []byte
	// prehashed is set when hash was made from the hex SHA-256 of the
	// password, which lifts bcrypt's 72 byte input limit.
	prehashed bool
}

// New returns a Verifier for a pre-computed bcrypt hash if one is given,
// otherwise for the plain password hashed with bcrypt.DefaultCost.
func New(password, hash string) (*Verifier, error) {
	if hash != "" {
		return FromHash(hash)
	}
	return FromPassword(password, bcrypt.DefaultCost)
}

// FromPassword hashes password with the given bcrypt cost. Passwords of any
// length are accepted.
func FromPassword(password string, cost int) (*Verifier, error) {
	if password == "" {
		return nil, fmt.Errorf("%w: empty password", common.ErrorInvalidConfig)
	}

	h, err := bcrypt.GenerateFromPassword(digest(password), cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	return &Verifier{hash: h, prehashed: true}, nil
}

// FromHash accepts an existing bcrypt hash of the plain password, e.g.
// produced by htpasswd -B.
func FromHash(hash string) (*Verifier, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, fmt.Errorf("%w: password hash: %v", common.ErrorInvalidConfig, err)
	}
	return &Verifier{hash: []byte(hash)}, nil
}

// Verify reports whether candidate matches the secret. An exact match is
// required: no trimming or case folding.
func (v *Verifier) Verify(candidate string) bool {
	in := []byte(candidate)
	if v.prehashed {
		in = digest(candidate)
	}
	return bcrypt.CompareHashAndPassword(v.hash, in) == nil
}

func digest(s string) []byte {
	sum := sha256.Sum256([]byte(s))
	return []byte(hex.EncodeToString(sum[:]))
}
