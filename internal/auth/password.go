package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

var ErrEmptyPassword = errors.New("password is empty")

// Hasher hashes passwords with bcrypt after mixing in a server-side pepper.
// The pepper is configuration and is never stored with the hash.
type Hasher struct {
	pepper []byte
	cost   int
}

func NewHasher(pepper string) *Hasher {
	return &Hasher{pepper: []byte(pepper), cost: bcrypt.DefaultCost}
}

// peppered returns hex(HMAC-SHA256(pepper, password)). The hex form keeps
// the input well under bcrypt's 72 byte limit regardless of password length.
func (h *Hasher) peppered(password string) []byte {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(password))
	return []byte(hex.EncodeToString(mac.Sum(nil)))
}

func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	hash, err := bcrypt.GenerateFromPassword(h.peppered(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether password matches hash.
func (h *Hasher) Verify(hash, password string) bool {
	if hash == "" || password == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), h.peppered(password)) == nil
}
