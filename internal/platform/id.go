package platform

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

const shortIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

func NewID() string {
	return uuid.New().String()
}

// NewSuffix returns an 8-character hex suffix used to keep per-tenant
// resource names unique on the platform.
func NewSuffix() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// NewSecret returns an n-character random secret from a lowercase
// alphanumeric alphabet, suitable for generated database passwords.
func NewSecret(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand: " + err.Error())
	}
	for i := range b {
		b[i] = shortIDAlphabet[b[i]%byte(len(shortIDAlphabet))]
	}
	return string(b)
}
