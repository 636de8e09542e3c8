package session

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

const (
	tokenBytes     = 32
	sessionIDBytes = 16
	csrfBytes      = 32
)

// TokenLength is the length of an encoded session token.
var TokenLength = base64.RawURLEncoding.EncodedLen(tokenBytes)

// maxTokenLength bounds what is hashed and sent to storage.
const maxTokenLength = 256

func randomBytes(r io.Reader, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("read random bytes: %w", err)
	}
	return b, nil
}

func newToken(r io.Reader) (string, error) {
	b, err := randomBytes(r, tokenBytes)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func newSessionID(r io.Reader) (string, error) {
	b, err := randomBytes(r, sessionIDBytes)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func newCSRFSecret(r io.Reader) ([32]byte, error) {
	var out [32]byte
	b, err := randomBytes(r, csrfBytes)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

// WellFormed is the cheap format check applied before any storage access:
// non-empty, bounded length, base64url alphabet. Tokens that pass but were
// never issued simply miss in storage.
func WellFormed(token string) bool {
	if token == "" || len(token) > maxTokenLength {
		return false
	}
	for i := 0; i < len(token); i++ {
		c := token[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return false
		}
	}
	return true
}

// HashToken returns the storage key material for token.
func HashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}

func hashHex(h [32]byte) string {
	return hex.EncodeToString(h[:])
}
