package csrf

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"

	"github.com/MrEthical07/gatekeeper/session"
)

// ErrMismatch is returned when the supplied token is missing or wrong.
var ErrMismatch = errors.New("csrf token mismatch")

const derivationLabel = "gatekeeper-csrf-v1:"

// Issue returns the CSRF token for sc.
func Issue(sc session.Context) string {
	return base64.RawURLEncoding.EncodeToString(derive(sc))
}

// Verify checks supplied against the token derived for sc in constant time.
func Verify(sc session.Context, supplied string) error {
	if supplied == "" {
		return ErrMismatch
	}
	got, err := base64.RawURLEncoding.DecodeString(supplied)
	if err != nil {
		return ErrMismatch
	}
	if subtle.ConstantTimeCompare(got, derive(sc)) != 1 {
		return ErrMismatch
	}
	return nil
}

// Mutating reports whether an HTTP method changes state and therefore
// requires a CSRF token.
func Mutating(method string) bool {
	switch method {
	case "GET", "HEAD", "OPTIONS", "TRACE":
		return false
	}
	return true
}

func derive(sc session.Context) []byte {
	mac := hmac.New(sha256.New, sc.CSRFSecret[:])
	mac.Write([]byte(derivationLabel))
	mac.Write([]byte(sc.SessionID))
	return mac.Sum(nil)
}
