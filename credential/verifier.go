package credential

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/gatekeeper/permission"
)

// ErrInvalidCredentials is the single failure for unknown identifiers and
// wrong secrets.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrUserNotFound is returned by directory mutations on unknown users.
var ErrUserNotFound = errors.New("user not found")

// UserRecord is what the user directory exposes to the auth core.
type UserRecord struct {
	ID           string
	Identifier   string
	Role         permission.Role
	PasswordHash string
}

// Directory looks users up by login identifier. Lookups must be
// case-insensitive. A missing user is (UserRecord{}, false, nil).
type Directory interface {
	FindUserByIdentifier(ctx context.Context, identifier string) (UserRecord, bool, error)
}

// RoleUpdater is implemented by directories that can change a user's role.
type RoleUpdater interface {
	UpdateRole(ctx context.Context, userID string, role permission.Role) error
}

// Verifier checks identifier/secret pairs against a [Directory].
type Verifier struct {
	dir    Directory
	hasher *Hasher
	dummy  string
}

// NewVerifier creates a [Verifier]. It computes one dummy hash with the
// hasher's parameters so unknown identifiers cost the same as known ones.
func NewVerifier(dir Directory, hasher *Hasher) (*Verifier, error) {
	if dir == nil {
		return nil, errors.New("credential: nil directory")
	}
	if hasher == nil {
		return nil, errors.New("credential: nil hasher")
	}
	seed := make([]byte, 24)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	dummy, err := hasher.Hash(base64.RawURLEncoding.EncodeToString(seed))
	if err != nil {
		return nil, err
	}
	return &Verifier{dir: dir, hasher: hasher, dummy: dummy}, nil
}

// Hasher returns the hasher used for verification.
func (v *Verifier) Hasher() *Hasher {
	return v.hasher
}

// Verify returns the matching user or [ErrInvalidCredentials]. Directory
// failures are returned wrapped and are not credential failures.
func (v *Verifier) Verify(ctx context.Context, identifier, secret string) (UserRecord, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" || secret == "" {
		return UserRecord{}, ErrInvalidCredentials
	}

	user, found, err := v.dir.FindUserByIdentifier(ctx, identifier)
	if err != nil {
		return UserRecord{}, fmt.Errorf("credential: directory lookup: %w", err)
	}

	if !found {
		_, _ = v.hasher.Verify(secret, v.dummy)
		return UserRecord{}, ErrInvalidCredentials
	}

	ok, err := v.hasher.Verify(secret, user.PasswordHash)
	if err != nil || !ok || !user.Role.Valid() {
		return UserRecord{}, ErrInvalidCredentials
	}
	return user, nil
}
