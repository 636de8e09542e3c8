package credential

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/MrEthical07/gatekeeper/permission"
)

// MemoryDirectory is an in-process [Directory] keyed by lower-cased identifier.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]UserRecord
}

// NewMemoryDirectory creates an empty [MemoryDirectory].
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{users: make(map[string]UserRecord)}
}

// Add stores rec, rejecting duplicate identifiers.
func (d *MemoryDirectory) Add(rec UserRecord) error {
	key := strings.ToLower(strings.TrimSpace(rec.Identifier))
	if key == "" || rec.ID == "" {
		return errors.New("credential: user id and identifier are required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.users[key]; exists {
		return errors.New("credential: identifier already registered")
	}
	d.users[key] = rec
	return nil
}

// FindUserByIdentifier implements [Directory].
func (d *MemoryDirectory) FindUserByIdentifier(_ context.Context, identifier string) (UserRecord, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	rec, ok := d.users[strings.ToLower(strings.TrimSpace(identifier))]
	return rec, ok, nil
}

// UpdateRole implements [RoleUpdater].
func (d *MemoryDirectory) UpdateRole(_ context.Context, userID string, role permission.Role) error {
	if !role.Valid() {
		return permission.ErrUnknownRole
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, rec := range d.users {
		if rec.ID == userID {
			rec.Role = role
			d.users[key] = rec
			return nil
		}
	}
	return ErrUserNotFound
}
