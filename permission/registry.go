package permission

import (
	"errors"
	"sync"
)

// Registry maps permission names ("resource:action") to bit positions in a
// [Mask]. The top bit is reserved for the root permission.
type Registry struct {
	mu        sync.RWMutex
	nameToBit map[string]int
	bitToName map[int]string
	frozen    bool
}

// NewRegistry creates an empty permission [Registry].
func NewRegistry() *Registry {
	return &Registry{
		nameToBit: make(map[string]int),
		bitToName: make(map[int]string),
	}
}

// Name joins a resource and an action into a permission name.
func Name(resource, action string) string {
	return resource + ":" + action
}

// Register assigns the next available bit to the named permission.
// Registering an existing name returns its bit. Must be called before
// [Registry.Freeze].
func (r *Registry) Register(name string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return -1, errors.New("permission name cannot be empty")
	}
	if bit, exists := r.nameToBit[name]; exists {
		return bit, nil
	}
	if r.frozen {
		return -1, errors.New("registry frozen")
	}

	nextBit := len(r.nameToBit)
	if nextBit >= rootBit {
		return -1, errors.New("permission limit exceeded (root bit reserved)")
	}

	r.nameToBit[name] = nextBit
	r.bitToName[nextBit] = name
	return nextBit, nil
}

// Bit returns the bit index for the named permission, or false if not registered.
func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bit, ok := r.nameToBit[name]
	return bit, ok
}

// Name returns the permission name for the given bit index, or false if unassigned.
func (r *Registry) Name(bit int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.bitToName[bit]
	return name, ok
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Count returns the number of registered permissions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nameToBit)
}
