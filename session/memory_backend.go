package session

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend keeps sessions in process memory behind one mutex. It suits
// tests and single-process deployments.
type MemoryBackend struct {
	mu     sync.Mutex
	byHash map[[32]byte]*Session
	byUser map[string][][32]byte
}

// NewMemoryBackend creates an empty [MemoryBackend].
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		byHash: make(map[[32]byte]*Session),
		byUser: make(map[string][][32]byte),
	}
}

// Insert implements [Backend].
func (m *MemoryBackend) Insert(ctx context.Context, s *Session, maxPerUser int, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	hashes := m.byUser[s.UserID]
	live := hashes[:0]
	for _, h := range hashes {
		sess, ok := m.byHash[h]
		if !ok {
			continue
		}
		if sess.Expired(now) {
			delete(m.byHash, h)
			continue
		}
		live = append(live, h)
	}

	evicted := 0
	for maxPerUser > 0 && len(live) >= maxPerUser {
		delete(m.byHash, live[0])
		live = live[1:]
		evicted++
	}

	c := *s
	m.byHash[s.TokenHash] = &c
	m.byUser[s.UserID] = append(live, s.TokenHash)
	return evicted, nil
}

// Lookup implements [Backend].
func (m *MemoryBackend) Lookup(ctx context.Context, tokenHash [32]byte, now time.Time) (*Session, Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, StatusNotFound, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.byHash[tokenHash]
	if !ok {
		return nil, StatusNotFound, nil
	}
	if sess.Expired(now) {
		m.deleteLocked(tokenHash, sess.UserID)
		return nil, StatusExpired, nil
	}
	sess.LastAccessedAt = now
	c := *sess
	return &c, StatusActive, nil
}

// Delete implements [Backend].
func (m *MemoryBackend) Delete(ctx context.Context, tokenHash [32]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if sess, ok := m.byHash[tokenHash]; ok {
		m.deleteLocked(tokenHash, sess.UserID)
	}
	return nil
}

// DeleteUser implements [Backend].
func (m *MemoryBackend) DeleteUser(ctx context.Context, userID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, h := range m.byUser[userID] {
		if _, ok := m.byHash[h]; ok {
			delete(m.byHash, h)
			removed++
		}
	}
	delete(m.byUser, userID)
	return removed, nil
}

// DeleteExpired implements [Backend].
func (m *MemoryBackend) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for h, sess := range m.byHash {
		if sess.Expired(now) {
			m.deleteLocked(h, sess.UserID)
			removed++
		}
	}
	return removed, nil
}

// List implements [Backend].
func (m *MemoryBackend) List(ctx context.Context, userID string, now time.Time) ([]*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Session
	for _, h := range m.byUser[userID] {
		sess, ok := m.byHash[h]
		if !ok || sess.Expired(now) {
			continue
		}
		c := *sess
		out = append(out, &c)
	}
	return out, nil
}

func (m *MemoryBackend) deleteLocked(tokenHash [32]byte, userID string) {
	delete(m.byHash, tokenHash)
	hashes := m.byUser[userID]
	for i, h := range hashes {
		if h == tokenHash {
			hashes = append(hashes[:i], hashes[i+1:]...)
			break
		}
	}
	if len(hashes) == 0 {
		delete(m.byUser, userID)
		return
	}
	m.byUser[userID] = hashes
}
