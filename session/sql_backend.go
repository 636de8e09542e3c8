package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/gatekeeper/internal/sqlite"
	"github.com/MrEthical07/gatekeeper/permission"
)

// SQLBackend stores sessions in the sessions table created by the embedded
// SQLite migrations. Insert runs in one write transaction; Lookup and
// Delete are single conditional statements, so no read-modify-write spans
// two round-trips without a guard.
type SQLBackend struct {
	db *sql.DB
}

// NewSQLBackend creates a [SQLBackend] over an open database.
func NewSQLBackend(db *sql.DB) *SQLBackend {
	return &SQLBackend{db: db}
}

const sessionColumns = "id, token_hash, user_id, role, csrf_secret, created_at, expires_at, last_accessed_at"

// Insert implements [Backend].
func (b *SQLBackend) Insert(ctx context.Context, s *Session, maxPerUser int, now time.Time) (int, error) {
	evicted := 0
	err := sqlite.WithTx(ctx, b.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM sessions WHERE user_id = ? AND expires_at <= ?",
			s.UserID, now.UnixMilli()); err != nil {
			return err
		}

		var count int
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sessions WHERE user_id = ?", s.UserID).Scan(&count); err != nil {
			return err
		}

		if maxPerUser > 0 && count >= maxPerUser {
			res, err := tx.ExecContext(ctx, `
				DELETE FROM sessions WHERE rowid IN (
					SELECT rowid FROM sessions WHERE user_id = ?
					ORDER BY created_at ASC, rowid ASC
					LIMIT ?
				)`, s.UserID, count-maxPerUser+1)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			evicted = int(n)
		}

		_, err := tx.ExecContext(ctx,
			"INSERT INTO sessions ("+sessionColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
			s.ID, s.TokenHash[:], s.UserID, int(s.Role), s.CSRFSecret[:],
			s.CreatedAt.UnixMilli(), s.ExpiresAt.UnixMilli(), s.LastAccessedAt.UnixMilli())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return evicted, nil
}

// Lookup implements [Backend]. Expiry deletion is an idempotent
// delete-if-expired, so concurrent validators of the same expired token all
// observe StatusExpired and none sees a storage error.
func (b *SQLBackend) Lookup(ctx context.Context, tokenHash [32]byte, now time.Time) (*Session, Status, error) {
	sess, err := scanSession(b.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE token_hash = ?", tokenHash[:]))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, StatusNotFound, nil
	}
	if err != nil {
		return nil, StatusNotFound, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}

	if sess.Expired(now) {
		if _, err := b.db.ExecContext(ctx,
			"DELETE FROM sessions WHERE token_hash = ? AND expires_at <= ?",
			tokenHash[:], now.UnixMilli()); err != nil {
			return nil, StatusNotFound, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		return nil, StatusExpired, nil
	}

	res, err := b.db.ExecContext(ctx,
		"UPDATE sessions SET last_accessed_at = ? WHERE token_hash = ? AND expires_at > ?",
		now.UnixMilli(), tokenHash[:], now.UnixMilli())
	if err != nil {
		return nil, StatusNotFound, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, StatusNotFound, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if n == 0 {
		// Deleted (logout, eviction) between the read and the touch.
		return nil, StatusNotFound, nil
	}
	sess.LastAccessedAt = now
	return sess, StatusActive, nil
}

// Delete implements [Backend].
func (b *SQLBackend) Delete(ctx context.Context, tokenHash [32]byte) error {
	if _, err := b.db.ExecContext(ctx, "DELETE FROM sessions WHERE token_hash = ?", tokenHash[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// DeleteUser implements [Backend].
func (b *SQLBackend) DeleteUser(ctx context.Context, userID string) (int, error) {
	res, err := b.db.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = ?", userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return int(n), nil
}

// DeleteExpired implements [Backend].
func (b *SQLBackend) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := b.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", now.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return int(n), nil
}

// List implements [Backend].
func (b *SQLBackend) List(ctx context.Context, userID string, now time.Time) ([]*Session, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE user_id = ? AND expires_at > ? ORDER BY created_at ASC, rowid ASC",
		userID, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		s                          Session
		tokenHash, csrfSecret      []byte
		role                       int
		created, expires, accessed int64
	)
	if err := row.Scan(&s.ID, &tokenHash, &s.UserID, &role, &csrfSecret, &created, &expires, &accessed); err != nil {
		return nil, err
	}
	if len(tokenHash) != len(s.TokenHash) || len(csrfSecret) != len(s.CSRFSecret) {
		return nil, ErrCorruptRecord
	}
	copy(s.TokenHash[:], tokenHash)
	copy(s.CSRFSecret[:], csrfSecret)
	s.Role = permission.Role(role)
	s.CreatedAt = time.UnixMilli(created)
	s.ExpiresAt = time.UnixMilli(expires)
	s.LastAccessedAt = time.UnixMilli(accessed)
	return &s, nil
}
