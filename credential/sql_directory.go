package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/gatekeeper/permission"
)

// SQLDirectory reads users from the users table of the embedded SQLite
// schema. The identifier column is COLLATE NOCASE.
type SQLDirectory struct {
	db *sql.DB
}

// NewSQLDirectory creates a [SQLDirectory].
func NewSQLDirectory(db *sql.DB) *SQLDirectory {
	return &SQLDirectory{db: db}
}

// FindUserByIdentifier implements [Directory].
func (d *SQLDirectory) FindUserByIdentifier(ctx context.Context, identifier string) (UserRecord, bool, error) {
	var (
		rec  UserRecord
		role string
	)
	err := d.db.QueryRowContext(ctx,
		"SELECT id, identifier, role, password_hash FROM users WHERE identifier = ?",
		strings.TrimSpace(identifier),
	).Scan(&rec.ID, &rec.Identifier, &role, &rec.PasswordHash)
	if errors.Is(err, sql.ErrNoRows) {
		return UserRecord{}, false, nil
	}
	if err != nil {
		return UserRecord{}, false, fmt.Errorf("query user: %w", err)
	}

	r, err := permission.ParseRole(role)
	if err != nil {
		return UserRecord{}, false, fmt.Errorf("user %s: %w", rec.ID, err)
	}
	rec.Role = r
	return rec, true, nil
}

// CreateUser inserts rec.
func (d *SQLDirectory) CreateUser(ctx context.Context, rec UserRecord) error {
	if rec.ID == "" || strings.TrimSpace(rec.Identifier) == "" {
		return errors.New("credential: user id and identifier are required")
	}
	if !rec.Role.Valid() {
		return permission.ErrUnknownRole
	}
	_, err := d.db.ExecContext(ctx,
		"INSERT INTO users (id, identifier, role, password_hash, created_at) VALUES (?, ?, ?, ?, ?)",
		rec.ID, strings.TrimSpace(rec.Identifier), rec.Role.String(), rec.PasswordHash, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// UpdateRole implements [RoleUpdater].
func (d *SQLDirectory) UpdateRole(ctx context.Context, userID string, role permission.Role) error {
	if !role.Valid() {
		return permission.ErrUnknownRole
	}
	res, err := d.db.ExecContext(ctx, "UPDATE users SET role = ? WHERE id = ?", role.String(), userID)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}
