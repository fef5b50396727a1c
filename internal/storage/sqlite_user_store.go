package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLiteUserStore implements UserStore backed by SQLite.
type SQLiteUserStore struct {
	db *sql.DB
}

// NewSQLiteUserStore returns a new SQLiteUserStore.
func NewSQLiteUserStore(db *sql.DB) *SQLiteUserStore {
	return &SQLiteUserStore{db: db}
}

// GetUser returns the user with the given id, or nil if not found.
func (s *SQLiteUserStore) GetUser(ctx context.Context, id int64) (*User, error) {
	u := &User{}
	var optOuts string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, email, mobile, role, opt_outs, created_at
		FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Mobile, &u.Role, &optOuts, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user %d: %w", id, err)
	}
	if err := json.Unmarshal([]byte(optOuts), &u.OptOuts); err != nil {
		return nil, fmt.Errorf("decoding opt-outs of user %d: %w", id, err)
	}
	return u, nil
}

// CreateUser inserts u and assigns its generated ID.
func (s *SQLiteUserStore) CreateUser(ctx context.Context, u *User) error {
	if u.Role == "" {
		u.Role = RoleUser
	}
	optOuts, err := json.Marshal(nonNilStrings(u.OptOuts))
	if err != nil {
		return fmt.Errorf("encoding opt-outs: %w", err)
	}
	u.CreatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO users (name, email, mobile, role, opt_outs, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.Name, u.Email, u.Mobile, u.Role, string(optOuts), u.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading user id: %w", err)
	}
	u.ID = id
	return nil
}
