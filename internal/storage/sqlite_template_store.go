package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SQLiteTemplateStore implements TemplateStore backed by SQLite.
type SQLiteTemplateStore struct {
	db *sql.DB
}

// NewSQLiteTemplateStore returns a new SQLiteTemplateStore.
func NewSQLiteTemplateStore(db *sql.DB) *SQLiteTemplateStore {
	return &SQLiteTemplateStore{db: db}
}

const templateColumns = `id, code, name, status, channels, variables, content, created_at, updated_at`

// ListEnabledByCode returns enabled templates for code ordered by id.
func (s *SQLiteTemplateStore) ListEnabledByCode(ctx context.Context, code string) ([]*Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+templateColumns+`
		FROM notification_templates
		WHERE code = ? AND status = ?
		ORDER BY id ASC`, code, TemplateEnabled)
	if err != nil {
		return nil, fmt.Errorf("listing templates for code %q: %w", code, err)
	}
	defer rows.Close() //nolint:errcheck

	return collectTemplates(rows)
}

// ListTemplates returns all templates, filtered by code when non-empty.
func (s *SQLiteTemplateStore) ListTemplates(ctx context.Context, code string) ([]*Template, error) {
	query := `SELECT ` + templateColumns + ` FROM notification_templates`
	args := []any{}
	if code != "" {
		query += ` WHERE code = ?`
		args = append(args, code)
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	return collectTemplates(rows)
}

// GetTemplate returns the template with the given id, or nil if not found.
func (s *SQLiteTemplateStore) GetTemplate(ctx context.Context, id int64) (*Template, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+templateColumns+`
		FROM notification_templates WHERE id = ?`, id)

	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting template %d: %w", id, err)
	}
	return t, nil
}

// CreateTemplate inserts t and assigns its generated ID.
func (s *SQLiteTemplateStore) CreateTemplate(ctx context.Context, t *Template) error {
	if t.Status == "" {
		t.Status = TemplateEnabled
	}
	channels, err := json.Marshal(nonNilStrings(t.Channels))
	if err != nil {
		return fmt.Errorf("encoding template channels: %w", err)
	}
	variables, err := json.Marshal(nonNilStrings(t.Variables))
	if err != nil {
		return fmt.Errorf("encoding template variables: %w", err)
	}
	if t.Content == nil {
		t.Content = map[string]string{}
	}
	content, err := json.Marshal(t.Content)
	if err != nil {
		return fmt.Errorf("encoding template content: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_templates (code, name, status, channels, variables, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.Code, t.Name, t.Status, string(channels), string(variables), string(content), now, now,
	)
	if err != nil {
		return fmt.Errorf("inserting template %q: %w", t.Code, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading template id: %w", err)
	}
	t.ID = id
	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

// SetTemplateStatus updates the status of a template.
func (s *SQLiteTemplateStore) SetTemplateStatus(ctx context.Context, id int64, status TemplateStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notification_templates SET status = ?, updated_at = ? WHERE id = ?`,
		status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating template %d status: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("template %d not found", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (*Template, error) {
	t := &Template{}
	var channels, variables, content string
	if err := row.Scan(&t.ID, &t.Code, &t.Name, &t.Status, &channels, &variables,
		&content, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(channels), &t.Channels); err != nil {
		return nil, fmt.Errorf("decoding channels of template %d: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(variables), &t.Variables); err != nil {
		return nil, fmt.Errorf("decoding variables of template %d: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(content), &t.Content); err != nil {
		return nil, fmt.Errorf("decoding content of template %d: %w", t.ID, err)
	}
	return t, nil
}

func collectTemplates(rows *sql.Rows) ([]*Template, error) {
	templates := make([]*Template, 0)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning template row: %w", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating template rows: %w", err)
	}
	return templates, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
