package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const defaultDeliveryLimit = 50

// SQLiteDeliveryStore implements DeliveryStore backed by SQLite.
type SQLiteDeliveryStore struct {
	db *sql.DB
}

// NewSQLiteDeliveryStore returns a new SQLiteDeliveryStore.
func NewSQLiteDeliveryStore(db *sql.DB) *SQLiteDeliveryStore {
	return &SQLiteDeliveryStore{db: db}
}

// CreateDelivery inserts a delivery record into the database.
func (s *SQLiteDeliveryStore) CreateDelivery(ctx context.Context, rec *DeliveryRecord) error {
	data, err := encodeData(rec.Data)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_deliveries
		    (notifiable_type, notifiable_id, template_id, channel, data, status, message, sent_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.NotifiableType, rec.NotifiableID, rec.TemplateID, rec.Channel,
		data, rec.Status, rec.Message, nullTime(rec.SentAt), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting delivery record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading delivery id: %w", err)
	}
	rec.ID = id
	return nil
}

// UpdateDelivery writes the record's status, message, sent_at and data. Only
// pending or sending rows are touched, so a terminal status is written once.
func (s *SQLiteDeliveryStore) UpdateDelivery(ctx context.Context, rec *DeliveryRecord) error {
	data, err := encodeData(rec.Data)
	if err != nil {
		return err
	}
	updatedAt := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
		UPDATE notification_deliveries
		SET status = ?, message = ?, sent_at = ?, data = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)`,
		rec.Status, rec.Message, nullTime(rec.SentAt), data, updatedAt, rec.ID,
		DeliveryPending, DeliverySending,
	)
	if err != nil {
		return fmt.Errorf("updating delivery %d: %w", rec.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 1 {
		rec.UpdatedAt = updatedAt
		return nil
	}

	var current DeliveryStatus
	err = s.db.QueryRowContext(ctx,
		`SELECT status FROM notification_deliveries WHERE id = ?`, rec.ID,
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("delivery %d not found", rec.ID)
	}
	if err != nil {
		return fmt.Errorf("reading delivery %d status: %w", rec.ID, err)
	}
	return fmt.Errorf("%w: delivery %d is %s", ErrDeliveryFinalized, rec.ID, current)
}

// GetDelivery returns the record with the given id, or nil if not found.
func (s *SQLiteDeliveryStore) GetDelivery(ctx context.Context, id int64) (*DeliveryRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+deliveryColumns+`
		FROM notification_deliveries WHERE id = ?`, id)

	rec, err := scanDelivery(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting delivery %d: %w", id, err)
	}
	return rec, nil
}

// ListDeliveries returns records matching filter ordered by id descending.
func (s *SQLiteDeliveryStore) ListDeliveries(ctx context.Context, filter DeliveryFilter) ([]*DeliveryRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultDeliveryLimit
	}

	var where []string
	var args []any
	if filter.NotifiableType != "" {
		where = append(where, "notifiable_type = ?")
		args = append(args, filter.NotifiableType)
	}
	if filter.NotifiableID != 0 {
		where = append(where, "notifiable_id = ?")
		args = append(args, filter.NotifiableID)
	}
	if filter.TemplateID != 0 {
		where = append(where, "template_id = ?")
		args = append(args, filter.TemplateID)
	}
	if filter.Channel != "" {
		where = append(where, "channel = ?")
		args = append(args, filter.Channel)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.AfterID > 0 {
		where = append(where, "id > ?")
		args = append(args, filter.AfterID)
	}

	query := `SELECT ` + deliveryColumns + ` FROM notification_deliveries`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying deliveries: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	records := make([]*DeliveryRecord, 0)
	for rows.Next() {
		rec, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating delivery rows: %w", err)
	}
	return records, nil
}

const deliveryColumns = `id, notifiable_type, notifiable_id, template_id, channel, data,
	status, message, sent_at, created_at, updated_at`

func scanDelivery(row rowScanner) (*DeliveryRecord, error) {
	rec := &DeliveryRecord{}
	var data string
	var sentAt sql.NullTime
	if err := row.Scan(&rec.ID, &rec.NotifiableType, &rec.NotifiableID, &rec.TemplateID,
		&rec.Channel, &data, &rec.Status, &rec.Message, &sentAt,
		&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &rec.Data); err != nil {
		return nil, fmt.Errorf("decoding data of delivery %d: %w", rec.ID, err)
	}
	if sentAt.Valid {
		t := sentAt.Time
		rec.SentAt = &t
	}
	return rec, nil
}

func encodeData(data map[string]any) (string, error) {
	if data == nil {
		return "{}", nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encoding delivery data: %w", err)
	}
	return string(b), nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// FailStale marks records still pending or sending whose last update is
// before cutoff as failed with message, and returns the updated records.
func (s *SQLiteDeliveryStore) FailStale(ctx context.Context, cutoff time.Time, message string) ([]*DeliveryRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+deliveryColumns+`
		FROM notification_deliveries
		WHERE status IN (?, ?)
		ORDER BY id`, DeliveryPending, DeliverySending)
	if err != nil {
		return nil, fmt.Errorf("querying unfinished deliveries: %w", err)
	}
	var stale []*DeliveryRecord
	for rows.Next() {
		rec, err := scanDelivery(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scanning delivery row: %w", err)
		}
		if rec.UpdatedAt.Before(cutoff) {
			stale = append(stale, rec)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("iterating delivery rows: %w", err)
	}
	_ = rows.Close()

	failed := make([]*DeliveryRecord, 0, len(stale))
	for _, rec := range stale {
		now := time.Now().UTC()
		res, err := s.db.ExecContext(ctx, `
			UPDATE notification_deliveries
			SET status = ?, message = ?, updated_at = ?
			WHERE id = ? AND status IN (?, ?)`,
			DeliveryFailed, message, now, rec.ID, DeliveryPending, DeliverySending,
		)
		if err != nil {
			return failed, fmt.Errorf("failing delivery %d: %w", rec.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		rec.Status = DeliveryFailed
		rec.Message = message
		rec.UpdatedAt = now
		failed = append(failed, rec)
	}
	return failed, nil
}
