package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"reservation-engine/internal/domain"
	"reservation-engine/internal/models"
)

const waitlistColumns = `id, resource_id, user_id, desired_start, desired_end, status,
	converted_reservation_id, created_at, notified_at, updated_at`

func scanWaitlistEntry(row rowScanner) (*models.WaitlistEntry, error) {
	var (
		e                              models.WaitlistEntry
		start, end, createdAt, updated int64
		converted, notifiedAt          sql.NullInt64
	)
	err := row.Scan(&e.ID, &e.ResourceID, &e.UserID, &start, &end, &e.Status, &converted, &createdAt, &notifiedAt, &updated)
	if err != nil {
		return nil, err
	}
	e.DesiredStart = fromNanos(start)
	e.DesiredEnd = fromNanos(end)
	e.CreatedAt = fromNanos(createdAt)
	e.UpdatedAt = fromNanos(updated)
	e.NotifiedAt = timePtr(notifiedAt)
	if converted.Valid {
		id := converted.Int64
		e.ConvertedReservationID = &id
	}
	return &e, nil
}

func (db *DB) queryWaitlist(ctx context.Context, query string, args ...any) ([]*models.WaitlistEntry, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var out []*models.WaitlistEntry
	err = scanEach(rows, func(rows *sql.Rows) error {
		e, err := scanWaitlistEntry(rows)
		if err != nil {
			return err
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

func (db *DB) InsertWaitlistEntry(ctx context.Context, e *models.WaitlistEntry) error {
	if err := checkRange("desired_start", e.Interval()); err != nil {
		return err
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	result, err := db.ExecContext(ctx,
		`INSERT INTO waitlist_entries (resource_id, user_id, desired_start, desired_end, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ResourceID, e.UserID, toNanos(e.DesiredStart), toNanos(e.DesiredEnd), e.Status, toNanos(e.CreatedAt), toNanos(e.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert waitlist entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	e.ID = id
	return nil
}

func (db *DB) GetWaitlistEntry(ctx context.Context, id int64) (*models.WaitlistEntry, error) {
	row := db.QueryRowContext(ctx, `SELECT `+waitlistColumns+` FROM waitlist_entries WHERE id = ?`, id)
	e, err := scanWaitlistEntry(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get waitlist entry %d: %w", id, notFound(err))
	}
	return e, nil
}

func (db *DB) ListWaiting(ctx context.Context, resourceID int64) ([]*models.WaitlistEntry, error) {
	out, err := db.queryWaitlist(ctx,
		`SELECT `+waitlistColumns+` FROM waitlist_entries
		 WHERE resource_id = ? AND status = ? ORDER BY created_at, id`,
		resourceID, models.WaitlistWaiting)
	if err != nil {
		return nil, fmt.Errorf("failed to list waiting entries: %w", err)
	}
	return out, nil
}

func (db *DB) ListNotifiedBefore(ctx context.Context, cutoff time.Time) ([]*models.WaitlistEntry, error) {
	out, err := db.queryWaitlist(ctx,
		`SELECT `+waitlistColumns+` FROM waitlist_entries
		 WHERE status = ? AND notified_at < ? ORDER BY notified_at, id`,
		models.WaitlistNotified, toNanos(cutoff))
	if err != nil {
		return nil, fmt.Errorf("failed to list notified entries: %w", err)
	}
	return out, nil
}

func (db *DB) ListWaitlistByUser(ctx context.Context, userID int64) ([]*models.WaitlistEntry, error) {
	out, err := db.queryWaitlist(ctx,
		`SELECT `+waitlistColumns+` FROM waitlist_entries WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list waitlist entries of user %d: %w", userID, err)
	}
	return out, nil
}

// UpdateWaitlistStatus moves id from -> to. Moving to notified stamps
// notified_at, moving back to waiting clears it.
func (db *DB) UpdateWaitlistStatus(ctx context.Context, id int64, from, to models.WaitlistStatus, at time.Time, convertedID *int64) error {
	var converted sql.NullInt64
	if convertedID != nil {
		converted = sql.NullInt64{Int64: *convertedID, Valid: true}
	}
	result, err := db.ExecContext(ctx,
		`UPDATE waitlist_entries SET
			status = ?,
			updated_at = ?,
			notified_at = CASE ? WHEN 'notified' THEN ? WHEN 'waiting' THEN NULL ELSE notified_at END,
			converted_reservation_id = COALESCE(?, converted_reservation_id)
		 WHERE id = ? AND status = ?`,
		to, toNanos(at), string(to), toNanos(at), converted, id, from)
	if err != nil {
		return fmt.Errorf("failed to update waitlist entry: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	if _, err := db.GetWaitlistEntry(ctx, id); err != nil {
		return err
	}
	return domain.ErrStoreContention
}
