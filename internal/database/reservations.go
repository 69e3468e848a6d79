package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reservation-engine/internal/domain"
	"reservation-engine/internal/interval"
	"reservation-engine/internal/models"
)

const reservationColumns = `id, resource_id, requester_id, start_at, end_at, status, notes, created_at, updated_at, version`

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var (
		r                                models.Reservation
		start, end, createdAt, updatedAt int64
	)
	err := row.Scan(&r.ID, &r.ResourceID, &r.RequesterID, &start, &end, &r.Status, &r.Notes, &createdAt, &updatedAt, &r.Version)
	if err != nil {
		return nil, err
	}
	if !r.Status.Valid() {
		return nil, fmt.Errorf("reservation %d has unknown status %q", r.ID, r.Status)
	}
	r.Start = fromNanos(start)
	r.End = fromNanos(end)
	r.CreatedAt = fromNanos(createdAt)
	r.UpdatedAt = fromNanos(updatedAt)
	return &r, nil
}

func (db *DB) queryReservations(ctx context.Context, query string, args ...any) ([]*models.Reservation, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var out []*models.Reservation
	err = scanEach(rows, func(rows *sql.Rows) error {
		r, err := scanReservation(rows)
		if err != nil {
			return err
		}
		out = append(out, r)
		return nil
	})
	return out, err
}

func statusArgs(statuses []models.ReservationStatus) []any {
	out := make([]any, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

func (db *DB) GetReservation(ctx context.Context, id int64) (*models.Reservation, error) {
	row := db.QueryRowContext(ctx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	r, err := scanReservation(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation %d: %w", id, notFound(err))
	}
	return r, nil
}

// InsertReservation re-checks overlap with the blocking reservations of the
// resource, padded by buffer, inside the insert transaction.
func (db *DB) InsertReservation(ctx context.Context, r *models.Reservation, blocking []models.ReservationStatus, buffer time.Duration) error {
	if err := checkRange("start", r.Interval().Pad(buffer)); err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if len(blocking) > 0 {
		padded := r.Interval().Pad(buffer)
		args := append([]any{r.ResourceID, toNanos(padded.End), toNanos(padded.Start)}, statusArgs(blocking)...)
		var conflicting int64
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM reservations
			 WHERE resource_id = ? AND start_at < ? AND end_at > ? AND status IN (`+placeholders(len(blocking))+`)
			 LIMIT 1`, args...).Scan(&conflicting)
		switch {
		case err == nil:
			return &domain.SlotUnavailableError{ResourceID: r.ResourceID, Interval: r.Interval(), Reason: domain.ReasonConflict}
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to check conflicts in tx: %w", err)
		}
	}

	if r.UpdatedAt.IsZero() {
		r.UpdatedAt = r.CreatedAt
	}
	result, err := tx.ExecContext(ctx,
		`INSERT INTO reservations (resource_id, requester_id, start_at, end_at, status, notes, created_at, updated_at, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		r.ResourceID, r.RequesterID, toNanos(r.Start), toNanos(r.End), r.Status, r.Notes, toNanos(r.CreatedAt), toNanos(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert reservation in tx: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit reservation: %w", err)
	}

	r.ID = id
	r.Version = 1
	return nil
}

// UpdateReservationStatus moves id from -> to. It fails with
// domain.ErrStoreContention when the stored status is no longer from.
func (db *DB) UpdateReservationStatus(ctx context.Context, id int64, from, to models.ReservationStatus, at time.Time) error {
	result, err := db.ExecContext(ctx,
		`UPDATE reservations SET status = ?, updated_at = ?, version = version + 1 WHERE id = ? AND status = ?`,
		to, toNanos(at), id, from)
	if err != nil {
		return fmt.Errorf("failed to update reservation status: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	var exists int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations WHERE id = ?`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check reservation %d: %w", id, err)
	}
	if exists == 0 {
		return domain.ErrNotFound
	}
	return domain.ErrStoreContention
}

func (db *DB) ListBlocking(ctx context.Context, resourceID int64, window interval.Interval, statuses []models.ReservationStatus) ([]*models.Reservation, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := append([]any{resourceID, toNanos(window.End), toNanos(window.Start)}, statusArgs(statuses)...)
	out, err := db.queryReservations(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE resource_id = ? AND start_at < ? AND end_at > ? AND status IN (`+placeholders(len(statuses))+`)
		 ORDER BY start_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list blocking reservations: %w", err)
	}
	return out, nil
}

func (db *DB) ListDueForCompletion(ctx context.Context, now time.Time, limit int) ([]*models.Reservation, error) {
	if limit <= 0 {
		limit = -1
	}
	out, err := db.queryReservations(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE status = ? AND end_at <= ? ORDER BY end_at, id LIMIT ?`,
		models.StatusApproved, toNanos(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations due for completion: %w", err)
	}
	return out, nil
}

func (db *DB) ListByRequester(ctx context.Context, requesterID int64) ([]*models.Reservation, error) {
	out, err := db.queryReservations(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE requester_id = ? ORDER BY start_at, id`, requesterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reservations of requester %d: %w", requesterID, err)
	}
	return out, nil
}

func (db *DB) ListByStatus(ctx context.Context, status models.ReservationStatus) ([]*models.Reservation, error) {
	out, err := db.queryReservations(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE status = ? ORDER BY start_at, id`, status)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s reservations: %w", status, err)
	}
	return out, nil
}

func (db *DB) AppendApprovalAction(ctx context.Context, a *models.ApprovalAction) error {
	result, err := db.ExecContext(ctx,
		`INSERT INTO approval_actions (reservation_id, approver_id, action, comment, created_at) VALUES (?, ?, ?, ?, ?)`,
		a.ReservationID, a.ApproverID, a.Action, a.Comment, toNanos(a.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to append approval action: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	a.ID = id
	return nil
}

func (db *DB) ListApprovalActions(ctx context.Context, reservationID int64) ([]*models.ApprovalAction, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, reservation_id, approver_id, action, comment, created_at FROM approval_actions
		 WHERE reservation_id = ? ORDER BY created_at, id`, reservationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list approval actions: %w", err)
	}
	var out []*models.ApprovalAction
	err = scanEach(rows, func(rows *sql.Rows) error {
		var (
			a         models.ApprovalAction
			createdAt int64
		)
		if err := rows.Scan(&a.ID, &a.ReservationID, &a.ApproverID, &a.Action, &a.Comment, &createdAt); err != nil {
			return err
		}
		a.CreatedAt = fromNanos(createdAt)
		out = append(out, &a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan approval actions: %w", err)
	}
	return out, nil
}
