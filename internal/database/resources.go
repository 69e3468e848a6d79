package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"reservation-engine/internal/models"
)

const resourceColumns = `id, name, owner_type, owner_id, approval_required, availability_mode, status,
	time_zone, min_duration, max_duration, advance_days, buffer, created_at, updated_at`

// PutResource inserts or replaces a catalog entry together with its weekly
// rules and blackouts. Overlapping blackouts are merged before storing.
func (db *DB) PutResource(ctx context.Context, res *models.Resource) error {
	now := time.Now().UTC()
	if res.CreatedAt.IsZero() {
		res.CreatedAt = now
	}
	res.UpdatedAt = now
	if res.Mode == "" {
		res.Mode = models.ModeOpen
	}
	if res.Status == "" {
		res.Status = models.ResourcePublished
	}
	tz := res.TimeZone
	if tz == "" {
		tz = "UTC"
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	query := `INSERT INTO resources (` + resourceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			owner_type = excluded.owner_type,
			owner_id = excluded.owner_id,
			approval_required = excluded.approval_required,
			availability_mode = excluded.availability_mode,
			status = excluded.status,
			time_zone = excluded.time_zone,
			min_duration = excluded.min_duration,
			max_duration = excluded.max_duration,
			advance_days = excluded.advance_days,
			buffer = excluded.buffer,
			updated_at = excluded.updated_at`
	_, err = tx.ExecContext(ctx, query,
		res.ID, res.Name, res.OwnerType, res.OwnerID, res.ApprovalRequired, res.Mode, res.Status,
		tz, int64(res.Policy.MinDuration), int64(res.Policy.MaxDuration), res.Policy.AdvanceDays, int64(res.Policy.Buffer),
		toNanos(res.CreatedAt), toNanos(res.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert resource %d: %w", res.ID, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM weekly_rules WHERE resource_id = ?`, res.ID); err != nil {
		return fmt.Errorf("failed to clear weekly rules: %w", err)
	}
	for _, rule := range res.Rules {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO weekly_rules (resource_id, kind, weekday, start_minute, end_minute) VALUES (?, ?, ?, ?, ?)`,
			res.ID, rule.Kind, int(rule.Weekday), rule.StartMinute, rule.EndMinute)
		if err != nil {
			return fmt.Errorf("failed to insert weekly rule: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM blackouts WHERE resource_id = ?`, res.ID); err != nil {
		return fmt.Errorf("failed to clear blackouts: %w", err)
	}
	for _, b := range models.NormalizeBlackouts(res.Blackouts) {
		if err := checkRange("blackouts", b.Interval()); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO blackouts (resource_id, start_at, end_at, reason) VALUES (?, ?, ?, ?)`,
			res.ID, toNanos(b.Start), toNanos(b.End), b.Reason)
		if err != nil {
			return fmt.Errorf("failed to insert blackout: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit resource %d: %w", res.ID, err)
	}
	return nil
}

func scanResource(row rowScanner) (*models.Resource, error) {
	var (
		res                    models.Resource
		minDur, maxDur, buffer int64
		createdAt, updatedAt   int64
	)
	err := row.Scan(&res.ID, &res.Name, &res.OwnerType, &res.OwnerID, &res.ApprovalRequired, &res.Mode, &res.Status,
		&res.TimeZone, &minDur, &maxDur, &res.Policy.AdvanceDays, &buffer, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	res.Policy.MinDuration = time.Duration(minDur)
	res.Policy.MaxDuration = time.Duration(maxDur)
	res.Policy.Buffer = time.Duration(buffer)
	res.CreatedAt = fromNanos(createdAt)
	res.UpdatedAt = fromNanos(updatedAt)
	return &res, nil
}

func (db *DB) GetResource(ctx context.Context, id int64) (*models.Resource, error) {
	row := db.QueryRowContext(ctx, `SELECT `+resourceColumns+` FROM resources WHERE id = ?`, id)
	res, err := scanResource(row)
	if err != nil {
		return nil, fmt.Errorf("failed to get resource %d: %w", id, notFound(err))
	}
	if err := db.loadCalendar(ctx, []*models.Resource{res}); err != nil {
		return nil, err
	}
	return res, nil
}

func (db *DB) ListResources(ctx context.Context) ([]*models.Resource, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+resourceColumns+` FROM resources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list resources: %w", err)
	}
	defer rows.Close()

	var out []*models.Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan resource: %w", err)
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate resources: %w", err)
	}
	rows.Close()

	if err := db.loadCalendar(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// loadCalendar attaches weekly rules and blackouts to the given resources.
func (db *DB) loadCalendar(ctx context.Context, resources []*models.Resource) error {
	if len(resources) == 0 {
		return nil
	}
	byID := make(map[int64]*models.Resource, len(resources))
	args := make([]any, 0, len(resources))
	for _, res := range resources {
		byID[res.ID] = res
		args = append(args, res.ID)
	}
	in := placeholders(len(args))

	rules, err := db.QueryContext(ctx,
		`SELECT resource_id, kind, weekday, start_minute, end_minute FROM weekly_rules
		 WHERE resource_id IN (`+in+`) ORDER BY resource_id, weekday, start_minute, id`, args...)
	if err != nil {
		return fmt.Errorf("failed to load weekly rules: %w", err)
	}
	err = scanEach(rules, func(rows *sql.Rows) error {
		var (
			resourceID int64
			weekday    int
			rule       models.WeeklyRule
		)
		if err := rows.Scan(&resourceID, &rule.Kind, &weekday, &rule.StartMinute, &rule.EndMinute); err != nil {
			return err
		}
		rule.Weekday = time.Weekday(weekday)
		byID[resourceID].Rules = append(byID[resourceID].Rules, rule)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan weekly rules: %w", err)
	}

	blackouts, err := db.QueryContext(ctx,
		`SELECT resource_id, start_at, end_at, reason FROM blackouts
		 WHERE resource_id IN (`+in+`) ORDER BY resource_id, start_at`, args...)
	if err != nil {
		return fmt.Errorf("failed to load blackouts: %w", err)
	}
	err = scanEach(blackouts, func(rows *sql.Rows) error {
		var (
			resourceID, start, end int64
			reason                 string
		)
		if err := rows.Scan(&resourceID, &start, &end, &reason); err != nil {
			return err
		}
		byID[resourceID].Blackouts = append(byID[resourceID].Blackouts, models.Blackout{
			Start: fromNanos(start), End: fromNanos(end), Reason: reason,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan blackouts: %w", err)
	}
	return nil
}

// scanEach calls fn for every row and closes rows.
func scanEach(rows *sql.Rows, fn func(*sql.Rows) error) error {
	defer rows.Close()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
