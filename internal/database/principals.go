package database

import (
	"context"
	"fmt"
	"time"

	"reservation-engine/internal/models"
)

func (db *DB) PutPrincipal(ctx context.Context, p *models.Principal) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	query := `INSERT INTO principals (id, role, display_name, telegram_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			role = excluded.role,
			display_name = excluded.display_name,
			telegram_id = excluded.telegram_id,
			updated_at = excluded.updated_at`
	_, err := db.ExecContext(ctx, query, p.ID, p.Role, p.DisplayName, p.TelegramID, toNanos(p.CreatedAt), toNanos(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to upsert principal %d: %w", p.ID, err)
	}
	return nil
}

func (db *DB) GetPrincipal(ctx context.Context, id int64) (*models.Principal, error) {
	var (
		p                    models.Principal
		createdAt, updatedAt int64
	)
	err := db.QueryRowContext(ctx,
		`SELECT id, role, display_name, telegram_id, created_at, updated_at FROM principals WHERE id = ?`, id).
		Scan(&p.ID, &p.Role, &p.DisplayName, &p.TelegramID, &createdAt, &updatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get principal %d: %w", id, notFound(err))
	}
	p.CreatedAt = fromNanos(createdAt)
	p.UpdatedAt = fromNanos(updatedAt)
	return &p, nil
}

// PutGroup creates or renames an owner group and replaces its member list.
func (db *DB) PutGroup(ctx context.Context, id int64, name string, members []int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO principal_groups (id, name) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET name = excluded.name`, id, name)
	if err != nil {
		return fmt.Errorf("failed to upsert group %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear group %d members: %w", id, err)
	}
	for _, userID := range members {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO group_members (group_id, user_id) VALUES (?, ?)`, id, userID); err != nil {
			return fmt.Errorf("failed to add member %d to group %d: %w", userID, id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit group %d: %w", id, err)
	}
	return nil
}

func (db *DB) IsMember(ctx context.Context, groupID, userID int64) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM group_members WHERE group_id = ? AND user_id = ?`, groupID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check group membership: %w", err)
	}
	return n > 0, nil
}
