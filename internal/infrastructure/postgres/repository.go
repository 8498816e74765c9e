package postgres

import (
	"context"
	"strings"

	"github.com/baechuer/artfront/services/visitor-state/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) ListActive(ctx context.Context, userID uuid.UUID, kind domain.ListKind) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT item_id
		FROM user_list_items
		WHERE user_id = $1 AND list_kind = $2 AND status = 'active'
		ORDER BY created_at ASC, item_id ASC
	`, userID, string(kind))
	if err != nil {
		return nil, wrapErr("list active", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr("scan list item", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list active", err)
	}
	return out, nil
}

// Toggle flips (user, kind, item) in a single statement. The unique index
// makes concurrent first-toggles from two tabs converge on one row.
func (r *Repository) Toggle(ctx context.Context, userID uuid.UUID, kind domain.ListKind, itemID string) (domain.MembershipStatus, error) {
	var status string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO user_list_items (user_id, list_kind, item_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, 'active', NOW(), NOW())
		ON CONFLICT (user_id, list_kind, item_id) DO UPDATE
		SET status = CASE WHEN user_list_items.status = 'active' THEN 'removed' ELSE 'active' END,
			updated_at = NOW()
		RETURNING status
	`, userID, string(kind), strings.TrimSpace(itemID)).Scan(&status)
	if err != nil {
		return "", wrapErr("toggle", err)
	}
	return domain.MembershipStatus(status), nil
}

// ClearAll soft-clears; rows stay for history.
func (r *Repository) ClearAll(ctx context.Context, userID uuid.UUID, kind domain.ListKind) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE user_list_items
		SET status = 'removed', updated_at = NOW()
		WHERE user_id = $1 AND list_kind = $2 AND status <> 'removed'
	`, userID, string(kind))
	if err != nil {
		return wrapErr("clear", err)
	}
	return nil
}

// Activate marks every item active (inserting as needed) and returns how
// many rows changed state.
func (r *Repository) Activate(ctx context.Context, userID uuid.UUID, kind domain.ListKind, itemIDs []string) (int, error) {
	if len(itemIDs) == 0 {
		return 0, nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, wrapErr("activate", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	changed := 0
	for _, id := range itemIDs {
		tag, err := tx.Exec(ctx, `
			INSERT INTO user_list_items (user_id, list_kind, item_id, status, created_at, updated_at)
			VALUES ($1, $2, $3, 'active', NOW(), NOW())
			ON CONFLICT (user_id, list_kind, item_id) DO UPDATE
			SET status = 'active', updated_at = NOW()
			WHERE user_list_items.status <> 'active'
		`, userID, string(kind), id)
		if err != nil {
			return 0, wrapErr("activate", err)
		}
		changed += int(tag.RowsAffected())
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, wrapErr("activate", err)
	}
	return changed, nil
}
