package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/presencepulse/internal/domain"
)

// SettingsRepo implements domain.SettingsStore against the user_settings
// table owned by the settings collaborator. Users without a settings row
// default to everyone.
type SettingsRepo struct {
	pool *pgxpool.Pool
}

func NewSettingsRepo(pool *pgxpool.Pool) *SettingsRepo {
	return &SettingsRepo{pool: pool}
}

func (r *SettingsRepo) VisibilityOf(ctx context.Context, user domain.UserID) (domain.Visibility, error) {
	var visibility string
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(us.last_seen_visibility, 'everyone')
		 FROM users u
		 LEFT JOIN user_settings us ON us.user_id = u.id
		 WHERE u.id = $1`,
		int64(user),
	).Scan(&visibility)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.VisibilityEveryone, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read visibility setting: %w", err)
	}
	return domain.Visibility(visibility), nil
}
