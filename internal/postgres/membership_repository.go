package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pscheid92/presencepulse/internal/domain"
)

// MembershipRepo implements domain.MembershipStore against the chat_members
// table owned by the chat CRUD collaborator.
type MembershipRepo struct {
	pool *pgxpool.Pool
}

func NewMembershipRepo(pool *pgxpool.Pool) *MembershipRepo {
	return &MembershipRepo{pool: pool}
}

func (r *MembershipRepo) IsMember(ctx context.Context, chat domain.ChatID, user domain.UserID) (bool, error) {
	var one int
	err := r.pool.QueryRow(ctx,
		`SELECT 1 FROM chat_members WHERE chat_id = $1 AND user_id = $2`,
		int64(chat), int64(user),
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check chat membership: %w", err)
	}
	return true, nil
}

func (r *MembershipRepo) ChatsOf(ctx context.Context, user domain.UserID) ([]domain.ChatID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT chat_id FROM chat_members WHERE user_id = $1`,
		int64(user),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate chats for user: %w", err)
	}
	defer rows.Close()

	var chats []domain.ChatID
	for rows.Next() {
		var chat int64
		if err := rows.Scan(&chat); err != nil {
			return nil, fmt.Errorf("failed to scan chat_id: %w", err)
		}
		chats = append(chats, domain.ChatID(chat))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chat memberships: %w", err)
	}
	return chats, nil
}
