package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/LORD-SANTINO/Number-bot/internal/domain"
)

type Sessions struct{ db DB }

func NewSessions(db DB) *Sessions { return &Sessions{db: db} }

// Replace deactivates every active session of the user and opens a new one
// in the same transaction.
func (r *Sessions) Replace(ctx context.Context, userID int64, number, requestID string) (domain.Session, error) {
	s := domain.Session{
		UserID:        userID,
		VirtualNumber: number,
		RequestID:     requestID,
		IsActive:      true,
	}
	err := inTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			UPDATE user_sessions SET is_active = FALSE
			WHERE user_id = $1 AND is_active
		`, userID); err != nil {
			return fmt.Errorf("deactivate sessions: %w", err)
		}
		return tx.QueryRow(ctx, `
			INSERT INTO user_sessions (user_id, virtual_number, request_id)
			VALUES ($1, $2, $3)
			RETURNING session_id, created_at
		`, userID, number, requestID).Scan(&s.ID, &s.CreatedAt)
	})
	if err != nil {
		return domain.Session{}, err
	}
	return s, nil
}

func (r *Sessions) ActiveFor(ctx context.Context, userID int64) (domain.Session, error) {
	var s domain.Session
	err := r.db.QueryRow(ctx, `
		SELECT session_id, user_id, virtual_number, request_id, is_active, created_at
		FROM user_sessions
		WHERE user_id = $1 AND is_active
		ORDER BY created_at DESC
		LIMIT 1
	`, userID).Scan(&s.ID, &s.UserID, &s.VirtualNumber, &s.RequestID, &s.IsActive, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, ErrNoActiveSession
	}
	if err != nil {
		return domain.Session{}, err
	}
	return s, nil
}
