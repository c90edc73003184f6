package repo

import (
	"context"

	"github.com/LORD-SANTINO/Number-bot/internal/domain"
)

// Usage is the append-only ledger of billable actions. It records and sums;
// spending limits are enforced by callers.
type Usage struct{ db DB }

func NewUsage(db DB) *Usage { return &Usage{db: db} }

func (r *Usage) Append(ctx context.Context, userID int64, action domain.ActionType, cost float64) error {
	if cost < 0 {
		return ErrNegativeCost
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO usage_tracking (user_id, action_type, cost)
		VALUES ($1, $2, $3)
	`, userID, string(action), cost)
	return err
}

// TotalFor is 0 for a user without records.
func (r *Usage) TotalFor(ctx context.Context, userID int64) (float64, error) {
	var total float64
	err := r.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(cost), 0)::float8 FROM usage_tracking WHERE user_id = $1
	`, userID).Scan(&total)
	return total, err
}
