package repo

import (
	"context"

	"github.com/LORD-SANTINO/Number-bot/internal/domain"
)

type Users struct{ db DB }

func NewUsers(db DB) *Users { return &Users{db: db} }

// Upsert creates the user on first contact and refreshes the display fields after.
func (r *Users) Upsert(ctx context.Context, u domain.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (user_id, username, first_name, last_name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET username = EXCLUDED.username,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			updated_at = now()
	`, u.ID, u.Username, u.FirstName, u.LastName)
	return err
}
