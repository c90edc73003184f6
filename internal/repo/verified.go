package repo

import (
	"context"
)

type Verified struct{ db DB }

func NewVerified(db DB) *Verified { return &Verified{db: db} }

// Add registers number for the user. Adding an existing pair is a no-op;
// the returned bool reports whether a row was inserted.
func (r *Verified) Add(ctx context.Context, userID int64, number string) (bool, error) {
	tag, err := r.db.Exec(ctx, `
		INSERT INTO verified_numbers (user_id, phone_number)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID, number)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// IsVerified matches the stored string exactly; formatting is not normalized.
func (r *Verified) IsVerified(ctx context.Context, userID int64, number string) (bool, error) {
	var ok bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM verified_numbers WHERE user_id = $1 AND phone_number = $2)
	`, userID, number).Scan(&ok)
	return ok, err
}

func (r *Verified) ListFor(ctx context.Context, userID int64) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT phone_number FROM verified_numbers
		WHERE user_id = $1
		ORDER BY verified_at, verification_id
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
