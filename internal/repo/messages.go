package repo

import (
	"context"

	"github.com/LORD-SANTINO/Number-bot/internal/domain"
)

type Messages struct{ db DB }

func NewMessages(db DB) *Messages { return &Messages{db: db} }

func (r *Messages) Save(ctx context.Context, m domain.SmsMessage) (int64, error) {
	if m.Status == "" {
		m.Status = domain.MessageStatusSent
	}
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO sms_messages (user_id, recipient, message, provider_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING message_id
	`, m.UserID, m.Recipient, m.Body, m.ProviderID, m.Status).Scan(&id)
	return id, err
}

// Recent returns the user's latest sent messages, newest first.
func (r *Messages) Recent(ctx context.Context, userID int64, limit int) ([]domain.SmsMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.Query(ctx, `
		SELECT message_id, user_id, recipient, message, COALESCE(provider_id, ''), status, sent_at
		FROM sms_messages
		WHERE user_id = $1
		ORDER BY sent_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.SmsMessage, 0, limit)
	for rows.Next() {
		var m domain.SmsMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.Recipient, &m.Body, &m.ProviderID, &m.Status, &m.SentAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
