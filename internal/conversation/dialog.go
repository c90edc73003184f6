package conversation

import (
	"context"
	"sync"
)

type State string

const (
	Idle                       State = "idle"
	AwaitingRecipient          State = "awaiting_recipient"
	AwaitingMessageBody        State = "awaiting_message_body"
	AwaitingVerificationNumber State = "awaiting_verification_number"
)

// Dialog is the per-user context carried between updates.
type Dialog struct {
	State     State  `json:"state"`
	Recipient string `json:"recipient,omitempty"`
}

func (d Dialog) IsIdle() bool { return d.State == "" || d.State == Idle }

// Store keeps dialogs between updates. Saving an idle dialog clears it.
type Store interface {
	Load(ctx context.Context, userID int64) (Dialog, error)
	Save(ctx context.Context, userID int64, d Dialog) error
}

type MemoryStore struct {
	mu      sync.Mutex
	dialogs map[int64]Dialog
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{dialogs: make(map[int64]Dialog)}
}

func (s *MemoryStore) Load(_ context.Context, userID int64) (Dialog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dialogs[userID]
	if !ok {
		return Dialog{State: Idle}, nil
	}
	return d, nil
}

func (s *MemoryStore) Save(_ context.Context, userID int64, d Dialog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.IsIdle() {
		delete(s.dialogs, userID)
		return nil
	}
	s.dialogs[userID] = d
	return nil
}
