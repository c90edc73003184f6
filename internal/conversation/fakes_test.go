package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/LORD-SANTINO/Number-bot/internal/domain"
	"github.com/LORD-SANTINO/Number-bot/internal/provider"
	"github.com/LORD-SANTINO/Number-bot/internal/repo"
)

type memSessions struct {
	rows []domain.Session
	err  error
}

func (s *memSessions) Replace(_ context.Context, userID int64, number, requestID string) (domain.Session, error) {
	if s.err != nil {
		return domain.Session{}, s.err
	}
	for i := range s.rows {
		if s.rows[i].UserID == userID {
			s.rows[i].IsActive = false
		}
	}
	sess := domain.Session{ID: int64(len(s.rows) + 1), UserID: userID, VirtualNumber: number, RequestID: requestID, IsActive: true}
	s.rows = append(s.rows, sess)
	return sess, nil
}

func (s *memSessions) ActiveFor(_ context.Context, userID int64) (domain.Session, error) {
	for _, r := range s.rows {
		if r.UserID == userID && r.IsActive {
			return r, nil
		}
	}
	return domain.Session{}, repo.ErrNoActiveSession
}

type memRegistry struct {
	numbers map[int64][]string
}

func newMemRegistry() *memRegistry { return &memRegistry{numbers: make(map[int64][]string)} }

func (r *memRegistry) Add(_ context.Context, userID int64, number string) (bool, error) {
	for _, n := range r.numbers[userID] {
		if n == number {
			return false, nil
		}
	}
	r.numbers[userID] = append(r.numbers[userID], number)
	return true, nil
}

func (r *memRegistry) IsVerified(_ context.Context, userID int64, number string) (bool, error) {
	for _, n := range r.numbers[userID] {
		if n == number {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRegistry) ListFor(_ context.Context, userID int64) ([]string, error) {
	return r.numbers[userID], nil
}

type memLedger struct {
	records []domain.UsageRecord
	err     error
}

func (l *memLedger) Append(_ context.Context, userID int64, action domain.ActionType, cost float64) error {
	if l.err != nil {
		return l.err
	}
	if cost < 0 {
		return repo.ErrNegativeCost
	}
	l.records = append(l.records, domain.UsageRecord{ID: int64(len(l.records) + 1), UserID: userID, ActionType: action, Cost: cost})
	return nil
}

func (l *memLedger) TotalFor(_ context.Context, userID int64) (float64, error) {
	var total float64
	for _, r := range l.records {
		if r.UserID == userID {
			total += r.Cost
		}
	}
	return total, nil
}

func (l *memLedger) of(action domain.ActionType) []domain.UsageRecord {
	var out []domain.UsageRecord
	for _, r := range l.records {
		if r.ActionType == action {
			out = append(out, r)
		}
	}
	return out
}

type memMessages struct {
	rows []domain.SmsMessage
}

func (m *memMessages) Save(_ context.Context, msg domain.SmsMessage) (int64, error) {
	msg.ID = int64(len(m.rows) + 1)
	msg.SentAt = time.Date(2024, 1, 2, 15, 4, 0, 0, time.UTC)
	m.rows = append(m.rows, msg)
	return msg.ID, nil
}

func (m *memMessages) Recent(_ context.Context, userID int64, limit int) ([]domain.SmsMessage, error) {
	var out []domain.SmsMessage
	for i := len(m.rows) - 1; i >= 0 && len(out) < limit; i-- {
		if m.rows[i].UserID == userID {
			out = append(out, m.rows[i])
		}
	}
	return out, nil
}

type recordingSink struct {
	mu   sync.Mutex
	msgs []string
}

func (s *recordingSink) Publish(_ context.Context, msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return true
}

type fakeGateway struct {
	candidates []provider.Candidate
	inbox      []provider.InboundMessage
	account    provider.AccountInfo

	searchErr, sendErr, validateErr, accountErr error

	sent      []sentCall
	validated []string
}

type sentCall struct{ body, from, to string }

func (g *fakeGateway) SearchAvailableNumbers(context.Context, string, int) ([]provider.Candidate, error) {
	return g.candidates, g.searchErr
}

func (g *fakeGateway) PurchaseNumber(_ context.Context, number string) (string, error) {
	return number, nil
}

func (g *fakeGateway) ListInboundMessages(context.Context, string, int) ([]provider.InboundMessage, error) {
	return g.inbox, nil
}

func (g *fakeGateway) SendMessage(_ context.Context, body, from, to string) (provider.SentMessage, error) {
	if g.sendErr != nil {
		return provider.SentMessage{}, g.sendErr
	}
	g.sent = append(g.sent, sentCall{body, from, to})
	return provider.SentMessage{ProviderID: "SM0001", Status: "queued"}, nil
}

func (g *fakeGateway) RequestNumberValidation(_ context.Context, number, _ string) (provider.Validation, error) {
	if g.validateErr != nil {
		return provider.Validation{}, g.validateErr
	}
	g.validated = append(g.validated, number)
	return provider.Validation{ValidationID: "CA1", Code: "123456"}, nil
}

func (g *fakeGateway) FetchAccountInfo(context.Context) (provider.AccountInfo, error) {
	return g.account, g.accountErr
}
