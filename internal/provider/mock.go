package provider

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var mockNumbers = []string{
	"+15551234567",
	"+15557654321",
	"+15559876543",
	"+15551112222",
	"+15553334444",
}

// Mock is an in-process gateway for local runs and tests. Messages sent to a
// number leased through it become that number's inbound messages.
type Mock struct {
	mu       sync.Mutex
	owned    map[string]bool
	inbox    map[string][]InboundMessage
	next     int
	failSend bool
	now      func() time.Time
}

var _ Gateway = (*Mock)(nil)

func NewMock() *Mock {
	return &Mock{
		owned: make(map[string]bool),
		inbox: make(map[string][]InboundMessage),
		now:   time.Now,
	}
}

func (m *Mock) SearchAvailableNumbers(_ context.Context, region string, limit int) ([]Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Candidate
	for i := 0; i < len(mockNumbers) && len(out) < limit; i++ {
		n := mockNumbers[(m.next+i)%len(mockNumbers)]
		if m.owned[n] {
			continue
		}
		out = append(out, Candidate{PhoneNumber: n, FriendlyName: n, Region: region})
	}
	return out, nil
}

func (m *Mock) PurchaseNumber(_ context.Context, number string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !strings.HasPrefix(number, "+") {
		return "", &Error{Op: "purchase_number", Reason: ReasonInvalidNumber, Message: "invalid phone number " + number}
	}
	m.owned[number] = true
	m.next++
	return number, nil
}

func (m *Mock) ListInboundMessages(_ context.Context, to string, limit int) ([]InboundMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := m.inbox[to]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]InboundMessage, len(msgs))
	// newest first
	for i, msg := range msgs {
		out[len(msgs)-1-i] = msg
	}
	return out, nil
}

func (m *Mock) SendMessage(_ context.Context, body, from, to string) (SentMessage, error) {
	m.mu.Lock()
	fail := m.failSend
	m.mu.Unlock()
	if fail {
		return SentMessage{}, &Error{Op: "send_message", Reason: ReasonUnknown, Message: "mock send failure", Err: errors.New("mock send failure")}
	}
	m.Deliver(to, from, body)
	return SentMessage{ProviderID: "mock-" + uuid.NewString(), Status: "queued"}, nil
}

func (m *Mock) RequestNumberValidation(_ context.Context, number, _ string) (Validation, error) {
	if !strings.HasPrefix(number, "+") {
		return Validation{}, &Error{Op: "validate_number", Reason: ReasonInvalidNumber, Message: "invalid phone number " + number}
	}
	return Validation{ValidationID: "mock-" + uuid.NewString(), Code: "123456"}, nil
}

func (m *Mock) FetchAccountInfo(context.Context) (AccountInfo, error) {
	return AccountInfo{Type: "Trial", Status: "active"}, nil
}

// SetFailSend makes subsequent sends fail.
func (m *Mock) SetFailSend(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failSend = fail
}

// Deliver records an inbound message for to.
func (m *Mock) Deliver(to, from, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inbox[to] = append(m.inbox[to], InboundMessage{From: from, Body: body, SentAt: m.now()})
}
