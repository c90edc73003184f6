package provider

import (
	"context"
	"time"
)

// Observer receives the outcome of every provider call.
type Observer interface {
	ObserveProviderCall(op string, took time.Duration, err error)
}

// Instrumented reports each call of the wrapped gateway to an Observer.
type Instrumented struct {
	next Gateway
	obs  Observer
}

var _ Gateway = (*Instrumented)(nil)

func NewInstrumented(next Gateway, obs Observer) *Instrumented {
	return &Instrumented{next: next, obs: obs}
}

func (i *Instrumented) observe(op string, start time.Time, err error) {
	i.obs.ObserveProviderCall(op, time.Since(start), err)
}

func (i *Instrumented) SearchAvailableNumbers(ctx context.Context, region string, limit int) ([]Candidate, error) {
	start := time.Now()
	out, err := i.next.SearchAvailableNumbers(ctx, region, limit)
	i.observe("search_numbers", start, err)
	return out, err
}

func (i *Instrumented) PurchaseNumber(ctx context.Context, number string) (string, error) {
	start := time.Now()
	n, err := i.next.PurchaseNumber(ctx, number)
	i.observe("purchase_number", start, err)
	return n, err
}

func (i *Instrumented) ListInboundMessages(ctx context.Context, to string, limit int) ([]InboundMessage, error) {
	start := time.Now()
	msgs, err := i.next.ListInboundMessages(ctx, to, limit)
	i.observe("list_messages", start, err)
	return msgs, err
}

func (i *Instrumented) SendMessage(ctx context.Context, body, from, to string) (SentMessage, error) {
	start := time.Now()
	sent, err := i.next.SendMessage(ctx, body, from, to)
	i.observe("send_message", start, err)
	return sent, err
}

func (i *Instrumented) RequestNumberValidation(ctx context.Context, number, label string) (Validation, error) {
	start := time.Now()
	v, err := i.next.RequestNumberValidation(ctx, number, label)
	i.observe("validate_number", start, err)
	return v, err
}

func (i *Instrumented) FetchAccountInfo(ctx context.Context) (AccountInfo, error) {
	start := time.Now()
	info, err := i.next.FetchAccountInfo(ctx)
	i.observe("fetch_account", start, err)
	return info, err
}
