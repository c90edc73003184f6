package notify

import (
	"context"
)

// Sink delivers audit events. Publish reports whether delivery succeeded;
// failures are logged by the sink and never returned to the caller.
type Sink interface {
	Publish(ctx context.Context, msg string) bool
}

type Nop struct{}

func (Nop) Publish(context.Context, string) bool { return true }

// Multi publishes to every sink and succeeds only if all of them did.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, msg string) bool {
	ok := true
	for _, s := range m {
		if !s.Publish(ctx, msg) {
			ok = false
		}
	}
	return ok
}
