package bot

import (
	"context"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// Dispatcher runs updates of different users concurrently and updates of
// one user strictly in arrival order.
type Dispatcher struct {
	handle func(ctx context.Context, upd tgbotapi.Update)
	log    *zap.Logger

	mu     sync.Mutex
	queues map[int64][]tgbotapi.Update // present while a worker drains it
	wg     sync.WaitGroup
}

func NewDispatcher(handle func(ctx context.Context, upd tgbotapi.Update), log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		handle: handle,
		log:    log.Named("dispatcher"),
		queues: make(map[int64][]tgbotapi.Update),
	}
}

// Run dispatches updates until ctx is done or the channel closes, then
// waits for in-flight handlers. Handlers keep running after ctx is
// canceled so that a started action is not cut in half.
func (d *Dispatcher) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	hctx := context.WithoutCancel(ctx)
	defer d.wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return nil
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			d.Dispatch(hctx, upd)
		}
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, upd tgbotapi.Update) {
	key := senderOf(upd)

	d.mu.Lock()
	q, running := d.queues[key]
	d.queues[key] = append(q, upd)
	if !running {
		d.wg.Add(1)
	}
	d.mu.Unlock()

	if !running {
		go d.drain(ctx, key)
	}
}

// Wait blocks until every queued update has been handled.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) drain(ctx context.Context, key int64) {
	defer d.wg.Done()
	for {
		d.mu.Lock()
		q := d.queues[key]
		if len(q) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		upd := q[0]
		d.queues[key] = q[1:]
		d.mu.Unlock()

		d.safeHandle(ctx, upd)
	}
}

func (d *Dispatcher) safeHandle(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("handler panic", zap.Int("update_id", upd.UpdateID), zap.Any("panic", r))
		}
	}()
	d.handle(ctx, upd)
}

func senderOf(upd tgbotapi.Update) int64 {
	switch {
	case upd.Message != nil && upd.Message.From != nil:
		return upd.Message.From.ID
	case upd.CallbackQuery != nil && upd.CallbackQuery.From != nil:
		return upd.CallbackQuery.From.ID
	case upd.Message != nil && upd.Message.Chat != nil:
		return upd.Message.Chat.ID
	default:
		return 0
	}
}
