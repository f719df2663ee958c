// Package events carries in-process notifications between services.
package events

import (
	"sync"

	"github.com/hydranet/aquabill/internal/status"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// PaymentResolved is published after a payment settles against a bill.
type PaymentResolved struct {
	BillID       string
	ConnectionID string
	NewBalance   int64
	Status       status.RenderedStatus
}

type PaymentResolvedHandler func(PaymentResolved)

// Bus fans events out to subscribers synchronously. Handlers must not block.
type Bus struct {
	mu       sync.RWMutex
	handlers []PaymentResolvedHandler
	log      *zap.Logger
}

func NewBus(log *zap.Logger) *Bus {
	return &Bus{log: log.Named("events.bus")}
}

func (b *Bus) SubscribePaymentResolved(h PaymentResolvedHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *Bus) PublishPaymentResolved(ev PaymentResolved) {
	b.mu.RLock()
	handlers := make([]PaymentResolvedHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	b.log.Debug("publish payment_resolved",
		zap.String("bill_id", ev.BillID),
		zap.String("connection_id", ev.ConnectionID),
		zap.Int64("new_balance", ev.NewBalance),
	)
	for _, h := range handlers {
		h(ev)
	}
}

var Module = fx.Module("events",
	fx.Provide(NewBus),
)
