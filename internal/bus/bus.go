// File: internal/bus/bus.go
// Description: In-process publish/subscribe for mission lifecycle events.
// Dispatch is synchronous and ordered: subscribers run on the calling
// goroutine in registration order, so when Publish returns the caller knows
// every same-process side effect for that event has been attempted. A
// failing or panicking subscriber never aborts dispatch to the rest; its
// failure is captured at the bus boundary and surfaced as a non-fatal
// degradation report. The bus imposes no timeout on subscribers; each
// subscriber is responsible for bounding its own latency.

package bus

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/missionctl/api/schemas"
)

// Bus routes events to zero or more integrations. It holds no mission data,
// only the subscribers-by-event-type routing table, and never persists
// events itself.
type Bus struct {
	log *zap.Logger

	mu   sync.RWMutex
	subs map[schemas.EventType][]schemas.Integration
}

// New creates an empty bus.
func New(logger *zap.Logger) *Bus {
	return &Bus{
		log:  logger.Named("bus"),
		subs: make(map[schemas.EventType][]schemas.Integration),
	}
}

// Subscribe registers sub for a single event type. Dispatch order follows
// registration order per event type.
func (b *Bus) Subscribe(t schemas.EventType, sub schemas.Integration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], sub)
}

// Register subscribes an integration to everything it declares in
// Subscriptions.
func (b *Bus) Register(sub schemas.Integration) {
	for _, t := range sub.Subscriptions() {
		b.Subscribe(t, sub)
	}
	b.log.Debug("Integration registered",
		zap.String("integration", sub.Name()),
		zap.Int("subscriptions", len(sub.Subscriptions())))
}

// Publish delivers ev to every subscriber for its type, in registration
// order, before returning. Each subscriber failure (error or panic) is
// captured and returned; the slice is empty when every subscriber succeeded.
func (b *Bus) Publish(ctx context.Context, ev schemas.Event) []schemas.SubscriberFailure {
	b.mu.RLock()
	subs := b.subs[ev.Type]
	// Copy so a Subscribe during dispatch cannot shift the slice under us.
	subsCopy := make([]schemas.Integration, len(subs))
	copy(subsCopy, subs)
	b.mu.RUnlock()

	if len(subsCopy) == 0 {
		return nil
	}

	var failures []schemas.SubscriberFailure
	for _, sub := range subsCopy {
		if err := b.dispatch(ctx, sub, ev); err != nil {
			failure := schemas.SubscriberFailure{
				Subscriber: sub.Name(),
				EventType:  ev.Type,
				Stage:      ev.Stage,
				Err:        err,
			}
			failures = append(failures, failure)
			b.log.Warn("Integration degraded",
				zap.String("integration", sub.Name()),
				zap.String("event_type", string(ev.Type)),
				zap.String("stage", string(ev.Stage)),
				zap.Error(err))
		}
	}
	return failures
}

// dispatch invokes one subscriber, converting a panic into an error so a
// misbehaving integration cannot take down the state machine.
func (b *Bus) dispatch(ctx context.Context, sub schemas.Integration, ev schemas.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("subscriber panicked: %v", r)
		}
	}()
	return sub.HandleEvent(ctx, ev)
}
