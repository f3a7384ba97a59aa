package billing

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pagelift/billing/pkg/logger"
	"github.com/pagelift/billing/pkg/payment"
)

// HandlerFunc processes one processor event. A nil return acknowledges
// the delivery; a non-nil return makes the processor redeliver.
type HandlerFunc func(ctx context.Context, ev *payment.Event) error

// Registry maps event types to handlers. Registration happens once at
// composition time; lookups afterwards are read-only.
type Registry struct {
	handlers map[payment.EventType]HandlerFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[payment.EventType]HandlerFunc)}
}

// Register binds a handler to an event type. Panics on duplicate
// registration: two handlers for one type is a wiring bug.
func (r *Registry) Register(eventType payment.EventType, fn HandlerFunc) {
	if fn == nil {
		panic("billing: nil handler for " + string(eventType))
	}
	if _, dup := r.handlers[eventType]; dup {
		panic("billing: duplicate handler for " + string(eventType))
	}
	r.handlers[eventType] = fn
}

// Lookup returns the handler for the event type, if any.
func (r *Registry) Lookup(eventType payment.EventType) (HandlerFunc, bool) {
	fn, ok := r.handlers[eventType]
	return fn, ok
}

// Dispatcher routes verified events to handlers and records delivery
// outcomes. The Redis guard short-circuits redeliveries of events that
// already processed; the ledger's reference-id dedup remains the
// correctness boundary underneath.
type Dispatcher struct {
	registry *Registry
	dedup    DedupGuard
	events   WebhookEventStore
	log      *slog.Logger
}

// NewDispatcher wires the dispatch pipeline. Panics on nil registry or
// event store; a nil dedup guard degrades to no fast path.
func NewDispatcher(registry *Registry, dedup DedupGuard, events WebhookEventStore, log *slog.Logger) *Dispatcher {
	if registry == nil {
		panic("billing: registry is required")
	}
	if events == nil {
		panic("billing: webhook event store is required")
	}
	if dedup == nil {
		dedup = NopDedupGuard{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{registry: registry, dedup: dedup, events: events, log: log}
}

// Dispatch processes one event end to end. Unhandled event types are
// acknowledged without side effects: the processor sends the full
// event stream and most of it is noise.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *payment.Event) error {
	if ev == nil || ev.ID == "" {
		return ErrMalformedEvent
	}

	fn, ok := d.registry.Lookup(ev.Type)
	if !ok {
		d.log.DebugContext(ctx, "ignoring unhandled event type",
			logger.Component("dispatcher"),
			logger.EventID(ev.ID),
			logger.EventType(string(ev.Type)))
		return nil
	}

	// Fast-path dedup. Errors here fail open: Redis being down must not
	// block webhook intake.
	seen, err := d.dedup.Seen(ctx, ev.ID)
	if err != nil {
		d.log.WarnContext(ctx, "dedup guard unavailable, proceeding",
			logger.Component("dispatcher"),
			logger.EventID(ev.ID),
			logger.Error(err))
	} else if seen {
		d.log.InfoContext(ctx, "skipping already-processed event",
			logger.Component("dispatcher"),
			logger.EventID(ev.ID),
			logger.EventType(string(ev.Type)))
		return nil
	}

	if err := fn(ctx, ev); err != nil {
		recoverable := !IsValidationError(err)
		if recordErr := d.events.RecordFailure(ctx, ev.ID, string(ev.Type), recoverable, err); recordErr != nil {
			d.log.ErrorContext(ctx, "failed to record webhook failure",
				logger.Component("dispatcher"),
				logger.EventID(ev.ID),
				logger.Error(recordErr))
		}
		d.log.ErrorContext(ctx, "event handler failed",
			logger.Component("dispatcher"),
			logger.EventID(ev.ID),
			logger.EventType(string(ev.Type)),
			slog.Bool("recoverable", recoverable),
			logger.Error(err))
		return err
	}

	if err := d.events.MarkCompleted(ctx, ev.ID, string(ev.Type)); err != nil {
		d.log.ErrorContext(ctx, "failed to record webhook completion",
			logger.Component("dispatcher"),
			logger.EventID(ev.ID),
			logger.Error(err))
	}
	// Best effort: the mark may be lost, in which case a redelivery
	// falls through to the ledger dedup and still no-ops.
	if err := d.dedup.MarkSeen(ctx, ev.ID); err != nil {
		d.log.WarnContext(ctx, "failed to mark event seen",
			logger.Component("dispatcher"),
			logger.EventID(ev.ID),
			logger.Error(err))
	}
	return nil
}

// IsValidationError classifies failures that redelivery cannot fix.
// These are recorded for operators but excluded from automatic replay,
// and the webhook endpoint acknowledges them so the processor stops
// resending.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrMalformedEvent) ||
		errors.Is(err, ErrMissingChargeID) ||
		errors.Is(err, ErrMissingCustomerID) ||
		errors.Is(err, ErrInvalidCreditsMetadata) ||
		errors.Is(err, payment.ErrMalformedEvent)
}
