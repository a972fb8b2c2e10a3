package audit

import (
	"context"
	"log/slog"
	"time"
)

// Publisher captures structured audit events. Emit is non-blocking: when the
// worker's inbox is full the event is dropped and counted, because decision
// latency must never be held hostage by an operational feed. The receipt
// ledger, not this pipeline, is the authoritative record.
type Publisher struct {
	inbox  chan Event
	logger *slog.Logger
}

func NewPublisher(buffer int, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		inbox:  make(chan Event, buffer),
		logger: logger,
	}
}

// Emit queues an event for the worker.
func (p *Publisher) Emit(event Event) {
	if p == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	select {
	case p.inbox <- event:
	default:
		p.logger.Warn("audit inbox full, dropping event",
			"action", event.Action,
			"actor", event.Actor,
		)
	}
}

// Inbox exposes the event channel to the worker.
func (p *Publisher) Inbox() <-chan Event {
	return p.inbox
}

// Worker consumes audit events from the publisher and persists them. It
// keeps background processing testable without wiring queue implementations
// into domain code.
type Worker struct {
	store Store
	inbox <-chan Event
	sinks []Sink
}

// Sink receives events after they are persisted (for example a Kafka
// producer). Sink errors are logged, never propagated: sinks are
// non-authoritative.
type Sink interface {
	Send(ctx context.Context, event Event) error
}

func NewWorker(store Store, inbox <-chan Event, sinks ...Sink) *Worker {
	return &Worker{store: store, inbox: inbox, sinks: sinks}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(event); err != nil {
				return err
			}
			for _, sink := range w.sinks {
				if err := sink.Send(ctx, event); err != nil {
					slog.Warn("audit sink failed", "error", err)
				}
			}
		}
	}
}
