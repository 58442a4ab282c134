package journal

import (
	"context"
	"log/slog"

	"stakevault/core/events"
	"stakevault/core/types"
)

// Emitter journals every event that can render itself as a broadcast event.
// Append failures are logged; the ledger mutation that produced the event has
// already committed.
type Emitter struct {
	store  *Store
	logger *slog.Logger
	onSave func(Entry)
}

var _ events.Emitter = (*Emitter)(nil)

// NewEmitter wraps store. A nil logger selects slog.Default.
func NewEmitter(store *Store, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{store: store, logger: logger}
}

// OnSave registers a callback invoked after each successful append.
func (e *Emitter) OnSave(fn func(Entry)) { e.onSave = fn }

// Emit implements events.Emitter.
func (e *Emitter) Emit(evt events.Event) {
	if e == nil || e.store == nil || evt == nil {
		return
	}
	provider, ok := evt.(interface{ Event() *types.Event })
	if !ok {
		return
	}
	payload := provider.Event()
	entry, err := e.store.Append(context.Background(), payload)
	if err != nil {
		e.logger.Error("journal append failed", "type", evt.EventType(), "error", err)
		return
	}
	if e.onSave != nil {
		e.onSave(entry)
	}
}
