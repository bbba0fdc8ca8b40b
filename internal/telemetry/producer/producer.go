// Package producer streams auth events to a message broker.
package producer

import (
	"context"

	"twofactor-session/internal/telemetry"
)

// Producer emits auth events. Callers use it best-effort: log and ignore errors.
// Every Producer is also a telemetry.EventEmitter.
type Producer interface {
	// Emit sends a single event. Implementations may block briefly; call via telemetry.EmitAsync.
	Emit(ctx context.Context, event *telemetry.AuthEvent) error
	// Close releases resources. Safe to call if already closed.
	Close() error
}
