package events

import (
	"log/slog"

	"vouchernet/core/types"
)

// LogEmitter writes every event to a structured logger. It is the default
// sink for standalone deployments without an indexer attached.
type LogEmitter struct {
	logger *slog.Logger
}

// NewLogEmitter wraps the supplied logger; a nil logger falls back to
// slog.Default.
func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogEmitter{logger: logger}
}

// Emit implements the Emitter interface.
func (l *LogEmitter) Emit(evt Event) {
	if evt == nil {
		return
	}
	attrs := []any{"type", evt.EventType()}
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		if payload := carrier.Event(); payload != nil {
			for key, value := range payload.Attributes {
				attrs = append(attrs, key, value)
			}
		}
	}
	l.logger.Info("event emitted", attrs...)
}
