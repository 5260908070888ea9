package logger

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Event is one structured request record. Fields carries handler-specific
// context (message_id, dup, result, ...).
type Event struct {
	Level     zapcore.Level
	RequestID string
	Method    string
	Path      string
	Status    int
	LatencyMs float64
	Fields    map[string]any
}

// Sink accepts request events.
type Sink interface {
	Emit(e Event)
}

// ZapSink writes events through a zap logger.
type ZapSink struct {
	L *zap.Logger
}

func NewZapSink(l *zap.Logger) *ZapSink { return &ZapSink{L: l} }

func (s *ZapSink) Emit(e Event) {
	fields := make([]zap.Field, 0, 6+len(e.Fields))
	fields = append(fields,
		zap.String("request_id", e.RequestID),
		zap.String("method", e.Method),
		zap.String("path", e.Path),
		zap.Int("status", e.Status),
		zap.Float64("latency_ms", e.LatencyMs),
	)

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fields = append(fields, zap.Any(k, e.Fields[k]))
	}

	if ce := s.L.Check(e.Level, "request"); ce != nil {
		ce.Write(fields...)
	}
}

type NopSink struct{}

func (NopSink) Emit(Event) {}
