package logger

import "KoordeDHT/internal/domain"

// Field represents a structured key:value log field.
type Field struct {
	Key string
	Val any
}

// Logger is the minimal interface required by the ring components.
type Logger interface {
	Named(name string) Logger
	With(fields ...Field) Logger
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// F is a concise helper to build a Field.
func F(key string, val any) Field { return Field{Key: key, Val: val} }

// FNode serializes a domain.NodeRef into a readable structured field.
func FNode(key string, n domain.NodeRef) Field {
	return Field{
		Key: key,
		Val: map[string]any{
			"id":   n.ID.String(),
			"addr": n.Addr,
		},
	}
}

// FRecord serializes a domain.LocalRecord into a readable structured field,
// without leaking the raw value bytes (which are opaque to the core).
func FRecord(key string, r domain.LocalRecord) Field {
	return Field{
		Key: key,
		Val: map[string]any{
			"key":      r.RawKey,
			"version":  r.Version,
			"live":     r.Live,
			"size":     len(r.Value),
		},
	}
}

// ----------------------------------------------------------------
// NopLogger is a no-op implementation of Logger.
type NopLogger struct{}

func (l *NopLogger) Named(name string) Logger          { return l }
func (l *NopLogger) With(fields ...Field) Logger       { return l }
func (l *NopLogger) Debug(msg string, fields ...Field) {}
func (l *NopLogger) Info(msg string, fields ...Field)  {}
func (l *NopLogger) Warn(msg string, fields ...Field)  {}
func (l *NopLogger) Error(msg string, fields ...Field) {}
