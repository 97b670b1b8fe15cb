package registry

// Field is one structured log attribute.
type Field struct {
	Key   string
	Value interface{}
}

// Logger receives the registry's structured log lines. See logger/zerolog for
// the production adapter.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// NoopLogger discards everything.
type NoopLogger struct{}

func (n *NoopLogger) Debug(string, ...Field) {}
func (n *NoopLogger) Info(string, ...Field)  {}
func (n *NoopLogger) Warn(string, ...Field)  {}
func (n *NoopLogger) Error(string, ...Field) {}

// RecordFields describes rec for a log line, followed by extra.
func RecordFields(rec *Record, extra ...Field) []Field {
	fields := make([]Field, 0, 3+len(extra))
	fields = append(fields,
		Field{"key", rec.Key},
		Field{"transaction_id", rec.TransactionID},
		Field{"status", string(rec.Status)},
	)
	return append(fields, extra...)
}
