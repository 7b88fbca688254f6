package log

import "context"

// Logger defines a standard interface for logging.
// Inspired by common logging library patterns.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	With(fields map[string]interface{}) Logger // Returns a new logger with added structured fields
}

// nopLogger discards everything. Useful as a default when no logger is wired.
type nopLogger struct{}

// NewNop returns a Logger that discards all output.
//
//nolint:ireturn
func NewNop() Logger { return nopLogger{} }

func (nopLogger) Debug(context.Context, string, ...map[string]interface{})        {}
func (nopLogger) Info(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Warn(context.Context, string, ...map[string]interface{})         {}
func (nopLogger) Error(context.Context, string, error, ...map[string]interface{}) {}
func (nopLogger) With(map[string]interface{}) Logger                              { return nopLogger{} }
