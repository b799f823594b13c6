package tools

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"
)

// Kind separates tools acting on in-memory state from tools that make a
// round trip to a backend service.
type Kind int

const (
	KindLocal Kind = iota
	KindRemote
)

func (k Kind) String() string {
	if k == KindRemote {
		return "remote"
	}
	return "local"
}

// ExecutorFunc runs a tool on arguments that already passed schema
// validation. Failures are returned as error Results, never as panics.
type ExecutorFunc func(ctx context.Context, args map[string]any) Result

// Definition declares one capability.
type Definition struct {
	Name        string
	Description string
	Parameters  *genai.Schema
	Kind        Kind
	// Serial marks a tool that changes state later calls read. It never
	// runs alongside another call of the same round.
	Serial  bool
	Execute ExecutorFunc
	// Timeout overrides the registry's per-kind deadline when set.
	Timeout time.Duration
}

// Concurrent reports whether the tool may run in parallel with adjacent
// calls of the same round.
func (d Definition) Concurrent() bool {
	return d.Kind == KindRemote && !d.Serial
}

// Declaration returns the function declaration sent to the model.
func (d Definition) Declaration() *genai.FunctionDeclaration {
	return &genai.FunctionDeclaration{
		Name:        d.Name,
		Description: d.Description,
		Parameters:  d.Parameters,
	}
}

// Result is the uniform tool result envelope.
type Result struct {
	Success bool
	Data    any
	Error   string
}

// NewSuccessResult creates a successful result carrying data.
func NewSuccessResult(data any) Result {
	return Result{Success: true, Data: data}
}

// NewErrorResult creates a failed result.
func NewErrorResult(msg string) Result {
	return Result{Error: msg}
}

// Errorf creates a failed result from a format string.
func Errorf(format string, args ...any) Result {
	return NewErrorResult(fmt.Sprintf(format, args...))
}

// ToMap converts the result to the wire envelope.
func (r Result) ToMap() map[string]any {
	if !r.Success {
		return map[string]any{"success": false, "error": r.Error}
	}
	out := map[string]any{"success": true}
	if r.Data != nil {
		out["data"] = r.Data
	}
	return out
}

// ValidationError represents a tool argument validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message}
}

// GetString extracts a string argument.
func GetString(args map[string]any, key string) (string, bool) {
	val, ok := args[key]
	if !ok {
		return "", false
	}
	str, ok := val.(string)
	return str, ok
}

// GetStringDefault extracts a string argument with a default value.
func GetStringDefault(args map[string]any, key, defaultVal string) string {
	if val, ok := GetString(args, key); ok {
		return val
	}
	return defaultVal
}

// GetInt extracts an integer argument. JSON numbers arrive as float64.
func GetInt(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// GetIntDefault extracts an integer argument with a default value.
func GetIntDefault(args map[string]any, key string, defaultVal int) int {
	if val, ok := GetInt(args, key); ok {
		return val
	}
	return defaultVal
}
