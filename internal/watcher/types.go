package watcher

import "time"

// Operation represents the type of file system operation.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

// String returns the string representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Config holds watcher configuration.
type Config struct {
	Debounce   time.Duration
	MaxWatches int
}

// DefaultConfig returns the default watcher configuration.
func DefaultConfig() Config {
	return Config{
		Debounce:   300 * time.Millisecond,
		MaxWatches: 256,
	}
}

// ChangeHandler receives the paths that changed during one debounce window.
type ChangeHandler func(changes map[string]Operation)
