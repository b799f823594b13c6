package tools

import (
	"context"
	"encoding/json"
)

// Bind adapts a typed executor to ExecutorFunc. Args have already passed
// schema validation, so decoding only maps them onto P's json tags.
func Bind[P any](fn func(ctx context.Context, p P) Result) ExecutorFunc {
	return func(ctx context.Context, args map[string]any) Result {
		var p P
		data, err := json.Marshal(args)
		if err != nil {
			return Errorf("failed to encode arguments: %s", err)
		}
		if err := json.Unmarshal(data, &p); err != nil {
			return Errorf("failed to decode arguments: %s", err)
		}
		return fn(ctx, p)
	}
}

// timedOut converts a context error into a timeout Result.
func timedOut(ctx context.Context, what string) (Result, bool) {
	if err := ctx.Err(); err != nil {
		if err == context.DeadlineExceeded {
			return Errorf("%s timed out", what), true
		}
		return Errorf("%s cancelled", what), true
	}
	return Result{}, false
}
