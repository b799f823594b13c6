package context

import (
	"strings"

	"comfypilot/internal/chat"
	"comfypilot/internal/security"
)

// Compressor bounds a single tool output before it is stored in the thread.
type Compressor struct {
	maxChars int
	redactor *security.Redactor
}

// NewCompressor creates a compressor capping each string field at maxChars.
// redactor may be nil.
func NewCompressor(maxChars int, redactor *security.Redactor) *Compressor {
	return &Compressor{maxChars: maxChars, redactor: redactor}
}

// CompressResult returns r with its output compressed.
func (c *Compressor) CompressResult(r chat.ToolResult) chat.ToolResult {
	if r.Output == nil || r.Redacted {
		return r
	}
	r.Output = c.compressMap(r.Output)
	return r
}

// Compress bounds every string and large array in output.
func (c *Compressor) Compress(output map[string]any) map[string]any {
	if output == nil {
		return nil
	}
	return c.compressMap(output)
}

func (c *Compressor) compressValue(key string, value any) any {
	switch v := value.(type) {
	case string:
		return c.compressString(key, v)
	case map[string]any:
		return c.compressMap(v)
	case []any:
		return c.compressArray(key, v)
	default:
		return value
	}
}

// Error text gets twice the budget; it is what the model reasons about.
func (c *Compressor) compressString(key, s string) string {
	if c.redactor != nil {
		s = c.redactor.Redact(s)
	}
	limit := c.maxChars
	if isErrorField(key) && limit > 0 {
		limit *= 2
	}
	out, _ := Truncate(s, limit)
	return out
}

func (c *Compressor) compressMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = c.compressValue(k, v)
	}
	return out
}

// Arrays over 10 items keep the first and last 3 around a note.
func (c *Compressor) compressArray(key string, arr []any) []any {
	if len(arr) <= 10 {
		out := make([]any, len(arr))
		for i, v := range arr {
			out[i] = c.compressValue(key, v)
		}
		return out
	}

	out := make([]any, 0, 7)
	for _, v := range arr[:3] {
		out = append(out, c.compressValue(key, v))
	}
	out = append(out, map[string]any{
		"_note":    "[...]",
		"_skipped": len(arr) - 6,
		"_total":   len(arr),
	})
	for _, v := range arr[len(arr)-3:] {
		out = append(out, c.compressValue(key, v))
	}
	return out
}

func isErrorField(key string) bool {
	lower := strings.ToLower(key)
	return strings.Contains(lower, "error") || strings.Contains(lower, "missing")
}
