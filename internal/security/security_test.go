package security

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestURLGuard(t *testing.T) {
	g := NewURLGuard()
	ctx := context.Background()

	blocked := []string{
		"file:///etc/passwd",
		"ftp://example.com/x",
		"http://localhost:8188/object_info",
		"http://127.0.0.1/",
		"http://10.1.2.3/",
		"http://192.168.1.10:8188/",
		"http://169.254.169.254/latest/meta-data",
		"http://[::1]/",
		"http:///nohost",
	}
	for _, u := range blocked {
		assert.Error(t, g.Check(ctx, u), u)
	}

	assert.NoError(t, g.Check(ctx, "https://8.8.8.8/"))
	assert.NoError(t, g.Check(ctx, "http://[2606:4700:4700::1111]/"))
}

func TestRedact(t *testing.T) {
	r := NewRedactor()

	tests := []struct {
		name    string
		in      string
		secret  string
		keepsIn string
	}{
		{"keyed", `api_key=abcd1234efgh5678`, "abcd1234efgh5678", "api_key="},
		{"json keyed", `{"password": "hunter2hunter2"}`, "hunter2hunter2", `"password": "`},
		{"bearer", "Authorization: Bearer abcdefghijklmnop", "abcdefghijklmnop", "Authorization:"},
		{"google", "key AIza" + strings.Repeat("x", 35), "AIza" + strings.Repeat("x", 35), "key "},
		{"huggingface", "token hf_" + strings.Repeat("a", 34), "hf_" + strings.Repeat("a", 34), "token "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Redact(tt.in)
			assert.NotContains(t, out, tt.secret)
			assert.Contains(t, out, tt.keepsIn)
			assert.Contains(t, out, "[REDACTED]")
		})
	}

	assert.Equal(t, "steps=20 cfg=7", r.Redact("steps=20 cfg=7"))
	assert.Equal(t, "", r.Redact(""))
}
