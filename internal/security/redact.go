package security

import "regexp"

const redacted = "[REDACTED]"

// Redactor masks credentials that show up in fetched pages or backend
// error messages before they are stored in the conversation.
type Redactor struct {
	keyed    *regexp.Regexp
	patterns []*regexp.Regexp
}

// NewRedactor creates a redactor with the default patterns.
func NewRedactor() *Redactor {
	return &Redactor{
		// Keeps the label, masks the value.
		keyed: regexp.MustCompile(`(?i)((?:api[_-]?key|access[_-]?token|auth[_-]?token|secret|password|hf_token)["']?\s*[:=]\s*["']?)([A-Za-z0-9_\-.+/]{8,})`),
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9_\-.]{10,256}`),
			regexp.MustCompile(`AIza[0-9A-Za-z\-_]{35}`),
			regexp.MustCompile(`hf_[A-Za-z0-9]{30,}`),
			regexp.MustCompile(`gh[pous]_[A-Za-z0-9]{36}`),
			regexp.MustCompile(`sk-[A-Za-z0-9_\-]{20,}`),
			regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.(?:eyJ[A-Za-z0-9_-]+)?\.[A-Za-z0-9_-]{20,}`),
			regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]+?-----END [A-Z ]*PRIVATE KEY-----`),
		},
	}
}

// Redact masks every detected secret in text.
func (r *Redactor) Redact(text string) string {
	if text == "" {
		return ""
	}
	out := r.keyed.ReplaceAllString(text, "${1}"+redacted)
	for _, p := range r.patterns {
		out = p.ReplaceAllString(out, redacted)
	}
	return out
}
