package memory

import (
	"strings"
	"time"
	"unicode"
)

// Narrative keys.
const (
	KeyPersona = "persona"
	KeyGoals   = "goals"
)

// Rule is a standing user preference, e.g. "always use SDXL checkpoints".
type Rule struct {
	ID        int64     `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Skill is a named reusable procedure the user asked the assistant to remember.
type Skill struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Body        string    `json:"body,omitempty"`
	Tags        []string  `json:"tags,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasTag returns true if the skill has the specified tag.
func (s Skill) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Summary drops the body for listings.
func (s Skill) Summary() Skill {
	s.Body = ""
	return s
}

// UserContext is what the context loader reads from the store.
type UserContext struct {
	Rules   []string
	Persona string
	Goals   string
}

// ThreadInfo describes a stored conversation.
type ThreadInfo struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Slug derives a skill ID from its name: lowercase letters and digits
// joined by single dashes.
func Slug(name string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			dash = false
			continue
		}
		if !dash && sb.Len() > 0 {
			sb.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(sb.String(), "-")
}
