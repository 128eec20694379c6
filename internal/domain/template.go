package domain

import (
	"fmt"
	"strings"
	"time"
)

// Template is a read-only external entity; the engine resolves and renders
// it but never creates or mutates one.
type Template struct {
	ID        string
	Name      string
	Channel   Channel
	Subject   string
	Content   string
	Variables []string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Render interpolates {{name}} placeholders in the template content with
// values from vars. Unknown placeholders are left as-is, mirroring how the
// original templates behave when a variable is missing.
func (t *Template) Render(vars map[string]any) string {
	return interpolate(t.Content, vars)
}

// RenderSubject interpolates the subject line, falling back to a generic
// subject when the template has none.
func (t *Template) RenderSubject(vars map[string]any) string {
	if strings.TrimSpace(t.Subject) == "" {
		return "Notification"
	}
	return interpolate(t.Subject, vars)
}

func interpolate(s string, vars map[string]any) string {
	if len(vars) == 0 {
		return s
	}
	replacements := make([]string, 0, len(vars)*2)
	for key, value := range vars {
		replacements = append(replacements,
			fmt.Sprintf("{{%s}}", key), fmt.Sprint(value),
		)
	}
	return strings.NewReplacer(replacements...).Replace(s)
}
