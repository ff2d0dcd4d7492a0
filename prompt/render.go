// Package prompt renders a session into the single text prompt sent to the model.
package prompt

import (
	"log/slog"
	"strings"
	"sync"
	"text/template"

	"github.com/kj-assistant/kj"
	defaults "github.com/kj-assistant/kj/default"
)

// Data holds the values available to a system prompt template.
type Data struct {
	// Name is the command name the assistant is invoked with.
	Name string
}

var defaultPrompt = sync.OnceValue(func() string {
	p, err := FromTemplate(defaults.DefaultPrompt)
	if err != nil {
		panic("kj: invalid embedded default_prompt.md: " + err.Error())
	}
	return p
})

// Default returns the built-in system prompt.
func Default() string {
	return defaultPrompt()
}

// FromTemplate renders a system prompt template with the tool's Data.
func FromTemplate(src string) (string, error) {
	t, err := template.New("prompt").Parse(src)
	if err != nil {
		return "", err
	}
	var buf strings.Builder
	if err := t.Execute(&buf, Data{Name: kj.Name}); err != nil {
		return "", err
	}
	return strings.TrimRight(buf.String(), " \t\n"), nil
}

// Custom renders a user-supplied template, falling back to the default
// prompt when it does not parse.
func Custom(src string) string {
	p, err := FromTemplate(src)
	if err != nil {
		slog.Warn("failed to render custom prompt, falling back to default", "error", err)
		return Default()
	}
	return p
}

// Render concatenates the system prompt and every turn of the session, ending
// with an open assistant tag for the model to continue from. It does not
// modify the session, and equal sessions render to identical text.
func Render(s *kj.Session) string {
	system := Default()
	if s.SystemPrompt != nil {
		system = *s.SystemPrompt
	}

	var sb strings.Builder
	sb.WriteString(system)
	sb.WriteString("\n\n")
	for _, turn := range s.Turns {
		writeTurn(&sb, turn)
		sb.WriteString("\n\n")
	}
	sb.WriteString("<assistant>\n")
	return sb.String()
}

func writeTurn(sb *strings.Builder, turn kj.Turn) {
	sb.WriteString("<command>\n")
	sb.WriteString(turn.Command)
	sb.WriteString("\n</command>\n")
	if turn.Stdin != "" {
		sb.WriteString("<stdin>\n")
		sb.WriteString(turn.Stdin)
		sb.WriteString("\n</stdin>\n")
	}
	if turn.Response != "" {
		sb.WriteString("<assistant>\n")
		sb.WriteString(turn.Response)
		sb.WriteString("\n</assistant>\n")
	}
}
