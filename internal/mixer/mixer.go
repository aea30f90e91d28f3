// Package mixer implements ResponseMixer: composition of the final
// assistant Message content from raw model output, optional tool result
// summaries, and optional style decoration.
package mixer

import (
	"fmt"
	"strings"
)

const DefaultMaxLength = 8000

// ToolCitation names one tool result folded into the final response.
type ToolCitation struct {
	ToolID  string
	Summary string
}

// DecorationPlugin applies an optional, named transformation to the
// composed text (translation, emotional styling, ...). The default set is
// no-op; additional plugins can be registered by name.
type DecorationPlugin func(text string) string

type Mixer struct {
	plugins   map[string]DecorationPlugin
	maxLength int
}

func New(maxLength int) *Mixer {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	return &Mixer{plugins: map[string]DecorationPlugin{}, maxLength: maxLength}
}

// RegisterPlugin adds a named decoration plugin. Built-in style tags not
// matching a registered plugin are left untouched (the no-op default).
func (m *Mixer) RegisterPlugin(name string, fn DecorationPlugin) {
	m.plugins[name] = fn
}

// Input is what DialogueCore hands ResponseMixer once the model has
// produced its final (non-tool-request) output.
type Input struct {
	ModelOutput string
	Citations   []ToolCitation
	StyleTag    string
}

// Mix composes the final Message content.
func (m *Mixer) Mix(in Input) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(in.ModelOutput))

	for _, c := range in.Citations {
		b.WriteString(fmt.Sprintf("\n\n[via %s] %s", c.ToolID, c.Summary))
	}

	text := b.String()
	if plugin, ok := m.plugins[in.StyleTag]; ok && plugin != nil {
		text = plugin(text)
	}

	if len(text) > m.maxLength {
		text = text[:m.maxLength]
	}
	return text
}
