package mixer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMixAppendsCitations(t *testing.T) {
	m := New(0)
	out := m.Mix(Input{
		ModelOutput: "  the weather looks fine  ",
		Citations: []ToolCitation{
			{ToolID: "weather", Summary: "27C, light rain"},
		},
	})
	require.Equal(t, "the weather looks fine\n\n[via weather] 27C, light rain", out)
}

func TestMixTrimsWhitespaceWithNoCitations(t *testing.T) {
	m := New(0)
	out := m.Mix(Input{ModelOutput: "  hello  "})
	require.Equal(t, "hello", out)
}

func TestMixTruncatesToMaxLength(t *testing.T) {
	m := New(10)
	out := m.Mix(Input{ModelOutput: strings.Repeat("a", 50)})
	require.Len(t, out, 10)
}

func TestMixAppliesRegisteredPlugin(t *testing.T) {
	m := New(0)
	m.RegisterPlugin("shout", func(text string) string {
		return strings.ToUpper(text)
	})
	out := m.Mix(Input{ModelOutput: "hello there", StyleTag: "shout"})
	require.Equal(t, "HELLO THERE", out)
}

func TestMixUnknownStyleTagIsNoOp(t *testing.T) {
	m := New(0)
	out := m.Mix(Input{ModelOutput: "hello", StyleTag: "nonexistent"})
	require.Equal(t, "hello", out)
}

func TestMixDefaultMaxLengthAppliedWhenNonPositive(t *testing.T) {
	m := New(-5)
	require.Equal(t, DefaultMaxLength, m.maxLength)
}
