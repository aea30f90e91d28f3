package builtin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/threadline/dialoguecore/internal/tools"
)

func TestCalculatorOperations(t *testing.T) {
	calc := NewCalculatorTool()
	cases := []struct {
		op   string
		a, b float64
		want float64
	}{
		{"add", 2, 3, 5},
		{"subtract", 5, 3, 2},
		{"multiply", 4, 3, 12},
		{"divide", 10, 4, 2.5},
		{"power", 2, 5, 32},
	}
	for _, c := range cases {
		out, err := calc.Invoke(context.Background(), map[string]any{
			"operation": c.op, "a": c.a, "b": c.b,
		})
		require.NoError(t, err)
		result := out.(map[string]any)
		require.Equal(t, c.want, result["result"], "operation=%s", c.op)
	}
}

func TestCalculatorDivideByZero(t *testing.T) {
	calc := NewCalculatorTool()
	_, err := calc.Invoke(context.Background(), map[string]any{
		"operation": "divide", "a": 1.0, "b": 0.0,
	})
	require.Error(t, err)
}

func TestCalculatorUnsupportedOperation(t *testing.T) {
	calc := NewCalculatorTool()
	_, err := calc.Invoke(context.Background(), map[string]any{
		"operation": "modulo", "a": 1.0, "b": 2.0,
	})
	require.Error(t, err)
}

func TestWeatherToolDefaultsDate(t *testing.T) {
	w := NewWeatherTool()
	out, err := w.Invoke(context.Background(), map[string]any{"city": "Austin"})
	require.NoError(t, err)
	result := out.(map[string]any)
	require.Equal(t, "today", result["date"])
	require.Equal(t, "Austin", result["city"])
}

func TestSearchToolRespectsMaxResults(t *testing.T) {
	s := NewSearchTool()
	out, err := s.Invoke(context.Background(), map[string]any{"query": "turns", "max_results": float64(2)})
	require.NoError(t, err)
	result := out.(map[string]any)
	require.Len(t, result["results"], 2)
}

func TestRegisterAllWiresRegistry(t *testing.T) {
	r := tools.NewRegistry()
	RegisterAll(r)

	names := make([]string, 0, 3)
	for _, tl := range r.List() {
		names = append(names, tl.ID())
	}
	require.ElementsMatch(t, []string{"weather", "search", "calculator"}, names)

	cats := r.Categories()
	require.ElementsMatch(t, []string{"information", "utility"}, cats)
}
