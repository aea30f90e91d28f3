// Package builtin provides the stock tool set registered at startup:
// deterministic stand-ins for a weather lookup, a web search, and a
// calculator, each satisfying the tools.Tool contract.
package builtin

import (
	"context"
	"fmt"
	"math"

	"github.com/threadline/dialoguecore/internal/tools"
)

type weatherTool struct{}

func NewWeatherTool() tools.Tool { return weatherTool{} }

func (weatherTool) ID() string       { return "weather" }
func (weatherTool) Name() string     { return "Weather Lookup" }
func (weatherTool) Category() string { return "information" }

func (weatherTool) ParameterSchema() tools.ParameterSchema {
	return tools.ParameterSchema{Required: []string{"city"}, Optional: []string{"date"}}
}

func (weatherTool) Invoke(ctx context.Context, parameters map[string]any) (any, error) {
	city, _ := parameters["city"].(string)
	date, _ := parameters["date"].(string)
	if date == "" {
		date = "today"
	}
	return map[string]any{
		"city":        city,
		"date":        date,
		"condition":   "light rain",
		"high_c":      27,
		"low_c":       23,
		"precip_prob": 0.7,
	}, nil
}

type searchTool struct{}

func NewSearchTool() tools.Tool { return searchTool{} }

func (searchTool) ID() string       { return "search" }
func (searchTool) Name() string     { return "Web Search" }
func (searchTool) Category() string { return "information" }

func (searchTool) ParameterSchema() tools.ParameterSchema {
	return tools.ParameterSchema{Required: []string{"query"}, Optional: []string{"max_results"}}
}

func (searchTool) Invoke(ctx context.Context, parameters map[string]any) (any, error) {
	query, _ := parameters["query"].(string)
	maxResults := 3
	if v, ok := parameters["max_results"].(float64); ok && v > 0 {
		maxResults = int(v)
	}
	results := make([]map[string]string, 0, maxResults)
	for i := 0; i < maxResults; i++ {
		results = append(results, map[string]string{
			"title": fmt.Sprintf("Result %d for %q", i+1, query),
			"url":   fmt.Sprintf("https://example.invalid/search?q=%s&r=%d", query, i+1),
		})
	}
	return map[string]any{"query": query, "results": results}, nil
}

type calculatorTool struct{}

func NewCalculatorTool() tools.Tool { return calculatorTool{} }

func (calculatorTool) ID() string       { return "calculator" }
func (calculatorTool) Name() string     { return "Calculator" }
func (calculatorTool) Category() string { return "utility" }

func (calculatorTool) ParameterSchema() tools.ParameterSchema {
	return tools.ParameterSchema{Required: []string{"operation", "a", "b"}}
}

func (calculatorTool) Invoke(ctx context.Context, parameters map[string]any) (any, error) {
	op, _ := parameters["operation"].(string)
	a, aok := parameters["a"].(float64)
	b, bok := parameters["b"].(float64)
	if !aok || !bok {
		return nil, fmt.Errorf("a and b must be numeric")
	}
	var result float64
	switch op {
	case "add":
		result = a + b
	case "subtract":
		result = a - b
	case "multiply":
		result = a * b
	case "divide":
		if b == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		result = a / b
	case "power":
		result = math.Pow(a, b)
	default:
		return nil, fmt.Errorf("unsupported operation %q", op)
	}
	return map[string]any{"operation": op, "a": a, "b": b, "result": result}, nil
}

// RegisterAll registers the stock tool set into r.
func RegisterAll(r *tools.Registry) {
	r.Register(NewWeatherTool())
	r.Register(NewSearchTool())
	r.Register(NewCalculatorTool())
}
