// Package tools implements ToolRegistry and ToolInvoker: the catalog of
// named tools with typed parameter schemas, and the dispatcher that
// validates, executes, times out, and logs a single invocation.
package tools

import "context"

// ParameterSchema is a minimal JSON-Schema-shaped parameter declaration:
// each entry names a parameter and whether it is required. Types are not
// deeply validated; this mirrors the teacher's preference for cheap,
// explicit checks over a full schema validator dependency.
type ParameterSchema struct {
	Required []string
	Optional []string
}

// Tool is the collaborator contract named in the external interfaces: a
// named, categorized, schema-declaring invocable unit.
type Tool interface {
	ID() string
	Name() string
	Category() string
	ParameterSchema() ParameterSchema
	Invoke(ctx context.Context, parameters map[string]any) (any, error)
}
