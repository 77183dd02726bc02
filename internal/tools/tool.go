package tools

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"moltbot/internal/engine"
)

// ToolFunc executes one action with already-validated arguments.
type ToolFunc func(ctx context.Context, args map[string]any) Outcome

// Tool couples a JSON schema with its handler.
type Tool struct {
	Name        string
	Description string
	SchemaJSON  string
	Fn          ToolFunc
}

// ValidateArgs validates the provided arguments against the tool's schema.
func (t Tool) ValidateArgs(args map[string]any) error {
	schemaLoader := gojsonschema.NewStringLoader(t.SchemaJSON)
	documentLoader := gojsonschema.NewGoLoader(args)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, verr := range result.Errors() {
			msgs = append(msgs, verr.String())
		}
		return fmt.Errorf("invalid arguments for %s: %s", t.Name, strings.Join(msgs, "; "))
	}
	return nil
}

// Registry maps tool names to tools.
type Registry map[string]Tool

// Schemas returns the provider-facing schema list, sorted by name so the
// menu presented to the model is stable across runs.
func (r Registry) Schemas() []engine.ToolSchema {
	s := make([]engine.ToolSchema, 0, len(r))
	for _, t := range r {
		s = append(s, engine.ToolSchema{
			Name:        t.Name,
			Description: t.Description,
			JSONSchema:  t.SchemaJSON,
		})
	}
	sort.Slice(s, func(i, j int) bool { return s[i].Name < s[j].Name })
	return s
}

// argument accessors; validation has already run, so these only need to
// cope with optional fields and JSON's float64 numbers.

func strArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

func strArgDefault(args map[string]any, key, def string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return def
}

func intArg(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

func mapArg(args map[string]any, key string) map[string]any {
	v, _ := args[key].(map[string]any)
	return v
}
