// Tools module - tool registration, argument validation and dispatch
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sort"
)

// Tool defines the tool interface
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// Result is the uniform outcome of a dispatch
type Result struct {
	Status string `json:"status"` // ok or failed
	Text   string `json:"text"`
}

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Dispatch failure kinds. These surface to the model as tool results so it
// can retry with corrected input; they are never fatal to a run.
var (
	ErrUnknownTool      = errors.New("unknown tool")
	ErrInvalidArguments = errors.New("invalid arguments")
	ErrExecutionFailed  = errors.New("tool execution failed")
)

// Registry holds registered tools. Built once at startup, read-only after.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
	log.Printf("[TOOL] registered: %s", t.Name())
}

// Get returns a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List returns registered tool names, sorted
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetToolSpecs returns OpenAI-format specs with function wrapper
func (r *Registry) GetToolSpecs() []map[string]interface{} {
	specs := make([]map[string]interface{}, 0, len(r.tools))
	for _, name := range r.List() {
		t := r.tools[name]
		specs = append(specs, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        t.Name(),
				"description": t.Description(),
				"parameters":  t.Parameters(),
			},
		})
	}
	return specs
}

// Dispatch validates args against the tool's schema and runs the handler.
// Handler errors and panics are folded into a failed Result; the returned
// error carries the failure kind and is never an uncaught fault.
func (r *Registry) Dispatch(ctx context.Context, name string, args map[string]interface{}) (res Result, err error) {
	t, ok := r.Get(name)
	if !ok {
		err = fmt.Errorf("%w: %s", ErrUnknownTool, name)
		return Result{Status: StatusFailed, Text: err.Error()}, err
	}

	if verr := validateArgs(t.Parameters(), args); verr != nil {
		err = fmt.Errorf("%w: %v", ErrInvalidArguments, verr)
		return Result{Status: StatusFailed, Text: err.Error()}, err
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[ERROR] tool panicked: %s - %v", name, rec)
			err = fmt.Errorf("%w: %s panicked: %v", ErrExecutionFailed, name, rec)
			res = Result{Status: StatusFailed, Text: err.Error()}
		}
	}()

	log.Printf("[TOOL] calling: %s", name)
	text, execErr := t.Execute(ctx, args)
	if execErr != nil {
		log.Printf("[ERROR] tool failed: %s - %v", name, execErr)
		err = fmt.Errorf("%w: %v", ErrExecutionFailed, execErr)
		return Result{Status: StatusFailed, Text: execErr.Error()}, err
	}

	log.Printf("[TOOL] succeeded: %s", name)
	return Result{Status: StatusOK, Text: text}, nil
}

// validateArgs checks required fields and primitive types against a
// JSON-schema-like parameters object before the handler runs
func validateArgs(schema map[string]interface{}, args map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	props, _ := schema["properties"].(map[string]interface{})

	if required, ok := schema["required"].([]string); ok {
		for _, field := range required {
			if _, present := args[field]; !present {
				return fmt.Errorf("missing required field %q", field)
			}
		}
	} else if required, ok := schema["required"].([]interface{}); ok {
		for _, f := range required {
			field, _ := f.(string)
			if _, present := args[field]; !present {
				return fmt.Errorf("missing required field %q", field)
			}
		}
	}

	for key, val := range args {
		spec, ok := props[key].(map[string]interface{})
		if !ok {
			continue // unknown fields pass through to the handler
		}
		wantType, _ := spec["type"].(string)
		if wantType == "" || val == nil {
			continue
		}
		if !typeMatches(wantType, val) {
			return fmt.Errorf("field %q: expected %s, got %T", key, wantType, val)
		}
	}
	return nil
}

func typeMatches(want string, val interface{}) bool {
	switch want {
	case "string":
		_, ok := val.(string)
		return ok
	case "integer", "number":
		switch val.(type) {
		case float64, int, int64, json.Number:
			return true
		}
		return false
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "array":
		_, ok := val.([]interface{})
		return ok
	case "object":
		_, ok := val.(map[string]interface{})
		return ok
	}
	return true
}

// ParseArgs decodes a JSON arguments string into a map
func ParseArgs(argsJSON string) (map[string]interface{}, error) {
	if argsJSON == "" {
		return map[string]interface{}{}, nil
	}
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return nil, fmt.Errorf("parse args: %w", err)
	}
	return args, nil
}

// GetString reads a string arg, empty if missing or wrong type
func GetString(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// GetInt reads an integer arg, 0 if missing or wrong type
func GetInt(args map[string]interface{}, key string) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

// Truncate shortens s for logs and model-facing summaries
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
