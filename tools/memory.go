// Memory tools - semantic recall and profile facts exposed to the model
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/scrivenlab/scriven/memory"
)

// SemanticSearcher is the slice of the vector store the search tool needs
type SemanticSearcher interface {
	Search(ctx context.Context, query string, k int, minScore float32) ([]memory.Result, error)
}

// MemorySearchTool lets the model query past conversation turns
type MemorySearchTool struct {
	Index SemanticSearcher
}

func (t *MemorySearchTool) Name() string { return "memory_search" }

func (t *MemorySearchTool) Description() string {
	return "Search past conversations by meaning. Use when the user refers to something discussed before."
}

func (t *MemorySearchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query": map[string]interface{}{"type": "string", "description": "What to look for"},
			"limit": map[string]interface{}{"type": "integer", "description": "Max results (default 3)"},
		},
		"required": []string{"query"},
	}
}

func (t *MemorySearchTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	limit := GetInt(args, "limit")
	if limit <= 0 {
		limit = 3
	}
	results, err := t.Index.Search(ctx, GetString(args, "query"), limit, 0)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "No related past conversations found.", nil
	}

	var b strings.Builder
	b.WriteString("Related past conversations:\n")
	for _, r := range results {
		fmt.Fprintf(&b, "- [%.2f] %s\n", r.Score, Truncate(r.Entry.Text, 300))
	}
	return b.String(), nil
}

// ProfileSaveTool records a fact about the user. The fact is buffered on the
// run and persisted by the memory synchronizer at commit time, so the three
// stores stay consistent even if the turn later fails.
type ProfileSaveTool struct{}

func (t *ProfileSaveTool) Name() string { return "profile_save" }

func (t *ProfileSaveTool) Description() string {
	return "Save a fact the user stated about themselves (name, role, preferences, timezone, ...)"
}

func (t *ProfileSaveTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"field": map[string]interface{}{"type": "string", "description": "Fact name, e.g. name, location, favorite_tool"},
			"value": map[string]interface{}{"type": "string", "description": "Fact value"},
		},
		"required": []string{"field", "value"},
	}
}

func (t *ProfileSaveTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	field := strings.TrimSpace(GetString(args, "field"))
	value := strings.TrimSpace(GetString(args, "value"))
	if field == "" || value == "" {
		return "", fmt.Errorf("field and value must be non-empty")
	}
	return fmt.Sprintf("Noted: %s = %s", field, value), nil
}
