// Workspace content tools - page search, read, create and update
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/scrivenlab/scriven/workspace"
)

// SearchPagesTool finds pages in the workspace
type SearchPagesTool struct {
	Client *workspace.Client
}

func (t *SearchPagesTool) Name() string { return "search_pages" }

func (t *SearchPagesTool) Description() string {
	return "Search for pages in the user's workspace by text query"
}

func (t *SearchPagesTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"query":     map[string]interface{}{"type": "string", "description": "Search query text"},
			"page_size": map[string]interface{}{"type": "integer", "description": "Number of results to return (default 10)"},
		},
		"required": []string{"query"},
	}
}

func (t *SearchPagesTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	query := GetString(args, "query")
	data, err := t.Client.Search(ctx, query, GetInt(args, "page_size"))
	if err != nil {
		return "", err
	}
	if len(data.Results) == 0 {
		return fmt.Sprintf("No pages found for %q.", query), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d pages for %q:\n", data.TotalCount, query)
	for _, r := range data.Results {
		fmt.Fprintf(&b, "- %s (id: %s, edited: %s)\n", r.Title, r.ID, r.LastEditedTime)
	}
	return b.String(), nil
}

// ReadPageTool loads a page's content
type ReadPageTool struct {
	Client *workspace.Client
}

func (t *ReadPageTool) Name() string { return "read_page" }

func (t *ReadPageTool) Description() string {
	return "Read the full content of a workspace page by ID or title"
}

func (t *ReadPageTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"identifier": map[string]interface{}{"type": "string", "description": "Page ID or exact title"},
		},
		"required": []string{"identifier"},
	}
}

func (t *ReadPageTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	page, err := t.Client.ReadPage(ctx, GetString(args, "identifier"))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s (id: %s)\n", page.Title, page.ID)
	if len(page.Content) > 0 {
		// Content blocks arrive as raw JSON; flatten text fields for the model
		var blocks []map[string]interface{}
		if err := json.Unmarshal(page.Content, &blocks); err == nil {
			for _, blk := range blocks {
				if text, ok := blk["text"].(string); ok && text != "" {
					b.WriteString(text)
					b.WriteString("\n")
				}
			}
		} else {
			b.Write(page.Content)
		}
	}
	return b.String(), nil
}

// CreatePageTool creates a new page
type CreatePageTool struct {
	Client *workspace.Client
}

func (t *CreatePageTool) Name() string { return "create_page" }

func (t *CreatePageTool) Description() string {
	return "Create a new page in the workspace. The service picks a parent page automatically unless parent_id is given."
}

func (t *CreatePageTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"title":     map[string]interface{}{"type": "string", "description": "Page title"},
			"content":   map[string]interface{}{"type": "string", "description": "Page content in plain text"},
			"parent_id": map[string]interface{}{"type": "string", "description": "Parent page ID (optional)"},
		},
		"required": []string{"title", "content"},
	}
}

func (t *CreatePageTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	page, err := t.Client.CreatePage(ctx, GetString(args, "title"), GetString(args, "content"), GetString(args, "parent_id"))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Created page %q (id: %s, url: %s)", page.Title, page.ID, page.URL), nil
}

// UpdatePageTool appends content to an existing page
type UpdatePageTool struct {
	Client *workspace.Client
}

func (t *UpdatePageTool) Name() string { return "update_page" }

func (t *UpdatePageTool) Description() string {
	return "Append a content block to an existing workspace page"
}

func (t *UpdatePageTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"page_id":      map[string]interface{}{"type": "string", "description": "Target page ID"},
			"content":      map[string]interface{}{"type": "string", "description": "Content to append"},
			"content_type": map[string]interface{}{"type": "string", "description": "Block type: paragraph, heading_1, bulleted_list_item, to_do (default paragraph)"},
		},
		"required": []string{"page_id", "content"},
	}
}

func (t *UpdatePageTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	msg, err := t.Client.AddContent(ctx, GetString(args, "page_id"), GetString(args, "content_type"), GetString(args, "content"))
	if err != nil {
		return "", err
	}
	if msg == "" {
		msg = "Content added."
	}
	return msg, nil
}

// RegisterWorkspaceTools adds the content tools when the client is configured.
// An absent workspace token simply leaves these out of the catalog.
func RegisterWorkspaceTools(r *Registry, client *workspace.Client) {
	if !client.Enabled() {
		return
	}
	r.Register(&SearchPagesTool{Client: client})
	r.Register(&ReadPageTool{Client: client})
	r.Register(&CreatePageTool{Client: client})
	r.Register(&UpdatePageTool{Client: client})
}
