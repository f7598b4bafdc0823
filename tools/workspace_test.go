package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/scrivenlab/scriven/workspace"
)

// fakeContentService mimics the content-service API envelope
func fakeContentService(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/api/search":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"data": map[string]interface{}{
					"results": []map[string]interface{}{
						{"id": "p1", "title": "Meeting Notes", "last_edited_time": "2026-08-01"},
					},
					"total_count": 1,
					"query":       body["query"],
				},
			})
		case "/api/page/read":
			if body["identifier"] == "missing" {
				json.NewEncoder(w).Encode(map[string]interface{}{
					"success": false,
					"message": "page not found",
				})
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"data": map[string]interface{}{
					"id":    "p1",
					"title": "Meeting Notes",
					"content": []map[string]interface{}{
						{"type": "paragraph", "text": "Budget review on Friday."},
						{"type": "paragraph", "text": "Invite the design team."},
					},
				},
			})
		case "/api/page/create":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"data": map[string]interface{}{
					"id":    "p9",
					"title": body["title"],
					"url":   "https://ws.example/p9",
				},
			})
		case "/api/page/add-content":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"success": true,
				"message": "Added 1 paragraph block",
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestClient(t *testing.T) *workspace.Client {
	srv := fakeContentService(t)
	t.Cleanup(srv.Close)
	return workspace.New(srv.URL, "test-token", 5*time.Second)
}

func TestSearchPagesTool(t *testing.T) {
	tool := &SearchPagesTool{Client: newTestClient(t)}

	out, err := tool.Execute(context.Background(), map[string]interface{}{"query": "meeting"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(out, "Meeting Notes") || !strings.Contains(out, "p1") {
		t.Errorf("Search output missing page info: %q", out)
	}
}

func TestReadPageTool(t *testing.T) {
	tool := &ReadPageTool{Client: newTestClient(t)}

	out, err := tool.Execute(context.Background(), map[string]interface{}{"identifier": "p1"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(out, "Budget review on Friday.") {
		t.Errorf("Page content not flattened: %q", out)
	}
	if !strings.Contains(out, "# Meeting Notes") {
		t.Errorf("Page heading missing: %q", out)
	}
}

func TestReadPageToolNotFound(t *testing.T) {
	tool := &ReadPageTool{Client: newTestClient(t)}

	_, err := tool.Execute(context.Background(), map[string]interface{}{"identifier": "missing"})
	if err == nil || !strings.Contains(err.Error(), "page not found") {
		t.Errorf("Expected service rejection to surface, got %v", err)
	}
}

func TestCreatePageTool(t *testing.T) {
	tool := &CreatePageTool{Client: newTestClient(t)}

	out, err := tool.Execute(context.Background(), map[string]interface{}{
		"title":   "Ideas",
		"content": "First idea",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if !strings.Contains(out, "Ideas") || !strings.Contains(out, "p9") {
		t.Errorf("Create output missing page info: %q", out)
	}
}

func TestUpdatePageTool(t *testing.T) {
	tool := &UpdatePageTool{Client: newTestClient(t)}

	out, err := tool.Execute(context.Background(), map[string]interface{}{
		"page_id": "p1",
		"content": "New line",
	})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if out != "Added 1 paragraph block" {
		t.Errorf("Expected service message, got %q", out)
	}
}

func TestRegisterWorkspaceToolsDisabled(t *testing.T) {
	r := NewRegistry()
	RegisterWorkspaceTools(r, workspace.New("", "", 0))
	if len(r.List()) != 0 {
		t.Errorf("Unconfigured client must register nothing, got %v", r.List())
	}
}

func TestRegisterWorkspaceToolsEnabled(t *testing.T) {
	r := NewRegistry()
	RegisterWorkspaceTools(r, newTestClient(t))

	want := []string{"create_page", "read_page", "search_pages", "update_page"}
	got := r.List()
	if len(got) != len(want) {
		t.Fatalf("Expected %d tools, got %v", len(want), got)
	}
	for i, name := range want {
		if got[i] != name {
			t.Errorf("Expected %s at %d, got %s", name, i, got[i])
		}
	}
}
