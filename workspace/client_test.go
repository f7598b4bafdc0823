package workspace

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestEnabled(t *testing.T) {
	if New("http://x", "tok", 0).Enabled() != true {
		t.Error("Configured client should be enabled")
	}
	if New("http://x", "", 0).Enabled() {
		t.Error("Missing token should disable the client")
	}
	if New("", "tok", 0).Enabled() {
		t.Error("Missing base URL should disable the client")
	}
	var c *Client
	if c.Enabled() {
		t.Error("Nil client should be disabled")
	}
}

func TestSearch(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data": map[string]interface{}{
				"results":     []map[string]interface{}{{"id": "p1", "title": "Notes"}},
				"total_count": 1,
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok-1", 5*time.Second)
	data, err := c.Search(context.Background(), "notes", 0)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if gotPath != "/api/search" {
		t.Errorf("Expected /api/search, got %s", gotPath)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("Expected bearer auth, got %q", gotAuth)
	}
	if gotBody["page_size"] != float64(10) {
		t.Errorf("Expected default page_size 10, got %v", gotBody["page_size"])
	}
	if data.TotalCount != 1 || data.Results[0].Title != "Notes" {
		t.Errorf("Unexpected data %+v", data)
	}
}

func TestReadPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    map[string]interface{}{"id": "p1", "title": "Notes"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", time.Second)
	page, err := c.ReadPage(context.Background(), "Notes")
	if err != nil {
		t.Fatalf("ReadPage failed: %v", err)
	}
	if page.ID != "p1" {
		t.Errorf("Expected page p1, got %q", page.ID)
	}
}

func TestCreatePageOmitsEmptyParent(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"data":    map[string]interface{}{"id": "p2", "title": "New"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", time.Second)
	if _, err := c.CreatePage(context.Background(), "New", "body", ""); err != nil {
		t.Fatalf("CreatePage failed: %v", err)
	}
	if _, ok := gotBody["parent_id"]; ok {
		t.Error("Empty parent_id must be omitted so the service auto-discovers")
	}
}

func TestAddContentDefaultsType(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": true,
			"message": "Added block",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", time.Second)
	msg, err := c.AddContent(context.Background(), "p1", "", "line")
	if err != nil {
		t.Fatalf("AddContent failed: %v", err)
	}
	if gotBody["content_type"] != "paragraph" {
		t.Errorf("Expected default content_type paragraph, got %v", gotBody["content_type"])
	}
	if msg != "Added block" {
		t.Errorf("Expected service message, got %q", msg)
	}
}

func TestServiceRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"message": "no page found matching 'x'",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", time.Second)
	_, err := c.ReadPage(context.Background(), "x")
	if err == nil || !strings.Contains(err.Error(), "no page found") {
		t.Errorf("Expected rejection message to surface, got %v", err)
	}
}

func TestHTTPErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "tok", time.Second)
	_, err := c.Search(context.Background(), "x", 5)
	if err == nil || !strings.Contains(err.Error(), "500") {
		t.Errorf("Expected status error, got %v", err)
	}
}
