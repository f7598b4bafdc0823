// Package workspace provides the HTTP client for the workspace content service
package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the content-service API
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

// New creates a workspace client
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether a content-service token is configured
func (c *Client) Enabled() bool {
	return c != nil && c.token != "" && c.baseURL != ""
}

// Envelope is the content-service response wrapper
type Envelope struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	Timestamp string          `json:"timestamp"`
}

// SearchResult is one search hit
type SearchResult struct {
	ID             string `json:"id"`
	Object         string `json:"object"`
	Title          string `json:"title"`
	URL            string `json:"url"`
	CreatedTime    string `json:"created_time"`
	LastEditedTime string `json:"last_edited_time"`
}

// SearchData is the payload of a search response
type SearchData struct {
	Results    []SearchResult `json:"results"`
	TotalCount int            `json:"total_count"`
	Query      string         `json:"query"`
}

// Page is a full page payload
type Page struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	URL            string          `json:"url"`
	CreatedTime    string          `json:"created_time"`
	LastEditedTime string          `json:"last_edited_time"`
	Content        json.RawMessage `json:"content"`
}

// Search finds pages matching query
func (c *Client) Search(ctx context.Context, query string, pageSize int) (*SearchData, error) {
	if pageSize <= 0 {
		pageSize = 10
	}
	env, err := c.post(ctx, "/api/search", map[string]interface{}{
		"query":     query,
		"page_size": pageSize,
	})
	if err != nil {
		return nil, err
	}
	var data SearchData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("parse search data: %w", err)
	}
	return &data, nil
}

// ReadPage loads a page by ID or title
func (c *Client) ReadPage(ctx context.Context, identifier string) (*Page, error) {
	env, err := c.post(ctx, "/api/page/read", map[string]interface{}{
		"identifier": identifier,
	})
	if err != nil {
		return nil, err
	}
	var page Page
	if err := json.Unmarshal(env.Data, &page); err != nil {
		return nil, fmt.Errorf("parse page data: %w", err)
	}
	return &page, nil
}

// CreatePage creates a page; parentID may be empty (service auto-discovers)
func (c *Client) CreatePage(ctx context.Context, title, content, parentID string) (*Page, error) {
	body := map[string]interface{}{
		"title":   title,
		"content": content,
	}
	if parentID != "" {
		body["parent_id"] = parentID
	}
	env, err := c.post(ctx, "/api/page/create", body)
	if err != nil {
		return nil, err
	}
	var page Page
	if err := json.Unmarshal(env.Data, &page); err != nil {
		return nil, fmt.Errorf("parse page data: %w", err)
	}
	return &page, nil
}

// AddContent appends a block to an existing page
func (c *Client) AddContent(ctx context.Context, pageID, contentType, content string) (string, error) {
	if contentType == "" {
		contentType = "paragraph"
	}
	env, err := c.post(ctx, "/api/page/add-content", map[string]interface{}{
		"page_id":      pageID,
		"content_type": contentType,
		"content":      content,
	})
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

func (c *Client) post(ctx context.Context, path string, body interface{}) (*Envelope, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("workspace request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("workspace error (%d): %s", resp.StatusCode, truncate(string(respBody), 300))
	}

	var env Envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if !env.Success {
		return nil, fmt.Errorf("workspace rejected request: %s", env.Message)
	}
	return &env, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
