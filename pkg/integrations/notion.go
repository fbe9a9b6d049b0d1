package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// notionAPIURL is overridable in tests
var notionAPIURL = "https://api.notion.com/v1"

const notionVersion = "2022-06-28"

// NotionDispatcher implements the "notion" integration. A connection
// with an integration token is required.
type NotionDispatcher struct {
	client *http.Client
}

// NewNotionDispatcher creates a new notion dispatcher
func NewNotionDispatcher() *NotionDispatcher {
	return &NotionDispatcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Name returns the integration name used in step definitions
func (d *NotionDispatcher) Name() string {
	return "notion"
}

// Dispatch executes a notion action
func (d *NotionDispatcher) Dispatch(ctx context.Context, req Request) (map[string]interface{}, error) {
	if req.Settings == nil {
		return nil, fmt.Errorf("notion requires a stored connection")
	}
	token, _ := req.Settings["token"].(string)
	if token == "" {
		return nil, fmt.Errorf("notion connection is missing a token")
	}

	switch req.Action {
	case "create_page":
		return d.createPage(ctx, token, req)
	case "query_database":
		return d.queryDatabase(ctx, token, req)
	default:
		return nil, fmt.Errorf("%w: notion.%s", ErrUnknownAction, req.Action)
	}
}

// createPage adds a page with a title and optional paragraph content
// under a parent page or database
func (d *NotionDispatcher) createPage(ctx context.Context, token string, req Request) (map[string]interface{}, error) {
	parentID, _ := req.Config["parent_id"].(string)
	if parentID == "" {
		return nil, fmt.Errorf("notion.create_page requires a \"parent_id\"")
	}
	title, _ := req.Config["title"].(string)
	if title == "" {
		return nil, fmt.Errorf("notion.create_page requires a \"title\"")
	}

	payload := map[string]interface{}{
		"parent": map[string]interface{}{"page_id": parentID},
		"properties": map[string]interface{}{
			"title": map[string]interface{}{
				"title": []interface{}{
					map[string]interface{}{
						"text": map[string]interface{}{"content": title},
					},
				},
			},
		},
	}

	if content, ok := req.Config["content"].(string); ok && content != "" {
		payload["children"] = []interface{}{
			map[string]interface{}{
				"object": "block",
				"type":   "paragraph",
				"paragraph": map[string]interface{}{
					"rich_text": []interface{}{
						map[string]interface{}{
							"type": "text",
							"text": map[string]interface{}{"content": content},
						},
					},
				},
			},
		}
	}

	result, err := d.call(ctx, token, http.MethodPost, "/pages", payload)
	if err != nil {
		return nil, err
	}

	pageID, _ := result["id"].(string)
	return map[string]interface{}{
		"created": true,
		"page_id": pageID,
	}, nil
}

// queryDatabase runs a database query and returns the raw result pages
func (d *NotionDispatcher) queryDatabase(ctx context.Context, token string, req Request) (map[string]interface{}, error) {
	databaseID, _ := req.Config["database_id"].(string)
	if databaseID == "" {
		return nil, fmt.Errorf("notion.query_database requires a \"database_id\"")
	}

	payload := map[string]interface{}{}
	if filter, ok := req.Config["filter"].(map[string]interface{}); ok {
		payload["filter"] = filter
	}

	result, err := d.call(ctx, token, http.MethodPost, "/databases/"+databaseID+"/query", payload)
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"results": result["results"],
	}, nil
}

// call performs one authenticated Notion API request
func (d *NotionDispatcher) call(ctx context.Context, token, method, path string, payload interface{}) (map[string]interface{}, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notion payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, notionAPIURL+path, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create notion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Notion-Version", notionVersion)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("notion request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read notion response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("notion returned status %d: %s", resp.StatusCode, string(respBody))
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to parse notion response: %w", err)
	}

	return result, nil
}
