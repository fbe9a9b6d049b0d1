package integrations

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPDispatcher implements the "http" integration: a generic request
// action for services without a dedicated connector.
type HTTPDispatcher struct {
	client *http.Client
}

// NewHTTPDispatcher creates a new HTTP dispatcher
func NewHTTPDispatcher() *HTTPDispatcher {
	return &HTTPDispatcher{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the integration name used in step definitions
func (d *HTTPDispatcher) Name() string {
	return "http"
}

// Dispatch executes an HTTP action
func (d *HTTPDispatcher) Dispatch(ctx context.Context, req Request) (map[string]interface{}, error) {
	switch req.Action {
	case "request":
		return d.request(ctx, req)
	default:
		return nil, fmt.Errorf("%w: http.%s", ErrUnknownAction, req.Action)
	}
}

// request performs one HTTP call described by the step config
func (d *HTTPDispatcher) request(ctx context.Context, req Request) (map[string]interface{}, error) {
	url, _ := req.Config["url"].(string)
	if url == "" {
		return nil, fmt.Errorf("http.request requires a \"url\"")
	}

	method, _ := req.Config["method"].(string)
	if method == "" {
		method = http.MethodGet
	}
	method = strings.ToUpper(method)

	var bodyReader io.Reader
	contentType := ""
	if body, ok := req.Config["body"]; ok && body != nil {
		switch b := body.(type) {
		case string:
			bodyReader = bytes.NewBufferString(b)
		default:
			jsonBody, err := json.Marshal(b)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal request body: %w", err)
			}
			bodyReader = bytes.NewBuffer(jsonBody)
			contentType = "application/json"
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if headers, ok := req.Config["headers"].(map[string]interface{}); ok {
		for key, value := range headers {
			httpReq.Header.Set(key, fmt.Sprintf("%v", value))
		}
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	// Decode JSON responses; everything else comes back as text
	var decoded interface{}
	if err := json.Unmarshal(rawBody, &decoded); err != nil {
		decoded = string(rawBody)
	}

	return map[string]interface{}{
		"status_code": resp.StatusCode,
		"body":        decoded,
	}, nil
}
