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

// slackAPIURL is overridable in tests
var slackAPIURL = "https://slack.com/api"

// SlackDispatcher implements the "slack" integration. A connection with
// either a bot token or an incoming webhook URL is required.
type SlackDispatcher struct {
	client *http.Client
}

// NewSlackDispatcher creates a new slack dispatcher
func NewSlackDispatcher() *SlackDispatcher {
	return &SlackDispatcher{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Name returns the integration name used in step definitions
func (d *SlackDispatcher) Name() string {
	return "slack"
}

// Dispatch executes a slack action
func (d *SlackDispatcher) Dispatch(ctx context.Context, req Request) (map[string]interface{}, error) {
	switch req.Action {
	case "send_message":
		return d.sendMessage(ctx, req)
	default:
		return nil, fmt.Errorf("%w: slack.%s", ErrUnknownAction, req.Action)
	}
}

// sendMessage posts to a channel via the API, or to an incoming webhook
// when the connection only holds a webhook URL
func (d *SlackDispatcher) sendMessage(ctx context.Context, req Request) (map[string]interface{}, error) {
	if req.Settings == nil {
		return nil, fmt.Errorf("slack requires a stored connection")
	}

	text, _ := req.Config["text"].(string)
	if text == "" {
		return nil, fmt.Errorf("slack.send_message requires \"text\"")
	}

	if webhookURL, ok := req.Settings["webhook_url"].(string); ok && webhookURL != "" {
		return d.postWebhook(ctx, webhookURL, text)
	}

	token, _ := req.Settings["bot_token"].(string)
	if token == "" {
		return nil, fmt.Errorf("slack connection needs a bot_token or webhook_url")
	}

	channel, _ := req.Config["channel"].(string)
	if channel == "" {
		return nil, fmt.Errorf("slack.send_message requires a \"channel\"")
	}

	payload, err := json.Marshal(map[string]string{
		"channel": channel,
		"text":    text,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, slackAPIURL+"/chat.postMessage", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create slack request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("slack request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read slack response: %w", err)
	}

	var result struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
		TS    string `json:"ts"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse slack response: %w", err)
	}
	if !result.OK {
		return nil, fmt.Errorf("slack rejected the message: %s", result.Error)
	}

	return map[string]interface{}{
		"sent":    true,
		"channel": channel,
		"ts":      result.TS,
	}, nil
}

// postWebhook delivers a message to an incoming webhook
func (d *SlackDispatcher) postWebhook(ctx context.Context, webhookURL, text string) (map[string]interface{}, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create slack request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("slack webhook failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}

	return map[string]interface{}{
		"sent": true,
	}, nil
}
