// Package slack provides a Slack Web API client for reading threads and
// posting sync notices.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const apiBaseURL = "https://slack.com/api"

// APIError is a Slack Web API failure: the service answered but reported
// ok=false with an error code.
type APIError struct {
	Endpoint string
	Code     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s failed: %s", e.Endpoint, e.Code)
}

// apiResponse is the envelope every Slack Web API response carries.
type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func (r apiResponse) ok() bool     { return r.OK }
func (r apiResponse) code() string { return r.Error }

// envelope is implemented by response payloads embedding apiResponse.
type envelope interface {
	ok() bool
	code() string
}

// Client is a Slack Web API client.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
}

// New creates a Slack client with the given bot token.
func New(token string) *Client {
	return NewWithBaseURL(token, apiBaseURL)
}

// NewWithBaseURL creates a Slack client with a custom base URL (for testing).
func NewWithBaseURL(token, baseURL string) *Client {
	return &Client{
		token:      token,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// get performs an authenticated GET against a Web API endpoint and decodes
// the response into out, surfacing ok=false as an *APIError.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, out envelope) error {
	u := c.baseURL + "/" + endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	return c.do(req, endpoint, out)
}

// post performs an authenticated JSON POST against a Web API endpoint.
func (c *Client) post(ctx context.Context, endpoint string, payload any, out envelope) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	return c.do(req, endpoint, out)
}

func (c *Client) do(req *http.Request, endpoint string, out envelope) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("slack API error: %s - %s", resp.Status, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if !out.ok() {
		return &APIError{Endpoint: endpoint, Code: out.code()}
	}
	return nil
}

// ConversationsReplies fetches all messages of a thread, in thread order.
// Pagination is followed automatically.
func (c *Client) ConversationsReplies(ctx context.Context, channelID, threadTS string) ([]Message, error) {
	var all []Message
	cursor := ""
	for {
		params := url.Values{}
		params.Set("channel", channelID)
		params.Set("ts", threadTS)
		params.Set("limit", "200")
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var out struct {
			apiResponse
			Messages         []Message `json:"messages"`
			ResponseMetadata struct {
				NextCursor string `json:"next_cursor"`
			} `json:"response_metadata"`
		}
		if err := c.get(ctx, "conversations.replies", params, &out); err != nil {
			return nil, err
		}
		all = append(all, out.Messages...)

		cursor = out.ResponseMetadata.NextCursor
		if cursor == "" {
			return all, nil
		}
	}
}

// ResolveUserName resolves a user id to the user's handle.
func (c *Client) ResolveUserName(ctx context.Context, userID string) (string, error) {
	params := url.Values{}
	params.Set("user", userID)

	var out struct {
		apiResponse
		User struct {
			Name string `json:"name"`
		} `json:"user"`
	}
	if err := c.get(ctx, "users.info", params, &out); err != nil {
		return "", err
	}
	return out.User.Name, nil
}

// GetPermalink resolves the permalink of a single message.
func (c *Client) GetPermalink(ctx context.Context, channelID, messageTS string) (string, error) {
	params := url.Values{}
	params.Set("channel", channelID)
	params.Set("message_ts", messageTS)

	var out struct {
		apiResponse
		Permalink string `json:"permalink"`
	}
	if err := c.get(ctx, "chat.getPermalink", params, &out); err != nil {
		return "", err
	}
	return out.Permalink, nil
}

// PostEphemeral posts a message in a thread visible only to one user.
func (c *Client) PostEphemeral(ctx context.Context, channelID, threadTS, userID, text string) error {
	payload := map[string]string{
		"channel":   channelID,
		"thread_ts": threadTS,
		"user":      userID,
		"text":      text,
	}
	var out struct{ apiResponse }
	return c.post(ctx, "chat.postEphemeral", payload, &out)
}

// PostMessage posts a message in a thread.
func (c *Client) PostMessage(ctx context.Context, channelID, threadTS, text string) error {
	payload := map[string]string{
		"channel":   channelID,
		"thread_ts": threadTS,
		"text":      text,
	}
	var out struct{ apiResponse }
	return c.post(ctx, "chat.postMessage", payload, &out)
}

// Identity is the authenticated caller as reported by auth.test.
type Identity struct {
	UserID string `json:"user_id"`
	BotID  string `json:"bot_id"`
	User   string `json:"user"`
}

// AuthTest reports the identity behind the client's token.
func (c *Client) AuthTest(ctx context.Context) (Identity, error) {
	var out struct {
		apiResponse
		Identity
	}
	if err := c.get(ctx, "auth.test", nil, &out); err != nil {
		return Identity{}, err
	}
	return out.Identity, nil
}

// DownloadFile fetches a file's raw bytes from its private download URL.
// The URL points outside the Web API base but uses the same bearer token.
func (c *Client) DownloadFile(ctx context.Context, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download error: %s", resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read file body: %w", err)
	}
	return data, nil
}
