// Package walletchat is a Go client for the WalletChat webhook API. Chat
// transports use it to forward user messages and render the replies.
package walletchat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. Replies may wait on the wallet API and an LLM call.
const DefaultHTTPTimeout = 90 * time.Second

// HeaderWebhookSecret carries the shared secret expected by the server.
const HeaderWebhookSecret = "X-Webhook-Secret"

// Client wraps the HTTP interactions with the WalletChat API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu     sync.RWMutex
	secret string
}

// Message is one inbound chat message.
type Message struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// Button is an inline command shortcut attached to a reply.
type Button struct {
	Label   string `json:"label"`
	Command string `json:"command"`
}

// Reply holds the messages to send back, in order.
type Reply struct {
	Messages []string `json:"messages"`
	Buttons  []Button `json:"buttons,omitempty"`
}

// Command describes a chat command for transport menu registration.
type Command struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// APIError represents a non-2xx response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("walletchat api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the WalletChat API. When httpClient is
// nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetWebhookSecret sets the shared secret sent with every API call.
func (c *Client) SetWebhookSecret(secret string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.secret = secret
}

// Send forwards one message and returns the assistant's reply.
func (c *Client) Send(ctx context.Context, userID, text string) (Reply, error) {
	if strings.TrimSpace(userID) == "" {
		return Reply{}, errors.New("walletchat: user id is required")
	}
	var reply Reply
	if err := c.post(ctx, "/api/v1/messages", Message{UserID: userID, Text: text}, &reply); err != nil {
		return Reply{}, err
	}
	return reply, nil
}

// Commands lists the commands supported by the assistant.
func (c *Client) Commands(ctx context.Context) ([]Command, error) {
	var commands []Command
	if err := c.get(ctx, "/api/v1/commands", &commands); err != nil {
		return nil, err
	}
	return commands, nil
}

// Health reports whether the server answers its liveness probe.
func (c *Client) Health(ctx context.Context) error {
	return c.get(ctx, "/healthz", nil)
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.mu.RLock()
	secret := c.secret
	c.mu.RUnlock()
	if secret != "" {
		req.Header.Set(HeaderWebhookSecret, secret)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		data, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(bytes.TrimSpace(data))}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
