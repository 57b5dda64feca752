package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"whats-bot/internal/domain"
)

const defaultBaseURL = "https://graph.facebook.com/v21.0"

// textMessage is the Graph API payload for an individual text message.
type textMessage struct {
	MessagingProduct string   `json:"messaging_product"`
	RecipientType    string   `json:"recipient_type"`
	To               string   `json:"to"`
	Type             string   `json:"type"`
	Text             textBody `json:"text"`
}

type textBody struct {
	PreviewURL bool   `json:"preview_url"`
	Body       string `json:"body"`
}

// Client delivers replies to the originating chat through the WhatsApp
// Cloud API. Authentication is per call: each account carries its own
// access token.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Graph API client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send delivers text to counterpartID on behalf of accountID. Only HTTP 200
// counts as delivered; any other status is a rejection with the response
// body captured for diagnosis. No retries happen here, disposition is the
// caller's call.
func (c *Client) Send(ctx context.Context, accountID, counterpartID, text string, credential domain.Credential) error {
	payload := textMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               counterpartID,
		Type:             "text",
		Text:             textBody{PreviewURL: true, Body: text},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("whatsapp: marshal message: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", strings.TrimRight(c.baseURL, "/"), accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("whatsapp: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+credential.Token)

	res, err := c.resolvedHTTPClient().Do(req)
	if err != nil {
		return domain.NewFault(domain.DeliveryUnavailable, "send message", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return &domain.Fault{
			Kind:       domain.DeliveryRejected,
			StatusCode: res.StatusCode,
			Detail:     string(buf),
		}
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}

func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}
