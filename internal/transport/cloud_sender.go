package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/Gustavo1341/meurepositorio/pkg/logging"
)

const defaultBaseURL = "https://graph.facebook.com/v19.0"

// CloudConfig controls the WhatsApp Cloud API client.
type CloudConfig struct {
	BaseURL       string
	AccessToken   string
	PhoneNumberID string
	Timeout       time.Duration
	MaxRetries    int
	Backoff       time.Duration
	HTTPClient    *http.Client
	Logger        *logging.Logger
}

// CloudSender sends messages through the WhatsApp Cloud API.
type CloudSender struct {
	baseURL       string
	accessToken   string
	phoneNumberID string
	httpClient    *http.Client
	maxRetries    int
	backoff       time.Duration
	logger        *logging.Logger
}

// NewCloudSender creates a configured sender with sane defaults.
func NewCloudSender(cfg CloudConfig) (*CloudSender, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("transport: access token is required")
	}
	if strings.TrimSpace(cfg.PhoneNumberID) == "" {
		return nil, errors.New("transport: phone number id is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &CloudSender{
		baseURL:       baseURL,
		accessToken:   cfg.AccessToken,
		phoneNumberID: cfg.PhoneNumberID,
		httpClient:    httpClient,
		maxRetries:    maxRetries,
		backoff:       backoff,
		logger:        logger,
	}, nil
}

type textPayload struct {
	Body string `json:"body"`
}

type mediaPayload struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

type outboundMessage struct {
	MessagingProduct string        `json:"messaging_product"`
	RecipientType    string        `json:"recipient_type"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             *textPayload  `json:"text,omitempty"`
	Image            *mediaPayload `json:"image,omitempty"`
	Video            *mediaPayload `json:"video,omitempty"`
}

// SendText delivers one text message.
func (c *CloudSender) SendText(ctx context.Context, conversationID, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	msg := outboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               conversationID,
		Type:             "text",
		Text:             &textPayload{Body: text},
	}
	return c.post(ctx, "/messages", msg)
}

// SendMedia delivers a media asset by URL. Video links go out as video,
// everything else as image.
func (c *CloudSender) SendMedia(ctx context.Context, conversationID, mediaURL, caption string) error {
	if strings.TrimSpace(mediaURL) == "" {
		return errors.New("transport: media url is required")
	}
	msg := outboundMessage{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               conversationID,
	}
	payload := &mediaPayload{Link: mediaURL, Caption: caption}
	if isVideoURL(mediaURL) {
		msg.Type = "video"
		msg.Video = payload
	} else {
		msg.Type = "image"
		msg.Image = payload
	}
	return c.post(ctx, "/messages", msg)
}

// SendTypingState toggles the typing indicator. Failures here are advisory;
// callers log and move on.
func (c *CloudSender) SendTypingState(ctx context.Context, conversationID string, typing bool) error {
	state := "off"
	if typing {
		state = "on"
	}
	payload := map[string]string{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                conversationID,
		"typing":            state,
	}
	return c.post(ctx, "/typing_indicators", payload)
}

func (c *CloudSender) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("transport: marshal payload: %w", err)
	}
	url := fmt.Sprintf("%s/%s%s", c.baseURL, c.phoneNumberID, path)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, attempt-1); err != nil {
				return err
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("transport: build request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if shouldRetryTransport(0, err) && attempt < c.maxRetries {
				lastErr = err
				c.logger.Warn("transport: send retry", "path", path, "attempt", attempt+1, "error", err)
				continue
			}
			return fmt.Errorf("transport: request failed: %w", err)
		}
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("transport: read response: %w", readErr)
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		apiErr := fmt.Errorf("transport: provider returned %d: %s", resp.StatusCode, truncate(string(data), 200))
		if shouldRetryTransport(resp.StatusCode, nil) && attempt < c.maxRetries {
			lastErr = apiErr
			c.logger.Warn("transport: send retry", "path", path, "attempt", attempt+1, "status", resp.StatusCode)
			continue
		}
		return apiErr
	}
	if lastErr != nil {
		return lastErr
	}
	return errors.New("transport: request failed without response")
}

func (c *CloudSender) sleep(ctx context.Context, attempt int) error {
	delay := c.backoff * time.Duration(1<<attempt)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func shouldRetryTransport(status int, err error) bool {
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return errors.Is(err, io.ErrUnexpectedEOF)
	}
	return status == http.StatusTooManyRequests || status >= 500
}

func isVideoURL(u string) bool {
	lowered := strings.ToLower(u)
	for _, ext := range []string{".mp4", ".3gp", ".mov"} {
		if strings.Contains(lowered, ext) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

var _ Sender = (*CloudSender)(nil)
