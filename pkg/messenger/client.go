package messenger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
)

// DefaultGraphURL is the Graph API base used for the Send API
const DefaultGraphURL = "https://graph.facebook.com/v2.6"

// MaxTextLength is the Send API limit for a text message, in characters
const MaxTextLength = 2000

// Client sends messages through the Send API
type Client struct {
	pageToken  string
	graphURL   string
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a Send API client
func NewClient(pageToken, graphURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if graphURL == "" {
		graphURL = DefaultGraphURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		pageToken:  pageToken,
		graphURL:   strings.TrimRight(graphURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "messenger").Logger(),
	}
}

// Deliver sends text to a page-scoped user id. Text over MaxTextLength is
// sent as several messages in order; the first failure stops the sequence.
func (c *Client) Deliver(ctx context.Context, recipientID, text string) error {
	if recipientID == "" {
		return fmt.Errorf("recipient id cannot be empty")
	}
	for _, part := range SplitText(text, MaxTextLength) {
		if err := c.send(ctx, recipientID, part); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, recipientID, text string) error {
	body, err := json.Marshal(sendRequest{
		MessagingType: "RESPONSE",
		Recipient:     User{ID: recipientID},
		Message:       sendMessage{Text: text},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	endpoint := c.graphURL + "/me/messages?" + url.Values{"access_token": {c.pageToken}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call Send API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		c.logger.Debug().Str("recipient_id", recipientID).Int("length", utf8.RuneCountInString(text)).Msg("Message sent")
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var ge graphError
	if err := json.Unmarshal(raw, &ge); err == nil && ge.Error != nil {
		return fmt.Errorf("send API error (status %d, code %d): %s", resp.StatusCode, ge.Error.Code, ge.Error.Message)
	}
	return fmt.Errorf("send API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
}

// SplitText breaks text into chunks of at most limit runes, preferring to
// break at the last newline or space inside each chunk.
func SplitText(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var parts []string
	runes := []rune(text)
	for len(runes) > limit {
		cut := limit
		for i := limit; i > limit/2; i-- {
			if runes[i-1] == '\n' || runes[i-1] == ' ' {
				cut = i
				break
			}
		}
		part := strings.TrimRight(string(runes[:cut]), " \n")
		if part != "" {
			parts = append(parts, part)
		}
		runes = runes[cut:]
	}
	if rest := strings.TrimSpace(string(runes)); rest != "" {
		parts = append(parts, rest)
	}
	return parts
}
