// Package translate calls the Google Cloud Translation v2 REST API.
package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the public Translation API endpoint
const DefaultBaseURL = "https://translation.googleapis.com"

// Result is one translation
type Result struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"source_language,omitempty"`
}

// Client translates text
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a translation client
func NewClient(apiKey, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type translateRequest struct {
	Q      string `json:"q"`
	Target string `json:"target"`
	Format string `json:"format"`
}

type translateResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText         string `json:"translatedText"`
			DetectedSourceLanguage string `json:"detectedSourceLanguage"`
		} `json:"translations"`
	} `json:"data"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Translate translates text into the target language code, detecting the source language
func (c *Client) Translate(ctx context.Context, text, target string) (*Result, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}
	if strings.TrimSpace(target) == "" {
		return nil, fmt.Errorf("target language cannot be empty")
	}

	body, err := json.Marshal(translateRequest{Q: text, Target: target, Format: "text"})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := c.baseURL + "/language/translate/v2?" + url.Values{"key": {c.apiKey}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call translation API: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result translateResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("translation API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		}
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if result.Error != nil {
		return nil, fmt.Errorf("translation API error (status %d): %s", result.Error.Code, result.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("translation API error (status %d)", resp.StatusCode)
	}
	if len(result.Data.Translations) == 0 {
		return nil, fmt.Errorf("translation API returned no translations")
	}

	tr := result.Data.Translations[0]
	return &Result{
		Text:           html.UnescapeString(tr.TranslatedText),
		SourceLanguage: tr.DetectedSourceLanguage,
	}, nil
}
