package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// RateLimitError is returned when the server answers 429; RetryAfter is
// taken from the response header.
type RateLimitError struct {
	RetryAfter string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry in %ss", e.RetryAfter)
}

// Client is a thin JSON client for the survey server.
type Client struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

func NewClient(baseURL string, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 60 * time.Second},
		log:     log,
	}
}

// Platforms fetches the list of platforms the server supports.
func (c *Client) Platforms(ctx context.Context) ([]Platform, error) {
	var resp platformsResponse
	if err := c.getJSON(ctx, "/api/v1/TestDataApi/Platforms", &resp); err != nil {
		return nil, fmt.Errorf("fetch platforms: %w", err)
	}
	return resp.Platforms, nil
}

// TestData fetches the test definitions for one platform.
func (c *Client) TestData(ctx context.Context, platformID string) (*TestData, error) {
	var data TestData
	path := "/api/v1/TestDataApi?platformId=" + platformID
	if err := c.getJSON(ctx, path, &data); err != nil {
		return nil, fmt.Errorf("fetch test data: %w", err)
	}
	return &data, nil
}

// Submit uploads a finished result document.
func (c *Client) Submit(ctx context.Context, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/SubmissionApi", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/plain")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload results: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upload results: server replied %d: %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}
	c.log.Debug("results uploaded", slog.Int("status", resp.StatusCode))
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{RetryAfter: resp.Header.Get("Retry-After")}
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("server replied %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
