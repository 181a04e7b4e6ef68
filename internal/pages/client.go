package pages

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/renderinc/report-highlights/internal/highlight"
)

// DefaultMaxBytes caps the size of a fetched page.
const DefaultMaxBytes = 10 << 20

// ErrTooLarge is returned for pages over the client's size limit.
var ErrTooLarge = errors.New("page too large")

// Client fetches pages over HTTP
type Client struct {
	baseURL    string
	userAgent  string
	maxBytes   int64
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL resolves bare paths such as "/2024/annual" against base.
func WithBaseURL(base string) ClientOption {
	return func(c *Client) { c.baseURL = base }
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) { c.userAgent = ua }
}

// WithMaxBytes caps the size of a fetched page.
func WithMaxBytes(n int64) ClientOption {
	return func(c *Client) { c.maxBytes = n }
}

// NewClient creates a new page client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		userAgent: "report-highlights/1.0",
		maxBytes:  DefaultMaxBytes,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch downloads one page
func (c *Client) Fetch(ctx context.Context, rawURL string) (Page, error) {
	target, err := resolve(c.baseURL, rawURL)
	if err != nil {
		return Page{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Page{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Page{}, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return Page{}, fmt.Errorf("fetch %s: %w", target, highlight.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return Page{}, fmt.Errorf("unexpected status: %d %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return Page{}, fmt.Errorf("read response: %w", err)
	}
	if int64(len(body)) > c.maxBytes {
		return Page{}, fmt.Errorf("fetch %s: %w: over %d bytes", target, ErrTooLarge, c.maxBytes)
	}

	return newPage(rawURL, body), nil
}

func resolve(base, rawURL string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", highlight.ErrInvalid, err)
	}
	if ref.IsAbs() {
		return ref.String(), nil
	}
	if base == "" {
		return "", fmt.Errorf("%w: relative url %q without base url", highlight.ErrInvalid, rawURL)
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: base url: %v", highlight.ErrInvalid, err)
	}
	return b.ResolveReference(ref).String(), nil
}
