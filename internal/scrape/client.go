// Package scrape fetches remote pages and extracts tabular data.
package scrape

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/datalens-ai/datalens/internal/domain"
	"github.com/datalens-ai/datalens/internal/tabular"
)

// Result holds everything extracted from one fetched page.
type Result struct {
	PageText string
	Tables   []*domain.Table
}

// Client fetches URLs with a bounded timeout and body size.
type Client struct {
	http    *http.Client
	maxBody int64
	logger  *zap.Logger
}

// Config holds the scraping limits.
type Config struct {
	Timeout      time.Duration
	MaxBodyBytes int64
	Logger       *zap.Logger
}

// NewClient creates a scraping client.
func NewClient(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 8 << 20
	}

	return &Client{
		http:    &http.Client{Timeout: timeout},
		maxBody: maxBody,
		logger:  cfg.Logger,
	}
}

// Fetch downloads the URL and extracts page text and tables. A URL
// ending in .csv is decoded directly; anything else is parsed as HTML.
func (c *Client) Fetch(ctx context.Context, url string) (Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "datalens/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return Result{}, fmt.Errorf("read body: %w", err)
	}

	if strings.HasSuffix(strings.ToLower(strings.SplitN(url, "?", 2)[0]), ".csv") {
		table, err := tabular.DecodeCSV("remote.csv", bytes.NewReader(body))
		if err != nil {
			return Result{}, fmt.Errorf("decode remote csv: %w", err)
		}
		return Result{Tables: []*domain.Table{table}}, nil
	}

	text, tables, err := ParseHTML(body)
	if err != nil {
		return Result{}, fmt.Errorf("parse html: %w", err)
	}

	c.logger.Debug("page fetched",
		zap.String("url", url),
		zap.Int("tables", len(tables)),
		zap.Int("text_bytes", len(text)),
	)
	return Result{PageText: text, Tables: tables}, nil
}
