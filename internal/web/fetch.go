// Package web fetches pages and reduces them to plain text for
// summarization.
package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	defaultTimeout = 10 * time.Second
	defaultRetries = 2
	// MaxBodyBytes caps how much of a response body is read.
	MaxBodyBytes = 5 << 20
)

var (
	ErrInvalidURL         = errors.New("url must be absolute http or https")
	ErrUnsupportedContent = errors.New("unsupported content type")
	ErrTooLarge           = errors.New("response body too large")
)

// Page is the extracted text content of a fetched document.
type Page struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Text        string `json:"text"`
	ContentType string `json:"content_type"`
}

// Fetcher downloads documents over HTTP.
type Fetcher struct {
	client *resty.Client
}

func NewFetcher() *Fetcher {
	client := resty.New().
		SetTimeout(defaultTimeout).
		SetRetryCount(defaultRetries).
		SetRetryWaitTime(250*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("User-Agent", "Aether/1.0 (+https://github.com/kalambet/aether)").
		SetHeader("Accept", "text/html,application/xhtml+xml,application/pdf,text/plain;q=0.9,*/*;q=0.5")
	return &Fetcher{client: client}
}

// Fetch downloads rawURL and extracts its text. HTML, PDF and plain text
// are supported.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Page{}, fmt.Errorf("%q: %w", rawURL, ErrInvalidURL)
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(u.String())
	if err != nil {
		return Page{}, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return Page{}, fmt.Errorf("fetching %s: unexpected status %d", rawURL, resp.StatusCode())
	}

	data, err := io.ReadAll(io.LimitReader(body, MaxBodyBytes+1))
	if err != nil {
		return Page{}, fmt.Errorf("reading %s: %w", rawURL, err)
	}
	if len(data) > MaxBodyBytes {
		return Page{}, fmt.Errorf("%s: %w", rawURL, ErrTooLarge)
	}

	contentType := resp.Header().Get("Content-Type")
	page := Page{URL: rawURL, ContentType: mediaType(contentType, u.Path, data)}

	switch {
	case page.ContentType == "application/pdf":
		page.Text, err = extractPDF(data)
	case page.ContentType == "text/html" || page.ContentType == "application/xhtml+xml":
		page.Title, page.Text, err = extractHTML(data, contentType)
	case strings.HasPrefix(page.ContentType, "text/"):
		page.Text = normalizeWhitespace(string(data))
	default:
		return Page{}, fmt.Errorf("%s (%s): %w", rawURL, page.ContentType, ErrUnsupportedContent)
	}
	if err != nil {
		return Page{}, fmt.Errorf("extracting %s: %w", rawURL, err)
	}
	return page, nil
}

// mediaType resolves the document type from the header, falling back to
// the URL extension and a sniff of the first bytes.
func mediaType(header, path string, data []byte) string {
	if mt, _, err := mime.ParseMediaType(header); err == nil && mt != "application/octet-stream" {
		return mt
	}
	if strings.HasSuffix(strings.ToLower(path), ".pdf") || bytes.HasPrefix(data, []byte("%PDF-")) {
		return "application/pdf"
	}
	head := strings.ToLower(string(data[:min(len(data), 512)]))
	if strings.Contains(head, "<html") || strings.Contains(head, "<!doctype html") {
		return "text/html"
	}
	return "application/octet-stream"
}

func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
