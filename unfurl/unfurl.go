// Package unfurl fetches link previews for URL attachments.
//
// Given a page URL it retrieves the document and extracts Open Graph
// metadata, falling back to the HTML title and description tags.
package unfurl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/tradeberg/tradeberg/chat"
)

// ErrNoPreview means the page yielded no usable metadata.
var ErrNoPreview = errors.New("unfurl: no preview metadata")

const (
	maxBodySize    = 512 << 10
	maxTitleLen    = 200
	maxDescriptLen = 500
	userAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36"
)

// Client fetches and parses link previews.
type Client struct {
	httpClient *http.Client
}

// New creates an unfurl client with a bounded request timeout.
func New() *Client {
	return &Client{httpClient: &http.Client{Timeout: 10 * time.Second}}
}

// Preview fetches the URL and extracts preview metadata.
func (c *Client) Preview(ctx context.Context, rawURL string) (*chat.Preview, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("unfurl: parse url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("unfurl: unsupported scheme %q", parsed.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("unfurl: build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unfurl: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unfurl: fetch: HTTP %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return nil, fmt.Errorf("unfurl: not an HTML page (%s)", ct)
	}

	doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("unfurl: parse html: %w", err)
	}

	preview := &chat.Preview{
		Title:       firstOf(metaContent(doc, "og:title"), doc.Find("title").First().Text()),
		Description: firstOf(metaContent(doc, "og:description"), metaName(doc, "description")),
		ImageURL:    resolveRef(parsed, metaContent(doc, "og:image")),
	}
	preview.Title = clip(strings.TrimSpace(preview.Title), maxTitleLen)
	preview.Description = clip(strings.TrimSpace(preview.Description), maxDescriptLen)

	if preview.Title == "" && preview.Description == "" && preview.ImageURL == "" {
		return nil, ErrNoPreview
	}
	return preview, nil
}

func metaContent(doc *goquery.Document, property string) string {
	content, _ := doc.Find(`meta[property="` + property + `"]`).First().Attr("content")
	return content
}

func metaName(doc *goquery.Document, name string) string {
	content, _ := doc.Find(`meta[name="` + name + `"]`).First().Attr("content")
	return content
}

func firstOf(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// resolveRef turns a possibly relative image reference into an
// absolute URL against the page location.
func resolveRef(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return base.ResolveReference(parsed).String()
}

func clip(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
