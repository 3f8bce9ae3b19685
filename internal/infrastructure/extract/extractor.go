package extract

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"golang.org/x/time/rate"

	"NewsDigest/internal/ports"
)

// Options tunes page downloads.
type Options struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	MaxBodyBytes      int64
	UserAgent         string
}

// Extractor downloads article pages and strips them down to readable text.
type Extractor struct {
	client    *http.Client
	limiter   *rate.Limiter
	maxBody   int64
	userAgent string
	logger    *slog.Logger
}

var _ ports.ContentExtractor = (*Extractor)(nil)

// NewExtractor builds an extractor; a nil client gets opts.Timeout (default 20s).
func NewExtractor(client *http.Client, opts Options, logger *slog.Logger) *Extractor {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 5 << 20
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	return &Extractor{
		client:    client,
		limiter:   rate.NewLimiter(limit, 1),
		maxBody:   opts.MaxBodyBytes,
		userAgent: opts.UserAgent,
		logger:    logger,
	}
}

// Extract returns the article text, or false when the page is unreachable or has no text.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (string, bool) {
	parsed, err := url.Parse(pageURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		e.logger.Debug("skip non-http link", "url", pageURL)
		return "", false
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return "", false
	}

	raw, err := e.download(ctx, pageURL)
	if err != nil {
		e.logger.Debug("download failed", "url", pageURL, "error", err)
		return "", false
	}

	text := readableText(raw, parsed)
	if text == "" {
		text = paragraphText(raw)
	}
	if text == "" {
		e.logger.Debug("no readable text", "url", pageURL)
		return "", false
	}
	return text, true
}

func (e *Extractor) download(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{status: resp.Status}
	}
	return io.ReadAll(io.LimitReader(resp.Body, e.maxBody))
}

type statusError struct {
	status string
}

func (s *statusError) Error() string {
	return "unexpected status " + s.status
}

func readableText(raw []byte, pageURL *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(raw), pageURL)
	if err != nil {
		return ""
	}
	return normalize(article.TextContent)
}

// paragraphText keeps the <p> blocks of the main content area.
func paragraphText(raw []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		return ""
	}

	selection := doc.Find("article p, main p")
	if selection.Length() == 0 {
		selection = doc.Find("p")
	}

	var parts []string
	selection.Each(func(_ int, p *goquery.Selection) {
		if text := strings.Join(strings.Fields(p.Text()), " "); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n")
}

func normalize(text string) string {
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
