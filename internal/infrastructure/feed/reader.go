package feed

import (
	"context"
	"html"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

// Reader parses RSS/Atom feeds with gofeed.
type Reader struct {
	client    *http.Client
	userAgent string
	policy    *bluemonday.Policy
	logger    *slog.Logger
}

var _ ports.FeedReader = (*Reader)(nil)

// NewReader wires an HTTP client; a nil client gets a 20s timeout.
func NewReader(client *http.Client, userAgent string, logger *slog.Logger) *Reader {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reader{
		client:    client,
		userAgent: userAgent,
		policy:    bluemonday.StrictPolicy(),
		logger:    logger,
	}
}

// Entries yields at most limit entries in feed order. Each iteration re-fetches
// the feed; a fetch or parse failure is logged and yields nothing.
func (r *Reader) Entries(ctx context.Context, source domain.Source, limit int) iter.Seq[domain.Entry] {
	return func(yield func(domain.Entry) bool) {
		if limit <= 0 {
			return
		}

		r.logger.Debug("read feed", "source", source.Name, "url", source.URL)

		parser := gofeed.NewParser()
		parser.Client = r.client
		if r.userAgent != "" {
			parser.UserAgent = r.userAgent
		}

		parsed, err := parser.ParseURLWithContext(source.URL, ctx)
		if err != nil {
			r.logger.Warn("feed unavailable", "source", source.Name, "url", source.URL, "error", err)
			return
		}

		emitted := 0
		for _, item := range parsed.Items {
			if emitted >= limit {
				return
			}
			entry, ok := r.toEntry(item, source.Name)
			if !ok {
				continue
			}
			emitted++
			if !yield(entry) {
				return
			}
		}
	}
}

func (r *Reader) toEntry(item *gofeed.Item, sourceName string) (domain.Entry, bool) {
	if item == nil {
		return domain.Entry{}, false
	}

	link := strings.TrimSpace(item.Link)
	if link == "" && isHTTPURL(item.GUID) {
		link = strings.TrimSpace(item.GUID)
	}
	if link == "" {
		return domain.Entry{}, false
	}

	published := item.Published
	if published == "" {
		published = item.Updated
	}

	return domain.Entry{
		Title:     r.cleanTitle(item.Title),
		Link:      link,
		Published: strings.TrimSpace(published),
		Source:    sourceName,
	}, true
}

func (r *Reader) cleanTitle(raw string) string {
	text := html.UnescapeString(r.policy.Sanitize(raw))
	return strings.Join(strings.Fields(text), " ")
}

func isHTTPURL(value string) bool {
	return strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://")
}
