package ports

import (
	"context"
	"iter"
	"time"

	"NewsDigest/internal/domain"
)

// FeedReader turns a source into a finite sequence of entries.
// A broken or unreachable feed yields an empty sequence.
type FeedReader interface {
	Entries(ctx context.Context, source domain.Source, limit int) iter.Seq[domain.Entry]
}

// ContentExtractor returns the readable body of a page, or false when there is none.
type ContentExtractor interface {
	Extract(ctx context.Context, pageURL string) (string, bool)
}

// TextGenerator sends a single prompt to a hosted model bound to one credential.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Enricher summarises and classifies article text. It never fails; degraded
// results carry placeholder values.
type Enricher interface {
	Enrich(ctx context.Context, text string) domain.Enrichment
}

// ArticleStore is the subset of storage usable inside a transaction.
type ArticleStore interface {
	ExistsByLink(ctx context.Context, link string) (bool, error)
	Insert(ctx context.Context, article domain.Article) (int64, error)
}

// ArticleRepository persists articles and serves the newest ones.
type ArticleRepository interface {
	ArticleStore
	Latest(ctx context.Context, limit int) ([]domain.Article, error)
	InTx(ctx context.Context, fn func(store ArticleStore) error) error
}

// Notifier streams pass digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler drives recurring jobs.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

// Recorder receives pipeline events for metrics.
type Recorder interface {
	PassFinished(ok bool, duration time.Duration)
	FireSkipped(reason string)
	ArticlesStored(count int)
	EntrySkipped()
	EnrichmentCall(kind, outcome string)
	RateLimitWait(d time.Duration)
}

// NopRecorder discards every event.
type NopRecorder struct{}

func (NopRecorder) PassFinished(bool, time.Duration) {}
func (NopRecorder) FireSkipped(string)               {}
func (NopRecorder) ArticlesStored(int)               {}
func (NopRecorder) EntrySkipped()                    {}
func (NopRecorder) EnrichmentCall(string, string)    {}
func (NopRecorder) RateLimitWait(time.Duration)      {}
