package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

const (
	maxAttempts   = 2
	maxInputRunes = 12000

	kindSummary  = "summary"
	kindCategory = "category"
)

const summaryPrompt = "Lav et kort nyhedsresumé på dansk i 2-3 sætninger. " +
	"Behold fakta og skriv i neutral journalistisk stil:\n\n%s"

const categoryPrompt = "Læs denne danske nyhedsartikel og bestem, hvilken kategori den tilhører. " +
	"Vælg KUN én af følgende kategorier:\n\n" +
	"Politik, Økonomi, Sport, Miljø, Teknologi.\n\n" +
	"Svar KUN med navnet på kategorien uden forklaring.\n\n" +
	"Artikel:\n%s"

// Options tunes the failover behaviour of Client.
type Options struct {
	CallTimeout   time.Duration
	FailoverPause time.Duration
}

// Client summarises and classifies article bodies through the Governor.
type Client struct {
	governor *Governor
	opts     Options
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
	recorder ports.Recorder
}

var _ ports.Enricher = (*Client)(nil)

// NewClient wires the client to a shared governor.
func NewClient(governor *Governor, opts Options, logger *slog.Logger, recorder ports.Recorder) *Client {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if recorder == nil {
		recorder = ports.NopRecorder{}
	}
	return &Client{
		governor: governor,
		opts:     opts,
		sleep:    governor.sleep,
		logger:   logger,
		recorder: recorder,
	}
}

// Enrich produces a summary and a category. The category is derived from the
// summary, or from the body when summarising fell back.
func (c *Client) Enrich(ctx context.Context, text string) domain.Enrichment {
	summary, summaryDegraded := c.Summarize(ctx, text)

	source := summary
	if summaryDegraded {
		source = text
	}
	category, categoryDegraded := c.Classify(ctx, source)

	return domain.Enrichment{
		Summary:  summary,
		Category: category,
		Degraded: summaryDegraded || categoryDegraded,
	}
}

// Summarize returns a short Danish summary, or the fallback text and true.
func (c *Client) Summarize(ctx context.Context, text string) (string, bool) {
	reply, ok := c.call(ctx, kindSummary, fmt.Sprintf(summaryPrompt, truncate(text)))
	if !ok {
		c.logger.Warn("all attempts failed, using fallback summary")
		return domain.FallbackSummary, true
	}
	return reply, false
}

// Classify maps text onto the taxonomy, or returns the catch-all and true.
func (c *Client) Classify(ctx context.Context, text string) (domain.Category, bool) {
	reply, ok := c.call(ctx, kindCategory, fmt.Sprintf(categoryPrompt, truncate(text)))
	if !ok {
		c.logger.Warn("all attempts failed, using catch-all category")
		return domain.CategoryAll, true
	}
	return domain.ResolveCategory(reply), false
}

func (c *Client) call(ctx context.Context, kind, prompt string) (string, bool) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.governor.Acquire(ctx); err != nil {
			c.logger.Warn("rate limit wait aborted", "kind", kind, "error", err)
			break
		}

		slot, gen := c.governor.Active()
		reply, err := c.generate(ctx, gen, prompt)
		if err == nil {
			c.recorder.EnrichmentCall(kind, "ok")
			return reply, true
		}

		c.logger.Warn("enrichment attempt failed",
			"kind", kind,
			"attempt", attempt,
			"slot", slot+1,
			"error", err,
		)
		if attempt == maxAttempts {
			break
		}

		c.recorder.EnrichmentCall(kind, "retry")
		c.governor.RotateFrom(slot)
		if err := c.sleep(ctx, c.opts.FailoverPause); err != nil {
			break
		}
	}

	c.recorder.EnrichmentCall(kind, "fallback")
	return "", false
}

func (c *Client) generate(ctx context.Context, gen ports.TextGenerator, prompt string) (string, error) {
	if c.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.CallTimeout)
		defer cancel()
	}
	reply, err := gen.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	if reply == "" {
		return "", domain.ErrEmptyResponse
	}
	return reply, nil
}

func truncate(text string) string {
	runes := []rune(text)
	if len(runes) <= maxInputRunes {
		return text
	}
	return string(runes[:maxInputRunes])
}
