package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

// PipelineDeps wires all driven adapters into the ingestion pass.
type PipelineDeps struct {
	Sources    []domain.Source
	Feeds      ports.FeedReader
	Extractor  ports.ContentExtractor
	Enricher   ports.Enricher
	Persister  *Persister
	Notifier   ports.Notifier
	Recorder   ports.Recorder
	Logger     *slog.Logger
	EntryLimit int
	Workers    int
	JitterMin  time.Duration
	JitterMax  time.Duration
}

// Pipeline implements one ingestion pass: read, extract, enrich, persist, notify.
type Pipeline struct {
	sources    []domain.Source
	feeds      ports.FeedReader
	extractor  ports.ContentExtractor
	enricher   ports.Enricher
	persister  *Persister
	notifier   ports.Notifier
	recorder   ports.Recorder
	logger     *slog.Logger
	entryLimit int
	workers    int
	jitterMin  time.Duration
	jitterMax  time.Duration

	sleep func(ctx context.Context, d time.Duration) error
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		sources:    append([]domain.Source(nil), deps.Sources...),
		feeds:      deps.Feeds,
		extractor:  deps.Extractor,
		enricher:   deps.Enricher,
		persister:  deps.Persister,
		notifier:   deps.Notifier,
		recorder:   deps.Recorder,
		logger:     deps.Logger,
		entryLimit: deps.EntryLimit,
		workers:    deps.Workers,
		jitterMin:  deps.JitterMin,
		jitterMax:  deps.JitterMax,
		sleep:      sleepContext,
	}
	if p.recorder == nil {
		p.recorder = ports.NopRecorder{}
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if p.workers <= 0 {
		p.workers = 1
	}
	return p
}

// Run executes one pass. Failures of a single source or entry never fail the
// pass; storage errors and panics do.
func (p *Pipeline) Run(ctx context.Context) (report domain.PassReport, err error) {
	report = domain.PassReport{
		RunID:     uuid.NewString(),
		Sources:   len(p.sources),
		StartedAt: time.Now(),
	}
	logger := p.logger.With("run_id", report.RunID)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pass panicked: %v", r)
		}
		report.Duration = time.Since(report.StartedAt)
		p.recorder.PassFinished(err == nil, report.Duration)
		if err != nil {
			logger.Error("pass failed", "error", err, "duration", report.Duration)
			return
		}
		logger.Info("pass finished",
			"entries", report.Entries,
			"known", report.Known,
			"skipped", report.Skipped,
			"degraded", report.Degraded,
			"stored", len(report.Stored),
			"duration", report.Duration,
		)
	}()

	logger.Info("pass started", "sources", len(p.sources), "limit", p.entryLimit)

	entries := p.collect(ctx, logger)
	report.Entries = len(entries)

	fresh := p.dropKnown(ctx, logger, entries)
	report.Known = len(entries) - len(fresh)

	batch := p.enrich(ctx, logger, fresh)
	report.Skipped = len(fresh) - len(batch)
	for _, item := range batch {
		if item.Enrichment.Degraded {
			report.Degraded++
		}
	}

	stored, err := p.persister.Persist(ctx, batch)
	if err != nil {
		return report, err
	}
	report.Stored = stored
	p.recorder.ArticlesStored(len(stored))

	p.notify(ctx, logger, stored)
	return report, nil
}

// collect reads every source in registry order.
func (p *Pipeline) collect(ctx context.Context, logger *slog.Logger) []domain.Entry {
	var entries []domain.Entry
	for _, source := range p.sources {
		count := 0
		for entry := range p.feeds.Entries(ctx, source, p.entryLimit) {
			entries = append(entries, entry)
			count++
		}
		logger.Debug("source read", "source", source.Name, "entries", count)
	}
	return entries
}

// dropKnown removes entries whose link is already stored before any download
// or enrichment call is spent on them. Persist still has the final say.
func (p *Pipeline) dropKnown(ctx context.Context, logger *slog.Logger, entries []domain.Entry) []domain.Entry {
	fresh := make([]domain.Entry, 0, len(entries))
	for _, entry := range entries {
		if p.persister.Known(ctx, entry.Link) {
			logger.Debug("link already stored, skipping entry", "source", entry.Source, "link", entry.Link)
			continue
		}
		fresh = append(fresh, entry)
	}
	return fresh
}

// enrich fans entries out to the worker pool and returns the kept items in input order.
func (p *Pipeline) enrich(ctx context.Context, logger *slog.Logger, entries []domain.Entry) []domain.EnrichedArticle {
	results := make([]*domain.EnrichedArticle, len(entries))

	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, entry := range entries {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("entry processing panicked", "link", entry.Link, "panic", r)
				}
			}()
			results[i] = p.process(ctx, logger, entry)
			return nil
		})
	}
	_ = g.Wait()

	batch := make([]domain.EnrichedArticle, 0, len(entries))
	for _, item := range results {
		if item != nil {
			batch = append(batch, *item)
		}
	}
	return batch
}

func (p *Pipeline) process(ctx context.Context, logger *slog.Logger, entry domain.Entry) *domain.EnrichedArticle {
	body, ok := p.extractor.Extract(ctx, entry.Link)
	if !ok {
		logger.Debug("no article body, skipping entry", "source", entry.Source, "link", entry.Link)
		p.recorder.EntrySkipped()
		return nil
	}

	enrichment := p.enricher.Enrich(ctx, body)
	item := &domain.EnrichedArticle{
		Entry:       entry,
		PublishedAt: domain.ParsePublished(entry.Published),
		Enrichment:  enrichment,
	}

	_ = p.sleep(ctx, p.jitter())
	return item
}

func (p *Pipeline) jitter() time.Duration {
	if p.jitterMax <= p.jitterMin {
		return p.jitterMin
	}
	return p.jitterMin + rand.N(p.jitterMax-p.jitterMin)
}

func (p *Pipeline) notify(ctx context.Context, logger *slog.Logger, stored []domain.Article) {
	if p.notifier == nil || len(stored) == 0 {
		return
	}
	if err := p.notifier.PublishDigest(ctx, buildDigestMessage(stored)); err != nil {
		logger.Warn("digest notification failed", "error", err)
	}
}

func buildDigestMessage(articles []domain.Article) string {
	if len(articles) == 0 {
		return ""
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "*Nye nyheder (%d)*\n\n", len(articles))
	for _, article := range articles {
		fmt.Fprintf(&sb, "*%s*\n_%s · %s_\n%s\n%s\n\n",
			escapeMarkdown(article.Title),
			escapeMarkdown(article.Source),
			escapeMarkdown(string(article.Category)),
			escapeMarkdown(article.Summary),
			escapeMarkdown(article.Link))
	}
	return strings.TrimRight(sb.String(), "\n")
}

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`)

func escapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
