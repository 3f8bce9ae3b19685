package usecase

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
	"time"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

type fakeFeeds struct {
	entries map[string][]domain.Entry
	panicOn string
}

func (f fakeFeeds) Entries(_ context.Context, source domain.Source, limit int) iter.Seq[domain.Entry] {
	return func(yield func(domain.Entry) bool) {
		if source.Name == f.panicOn {
			panic("feed exploded")
		}
		for i, entry := range f.entries[source.Name] {
			if i >= limit || !yield(entry) {
				return
			}
		}
	}
}

type fakeExtractor struct {
	bodies map[string]string
}

func (f fakeExtractor) Extract(_ context.Context, link string) (string, bool) {
	body, ok := f.bodies[link]
	return body, ok && body != ""
}

type fakeEnricher struct {
	mu       sync.Mutex
	calls    int
	degraded map[string]bool
	panicOn  string
}

func (f *fakeEnricher) Enrich(_ context.Context, text string) domain.Enrichment {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if text == f.panicOn {
		panic("enricher exploded")
	}
	if f.degraded[text] {
		return domain.Enrichment{Summary: domain.FallbackSummary, Category: domain.CategoryAll, Degraded: true}
	}
	return domain.Enrichment{Summary: "Resumé: " + text, Category: domain.CategoryPolitics}
}

type memRepo struct {
	mu           sync.Mutex
	rows         []domain.Article
	nextID       int64
	failOnLink   string
	hideExisting bool
	txCount      int
}

var _ ports.ArticleRepository = (*memRepo)(nil)

var errStorageDown = errors.New("storage down")

func (r *memRepo) ExistsByLink(_ context.Context, link string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hideExisting {
		return false, nil
	}
	return r.containsLocked(link), nil
}

func (r *memRepo) Insert(_ context.Context, article domain.Article) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if article.Link == r.failOnLink {
		return 0, errStorageDown
	}
	if r.containsLocked(article.Link) {
		return 0, domain.ErrDuplicateLink
	}
	r.nextID++
	article.ID = r.nextID
	article.CreatedAt = time.Now()
	r.rows = append(r.rows, article)
	return article.ID, nil
}

func (r *memRepo) Latest(_ context.Context, limit int) ([]domain.Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := slices.Clone(r.rows)
	slices.Reverse(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memRepo) InTx(_ context.Context, fn func(ports.ArticleStore) error) error {
	r.mu.Lock()
	r.txCount++
	snapshot := slices.Clone(r.rows)
	nextID := r.nextID
	r.mu.Unlock()

	if err := fn(r); err != nil {
		r.mu.Lock()
		r.rows = snapshot
		r.nextID = nextID
		r.mu.Unlock()
		return err
	}
	return nil
}

func (r *memRepo) links() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, row.Link)
	}
	return out
}

func (r *memRepo) containsLocked(link string) bool {
	for _, row := range r.rows {
		if row.Link == link {
			return true
		}
	}
	return false
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages []string
	err      error
}

func (n *fakeNotifier) PublishDigest(_ context.Context, digest string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, digest)
	return n.err
}

type recordingRecorder struct {
	ports.NopRecorder
	mu      sync.Mutex
	passes  []bool
	stored  int
	skipped int
	fires   map[string]int
}

func (r *recordingRecorder) PassFinished(ok bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.passes = append(r.passes, ok)
}

func (r *recordingRecorder) ArticlesStored(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stored += n
}

func (r *recordingRecorder) EntrySkipped() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skipped++
}

func (r *recordingRecorder) FireSkipped(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fires == nil {
		r.fires = map[string]int{}
	}
	r.fires[reason]++
}

func entry(source, slug string) domain.Entry {
	return domain.Entry{
		Title:     "Titel " + slug,
		Link:      "https://" + source + ".example/" + slug,
		Published: "Tue, 14 Oct 2025 08:30:00 +0200",
		Source:    source,
	}
}
