package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"NewsDigest/internal/domain"
)

type pipelineFixture struct {
	repo     *memRepo
	enricher *fakeEnricher
	notifier *fakeNotifier
	recorder *recordingRecorder
	feeds    fakeFeeds
	bodies   map[string]string
}

func newFixture() *pipelineFixture {
	feeds := fakeFeeds{entries: map[string][]domain.Entry{
		"dr":  {entry("dr", "1"), entry("dr", "2"), entry("dr", "3"), entry("dr", "4")},
		"tv2": {entry("tv2", "1"), entry("tv2", "2")},
	}}
	bodies := map[string]string{}
	for _, entries := range feeds.entries {
		for _, e := range entries {
			bodies[e.Link] = "Brødtekst " + e.Link
		}
	}
	return &pipelineFixture{
		repo:     &memRepo{},
		enricher: &fakeEnricher{},
		notifier: &fakeNotifier{},
		recorder: &recordingRecorder{},
		feeds:    feeds,
		bodies:   bodies,
	}
}

func (f *pipelineFixture) pipeline(sources ...domain.Source) *Pipeline {
	if len(sources) == 0 {
		sources = []domain.Source{{Name: "dr", URL: "dr"}, {Name: "tv2", URL: "tv2"}}
	}
	return NewPipeline(PipelineDeps{
		Sources:    sources,
		Feeds:      f.feeds,
		Extractor:  fakeExtractor{bodies: f.bodies},
		Enricher:   f.enricher,
		Persister:  NewPersister(f.repo),
		Notifier:   f.notifier,
		Recorder:   f.recorder,
		EntryLimit: 3,
		Workers:    4,
	})
}

func TestRunStoresNewArticlesInRegistryOrder(t *testing.T) {
	t.Parallel()

	f := newFixture()
	delete(f.bodies, "https://dr.example/2")

	report, err := f.pipeline().Run(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, report.RunID)
	require.Equal(t, 2, report.Sources)
	require.Equal(t, 5, report.Entries)
	require.Equal(t, 1, report.Skipped)
	require.Len(t, report.Stored, 4)

	require.Equal(t, []string{
		"https://dr.example/1",
		"https://dr.example/3",
		"https://tv2.example/1",
		"https://tv2.example/2",
	}, f.repo.links())

	first := report.Stored[0]
	require.Equal(t, int64(1), first.ID)
	require.Equal(t, "Titel 1", first.Title)
	require.Equal(t, "dr", first.Source)
	require.Equal(t, domain.CategoryPolitics, first.Category)
	require.Equal(t, "Resumé: Brødtekst https://dr.example/1", first.Summary)
	require.NotNil(t, first.PublishedAt)
	require.Equal(t, time.Date(2025, time.October, 14, 6, 30, 0, 0, time.UTC), first.PublishedAt.UTC())

	require.Equal(t, 4, f.enricher.calls)
	require.Equal(t, 4, f.recorder.stored)
	require.Equal(t, 1, f.recorder.skipped)
	require.Equal(t, []bool{true}, f.recorder.passes)

	require.Len(t, f.notifier.messages, 1)
	require.Contains(t, f.notifier.messages[0], "*Nye nyheder (4)*")
}

func TestRunTwiceStoresNothingNew(t *testing.T) {
	t.Parallel()

	f := newFixture()
	p := f.pipeline()

	first, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, first.Stored, 5)

	second, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, second.Stored)
	require.Len(t, f.repo.links(), 5)
	require.Len(t, f.notifier.messages, 1)
}

func TestRunSkipsStoredLinksBeforeEnrichment(t *testing.T) {
	t.Parallel()

	f := newFixture()
	p := f.pipeline()

	_, err := p.Run(context.Background())
	require.NoError(t, err)
	callsAfterFirst := f.enricher.calls

	f.feeds.entries["dr"] = append([]domain.Entry{entry("dr", "9")}, f.feeds.entries["dr"]...)
	f.bodies["https://dr.example/9"] = "Brødtekst ny"
	p = f.pipeline()

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, report.Entries)
	require.Equal(t, 4, report.Known)
	require.Len(t, report.Stored, 1)
	require.Equal(t, "https://dr.example/9", report.Stored[0].Link)
	require.Equal(t, callsAfterFirst+1, f.enricher.calls)
}

func TestRunSurvivesUnreachableSource(t *testing.T) {
	t.Parallel()

	f := newFixture()
	p := f.pipeline(
		domain.Source{Name: "dr", URL: "dr"},
		domain.Source{Name: "down", URL: "http://127.0.0.1:1/rss"},
		domain.Source{Name: "tv2", URL: "tv2"},
	)

	report, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, report.Sources)
	require.Len(t, report.Stored, 5)
}

func TestRunKeepsDegradedArticles(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.enricher.degraded = map[string]bool{"Brødtekst https://tv2.example/1": true}

	report, err := f.pipeline().Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, report.Degraded)
	require.Len(t, report.Stored, 5)

	degraded := report.Stored[3]
	require.Equal(t, "https://tv2.example/1", degraded.Link)
	require.Equal(t, domain.FallbackSummary, degraded.Summary)
	require.Equal(t, domain.CategoryAll, degraded.Category)
}

func TestRunReportsStorageFailure(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.repo.failOnLink = "https://tv2.example/1"

	report, err := f.pipeline().Run(context.Background())
	require.ErrorIs(t, err, errStorageDown)
	require.Empty(t, report.Stored)
	require.Empty(t, f.repo.links())
	require.Empty(t, f.notifier.messages)
	require.Equal(t, []bool{false}, f.recorder.passes)
}

func TestRunContainsEntryPanic(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.enricher.panicOn = "Brødtekst https://dr.example/2"

	report, err := f.pipeline().Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Stored, 4)
	require.NotContains(t, f.repo.links(), "https://dr.example/2")
}

func TestRunRecoversPanicAtPassBoundary(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.feeds.panicOn = "tv2"

	_, err := f.pipeline().Run(context.Background())
	require.ErrorContains(t, err, "pass panicked")
	require.Empty(t, f.repo.links())
	require.Equal(t, []bool{false}, f.recorder.passes)
}

func TestRunNotificationFailureDoesNotFailPass(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.notifier.err = errors.New("telegram down")

	report, err := f.pipeline().Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Stored, 5)
}

func TestRunWithSingleWorkerMatchesParallelOrder(t *testing.T) {
	t.Parallel()

	serial := newFixture()
	p := serial.pipeline()
	p.workers = 1
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	parallel := newFixture()
	_, err = parallel.pipeline().Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, serial.repo.links(), parallel.repo.links())
}

func TestJitterStaysInBounds(t *testing.T) {
	t.Parallel()

	p := NewPipeline(PipelineDeps{JitterMin: 800 * time.Millisecond, JitterMax: 1600 * time.Millisecond})
	for range 200 {
		d := p.jitter()
		require.GreaterOrEqual(t, d, 800*time.Millisecond)
		require.Less(t, d, 1600*time.Millisecond)
	}

	p = NewPipeline(PipelineDeps{JitterMin: time.Second, JitterMax: time.Second})
	require.Equal(t, time.Second, p.jitter())
}

func TestBuildDigestMessageEscapesMarkdown(t *testing.T) {
	t.Parallel()

	msg := buildDigestMessage([]domain.Article{{
		Title:    "Skat_reform *nu*",
		Link:     "https://dr.example/skat",
		Source:   "DR",
		Summary:  "Kort [resumé]",
		Category: domain.CategoryEconomy,
	}})

	require.True(t, strings.HasPrefix(msg, "*Nye nyheder (1)*\n\n"))
	require.Contains(t, msg, `*Skat\_reform \*nu\**`)
	require.Contains(t, msg, "_DR · Økonomi_")
	require.Contains(t, msg, `Kort \[resumé]`)
	require.True(t, strings.HasSuffix(msg, "https://dr.example/skat"))
	require.Empty(t, buildDigestMessage(nil))

	msg = buildDigestMessage([]domain.Article{{
		Title:    "VM",
		Link:     "https://www.dr.dk/sporten/fodbold/vm_kval_2026",
		Source:   "DR",
		Summary:  "Kort",
		Category: domain.CategorySports,
	}})
	require.True(t, strings.HasSuffix(msg, `https://www.dr.dk/sporten/fodbold/vm\_kval\_2026`))
	require.Equal(t, 2, strings.Count(msg, "_")-strings.Count(msg, `\_`))
}
