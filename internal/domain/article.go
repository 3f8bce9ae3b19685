package domain

import (
	"errors"
	"time"
)

var (
	// ErrDuplicateLink is returned by storage when the link is already persisted.
	ErrDuplicateLink = errors.New("article link already stored")
	// ErrEmptyResponse marks a provider reply without usable text.
	ErrEmptyResponse = errors.New("empty response from provider")
)

// Source is a single configured feed.
type Source struct {
	Name string
	URL  string
}

// Entry is a feed item before extraction and enrichment.
type Entry struct {
	Title     string
	Link      string
	Published string
	Source    string
}

// Enrichment is the outcome of summarising and classifying one article body.
// Degraded is set when any part fell back to a placeholder value.
type Enrichment struct {
	Summary  string
	Category Category
	Degraded bool
}

// EnrichedArticle is an entry ready for persistence.
type EnrichedArticle struct {
	Entry       Entry
	PublishedAt *time.Time
	Enrichment  Enrichment
}

// Article is the stored record served to readers.
type Article struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Link        string     `json:"link"`
	PublishedAt *time.Time `json:"publishedAt"`
	Source      string     `json:"source"`
	Summary     string     `json:"summary"`
	Category    Category   `json:"category"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// ToArticle maps an enriched item onto the record layout used by storage.
func (e EnrichedArticle) ToArticle() Article {
	return Article{
		Title:       e.Entry.Title,
		Link:        e.Entry.Link,
		PublishedAt: e.PublishedAt,
		Source:      e.Entry.Source,
		Summary:     e.Enrichment.Summary,
		Category:    e.Enrichment.Category,
	}
}

// PassReport summarises one ingestion pass.
type PassReport struct {
	RunID     string
	Sources   int
	Entries   int
	Known     int
	Skipped   int
	Degraded  int
	Stored    []Article
	StartedAt time.Time
	Duration  time.Duration
}
