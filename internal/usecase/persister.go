package usecase

import (
	"context"
	"errors"
	"fmt"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

// Persister writes a pass batch, skipping links that are already stored.
type Persister struct {
	repository ports.ArticleRepository
}

// NewPersister wires the storage adapter.
func NewPersister(repository ports.ArticleRepository) *Persister {
	return &Persister{repository: repository}
}

// Known reports whether link is already stored. Lookup errors report false and
// leave the decision to Persist.
func (p *Persister) Known(ctx context.Context, link string) bool {
	if p == nil || p.repository == nil {
		return false
	}
	exists, err := p.repository.ExistsByLink(ctx, link)
	return err == nil && exists
}

// Persist inserts every batch item whose link is new in one transaction and
// returns the stored records with their ids. A storage failure rolls the
// batch back and is returned.
func (p *Persister) Persist(ctx context.Context, batch []domain.EnrichedArticle) ([]domain.Article, error) {
	if p == nil || p.repository == nil || len(batch) == 0 {
		return nil, nil
	}

	var stored []domain.Article
	err := p.repository.InTx(ctx, func(store ports.ArticleStore) error {
		stored = stored[:0]
		seen := make(map[string]struct{}, len(batch))

		for _, item := range batch {
			article := item.ToArticle()
			if _, dup := seen[article.Link]; dup {
				continue
			}
			seen[article.Link] = struct{}{}

			exists, err := store.ExistsByLink(ctx, article.Link)
			if err != nil {
				return fmt.Errorf("check %s: %w", article.Link, err)
			}
			if exists {
				continue
			}

			id, err := store.Insert(ctx, article)
			if errors.Is(err, domain.ErrDuplicateLink) {
				continue
			}
			if err != nil {
				return fmt.Errorf("insert %s: %w", article.Link, err)
			}
			article.ID = id
			stored = append(stored, article)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("persist batch: %w", err)
	}
	return stored, nil
}
