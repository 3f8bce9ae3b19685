package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"

	"NewsDigest/internal/domain"
	"NewsDigest/internal/ports"
)

const newsTable = "news"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var newsColumns = []string{"id", "title", "link", "published_at", "source", "summary", "category", "created_at"}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresRepository persists news articles into Postgres.
type PostgresRepository struct {
	store
	db *sql.DB
}

var (
	_ ports.ArticleRepository = (*PostgresRepository)(nil)
	_ ports.ArticleStore      = (*store)(nil)
)

// Open connects with lib/pq and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// NewPostgresRepository wires a sql.DB implementation.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{store: store{q: db}, db: db}
}

// InTx runs fn against a transaction-scoped store. The transaction commits
// when fn returns nil and rolls back otherwise.
func (r *PostgresRepository) InTx(ctx context.Context, fn func(ports.ArticleStore) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(&store{q: tx}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Latest returns up to limit articles, newest publication first. Articles
// without a publication date come last; ties break on id.
func (r *PostgresRepository) Latest(ctx context.Context, limit int) ([]domain.Article, error) {
	query, args, err := latestQuery(limit)
	if err != nil {
		return nil, fmt.Errorf("build latest query: %w", err)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query latest: %w", err)
	}

	result := make([]domain.Article, 0, limit)
	for rows.Next() {
		article, err := scanArticle(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		result = append(result, article)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}

	return result, nil
}

type store struct {
	q queryer
}

// ExistsByLink reports whether an article with this link is stored.
func (s *store) ExistsByLink(ctx context.Context, link string) (bool, error) {
	query, args, err := existsQuery(link)
	if err != nil {
		return false, fmt.Errorf("build exists query: %w", err)
	}

	var one int
	err = s.q.QueryRowContext(ctx, query, args...).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("query exists: %w", err)
	}
	return true, nil
}

// Insert stores the article and returns its id, or domain.ErrDuplicateLink
// when the link is already present.
func (s *store) Insert(ctx context.Context, article domain.Article) (int64, error) {
	query, args, err := insertQuery(article)
	if err != nil {
		return 0, fmt.Errorf("build insert: %w", err)
	}

	var id int64
	err = s.q.QueryRowContext(ctx, query, args...).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, domain.ErrDuplicateLink
	case err != nil:
		return 0, fmt.Errorf("insert article: %w", err)
	}
	return id, nil
}

func existsQuery(link string) (string, []any, error) {
	return psql.Select("1").
		From(newsTable).
		Where(sq.Eq{"link": link}).
		Limit(1).
		ToSql()
}

func insertQuery(article domain.Article) (string, []any, error) {
	category := article.Category
	if !category.Valid() {
		category = domain.CategoryAll
	}
	return psql.Insert(newsTable).
		Columns("title", "link", "published_at", "source", "summary", "category").
		Values(article.Title, article.Link, article.PublishedAt, article.Source, article.Summary, string(category)).
		Suffix("ON CONFLICT (link) DO NOTHING RETURNING id").
		ToSql()
}

func latestQuery(limit int) (string, []any, error) {
	if limit <= 0 {
		return "", nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	return psql.Select(newsColumns...).
		From(newsTable).
		OrderBy("published_at DESC NULLS LAST", "id DESC").
		Limit(uint64(limit)).
		ToSql()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArticle(row rowScanner) (domain.Article, error) {
	var (
		article   domain.Article
		published sql.NullTime
		category  string
	)
	if err := row.Scan(
		&article.ID,
		&article.Title,
		&article.Link,
		&published,
		&article.Source,
		&article.Summary,
		&category,
		&article.CreatedAt,
	); err != nil {
		return domain.Article{}, fmt.Errorf("scan article: %w", err)
	}
	if published.Valid {
		t := published.Time
		article.PublishedAt = &t
	}
	article.Category = domain.Category(category)
	return article, nil
}
