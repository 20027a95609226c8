package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/maxstewm/asian-guide-web/internal/domain"
)

const publishedSelect = `
	SELECT
		a.id, a.author_id, a.title, a.content, COALESCE(a.slug, '') AS slug,
		a.status, a.country_id, a.type, a.main_image_id, a.created_at, a.updated_at,
		u.username AS author_username,
		COALESCE(c.name, '') AS country_name,
		COALESCE(c.slug, '') AS country_slug
	FROM articles a
	JOIN users u ON u.id = a.author_id
	LEFT JOIN countries c ON c.id = a.country_id`

const summarySelect = `
	SELECT
		a.id, a.title, COALESCE(a.slug, '') AS slug, a.status, a.type,
		COALESCE(mi.url, '') AS main_image_url,
		a.author_id, u.username AS author_username,
		a.country_id,
		COALESCE(c.name, '') AS country_name,
		COALESCE(c.slug, '') AS country_slug,
		a.created_at, a.updated_at
	FROM articles a
	JOIN users u ON u.id = a.author_id
	LEFT JOIN countries c ON c.id = a.country_id
	LEFT JOIN images mi ON mi.id = a.main_image_id`

// sortColumns whitelists the ORDER BY targets; nothing from the request
// reaches the query text.
var sortColumns = map[domain.SortField]string{
	domain.SortCreatedAt: "a.created_at",
	domain.SortUpdatedAt: "a.updated_at",
	domain.SortTitle:     "a.title",
}

// Search returns one page of articles matching q and the number of matches
// across all pages.
func (s *ArticleStore) Search(ctx context.Context, q domain.ArticleQuery) ([]domain.ArticleSummary, int, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if q.PublishedOnly {
		where = append(where, "a.status = "+arg(domain.StatusPublished))
	}
	if q.CountrySlug != "" {
		where = append(where, "c.slug = "+arg(q.CountrySlug))
	}
	if q.AuthorID != 0 {
		where = append(where, "a.author_id = "+arg(q.AuthorID))
	}

	filter := ""
	if len(where) > 0 {
		filter = " WHERE " + strings.Join(where, " AND ")
	}

	column, ok := sortColumns[q.SortBy]
	if !ok {
		column = sortColumns[domain.SortCreatedAt]
	}
	direction := "ASC"
	if q.Descending {
		direction = "DESC"
	}

	countQuery := `
		SELECT COUNT(*)
		FROM articles a
		LEFT JOIN countries c ON c.id = a.country_id` + filter
	countArgs := append([]any(nil), args...)

	pageQuery := summarySelect + filter +
		fmt.Sprintf(" ORDER BY %s %s, a.id %s LIMIT %s OFFSET %s", column, direction, direction, arg(q.Limit), arg(q.Offset))

	// Both statements run concurrently on the pool, outside any transaction
	// held in ctx.
	var (
		total    int
		articles []domain.ArticleSummary
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sqlx.GetContext(gctx, s.db, &total, countQuery, countArgs...)
	})
	g.Go(func() error {
		return sqlx.SelectContext(gctx, s.db, &articles, pageQuery, args...)
	})
	if err := g.Wait(); err != nil {
		return nil, 0, translate(err)
	}
	return articles, total, nil
}

// GetPublishedBySlug returns the published article with slug. Drafts are
// reported as not found.
func (s *ArticleStore) GetPublishedBySlug(ctx context.Context, slug string) (*domain.PublishedArticle, error) {
	var article domain.PublishedArticle
	query := publishedSelect + " WHERE a.slug = $1 AND a.status = $2"
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &article, query, slug, domain.StatusPublished); err != nil {
		return nil, translate(err)
	}
	return &article, nil
}
