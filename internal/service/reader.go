package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/maxstewm/asian-guide-web/internal/domain"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 50
)

// ListParams is a public listing request. Page counts from 1.
type ListParams struct {
	Country  string
	AuthorID int64
	Page     int
	Limit    int
	SortBy   string
	Order    string
}

type ArticlePage struct {
	Articles []domain.ArticleSummary
	Page     int
	Limit    int
	Total    int
}

func (p *ArticlePage) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return (p.Total + p.Limit - 1) / p.Limit
}

// ArticleReader serves the read side of the API: the country list, the
// public listing, a single published article and the caller's own articles.
type ArticleReader struct {
	finder    ArticleFinder
	images    ImageStore
	countries CountryStore
}

func NewArticleReader(finder ArticleFinder, images ImageStore, countries CountryStore) *ArticleReader {
	return &ArticleReader{finder: finder, images: images, countries: countries}
}

func (r *ArticleReader) Countries(ctx context.Context) ([]domain.Country, error) {
	countries, err := r.countries.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list countries: %w", err)
	}
	return countries, nil
}

// List returns one page of published articles, newest first unless p asks
// for another order.
func (r *ArticleReader) List(ctx context.Context, p ListParams) (*ArticlePage, error) {
	q, err := pageQuery(p.Page, p.Limit)
	if err != nil {
		return nil, err
	}

	q.SortBy = domain.SortCreatedAt
	if p.SortBy != "" {
		q.SortBy = domain.SortField(p.SortBy)
		if !q.SortBy.Valid() {
			return nil, fmt.Errorf("%w: cannot sort by %q", domain.ErrValidation, p.SortBy)
		}
	}

	switch strings.ToLower(p.Order) {
	case "", "desc":
		q.Descending = true
	case "asc":
	default:
		return nil, fmt.Errorf("%w: order must be asc or desc", domain.ErrValidation)
	}

	q.CountrySlug = strings.ToLower(strings.TrimSpace(p.Country))
	q.AuthorID = p.AuthorID
	q.PublishedOnly = true

	return r.search(ctx, q, p.Page, p.Limit)
}

// ListByAuthor returns one page of authorID's articles, drafts included,
// newest first.
func (r *ArticleReader) ListByAuthor(ctx context.Context, authorID int64, page, limit int) (*ArticlePage, error) {
	q, err := pageQuery(page, limit)
	if err != nil {
		return nil, err
	}
	q.AuthorID = authorID
	q.SortBy = domain.SortCreatedAt
	q.Descending = true

	return r.search(ctx, q, page, limit)
}

// BySlug returns a published article with its gallery in display order.
func (r *ArticleReader) BySlug(ctx context.Context, articleSlug string) (*domain.ArticleDetail, error) {
	articleSlug = strings.TrimSpace(articleSlug)
	if articleSlug == "" {
		return nil, fmt.Errorf("%w: article slug is required", domain.ErrValidation)
	}

	article, err := r.finder.GetPublishedBySlug(ctx, articleSlug)
	if err != nil {
		return nil, fmt.Errorf("article %q: %w", articleSlug, err)
	}

	images, err := r.images.ListByArticle(ctx, article.ID)
	if err != nil {
		return nil, fmt.Errorf("list images of article %d: %w", article.ID, err)
	}

	detail := &domain.ArticleDetail{PublishedArticle: *article, Images: images}
	for _, img := range images {
		if article.MainImageID != nil && img.ID == *article.MainImageID {
			detail.MainImageURL = img.URL
			break
		}
	}
	if detail.MainImageURL == "" && len(images) > 0 {
		detail.MainImageURL = images[0].URL
	}
	return detail, nil
}

func (r *ArticleReader) search(ctx context.Context, q domain.ArticleQuery, page, limit int) (*ArticlePage, error) {
	articles, total, err := r.finder.Search(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search articles: %w", err)
	}
	return &ArticlePage{Articles: articles, Page: page, Limit: limit, Total: total}, nil
}

func pageQuery(page, limit int) (domain.ArticleQuery, error) {
	if page < 1 {
		return domain.ArticleQuery{}, fmt.Errorf("%w: page must be a positive integer", domain.ErrValidation)
	}
	if limit < 1 || limit > MaxPageSize {
		return domain.ArticleQuery{}, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrValidation, MaxPageSize)
	}
	return domain.ArticleQuery{Limit: limit, Offset: (page - 1) * limit}, nil
}
