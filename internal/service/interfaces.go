package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"github.com/maxstewm/asian-guide-web/internal/domain"
)

type ArticleStore interface {
	CreateDraft(ctx context.Context, authorID int64) (int64, error)
	ReserveID(ctx context.Context) (int64, error)
	Create(ctx context.Context, article *domain.Article) (int64, error)
	Get(ctx context.Context, id int64) (*domain.Article, error)
	GetForUpdate(ctx context.Context, id int64) (*domain.Article, error)
	Update(ctx context.Context, id int64, changes domain.ArticleChanges, updatedAt time.Time) error
	SetMainImage(ctx context.Context, articleID int64, imageID *int64) error
	Delete(ctx context.Context, id int64) error
	SlugExists(ctx context.Context, slug string) (bool, error)
	TitleExists(ctx context.Context, title string) (bool, error)
	ListPublished(ctx context.Context) ([]domain.PublishedArticle, error)
}

// ArticleFinder serves the read-only listings.
type ArticleFinder interface {
	Search(ctx context.Context, q domain.ArticleQuery) ([]domain.ArticleSummary, int, error)
	GetPublishedBySlug(ctx context.Context, slug string) (*domain.PublishedArticle, error)
}

type ImageStore interface {
	Insert(ctx context.Context, img *domain.Image) error
	NextOrdinal(ctx context.Context, articleID int64) (int, error)
	Get(ctx context.Context, id int64) (*domain.Image, error)
	Delete(ctx context.Context, id int64) error
	First(ctx context.Context, articleID int64) (*domain.Image, error)
	ListByArticle(ctx context.Context, articleID int64) ([]domain.Image, error)
	KeysByArticle(ctx context.Context, articleID int64) ([]string, error)
}

type CountryStore interface {
	List(ctx context.Context) ([]domain.Country, error)
}

type AuthorStore interface {
	ExistingIDs(ctx context.Context, ids []int64) (map[int64]bool, error)
}

type RunStore interface {
	Record(ctx context.Context, run *domain.RunSummary) error
}

type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	PublicURL(key string) string
}

type CountryResolver interface {
	Resolve(nameOrSlug string) (int64, bool)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, event *domain.ArticleEvent) error
	Close() error
}
