package postgres

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/maxstewm/asian-guide-web/internal/domain"
)

const articleColumns = `
	id, author_id, title, content, COALESCE(slug, '') AS slug, status,
	country_id, type, main_image_id, created_at, updated_at`

type ArticleStore struct {
	db *sqlx.DB
}

func NewArticleStore(db *sqlx.DB) *ArticleStore {
	return &ArticleStore{db: db}
}

func (s *ArticleStore) CreateDraft(ctx context.Context, authorID int64) (int64, error) {
	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx,
		"INSERT INTO articles (author_id, status) VALUES ($1, $2) RETURNING id",
		authorID, domain.StatusDraft,
	).Scan(&id)
	if err != nil {
		return 0, translate(err)
	}
	return id, nil
}

// Create inserts a complete article. An empty slug is stored as NULL.
// ReserveID draws the next article id without inserting a row, so blobs can
// be keyed by the id before the article exists.
func (s *ArticleStore) ReserveID(ctx context.Context) (int64, error) {
	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx,
		"SELECT nextval(pg_get_serial_sequence('articles', 'id'))",
	).Scan(&id)
	if err != nil {
		return 0, translate(err)
	}
	return id, nil
}

// Create inserts article and returns its id. A non-zero article.ID, as
// returned by ReserveID, is used instead of a fresh one.
func (s *ArticleStore) Create(ctx context.Context, article *domain.Article) (int64, error) {
	query := `
		INSERT INTO articles (
			id, author_id, title, content, slug, status, country_id, type,
			created_at, updated_at
		) VALUES (
			COALESCE(NULLIF($1::bigint, 0), nextval(pg_get_serial_sequence('articles', 'id'))),
			$2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10
		)
		RETURNING id`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		article.ID,
		article.AuthorID,
		article.Title,
		article.Content,
		article.Slug,
		article.Status,
		article.CountryID,
		article.Type,
		article.CreatedAt,
		article.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, translate(err)
	}
	return id, nil
}

func (s *ArticleStore) Get(ctx context.Context, id int64) (*domain.Article, error) {
	var article domain.Article
	query := "SELECT " + articleColumns + " FROM articles WHERE id = $1"
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &article, query, id); err != nil {
		return nil, translate(err)
	}
	return &article, nil
}

// GetForUpdate reads the article and locks its row until the surrounding
// transaction ends.
func (s *ArticleStore) GetForUpdate(ctx context.Context, id int64) (*domain.Article, error) {
	var article domain.Article
	query := "SELECT " + articleColumns + " FROM articles WHERE id = $1 FOR UPDATE"
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &article, query, id); err != nil {
		return nil, translate(err)
	}
	return &article, nil
}

// Update writes the non-nil fields of changes and refreshes updated_at.
func (s *ArticleStore) Update(ctx context.Context, id int64, changes domain.ArticleChanges, updatedAt time.Time) error {
	var sb strings.Builder
	args := make([]interface{}, 0, 8)

	set := func(column string, value interface{}) {
		args = append(args, value)
		if len(args) > 1 {
			sb.WriteString(", ")
		}
		sb.WriteString(column)
		sb.WriteString(" = $")
		sb.WriteString(strconv.Itoa(len(args)))
	}

	sb.WriteString("UPDATE articles SET ")
	if changes.Title != nil {
		set("title", *changes.Title)
	}
	if changes.Content != nil {
		set("content", *changes.Content)
	}
	if changes.Slug != nil {
		set("slug", *changes.Slug)
	}
	if changes.Status != nil {
		set("status", *changes.Status)
	}
	if changes.CountryID != nil {
		set("country_id", *changes.CountryID)
	}
	if changes.Type != nil {
		set("type", *changes.Type)
	}
	set("updated_at", updatedAt)

	args = append(args, id)
	sb.WriteString(" WHERE id = $")
	sb.WriteString(strconv.Itoa(len(args)))

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return translate(err)
	}
	return expectOne(res)
}

func (s *ArticleStore) SetMainImage(ctx context.Context, articleID int64, imageID *int64) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"UPDATE articles SET main_image_id = $1, updated_at = NOW() WHERE id = $2",
		imageID, articleID,
	)
	if err != nil {
		return translate(err)
	}
	return expectOne(res)
}

// Delete removes the article. Its images go with it through the cascade.
func (s *ArticleStore) Delete(ctx context.Context, id int64) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, "DELETE FROM articles WHERE id = $1", id)
	if err != nil {
		return translate(err)
	}
	return expectOne(res)
}

func (s *ArticleStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &exists,
		"SELECT EXISTS (SELECT 1 FROM articles WHERE slug = $1)", slug)
	return exists, translate(err)
}

func (s *ArticleStore) TitleExists(ctx context.Context, title string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &exists,
		"SELECT EXISTS (SELECT 1 FROM articles WHERE title = $1)", title)
	return exists, translate(err)
}

// ListPublished returns every published article with its author and country,
// oldest first.
func (s *ArticleStore) ListPublished(ctx context.Context) ([]domain.PublishedArticle, error) {
	query := publishedSelect + `
		WHERE a.status = $1
		ORDER BY a.created_at, a.id`

	var articles []domain.PublishedArticle
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &articles, query, domain.StatusPublished); err != nil {
		return nil, translate(err)
	}
	return articles, nil
}
