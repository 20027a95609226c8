package postgres

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/maxstewm/asian-guide-web/internal/domain"
)

const imageColumns = "id, article_id, storage_key, url, ordinal, uploaded_at"

type ImageStore struct {
	db *sqlx.DB
}

func NewImageStore(db *sqlx.DB) *ImageStore {
	return &ImageStore{db: db}
}

// Insert stores img and fills in its id and upload time.
func (s *ImageStore) Insert(ctx context.Context, img *domain.Image) error {
	query := `
		INSERT INTO images (article_id, storage_key, url, ordinal)
		VALUES ($1, $2, $3, $4)
		RETURNING id, uploaded_at`

	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		img.ArticleID, img.StorageKey, img.URL, img.Ordinal,
	).Scan(&img.ID, &img.UploadedAt)
	return translate(err)
}

// NextOrdinal returns one past the highest ordinal of the article, or 0 when
// it has no images. Ordinals are not reused after a delete.
func (s *ImageStore) NextOrdinal(ctx context.Context, articleID int64) (int, error) {
	var next int
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &next,
		"SELECT COALESCE(MAX(ordinal) + 1, 0) FROM images WHERE article_id = $1", articleID)
	return next, translate(err)
}

func (s *ImageStore) Get(ctx context.Context, id int64) (*domain.Image, error) {
	var img domain.Image
	query := "SELECT " + imageColumns + " FROM images WHERE id = $1"
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &img, query, id); err != nil {
		return nil, translate(err)
	}
	return &img, nil
}

func (s *ImageStore) Delete(ctx context.Context, id int64) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, "DELETE FROM images WHERE id = $1", id)
	if err != nil {
		return translate(err)
	}
	return expectOne(res)
}

// First returns the main image candidate of an article: the smallest ordinal,
// then the earliest upload.
func (s *ImageStore) First(ctx context.Context, articleID int64) (*domain.Image, error) {
	var img domain.Image
	query := "SELECT " + imageColumns + ` FROM images
		WHERE article_id = $1
		ORDER BY ordinal, uploaded_at, id
		LIMIT 1`
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &img, query, articleID); err != nil {
		return nil, translate(err)
	}
	return &img, nil
}

func (s *ImageStore) ListByArticle(ctx context.Context, articleID int64) ([]domain.Image, error) {
	var images []domain.Image
	query := "SELECT " + imageColumns + " FROM images WHERE article_id = $1 ORDER BY ordinal, uploaded_at, id"
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &images, query, articleID); err != nil {
		return nil, translate(err)
	}
	return images, nil
}

func (s *ImageStore) KeysByArticle(ctx context.Context, articleID int64) ([]string, error) {
	var keys []string
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &keys,
		"SELECT storage_key FROM images WHERE article_id = $1 ORDER BY ordinal", articleID)
	if err != nil {
		return nil, translate(err)
	}
	return keys, nil
}

func expectOne(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return translate(err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
