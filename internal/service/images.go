package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/maxstewm/asian-guide-web/internal/blob"
	"github.com/maxstewm/asian-guide-web/internal/domain"
	"github.com/maxstewm/asian-guide-web/internal/metrics"
)

var imageTypes = map[string][]string{
	"image/jpeg": {".jpg", ".jpeg"},
	"image/png":  {".png"},
	"image/gif":  {".gif"},
}

// ImageManager owns the ordered image list of an article and its main image
// pointer.
type ImageManager struct {
	articles  ArticleStore
	images    ImageStore
	blobs     BlobStore
	txManager TransactionManager
	janitor   *Janitor
	logger    *slog.Logger
	maxBytes  int64
}

func NewImageManager(
	articles ArticleStore,
	images ImageStore,
	blobs BlobStore,
	txManager TransactionManager,
	janitor *Janitor,
	logger *slog.Logger,
	maxBytes int64,
) *ImageManager {
	if maxBytes <= 0 || maxBytes > domain.MaxImageBytes {
		maxBytes = domain.MaxImageBytes
	}
	return &ImageManager{
		articles:  articles,
		images:    images,
		blobs:     blobs,
		txManager: txManager,
		janitor:   janitor,
		logger:    logger.With("component", "images"),
		maxBytes:  maxBytes,
	}
}

// Attach stores data as the next image of the article. The first image an
// article receives becomes its main image.
func (m *ImageManager) Attach(ctx context.Context, articleID, callerID int64, filename string, data []byte) (*domain.Image, error) {
	contentType, ext, err := m.validate(filename, data)
	if err != nil {
		return nil, err
	}

	article, err := m.articles.Get(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("attach image: load article %d: %w", articleID, err)
	}
	if article.AuthorID != callerID {
		return nil, fmt.Errorf("attach image: %w: article %d belongs to another author", domain.ErrPermission, articleID)
	}

	key := blob.NewKey(articleID, "upload"+ext)
	err = m.blobs.Put(ctx, key, data, contentType)
	metrics.RecordBlob("put", err)
	if err != nil {
		return nil, fmt.Errorf("attach image: upload: %w", err)
	}

	img := &domain.Image{
		ArticleID:  articleID,
		StorageKey: key,
		URL:        m.blobs.PublicURL(key),
	}

	err = m.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		locked, err := m.articles.GetForUpdate(txCtx, articleID)
		if err != nil {
			return fmt.Errorf("lock article: %w", err)
		}

		img.Ordinal, err = m.images.NextOrdinal(txCtx, articleID)
		if err != nil {
			return fmt.Errorf("next ordinal: %w", err)
		}

		if err := m.images.Insert(txCtx, img); err != nil {
			return fmt.Errorf("insert image: %w", err)
		}

		if locked.MainImageID == nil {
			if err := m.articles.SetMainImage(txCtx, articleID, &img.ID); err != nil {
				return fmt.Errorf("set main image: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		m.janitor.Discard(ctx, "image row not committed", key)
		return nil, fmt.Errorf("attach image: %w", err)
	}

	m.logger.Info("image attached",
		"article_id", articleID,
		"image_id", img.ID,
		"ordinal", img.Ordinal,
	)
	return img, nil
}

func (m *ImageManager) validate(filename string, data []byte) (contentType, ext string, err error) {
	if len(data) == 0 {
		return "", "", fmt.Errorf("%w: empty image", domain.ErrValidation)
	}
	if int64(len(data)) > m.maxBytes {
		return "", "", fmt.Errorf("%w: image exceeds %d bytes", domain.ErrValidation, m.maxBytes)
	}

	mt := mimetype.Detect(data)
	contentType = strings.SplitN(mt.String(), ";", 2)[0]
	allowed, ok := imageTypes[contentType]
	if !ok {
		return "", "", fmt.Errorf("%w: unsupported content type %s", domain.ErrValidation, contentType)
	}

	ext = strings.ToLower(path.Ext(filename))
	if ext == "" {
		return contentType, allowed[0], nil
	}
	for _, a := range allowed {
		if ext == a {
			return contentType, ext, nil
		}
	}
	return "", "", fmt.Errorf("%w: extension %s does not match %s content", domain.ErrValidation, ext, contentType)
}

// Detach deletes an image row. When it was the main image, the remaining
// image with the smallest ordinal takes its place. The blob is removed after
// commit on a best-effort basis.
func (m *ImageManager) Detach(ctx context.Context, imageID, callerID int64) (*domain.DetachResult, error) {
	var (
		result domain.DetachResult
		key    string
	)

	err := m.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		img, err := m.images.Get(txCtx, imageID)
		if err != nil {
			return fmt.Errorf("load image: %w", err)
		}

		article, err := m.articles.GetForUpdate(txCtx, img.ArticleID)
		if err != nil {
			return fmt.Errorf("lock article: %w", err)
		}
		if article.AuthorID != callerID {
			return fmt.Errorf("%w: image %d belongs to another author", domain.ErrPermission, imageID)
		}

		if err := m.images.Delete(txCtx, imageID); err != nil {
			return fmt.Errorf("delete image: %w", err)
		}

		result.ArticleID = article.ID
		result.MainImageID = article.MainImageID
		key = img.StorageKey

		if article.MainImageID != nil && *article.MainImageID != imageID {
			return nil
		}

		var next *int64
		first, err := m.images.First(txCtx, article.ID)
		switch {
		case err == nil:
			next = &first.ID
		case errors.Is(err, domain.ErrNotFound):
		default:
			return fmt.Errorf("select replacement: %w", err)
		}

		if err := m.articles.SetMainImage(txCtx, article.ID, next); err != nil {
			return fmt.Errorf("set main image: %w", err)
		}

		result.MainChanged = !sameID(article.MainImageID, next)
		result.MainImageID = next
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("detach image %d: %w", imageID, err)
	}

	m.janitor.Discard(ctx, "image detached", key)

	m.logger.Info("image detached",
		"image_id", imageID,
		"article_id", result.ArticleID,
		"main_changed", result.MainChanged,
	)
	return &result, nil
}

func sameID(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
