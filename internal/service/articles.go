package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/maxstewm/asian-guide-web/internal/domain"
	"github.com/maxstewm/asian-guide-web/internal/slug"
)

const (
	// MaxTitleLength is counted in characters.
	MaxTitleLength = 255
	// updateAttempts bounds how often an update is replayed after losing a
	// slug race to a concurrent writer.
	updateAttempts = 3
)

// ArticleManager owns the atomic mutations of an article row.
type ArticleManager struct {
	articles  ArticleStore
	images    ImageStore
	txManager TransactionManager
	countries CountryResolver
	slugs     *slug.Generator
	janitor   *Janitor
	publisher Publisher
	logger    *slog.Logger

	maxContentBytes int
	now             func() time.Time
}

func NewArticleManager(
	articles ArticleStore,
	images ImageStore,
	txManager TransactionManager,
	countries CountryResolver,
	slugs *slug.Generator,
	janitor *Janitor,
	publisher Publisher,
	logger *slog.Logger,
	maxContentBytes int,
) *ArticleManager {
	return &ArticleManager{
		articles:        articles,
		images:          images,
		txManager:       txManager,
		countries:       countries,
		slugs:           slugs,
		janitor:         janitor,
		publisher:       publisher,
		logger:          logger.With("component", "articles"),
		maxContentBytes: maxContentBytes,
		now:             time.Now,
	}
}

// CreateDraft inserts an empty draft owned by authorID.
func (m *ArticleManager) CreateDraft(ctx context.Context, authorID int64) (int64, error) {
	id, err := m.articles.CreateDraft(ctx, authorID)
	if err != nil {
		return 0, fmt.Errorf("create draft: %w", err)
	}

	m.logger.Info("draft created", "article_id", id, "author_id", authorID)
	return id, nil
}

// Update applies the present fields of patch and returns the article's slug.
// Publishing an article without a slug assigns one in the same transaction.
// Only the content size is checked before ownership; every other field is
// interpreted after it, so a caller who does not own the article gets a
// permission error whatever the payload.
func (m *ArticleManager) Update(ctx context.Context, articleID, callerID int64, patch domain.ArticlePatch) (string, error) {
	if patch.Content != nil && m.maxContentBytes > 0 && len(*patch.Content) > m.maxContentBytes {
		return "", fmt.Errorf("%w: content exceeds %d bytes", domain.ErrValidation, m.maxContentBytes)
	}

	for attempt := 1; ; attempt++ {
		result, err := m.updateOnce(ctx, articleID, callerID, patch)
		if errors.Is(err, domain.ErrSlugTaken) && attempt < updateAttempts {
			m.logger.Warn("slug taken concurrently, retrying update",
				"article_id", articleID,
				"attempt", attempt,
			)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("update article %d: %w", articleID, err)
		}

		if result.published {
			m.publish(ctx, domain.EventPublished, result.article)
		}
		return result.article.Slug, nil
	}
}

// prepare validates patch and turns it into column changes. It touches no
// store.
func (m *ArticleManager) prepare(patch domain.ArticlePatch) (domain.ArticleChanges, error) {
	var changes domain.ArticleChanges

	if patch.Title != nil {
		title := strings.TrimSpace(*patch.Title)
		if utf8.RuneCountInString(title) > MaxTitleLength {
			return changes, fmt.Errorf("%w: title exceeds %d characters", domain.ErrValidation, MaxTitleLength)
		}
		changes.Title = &title
	}

	changes.Content = patch.Content

	if patch.Type != nil {
		t := domain.ContentType(strings.ToLower(strings.TrimSpace(*patch.Type)))
		if !t.Valid() {
			return changes, fmt.Errorf("%w: unknown type %q", domain.ErrValidation, *patch.Type)
		}
		changes.Type = &t
	}

	if patch.Status != nil {
		st := domain.Status(strings.ToLower(strings.TrimSpace(*patch.Status)))
		if !st.Valid() {
			return changes, fmt.Errorf("%w: unknown status %q", domain.ErrValidation, *patch.Status)
		}
		changes.Status = &st
	}

	if patch.Country != nil {
		id, ok := m.countries.Resolve(*patch.Country)
		if !ok {
			return changes, fmt.Errorf("%w: country %q", domain.ErrNotFound, *patch.Country)
		}
		changes.CountryID = &id
	}

	return changes, nil
}

type updateResult struct {
	article   domain.Article
	published bool
}

func (m *ArticleManager) updateOnce(ctx context.Context, articleID, callerID int64, patch domain.ArticlePatch) (*updateResult, error) {
	var result updateResult

	err := m.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		article, err := m.articles.GetForUpdate(txCtx, articleID)
		if err != nil {
			return fmt.Errorf("load article: %w", err)
		}
		if article.AuthorID != callerID {
			return fmt.Errorf("%w: article %d belongs to another author", domain.ErrPermission, articleID)
		}

		changes, err := m.prepare(patch)
		if err != nil {
			return err
		}
		if changes.Empty() {
			result.article = *article
			return nil
		}

		publishing := changes.Status != nil && *changes.Status == domain.StatusPublished

		if publishing && article.Slug == "" {
			title := article.Title
			if changes.Title != nil {
				title = *changes.Title
			}
			if title == "" {
				return fmt.Errorf("%w: publishing requires a title", domain.ErrValidation)
			}

			s, err := m.slugs.Generate(txCtx, title, m.articles.SlugExists)
			if err != nil {
				return fmt.Errorf("generate slug: %w", err)
			}
			changes.Slug = &s
		}

		if err := m.articles.Update(txCtx, articleID, changes, m.now()); err != nil {
			return fmt.Errorf("write article: %w", err)
		}

		wasPublished := article.Status == domain.StatusPublished
		applyChanges(article, changes)
		result.article = *article
		result.published = publishing && !wasPublished
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &result, nil
}

func applyChanges(a *domain.Article, c domain.ArticleChanges) {
	if c.Title != nil {
		a.Title = *c.Title
	}
	if c.Content != nil {
		a.Content = *c.Content
	}
	if c.Slug != nil {
		a.Slug = *c.Slug
	}
	if c.Status != nil {
		a.Status = *c.Status
	}
	if c.CountryID != nil {
		a.CountryID = c.CountryID
	}
	if c.Type != nil {
		a.Type = *c.Type
	}
}

// Delete removes the article and its image rows. The image blobs are handed
// to the janitor once the deletion has committed.
func (m *ArticleManager) Delete(ctx context.Context, articleID, callerID int64) error {
	var (
		deleted domain.Article
		keys    []string
	)

	err := m.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		article, err := m.articles.GetForUpdate(txCtx, articleID)
		if err != nil {
			return fmt.Errorf("load article: %w", err)
		}
		if article.AuthorID != callerID {
			return fmt.Errorf("%w: article %d belongs to another author", domain.ErrPermission, articleID)
		}

		keys, err = m.images.KeysByArticle(txCtx, articleID)
		if err != nil {
			return fmt.Errorf("list image keys: %w", err)
		}

		if err := m.articles.Delete(txCtx, articleID); err != nil {
			return fmt.Errorf("delete row: %w", err)
		}

		deleted = *article
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete article %d: %w", articleID, err)
	}

	m.janitor.Discard(ctx, "article deleted", keys...)
	m.publish(ctx, domain.EventDeleted, deleted)

	m.logger.Info("article deleted", "article_id", articleID, "images", len(keys))
	return nil
}

func (m *ArticleManager) publish(ctx context.Context, action domain.EventAction, a domain.Article) {
	if m.publisher == nil {
		return
	}

	event := &domain.ArticleEvent{
		Action:    action,
		ArticleID: a.ID,
		AuthorID:  a.AuthorID,
		Title:     a.Title,
		Slug:      a.Slug,
		Timestamp: m.now(),
	}
	if err := m.publisher.Publish(ctx, event); err != nil {
		m.logger.Warn("publish event failed", "article_id", a.ID, "action", action, "error", err)
	}
}
