package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/sync/errgroup"

	"github.com/maxstewm/asian-guide-web/internal/blob"
	"github.com/maxstewm/asian-guide-web/internal/config"
	"github.com/maxstewm/asian-guide-web/internal/country"
	"github.com/maxstewm/asian-guide-web/internal/domain"
	"github.com/maxstewm/asian-guide-web/internal/markdown"
	"github.com/maxstewm/asian-guide-web/internal/metrics"
	"github.com/maxstewm/asian-guide-web/internal/slug"
)

// Catalog is the reference data of one import run. It is built once and not
// modified afterwards.
type Catalog struct {
	Countries CountryResolver
	Authors   []domain.Author
}

// ReadAuthorPool reads the JSON array of importable accounts.
func ReadAuthorPool(path string) ([]domain.Author, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read author pool: %w", err)
	}

	var authors []domain.Author
	if err := json.Unmarshal(data, &authors); err != nil {
		return nil, fmt.Errorf("parse author pool %s: %w", path, err)
	}
	return authors, nil
}

// LoadCatalog loads the country table and keeps the pool accounts that exist
// in the store. An empty pool is a configuration error.
func LoadCatalog(ctx context.Context, countries CountryStore, authors AuthorStore, pool []domain.Author) (*Catalog, error) {
	resolver, err := country.Load(ctx, countries)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(pool))
	for i, a := range pool {
		ids[i] = a.ID
	}
	existing, err := authors.ExistingIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("check author pool: %w", err)
	}

	var usable []domain.Author
	for _, a := range pool {
		if existing[a.ID] {
			usable = append(usable, a)
		}
	}
	if len(usable) == 0 {
		return nil, fmt.Errorf("%w: no importable author accounts exist", domain.ErrValidation)
	}

	return &Catalog{Countries: resolver, Authors: usable}, nil
}

type ImportService struct {
	articles  ArticleStore
	images    ImageStore
	blobs     BlobStore
	txManager TransactionManager
	runs      RunStore
	janitor   *Janitor
	publisher Publisher
	slugs     *slug.Generator
	logger    *slog.Logger
	cfg       config.ImportConfig

	now  func() time.Time
	intn func(n int) int
}

func NewImportService(
	articles ArticleStore,
	images ImageStore,
	blobs BlobStore,
	txManager TransactionManager,
	runs RunStore,
	janitor *Janitor,
	publisher Publisher,
	slugs *slug.Generator,
	logger *slog.Logger,
	cfg config.ImportConfig,
) *ImportService {
	if cfg.Transfers <= 0 {
		cfg.Transfers = 1
	}
	return &ImportService{
		articles:  articles,
		images:    images,
		blobs:     blobs,
		txManager: txManager,
		runs:      runs,
		janitor:   janitor,
		publisher: publisher,
		slugs:     slugs,
		logger:    logger.With("component", "import"),
		cfg:       cfg,
		now:       time.Now,
		intn:      rand.Intn,
	}
}

// Run imports every article folder under root. A failing folder is counted
// and logged; only an unreadable root or cancellation stops the run.
func (s *ImportService) Run(ctx context.Context, catalog *Catalog, root string) (*domain.ImportStats, error) {
	started := s.now()
	stats := &domain.ImportStats{}

	s.logger.Info("starting import", "root", root, "authors", len(catalog.Authors))

	walkErr := s.walk(ctx, root, func(folder *Folder) {
		s.importFolder(ctx, catalog, folder, stats)
	})

	stats.Duration = s.now().Sub(started)
	recordRun(ctx, s.runs, s.logger, stats.Summary(started))
	metrics.RecordRun("import", stats.Duration.Seconds())

	s.logger.Info("import completed",
		"processed", stats.Processed,
		"imported", stats.Imported,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
		"images", stats.Images,
		"duration", stats.Duration,
	)

	if walkErr != nil {
		return stats, fmt.Errorf("walk %s: %w", root, walkErr)
	}
	return stats, nil
}

// walk visits article folders depth-first and only descends into containers.
func (s *ImportService) walk(ctx context.Context, dir string, visit func(*Folder)) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	folder, err := Classify(dir)
	if err != nil {
		return err
	}

	if folder.Kind == FolderArticle {
		visit(folder)
		return nil
	}

	for _, sub := range folder.Subdirs {
		if err := s.walk(ctx, sub, visit); err != nil {
			if ctx.Err() != nil {
				return err
			}
			s.logger.Warn("skipping unreadable directory", "folder", sub, "error", err)
		}
	}
	return nil
}

func (s *ImportService) importFolder(ctx context.Context, catalog *Catalog, folder *Folder, stats *domain.ImportStats) {
	stats.Processed++
	log := s.logger.With("folder", folder.Path)

	if len(folder.ExtraMarkdown) > 0 {
		log.Warn("multiple markdown files, using the first",
			"used", folder.Markdown,
			"ignored", folder.ExtraMarkdown,
		)
	}

	outcome, err := s.importArticle(ctx, catalog, folder, stats, log)
	switch outcome {
	case outcomeImported:
		stats.Imported++
	case outcomeSkipped:
		stats.Skipped++
	case outcomeFailed:
		stats.Errors++
		log.Error("import failed", "error", err)
	}
	metrics.RecordOutcome("import", string(outcome))
}

type outcome string

const (
	outcomeImported outcome = "imported"
	outcomeSkipped  outcome = "skipped"
	outcomeFailed   outcome = "failed"
)

func (s *ImportService) importArticle(ctx context.Context, catalog *Catalog, folder *Folder, stats *domain.ImportStats, log *slog.Logger) (outcome, error) {
	src, err := os.ReadFile(folder.Markdown)
	if err != nil {
		return outcomeFailed, fmt.Errorf("read markdown: %w", err)
	}

	doc, err := markdown.Parse(src)
	if err != nil {
		return outcomeFailed, err
	}
	log = log.With("title", doc.Title)

	if doc.Title == "" || doc.Category == "" {
		log.Info("skipping folder without title or category")
		return outcomeSkipped, nil
	}

	exists, err := s.articles.TitleExists(ctx, doc.Title)
	if err != nil {
		return outcomeFailed, fmt.Errorf("check duplicate title: %w", err)
	}
	if exists {
		log.Info("skipping duplicate title")
		return outcomeSkipped, nil
	}

	countryID, ok := catalog.Countries.Resolve(doc.Category)
	if !ok {
		log.Warn("skipping unknown country", "category", doc.Category)
		return outcomeSkipped, nil
	}

	author := catalog.Authors[s.intn(len(catalog.Authors))]

	created := doc.Date
	if created.IsZero() {
		created = s.now()
	}

	article := &domain.Article{
		AuthorID:  author.ID,
		Title:     doc.Title,
		Content:   doc.Body,
		Status:    domain.StatusPublished,
		CountryID: &countryID,
		Type:      domain.ParseContentType(doc.Type),
		CreatedAt: created,
		UpdatedAt: created,
	}

	article.ID, err = s.articles.ReserveID(ctx)
	if err != nil {
		return outcomeFailed, fmt.Errorf("reserve article id: %w", err)
	}
	keys := s.upload(ctx, article.ID, folder.Images)

	var images int
	for attempt := 1; ; attempt++ {
		images, err = s.persist(ctx, article, keys)
		if errors.Is(err, domain.ErrSlugTaken) && attempt < updateAttempts {
			log.Warn("slug taken concurrently, retrying", "attempt", attempt)
			continue
		}
		break
	}
	if err != nil {
		s.janitor.Discard(ctx, "import rolled back", keys...)
		return outcomeFailed, err
	}

	stats.Images += images
	log.Info("article imported",
		"article_id", article.ID,
		"slug", article.Slug,
		"author_id", author.ID,
		"images", images,
	)

	if s.publisher != nil {
		event := &domain.ArticleEvent{
			Action:    domain.EventImported,
			ArticleID: article.ID,
			AuthorID:  article.AuthorID,
			Title:     article.Title,
			Slug:      article.Slug,
			Timestamp: s.now(),
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			log.Warn("publish event failed", "article_id", article.ID, "error", err)
		}
	}

	return outcomeImported, nil
}

// persist writes the article under its reserved id, the uploaded gallery
// and the main image pointer in one transaction.
func (s *ImportService) persist(ctx context.Context, article *domain.Article, keys []string) (int, error) {
	var count int
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		count = 0

		sl, err := s.slugs.Generate(txCtx, article.Title, s.articles.SlugExists)
		if err != nil {
			return fmt.Errorf("generate slug: %w", err)
		}
		article.Slug = sl

		if _, err := s.articles.Create(txCtx, article); err != nil {
			return fmt.Errorf("insert article: %w", err)
		}

		var main *int64
		for _, key := range keys {
			img := &domain.Image{
				ArticleID:  article.ID,
				StorageKey: key,
				URL:        s.blobs.PublicURL(key),
				Ordinal:    count,
			}
			if err := s.images.Insert(txCtx, img); err != nil {
				return fmt.Errorf("insert image %s: %w", key, err)
			}
			if main == nil {
				main = &img.ID
			}
			count++
		}

		if main != nil {
			if err := s.articles.SetMainImage(txCtx, article.ID, main); err != nil {
				return fmt.Errorf("set main image: %w", err)
			}
			article.MainImageID = main
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// upload sends the gallery files with bounded concurrency before any row is
// written. The result keeps the order of paths and holds only the keys that
// were stored; a failed file does not stop the others.
func (s *ImportService) upload(ctx context.Context, articleID int64, paths []string) []string {
	keys := make([]string, len(paths))

	var g errgroup.Group
	g.SetLimit(s.cfg.Transfers)

	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			data, err := os.ReadFile(p)
			if err != nil {
				s.logger.Warn("skipping unreadable image", "file", p, "error", err)
				return nil
			}
			if len(data) == 0 || len(data) > domain.MaxImageBytes {
				s.logger.Warn("skipping image outside size limits", "file", p, "bytes", len(data))
				return nil
			}

			key := blob.NewKey(articleID, p)
			err = s.blobs.Put(ctx, key, data, mimetype.Detect(data).String())
			metrics.RecordBlob("put", err)
			if err != nil {
				s.logger.Warn("image upload failed", "file", p, "article_id", articleID, "error", err)
				return nil
			}

			keys[i] = key
			return nil
		})
	}
	_ = g.Wait()

	stored := keys[:0]
	for _, key := range keys {
		if key != "" {
			stored = append(stored, key)
		}
	}
	return stored
}
