package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maxstewm/asian-guide-web/internal/blob"
	"github.com/maxstewm/asian-guide-web/internal/config"
	"github.com/maxstewm/asian-guide-web/internal/domain"
	"github.com/maxstewm/asian-guide-web/internal/markdown"
	"github.com/maxstewm/asian-guide-web/internal/metrics"
)

const unknownCountryDir = "unknown-country"

type ExportService struct {
	articles ArticleStore
	images   ImageStore
	blobs    BlobStore
	runs     RunStore
	logger   *slog.Logger
	cfg      config.ExportConfig

	now func() time.Time
}

func NewExportService(
	articles ArticleStore,
	images ImageStore,
	blobs BlobStore,
	runs RunStore,
	logger *slog.Logger,
	cfg config.ExportConfig,
) *ExportService {
	if cfg.Transfers <= 0 {
		cfg.Transfers = 1
	}
	return &ExportService{
		articles: articles,
		images:   images,
		blobs:    blobs,
		runs:     runs,
		logger:   logger.With("component", "export"),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Run writes every published article under outDir. Images already present
// locally are kept unless force is set; Markdown files are always rewritten.
func (s *ExportService) Run(ctx context.Context, outDir string, force bool) (*domain.ExportStats, error) {
	started := s.now()

	articles, err := s.articles.ListPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("list published articles: %w", err)
	}

	s.logger.Info("starting export", "articles", len(articles), "output", outDir, "force", force)

	stats := &domain.ExportStats{Found: len(articles)}
	var runErr error

	for i := range articles {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		result := s.exportArticle(ctx, outDir, &articles[i], force)
		stats.Downloaded += result.downloaded
		stats.Reused += result.reused

		switch result.outcome {
		case exportDone:
			stats.Exported++
		case exportPartial:
			stats.ExportedWithErrors++
		case exportSkipped:
			stats.Skipped++
		case exportFailed:
			stats.Errors++
		}
		metrics.RecordOutcome("export", string(result.outcome))
	}

	stats.Duration = s.now().Sub(started)
	recordRun(ctx, s.runs, s.logger, stats.Summary(started))
	metrics.RecordRun("export", stats.Duration.Seconds())

	s.logger.Info("export completed",
		"found", stats.Found,
		"exported", stats.Exported,
		"exported_with_errors", stats.ExportedWithErrors,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
		"downloaded", stats.Downloaded,
		"reused", stats.Reused,
		"duration", stats.Duration,
	)

	return stats, runErr
}

type exportOutcome string

const (
	exportDone    exportOutcome = "exported"
	exportPartial exportOutcome = "exported_with_errors"
	exportSkipped exportOutcome = "skipped"
	exportFailed  exportOutcome = "failed"
)

type exportResult struct {
	outcome    exportOutcome
	downloaded int
	reused     int
}

type download struct {
	key  string
	name string
}

func (s *ExportService) exportArticle(ctx context.Context, outDir string, article *domain.PublishedArticle, force bool) exportResult {
	log := s.logger.With("article_id", article.ID, "title", article.Title)

	images, err := s.images.ListByArticle(ctx, article.ID)
	if err != nil {
		log.Error("list images failed", "error", err)
		return exportResult{outcome: exportFailed}
	}
	if len(images) == 0 {
		log.Info("skipping article without images")
		return exportResult{outcome: exportSkipped}
	}

	dir := ArticleDir(outDir, article)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Error("create article directory failed", "folder", dir, "error", err)
		return exportResult{outcome: exportFailed}
	}

	plan, gallery := planDownloads(article, images)

	var downloaded, reused atomic.Int64
	var failed atomic.Bool

	var g errgroup.Group
	g.SetLimit(s.cfg.Transfers)
	for _, d := range plan {
		d := d
		g.Go(func() error {
			target := filepath.Join(dir, d.name)
			if !force && fileExists(target) {
				reused.Add(1)
				return nil
			}

			data, err := s.blobs.Get(ctx, d.key)
			metrics.RecordBlob("get", err)
			if err != nil {
				failed.Store(true)
				log.Warn("image download failed", "key", d.key, "error", err)
				return nil
			}
			if err := writeFileAtomic(target, data); err != nil {
				failed.Store(true)
				log.Warn("image write failed", "file", target, "error", err)
				return nil
			}
			downloaded.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	doc := &markdown.Export{
		Title:    article.Title,
		Date:     article.CreatedAt,
		Category: article.CountryName,
		Type:     exportType(article.Type),
		Author:   article.AuthorUsername,
		Body:     article.Content,
		Gallery:  presentFiles(dir, gallery),
	}
	if fileExists(filepath.Join(dir, markdown.TitleImageName)) {
		doc.TitleImage = markdown.TitleImageName
	}

	result := exportResult{
		outcome:    exportDone,
		downloaded: int(downloaded.Load()),
		reused:     int(reused.Load()),
	}

	if err := s.writeDocument(dir, article.Slug, doc); err != nil {
		log.Error("write markdown failed", "folder", dir, "error", err)
		result.outcome = exportFailed
		return result
	}

	if failed.Load() {
		result.outcome = exportPartial
	}
	log.Debug("article exported", "folder", dir, "outcome", result.outcome)
	return result
}

func (s *ExportService) writeDocument(dir, articleSlug string, doc *markdown.Export) error {
	out, err := markdown.Render(doc)
	if err != nil {
		return err
	}

	name := "index.md"
	if articleSlug != "" {
		name = articleSlug + ".md"
	}
	return writeFileAtomic(filepath.Join(dir, name), out)
}

// ArticleDir is the export folder of an article:
// {type}/{country slug}/{article slug}, with fallbacks for missing parts.
func ArticleDir(outDir string, article *domain.PublishedArticle) string {
	countryDir := article.CountrySlug
	if countryDir == "" {
		countryDir = unknownCountryDir
	}
	articleDir := article.Slug
	if articleDir == "" {
		articleDir = fmt.Sprintf("article-%d", article.ID)
	}
	return filepath.Join(outDir, string(article.Type), countryDir, articleDir)
}

// planDownloads maps images to local names. The main image, or the first
// image when none is set, becomes the title image; the rest are numbered from
// 1 in ordinal order and returned as the gallery.
func planDownloads(article *domain.PublishedArticle, images []domain.Image) ([]download, []string) {
	mainIdx := 0
	if article.MainImageID != nil {
		for i, img := range images {
			if img.ID == *article.MainImageID {
				mainIdx = i
				break
			}
		}
	}

	plan := []download{{key: images[mainIdx].StorageKey, name: markdown.TitleImageName}}
	var gallery []string

	n := 1
	for i, img := range images {
		if i == mainIdx {
			continue
		}
		name := fmt.Sprintf("pic_%d%s", n, blob.Ext(img.StorageKey))
		plan = append(plan, download{key: img.StorageKey, name: name})
		gallery = append(gallery, name)
		n++
	}

	return plan, gallery
}

// presentFiles keeps the names that exist in dir so the document never links
// an image whose download failed.
func presentFiles(dir string, names []string) []string {
	var present []string
	for _, name := range names {
		if fileExists(filepath.Join(dir, name)) {
			present = append(present, name)
		}
	}
	return present
}

func exportType(t domain.ContentType) string {
	if t == domain.ContentFood {
		return string(domain.ContentFood)
	}
	return "guide"
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Size() > 0
}

// writeFileAtomic writes through a temporary file so an interrupted run never
// leaves a truncated file that a later run would keep.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// recordRun stores a run summary. Failures are logged and never fail the run.
func recordRun(ctx context.Context, runs RunStore, logger *slog.Logger, run *domain.RunSummary) {
	if runs == nil {
		return
	}
	if err := runs.Record(context.WithoutCancel(ctx), run); err != nil {
		logger.Warn("record run failed", "kind", run.Kind, "error", err)
	}
}
