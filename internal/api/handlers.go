package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/maxstewm/asian-guide-web/internal/domain"
	"github.com/maxstewm/asian-guide-web/internal/service"
)

const imageField = "imageFile"

type ArticleService interface {
	CreateDraft(ctx context.Context, authorID int64) (int64, error)
	Update(ctx context.Context, articleID, callerID int64, patch domain.ArticlePatch) (string, error)
	Delete(ctx context.Context, articleID, callerID int64) error
}

type ImageService interface {
	Attach(ctx context.Context, articleID, callerID int64, filename string, data []byte) (*domain.Image, error)
	Detach(ctx context.Context, imageID, callerID int64) (*domain.DetachResult, error)
}

type ReadService interface {
	Countries(ctx context.Context) ([]domain.Country, error)
	List(ctx context.Context, p service.ListParams) (*service.ArticlePage, error)
	ListByAuthor(ctx context.Context, authorID int64, page, limit int) (*service.ArticlePage, error)
	BySlug(ctx context.Context, slug string) (*domain.ArticleDetail, error)
}

type Handler struct {
	articles  ArticleService
	images    ImageService
	reader    ReadService
	maxUpload int64
	logger    *slog.Logger
}

func NewHandler(articles ArticleService, images ImageService, reader ReadService, maxUpload int64, logger *slog.Logger) *Handler {
	if maxUpload <= 0 {
		maxUpload = domain.MaxImageBytes
	}
	return &Handler{
		articles:  articles,
		images:    images,
		reader:    reader,
		maxUpload: maxUpload,
		logger:    logger.With("component", "api"),
	}
}

type updateArticleRequest struct {
	Title   *string `json:"title" validate:"omitempty,max=255"`
	Content *string `json:"content"`
	Country *string `json:"country" validate:"omitempty,max=100"`
	Type    *string `json:"type"`
	Status  *string `json:"status"`
}

func (r updateArticleRequest) empty() bool {
	return r.Title == nil && r.Content == nil && r.Country == nil && r.Type == nil && r.Status == nil
}

type draftResponse struct {
	ArticleID int64 `json:"articleId"`
}

type updateResponse struct {
	ArticleID int64  `json:"articleId"`
	Slug      string `json:"slug"`
}

type imageResponse struct {
	ImageID int64  `json:"imageId"`
	URL     string `json:"url"`
	Ordinal int    `json:"ordinal"`
}

type detachResponse struct {
	ArticleID   int64  `json:"articleId"`
	MainImageID *int64 `json:"mainImageId"`
	MainChanged bool   `json:"mainChanged"`
}

func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) CreateDraft(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}

	id, err := h.articles.CreateDraft(c.Request().Context(), caller)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, draftResponse{ArticleID: id})
}

func (h *Handler) UpdateArticle(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	articleID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	var req updateArticleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	if req.empty() {
		return fmt.Errorf("%w: no fields provided for update", domain.ErrValidation)
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	slug, err := h.articles.Update(c.Request().Context(), articleID, caller, domain.ArticlePatch{
		Title:   req.Title,
		Content: req.Content,
		Country: req.Country,
		Type:    req.Type,
		Status:  req.Status,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updateResponse{ArticleID: articleID, Slug: slug})
}

func (h *Handler) DeleteArticle(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	articleID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	if err := h.articles.Delete(c.Request().Context(), articleID, caller); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"articleId": articleID,
		"message":   "article deleted",
	})
}

func (h *Handler) UploadImage(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	articleID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	header, err := c.FormFile(imageField)
	if err != nil {
		return fmt.Errorf("%w: multipart field %q is required", domain.ErrValidation, imageField)
	}
	if header.Size > h.maxUpload {
		return fmt.Errorf("%w: image exceeds %d bytes", domain.ErrValidation, h.maxUpload)
	}

	file, err := header.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxUpload+1))
	if err != nil {
		return fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > h.maxUpload {
		return fmt.Errorf("%w: image exceeds %d bytes", domain.ErrValidation, h.maxUpload)
	}

	img, err := h.images.Attach(c.Request().Context(), articleID, caller, header.Filename, data)
	if err != nil {
		return err
	}

	h.logger.Info("image uploaded", "article_id", articleID, "image_id", img.ID, "bytes", len(data))
	return c.JSON(http.StatusCreated, imageResponse{ImageID: img.ID, URL: img.URL, Ordinal: img.Ordinal})
}

func (h *Handler) DeleteImage(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}
	imageID, err := pathID(c, "id")
	if err != nil {
		return err
	}

	result, err := h.images.Detach(c.Request().Context(), imageID, caller)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, detachResponse{
		ArticleID:   result.ArticleID,
		MainImageID: result.MainImageID,
		MainChanged: result.MainChanged,
	})
}

var errNoCaller = echo.NewHTTPError(http.StatusUnauthorized, "authentication required")

func callerOf(c echo.Context) (int64, error) {
	id, ok := CallerID(c)
	if !ok {
		return 0, errNoCaller
	}
	return id, nil
}

func pathID(c echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", domain.ErrValidation, name, c.Param(name))
	}
	return id, nil
}

// isClientError reports whether err is the caller's fault.
func isClientError(err error) bool {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Code < http.StatusInternalServerError
	}
	return statusOf(err) < http.StatusInternalServerError
}
