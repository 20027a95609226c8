package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/maxstewm/asian-guide-web/internal/domain"
	"github.com/maxstewm/asian-guide-web/internal/service"
)

type listArticlesRequest struct {
	Country  string `json:"country" validate:"omitempty,max=100"`
	AuthorID int64  `json:"authorId" validate:"omitempty,min=1"`
	Page     int    `json:"page" validate:"min=1"`
	Limit    int    `json:"limit" validate:"min=1,max=50"`
	SortBy   string `json:"sortBy" validate:"omitempty,oneof=created_at updated_at title"`
	Order    string `json:"order" validate:"omitempty,oneof=asc desc"`
}

type pageRequest struct {
	Page  int `json:"page" validate:"min=1"`
	Limit int `json:"limit" validate:"min=1,max=50"`
}

type countryResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type articleSummaryResponse struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Slug           string    `json:"slug"`
	Status         string    `json:"status"`
	Type           string    `json:"type"`
	MainImageURL   string    `json:"mainImageUrl,omitempty"`
	AuthorID       int64     `json:"authorId"`
	AuthorUsername string    `json:"authorUsername"`
	CountryID      *int64    `json:"countryId"`
	CountryName    string    `json:"countryName,omitempty"`
	CountrySlug    string    `json:"countrySlug,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type paginationResponse struct {
	CurrentPage   int `json:"currentPage"`
	TotalPages    int `json:"totalPages"`
	TotalArticles int `json:"totalArticles"`
	Limit         int `json:"limit"`
}

type articleListResponse struct {
	Articles   []articleSummaryResponse `json:"articles"`
	Pagination paginationResponse       `json:"pagination"`
}

type galleryImageResponse struct {
	ID      int64  `json:"id"`
	URL     string `json:"url"`
	Ordinal int    `json:"ordinal"`
}

type articleDetailResponse struct {
	ID             int64                  `json:"id"`
	Title          string                 `json:"title"`
	Slug           string                 `json:"slug"`
	Content        string                 `json:"content"`
	Type           string                 `json:"type"`
	MainImageURL   string                 `json:"mainImageUrl,omitempty"`
	Images         []galleryImageResponse `json:"images"`
	AuthorID       int64                  `json:"authorId"`
	AuthorUsername string                 `json:"authorUsername"`
	CountryID      *int64                 `json:"countryId"`
	CountryName    string                 `json:"countryName,omitempty"`
	CountrySlug    string                 `json:"countrySlug,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
	UpdatedAt      time.Time              `json:"updatedAt"`
}

func (h *Handler) ListCountries(c echo.Context) error {
	countries, err := h.reader.Countries(c.Request().Context())
	if err != nil {
		return err
	}

	out := make([]countryResponse, 0, len(countries))
	for _, country := range countries {
		out = append(out, countryResponse{ID: country.ID, Name: country.Name, Slug: country.Slug})
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) ListArticles(c echo.Context) error {
	req := listArticlesRequest{Page: 1, Limit: service.DefaultPageSize}
	err := bindQuery(echo.QueryParamsBinder(c).
		String("country", &req.Country).
		Int64("authorId", &req.AuthorID).
		Int("page", &req.Page).
		Int("limit", &req.Limit).
		String("sortBy", &req.SortBy).
		String("order", &req.Order))
	if err != nil {
		return err
	}
	req.Order = strings.ToLower(req.Order)
	if err := c.Validate(&req); err != nil {
		return err
	}

	page, err := h.reader.List(c.Request().Context(), service.ListParams{
		Country:  req.Country,
		AuthorID: req.AuthorID,
		Page:     req.Page,
		Limit:    req.Limit,
		SortBy:   req.SortBy,
		Order:    req.Order,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newArticleList(page))
}

func (h *Handler) GetArticle(c echo.Context) error {
	detail, err := h.reader.BySlug(c.Request().Context(), c.Param("slug"))
	if err != nil {
		return err
	}

	images := make([]galleryImageResponse, 0, len(detail.Images))
	for _, img := range detail.Images {
		images = append(images, galleryImageResponse{ID: img.ID, URL: img.URL, Ordinal: img.Ordinal})
	}
	return c.JSON(http.StatusOK, articleDetailResponse{
		ID:             detail.ID,
		Title:          detail.Title,
		Slug:           detail.Slug,
		Content:        detail.Content,
		Type:           string(detail.Type),
		MainImageURL:   detail.MainImageURL,
		Images:         images,
		AuthorID:       detail.AuthorID,
		AuthorUsername: detail.AuthorUsername,
		CountryID:      detail.CountryID,
		CountryName:    detail.CountryName,
		CountrySlug:    detail.CountrySlug,
		CreatedAt:      detail.CreatedAt,
		UpdatedAt:      detail.UpdatedAt,
	})
}

func (h *Handler) ListMyArticles(c echo.Context) error {
	caller, err := callerOf(c)
	if err != nil {
		return err
	}

	req := pageRequest{Page: 1, Limit: service.DefaultPageSize}
	err = bindQuery(echo.QueryParamsBinder(c).
		Int("page", &req.Page).
		Int("limit", &req.Limit))
	if err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	page, err := h.reader.ListByAuthor(c.Request().Context(), caller, req.Page, req.Limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newArticleList(page))
}

// bindQuery reports a malformed query parameter as a field error.
func bindQuery(b *echo.ValueBinder) error {
	err := b.BindError()
	if err == nil {
		return nil
	}
	var bindErr *echo.BindingError
	if errors.As(err, &bindErr) {
		return FieldErrors{bindErr.Field: bindErr.Field + " must be an integer"}
	}
	return err
}

func newArticleList(page *service.ArticlePage) articleListResponse {
	out := articleListResponse{
		Articles: make([]articleSummaryResponse, 0, len(page.Articles)),
		Pagination: paginationResponse{
			CurrentPage:   page.Page,
			TotalPages:    page.TotalPages(),
			TotalArticles: page.Total,
			Limit:         page.Limit,
		},
	}
	for _, a := range page.Articles {
		out.Articles = append(out.Articles, newArticleSummary(a))
	}
	return out
}

func newArticleSummary(a domain.ArticleSummary) articleSummaryResponse {
	return articleSummaryResponse{
		ID:             a.ID,
		Title:          a.Title,
		Slug:           a.Slug,
		Status:         string(a.Status),
		Type:           string(a.Type),
		MainImageURL:   a.MainImageURL,
		AuthorID:       a.AuthorID,
		AuthorUsername: a.AuthorUsername,
		CountryID:      a.CountryID,
		CountryName:    a.CountryName,
		CountrySlug:    a.CountrySlug,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}
