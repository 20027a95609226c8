package api

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maxstewm/asian-guide-web/internal/metrics"
)

// multipartOverhead is allowed on top of the image limit for form framing.
const multipartOverhead = 1 << 20

func NewRouter(h *Handler, auth *Authenticator, logger *slog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewRequestValidator()
	e.HTTPErrorHandler = ErrorHandler(logger)

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return path == "/healthz" || path == "/metrics"
		},
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			level := slog.LevelInfo
			if v.Error != nil && !isClientError(v.Error) {
				level = slog.LevelError
			}
			logger.Log(c.Request().Context(), level, "http request completed",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency,
				"error", v.Error,
			)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(instrument)

	e.GET("/healthz", h.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api")
	api.GET("/countries", h.ListCountries)
	api.GET("/articles", h.ListArticles)
	api.GET("/articles/:slug", h.GetArticle)

	user := auth.RequireUser()
	api.GET("/users/me/articles", h.ListMyArticles, user)
	api.POST("/articles/drafts", h.CreateDraft, user)
	api.PATCH("/articles/:id", h.UpdateArticle, user)
	api.DELETE("/articles/:id", h.DeleteArticle, user)
	api.POST("/articles/:id/images", h.UploadImage, user,
		middleware.BodyLimit(fmt.Sprintf("%dB", h.maxUpload+multipartOverhead)))
	api.DELETE("/images/:id", h.DeleteImage, user)

	return e
}

// instrument records request counts and latency per route template. Errors
// are rendered here so the recorded status matches the response.
func instrument(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()

		err := next(c)
		if err != nil {
			c.Error(err)
		}

		route := c.Path()
		if route == "" {
			route = "unmatched"
		}
		metrics.RecordRequest(
			c.Request().Method,
			route,
			strconv.Itoa(c.Response().Status),
			time.Since(start).Seconds(),
		)
		return err
	}
}
