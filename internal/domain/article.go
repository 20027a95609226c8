package domain

import (
	"strings"
	"time"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPublished Status = "published"
)

func (s Status) Valid() bool {
	return s == StatusDraft || s == StatusPublished
}

type ContentType string

const (
	ContentTravel ContentType = "travel"
	ContentFood   ContentType = "food"
)

func (t ContentType) Valid() bool {
	return t == ContentTravel || t == ContentFood
}

// ParseContentType maps a free-form front matter value to a content type.
// Anything that is not "food" is travel.
func ParseContentType(value string) ContentType {
	if strings.EqualFold(strings.TrimSpace(value), string(ContentFood)) {
		return ContentFood
	}
	return ContentTravel
}

type Article struct {
	ID          int64       `db:"id"`
	AuthorID    int64       `db:"author_id"`
	Title       string      `db:"title"`
	Content     string      `db:"content"`
	Slug        string      `db:"slug"`
	Status      Status      `db:"status"`
	CountryID   *int64      `db:"country_id"`
	Type        ContentType `db:"type"`
	MainImageID *int64      `db:"main_image_id"`
	CreatedAt   time.Time   `db:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

// ArticleChanges is the column set of a partial update. Nil fields are left
// untouched.
type ArticleChanges struct {
	Title     *string
	Content   *string
	Slug      *string
	Status    *Status
	CountryID *int64
	Type      *ContentType
}

func (c ArticleChanges) Empty() bool {
	return c.Title == nil && c.Content == nil && c.Slug == nil &&
		c.Status == nil && c.CountryID == nil && c.Type == nil
}

// ArticlePatch is the caller-supplied partial payload of an update.
type ArticlePatch struct {
	Title   *string
	Content *string
	Country *string
	Type    *string
	Status  *string
}

// PublishedArticle is an article joined with its author and country, as read
// by the export pipeline.
type PublishedArticle struct {
	Article
	AuthorUsername string `db:"author_username"`
	CountryName    string `db:"country_name"`
	CountrySlug    string `db:"country_slug"`
}

// SortField is a column the article listings may be ordered by.
type SortField string

const (
	SortCreatedAt SortField = "created_at"
	SortUpdatedAt SortField = "updated_at"
	SortTitle     SortField = "title"
)

func (f SortField) Valid() bool {
	return f == SortCreatedAt || f == SortUpdatedAt || f == SortTitle
}

// ArticleQuery selects one page of an article listing. Zero filter values
// match everything.
type ArticleQuery struct {
	CountrySlug   string
	AuthorID      int64
	PublishedOnly bool
	SortBy        SortField
	Descending    bool
	Limit         int
	Offset        int
}

// ArticleSummary is a listing row: the article without its body, joined with
// its author, country and main image.
type ArticleSummary struct {
	ID             int64       `db:"id"`
	Title          string      `db:"title"`
	Slug           string      `db:"slug"`
	Status         Status      `db:"status"`
	Type           ContentType `db:"type"`
	MainImageURL   string      `db:"main_image_url"`
	AuthorID       int64       `db:"author_id"`
	AuthorUsername string      `db:"author_username"`
	CountryID      *int64      `db:"country_id"`
	CountryName    string      `db:"country_name"`
	CountrySlug    string      `db:"country_slug"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

// ArticleDetail is a published article as shown to readers.
type ArticleDetail struct {
	PublishedArticle
	MainImageURL string
	Images       []Image
}
