package domain

import "time"

type Image struct {
	ID         int64     `db:"id"`
	ArticleID  int64     `db:"article_id"`
	StorageKey string    `db:"storage_key"`
	URL        string    `db:"url"`
	Ordinal    int       `db:"ordinal"`
	UploadedAt time.Time `db:"uploaded_at"`
}

// DetachResult reports the article's main image after an image was removed.
// MainImageID is nil when the article has no images left.
type DetachResult struct {
	ArticleID   int64
	MainImageID *int64
	MainChanged bool
}

// MaxImageBytes is the upload ceiling for a single image.
const MaxImageBytes = 10 << 20
