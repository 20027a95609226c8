package domain

import "time"

type EventAction string

const (
	EventPublished EventAction = "published"
	EventImported  EventAction = "imported"
	EventDeleted   EventAction = "deleted"
)

type ArticleEvent struct {
	Action    EventAction `json:"action"`
	ArticleID int64       `json:"article_id"`
	AuthorID  int64       `json:"author_id"`
	Title     string      `json:"title,omitempty"`
	Slug      string      `json:"slug,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}
