package publisher

import (
	"encoding/json"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxstewm/asian-guide-web/internal/domain"
)

func TestNewPublishing(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	event := &domain.ArticleEvent{
		Action:    domain.EventPublished,
		ArticleID: 5,
		AuthorID:  1,
		Title:     "Tokyo Day 1",
		Slug:      "tokyo-day-1",
		Timestamp: ts,
	}

	msg, err := NewPublishing(event)
	require.NoError(t, err)

	assert.Equal(t, uint8(amqp.Persistent), msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, "published", msg.Headers["action"])
	assert.Equal(t, ts, msg.Timestamp)

	var decoded domain.ArticleEvent
	require.NoError(t, json.Unmarshal(msg.Body, &decoded))
	assert.Equal(t, *event, decoded)
}

func TestNewPublishing_DefaultsTimestamp(t *testing.T) {
	msg, err := NewPublishing(&domain.ArticleEvent{Action: domain.EventDeleted, ArticleID: 9})
	require.NoError(t, err)

	assert.False(t, msg.Timestamp.IsZero())
	assert.NotContains(t, string(msg.Body), "slug")
}
