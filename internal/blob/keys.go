package blob

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultExt is used when a file name carries no extension.
const DefaultExt = ".jpg"

// NewKey returns a fresh object key for an image of articleID. Keys are never
// reused: they combine the upload time with a random suffix.
func NewKey(articleID int64, filename string) string {
	return newKeyAt(articleID, filename, time.Now())
}

func newKeyAt(articleID int64, filename string, at time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("articles/%d/images/%d-%s%s", articleID, at.UnixMilli(), suffix, Ext(filename))
}

// Ext returns the lowercased extension of name, or DefaultExt.
func Ext(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" || ext == "." {
		return DefaultExt
	}
	return ext
}
