// Package markdown reads and writes the article documents of the file-tree
// format: YAML front matter between "---" lines followed by Markdown.
package markdown

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/adrg/frontmatter"
	"gopkg.in/yaml.v3"
)

// TitleImageName is the local file name of an article's main image.
const TitleImageName = "title-image.jpg"

// galleryMarker matches the first generated gallery reference. Everything from
// there on was appended by the exporter, not written by the author.
var galleryMarker = regexp.MustCompile(`(?i)!\[pic_1\.[a-z0-9]+\]\([^)]*\)`)

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Document is an imported article file.
type Document struct {
	Title      string
	Date       time.Time
	Category   string
	Type       string
	Author     string
	TitleImage string
	Body       string
}

type frontMatterEnvelope struct {
	Title      string `yaml:"title"`
	Date       any    `yaml:"date"`
	Categories any    `yaml:"categories"`
	Category   string `yaml:"category"`
	Type       string `yaml:"type"`
	Author     string `yaml:"author"`
	TitleImage string `yaml:"titleImage"`
}

// Parse extracts the front matter fields and the authored body of src. The
// body stops at the first generated gallery reference.
func Parse(src []byte) (*Document, error) {
	var meta frontMatterEnvelope

	body, err := frontmatter.Parse(bytes.NewReader(src), &meta)
	if err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}

	doc := &Document{
		Title:      strings.TrimSpace(meta.Title),
		Date:       parseDate(meta.Date),
		Category:   firstString(meta.Categories),
		Type:       strings.TrimSpace(meta.Type),
		Author:     strings.TrimSpace(meta.Author),
		TitleImage: strings.TrimSpace(meta.TitleImage),
		Body:       TruncateAtGallery(string(body)),
	}
	if doc.Category == "" {
		doc.Category = strings.TrimSpace(meta.Category)
	}

	return doc, nil
}

// TruncateAtGallery returns body up to the first gallery reference, trimmed.
func TruncateAtGallery(body string) string {
	if loc := galleryMarker.FindStringIndex(body); loc != nil {
		body = body[:loc[0]]
	}
	return strings.TrimSpace(body)
}

func firstString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case []any:
		if len(val) > 0 {
			return firstString(val[0])
		}
	case []string:
		if len(val) > 0 {
			return strings.TrimSpace(val[0])
		}
	}
	return ""
}

func parseDate(v any) time.Time {
	switch val := v.(type) {
	case time.Time:
		return val
	case string:
		s := strings.TrimSpace(val)
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

// Export is an article ready to be written to the file tree.
type Export struct {
	Title      string
	Date       time.Time
	Category   string
	Type       string
	Author     string
	TitleImage string
	Body       string
	Gallery    []string
}

// Render serializes e as front matter, body and one image reference per
// gallery file. Keys keep a fixed order and strings are double-quoted.
func Render(e *Export) ([]byte, error) {
	fm := &yaml.Node{Kind: yaml.MappingNode}
	put := func(key string, value *yaml.Node) {
		fm.Content = append(fm.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
			value,
		)
	}
	quoted := func(s string) *yaml.Node {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s, Style: yaml.DoubleQuotedStyle}
	}

	put("title", quoted(e.Title))
	if !e.Date.IsZero() {
		put("date", quoted(e.Date.UTC().Format("2006-01-02")))
	}
	if e.Category != "" {
		put("categories", quoted(e.Category))
	}
	if e.Type != "" {
		put("type", quoted(e.Type))
	}
	if e.Author != "" {
		put("author", quoted(e.Author))
	}
	if e.TitleImage != "" {
		put("titleImage", quoted(e.TitleImage))
	}
	put("draft", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: "false"})

	header, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(header)
	buf.WriteString("---\n\n")
	buf.WriteString(strings.TrimSpace(e.Body))
	for _, name := range e.Gallery {
		fmt.Fprintf(&buf, "\n\n![%s](%s)", name, name)
	}
	buf.WriteString("\n")

	return buf.Bytes(), nil
}
