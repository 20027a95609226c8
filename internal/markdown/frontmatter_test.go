package markdown

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_ReadsFieldsAndTruncatesGallery(t *testing.T) {
	src := []byte(`---
title: "Tokyo Day 1"
date: 2024-03-01
categories: "Japan"
type: "travel"
author: "kenji"
titleImage: "title-image.jpg"
draft: false
---

Shibuya at dawn.

Then ramen.

![pic_1.jpg](pic_1.jpg)

![pic_2.jpg](pic_2.jpg)
`)

	doc, err := Parse(src)
	require.NoError(t, err)

	assert.Equal(t, "Tokyo Day 1", doc.Title)
	assert.Equal(t, "Japan", doc.Category)
	assert.Equal(t, "travel", doc.Type)
	assert.Equal(t, "kenji", doc.Author)
	assert.Equal(t, "title-image.jpg", doc.TitleImage)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), doc.Date.UTC())
	assert.Equal(t, "Shibuya at dawn.\n\nThen ramen.", doc.Body)
}

func TestParse_CategoryListAndSingularKey(t *testing.T) {
	list, err := Parse([]byte("---\ntitle: Pho\ncategories:\n  - Viet Nam\n  - Food\n---\nbody\n"))
	require.NoError(t, err)
	assert.Equal(t, "Viet Nam", list.Category)

	single, err := Parse([]byte("---\ntitle: Bibimbap\ncategory: South Korea\n---\nbody\n"))
	require.NoError(t, err)
	assert.Equal(t, "South Korea", single.Category)
}

func TestParse_MissingDateIsZero(t *testing.T) {
	doc, err := Parse([]byte("---\ntitle: Hue\ndate: not a date\n---\ntext\n"))
	require.NoError(t, err)

	assert.True(t, doc.Date.IsZero())
	assert.Equal(t, "text", doc.Body)
}

func TestTruncateAtGallery(t *testing.T) {
	cases := map[string]string{
		"no gallery here":                      "no gallery here",
		"intro\n\n![PIC_1.PNG](x.png)\nrest":   "intro",
		"keep ![pic_10.jpg](a) and more":       "keep ![pic_10.jpg](a) and more",
		"  ![pic_1.jpeg](pic_1.jpeg) trailing": "",
	}
	for in, want := range cases {
		assert.Equal(t, want, TruncateAtGallery(in), "input %q", in)
	}
}

func TestRender_OrderedQuotedFrontMatter(t *testing.T) {
	out, err := Render(&Export{
		Title:      `Seoul "Night" Walk`,
		Date:       time.Date(2024, 5, 6, 22, 0, 0, 0, time.UTC),
		Category:   "South Korea",
		Type:       "guide",
		Author:     "minji",
		TitleImage: TitleImageName,
		Body:       "Walk along the river.\n",
		Gallery:    []string{"pic_1.jpg", "pic_2.png"},
	})
	require.NoError(t, err)

	want := "---\n" +
		`title: "Seoul \"Night\" Walk"` + "\n" +
		`date: "2024-05-06"` + "\n" +
		`categories: "South Korea"` + "\n" +
		`type: "guide"` + "\n" +
		`author: "minji"` + "\n" +
		`titleImage: "title-image.jpg"` + "\n" +
		"draft: false\n" +
		"---\n\n" +
		"Walk along the river.\n\n" +
		"![pic_1.jpg](pic_1.jpg)\n\n" +
		"![pic_2.png](pic_2.png)\n"
	assert.Equal(t, want, string(out))
}

func TestRender_OmitsEmptyOptionalKeys(t *testing.T) {
	out, err := Render(&Export{Title: "Hoi An", Body: "Lanterns."})
	require.NoError(t, err)

	assert.Equal(t, "---\ntitle: \"Hoi An\"\ndraft: false\n---\n\nLanterns.\n", string(out))
}

func TestRender_RoundTripsThroughParse(t *testing.T) {
	out, err := Render(&Export{
		Title:    "Tokyo Day 1",
		Date:     time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
		Category: "Japan",
		Type:     "guide",
		Body:     "Shibuya at dawn.",
		Gallery:  []string{"pic_1.jpg", "pic_2.jpg"},
	})
	require.NoError(t, err)

	doc, err := Parse(out)
	require.NoError(t, err)

	assert.Equal(t, "Tokyo Day 1", doc.Title)
	assert.Equal(t, "Japan", doc.Category)
	assert.Equal(t, "guide", doc.Type)
	assert.Equal(t, "2024-03-01", doc.Date.Format("2006-01-02"))
	assert.Equal(t, "Shibuya at dawn.", doc.Body)
}
