package service

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/maxstewm/asian-guide-web/internal/markdown"
)

type FolderKind int

const (
	FolderContainer FolderKind = iota
	FolderArticle
)

var importImageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
}

// Folder is one classified directory of an import tree. Article folders carry
// their Markdown document and gallery images; containers carry subdirectories.
type Folder struct {
	Path string
	Kind FolderKind

	Markdown      string
	ExtraMarkdown []string
	Images        []string

	Subdirs []string
}

// Classify lists dir once and decides whether it is an article folder: a
// directory directly holding at least one Markdown file. Entries are read in
// name order, so the first Markdown file is the lexically smallest.
func Classify(dir string) (*Folder, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}

	folder := &Folder{Path: dir, Kind: FolderContainer}
	var docs []string

	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		full := filepath.Join(dir, name)

		if e.IsDir() {
			folder.Subdirs = append(folder.Subdirs, full)
			continue
		}
		if !e.Type().IsRegular() {
			continue
		}

		ext := strings.ToLower(filepath.Ext(name))
		switch {
		case ext == ".md":
			docs = append(docs, full)
		case importImageExts[ext] && !strings.EqualFold(name, markdown.TitleImageName):
			folder.Images = append(folder.Images, full)
		}
	}

	if len(docs) == 0 {
		folder.Images = nil
		return folder, nil
	}

	folder.Kind = FolderArticle
	folder.Markdown = docs[0]
	folder.ExtraMarkdown = docs[1:]
	folder.Subdirs = nil
	sortBySequence(folder.Images)

	return folder, nil
}

// sortBySequence orders gallery files by the first number in their name, so
// pic_2 comes before pic_10. Names without a number sort as 0.
func sortBySequence(paths []string) {
	sort.SliceStable(paths, func(i, j int) bool {
		ni, nj := sequenceNumber(filepath.Base(paths[i])), sequenceNumber(filepath.Base(paths[j]))
		if ni != nj {
			return ni < nj
		}
		return paths[i] < paths[j]
	})
}

func sequenceNumber(name string) int {
	start := strings.IndexAny(name, "0123456789")
	if start < 0 {
		return 0
	}
	end := start
	for end < len(name) && name[end] >= '0' && name[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(name[start:end])
	if err != nil {
		return 0
	}
	return n
}
