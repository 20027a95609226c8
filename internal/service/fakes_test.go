package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maxstewm/asian-guide-web/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory ArticleStore, ImageStore and TransactionManager.
// A failed transaction restores the state it started from.
type memStore struct {
	mu        sync.Mutex
	articles  map[int64]domain.Article
	images    map[int64]domain.Image
	users     map[int64]string
	countries map[int64]domain.Country
	nextID    int64
	openTx    atomic.Int32

	failImageInsert error
}

func newMemStore() *memStore {
	return &memStore{
		articles:  make(map[int64]domain.Article),
		images:    make(map[int64]domain.Image),
		users:     make(map[int64]string),
		countries: make(map[int64]domain.Country),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	articles := make(map[int64]domain.Article, len(m.articles))
	for k, v := range m.articles {
		articles[k] = v
	}
	images := make(map[int64]domain.Image, len(m.images))
	for k, v := range m.images {
		images[k] = v
	}
	m.mu.Unlock()

	m.openTx.Add(1)
	defer m.openTx.Add(-1)

	if err := fn(ctx); err != nil {
		m.mu.Lock()
		m.articles, m.images = articles, images
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) inTransaction() bool {
	return m.openTx.Load() > 0
}

func (m *memStore) ReserveID(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id(), nil
}

func (m *memStore) slugTaken(slug string, except int64) bool {
	for id, a := range m.articles {
		if id != except && slug != "" && a.Slug == slug {
			return true
		}
	}
	return false
}

func (m *memStore) CreateDraft(_ context.Context, authorID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.id()
	now := time.Now()
	m.articles[id] = domain.Article{ID: id, AuthorID: authorID, Status: domain.StatusDraft, Type: domain.ContentTravel, CreatedAt: now, UpdatedAt: now}
	return id, nil
}

func (m *memStore) Create(_ context.Context, article *domain.Article) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.slugTaken(article.Slug, 0) {
		return 0, domain.ErrSlugTaken
	}
	a := *article
	if a.ID == 0 {
		a.ID = m.id()
	}
	if _, ok := m.articles[a.ID]; ok {
		return 0, domain.ErrConflict
	}
	m.articles[a.ID] = a
	return a.ID, nil
}

func (m *memStore) Get(_ context.Context, id int64) (*domain.Article, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.articles[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &a, nil
}

func (m *memStore) GetForUpdate(ctx context.Context, id int64) (*domain.Article, error) {
	return m.Get(ctx, id)
}

func (m *memStore) Update(_ context.Context, id int64, changes domain.ArticleChanges, updatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.articles[id]
	if !ok {
		return domain.ErrNotFound
	}
	if changes.Slug != nil && m.slugTaken(*changes.Slug, id) {
		return domain.ErrSlugTaken
	}
	applyChanges(&a, changes)
	a.UpdatedAt = updatedAt
	m.articles[id] = a
	return nil
}

func (m *memStore) SetMainImage(_ context.Context, articleID int64, imageID *int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.articles[articleID]
	if !ok {
		return domain.ErrNotFound
	}
	a.MainImageID = imageID
	m.articles[articleID] = a
	return nil
}

func (m *memStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.articles[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.articles, id)
	for imgID, img := range m.images {
		if img.ArticleID == id {
			delete(m.images, imgID)
		}
	}
	return nil
}

func (m *memStore) SlugExists(_ context.Context, slug string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slugTaken(slug, 0), nil
}

func (m *memStore) TitleExists(_ context.Context, title string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.articles {
		if a.Title == title {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ListPublished(_ context.Context) ([]domain.PublishedArticle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.PublishedArticle
	for _, a := range m.articles {
		if a.Status != domain.StatusPublished {
			continue
		}
		p := domain.PublishedArticle{Article: a, AuthorUsername: m.users[a.AuthorID]}
		if a.CountryID != nil {
			c := m.countries[*a.CountryID]
			p.CountryName, p.CountrySlug = c.Name, c.Slug
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) articleByTitle(title string) (domain.Article, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.articles {
		if a.Title == title {
			return a, true
		}
	}
	return domain.Article{}, false
}

// imageStore exposes the image half of memStore. Get and Delete clash with
// the article methods, so it is a separate type.
type imageStore struct {
	*memStore
}

func (s imageStore) Insert(_ context.Context, img *domain.Image) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failImageInsert != nil {
		return s.failImageInsert
	}
	for _, other := range s.images {
		if other.ArticleID == img.ArticleID && other.Ordinal == img.Ordinal {
			return domain.ErrConflict
		}
	}
	img.ID = s.id()
	img.UploadedAt = time.Now()
	s.images[img.ID] = *img
	return nil
}

func (s imageStore) NextOrdinal(_ context.Context, articleID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := 0
	for _, img := range s.images {
		if img.ArticleID == articleID && img.Ordinal >= next {
			next = img.Ordinal + 1
		}
	}
	return next, nil
}

func (s imageStore) Get(_ context.Context, id int64) (*domain.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, ok := s.images[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &img, nil
}

func (s imageStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, ok := s.images[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(s.images, id)

	a := s.articles[img.ArticleID]
	if a.MainImageID != nil && *a.MainImageID == id {
		a.MainImageID = nil
		s.articles[img.ArticleID] = a
	}
	return nil
}

func (s imageStore) First(ctx context.Context, articleID int64) (*domain.Image, error) {
	images, _ := s.ListByArticle(ctx, articleID)
	if len(images) == 0 {
		return nil, domain.ErrNotFound
	}
	return &images[0], nil
}

func (s imageStore) ListByArticle(_ context.Context, articleID int64) ([]domain.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Image
	for _, img := range s.images {
		if img.ArticleID == articleID {
			out = append(out, img)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ordinal != out[j].Ordinal {
			return out[i].Ordinal < out[j].Ordinal
		}
		return out[i].UploadedAt.Before(out[j].UploadedAt)
	})
	return out, nil
}

func (s imageStore) KeysByArticle(ctx context.Context, articleID int64) ([]string, error) {
	images, _ := s.ListByArticle(ctx, articleID)
	keys := make([]string, len(images))
	for i, img := range images {
		keys[i] = img.StorageKey
	}
	return keys, nil
}

// memBlobs is an in-memory BlobStore that counts calls.
type memBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	failGet map[string]bool
	failPut bool
	// inTx, when set, reports whether a database transaction is open.
	inTx func() bool

	puts, gets, deletes int
	putsInTx            int
}

func newMemBlobs() *memBlobs {
	return &memBlobs{objects: make(map[string][]byte), failGet: make(map[string]bool)}
}

var errBlobDown = errors.New("blob store down")

func (b *memBlobs) Put(_ context.Context, key string, data []byte, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.puts++
	if b.inTx != nil && b.inTx() {
		b.putsInTx++
	}
	if b.failPut {
		return errBlobDown
	}
	b.objects[key] = append([]byte(nil), data...)
	return nil
}

func (b *memBlobs) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.gets++
	if b.failGet[key] {
		return nil, errBlobDown
	}
	data, ok := b.objects[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return data, nil
}

func (b *memBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.deletes++
	delete(b.objects, key)
	return nil
}

func (b *memBlobs) PublicURL(key string) string {
	return "https://cdn.example.com/" + key
}

func (b *memBlobs) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[key]
	return ok
}

func (b *memBlobs) counts() (puts, gets, deletes int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.puts, b.gets, b.deletes
}

type memRuns struct {
	mu   sync.Mutex
	runs []domain.RunSummary
}

func (r *memRuns) Record(_ context.Context, run *domain.RunSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, *run)
	return nil
}

type memAuthors map[int64]bool

func (a memAuthors) ExistingIDs(_ context.Context, ids []int64) (map[int64]bool, error) {
	out := make(map[int64]bool)
	for _, id := range ids {
		if a[id] {
			out[id] = true
		}
	}
	return out, nil
}

type memCountries []domain.Country

func (c memCountries) List(context.Context) ([]domain.Country, error) {
	return c, nil
}

// Minimal file signatures the content sniffer recognizes.
var (
	pngBytes  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	jpegBytes = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
	gifBytes  = []byte("GIF89a\x01\x00\x01\x00\x80\x00\x00")
)
