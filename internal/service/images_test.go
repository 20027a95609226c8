package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/maxstewm/asian-guide-web/internal/domain"
	"github.com/maxstewm/asian-guide-web/internal/service/mocks"
	"github.com/maxstewm/asian-guide-web/testdata/utils"
)

type ImageManagerTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	articles  *mocks.MockArticleStore
	images    *mocks.MockImageStore
	blobs     *mocks.MockBlobStore
	txManager *mocks.MockTransactionManager

	janitor *Janitor
	manager *ImageManager
}

func (s *ImageManagerTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.articles = mocks.NewMockArticleStore(s.ctrl)
	s.images = mocks.NewMockImageStore(s.ctrl)
	s.blobs = mocks.NewMockBlobStore(s.ctrl)
	s.txManager = mocks.NewMockTransactionManager(s.ctrl)

	s.txManager.EXPECT().WithTransaction(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, fn func(context.Context) error) error {
			return fn(ctx)
		},
	).AnyTimes()
	s.blobs.EXPECT().PublicURL(gomock.Any()).DoAndReturn(func(key string) string {
		return "https://cdn.example.com/" + key
	}).AnyTimes()

	s.janitor = NewJanitor(s.blobs, discardLogger(), DefaultCleanupTimeout)
	s.manager = NewImageManager(s.articles, s.images, s.blobs, s.txManager, s.janitor, discardLogger(), 0)
}

func (s *ImageManagerTestSuite) TearDownTest() {
	s.janitor.Wait()
	s.ctrl.Finish()
}

func TestImageManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ImageManagerTestSuite))
}

func (s *ImageManagerTestSuite) TestAttach_FirstImageBecomesMain() {
	ctx := context.Background()
	article := &domain.Article{ID: 3, AuthorID: 1}

	var storedKey string
	s.articles.EXPECT().Get(ctx, int64(3)).Return(article, nil)
	s.blobs.EXPECT().Put(ctx, gomock.Any(), pngBytes, "image/png").DoAndReturn(
		func(_ context.Context, key string, _ []byte, _ string) error {
			storedKey = key
			return nil
		},
	)
	s.articles.EXPECT().GetForUpdate(gomock.Any(), int64(3)).Return(article, nil)
	s.images.EXPECT().NextOrdinal(gomock.Any(), int64(3)).Return(0, nil)
	s.images.EXPECT().Insert(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, img *domain.Image) error {
			img.ID = 11
			return nil
		},
	)
	s.articles.EXPECT().SetMainImage(gomock.Any(), int64(3), utils.Ptr(int64(11))).Return(nil)

	img, err := s.manager.Attach(ctx, 3, 1, "harbour.png", pngBytes)

	s.Require().NoError(err)
	s.Equal(int64(11), img.ID)
	s.Equal(0, img.Ordinal)
	s.Equal(storedKey, img.StorageKey)
	s.True(strings.HasPrefix(img.StorageKey, "articles/3/images/"))
	s.True(strings.HasSuffix(img.StorageKey, ".png"))
	s.Equal("https://cdn.example.com/"+storedKey, img.URL)
}

func (s *ImageManagerTestSuite) TestAttach_LaterImageKeepsMain() {
	ctx := context.Background()
	article := &domain.Article{ID: 3, AuthorID: 1, MainImageID: utils.Ptr(int64(11))}

	s.articles.EXPECT().Get(ctx, int64(3)).Return(article, nil)
	s.blobs.EXPECT().Put(ctx, gomock.Any(), jpegBytes, "image/jpeg").Return(nil)
	s.articles.EXPECT().GetForUpdate(gomock.Any(), int64(3)).Return(article, nil)
	s.images.EXPECT().NextOrdinal(gomock.Any(), int64(3)).Return(4, nil)
	s.images.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(nil)

	img, err := s.manager.Attach(ctx, 3, 1, "", jpegBytes)

	s.Require().NoError(err)
	s.Equal(4, img.Ordinal)
	s.True(strings.HasSuffix(img.StorageKey, ".jpg"))
}

func (s *ImageManagerTestSuite) TestAttach_RejectsInvalidPayloads() {
	ctx := context.Background()

	cases := map[string]struct {
		name string
		data []byte
	}{
		"empty":              {"a.png", nil},
		"not an image":       {"a.png", []byte("just some text, not pixels")},
		"oversized":          {"a.png", append(append([]byte{}, pngBytes...), make([]byte, domain.MaxImageBytes)...)},
		"extension mismatch": {"a.gif", pngBytes},
	}
	for name, tc := range cases {
		_, err := s.manager.Attach(ctx, 3, 1, tc.name, tc.data)
		s.ErrorIs(err, domain.ErrValidation, name)
	}
}

func (s *ImageManagerTestSuite) TestAttach_NotOwner() {
	ctx := context.Background()
	s.articles.EXPECT().Get(ctx, int64(3)).Return(&domain.Article{ID: 3, AuthorID: 2}, nil)

	_, err := s.manager.Attach(ctx, 3, 1, "a.gif", gifBytes)

	s.ErrorIs(err, domain.ErrPermission)
}

func (s *ImageManagerTestSuite) TestAttach_UploadFailureWritesNothing() {
	ctx := context.Background()
	s.articles.EXPECT().Get(ctx, int64(3)).Return(&domain.Article{ID: 3, AuthorID: 1}, nil)
	s.blobs.EXPECT().Put(ctx, gomock.Any(), gomock.Any(), gomock.Any()).Return(errBlobDown)

	_, err := s.manager.Attach(ctx, 3, 1, "a.png", pngBytes)

	s.ErrorIs(err, errBlobDown)
}

func (s *ImageManagerTestSuite) TestAttach_RollbackDiscardsBlob() {
	ctx := context.Background()
	article := &domain.Article{ID: 3, AuthorID: 1}
	insertErr := errors.New("connection reset")

	var storedKey string
	s.articles.EXPECT().Get(ctx, int64(3)).Return(article, nil)
	s.blobs.EXPECT().Put(ctx, gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, key string, _ []byte, _ string) error {
			storedKey = key
			return nil
		},
	)
	s.articles.EXPECT().GetForUpdate(gomock.Any(), int64(3)).Return(article, nil)
	s.images.EXPECT().NextOrdinal(gomock.Any(), int64(3)).Return(0, nil)
	s.images.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(insertErr)

	deleted := make(chan string, 1)
	s.blobs.EXPECT().Delete(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, key string) error {
			deleted <- key
			return errBlobDown
		},
	)

	_, err := s.manager.Attach(ctx, 3, 1, "a.png", pngBytes)

	s.ErrorIs(err, insertErr)
	s.NotErrorIs(err, errBlobDown)
	s.janitor.Wait()
	s.Equal(storedKey, <-deleted)
}

func (s *ImageManagerTestSuite) TestDetach_MainImagePromotesSmallestOrdinal() {
	ctx := context.Background()
	article := &domain.Article{ID: 3, AuthorID: 1, MainImageID: utils.Ptr(int64(11))}

	s.images.EXPECT().Get(gomock.Any(), int64(11)).Return(&domain.Image{ID: 11, ArticleID: 3, StorageKey: "k11"}, nil)
	s.articles.EXPECT().GetForUpdate(gomock.Any(), int64(3)).Return(article, nil)
	s.images.EXPECT().Delete(gomock.Any(), int64(11)).Return(nil)
	s.images.EXPECT().First(gomock.Any(), int64(3)).Return(&domain.Image{ID: 12, ArticleID: 3, Ordinal: 1}, nil)
	s.articles.EXPECT().SetMainImage(gomock.Any(), int64(3), utils.Ptr(int64(12))).Return(nil)
	s.blobs.EXPECT().Delete(gomock.Any(), "k11").Return(nil)

	result, err := s.manager.Detach(ctx, 11, 1)

	s.Require().NoError(err)
	s.True(result.MainChanged)
	s.Equal(utils.Ptr(int64(12)), result.MainImageID)
}

func (s *ImageManagerTestSuite) TestDetach_LastImageClearsMain() {
	ctx := context.Background()
	article := &domain.Article{ID: 3, AuthorID: 1, MainImageID: utils.Ptr(int64(11))}

	s.images.EXPECT().Get(gomock.Any(), int64(11)).Return(&domain.Image{ID: 11, ArticleID: 3, StorageKey: "k11"}, nil)
	s.articles.EXPECT().GetForUpdate(gomock.Any(), int64(3)).Return(article, nil)
	s.images.EXPECT().Delete(gomock.Any(), int64(11)).Return(nil)
	s.images.EXPECT().First(gomock.Any(), int64(3)).Return(nil, domain.ErrNotFound)
	s.articles.EXPECT().SetMainImage(gomock.Any(), int64(3), nil).Return(nil)
	s.blobs.EXPECT().Delete(gomock.Any(), "k11").Return(errBlobDown)

	result, err := s.manager.Detach(ctx, 11, 1)

	s.Require().NoError(err)
	s.True(result.MainChanged)
	s.Nil(result.MainImageID)
}

func (s *ImageManagerTestSuite) TestDetach_OtherImageKeepsMain() {
	ctx := context.Background()
	article := &domain.Article{ID: 3, AuthorID: 1, MainImageID: utils.Ptr(int64(11))}

	s.images.EXPECT().Get(gomock.Any(), int64(12)).Return(&domain.Image{ID: 12, ArticleID: 3, StorageKey: "k12"}, nil)
	s.articles.EXPECT().GetForUpdate(gomock.Any(), int64(3)).Return(article, nil)
	s.images.EXPECT().Delete(gomock.Any(), int64(12)).Return(nil)
	s.blobs.EXPECT().Delete(gomock.Any(), "k12").Return(nil)

	result, err := s.manager.Detach(ctx, 12, 1)

	s.Require().NoError(err)
	s.False(result.MainChanged)
	s.Equal(utils.Ptr(int64(11)), result.MainImageID)
}

func (s *ImageManagerTestSuite) TestDetach_NotOwner() {
	ctx := context.Background()

	s.images.EXPECT().Get(gomock.Any(), int64(12)).Return(&domain.Image{ID: 12, ArticleID: 3}, nil)
	s.articles.EXPECT().GetForUpdate(gomock.Any(), int64(3)).Return(&domain.Article{ID: 3, AuthorID: 2}, nil)

	_, err := s.manager.Detach(ctx, 12, 1)

	s.ErrorIs(err, domain.ErrPermission)
}

func newMemImageManager(store *memStore, blobs *memBlobs) (*ImageManager, *Janitor) {
	janitor := NewJanitor(blobs, discardLogger(), DefaultCleanupTimeout)
	return NewImageManager(store, imageStore{store}, blobs, store, janitor, discardLogger(), 0), janitor
}

func TestImageManager_DetachMainKeepsSmallestOrdinal(t *testing.T) {
	ctx := context.Background()

	for n := 1; n <= 5; n++ {
		store := newMemStore()
		blobs := newMemBlobs()
		manager, janitor := newMemImageManager(store, blobs)

		articleID, err := store.CreateDraft(ctx, 1)
		require.NoError(t, err)

		var attached []*domain.Image
		for i := 0; i < n; i++ {
			img, err := manager.Attach(ctx, articleID, 1, "pic.png", pngBytes)
			require.NoError(t, err)
			attached = append(attached, img)
		}

		article, _ := store.Get(ctx, articleID)
		require.NotNil(t, article.MainImageID)
		assert.Equal(t, attached[0].ID, *article.MainImageID, "n=%d", n)

		result, err := manager.Detach(ctx, *article.MainImageID, 1)
		require.NoError(t, err)
		janitor.Wait()

		article, _ = store.Get(ctx, articleID)
		if n == 1 {
			assert.Nil(t, article.MainImageID)
			assert.Nil(t, result.MainImageID)
			continue
		}

		remaining, _ := imageStore{store}.ListByArticle(ctx, articleID)
		require.Len(t, remaining, n-1)
		require.NotNil(t, article.MainImageID)
		assert.Equal(t, remaining[0].ID, *article.MainImageID, "n=%d", n)
		assert.Equal(t, 1, remaining[0].Ordinal, "ordinals are not renumbered")
		assert.False(t, blobs.has(attached[0].StorageKey))
	}
}

func TestImageManager_DeleteFirstUploadPromotesSecond(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	blobs := newMemBlobs()
	manager, janitor := newMemImageManager(store, blobs)
	defer janitor.Wait()

	articleID, _ := store.CreateDraft(ctx, 1)
	a, err := manager.Attach(ctx, articleID, 1, "a.jpg", jpegBytes)
	require.NoError(t, err)
	b, err := manager.Attach(ctx, articleID, 1, "b.gif", gifBytes)
	require.NoError(t, err)

	result, err := manager.Detach(ctx, a.ID, 1)
	require.NoError(t, err)

	assert.Equal(t, &b.ID, result.MainImageID)
	article, _ := store.Get(ctx, articleID)
	assert.Equal(t, &b.ID, article.MainImageID)

	c, err := manager.Attach(ctx, articleID, 1, "c.png", pngBytes)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Ordinal, "ordinal continues after the highest one")
}

func TestImageManager_FailedInsertLeavesNoRows(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	blobs := newMemBlobs()
	manager, janitor := newMemImageManager(store, blobs)

	articleID, _ := store.CreateDraft(ctx, 1)
	store.failImageInsert = errors.New("disk full")

	_, err := manager.Attach(ctx, articleID, 1, "a.png", pngBytes)
	require.Error(t, err)
	janitor.Wait()

	article, _ := store.Get(ctx, articleID)
	assert.Nil(t, article.MainImageID)
	puts, _, deletes := blobs.counts()
	assert.Equal(t, 1, puts)
	assert.Equal(t, 1, deletes)
	assert.Empty(t, blobs.objects)
}
