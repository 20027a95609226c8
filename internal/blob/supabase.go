// Package blob stores article images in a Supabase Storage bucket.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	storage_go "github.com/supabase-community/storage-go"
	supabase "github.com/supabase-community/supabase-go"

	"github.com/maxstewm/asian-guide-web/internal/config"
	"github.com/maxstewm/asian-guide-web/internal/domain"
	"github.com/maxstewm/asian-guide-web/internal/metrics"
)

type SupabaseStore struct {
	storage       *storage_go.Client
	bucket        string
	publicBaseURL string
	timeout       time.Duration
}

func NewSupabaseStore(cfg config.StorageConfig) (*SupabaseStore, error) {
	client, err := supabase.NewClient(cfg.URL, cfg.Key, nil)
	if err != nil {
		return nil, fmt.Errorf("initialize supabase client: %w", err)
	}

	return &SupabaseStore{
		storage:       client.Storage,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		timeout:       cfg.Timeout,
	}, nil
}

func (s *SupabaseStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	upsert := false
	opts := storage_go.FileOptions{ContentType: &contentType, Upsert: &upsert}

	upload := func() error {
		_, err := s.storage.UploadFile(s.bucket, key, bytes.NewReader(data), opts)
		return err
	}
	// An upload that lands after Put returned is unknown to the caller and
	// would never be referenced, so it is removed.
	orphan := func() {
		_, err := s.storage.RemoveFile(s.bucket, []string{key})
		metrics.RecordBlob("orphan_delete", err)
	}
	return s.do(ctx, "put "+key, upload, orphan)
}

func (s *SupabaseStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.do(ctx, "get "+key, func() error {
		var err error
		data, err = s.storage.DownloadFile(s.bucket, key)
		return err
	}, nil)
	return data, err
}

func (s *SupabaseStore) Delete(ctx context.Context, key string) error {
	return s.do(ctx, "delete "+key, func() error {
		_, err := s.storage.RemoveFile(s.bucket, []string{key})
		return err
	}, nil)
}

// PublicURL builds the retrievable address of key. A configured public base
// URL (for example a CDN in front of the bucket) takes precedence.
func (s *SupabaseStore) PublicURL(key string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key
	}
	return s.storage.GetPublicUrl(s.bucket, key).SignedURL
}

// do runs a storage call that has no context support and returns early when
// ctx ends or the store timeout passes. Every failure is reported as
// transient. When do has already returned and fn later succeeds, late (if
// set) runs on the call's goroutine.
func (s *SupabaseStore) do(ctx context.Context, op string, fn func() error, late func()) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("blob %s: %w: %w", op, domain.ErrUnavailable, err)
	}

	done := make(chan error)
	abandoned := make(chan struct{})
	go func() {
		err := fn()
		select {
		case done <- err:
		case <-abandoned:
			if err == nil && late != nil {
				late()
			}
		}
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("blob %s: %w: %w", op, domain.ErrUnavailable, err)
		}
		return nil
	case <-ctx.Done():
		close(abandoned)
		return fmt.Errorf("blob %s: %w: %w", op, domain.ErrUnavailable, ctx.Err())
	}
}
