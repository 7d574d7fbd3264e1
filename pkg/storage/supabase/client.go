// Package supabase stores gallery images in a Supabase Storage bucket.
package supabase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	storage "github.com/supabase-community/storage-go"

	"github.com/angelmondragon/shutterdesk-backend/pkg/storage/urlpath"
)

const listPageSize = 1000

// Client talks to the Supabase Storage REST API. storage-go calls are not
// context aware, so each call runs in its own goroutine and the caller stops
// waiting when ctx ends.
type Client struct {
	baseURL    string
	serviceKey string
	bucket     string
	api        *storage.Client
}

func New(supabaseURL, serviceKey, bucket string) (*Client, error) {
	if supabaseURL == "" || serviceKey == "" {
		return nil, errors.New("supabase url and service key are required")
	}
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	baseURL := strings.TrimRight(supabaseURL, "/")
	return &Client{
		baseURL:    baseURL,
		serviceKey: serviceKey,
		bucket:     bucket,
		api:        storage.NewClient(baseURL+"/storage/v1", serviceKey, nil),
	}, nil
}

// Put uploads body. storage-go writes upload headers onto its shared
// transport, so every upload gets a client of its own.
func (c *Client) Put(ctx context.Context, path string, body io.Reader, _ int64, contentType string) (string, error) {
	upsert := false
	opts := storage.FileOptions{Upsert: &upsert}
	if contentType != "" {
		opts.ContentType = &contentType
	}
	api := storage.NewClient(c.baseURL+"/storage/v1", c.serviceKey, nil)
	err := run(ctx, func() error {
		_, err := api.UploadFile(c.bucket, path, body, opts)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", path, err)
	}
	return c.PublicURL(path), nil
}

func (c *Client) Remove(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	return run(ctx, func() error {
		if _, err := c.api.RemoveFile(c.bucket, paths); err != nil {
			return fmt.Errorf("remove %d objects: %w", len(paths), err)
		}
		return nil
	})
}

// List returns the objects directly under prefix.
func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	folder := strings.TrimSuffix(prefix, "/")
	var out []string
	for offset := 0; ; offset += listPageSize {
		var page []storage.FileObject
		err := run(ctx, func() error {
			var err error
			page, err = c.api.ListFiles(c.bucket, folder, storage.FileSearchOptions{Limit: listPageSize, Offset: offset})
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page {
			out = append(out, folder+"/"+obj.Name)
		}
		if len(page) < listPageSize {
			return out, nil
		}
	}
}

func (c *Client) Ping(ctx context.Context) error {
	return run(ctx, func() error {
		_, err := c.api.GetBucket(c.bucket)
		return err
	})
}

// PublicURL returns the CDN address of path in a public bucket.
func (c *Client) PublicURL(path string) string {
	return urlpath.Join(fmt.Sprintf("%s/storage/v1/object/public/%s", c.baseURL, url.PathEscape(c.bucket)), path)
}

func run(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
