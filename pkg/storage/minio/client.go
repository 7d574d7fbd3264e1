// Package minio stores gallery images in a MinIO bucket, mostly for local
// development.
package minio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/multierr"

	"github.com/angelmondragon/shutterdesk-backend/pkg/storage/urlpath"
)

type Options struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	CreateBucket  bool
	Bucket        string
	PublicBaseURL string
}

type Client struct {
	api       *miniogo.Client
	bucket    string
	publicURL string
}

// New connects and, when CreateBucket is set, makes sure the bucket exists.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, errors.New("minio endpoint and bucket are required")
	}
	api, err := miniogo.New(opts.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio client: %w", err)
	}

	c := &Client{api: api, bucket: opts.Bucket, publicURL: publicBase(opts)}
	if opts.CreateBucket {
		if err := c.ensureBucket(ctx); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) ensureBucket(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}
	if exists {
		return nil
	}
	if err := c.api.MakeBucket(ctx, c.bucket, miniogo.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", c.bucket, err)
	}
	return nil
}

func (c *Client) Put(ctx context.Context, path string, body io.Reader, size int64, contentType string) (string, error) {
	if size <= 0 {
		size = -1
	}
	if _, err := c.api.PutObject(ctx, c.bucket, path, body, size, miniogo.PutObjectOptions{ContentType: contentType}); err != nil {
		return "", fmt.Errorf("upload %s: %w", path, err)
	}
	return c.PublicURL(path), nil
}

func (c *Client) Remove(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	objects := make(chan miniogo.ObjectInfo, len(paths))
	for _, p := range paths {
		objects <- miniogo.ObjectInfo{Key: p}
	}
	close(objects)

	var errs error
	for rmErr := range c.api.RemoveObjects(ctx, c.bucket, objects, miniogo.RemoveObjectsOptions{}) {
		errs = multierr.Append(errs, fmt.Errorf("delete %s: %w", rmErr.ObjectName, rmErr.Err))
	}
	return errs
}

func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	for obj := range c.api.ListObjects(ctx, c.bucket, miniogo.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, obj.Err)
		}
		out = append(out, obj.Key)
	}
	return out, nil
}

func (c *Client) Ping(ctx context.Context) error {
	exists, err := c.api.BucketExists(ctx, c.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", c.bucket)
	}
	return nil
}

func (c *Client) PublicURL(path string) string {
	return urlpath.Join(c.publicURL, path)
}

func publicBase(opts Options) string {
	if opts.PublicBaseURL != "" {
		return strings.TrimRight(opts.PublicBaseURL, "/")
	}
	scheme := "http"
	if opts.UseSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, strings.TrimRight(opts.Endpoint, "/"), opts.Bucket)
}
