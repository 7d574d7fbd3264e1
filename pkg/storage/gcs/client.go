// Package gcs stores gallery images in a Google Cloud Storage bucket through
// the JSON API.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/multierr"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storagev1 "google.golang.org/api/storage/v1"

	"github.com/angelmondragon/shutterdesk-backend/pkg/storage/urlpath"
)

const defaultPublicHost = "https://storage.googleapis.com"

type Options struct {
	Bucket                 string
	PublicBaseURL          string
	CredentialsJSON        string
	ApplicationCredentials string
	// ClientOptions are appended after the credential options.
	ClientOptions []option.ClientOption
}

type Client struct {
	svc       *storagev1.Service
	bucket    string
	publicURL string
}

// New authenticates with inline JSON credentials, a credentials file, or
// application default credentials, in that order.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Bucket == "" {
		return nil, errors.New("gcs bucket name is required")
	}

	clientOpts := []option.ClientOption{option.WithScopes(storagev1.DevstorageReadWriteScope)}
	switch {
	case opts.CredentialsJSON != "":
		clientOpts = append(clientOpts, option.WithCredentialsJSON([]byte(opts.CredentialsJSON)))
	case opts.ApplicationCredentials != "":
		clientOpts = append(clientOpts, option.WithCredentialsFile(opts.ApplicationCredentials))
	}
	clientOpts = append(clientOpts, opts.ClientOptions...)

	svc, err := storagev1.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("init gcs service: %w", err)
	}
	return &Client{svc: svc, bucket: opts.Bucket, publicURL: publicBase(opts)}, nil
}

func (c *Client) Put(ctx context.Context, path string, body io.Reader, _ int64, contentType string) (string, error) {
	obj := &storagev1.Object{Name: path, ContentType: contentType}
	call := c.svc.Objects.Insert(c.bucket, obj).Context(ctx)
	if contentType != "" {
		call = call.Media(body, googleapi.ContentType(contentType))
	} else {
		call = call.Media(body)
	}
	if _, err := call.Do(); err != nil {
		return "", fmt.Errorf("upload %s: %w", path, err)
	}
	return c.PublicURL(path), nil
}

// Remove deletes objects one by one; the JSON API has no batch delete outside
// the multipart batch endpoint.
func (c *Client) Remove(ctx context.Context, paths []string) error {
	var errs error
	for _, p := range paths {
		if err := c.svc.Objects.Delete(c.bucket, p).Context(ctx).Do(); err != nil && !isNotFound(err) {
			errs = multierr.Append(errs, fmt.Errorf("delete %s: %w", p, err))
		}
	}
	return errs
}

func (c *Client) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	err := c.svc.Objects.List(c.bucket).Prefix(prefix).Fields("items(name)", "nextPageToken").Pages(ctx, func(page *storagev1.Objects) error {
		for _, obj := range page.Items {
			out = append(out, obj.Name)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return out, nil
}

func (c *Client) Ping(ctx context.Context) error {
	_, err := c.svc.Buckets.Get(c.bucket).Context(ctx).Do()
	return err
}

func (c *Client) PublicURL(path string) string {
	return urlpath.Join(c.publicURL, path)
}

func publicBase(opts Options) string {
	if opts.PublicBaseURL != "" {
		return strings.TrimRight(opts.PublicBaseURL, "/")
	}
	return defaultPublicHost + "/" + opts.Bucket
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
