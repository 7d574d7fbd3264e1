package gcs

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"google.golang.org/api/googleapi"
)

func TestPublicBase(t *testing.T) {
	if got := publicBase(Options{Bucket: "galleries"}); got != "https://storage.googleapis.com/galleries" {
		t.Fatalf("unexpected default base %s", got)
	}
	if got := publicBase(Options{Bucket: "galleries", PublicBaseURL: "https://img.example.com/"}); got != "https://img.example.com" {
		t.Fatalf("unexpected explicit base %s", got)
	}
}

func TestIsNotFound(t *testing.T) {
	notFound := fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusNotFound})
	if !isNotFound(notFound) {
		t.Fatal("expected 404 to be treated as not found")
	}
	if isNotFound(&googleapi.Error{Code: http.StatusForbidden}) {
		t.Fatal("403 must not be treated as not found")
	}
	if isNotFound(fmt.Errorf("boom")) {
		t.Fatal("plain errors must not be treated as not found")
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Options{}); err == nil {
		t.Fatal("expected error without bucket")
	}
}
