package storage

import (
	"context"
	"testing"

	"github.com/angelmondragon/shutterdesk-backend/pkg/config"
)

func TestObjectPath(t *testing.T) {
	if got := ObjectPath("owner-1", "wedding-smith", "1700000000000-1-a.jpg"); got != "owner-1/wedding-smith/1700000000000-1-a.jpg" {
		t.Fatalf("unexpected path %s", got)
	}
	if got := GalleryPrefix("owner-1", "wedding-smith"); got != "owner-1/wedding-smith/" {
		t.Fatalf("unexpected prefix %s", got)
	}
}

func TestNewSelectsDriver(t *testing.T) {
	cfg := config.StorageConfig{
		Driver:   " Supabase ",
		Bucket:   "galleries",
		Supabase: config.SupabaseStorageConfig{URL: "http://localhost:54321", ServiceKey: "key"},
	}
	store, err := New(context.Background(), cfg, config.GCPConfig{}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store == nil {
		t.Fatal("expected store")
	}

	cfg.Driver = "ftp"
	if _, err := New(context.Background(), cfg, config.GCPConfig{}, nil); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
