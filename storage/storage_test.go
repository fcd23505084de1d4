package storage_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kbukum/mediascribe/component"
	"github.com/kbukum/mediascribe/logger"
	"github.com/kbukum/mediascribe/storage"
	"github.com/kbukum/mediascribe/storage/local"
)

func TestLocalPutGetDelete(t *testing.T) {
	ctx := context.Background()
	s, err := local.NewStorage(t.TempDir())
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}

	n, err := s.Put(ctx, "uploads/abc/talk.mp3", strings.NewReader("ID3 audio"), "audio/mpeg")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if n != 9 {
		t.Errorf("expected 9 bytes written, got %d", n)
	}

	rc, obj, err := s.Get(ctx, "uploads/abc/talk.mp3")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "ID3 audio" || obj.Size != 9 {
		t.Errorf("unexpected object %q %+v", data, obj)
	}

	if err := s.Delete(ctx, "uploads/abc/talk.mp3"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Stat(ctx, "uploads/abc/talk.mp3"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, "uploads/abc/talk.mp3"); err != nil {
		t.Errorf("deleting a missing key should succeed, got %v", err)
	}
}

func TestLocalRejectsEscapingKeys(t *testing.T) {
	s, err := local.NewStorage(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put(context.Background(), "../outside", strings.NewReader("x"), ""); err == nil {
		t.Error("expected error for key escaping base path")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     storage.Config
		wantErr bool
	}{
		{"local defaults", storage.Config{}, false},
		{"s3 without bucket", storage.Config{Provider: storage.ProviderS3}, true},
		{"s3 half credentials", storage.Config{Provider: storage.ProviderS3, Bucket: "b", AccessKey: "k"}, true},
		{"s3 ok", storage.Config{Provider: storage.ProviderS3, Bucket: "b"}, false},
		{"unknown", storage.Config{Provider: "ftp"}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.cfg.ApplyDefaults()
			if err := tc.cfg.Validate(); (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestComponentLifecycle(t *testing.T) {
	ctx := context.Background()
	c := storage.NewComponent(storage.Config{Enabled: true, BasePath: t.TempDir()}, logger.Nop())
	opened, err := c.Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if c.Storage() != opened {
		t.Fatal("expected Start to keep the opened backend")
	}
	if h := c.Health(ctx); h.Status != component.StatusHealthy {
		t.Errorf("expected healthy, got %+v", h)
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if h := c.Health(ctx); h.Status != component.StatusUnhealthy {
		t.Errorf("expected unhealthy after Stop, got %+v", h)
	}
}
