package redis

import (
	"context"
	"crypto/tls"
	"slices"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/kbukum/mediascribe/component"
	"github.com/kbukum/mediascribe/logger"
	"github.com/kbukum/mediascribe/security"
	"github.com/kbukum/mediascribe/security/tlstest"
)

type testState struct {
	Count int      `json:"count"`
	Tags  []string `json:"tags"`
}

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mini := miniredis.RunT(t)
	cfg := Config{Enabled: true, Addr: mini.Addr()}
	client, err := New(cfg, logger.Nop())
	if err != nil {
		t.Fatalf("failed to create redis client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, mini
}

func TestTypedStore_SaveAndLoad(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewTypedStore[testState](client, "test")
	ctx := context.Background()

	if err := store.Save(ctx, "k1", &testState{Count: 5, Tags: []string{"a", "b"}}, 0); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	got, err := store.Load(ctx, "k1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got == nil || got.Count != 5 || len(got.Tags) != 2 {
		t.Fatalf("unexpected value %+v", got)
	}
}

func TestTypedStore_LoadMissing(t *testing.T) {
	client, _ := newTestClient(t)
	got, err := NewTypedStore[testState](client, "test").Load(context.Background(), "missing")
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", got, err)
	}
}

func TestTypedStore_TTL(t *testing.T) {
	client, mini := newTestClient(t)
	store := NewTypedStore[testState](client, "test")
	ctx := context.Background()

	if err := store.Save(ctx, "k", &testState{Count: 1}, time.Minute); err != nil {
		t.Fatal(err)
	}
	if ttl := mini.TTL("test:k"); ttl != time.Minute {
		t.Errorf("expected 1m ttl, got %v", ttl)
	}
	mini.FastForward(2 * time.Minute)
	if got, _ := store.Load(ctx, "k"); got != nil {
		t.Errorf("expected key to expire, got %+v", got)
	}
}

func TestTypedStore_DeleteAndKeys(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewTypedStore[testState](client, "test")
	ctx := context.Background()

	for _, k := range []string{"a", "b", "c"} {
		if err := store.Save(ctx, k, &testState{}, 0); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Delete(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	keys, err := store.Keys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	slices.Sort(keys)
	if !slices.Equal(keys, []string{"a", "c"}) {
		t.Errorf("unexpected keys %v", keys)
	}
}

func TestClient_Sets(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	if err := client.SAdd(ctx, "idx", "j1", "j2"); err != nil {
		t.Fatal(err)
	}
	if err := client.SRem(ctx, "idx", "j1"); err != nil {
		t.Fatal(err)
	}
	members, err := client.SMembers(ctx, "idx")
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(members, []string{"j2"}) {
		t.Errorf("unexpected members %v", members)
	}
	if !client.IsAvailable(ctx) {
		t.Error("expected client to be available")
	}
}

func TestComponent_Lifecycle(t *testing.T) {
	mini := miniredis.RunT(t)
	ctx := context.Background()

	c := NewComponent(Config{Enabled: true, Addr: mini.Addr()}, logger.Nop())
	opened, err := c.Open()
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if h := c.Health(ctx); h.Status != component.StatusHealthy {
		t.Errorf("expected healthy, got %+v", h)
	}
	if c.Client() != opened {
		t.Error("Start must reuse the client returned by Open")
	}
	if err := c.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if c.Client() != nil {
		t.Error("expected client to be released after Stop")
	}

	disabled := NewComponent(Config{}, logger.Nop())
	if err := disabled.Start(ctx); err != nil {
		t.Fatalf("disabled Start: %v", err)
	}
	if disabled.Client() != nil {
		t.Error("disabled component must not create a client")
	}
}

func TestClient_TLS(t *testing.T) {
	certs := tlstest.Generate(t)
	pair, err := tls.LoadX509KeyPair(certs.CertFile, certs.KeyFile)
	if err != nil {
		t.Fatal(err)
	}
	mini, err := miniredis.RunTLS(&tls.Config{Certificates: []tls.Certificate{pair}, MinVersion: tls.VersionTLS12})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mini.Close)

	cfg := Config{
		Enabled: true,
		Addr:    mini.Addr(),
		TLS:     security.TLS{Enabled: true, CAFile: certs.CAFile},
	}
	client, err := New(cfg, logger.Nop())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping over TLS: %v", err)
	}

	cfg.TLS.CAFile = "/does/not/exist.pem"
	if _, err := New(cfg, logger.Nop()); err == nil {
		t.Error("expected error for unreadable CA file")
	}
}
