//go:build integration

package main

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/Sternrassler/crm-cache/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupTestRedis starts a Redis container and returns its address.
func setupTestRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	redisC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}
	t.Cleanup(func() { redisC.Terminate(ctx) })

	host, err := redisC.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := redisC.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}
	return host + ":" + port.Port()
}

func TestPreferencesSurviveRestart_Integration(t *testing.T) {
	addr := setupTestRedis(t)
	ctx := context.Background()

	start := func() *server {
		store, ready, closeStore := preferenceStore(ctx, addr, zerolog.Nop())
		t.Cleanup(closeStore)
		if ready == nil {
			t.Fatal("expected a Redis-backed store")
		}
		srv := newServer(ctx, serverDeps{
			HTTP:        testutil.NewFakeHTTPClient(),
			Store:       store,
			Capacity:    10,
			Concurrency: 1,
			Ready:       ready,
			Logger:      zerolog.Nop(),
		})
		t.Cleanup(func() { srv.Close() })
		return srv
	}

	first := start()
	if resp := do(t, first.routes(), "GET", "/ready", ""); resp.StatusCode != http.StatusOK {
		t.Fatalf("ready status = %d", resp.StatusCode)
	}
	if resp := do(t, first.routes(), "PUT", "/cache/config", `{"enabled":false}`); resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT status = %d", resp.StatusCode)
	}

	second := start()
	if second.prefs.Get().Enabled {
		t.Error("a new server should load the persisted preferences")
	}

	resp := do(t, second.routes(), "GET", "/cache/config", "")
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"enabled":false`) {
		t.Errorf("GET /cache/config = %s", body)
	}
}

func TestPreferenceStore_FallsBackToMemory_Integration(t *testing.T) {
	store, ready, closeStore := preferenceStore(context.Background(), "127.0.0.1:1", zerolog.Nop())
	defer closeStore()

	if ready != nil {
		t.Error("unreachable Redis should not provide a readiness check")
	}
	if store == nil {
		t.Fatal("store should fall back to memory")
	}
}
