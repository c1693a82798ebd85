package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	t.Setenv("DECKRELAY_CONFIG", path)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("DECKRELAY_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_UnknownStorageBackend verifies validation errors stop startup.
func TestRun_UnknownStorageBackend(t *testing.T) {
	writeConfig(t, `
storage:
  backend: redis
`)
	if err := run(context.Background()); err == nil {
		t.Fatal("run() should reject an unknown storage backend")
	}
}

// TestRun_ServesUntilCancelled starts the relay on SQLite, waits for
// /health and shuts down cleanly.
func TestRun_ServesUntilCancelled(t *testing.T) {
	port := freePort(t)
	dbPath := filepath.Join(t.TempDir(), "relay.db")
	writeConfig(t, fmt.Sprintf(`
server:
  host: "127.0.0.1"
  port: %d
storage:
  backend: sqlite
database:
  path: %q
  wal_mode: true
  busy_timeout: 5
logging:
  level: error
  format: text
`, port, dbPath))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/health", port)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("/health status = %d", resp.StatusCode)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("relay never became healthy: %v", err)
		}
		select {
		case err := <-errCh:
			t.Fatalf("run() exited early: %v", err)
		case <-time.After(20 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("run() error = %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("DECKRELAY_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want default", got)
	}
	t.Setenv("DECKRELAY_CONFIG", "/etc/deckrelay.yaml")
	if got := getConfigPath(); got != "/etc/deckrelay.yaml" {
		t.Errorf("getConfigPath() = %q", got)
	}
}
