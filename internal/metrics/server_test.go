package metrics

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
)

func newTestServerLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustGet(t *testing.T, url string) (int, string) {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading %s body: %v", url, err)
	}
	return resp.StatusCode, string(body)
}

func TestServer_ServesMetrics(t *testing.T) {
	_, registry := newTestCollector(CollectorConfig{
		Version:     "1.0.0",
		Interpreter: "python3",
		Concurrent:  4,
	})

	srv := NewServer("127.0.0.1:0", newTestServerLogger(), registry)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	status, body := mustGet(t, "http://"+srv.Addr()+"/metrics")
	if status != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want 200", status)
	}
	if !strings.Contains(body, "harness_runs_started_total") {
		t.Error("/metrics body missing harness_runs_started_total")
	}
	if !strings.Contains(body, "harness_active_runs") {
		t.Error("/metrics body missing harness_active_runs")
	}
}

func TestServer_HealthEndpoints(t *testing.T) {
	srv := NewServer("127.0.0.1:0", newTestServerLogger(), newTestRegistry())
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	for _, path := range []string{"/health", "/healthz", "/ready", "/readyz"} {
		status, body := mustGet(t, "http://"+srv.Addr()+path)
		if status != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, status)
		}
		if body != "ok\n" {
			t.Errorf("GET %s body = %q, want %q", path, body, "ok\n")
		}
	}
}

func TestServer_NilGathererServesDefault(t *testing.T) {
	srv := NewServer("127.0.0.1:0", newTestServerLogger(), nil)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}()

	status, body := mustGet(t, "http://"+srv.Addr()+"/metrics")
	if status != http.StatusOK {
		t.Fatalf("GET /metrics status = %d, want 200", status)
	}
	if body == "" {
		t.Error("/metrics body empty for default gatherer")
	}
}

func TestServer_BindError(t *testing.T) {
	// Occupy a port, then ask the server to bind it.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	defer ln.Close()

	srv := NewServer(ln.Addr().String(), newTestServerLogger(), newTestRegistry())
	if err := srv.Start(); err == nil {
		srv.Shutdown(context.Background())
		t.Fatal("Start succeeded on an occupied port")
	}
}

func TestServer_AddrBeforeStart(t *testing.T) {
	srv := NewServer("127.0.0.1:17091", newTestServerLogger(), newTestRegistry())
	if srv.Addr() != "127.0.0.1:17091" {
		t.Errorf("Addr() = %q, want configured address before Start", srv.Addr())
	}
}

func TestServer_Shutdown(t *testing.T) {
	srv := NewServer("127.0.0.1:0", newTestServerLogger(), newTestRegistry())
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	addr := srv.Addr()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	if _, err := http.Get("http://" + addr + "/healthz"); err == nil {
		t.Error("server still reachable after Shutdown")
	}
}
