//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const repoRootRel = ".."   // relative to ./e2e
const mainPkgRel = "./cmd" // main.go lives in cmd/

const germinatorDoc = `{"device_id": "germ-1", "notes": {"phase": "Seedling"}, "data": [
  {"created_date": "2025-05-01T12:00:00Z", "data": {"lights": true, "soil": {"soil_temp": 70, "moisture": 900}}}
]}`

const coopDoc = `{"device_id": "coop-1", "data": [
  {"created_date": "2025-05-01T12:00:00Z", "data": {"battery": 4.1, "outside": {"air_temp": 60, "humidity": 40}}}
]}`

func TestSmoke_RedisCache(t *testing.T) {
	repoRoot := repoRootPath(t)
	redisAddr := startRedis(t)

	var upstreamCalls atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamCalls.Add(1)
		switch r.URL.Path {
		case "/germinator":
			_, _ = w.Write([]byte(germinatorDoc))
		case "/coop":
			_, _ = w.Write([]byte(coopDoc))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(upstream.Close)

	bin := buildBinary(t, repoRoot)
	addr := pickFreeAddr(t)

	cmd := exec.Command(bin)
	cmd.Env = append(os.Environ(),
		"APP_ENV=dev",
		"LOG_LEVEL=info",
		"HTTP_ADDR="+addr,
		"GERMINATOR_URL="+upstream.URL+"/germinator",
		"COOP_URL="+upstream.URL+"/coop",
		"DISPLAY_TZ=UTC",
		"CACHE_BACKEND=redis",
		"REDIS_ADDR="+redisAddr,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})

	client := &http.Client{Timeout: 5 * time.Second}
	base := "http://" + addr

	waitForOK(t, client, base+"/healthz", 10*time.Second)

	var health map[string]string
	getJSON(t, client, base+"/healthz", &health)
	if health["status"] != "ok" || health["cache"] != "ok" {
		t.Fatalf("healthz = %v; want status and cache ok", health)
	}

	var records struct {
		DeviceID   string               `json:"device_id"`
		Timestamps []string             `json:"timestamps"`
		Series     map[string][]float64 `json:"series"`
	}
	getJSON(t, client, base+"/api/v1/devices/coop/records", &records)
	if records.DeviceID != "coop-1" || len(records.Timestamps) != 1 {
		t.Fatalf("records = %+v", records)
	}

	// Second read is served from Redis.
	getJSON(t, client, base+"/api/v1/devices/coop/records", &records)
	if got := upstreamCalls.Load(); got != 1 {
		t.Fatalf("upstream calls = %d; want 1", got)
	}

	resp, err := client.Get(base + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET / status=%d want=%d", resp.StatusCode, http.StatusOK)
	}

	stopServer(t, cmd)
}

func startRedis(t *testing.T) string {
	t.Helper()

	ctx := context.Background()
	port := nat.Port("6379/tcp")

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: tc.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{string(port)},
			WaitingFor:   wait.ForListeningPort(port).WithStartupTimeout(30 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start redis container: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	return net.JoinHostPort(host, mapped.Port())
}

func getJSON(t *testing.T, client *http.Client, url string, v any) {
	t.Helper()

	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status=%d want=%d", url, resp.StatusCode, http.StatusOK)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func repoRootPath(t *testing.T) string {
	t.Helper()

	repo, err := filepath.Abs(repoRootRel)
	if err != nil {
		t.Fatalf("resolve repo root: %v", err)
	}
	if _, err := os.Stat(filepath.Join(repo, "go.mod")); err != nil {
		t.Fatalf("no go.mod in %q: %v", repo, err)
	}
	return repo
}

func buildBinary(t *testing.T, repoRoot string) string {
	t.Helper()

	out := filepath.Join(t.TempDir(), "dashboard")
	build := exec.Command("go", "build", "-o", out, mainPkgRel)
	build.Dir = repoRoot
	if b, err := build.CombinedOutput(); err != nil {
		t.Fatalf("go build: %v\n%s", err, b)
	}
	return out
}

func pickFreeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	if err := ln.Close(); err != nil {
		t.Fatalf("close listener: %v", err)
	}
	return addr
}

// waitForOK polls url until it answers 200 or timeout passes.
func waitForOK(t *testing.T, client *http.Client, url string, timeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()

	for {
		if resp, err := client.Get(url); err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		select {
		case <-ctx.Done():
			t.Fatalf("%s not healthy after %s", url, timeout)
		case <-tick.C:
		}
	}
}

// stopServer sends SIGTERM and expects a clean exit.
func stopServer(t *testing.T, cmd *exec.Cmd) {
	t.Helper()

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("signal server: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-time.After(15 * time.Second):
		_ = cmd.Process.Kill()
		t.Fatal("server did not exit after SIGTERM")
	case err := <-done:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			t.Fatalf("server exited with %d", exitErr.ExitCode())
		}
		if err != nil {
			t.Fatalf("wait for server: %v", err)
		}
	}
}
