package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// writeConfig stores data as config.toml in a fresh temp dir and returns a
// CLI pointing at it.
func writeConfig(t *testing.T, data string) *CLI {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return &CLI{Config: path}
}

func TestLoad_ValidConfig(t *testing.T) {
	tmp := t.TempDir()
	cli := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 9000
body_max_bytes = 5242880

[upstream]
base_url = "http://odata.internal:8080/sap/opu/odata/sap/EMPLOYEES"
timeout_seconds = 60
idle_connections = 50

[batch]
tmp_dir = "`+tmp+`"
buffer_size = 4096
response_as_string = true

[log]
level = "debug"
format = "text"
`)

	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9000)
	}
	if !cfg.Upstream.ForwardingEnabled() {
		t.Error("ForwardingEnabled() = false, want true")
	}
	if cfg.Upstream.TimeoutSeconds != 60 {
		t.Errorf("Upstream.TimeoutSeconds = %d, want %d", cfg.Upstream.TimeoutSeconds, 60)
	}
	if cfg.Batch.TmpDir != tmp {
		t.Errorf("Batch.TmpDir = %q, want %q", cfg.Batch.TmpDir, tmp)
	}
	if cfg.Batch.BufferSize != 4096 {
		t.Errorf("Batch.BufferSize = %d, want %d", cfg.Batch.BufferSize, 4096)
	}
	if !cfg.Batch.ResponseAsString {
		t.Error("Batch.ResponseAsString = false, want true")
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "debug")
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "text")
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "# empty\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("default Server.Port = %d, want %d", cfg.Server.Port, 8000)
	}
	if cfg.Server.BodyMaxBytes != 64*1024*1024 {
		t.Errorf("default Server.BodyMaxBytes = %d, want %d", cfg.Server.BodyMaxBytes, 64*1024*1024)
	}
	if cfg.Batch.BufferSize != 8192 {
		t.Errorf("default Batch.BufferSize = %d, want %d", cfg.Batch.BufferSize, 8192)
	}
	if cfg.Batch.TmpDir != "" {
		t.Errorf("default Batch.TmpDir = %q, want empty", cfg.Batch.TmpDir)
	}
	if cfg.Upstream.ForwardingEnabled() {
		t.Error("ForwardingEnabled() = true without base_url")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("default Log.Level = %q, want %q", cfg.Log.Level, "info")
	}
	if cfg.Log.Format != "json" {
		t.Errorf("default Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("default Metrics.Path = %q, want %q", cfg.Metrics.Path, "/metrics")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(&CLI{Config: "/nonexistent/config.toml"})
	if err == nil {
		t.Fatal("Load() expected error for missing file, got nil")
	}
}

func TestLoad_MalformedTOML(t *testing.T) {
	_, err := Load(writeConfig(t, "[server\nport = 1\n"))
	if err == nil {
		t.Fatal("Load() expected parse error, got nil")
	}
	if !strings.Contains(err.Error(), "parse") {
		t.Errorf("error = %q, want parse error", err)
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	cli := writeConfig(t, `
[server]
host = "0.0.0.0"
port = 8000

[upstream]
base_url = "https://a.example.com/odata"

[log]
level = "info"
`)
	tmp := t.TempDir()
	cli.Host = "127.0.0.1"
	cli.Port = 3000
	cli.Upstream = "https://b.example.com/odata"
	cli.TmpDir = tmp
	cli.LogLevel = "debug"

	cfg, err := Load(cli)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("Server.Host = %q, want %q (CLI override)", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 3000 {
		t.Errorf("Server.Port = %d, want %d (CLI override)", cfg.Server.Port, 3000)
	}
	if cfg.Upstream.BaseURL != "https://b.example.com/odata" {
		t.Errorf("Upstream.BaseURL = %q (CLI override)", cfg.Upstream.BaseURL)
	}
	if cfg.Batch.TmpDir != tmp {
		t.Errorf("Batch.TmpDir = %q, want %q (CLI override)", cfg.Batch.TmpDir, tmp)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want %q (CLI override)", cfg.Log.Level, "debug")
	}
}

func TestLoad_Rejects(t *testing.T) {
	notDir := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(notDir, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		data    string
		wantMsg string
	}{
		{"ftp upstream", "[upstream]\nbase_url = \"ftp://example.com\"\n", "http or https"},
		{"upstream without host", "[upstream]\nbase_url = \"http://\"\n", "no host"},
		{"negative port", "[server]\nport = -1\n", "server.port"},
		{"port too large", "[server]\nport = 70000\n", "server.port"},
		{"negative body limit", "[server]\nbody_max_bytes = -1\n", "body_max_bytes"},
		{"negative timeout", "[upstream]\ntimeout_seconds = -5\n", "timeout_seconds"},
		{"negative idle connections", "[upstream]\nidle_connections = -1\n", "idle_connections"},
		{"negative buffer size", "[batch]\nbuffer_size = -1\n", "buffer_size"},
		{"missing tmp dir", "[batch]\ntmp_dir = \"/nonexistent/spill\"\n", "tmp_dir"},
		{"tmp dir is a file", "[batch]\ntmp_dir = \"" + notDir + "\"\n", "not a directory"},
		{"invalid log level", "[log]\nlevel = \"verbose\"\n", "log.level"},
		{"invalid log format", "[log]\nformat = \"xml\"\n", "log.format"},
		{"rate limit without rate", "[server.rate_limit]\nenabled = true\nrequests_per_second = 0\n", "requests_per_second"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.data))
			if err == nil {
				t.Fatal("Load() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error = %q, want mention of %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoad_RateLimitConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
[server.rate_limit]
enabled = true
requests_per_second = 50.0
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.Server.RateLimit.Enabled {
		t.Error("expected RateLimit.Enabled = true")
	}
	if cfg.Server.RateLimit.RequestsPerSecond != 50.0 {
		t.Errorf("RateLimit.RequestsPerSecond = %v, want 50.0", cfg.Server.RateLimit.RequestsPerSecond)
	}
}

func TestWarnPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("permission bits not meaningful on Windows")
	}

	tests := []struct {
		name     string
		mode     os.FileMode
		wantWarn bool
	}{
		{"loose", 0o644, true},
		{"strict", 0o600, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte("# test"), tt.mode); err != nil {
				t.Fatal(err)
			}

			cfg := &Config{filePath: path}
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
			cfg.WarnPermissions(logger)

			warned := strings.Contains(buf.String(), "readable by group/others")
			if warned != tt.wantWarn {
				t.Errorf("warned = %v, want %v (log: %q)", warned, tt.wantWarn, buf.String())
			}
		})
	}
}

func TestFindConfigInPaths(t *testing.T) {
	path1 := filepath.Join(t.TempDir(), "config.toml")
	path2 := filepath.Join(t.TempDir(), "config.toml")
	for _, p := range []string{path1, path2} {
		if err := os.WriteFile(p, []byte("[batch]\nbuffer_size = 1024\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if got := findConfigInPaths([]string{"/nonexistent/a.toml", path2, path1}); got != path2 {
		t.Errorf("findConfigInPaths() = %q, want first existing %q", got, path2)
	}
	if got := findConfigInPaths([]string{"/nonexistent/a.toml", "/nonexistent/b.toml"}); got != "" {
		t.Errorf("findConfigInPaths() = %q, want empty", got)
	}
}

func TestLoad_MetricsPath(t *testing.T) {
	tests := []struct {
		name     string
		enabled  bool
		path     string
		wantErr  string
		wantPath string
	}{
		{"default", true, "", "", "/metrics"},
		{"custom", true, "/custom-metrics", "", "/custom-metrics"},
		{"no leading slash", true, "metrics", "metrics.path", ""},
		{"batch route", true, "/$batch", "conflicts", ""},
		{"batch subroute", true, "/batch/metrics", "conflicts", ""},
		{"healthz", true, "/healthz", "conflicts", ""},
		{"status", true, "/status", "conflicts", ""},
		{"disabled skips validation", false, "bad-no-slash", "", "bad-no-slash"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := "[metrics]\n"
			if tt.enabled {
				data += "enabled = true\n"
			}
			if tt.path != "" {
				data += "path = \"" + tt.path + "\"\n"
			}

			cfg, err := Load(writeConfig(t, data))
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("Load() expected error for metrics.path=%q, got nil", tt.path)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error = %q, want mention of %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Metrics.Path != tt.wantPath {
				t.Errorf("Metrics.Path = %q, want %q", cfg.Metrics.Path, tt.wantPath)
			}
		})
	}
}

func TestServerConfig_Addr(t *testing.T) {
	sc := &ServerConfig{Host: "127.0.0.1", Port: 3000}
	want := "127.0.0.1:3000"
	if got := sc.Addr(); got != want {
		t.Errorf("Addr() = %q, want %q", got, want)
	}
}
