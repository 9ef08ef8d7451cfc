package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/rflorenc/profilemig/internal/history"
	"github.com/rflorenc/profilemig/internal/liveness"
	"github.com/rflorenc/profilemig/internal/migration"
	"github.com/rflorenc/profilemig/internal/models"
	"github.com/rflorenc/profilemig/internal/platform"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"success", nil, 0},
		{"host not found", fmt.Errorf("PC-OLD: %w", migration.ErrHostNotFound), 1},
		{"host not found marked as job failure", jobFailure(migration.ErrHostNotFound), 1},
		{"invalid config", precondition(errors.New("site.host is required")), 1},
		{"retries exhausted", jobFailure(migration.ErrRetriesExhausted), 2},
		{"status missing", fmt.Errorf("capture: %w", migration.ErrStatusMissing), 2},
		{"unreachable", fmt.Errorf("PC-NEW: %w", liveness.ErrUnreachable), 2},
		{"timeout", fmt.Errorf("restore timed out: %w", context.DeadlineExceeded), 2},
		{"site error mid job", jobFailure(errors.New("POST: HTTP 500")), 2},
		{"timeout while resolving", precondition(fmt.Errorf("GET /AdminService/wmi/SMS_R_System: %w", context.DeadlineExceeded)), 1},
		{"unreachable while resolving", precondition(fmt.Errorf("PC-NEW: %w", liveness.ErrUnreachable)), 1},
		{"unknown flag", errors.New("unknown flag: --nope"), 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := exitCode(tc.err); got != tc.want {
				t.Errorf("exitCode(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

// stubSite answers the connectivity checks run before a migration.
type stubSite struct {
	platform.Platform
	info *platform.SiteInfo
}

func (stubSite) Ping(context.Context) error      { return nil }
func (stubSite) CheckAuth(context.Context) error { return nil }

func (s stubSite) DiscoverSite(context.Context) (*platform.SiteInfo, error) {
	return s.info, nil
}

func TestCheckSite_MasksPassword(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)
	site := &models.Site{Host: "sccm.example.com", Code: "P01", Username: `CORP\svc`, Password: "hunter2"}
	plat := stubSite{info: &platform.SiteInfo{SiteCode: "P01", Version: "5.00.9122.1000"}}

	if err := checkSite(context.Background(), plat, site, log); err != nil {
		t.Fatalf("checkSite: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Errorf("log leaks the password: %s", out)
	}
	if !strings.Contains(out, site.MaskedPassword()) {
		t.Errorf("log = %s, want the masked password", out)
	}
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "profilemig.yaml")
	data := fmt.Sprintf(`site:
  host: sccm.example.com
capture:
  collection_id: PS100010
  package_id: PS100020
restore:
  collection_id: PS100011
  package_id: PS100021
log_dir: %s
`, filepath.Join(dir, "logs"))
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMigrate_MissingInputNonInteractive(t *testing.T) {
	cfg := writeConfig(t, t.TempDir())
	if code := run([]string{"--config", cfg, "--no-interaction", "migrate", "--source", "PC-OLD"}); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestMigrate_InvalidConfig(t *testing.T) {
	if code := run([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "migrate"}); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
}

func TestHistoryCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	store, err := history.Open(filepath.Join(dir, "logs", "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	store.StartRun(ctx, "run-1", "PC-OLD", "PC-NEW")
	store.Record(ctx, "run-1", "capture", "Success", "")
	store.FinishRun(ctx, "run-1", "completed", "")
	store.Close()

	tests := []struct {
		args []string
		want string
	}{
		{[]string{"--config", cfgPath, "--no-interaction", "history"}, "PC-OLD"},
		{[]string{"--config", cfgPath, "--no-interaction", "history", "--run", "run-1"}, "capture"},
	}
	for _, tc := range tests {
		root := newRootCmd()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs(tc.args)
		if err := root.Execute(); err != nil {
			t.Fatalf("%v: %v", tc.args, err)
		}
		if !strings.Contains(out.String(), tc.want) {
			t.Errorf("%v output missing %q:\n%s", tc.args, tc.want, out.String())
		}
	}
}

func TestDuration(t *testing.T) {
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(90*time.Minute + 400*time.Millisecond)
	if got := duration(start, &end); got != "1h30m0s" {
		t.Errorf("duration = %q", got)
	}
	if got := duration(start, nil); got != "-" {
		t.Errorf("duration(nil) = %q", got)
	}
}
