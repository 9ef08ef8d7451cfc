package remote

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeExec struct {
	hosts   []string
	scripts []string
	out     string
	err     error
}

func (f *fakeExec) Run(ctx context.Context, host, script string) (string, error) {
	f.hosts = append(f.hosts, host)
	f.scripts = append(f.scripts, script)
	return f.out, f.err
}

func TestClearSchedulerHistory(t *testing.T) {
	exec := &fakeExec{out: "2\r\n"}
	m := NewManager(exec)

	n, err := m.ClearSchedulerHistory(context.Background(), "PC-OLD", "P0100107")
	if err != nil {
		t.Fatalf("ClearSchedulerHistory: %v", err)
	}
	if n != 2 {
		t.Errorf("removed = %d, want 2", n)
	}
	script := exec.scripts[0]
	for _, want := range []string{`'root\ccm\scheduler'`, "CCM_Scheduler_History", "'*P0100107*'", "Remove-CimInstance"} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q:\n%s", want, script)
		}
	}
	if exec.hosts[0] != "PC-OLD" {
		t.Errorf("host = %q, want PC-OLD", exec.hosts[0])
	}
}

func TestCountSchedulerHistory(t *testing.T) {
	exec := &fakeExec{out: "0"}
	n, err := NewManager(exec).CountSchedulerHistory(context.Background(), "PC-OLD", "P0100107")
	if err != nil || n != 0 {
		t.Fatalf("CountSchedulerHistory = %d, %v", n, err)
	}
	if strings.Contains(exec.scripts[0], "Remove-CimInstance") {
		t.Error("count must not delete anything")
	}
}

func TestRestartService(t *testing.T) {
	exec := &fakeExec{out: "Running\n"}
	state, err := NewManager(exec).RestartService(context.Background(), "PC-OLD", "CcmExec")
	if err != nil {
		t.Fatalf("RestartService: %v", err)
	}
	if state != "Running" {
		t.Errorf("state = %q, want Running", state)
	}
	if !strings.Contains(exec.scripts[0], "Restart-Service -Name 'CcmExec' -Force") {
		t.Errorf("script = %s", exec.scripts[0])
	}
}

func TestServiceStatus_Error(t *testing.T) {
	exec := &fakeExec{err: errors.New("connection refused")}
	if _, err := NewManager(exec).ServiceStatus(context.Background(), "PC-OLD", "CcmExec"); err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestPsQuote(t *testing.T) {
	if got := psQuote("it's"); got != "'it''s'" {
		t.Errorf("psQuote = %q", got)
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"3", 3, false},
		{"warning\n4\r\n", 4, false},
		{"oops", 0, true},
	}
	for _, tc := range tests {
		got, err := parseCount(tc.in)
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("parseCount(%q) = %d, %v", tc.in, got, err)
		}
	}
}
