package remote

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/masterzen/winrm"
)

// Executor runs a PowerShell script on a remote host and returns stdout.
type Executor interface {
	Run(ctx context.Context, host, script string) (string, error)
}

// WinRMOptions configures WinRM sessions to client machines.
type WinRMOptions struct {
	Port     int
	HTTPS    bool
	Insecure bool
	Username string
	Password string
	Timeout  time.Duration
}

// WinRMExecutor runs scripts over WinRM, one session per call.
type WinRMExecutor struct {
	opts WinRMOptions
}

// NewWinRMExecutor creates an Executor backed by WinRM.
func NewWinRMExecutor(opts WinRMOptions) *WinRMExecutor {
	return &WinRMExecutor{opts: opts}
}

func (e *WinRMExecutor) Run(ctx context.Context, host, script string) (string, error) {
	endpoint := winrm.NewEndpoint(host, e.opts.Port, e.opts.HTTPS, e.opts.Insecure, nil, nil, nil, e.opts.Timeout)
	client, err := winrm.NewClient(endpoint, e.opts.Username, e.opts.Password)
	if err != nil {
		return "", fmt.Errorf("winrm client for %s: %w", host, err)
	}

	var stdout, stderr bytes.Buffer
	code, err := client.RunWithContext(ctx, winrm.Powershell(script), &stdout, &stderr)
	if err != nil {
		return "", fmt.Errorf("winrm %s: %w", host, err)
	}
	if code != 0 {
		return stdout.String(), fmt.Errorf("winrm %s: exit %d: %s", host, code, truncate(strings.TrimSpace(stderr.String()), 300))
	}
	return stdout.String(), nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
