// Package remote clears stale scheduler state on client machines and
// restarts the client agent service.
package remote

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

const schedulerNamespace = `root\ccm\scheduler`

// Manager performs remote management operations through an Executor.
type Manager struct {
	exec Executor
}

// NewManager creates a Manager.
func NewManager(exec Executor) *Manager {
	return &Manager{exec: exec}
}

// psQuote quotes s as a single-quoted PowerShell literal.
func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func historyFilter(packageID string) string {
	return fmt.Sprintf(
		"Get-CimInstance -Namespace %s -ClassName CCM_Scheduler_History | Where-Object { $_.ScheduleID -like %s }",
		psQuote(schedulerNamespace), psQuote("*"+packageID+"*"))
}

// CountSchedulerHistory returns how many scheduler history objects on host
// reference packageID.
func (m *Manager) CountSchedulerHistory(ctx context.Context, host, packageID string) (int, error) {
	script := fmt.Sprintf("@(%s).Count", historyFilter(packageID))
	out, err := m.exec.Run(ctx, host, script)
	if err != nil {
		return 0, fmt.Errorf("querying scheduler history on %s: %w", host, err)
	}
	return parseCount(out)
}

// ClearSchedulerHistory deletes the scheduler history objects on host that
// reference packageID, which forces the client to reschedule the deployment.
// It returns the number of objects removed.
func (m *Manager) ClearSchedulerHistory(ctx context.Context, host, packageID string) (int, error) {
	script := fmt.Sprintf("$n = 0; %s | ForEach-Object { Remove-CimInstance -InputObject $_; $n++ }; $n",
		historyFilter(packageID))
	out, err := m.exec.Run(ctx, host, script)
	if err != nil {
		return 0, fmt.Errorf("clearing scheduler history on %s: %w", host, err)
	}
	return parseCount(out)
}

// ServiceStatus returns the state of a Windows service, e.g. "Running".
func (m *Manager) ServiceStatus(ctx context.Context, host, service string) (string, error) {
	script := fmt.Sprintf("(Get-Service -Name %s).Status.ToString()", psQuote(service))
	out, err := m.exec.Run(ctx, host, script)
	if err != nil {
		return "", fmt.Errorf("querying %s on %s: %w", service, host, err)
	}
	return strings.TrimSpace(out), nil
}

// RestartService restarts a Windows service and reports its new state.
func (m *Manager) RestartService(ctx context.Context, host, service string) (string, error) {
	script := fmt.Sprintf("Restart-Service -Name %s -Force; (Get-Service -Name %s).Status.ToString()",
		psQuote(service), psQuote(service))
	out, err := m.exec.Run(ctx, host, script)
	if err != nil {
		return "", fmt.Errorf("restarting %s on %s: %w", service, host, err)
	}
	return strings.TrimSpace(out), nil
}

func parseCount(out string) (int, error) {
	fields := strings.Fields(out)
	if len(fields) == 0 {
		return 0, nil
	}
	n, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil {
		return 0, fmt.Errorf("unexpected output %q", truncate(out, 100))
	}
	return n, nil
}
