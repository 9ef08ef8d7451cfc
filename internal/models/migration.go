package models

import (
	"fmt"
	"strings"
	"time"
)

// Behavior is the user-state migration behavior stored on an association.
type Behavior int

const (
	// CaptureAndRestoreAllUserAccounts migrates every profile on the source.
	CaptureAndRestoreAllUserAccounts Behavior = 0
	// CaptureAndRestoreSpecifiedUserAccounts migrates only the listed accounts.
	CaptureAndRestoreSpecifiedUserAccounts Behavior = 1
)

func (b Behavior) String() string {
	switch b {
	case CaptureAndRestoreAllUserAccounts:
		return "CaptureAndRestoreAllUserAccounts"
	case CaptureAndRestoreSpecifiedUserAccounts:
		return "CaptureAndRestoreSpecifiedUserAccounts"
	}
	return fmt.Sprintf("Behavior(%d)", int(b))
}

// ParseBehavior accepts the behavior names used in config files.
func ParseBehavior(s string) (Behavior, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "captureandrestorealluseraccounts":
		return CaptureAndRestoreAllUserAccounts, nil
	case "specified", "captureandrestorespecifieduseraccounts":
		return CaptureAndRestoreSpecifiedUserAccounts, nil
	}
	return 0, fmt.Errorf("unknown migration behavior %q", s)
}

// MigrationPair links a source host to a target host for one run.
type MigrationPair struct {
	SourceHost       string   `json:"source_host"`
	TargetHost       string   `json:"target_host"`
	Behavior         Behavior `json:"behavior"`
	SourceResourceID int      `json:"source_resource_id"`
	TargetResourceID int      `json:"target_resource_id"`
}

// Device is an inventory record for a managed machine.
type Device struct {
	ResourceID int    `json:"ResourceId"`
	Name       string `json:"Name"`
	Domain     string `json:"ResourceDomainORWorkgroup"`
	Client     int    `json:"Client"`
	Active     int    `json:"Active"`
}

// Association is an existing computer association record on the site.
type Association struct {
	SourceName        string `json:"SourceName"`
	SourceResourceID  int    `json:"SourceClientResourceID"`
	RestoreName       string `json:"RestoreName"`
	RestoreResourceID int    `json:"RestoreClientResourceID"`
	MigrationBehavior int    `json:"MigrationBehavior"`
}

// References reports whether the association involves host as either side.
func (a Association) References(host string) bool {
	return strings.EqualFold(a.SourceName, host) || strings.EqualFold(a.RestoreName, host)
}

// StatusCode is a deployment status type as reported by the site.
type StatusCode int

const (
	StatusNotFound           StatusCode = 0
	StatusSuccess            StatusCode = 1
	StatusInProgress         StatusCode = 2
	StatusRequirementsNotMet StatusCode = 3
	StatusWaiting            StatusCode = 4
	StatusFailed             StatusCode = 5
)

func (c StatusCode) String() string {
	switch c {
	case StatusNotFound:
		return "NotFound"
	case StatusSuccess:
		return "Success"
	case StatusInProgress:
		return "InProgress"
	case StatusRequirementsNotMet:
		return "RequirementsNotMet"
	case StatusWaiting:
		return "Waiting"
	case StatusFailed:
		return "Failed"
	}
	return fmt.Sprintf("Status(%d)", int(c))
}

// DeploymentStatus is a read-only snapshot of a host's deployment status.
// It is re-fetched on every poll.
type DeploymentStatus struct {
	Code        StatusCode `json:"code"`
	Description string     `json:"description"`
	DeviceName  string     `json:"device_name"`
	LastUpdated time.Time  `json:"last_updated,omitempty"`
}

// Found reports whether a status record exists.
func (s DeploymentStatus) Found() bool {
	return s.Code != StatusNotFound
}
