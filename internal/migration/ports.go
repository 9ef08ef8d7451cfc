package migration

import (
	"context"

	"github.com/rflorenc/profilemig/internal/models"
)

// Site is the part of the management API the migration drives.
// platform.SCCMPlatform implements it.
type Site interface {
	FindDevice(ctx context.Context, name string) (*models.Device, error)

	ListAssociations(ctx context.Context, hosts ...string) ([]models.Association, error)
	DeleteAssociation(ctx context.Context, a models.Association) error
	CreateAssociation(ctx context.Context, pair models.MigrationPair) error

	IsDirectMember(ctx context.Context, collectionID string, resourceID int) (bool, error)
	AddDirectMember(ctx context.Context, collectionID string, dev models.Device) error
	RefreshCollection(ctx context.Context, collectionID string) error
	RequestPolicyRefresh(ctx context.Context, collectionID string, resourceIDs ...int) error
	DeploymentStatus(ctx context.Context, collectionID, packageID, host string) (models.DeploymentStatus, error)
}

// StateCleaner removes stale scheduler state on a client machine.
// remote.Manager implements it.
type StateCleaner interface {
	ClearSchedulerHistory(ctx context.Context, host, packageID string) (int, error)
	RestartService(ctx context.Context, host, service string) (string, error)
}

// Inspector reads remote client state without changing it. remote.Manager
// implements it.
type Inspector interface {
	CountSchedulerHistory(ctx context.Context, host, packageID string) (int, error)
	ServiceStatus(ctx context.Context, host, service string) (string, error)
}

// LivenessWaiter blocks until a host is reachable. liveness.Gate implements it.
type LivenessWaiter interface {
	Wait(ctx context.Context, host string) error
}

// Recorder persists status transitions of a run. history.Store implements it.
type Recorder interface {
	Record(ctx context.Context, runID, phase, status, detail string) error
}
