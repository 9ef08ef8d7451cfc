package platform

import (
	"context"

	"github.com/rflorenc/profilemig/internal/models"
)

// Platform defines the operations the migration needs from the site.
type Platform interface {
	// Ping tests connectivity. Returns nil if the AdminService answers.
	Ping(ctx context.Context) error

	// CheckAuth verifies credentials. Returns nil if authenticated.
	CheckAuth(ctx context.Context) error

	// DiscoverSite returns the site code and version of the provider.
	DiscoverSite(ctx context.Context) (*SiteInfo, error)

	// FindDevice looks a host up in inventory. Returns nil, nil when absent.
	FindDevice(ctx context.Context, name string) (*models.Device, error)

	// IsDirectMember reports whether the resource has a direct rule in the collection.
	IsDirectMember(ctx context.Context, collectionID string, resourceID int) (bool, error)

	// AddDirectMember adds a direct membership rule for the device.
	AddDirectMember(ctx context.Context, collectionID string, dev models.Device) error

	// RefreshCollection asks the site to re-evaluate collection membership.
	RefreshCollection(ctx context.Context, collectionID string) error

	// RequestPolicyRefresh sends the "machine policy retrieval" client
	// notification to the given resources.
	RequestPolicyRefresh(ctx context.Context, collectionID string, resourceIDs ...int) error

	// DeploymentStatus returns the host's status for a package deployed to a
	// collection. A zero Code means no record exists.
	DeploymentStatus(ctx context.Context, collectionID, packageID, host string) (models.DeploymentStatus, error)

	// ListAssociations returns every computer association naming any of hosts.
	ListAssociations(ctx context.Context, hosts ...string) ([]models.Association, error)

	// DeleteAssociation removes a computer association.
	DeleteAssociation(ctx context.Context, a models.Association) error

	// CreateAssociation creates a computer association for the pair.
	CreateAssociation(ctx context.Context, pair models.MigrationPair) error
}

// NewPlatform creates the Platform implementation for a site.
func NewPlatform(site *models.Site) Platform {
	return NewSCCMPlatform(NewClient(site))
}
