package platform

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rflorenc/profilemig/internal/models"
)

// AdminService WMI routes.
const (
	wmiRoot               = "/AdminService/wmi/"
	pathDevices           = wmiRoot + "SMS_R_System"
	pathMembership        = wmiRoot + "SMS_FullCollectionMembership"
	pathDeploymentAssets  = wmiRoot + "SMS_ClassicDeploymentAssetDetails"
	pathStateMigration    = wmiRoot + "SMS_StateMigration"
	pathClientOperation   = wmiRoot + "SMS_ClientOperation.InitiateClientOperation"
	pathAddAssociation    = pathStateMigration + ".AddAssociationEx"
	pathDeleteAssociation = pathStateMigration + ".DeleteAssociation"
)

// clientOperationMachinePolicy is the InitiateClientOperation type for
// "Download Computer Policy".
const clientOperationMachinePolicy = 8

// SCCMPlatform implements Platform against a Configuration Manager site.
type SCCMPlatform struct {
	client *Client
}

// NewSCCMPlatform creates a new SCCM Platform.
func NewSCCMPlatform(client *Client) *SCCMPlatform {
	return &SCCMPlatform{client: client}
}

func (p *SCCMPlatform) Ping(ctx context.Context) error {
	// Versioned route first, fall back to the WMI route on older providers
	var err error
	for _, path := range PingPaths() {
		if err = p.client.Ping(ctx, path); err == nil {
			return nil
		}
	}
	return err
}

func (p *SCCMPlatform) CheckAuth(ctx context.Context) error {
	return p.client.Ping(ctx, pathSite+"?$top=1")
}

func (p *SCCMPlatform) FindDevice(ctx context.Context, name string) (*models.Device, error) {
	var devices []models.Device
	filter := "Name eq " + odataString(name)
	if err := p.client.Query(ctx, pathDevices, filter, &devices); err != nil {
		return nil, fmt.Errorf("looking up device %s: %w", name, err)
	}
	if len(devices) == 0 {
		return nil, nil
	}
	// Prefer an active client record when inventory holds duplicates
	for i := range devices {
		if devices[i].Client == 1 && devices[i].Active == 1 {
			return &devices[i], nil
		}
	}
	return &devices[0], nil
}

type membershipRecord struct {
	CollectionID string `json:"CollectionID"`
	ResourceID   int    `json:"ResourceID"`
	IsDirect     bool   `json:"IsDirect"`
}

func (p *SCCMPlatform) IsDirectMember(ctx context.Context, collectionID string, resourceID int) (bool, error) {
	var records []membershipRecord
	filter := fmt.Sprintf("CollectionID eq %s and ResourceID eq %d", odataString(collectionID), resourceID)
	if err := p.client.Query(ctx, pathMembership, filter, &records); err != nil {
		return false, fmt.Errorf("checking membership of %d in %s: %w", resourceID, collectionID, err)
	}
	for _, r := range records {
		if r.IsDirect {
			return true, nil
		}
	}
	return false, nil
}

func collectionPath(collectionID, action string) string {
	return fmt.Sprintf("%sSMS_Collection(%s)/AdminService.%s", wmiRoot, odataString(collectionID), action)
}

func (p *SCCMPlatform) AddDirectMember(ctx context.Context, collectionID string, dev models.Device) error {
	payload := map[string]interface{}{
		"collectionRule": map[string]interface{}{
			"@odata.type":       "#AdminService.SMS_CollectionRuleDirect",
			"ResourceClassName": "SMS_R_System",
			"RuleName":          dev.Name,
			"ResourceID":        dev.ResourceID,
		},
	}
	if _, _, err := p.client.Post(ctx, collectionPath(collectionID, "AddMembershipRule"), payload); err != nil {
		return fmt.Errorf("adding %s to %s: %w", dev.Name, collectionID, err)
	}
	return nil
}

func (p *SCCMPlatform) RefreshCollection(ctx context.Context, collectionID string) error {
	if _, _, err := p.client.Post(ctx, collectionPath(collectionID, "RequestRefresh"), map[string]interface{}{}); err != nil {
		return fmt.Errorf("refreshing %s: %w", collectionID, err)
	}
	return nil
}

func (p *SCCMPlatform) RequestPolicyRefresh(ctx context.Context, collectionID string, resourceIDs ...int) error {
	payload := map[string]interface{}{
		"Type":                clientOperationMachinePolicy,
		"TargetCollectionID":  collectionID,
		"RandomizationWindow": 0,
		"TargetResourceIDs":   resourceIDs,
	}
	if _, _, err := p.client.Post(ctx, pathClientOperation, payload); err != nil {
		return fmt.Errorf("client notification for %s: %w", collectionID, err)
	}
	return nil
}

type assetDetail struct {
	DeviceName        string `json:"DeviceName"`
	StatusType        int    `json:"StatusType"`
	StatusDescription string `json:"StatusDescription"`
	StatusTime        string `json:"StatusTime"`
}

func (p *SCCMPlatform) DeploymentStatus(ctx context.Context, collectionID, packageID, host string) (models.DeploymentStatus, error) {
	var details []assetDetail
	filter := fmt.Sprintf("PackageID eq %s and CollectionID eq %s and DeviceName eq %s",
		odataString(packageID), odataString(collectionID), odataString(host))
	if err := p.client.Query(ctx, pathDeploymentAssets, filter, &details); err != nil {
		return models.DeploymentStatus{}, fmt.Errorf("deployment status for %s: %w", host, err)
	}
	if len(details) == 0 {
		return models.DeploymentStatus{DeviceName: host}, nil
	}
	return latestStatus(details), nil
}

// latestStatus picks the most recently updated record.
func latestStatus(details []assetDetail) models.DeploymentStatus {
	var best models.DeploymentStatus
	for i, d := range details {
		st := models.DeploymentStatus{
			Code:        models.StatusCode(d.StatusType),
			Description: d.StatusDescription,
			DeviceName:  d.DeviceName,
			LastUpdated: parseTime(d.StatusTime),
		}
		if i == 0 || st.LastUpdated.After(best.LastUpdated) {
			best = st
		}
	}
	return best
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (p *SCCMPlatform) ListAssociations(ctx context.Context, hosts ...string) ([]models.Association, error) {
	if len(hosts) == 0 {
		return nil, nil
	}
	clauses := make([]string, 0, len(hosts)*2)
	for _, h := range hosts {
		q := odataString(h)
		clauses = append(clauses, "SourceName eq "+q, "RestoreName eq "+q)
	}
	var assocs []models.Association
	if err := p.client.Query(ctx, pathStateMigration, strings.Join(clauses, " or "), &assocs); err != nil {
		return nil, fmt.Errorf("listing associations: %w", err)
	}
	return assocs, nil
}

func (p *SCCMPlatform) DeleteAssociation(ctx context.Context, a models.Association) error {
	payload := map[string]interface{}{
		"SourceClientResourceID":  a.SourceResourceID,
		"RestoreClientResourceID": a.RestoreResourceID,
	}
	if _, _, err := p.client.Post(ctx, pathDeleteAssociation, payload); err != nil {
		return fmt.Errorf("deleting association %s -> %s: %w", a.SourceName, a.RestoreName, err)
	}
	return nil
}

func (p *SCCMPlatform) CreateAssociation(ctx context.Context, pair models.MigrationPair) error {
	payload := map[string]interface{}{
		"SourceClientResourceID":  pair.SourceResourceID,
		"RestoreClientResourceID": pair.TargetResourceID,
		"MigrationBehavior":       int(pair.Behavior),
		"UserNames":               []string{},
	}
	if _, _, err := p.client.Post(ctx, pathAddAssociation, payload); err != nil {
		return fmt.Errorf("creating association %s -> %s: %w", pair.SourceHost, pair.TargetHost, err)
	}
	return nil
}
