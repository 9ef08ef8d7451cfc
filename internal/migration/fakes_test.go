package migration

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rflorenc/profilemig/internal/models"
)

// fakeSite is an in-memory management API.
type fakeSite struct {
	mu sync.Mutex

	devices      map[string]models.Device
	associations []models.Association
	members      map[string]bool // collectionID/resourceID
	statuses     map[string][]models.DeploymentStatus

	calls    []string
	created  []models.MigrationPair
	deleted  []models.Association
	added    []string
	refresh  []string
	policies []string
}

func newFakeSite(devices ...models.Device) *fakeSite {
	s := &fakeSite{
		devices:  map[string]models.Device{},
		members:  map[string]bool{},
		statuses: map[string][]models.DeploymentStatus{},
	}
	for _, d := range devices {
		s.devices[strings.ToUpper(d.Name)] = d
	}
	return s
}

func memberKey(collectionID string, resourceID int) string {
	return fmt.Sprintf("%s/%d", collectionID, resourceID)
}

// queue appends status answers for host in collectionID. The last answer
// repeats once the queue is drained.
func (s *fakeSite) queue(collectionID, host string, codes ...models.StatusCode) {
	for _, c := range codes {
		s.statuses[collectionID+"/"+host] = append(s.statuses[collectionID+"/"+host],
			models.DeploymentStatus{Code: c, DeviceName: host, Description: c.String()})
	}
}

func (s *fakeSite) record(call string) {
	s.calls = append(s.calls, call)
}

func (s *fakeSite) mutations() []string {
	var out []string
	for _, c := range s.calls {
		switch {
		case strings.HasPrefix(c, "Find"), strings.HasPrefix(c, "List"),
			strings.HasPrefix(c, "IsDirect"), strings.HasPrefix(c, "Status"):
			continue
		}
		out = append(out, c)
	}
	return out
}

func (s *fakeSite) FindDevice(_ context.Context, name string) (*models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("FindDevice " + name)
	d, ok := s.devices[strings.ToUpper(name)]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (s *fakeSite) ListAssociations(_ context.Context, hosts ...string) ([]models.Association, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("ListAssociations")
	var out []models.Association
	for _, a := range s.associations {
		for _, h := range hosts {
			if a.References(h) {
				out = append(out, a)
				break
			}
		}
	}
	return out, nil
}

func (s *fakeSite) DeleteAssociation(_ context.Context, a models.Association) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("DeleteAssociation " + a.SourceName + "->" + a.RestoreName)
	s.deleted = append(s.deleted, a)
	kept := s.associations[:0]
	for _, x := range s.associations {
		if x != a {
			kept = append(kept, x)
		}
	}
	s.associations = kept
	return nil
}

func (s *fakeSite) CreateAssociation(_ context.Context, pair models.MigrationPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("CreateAssociation " + pair.SourceHost + "->" + pair.TargetHost)
	s.created = append(s.created, pair)
	s.associations = append(s.associations, models.Association{
		SourceName:        pair.SourceHost,
		SourceResourceID:  pair.SourceResourceID,
		RestoreName:       pair.TargetHost,
		RestoreResourceID: pair.TargetResourceID,
		MigrationBehavior: int(pair.Behavior),
	})
	return nil
}

func (s *fakeSite) IsDirectMember(_ context.Context, collectionID string, resourceID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("IsDirectMember " + collectionID)
	return s.members[memberKey(collectionID, resourceID)], nil
}

func (s *fakeSite) AddDirectMember(_ context.Context, collectionID string, dev models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("AddDirectMember " + collectionID + " " + dev.Name)
	s.members[memberKey(collectionID, dev.ResourceID)] = true
	s.added = append(s.added, dev.Name)
	return nil
}

func (s *fakeSite) RefreshCollection(_ context.Context, collectionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("RefreshCollection " + collectionID)
	s.refresh = append(s.refresh, collectionID)
	return nil
}

func (s *fakeSite) RequestPolicyRefresh(_ context.Context, collectionID string, resourceIDs ...int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("RequestPolicyRefresh " + collectionID)
	s.policies = append(s.policies, collectionID)
	return nil
}

func (s *fakeSite) DeploymentStatus(_ context.Context, collectionID, packageID, host string) (models.DeploymentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("Status " + collectionID + " " + host)
	key := collectionID + "/" + host
	q := s.statuses[key]
	if len(q) == 0 {
		return models.DeploymentStatus{DeviceName: host}, nil
	}
	st := q[0]
	if len(q) > 1 {
		s.statuses[key] = q[1:]
	}
	return st, nil
}

// fakeCleaner counts remote cleanup calls.
type fakeCleaner struct {
	cleared  []string
	restarts []string
	err      error
}

func (c *fakeCleaner) ClearSchedulerHistory(_ context.Context, host, packageID string) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.cleared = append(c.cleared, host+"/"+packageID)
	return 1, nil
}

func (c *fakeCleaner) RestartService(_ context.Context, host, service string) (string, error) {
	if c.err != nil {
		return "", c.err
	}
	c.restarts = append(c.restarts, host+"/"+service)
	return "Running", nil
}

func (c *fakeCleaner) CountSchedulerHistory(_ context.Context, host, packageID string) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	return 2, nil
}

func (c *fakeCleaner) ServiceStatus(_ context.Context, host, service string) (string, error) {
	return "Running", c.err
}

// fakeLiveness records waited hosts and optionally fails.
type fakeLiveness struct {
	hosts []string
	err   error
}

func (l *fakeLiveness) Wait(_ context.Context, host string) error {
	l.hosts = append(l.hosts, host)
	return l.err
}

// fakeNotifier collects subjects.
type fakeNotifier struct {
	subjects []string
}

func (n *fakeNotifier) Notify(_ context.Context, subject, _ string) error {
	n.subjects = append(n.subjects, subject)
	return nil
}

// fakeRecorder collects history rows.
type fakeRecorder struct {
	rows []string
}

func (r *fakeRecorder) Record(_ context.Context, runID, phase, status, detail string) error {
	r.rows = append(r.rows, phase+":"+status)
	return nil
}

// sleepLog records requested sleeps without blocking.
type sleepLog struct {
	waits []time.Duration
}

func (s *sleepLog) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

var (
	oldPC = models.Device{ResourceID: 16777301, Name: "PC-OLD", Client: 1, Active: 1}
	newPC = models.Device{ResourceID: 16777302, Name: "PC-NEW", Client: 1, Active: 1}
)
