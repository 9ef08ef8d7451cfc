package migration

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/rflorenc/profilemig/internal/models"
)

func newMigrator(f *driverFixture, rec *fakeRecorder) *Migrator {
	return &Migrator{
		Pairing:  newPairing(f.site, f.live),
		Driver:   f.driver,
		Notifier: f.notes,
		Recorder: rec,
		Capture:  Target{CollectionID: "PS100010", PackageID: "PS100020"},
		Restore:  Target{CollectionID: "PS100011", PackageID: "PS100021"},
		Log:      zerolog.Nop(),
	}
}

func TestMigrator_Run(t *testing.T) {
	f := newDriverFixture()
	f.site.queue("PS100010", "PC-OLD", models.StatusNotFound, models.StatusInProgress, models.StatusSuccess)
	f.site.queue("PS100011", "PC-NEW", models.StatusNotFound, models.StatusWaiting, models.StatusSuccess)
	rec := &fakeRecorder{}
	m := newMigrator(f, rec)

	run := models.NewRunStore().Create("PC-OLD", "PC-NEW")
	plan, err := m.Run(context.Background(), run)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	snap := run.Snapshot()
	if snap.Status != models.RunCompleted || snap.Phase != models.PhaseDone {
		t.Errorf("run = %s/%s, want completed/done", snap.Status, snap.Phase)
	}
	if plan.Capture.Device.Name != "PC-OLD" || plan.Restore.Device.Name != "PC-NEW" {
		t.Errorf("plan = %+v", plan)
	}
	if len(f.site.created) != 1 {
		t.Errorf("created %d associations, want 1", len(f.site.created))
	}

	// capture must finish before restore enrolls the target
	var captureDone, restoreAdded int
	for i, c := range f.site.calls {
		if c == "Status PS100010 PC-OLD" {
			captureDone = i
		}
		if c == "AddDirectMember PS100011 PC-NEW" {
			restoreAdded = i
		}
	}
	if restoreAdded < captureDone {
		t.Error("restore started before capture finished")
	}

	if len(f.notes.subjects) != 1 || !strings.Contains(f.notes.subjects[0], "completed") {
		t.Errorf("notifications = %v, want one completion notice", f.notes.subjects)
	}
	if last := rec.rows[len(rec.rows)-1]; last != "done:Completed" {
		t.Errorf("last history row = %q, want done:Completed", last)
	}
}

func TestMigrator_HostNotFound(t *testing.T) {
	f := newDriverFixture()
	f.site = newFakeSite(oldPC)
	f.driver.Site = f.site
	m := newMigrator(f, &fakeRecorder{})

	run := models.NewRunStore().Create("PC-OLD", "PC-NEW")
	_, err := m.Run(context.Background(), run)
	if !errors.Is(err, ErrHostNotFound) {
		t.Fatalf("Run error = %v, want ErrHostNotFound", err)
	}
	if m := f.site.mutations(); len(m) != 0 {
		t.Errorf("site mutated: %v", m)
	}
	if len(f.notes.subjects) != 0 {
		t.Errorf("notifications = %v, want none for a lookup failure", f.notes.subjects)
	}
	if snap := run.Snapshot(); snap.Status != models.RunFailed {
		t.Errorf("status = %s, want failed", snap.Status)
	}
}

func TestMigrator_CaptureFailureStopsRun(t *testing.T) {
	f := newDriverFixture()
	f.driver.Retry.MaxAttempts = 0
	f.site.queue("PS100010", "PC-OLD", models.StatusNotFound, models.StatusFailed)
	m := newMigrator(f, &fakeRecorder{})

	run := models.NewRunStore().Create("PC-OLD", "PC-NEW")
	_, err := m.Run(context.Background(), run)
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("Run error = %v, want ErrRetriesExhausted", err)
	}
	if snap := run.Snapshot(); snap.Phase != models.PhaseCapture {
		t.Errorf("failed in phase %s, want capture", snap.Phase)
	}
	for _, c := range f.site.calls {
		if strings.Contains(c, "PS100011") {
			t.Fatalf("restore was attempted: %s", c)
		}
	}
	// one from the driver, one for the run
	if len(f.notes.subjects) != 2 {
		t.Errorf("notifications = %v, want 2", f.notes.subjects)
	}
}

func TestMigrator_DryRun(t *testing.T) {
	f := newDriverFixture()
	m := newMigrator(f, &fakeRecorder{})
	m.DryRun = true
	m.Inspect = f.cleaner
	m.Service = "CcmExec"

	run := models.NewRunStore().Create("PC-OLD", "PC-NEW")
	plan, err := m.Run(context.Background(), run)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if plan.Pair.SourceResourceID != oldPC.ResourceID {
		t.Errorf("plan = %+v", plan.Pair)
	}
	if len(plan.Checks) != 2 || plan.Checks[0].Host != "PC-OLD" || plan.Checks[1].Host != "PC-NEW" {
		t.Fatalf("checks = %+v", plan.Checks)
	}
	if c := plan.Checks[0]; c.StaleEntries != 2 || c.ServiceState != "Running" || c.Err != "" {
		t.Errorf("source check = %+v", c)
	}
	if len(f.cleaner.cleared)+len(f.cleaner.restarts) != 0 {
		t.Error("dry run changed client state")
	}
	if m := f.site.mutations(); len(m) != 0 {
		t.Errorf("dry run mutated the site: %v", m)
	}
}
