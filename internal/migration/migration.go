// Package migration drives a user-state migration between two managed
// machines: pairing, capture on the source, restore on the target.
package migration

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/rflorenc/profilemig/internal/models"
	"github.com/rflorenc/profilemig/internal/notify"
)

// Target names the collection and package of one deployment.
type Target struct {
	CollectionID string
	PackageID    string
}

// Migrator runs the full flow for one source/target pair.
type Migrator struct {
	Pairing  *Pairing
	Driver   *Driver
	Notifier notify.Notifier
	Recorder Recorder
	Capture  Target
	Restore  Target
	Log      zerolog.Logger
	DryRun   bool

	// Inspect, if set, is used by dry runs to report remote client state.
	Inspect Inspector
	Service string
}

// Plan describes what a run would do, for --dry-run.
type Plan struct {
	Pair    models.MigrationPair
	Capture JobSpec
	Restore JobSpec
	Checks  []HostCheck
}

// HostCheck is the remote state of one host as seen by a dry run.
type HostCheck struct {
	Host         string
	PackageID    string
	StaleEntries int
	ServiceState string
	Err          string
}

// Run executes Resolve → Pair → capture → restore for run's hosts and marks
// run completed or failed.
func (m *Migrator) Run(ctx context.Context, run *models.Run) (*Plan, error) {
	plan, err := m.run(ctx, run)
	if err != nil {
		run.Fail(err.Error())
		m.record(ctx, run, "Failed", err.Error())
		if !errors.Is(err, ErrHostNotFound) && !errors.Is(err, context.Canceled) {
			m.notify(ctx, fmt.Sprintf("migration %s -> %s failed", run.SourceHost, run.TargetHost),
				fmt.Sprintf("Run %s stopped during %s.\n\nError: %v\n", run.ID, run.Snapshot().Phase, err))
		}
		return plan, err
	}
	run.Complete()
	m.record(ctx, run, "Completed", "")
	return plan, nil
}

func (m *Migrator) run(ctx context.Context, run *models.Run) (*Plan, error) {
	m.enter(ctx, run, models.PhaseResolve)
	resolved, err := m.Pairing.Resolve(ctx, run.SourceHost, run.TargetHost)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Pair: resolved.Pair,
		Capture: JobSpec{
			Phase:        models.PhaseCapture,
			CollectionID: m.Capture.CollectionID,
			PackageID:    m.Capture.PackageID,
			Device:       resolved.Source,
		},
		Restore: JobSpec{
			Phase:        models.PhaseRestore,
			CollectionID: m.Restore.CollectionID,
			PackageID:    m.Restore.PackageID,
			Device:       resolved.Target,
		},
	}
	if m.DryRun {
		if m.Inspect != nil {
			plan.Checks = []HostCheck{
				m.inspect(ctx, plan.Capture),
				m.inspect(ctx, plan.Restore),
			}
		}
		m.Log.Info().
			Str("source", plan.Pair.SourceHost).
			Str("target", plan.Pair.TargetHost).
			Str("capture_collection", plan.Capture.CollectionID).
			Str("restore_collection", plan.Restore.CollectionID).
			Msg("dry run: no changes made")
		return plan, nil
	}

	m.enter(ctx, run, models.PhasePair)
	if err := m.Pairing.Pair(ctx, resolved); err != nil {
		return plan, err
	}

	m.enter(ctx, run, models.PhaseCapture)
	if err := m.Driver.Drive(ctx, plan.Capture); err != nil {
		return plan, err
	}

	m.enter(ctx, run, models.PhaseRestore)
	if err := m.Driver.Drive(ctx, plan.Restore); err != nil {
		return plan, err
	}

	m.notify(ctx, fmt.Sprintf("migration %s -> %s completed", plan.Pair.SourceHost, plan.Pair.TargetHost),
		fmt.Sprintf("Run %s captured %s and restored it onto %s.\n", run.ID, plan.Pair.SourceHost, plan.Pair.TargetHost))
	return plan, nil
}

func (m *Migrator) inspect(ctx context.Context, spec JobSpec) HostCheck {
	hc := HostCheck{Host: spec.Device.Name, PackageID: spec.PackageID}
	n, err := m.Inspect.CountSchedulerHistory(ctx, hc.Host, spec.PackageID)
	if err != nil {
		hc.Err = err.Error()
		m.Log.Warn().Err(err).Str("host", hc.Host).Msg("cannot inspect client")
		return hc
	}
	hc.StaleEntries = n
	if hc.ServiceState, err = m.Inspect.ServiceStatus(ctx, hc.Host, m.Service); err != nil {
		hc.Err = err.Error()
	}
	m.Log.Info().Str("host", hc.Host).Int("stale_entries", n).Str("service", hc.ServiceState).Msg("client state")
	return hc
}

func (m *Migrator) enter(ctx context.Context, run *models.Run, phase models.Phase) {
	run.SetPhase(phase)
	m.Log.Info().Str("phase", string(phase)).Msg("=== " + string(phase) + " ===")
	m.record(ctx, run, "Started", "")
}

func (m *Migrator) record(ctx context.Context, run *models.Run, status, detail string) {
	if m.Recorder == nil {
		return
	}
	phase := string(run.Snapshot().Phase)
	if err := m.Recorder.Record(context.WithoutCancel(ctx), run.ID, phase, status, detail); err != nil {
		m.Log.Warn().Err(err).Msg("history not recorded")
	}
}

func (m *Migrator) notify(ctx context.Context, subject, body string) {
	if m.Notifier == nil {
		return
	}
	m.Notifier.Notify(context.WithoutCancel(ctx), subject, body)
}

// RecordFunc adapts a Recorder to the Driver's per-transition callback.
func RecordFunc(ctx context.Context, rec Recorder, runID string, log zerolog.Logger) func(models.Phase, string, string) {
	return func(phase models.Phase, status, detail string) {
		if rec == nil {
			return
		}
		if err := rec.Record(context.WithoutCancel(ctx), runID, string(phase), status, detail); err != nil {
			log.Warn().Err(err).Msg("history not recorded")
		}
	}
}
