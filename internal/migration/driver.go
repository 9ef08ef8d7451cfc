package migration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rflorenc/profilemig/internal/liveness"
	"github.com/rflorenc/profilemig/internal/models"
	"github.com/rflorenc/profilemig/internal/notify"
)

// JobSpec parameterizes one task sequence job: capture on the source or
// restore on the target.
type JobSpec struct {
	Phase        models.Phase
	CollectionID string
	PackageID    string
	Device       models.Device
}

// Timing holds the driver's wait intervals.
type Timing struct {
	PollInterval    time.Duration
	InitialGrace    time.Duration
	StaleSettle     time.Duration
	JobTimeout      time.Duration
	MaxMissingPolls int
}

// Driver enrolls a host in a deployment collection and polls the
// deployment until it succeeds, re-arming it when it fails.
type Driver struct {
	Site     Site
	Cleaner  StateCleaner
	Liveness LivenessWaiter
	Notifier notify.Notifier
	Timing   Timing
	Retry    RetryPolicy
	Service  string // client agent service restarted after cleanup
	Log      zerolog.Logger

	// Record, if set, is called on every status transition.
	Record func(phase models.Phase, status, detail string)
	Sleep  liveness.SleepFunc
	Now    func() time.Time
}

func (d *Driver) sleep(ctx context.Context, dur time.Duration) error {
	if d.Sleep != nil {
		return d.Sleep(ctx, dur)
	}
	return liveness.Sleep(ctx, dur)
}

func (d *Driver) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Driver) record(phase models.Phase, status, detail string) {
	if d.Record != nil {
		d.Record(phase, status, detail)
	}
}

// Drive runs one job to completion. It returns nil once the deployment
// reports Success.
func (d *Driver) Drive(ctx context.Context, spec JobSpec) error {
	if d.Timing.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timing.JobTimeout)
		defer cancel()
	}
	host := spec.Device.Name
	log := d.Log.With().Str("job", string(spec.Phase)).Str("host", host).Logger()

	if _, err := d.EnsureMember(ctx, log, spec); err != nil {
		return err
	}

	st, err := d.Site.DeploymentStatus(ctx, spec.CollectionID, spec.PackageID, host)
	if err != nil {
		return err
	}
	var armedAt time.Time
	if st.Found() {
		log.Warn().Stringer("status", st.Code).Msg("status record already exists, clearing stale state")
		if err := d.clearStale(ctx, log, spec); err != nil {
			return err
		}
		armedAt = d.now()
	}
	d.record(spec.Phase, "NotStarted", "")

	if err := d.sleep(ctx, d.Timing.InitialGrace); err != nil {
		return wrapWait(spec, err)
	}
	return d.poll(ctx, log, spec, armedAt)
}

// EnsureMember makes the job's device a direct member of the collection and
// reports whether it was newly added. A new member triggers a collection
// refresh and a machine policy request.
func (d *Driver) EnsureMember(ctx context.Context, log zerolog.Logger, spec JobSpec) (bool, error) {
	member, err := d.Site.IsDirectMember(ctx, spec.CollectionID, spec.Device.ResourceID)
	if err != nil {
		return false, err
	}
	if member {
		log.Info().Str("collection", spec.CollectionID).Msg("already a direct member")
		return false, nil
	}

	if err := d.Site.AddDirectMember(ctx, spec.CollectionID, spec.Device); err != nil {
		return false, err
	}
	log.Info().Str("collection", spec.CollectionID).Msg("added to collection")
	if err := d.Site.RefreshCollection(ctx, spec.CollectionID); err != nil {
		return true, err
	}
	if err := d.Site.RequestPolicyRefresh(ctx, spec.CollectionID, spec.Device.ResourceID); err != nil {
		return true, err
	}
	log.Info().Msg("machine policy refresh requested")
	return true, nil
}

// clearStale removes the host's scheduler history for the package,
// restarts the client agent and gives it time to settle.
func (d *Driver) clearStale(ctx context.Context, log zerolog.Logger, spec JobSpec) error {
	host := spec.Device.Name
	removed, err := d.Cleaner.ClearSchedulerHistory(ctx, host, spec.PackageID)
	if err != nil {
		return err
	}
	log.Info().Int("removed", removed).Str("package", spec.PackageID).Msg("scheduler history cleared")

	state, err := d.Cleaner.RestartService(ctx, host, d.Service)
	if err != nil {
		return err
	}
	log.Info().Str("service", d.Service).Str("state", state).Msg("service restarted")

	if err := d.sleep(ctx, d.Timing.StaleSettle); err != nil {
		return wrapWait(spec, err)
	}
	return nil
}

// poll waits for a terminal status. Records last updated at or before
// armedAt are left over from an earlier run.
func (d *Driver) poll(ctx context.Context, log zerolog.Logger, spec JobSpec, armedAt time.Time) error {
	host := spec.Device.Name
	var (
		attempts int
		missing  int
		last     = models.StatusNotFound
	)

	for {
		st, err := d.Site.DeploymentStatus(ctx, spec.CollectionID, spec.PackageID, host)
		if err != nil {
			if ctx.Err() != nil {
				return wrapWait(spec, ctx.Err())
			}
			log.Warn().Err(err).Msg("status query failed")
			st = models.DeploymentStatus{}
		}

		stale := st.Code == models.StatusSuccess || st.Code == models.StatusFailed
		if stale && !armedAt.IsZero() &&
			!st.LastUpdated.IsZero() && !st.LastUpdated.After(armedAt) {
			st.Code = models.StatusWaiting
		}

		if st.Code != last {
			d.record(spec.Phase, st.Code.String(), st.Description)
			last = st.Code
		}

		switch st.Code {
		case models.StatusSuccess:
			log.Info().Str("detail", st.Description).Msg("job succeeded")
			return nil

		case models.StatusFailed:
			missing = 0
			attempts++
			log.Error().Str("detail", st.Description).Int("attempt", attempts).Msg("job failed")
			d.notifyFailure(ctx, spec, st, attempts)
			if d.Retry.Exhausted(attempts) {
				return fmt.Errorf("%s on %s after %d attempts: %w", spec.Phase, host, attempts, ErrRetriesExhausted)
			}
			if err := d.Liveness.Wait(ctx, host); err != nil {
				return err
			}
			if err := d.clearStale(ctx, log, spec); err != nil {
				return err
			}
			armedAt = d.now()
			last = models.StatusWaiting
			d.record(spec.Phase, "Retry", fmt.Sprintf("attempt %d", attempts))
			if err := d.sleep(ctx, d.Retry.Delay(attempts)); err != nil {
				return wrapWait(spec, err)
			}

		case models.StatusInProgress, models.StatusWaiting, models.StatusRequirementsNotMet:
			missing = 0
			log.Info().Stringer("status", st.Code).Str("detail", st.Description).Msg("job pending")

		default:
			missing++
			log.Warn().Int("missing_polls", missing).Msg("no deployment status for host")
			if d.Timing.MaxMissingPolls > 0 && missing >= d.Timing.MaxMissingPolls {
				return fmt.Errorf("%s on %s after %d polls: %w", spec.Phase, host, missing, ErrStatusMissing)
			}
		}

		if err := d.sleep(ctx, d.Timing.PollInterval); err != nil {
			return wrapWait(spec, err)
		}
	}
}

func (d *Driver) notifyFailure(ctx context.Context, spec JobSpec, st models.DeploymentStatus, attempt int) {
	if d.Notifier == nil {
		return
	}
	subject := fmt.Sprintf("%s failed on %s", spec.Phase, spec.Device.Name)
	body := fmt.Sprintf("The %s task sequence (package %s, collection %s) reported failure on %s.\n\nStatus: %s\nAttempt: %d of %d\n",
		spec.Phase, spec.PackageID, spec.CollectionID, spec.Device.Name, st.Description, attempt, d.Retry.MaxAttempts+1)
	d.Notifier.Notify(ctx, subject, body)
}

func wrapWait(spec JobSpec, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s on %s timed out: %w", spec.Phase, spec.Device.Name, err)
	}
	return fmt.Errorf("%s on %s: %w", spec.Phase, spec.Device.Name, err)
}
