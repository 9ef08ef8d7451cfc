package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rflorenc/profilemig/internal/api"
	"github.com/rflorenc/profilemig/internal/config"
	"github.com/rflorenc/profilemig/internal/history"
	"github.com/rflorenc/profilemig/internal/liveness"
	"github.com/rflorenc/profilemig/internal/logging"
	"github.com/rflorenc/profilemig/internal/migration"
	"github.com/rflorenc/profilemig/internal/models"
	"github.com/rflorenc/profilemig/internal/notify"
	"github.com/rflorenc/profilemig/internal/platform"
	"github.com/rflorenc/profilemig/internal/remote"
	"github.com/rflorenc/profilemig/internal/ui"
)

type migrateFlags struct {
	source string
	target string
	listen string
	logDir string
	dryRun bool
}

func migrateCmd(g *globalFlags) *cobra.Command {
	f := &migrateFlags{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Capture user state on the source machine and restore it on the target",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runMigrate(ctx, g, f)
		},
	}
	cmd.Flags().StringVarP(&f.source, "source", "s", "", "Computer name of the old machine")
	cmd.Flags().StringVarP(&f.target, "target", "t", "", "Computer name of the new machine")
	cmd.Flags().StringVar(&f.listen, "listen", "", "Serve run status on this address (e.g. :8080)")
	cmd.Flags().StringVar(&f.logDir, "log-dir", "", "Directory for the run transcript")
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "Resolve both machines and print the plan without changing anything")
	return cmd
}

func loadConfig(g *globalFlags, o config.Overrides) (config.Config, error) {
	if g.debug {
		o.LogLevel = "debug"
	}
	cfg, err := config.Load(g.configPath, o)
	if err != nil {
		return config.Config{}, precondition(err)
	}
	return cfg, nil
}

func askHosts(f *migrateFlags) error {
	var err error
	if f.source == "" {
		if f.source, err = ui.PromptHost("Source computer (old machine)", "use --source"); err != nil {
			return precondition(err)
		}
	}
	if f.target == "" {
		if f.target, err = ui.PromptHost("Target computer (new machine)", "use --target"); err != nil {
			return precondition(err)
		}
	}
	for _, h := range []string{f.source, f.target} {
		if err := ui.ValidateHost(h); err != nil {
			return precondition(err)
		}
	}
	return nil
}

func runMigrate(ctx context.Context, g *globalFlags, f *migrateFlags) error {
	cfg, err := loadConfig(g, config.Overrides{Listen: f.listen, LogDir: f.logDir})
	if err != nil {
		return err
	}
	if err := askHosts(f); err != nil {
		return err
	}

	logger, err := logging.Setup("profilemig", logging.Options{
		Level:   cfg.LogLevel,
		Dir:     cfg.LogDir,
		NoColor: !ui.IsInteractive(),
	})
	if err != nil {
		return precondition(err)
	}
	defer logger.Close()
	log := logger.Logger

	hist, err := history.Open(cfg.HistoryDB)
	if err != nil {
		return precondition(err)
	}
	defer hist.Close()

	site, err := cfg.SiteModel()
	if err != nil {
		return precondition(err)
	}
	plat := platform.NewPlatform(site)
	if err := checkSite(ctx, plat, site, log); err != nil {
		return precondition(err)
	}

	runs := models.NewRunStore()
	run := runs.Create(f.source, f.target)
	runLog := logging.RunSink(log, run.AppendLog).With().Str("run", run.ID).Logger()
	if err := hist.StartRun(ctx, run.ID, f.source, f.target); err != nil {
		log.Warn().Err(err).Msg("run history not recorded")
	}
	runLog.Info().Str("source", f.source).Str("target", f.target).Str("transcript", logger.Transcript).Msg("migration started")

	if cfg.Listen != "" {
		srv := &http.Server{
			Addr:    cfg.Listen,
			Handler: api.NewRouter(&api.Server{Runs: runs, History: hist, Version: version}),
		}
		go func() {
			log.Info().Str("addr", cfg.Listen).Msg("status server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("status server stopped")
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	m := newMigrator(ctx, cfg, plat, hist, run.ID, runLog)
	m.DryRun = f.dryRun
	plan, runErr := m.Run(ctx, run)

	snap := run.Snapshot()
	if err := hist.FinishRun(context.WithoutCancel(ctx), run.ID, snap.Status, snap.Error); err != nil {
		log.Warn().Err(err).Msg("run history not finalized")
	}
	printSummary(snap, plan, f.dryRun)

	if runErr != nil {
		if snap.Phase == models.PhaseResolve {
			return precondition(runErr)
		}
		return jobFailure(runErr)
	}
	return nil
}

// checkSite verifies the AdminService is reachable and accepts the
// credentials, then logs the detected site.
func checkSite(ctx context.Context, plat platform.Platform, site *models.Site, log zerolog.Logger) error {
	if err := plat.Ping(ctx); err != nil {
		return fmt.Errorf("AdminService at %s unreachable: %w", site.BaseURL(), err)
	}
	if site.Username == "" || site.Password == "" {
		return fmt.Errorf("no credentials configured for %s", site.Label())
	}
	log.Debug().Str("user", site.Username).Str("password", site.MaskedPassword()).Msg("authenticating")
	if err := plat.CheckAuth(ctx); err != nil {
		return fmt.Errorf("authenticating to %s: %w", site.Label(), err)
	}

	info, err := plat.DiscoverSite(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("site discovery failed")
		return nil
	}
	if site.Code != "" && info.SiteCode != site.Code {
		log.Warn().Str("configured", site.Code).Str("detected", info.SiteCode).Msg("site code mismatch")
	}
	if !platform.VersionAtLeast(info.Version, platform.MinAdminServiceVersion) {
		log.Warn().Str("version", info.Version).Str("minimum", platform.MinAdminServiceVersion).
			Msg("site version predates the AdminService routes used here")
	}
	log.Info().Str("site", info.SiteCode).Str("name", info.SiteName).Str("version", info.Version).Msg("connected to site")
	return nil
}

func newMigrator(ctx context.Context, cfg config.Config, plat platform.Platform, hist *history.Store, runID string, log zerolog.Logger) *migration.Migrator {
	gate := &liveness.Gate{
		Prober:   liveness.NewProber(cfg.Liveness.Probe, cfg.Liveness.TCPPort, cfg.Liveness.Timeout, cfg.Liveness.Privileged),
		Interval: cfg.Timing.LivenessInterval,
		Timeout:  cfg.Timing.LivenessTimeout,
		Log:      log,
	}
	cleaner := remote.NewManager(remote.NewWinRMExecutor(remote.WinRMOptions{
		Port:     cfg.WinRM.Port,
		HTTPS:    cfg.WinRM.HTTPS,
		Insecure: cfg.WinRM.Insecure,
		Username: cfg.WinRM.Username,
		Password: cfg.WinRM.Password,
		Timeout:  cfg.WinRM.Timeout,
	}))
	notifier := notify.Logged{Next: newNotifier(cfg), Log: log}

	driver := &migration.Driver{
		Site:     plat,
		Cleaner:  cleaner,
		Liveness: gate,
		Notifier: notifier,
		Timing: migration.Timing{
			PollInterval:    cfg.Timing.PollInterval,
			InitialGrace:    cfg.Timing.InitialGrace,
			StaleSettle:     cfg.Timing.StaleSettle,
			JobTimeout:      cfg.Timing.JobTimeout,
			MaxMissingPolls: cfg.Timing.MaxMissingPolls,
		},
		Retry: migration.RetryPolicy{
			MaxAttempts:  cfg.Retry.MaxAttempts,
			InitialDelay: cfg.Retry.InitialDelay,
			Multiplier:   cfg.Retry.Multiplier,
			MaxDelay:     cfg.Retry.MaxDelay,
		},
		Service: cfg.WinRM.Service,
		Log:     log,
		Record:  migration.RecordFunc(ctx, hist, runID, log),
	}

	return &migration.Migrator{
		Pairing: &migration.Pairing{
			Site:     plat,
			Liveness: gate,
			Behavior: cfg.BehaviorFlag(),
			Log:      log,
		},
		Driver:   driver,
		Notifier: notifier,
		Recorder: hist,
		Capture:  migration.Target{CollectionID: cfg.Capture.CollectionID, PackageID: cfg.Capture.PackageID},
		Restore:  migration.Target{CollectionID: cfg.Restore.CollectionID, PackageID: cfg.Restore.PackageID},
		Log:      log,
		Inspect:  cleaner,
		Service:  cfg.WinRM.Service,
	}
}

func newNotifier(cfg config.Config) notify.Notifier {
	if cfg.Mail.Server == "" {
		return notify.Discard{}
	}
	return notify.NewMailer(notify.MailOptions{
		Server:        cfg.Mail.Server,
		Port:          cfg.Mail.Port,
		From:          cfg.Mail.From,
		To:            cfg.Mail.To,
		SubjectPrefix: cfg.Mail.SubjectPrefix,
		Username:      cfg.Mail.Username,
		Password:      cfg.Mail.Password,
		StartTLS:      cfg.Mail.StartTLS,
	})
}

func printSummary(snap models.RunSnapshot, plan *migration.Plan, dryRun bool) {
	pairs := []ui.Pair{
		ui.KV("run", snap.ID),
		ui.KV("source", snap.SourceHost),
		ui.KV("target", snap.TargetHost),
		ui.KV("status", ui.Status(snap.Status)),
	}
	if plan != nil {
		pairs = append(pairs,
			ui.KV("behavior", plan.Pair.Behavior.String()),
			ui.KV("capture", plan.Capture.CollectionID+" / "+plan.Capture.PackageID),
			ui.KV("restore", plan.Restore.CollectionID+" / "+plan.Restore.PackageID),
		)
	}
	if plan != nil {
		for _, c := range plan.Checks {
			state := fmt.Sprintf("%d stale entries for %s, agent %s", c.StaleEntries, c.PackageID, c.ServiceState)
			if c.Err != "" {
				state = ui.WarnMsg("%s", c.Err)
			}
			pairs = append(pairs, ui.KV(c.Host, state))
		}
	}
	if snap.Error != "" {
		pairs = append(pairs, ui.KV("error", snap.Error))
	}
	fmt.Fprintln(os.Stderr)
	if dryRun && snap.Error == "" {
		fmt.Fprintln(os.Stderr, ui.WarnMsg("dry run: nothing was changed"))
	}
	fmt.Fprint(os.Stderr, ui.KeyValues("  ", pairs...))
}
