package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pricing-recovery/config"
	"pricing-recovery/models"
	"pricing-recovery/services"
	"pricing-recovery/storage"
	"pricing-recovery/utils"
)

type app struct {
	cfg    *config.Config
	fields *config.Fields
	logger *utils.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "recover",
		Short: "Recover offers missing between dated pricing snapshots",
		Long: `recover compares consecutive dated snapshots of scraped offers and
appends every offer absent from the reference snapshot to a per-site
missing dataset. Progress is checkpointed after every row.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.cfg = config.Load()
			a.logger = utils.NewLogger().SetLevel(a.cfg.LogLevel)

			fields, err := config.LoadFields(a.cfg.FieldsFile)
			if err != nil {
				return err
			}
			a.fields = fields
			return nil
		},
	}

	root.AddCommand(a.runCmd(), a.statusCmd(), a.sitesCmd())
	return root
}

func (a *app) runCmd() *cobra.Command {
	var sites []string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run or resume reconciliation for one or more sites",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx, sites)
		},
	}
	cmd.Flags().StringSliceVarP(&sites, "site", "s", []string{"maeva"}, "site to reconcile (repeatable)")
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	var sites []string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the checkpoint position of each site",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.status(cmd.Context(), sites)
		},
	}
	cmd.Flags().StringSliceVarP(&sites, "site", "s", []string{"maeva"}, "site to inspect (repeatable)")
	return cmd
}

func (a *app) sitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "List configured sites and their identity fields",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			for _, name := range a.fields.Names() {
				s, _ := a.fields.Site(name)
				fmt.Fprintf(out, "  %-12s identity: %s\n", name, strings.Join(s.Identity, ", "))
			}
		},
	}
}

func (a *app) run(ctx context.Context, sites []string) error {
	a.logger.Info("=== Missing offer recovery starting ===")
	a.logger.Info("Config: data: %s | order: %s | reset rows: %t | read faults: %s | concurrency: %d",
		a.cfg.DataDir, a.cfg.TraversalOrder, a.cfg.ResetRowIndex, a.cfg.ReadFaultPolicy, a.cfg.MaxConcurrency)

	var (
		mu        sync.Mutex
		summaries []*models.RunSummary
	)
	held := utils.NewSiteSet()
	pool := utils.NewWorkerPool(a.cfg.MaxConcurrency)

	for _, site := range sites {
		if !held.Acquire(site) {
			a.logger.Warn("[%s] Listed more than once, ignoring duplicate", site)
			continue
		}
		site := site
		pool.Submit(func() {
			defer held.Release(site)
			summary := a.runSite(ctx, site)
			mu.Lock()
			summaries = append(summaries, summary)
			mu.Unlock()
		})
	}
	pool.Wait()

	services.NewReportService(a.logger).Print(os.Stdout, summaries)

	var failed []string
	for _, s := range summaries {
		if s.Err != nil {
			failed = append(failed, s.Site)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("reconciliation failed for %s", strings.Join(failed, ", "))
	}
	a.logger.Info("All sites complete")
	return nil
}

func (a *app) runSite(ctx context.Context, site string) *models.RunSummary {
	fields, err := a.fields.Site(site)
	if err != nil {
		a.logger.Error("[%s] %v", site, err)
		return &models.RunSummary{Site: site, Err: err}
	}

	checkpoints := storage.NewFileCheckpointStore(a.checkpointPath(site), site,
		storage.DirSource{Root: a.cfg.DataDir}, a.cfg.Descending())

	var mirrors []storage.OfferSink
	if a.cfg.PostgresEnabled {
		pg, err := storage.NewPostgresMirror(ctx, a.cfg.DSN(), site, &utils.RetryConfig{
			MaxAttempts: a.cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      a.logger,
		})
		if err != nil {
			a.logger.Error("[%s] Failed to connect to PostgreSQL: %v", site, err)
			return &models.RunSummary{Site: site, Err: err}
		}
		mirrors = append(mirrors, pg)
	}
	sink := storage.NewMultiSink(a.logger, storage.NewMissingCSV(a.missingPath(site), a.logger), mirrors...)
	defer sink.Close()

	engine := services.NewReconciler(site, fields, checkpoints, storage.CSVSnapshotLoader{}, sink, a.logger,
		services.Options{
			ResetRowIndex:   a.cfg.ResetRowIndex,
			ReadFaultPolicy: a.cfg.ReadFaultPolicy,
			Progress:        a.progress,
		})

	summary, err := engine.Run(ctx)
	summary.Err = err
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		a.logger.Warn("[%s] Interrupted, progress saved in %s", site, checkpoints.Path())
	case errors.Is(err, storage.ErrStaleCheckpoint):
		a.logger.Error("[%s] %v", site, err)
		a.logger.Error("[%s] Snapshots changed since the checkpoint was created; remove or edit %s to continue",
			site, checkpoints.Path())
	default:
		a.logger.Error("[%s] %v", site, err)
	}
	return summary
}

func (a *app) progress(p models.Progress) {
	if !a.logger.DebugEnabled() {
		return
	}
	a.logger.Debug("[%s] pair %d/%d: %.2f %%", p.Site, p.FilePairIndex+1, p.TotalPairs, p.Percent())
}

func (a *app) status(ctx context.Context, sites []string) error {
	report := services.NewReportService(a.logger)

	for _, site := range sites {
		store := storage.NewFileCheckpointStore(a.checkpointPath(site), site,
			storage.DirSource{Root: a.cfg.DataDir}, a.cfg.Descending())

		cp, err := store.Peek()
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Printf("  Site          : %s\n  Position      : not started\n\n", site)
			continue
		}
		if err != nil {
			a.logger.Error("[%s] %v", site, err)
			return err
		}

		rows := 0
		if snap, err := storage.ReadSnapshot(a.missingPath(site)); err == nil {
			rows = snap.Len()
		} else if !errors.Is(err, storage.ErrSnapshotAbsent) {
			a.logger.Warn("[%s] Missing dataset unreadable: %v", site, err)
		}
		report.PrintCheckpoint(os.Stdout, site, cp, rows)

		if a.cfg.PostgresEnabled {
			a.printMirrorCount(ctx, site)
		}
		fmt.Println()
	}
	return nil
}

func (a *app) printMirrorCount(ctx context.Context, site string) {
	pg, err := storage.NewPostgresMirror(ctx, a.cfg.DSN(), site, &utils.RetryConfig{MaxAttempts: 1, Logger: a.logger})
	if err != nil {
		a.logger.Warn("[%s] PostgreSQL unavailable: %v", site, err)
		return
	}
	defer pg.Close()

	n, err := pg.Count()
	if err != nil {
		a.logger.Warn("[%s] %v", site, err)
		return
	}
	fmt.Printf("  Mirrored rows : %d\n", n)
}

func (a *app) missingPath(site string) string {
	return filepath.Join(a.cfg.OutputDir, site, "missing_"+site+".csv")
}

func (a *app) checkpointPath(site string) string {
	return filepath.Join(a.cfg.CheckpointDir, site, "log.json")
}
