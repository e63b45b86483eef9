// Package synccmd implements the replica reconciliation command.
package synccmd

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/analyst/cmd/common"
	"github.com/jonesrussell/analyst/internal/sync"
)

// Command returns the sync subcommand.
func Command() *cobra.Command {
	var (
		dryRun       bool
		full         bool
		catchUp      bool
		articlesOnly bool
		graphOnly    bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the local replica against the cloud replica",
		Long: `Diffs both graph replicas by identifier. One-sided entities are
copied across; conflicting entities are overwritten with the cloud version,
which is the single source of truth. Per-entity failures are reported and
skipped; the exit code is non-zero if any entity failed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, err := pickMode(dryRun, full, catchUp)
			if err != nil {
				return err
			}
			entities, err := pickEntities(articlesOnly, graphOnly)
			if err != nil {
				return err
			}
			return run(cmd, mode, entities)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute and print the diff without writing")
	cmd.Flags().BoolVar(&full, "sync", false, "reconcile every entity on both replicas")
	cmd.Flags().BoolVar(&catchUp, "catch-up", false, "reconcile only entities changed since the last run")
	cmd.Flags().BoolVar(&articlesOnly, "articles-only", false, "content units only")
	cmd.Flags().BoolVar(&graphOnly, "graph-only", false, "topics and edges only")
	return cmd
}

func pickMode(dryRun, full, catchUp bool) (sync.Mode, error) {
	set := 0
	for _, b := range []bool{dryRun, full, catchUp} {
		if b {
			set++
		}
	}
	switch {
	case set > 1:
		return "", errors.New("--dry-run, --sync and --catch-up are mutually exclusive")
	case dryRun:
		return sync.ModeDryRun, nil
	case catchUp:
		return sync.ModeCatchUp, nil
	default:
		return sync.ModeFull, nil
	}
}

func pickEntities(articlesOnly, graphOnly bool) (sync.EntityFilter, error) {
	switch {
	case articlesOnly && graphOnly:
		return "", errors.New("--articles-only and --graph-only are mutually exclusive")
	case articlesOnly:
		return sync.EntitiesUnitsOnly, nil
	case graphOnly:
		return sync.EntitiesGraphOnly, nil
	default:
		return sync.EntitiesAll, nil
	}
}

func run(cmd *cobra.Command, mode sync.Mode, entities sync.EntityFilter) error {
	cfg, log, err := common.Bootstrap()
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	local, err := common.OpenLocal(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		_ = local.Close()
	}()

	cloud, err := common.OpenCloud(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		_ = cloud.Close()
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reconciler := sync.NewReconciler(local, cloud, common.NewTracker(cfg, log), cfg.Sync, nil, log)
	report, err := reconciler.Reconcile(ctx, sync.Options{Mode: mode, Entities: entities})
	if err != nil {
		return err
	}

	fmt.Print(report.String())
	if n := report.Failed(); n > 0 {
		return fmt.Errorf("sync finished with %d entity failures", n)
	}
	return nil
}
