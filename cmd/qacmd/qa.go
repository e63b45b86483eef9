// Package qacmd implements the QA auditor command, one-shot or scheduled.
package qacmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/analyst/cmd/common"
	"github.com/jonesrussell/analyst/internal/qa"
	"github.com/jonesrussell/analyst/internal/tracker"
)

// Command returns the qa subcommand.
func Command() *cobra.Command {
	var (
		once     bool
		schedule string
	)

	cmd := &cobra.Command{
		Use:   "qa",
		Short: "Audit random unreviewed tracker events",
		Long: `Samples one unreviewed provenance event, reconstructs the referenced
graph state and judges the recorded decision. Failed audits produce a
markdown report and bump the daily failure counter. Runs on a cron schedule
unless --once is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), once, schedule)
		},
	}

	cmd.Flags().BoolVar(&once, "once", false, "audit a single event and exit")
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron schedule (default from config)")
	return cmd
}

func run(ctx context.Context, once bool, schedule string) error {
	cfg, log, err := common.Bootstrap()
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	store, err := common.OpenLocal(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	client, err := common.NewLLM(cfg, log)
	if err != nil {
		return err
	}

	auditor := qa.NewAuditor(store, common.NewTracker(cfg, log), client, cfg.QA, nil, log)

	if once {
		j, err := auditor.AuditOne(ctx)
		if errors.Is(err, tracker.ErrNoEvents) {
			fmt.Println("no unreviewed events")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s %s/%s: %s\n", j.Verdict, j.Event.Type, j.Event.ID, j.Motivation)
		if j.ReportPath != "" {
			fmt.Printf("report: %s\n", j.ReportPath)
		}
		return nil
	}

	if schedule == "" {
		schedule = cfg.QA.Schedule
	}
	runner := qa.NewRunner(auditor, log)
	if err := runner.Start(schedule); err != nil {
		return err
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	runner.Stop()
	return nil
}
