package qa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jonesrussell/analyst/internal/logger"
	"github.com/jonesrussell/analyst/internal/tracker"
)

// auditTimeout bounds one scheduled audit, LLM call included.
const auditTimeout = 5 * time.Minute

// Runner drives the auditor on a cron schedule. It shares nothing with the
// ingestion or analysis pipelines beyond the tracker directory; a failing
// audit is logged and the next tick starts fresh.
type Runner struct {
	auditor *Auditor
	cron    *cron.Cron
	logger  logger.Logger
}

// NewRunner wraps an auditor in a cron loop.
func NewRunner(auditor *Auditor, log logger.Logger) *Runner {
	return &Runner{
		auditor: auditor,
		cron:    cron.New(),
		logger:  log,
	}
}

// Start registers the schedule and begins ticking in the background.
func (r *Runner) Start(schedule string) error {
	if _, err := r.cron.AddFunc(schedule, r.tick); err != nil {
		return fmt.Errorf("qa: bad schedule %q: %w", schedule, err)
	}
	r.cron.Start()
	r.logger.Info("qa auditor scheduled", logger.String("schedule", schedule))
	return nil
}

// Stop halts the schedule and waits for an in-flight audit to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	r.logger.Info("qa auditor stopped")
}

func (r *Runner) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), auditTimeout)
	defer cancel()

	if _, err := r.auditor.AuditOne(ctx); err != nil {
		if errors.Is(err, tracker.ErrNoEvents) {
			r.logger.Debug("no unreviewed events to audit")
			return
		}
		// Never propagated: the event stays unreviewed and a later tick
		// retries it.
		r.logger.Error("audit failed", logger.Error(err))
	}
}
