package appointment

import (
	"context"
	"time"

	"github.com/hackgods/doctor-scheduling/pkg/logging"
)

// Reconciler periodically finishes reschedules left pending by a failed
// phase two and reopens slots whose release never landed.
type Reconciler struct {
	ledger   *Ledger
	interval time.Duration
	timeout  time.Duration
	logger   *logging.Logger
}

func NewReconciler(ledger *Ledger, interval time.Duration, logger *logging.Logger) *Reconciler {
	if logger == nil {
		logger = logging.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Reconciler{
		ledger:   ledger,
		interval: interval,
		timeout:  20 * time.Second,
		logger:   logger.With("reconciler"),
	}
}

// Run reconciles once immediately and then on every tick until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	r.RunOnce(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info().Msg("stopping reconciler")
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

func (r *Reconciler) RunOnce(ctx context.Context) int {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	fixed, err := r.ledger.ReconcileReschedules(runCtx)
	if err != nil {
		r.logger.Error().Err(err).Msg("reconcile run failed")
	}
	released, err := r.ledger.ReleaseOrphanedSlots(runCtx)
	if err != nil {
		r.logger.Error().Err(err).Msg("orphaned slot sweep failed")
	}
	r.logger.Debug().
		Int("fixed", fixed).
		Int("released", released).
		Dur("duration", time.Since(start)).
		Msg("reconcile run complete")
	return fixed + released
}
