// ABOUTME: Periodic jobs: router sweep, cleanup pass, agent presence sweep
// ABOUTME: Cron entries run under recover + skip-if-still-running chains

package desk

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// cronLogger adapts slog to the cron.Logger interface. Routine scheduler
// chatter lands at debug; recovered panics and scheduling errors at error.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

// newScheduler builds the cron with the three periodic jobs registered.
// Intervals come from the config and are fixed for the process lifetime.
func (d *Desk) newScheduler(logger *slog.Logger) *cron.Cron {
	cl := cronLogger{logger: logger.With("component", "jobs")}
	c := cron.New(cron.WithChain(
		cron.Recover(cl),
		cron.SkipIfStillRunning(cl),
	))

	// Each job gets a fresh background context: cron has no per-run
	// context, and the jobs bound their own store writes.
	mustAdd(c, fmt.Sprintf("@every %s", d.cfg.Routing.SweepInterval), func() {
		if assigned := d.router.Sweep(context.Background()); assigned > 0 {
			d.logger.Debug("assignment sweep finished", "assigned", assigned)
		}
	})

	mustAdd(c, fmt.Sprintf("@every %s", d.cfg.Routing.CleanupInterval), func() {
		ctx := context.Background()
		closed := d.router.CloseIdle(ctx)
		purged := d.router.PurgeClosed(ctx)
		if closed > 0 || purged > 0 {
			d.logger.Info("cleanup pass finished", "closed", closed, "purged", purged)
		}
	})

	mustAdd(c, fmt.Sprintf("@every %s", d.cfg.Presence.SweepInterval), func() {
		if stale := d.chat.SweepStaleAgents(context.Background(), d.cfg.Presence.HeartbeatTimeout); stale > 0 {
			d.logger.Info("presence sweep finished", "stale_agents", stale)
		}
	})

	return c
}

// mustAdd registers a cron entry. The specs are built from validated
// durations, so a failure here is a programming error.
func mustAdd(c *cron.Cron, spec string, job func()) {
	if _, err := c.AddFunc(spec, job); err != nil {
		panic(fmt.Sprintf("registering cron job %q: %v", spec, err))
	}
}
