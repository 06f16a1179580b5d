// Package refresh runs periodic maintenance on a cron schedule: prefetching
// calendar subscriptions and evicting stale generation results.
package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	appLog "daylife/internal/log"
)

// Target is the work done on every tick.
type Target interface {
	RefreshSubscriptions(ctx context.Context) (int, error)
	SweepExpired() int
}

// Job runs Target on a cron schedule.
type Job struct {
	spec    string
	target  Target
	timeout time.Duration
	cron    *cron.Cron
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New validates spec (five fields or a descriptor such as "@every 5m") and
// returns a Job. Each tick is bounded by timeout.
func New(spec string, target Target, timeout time.Duration) (*Job, error) {
	if _, err := parser.Parse(spec); err != nil {
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	if timeout <= 0 {
		timeout = time.Minute
	}
	logger := cronLogger{}
	return &Job{
		spec:    spec,
		target:  target,
		timeout: timeout,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
	}, nil
}

// RunOnce performs one refresh.
func (j *Job) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	swept := j.target.SweepExpired()
	n, err := j.target.RefreshSubscriptions(ctx)
	if err != nil {
		appLog.Error("refresh: some subscriptions failed", err, "ok", n, "swept", swept)
		return
	}
	appLog.Debug("refresh: completed", "ok", n, "swept", swept)
}

// Run refreshes once immediately, then on every tick until ctx is done.
func (j *Job) Run(ctx context.Context) error {
	if _, err := j.cron.AddFunc(j.spec, func() { j.RunOnce(ctx) }); err != nil {
		return err
	}
	appLog.Info("refresh job started", "schedule", j.spec)

	j.RunOnce(ctx)
	j.cron.Start()
	<-ctx.Done()

	<-j.cron.Stop().Done()
	appLog.Info("refresh job stopped")
	return nil
}

// cronLogger routes cron's own messages to the application log.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	appLog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	appLog.Error("cron: "+msg, err, keysAndValues...)
}
