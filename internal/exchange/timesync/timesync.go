// Package timesync runs a low-frequency cron job that checks an exchange's
// server time against the local clock, logging a warning when skew grows
// large enough to risk tripping an exchange's request-timestamp window.
package timesync

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/purefinance/mmb/internal/logging"
)

// ServerTimeFunc returns an exchange's current server time.
type ServerTimeFunc func(ctx context.Context) (time.Time, error)

// Job periodically compares local time against an exchange's server time.
type Job struct {
	name       string
	getTime    ServerTimeFunc
	logger     logging.Logger
	maxSkew    time.Duration
	cronEngine *cron.Cron
}

// New builds a Job. The schedule is given later to Run as a standard
// 5-field cron expression: this package runs robfig/cron in its default
// (minute-resolution) mode, without a seconds field, so "*/5 * * * *"
// checks every five minutes.
func New(name string, getTime ServerTimeFunc, maxSkew time.Duration, logger logging.Logger) *Job {
	return &Job{
		name:       name,
		getTime:    getTime,
		logger:     logger,
		maxSkew:    maxSkew,
		cronEngine: cron.New(),
	}
}

// Run schedules the skew check at spec and blocks until ctx is canceled.
func (j *Job) Run(ctx context.Context, spec string) error {
	_, err := j.cronEngine.AddFunc(spec, func() {
		j.check(ctx)
	})
	if err != nil {
		return err
	}
	j.cronEngine.Start()
	defer j.cronEngine.Stop()

	<-ctx.Done()
	return ctx.Err()
}

func (j *Job) check(ctx context.Context) {
	serverTime, err := j.getTime(ctx)
	if err != nil {
		j.logger.Warn("server time check failed", "exchange", j.name, "error", err)
		return
	}
	skew := time.Since(serverTime)
	if skew < 0 {
		skew = -skew
	}
	if skew > j.maxSkew {
		j.logger.Warn("clock skew exceeds threshold", "exchange", j.name, "skew", skew.String())
	}
}
