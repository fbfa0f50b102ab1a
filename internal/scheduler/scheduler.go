// Package scheduler reloads the dashboard snapshot on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/dss-dashboard/backend/internal/snapshot"
	"github.com/dss-dashboard/backend/pkg/logger"
)

type Refresher interface {
	Refresh(ctx context.Context) (*snapshot.Snapshot, error)
}

type Scheduler struct {
	cron      *cron.Cron
	refresher Refresher
	timeout   time.Duration
	spec      string
}

// parser accepts standard 5-field expressions and descriptors such as "@every 15m".
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

func New(spec string, r Refresher, timeout time.Duration) (*Scheduler, error) {
	if timeout <= 0 {
		timeout = time.Minute
	}
	s := &Scheduler{
		refresher: r,
		timeout:   timeout,
		spec:      spec,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
	}
	if _, err := s.cron.AddFunc(spec, func() { _ = s.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("failed to parse refresh schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Info("Snapshot refresh scheduled", zap.String("spec", s.spec))
}

// Stop halts the schedule and waits for a running refresh to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// RunOnce refreshes now. A failed refresh leaves the previous snapshot serving.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	snap, err := s.refresher.Refresh(ctx)
	if err != nil {
		logger.Error("Scheduled snapshot refresh failed", zap.Error(err))
		return err
	}
	logger.Debug("Scheduled snapshot refresh done", zap.String("hash", snap.Hash))
	return nil
}

// Next reports when the next refresh will run.
func (s *Scheduler) Next(from time.Time) (time.Time, error) {
	sched, err := parser.Parse(s.spec)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}
