package registry

import (
	"context"
	"errors"
	"time"

	"github.com/procyon-projects/chrono"
)

var ErrInvalidInterval = errors.New("invalid_refresh_interval")

/**
* Refresher periodically reloads the registry from its repository. Required if multiple instances
* share one database, since every instance only sees its own writes otherwise.
 */
type Refresher struct {
	registry  *Registry
	timeout   time.Duration
	scheduler chrono.TaskScheduler
	task      chrono.ScheduledTask
}

func StartRefresher(registry *Registry, interval time.Duration) (refresher *Refresher, err error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	refresher = &Refresher{registry: registry, timeout: interval, scheduler: chrono.NewDefaultTaskScheduler()}

	refresher.task, err = refresher.scheduler.ScheduleAtFixedRate(refresher.refresh, interval)
	if err != nil {
		refresher.scheduler.Shutdown()
		return nil, err
	}
	logger.Infof("Reload the registry every %v.", interval)
	return refresher, nil
}

func (rf *Refresher) refresh(ctx context.Context) {
	// bounded by the interval
	ctx, cancel := context.WithTimeout(ctx, rf.timeout)
	defer cancel()

	if err := rf.registry.Load(ctx); err != nil {
		logger.Warnf("Was not able to reload the registry. Err: %v", err)
	}
}

func (rf *Refresher) Stop() {
	rf.task.Cancel()
	<-rf.scheduler.Shutdown()
	logger.Info("Stopped reloading the registry.")
}
