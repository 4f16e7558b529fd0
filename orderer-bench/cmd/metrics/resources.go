package metrics

import (
	"time"

	"github.com/oasisprotocol/block-orderer/common/service"
)

// ResourceCollector is a collector of resource usage metrics.
type ResourceCollector interface {
	// Name returns the name of the resource collector.
	Name() string

	// Update updates the resource metrics.
	Update() error
}

type resourceService struct {
	service.BaseBackgroundService

	interval   time.Duration
	collectors []ResourceCollector

	stopCh chan struct{}
}

func (rs *resourceService) Start() error {
	go rs.worker()
	return nil
}

func (rs *resourceService) Stop() {
	close(rs.stopCh)
}

func (rs *resourceService) worker() {
	defer rs.Terminate()

	t := time.NewTicker(rs.interval)
	defer t.Stop()

	for {
		select {
		case <-rs.stopCh:
			return
		case <-t.C:
		}

		rs.update()
	}
}

func (rs *resourceService) update() {
	for _, c := range rs.collectors {
		if err := c.Update(); err != nil {
			rs.Logger.Warn("resource collector failed",
				"collector", c.Name(),
				"err", err,
			)
		}
	}
}

func newResourceService(interval time.Duration) *resourceService {
	rs := &resourceService{
		BaseBackgroundService: *service.NewBaseBackgroundService("metrics/resources"),
		interval:              interval,
		stopCh:                make(chan struct{}),
	}

	if c, err := newCPUCollector(); err == nil {
		rs.collectors = append(rs.collectors, c)
	} else {
		rs.Logger.Warn("cpu collector unavailable",
			"err", err,
		)
	}

	// Sample once on startup so short runs report something.
	rs.update()

	return rs
}
