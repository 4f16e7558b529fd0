// Package workerpool implements a simple goroutine-based workerpool with a
// configurable number of workers.
package workerpool

import (
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/eapache/channels"

	"github.com/oasisprotocol/block-orderer/common/logging"
)

const (
	defaultMinBackoffTimeout = 1 * time.Second
	defaultMaxBackoffTimeout = 30 * time.Second
)

// BackoffConfig contains the backoff configuration for failed jobs.
type BackoffConfig struct {
	// MinTimeout is the minimum backoff timeout.
	MinTimeout time.Duration

	// MaxTimeout is the maximum backoff timeout.
	MaxTimeout time.Duration
}

// PoolConfig contains the worker pool configuration.
type PoolConfig struct {
	// Backoff is the backoff configuration for failed jobs.  If nil,
	// default backoff parameters are used.
	Backoff *BackoffConfig
}

type poolBackoff struct {
	sync.Mutex

	ebo     *backoff.ExponentialBackOff
	timeout time.Duration
}

// Timeout returns the current backoff timeout.
func (b *poolBackoff) Timeout() time.Duration {
	b.Lock()
	defer b.Unlock()
	return b.timeout
}

func (b *poolBackoff) Failure() {
	b.Lock()
	defer b.Unlock()
	b.timeout = b.ebo.NextBackOff()
}

func (b *poolBackoff) Success() {
	b.Lock()
	defer b.Unlock()
	b.ebo.Reset()
	b.timeout = 0
}

func newPoolBackoff(cfg *BackoffConfig) *poolBackoff {
	ebo := backoff.NewExponentialBackOff()
	ebo.InitialInterval = cfg.MinTimeout
	ebo.MaxInterval = cfg.MaxTimeout
	ebo.MaxElapsedTime = 0
	ebo.Reset()

	return &poolBackoff{ebo: ebo}
}

type job struct {
	fn     func() error
	result chan error
}

// Pool is a pool of goroutine workers.
//
// Notes: The pool is always created with zero workers, a call to Resize is
// needed for it to start processing jobs.
type Pool struct {
	sync.Mutex

	name    string
	backoff *poolBackoff

	jobCh   *channels.InfiniteChannel
	workers []chan struct{}

	stopped  bool
	stopOnce sync.Once
	quitCh   chan struct{}

	logger *logging.Logger
}

// Name returns the name of the pool.
func (p *Pool) Name() string {
	return p.name
}

// Size returns the current number of workers in the pool.
func (p *Pool) Size() uint {
	p.Lock()
	defer p.Unlock()
	return uint(len(p.workers))
}

// Resize sets the number of parallel goroutine workers to the given value.
func (p *Pool) Resize(newSize uint) {
	p.Lock()
	defer p.Unlock()

	if p.stopped {
		return
	}

	switch {
	case newSize > uint(len(p.workers)):
		for uint(len(p.workers)) < newSize {
			stopCh := make(chan struct{})
			p.workers = append(p.workers, stopCh)
			go p.worker(stopCh)
		}
	case newSize < uint(len(p.workers)):
		for uint(len(p.workers)) > newSize {
			stopCh := p.workers[len(p.workers)-1]
			p.workers = p.workers[:len(p.workers)-1]
			close(stopCh)
		}
	}
}

// Submit adds a new job to the pool's queue and returns a channel that will
// produce the job's result once the job is done.
func (p *Pool) Submit(fn func() error) <-chan error {
	result := make(chan error, 1)

	p.Lock()
	defer p.Unlock()

	if p.stopped {
		result <- fmt.Errorf("workerpool/%s: pool has been stopped", p.name)
		return result
	}
	p.jobCh.In() <- &job{
		fn:     fn,
		result: result,
	}

	return result
}

// Stop causes all workers in the pool to stop and the job queue to be
// discarded.  The pool must not be used for any further jobs afterwards.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.Lock()
		defer p.Unlock()

		p.stopped = true
		close(p.quitCh)
		p.jobCh.Close()
		p.workers = nil
	})
}

// Quit returns a channel that will be closed when the pool stops.
func (p *Pool) Quit() <-chan struct{} {
	return p.quitCh
}

func (p *Pool) worker(stopCh chan struct{}) {
	for {
		// Apply the backoff in effect before accepting new work.
		if timeout := p.backoff.Timeout(); timeout > 0 {
			select {
			case <-time.After(timeout):
			case <-stopCh:
				return
			case <-p.quitCh:
				return
			}
		}

		select {
		case item, ok := <-p.jobCh.Out():
			if !ok {
				return
			}
			j := item.(*job)

			err := j.fn()
			if err != nil {
				p.backoff.Failure()
				p.logger.Warn("pool job failed",
					"err", err,
					"backoff", p.backoff.Timeout(),
				)
			} else {
				p.backoff.Success()
			}
			j.result <- err
		case <-stopCh:
			return
		case <-p.quitCh:
			return
		}
	}
}

// New creates and returns a new worker pool with the given name and
// configuration.  A nil configuration uses defaults for all parameters.
func New(name string, cfg *PoolConfig) *Pool {
	boCfg := &BackoffConfig{
		MinTimeout: defaultMinBackoffTimeout,
		MaxTimeout: defaultMaxBackoffTimeout,
	}
	if cfg != nil && cfg.Backoff != nil {
		boCfg = cfg.Backoff
	}

	return &Pool{
		name:    name,
		backoff: newPoolBackoff(boCfg),
		jobCh:   channels.NewInfiniteChannel(),
		quitCh:  make(chan struct{}),
		logger:  logging.GetLogger("workerpool/" + name),
	}
}
