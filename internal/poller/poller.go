// Package poller periodically fetches the job snapshot while live stats are on.
package poller

import (
	"context"
	"sync"
	"time"

	"go-modpanel/internal/models"

	log "github.com/sirupsen/logrus"
)

// State of the poller.
type State int

const (
	Idle   State = iota // polling disabled
	Active              // polling on a fixed period
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Fetcher returns the current job snapshot.
type Fetcher interface {
	Status(ctx context.Context) (models.Snapshot, error)
}

// Poller issues one status request per tick, each in its own goroutine.
// Requests may overlap and results are applied in completion order.
type Poller struct {
	fetch Fetcher
	apply func(models.Snapshot)
	fail  func(error)

	mu       sync.Mutex
	live     bool
	interval time.Duration

	changed  chan struct{}
	inflight sync.WaitGroup
}

// New creates a poller. apply is called with every successfully fetched
// snapshot and must be safe to call from multiple goroutines.
func New(fetch Fetcher, apply func(models.Snapshot), liveStats bool, intervalSec float64) *Poller {
	return &Poller{
		fetch:    fetch,
		apply:    apply,
		live:     liveStats,
		interval: seconds(intervalSec),
		changed:  make(chan struct{}, 1),
	}
}

// OnError sets a callback for failed polls. It runs on the polling goroutine
// after the failure is logged and must be set before Run.
func (p *Poller) OnError(fail func(error)) {
	p.fail = fail
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// Configure updates the live-stats switch and the period. A running Run loop
// restarts its timer with the new settings.
func (p *Poller) Configure(liveStats bool, intervalSec float64) {
	p.mu.Lock()
	p.live = liveStats
	p.interval = seconds(intervalSec)
	p.mu.Unlock()

	select {
	case p.changed <- struct{}{}:
	default:
	}
}

// State reports Active when live stats are on with a positive interval.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *Poller) stateLocked() State {
	if p.live && p.interval > 0 {
		return Active
	}
	return Idle
}

func (p *Poller) period() (time.Duration, State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval, p.stateLocked()
}

// Run polls until ctx is cancelled. It waits for in-flight requests before
// returning.
func (p *Poller) Run(ctx context.Context) {
	var ticker *time.Ticker
	var tick <-chan time.Time

	reset := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
		d, state := p.period()
		if state == Active {
			ticker = time.NewTicker(d)
			tick = ticker.C
			log.Debugf("Poller active, every %v", d)
		} else {
			log.Debug("Poller idle")
		}
	}
	reset()

	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
		p.inflight.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.changed:
			reset()
		case <-tick:
			p.inflight.Add(1)
			go p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	defer p.inflight.Done()
	s, err := p.fetch.Status(ctx)
	if err != nil {
		log.WithError(err).Debug("Status poll failed")
		if p.fail != nil && ctx.Err() == nil {
			p.fail(err)
		}
		return
	}
	if ctx.Err() != nil {
		return
	}
	p.apply(s)
}
