// Package poller observes server-owned jobs until every tracked entity
// reaches a terminal status.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/dsa-judge/dsactl/pkg/logging"
	"github.com/dsa-judge/dsactl/pkg/metrics"
	"github.com/dsa-judge/dsactl/pkg/models"
)

// DefaultPeriod is used when Config.Period is zero
const DefaultPeriod = 2 * time.Second

// State is the lifecycle state of a Poller
type State string

const (
	StateIdle    State = "IDLE"
	StatePolling State = "POLLING"
	StateStopped State = "STOPPED"
)

// Refetch loads the current copy of one entity
type Refetch[T models.Trackable] func(ctx context.Context, id int) (T, error)

// Ticker is the tick source driving a polling loop
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a Ticker with the given period
type TickerFactory func(period time.Duration) Ticker

type timeTicker struct {
	t *time.Ticker
}

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker is the TickerFactory backed by time.Ticker
func NewTimeTicker(period time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(period)}
}

// Config holds poller settings
type Config struct {
	Name      string        // label used in logs and metrics
	Period    time.Duration // time between ticks
	Logger    *logging.Logger
	Metrics   *metrics.PollerMetrics
	NewTicker TickerFactory
}

// Poller refetches every non-terminal tracked entity once per period and
// merges the results by id. The timer runs only while something is pending.
type Poller[T models.Trackable] struct {
	cfg     Config
	refetch Refetch[T]
	logger  *logging.Logger

	mu       sync.Mutex
	items    map[int]T
	order    []int
	state    State
	loopStop chan struct{}
	done     chan struct{}
	doneSet  bool
	updates  chan []T

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an idle poller
func New[T models.Trackable](cfg Config, refetch Refetch[T]) *Poller[T] {
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = NewTimeTicker
	}
	if cfg.Name == "" {
		cfg.Name = "poller"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Poller[T]{
		cfg:     cfg,
		refetch: refetch,
		logger:  logger.WithField("poller", cfg.Name),
		items:   make(map[int]T),
		state:   StateIdle,
		done:    make(chan struct{}),
		updates: make(chan []T, 1),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Track adds or replaces entities by id. Polling starts if any tracked
// entity is pending and no timer is active.
func (p *Poller[T]) Track(items ...T) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == StateStopped {
		return
	}
	for _, item := range items {
		p.mergeLocked(item)
	}

	pending := len(p.pendingLocked())
	p.cfg.Metrics.SetPending(p.cfg.Name, pending)
	p.publishLocked()

	switch {
	case pending > 0 && p.state == StateIdle:
		p.startLocked()
	case pending == 0 && p.state == StateIdle:
		p.markDoneLocked()
	case pending == 0 && p.state == StatePolling:
		close(p.loopStop)
		p.loopStop = nil
		p.state = StateIdle
		p.markDoneLocked()
		p.logger.Debug("nothing pending, polling idle")
	}
}

// Snapshot returns the tracked entities in the order they were first seen
func (p *Poller[T]) Snapshot() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

// Get returns the tracked copy of one entity
func (p *Poller[T]) Get(id int) (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.items[id]
	return item, ok
}

// State returns the current lifecycle state
func (p *Poller[T]) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Pending returns the ids that are not yet terminal
func (p *Poller[T]) Pending() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pendingLocked()
}

// Updates delivers the latest snapshot after each merge. Only the most
// recent snapshot is buffered. The channel is closed by Stop.
func (p *Poller[T]) Updates() <-chan []T {
	return p.updates
}

// Done is closed once nothing is pending or the poller is stopped.
// Tracking a new pending entity afterwards returns a fresh channel.
func (p *Poller[T]) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// Wait blocks until Done or ctx is cancelled
func (p *Poller[T]) Wait(ctx context.Context) error {
	select {
	case <-p.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop clears the timer, cancels in-flight refetches and discards their
// results. It is safe to call more than once.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	if p.state == StateStopped {
		p.mu.Unlock()
		return
	}
	wasPolling := p.state == StatePolling
	p.state = StateStopped
	if p.loopStop != nil {
		close(p.loopStop)
		p.loopStop = nil
	}
	p.cancel()
	p.markDoneLocked()
	close(p.updates)
	p.mu.Unlock()

	p.wg.Wait()
	if wasPolling {
		p.logger.Debug("polling stopped")
	}
}

func (p *Poller[T]) startLocked() {
	p.state = StatePolling
	if p.doneSet {
		p.done = make(chan struct{})
		p.doneSet = false
	}

	stop := make(chan struct{})
	p.loopStop = stop
	ticker := p.cfg.NewTicker(p.cfg.Period)

	p.wg.Add(1)
	go p.run(ticker, stop)
	p.logger.Debug("polling started", map[string]interface{}{"period": p.cfg.Period.String()})
}

func (p *Poller[T]) run(ticker Ticker, stop chan struct{}) {
	defer p.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			if !p.tick(stop) {
				return
			}
		}
	}
}

type outcome[T models.Trackable] struct {
	id   int
	item T
	err  error
}

// tick runs one refetch round and reports whether polling continues
func (p *Poller[T]) tick(stop chan struct{}) bool {
	p.mu.Lock()
	if p.state != StatePolling || p.loopStop != stop {
		p.mu.Unlock()
		return false
	}
	ids := p.pendingLocked()
	p.mu.Unlock()

	p.cfg.Metrics.RecordTick(p.cfg.Name, len(ids))

	results := make([]outcome[T], len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i, id int) {
			defer wg.Done()
			item, err := p.refetch(p.ctx, id)
			results[i] = outcome[T]{id: id, item: item, err: err}
		}(i, id)
	}
	wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StatePolling || p.loopStop != stop {
		return false
	}

	for _, r := range results {
		if r.err != nil {
			p.cfg.Metrics.RecordFailure(p.cfg.Name)
			p.logger.Warn("refetch failed, retrying next tick", map[string]interface{}{
				"id":    r.id,
				"error": r.err.Error(),
			})
			continue
		}
		p.mergeLocked(r.item)
	}

	pending := len(p.pendingLocked())
	p.cfg.Metrics.SetPending(p.cfg.Name, pending)

	if pending == 0 {
		p.state = StateIdle
		p.loopStop = nil
		p.publishLocked()
		p.markDoneLocked()
		p.logger.Debug("nothing pending, polling idle")
		return false
	}
	p.publishLocked()
	return true
}

func (p *Poller[T]) mergeLocked(item T) {
	id := item.TrackingID()
	prev, ok := p.items[id]
	if !ok {
		p.order = append(p.order, id)
	} else if err := models.ValidateObservation(prev, item); err != nil {
		p.logger.Warn("unexpected status transition", map[string]interface{}{"id": id, "error": err.Error()})
	}
	p.items[id] = item
}

func (p *Poller[T]) pendingLocked() []int {
	var ids []int
	for _, id := range p.order {
		if !p.items[id].IsTerminal() {
			ids = append(ids, id)
		}
	}
	return ids
}

func (p *Poller[T]) snapshotLocked() []T {
	out := make([]T, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, p.items[id])
	}
	return out
}

func (p *Poller[T]) markDoneLocked() {
	if !p.doneSet {
		close(p.done)
		p.doneSet = true
	}
}

// publishLocked replaces any unread snapshot with the current one
func (p *Poller[T]) publishLocked() {
	if p.state == StateStopped {
		return
	}
	snap := p.snapshotLocked()
	select {
	case p.updates <- snap:
	default:
		select {
		case <-p.updates:
		default:
		}
		p.updates <- snap
	}
}
