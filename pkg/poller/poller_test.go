package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsa-judge/dsactl/pkg/metrics"
	"github.com/dsa-judge/dsactl/pkg/models"
)

type fakeTicker struct {
	c       chan time.Time
	stopped atomic.Bool
}

func (t *fakeTicker) C() <-chan time.Time { return t.c }
func (t *fakeTicker) Stop()               { t.stopped.Store(true) }

type fakeClock struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (f *fakeClock) NewTicker(time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{c: make(chan time.Time, 1)}
	f.tickers = append(f.tickers, t)
	return t
}

func (f *fakeClock) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}

func (f *fakeClock) last() *fakeTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tickers[len(f.tickers)-1]
}

// fakeBatches serves scripted responses per id; the last one repeats
type fakeBatches struct {
	mu        sync.Mutex
	responses map[int][]models.BatchSubmission
	errs      map[int]error
	calls     map[int]int
}

func newFakeBatches() *fakeBatches {
	return &fakeBatches{
		responses: make(map[int][]models.BatchSubmission),
		errs:      make(map[int]error),
		calls:     make(map[int]int),
	}
}

func (f *fakeBatches) refetch(ctx context.Context, id int) (models.BatchSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[id]++
	if err := f.errs[id]; err != nil {
		return models.BatchSubmission{}, err
	}
	queue := f.responses[id]
	resp := queue[0]
	if len(queue) > 1 {
		f.responses[id] = queue[1:]
	}
	return resp, nil
}

func (f *fakeBatches) callCount(id int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func batch(id, complete, total int, status models.JobStatus) models.BatchSubmission {
	return models.BatchSubmission{ID: id, CompleteJudge: complete, TotalJudge: total, Status: status}
}

func newTestPoller(clock *fakeClock, refetch Refetch[models.BatchSubmission]) *Poller[models.BatchSubmission] {
	return New(Config{Name: "batches", Period: 3 * time.Second, NewTicker: clock.NewTicker}, refetch)
}

func nextUpdate(t *testing.T, p *Poller[models.BatchSubmission]) []models.BatchSubmission {
	t.Helper()
	select {
	case snap := <-p.Updates():
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for poller update")
		return nil
	}
}

func TestPoller_NoTimerWithoutPendingEntities(t *testing.T) {
	clock := &fakeClock{}
	p := newTestPoller(clock, newFakeBatches().refetch)
	defer p.Stop()

	p.Track(batch(1, 5, 5, models.JobStatusDone), batch(2, 2, 2, models.JobStatusDone))

	assert.Equal(t, StateIdle, p.State())
	assert.Equal(t, 0, clock.count())
	assert.Empty(t, p.Pending())
	select {
	case <-p.Done():
	default:
		t.Error("Expected Done to be closed when nothing is pending")
	}
}

func TestPoller_BatchScenario(t *testing.T) {
	clock := &fakeClock{}
	batches := newFakeBatches()
	batches.responses[1] = []models.BatchSubmission{
		batch(1, 4, 5, models.JobStatusRunning),
		batch(1, 5, 5, models.JobStatusDone),
	}

	p := newTestPoller(clock, batches.refetch)
	defer p.Stop()

	p.Track(batch(1, 3, 5, models.JobStatusRunning), batch(2, 5, 5, models.JobStatusDone))
	nextUpdate(t, p)

	require.Equal(t, StatePolling, p.State())
	require.Equal(t, 1, clock.count())
	assert.Equal(t, []int{1}, p.Pending())

	ticker := clock.last()
	ticker.c <- time.Now()
	snap := nextUpdate(t, p)
	assert.Equal(t, 4, snap[0].CompleteJudge)
	assert.Equal(t, StatePolling, p.State())
	assert.False(t, ticker.stopped.Load())

	ticker.c <- time.Now()
	snap = nextUpdate(t, p)
	require.NoError(t, p.Wait(context.Background()))

	assert.Equal(t, models.JobStatusDone, snap[0].Status)
	assert.Equal(t, 5, snap[0].CompleteJudge)
	assert.Equal(t, StateIdle, p.State())
	assert.Eventually(t, ticker.stopped.Load, time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, batches.callCount(1))
	assert.Equal(t, 0, batches.callCount(2), "terminal entries are never refetched")
}

func TestPoller_NoRefetchAfterStop(t *testing.T) {
	clock := &fakeClock{}
	batches := newFakeBatches()
	batches.responses[1] = []models.BatchSubmission{batch(1, 1, 5, models.JobStatusRunning)}

	p := newTestPoller(clock, batches.refetch)
	p.Track(batch(1, 0, 5, models.JobStatusQueued))
	ticker := clock.last()

	p.Stop()
	assert.Equal(t, StateStopped, p.State())
	assert.True(t, ticker.stopped.Load())

	ticker.c <- time.Now()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, batches.callCount(1))

	// STOPPED is absorbing
	p.Track(batch(3, 0, 1, models.JobStatusQueued))
	assert.Equal(t, StateStopped, p.State())
	assert.Equal(t, 1, clock.count())
	p.Stop()
}

func TestPoller_StopDiscardsInFlightResults(t *testing.T) {
	clock := &fakeClock{}
	started := make(chan struct{})
	refetch := func(ctx context.Context, id int) (models.BatchSubmission, error) {
		close(started)
		<-ctx.Done()
		return batch(id, 5, 5, models.JobStatusDone), nil
	}

	p := newTestPoller(clock, refetch)
	p.Track(batch(1, 0, 5, models.JobStatusRunning))
	clock.last().c <- time.Now()
	<-started

	p.Stop()

	item, ok := p.Get(1)
	require.True(t, ok)
	assert.Equal(t, models.JobStatusRunning, item.Status)
}

func TestPoller_FailureDoesNotCancelOthers(t *testing.T) {
	clock := &fakeClock{}
	batches := newFakeBatches()
	batches.errs[1] = errors.New("connection reset")
	batches.responses[2] = []models.BatchSubmission{batch(2, 3, 3, models.JobStatusDone)}

	reg := metrics.NewRegistry()
	p := New(Config{Name: "batches", NewTicker: clock.NewTicker, Metrics: reg.Poller}, batches.refetch)
	defer p.Stop()

	p.Track(batch(1, 0, 1, models.JobStatusRunning), batch(2, 0, 3, models.JobStatusRunning))
	nextUpdate(t, p)

	clock.last().c <- time.Now()
	snap := nextUpdate(t, p)

	assert.Equal(t, models.JobStatusRunning, snap[0].Status)
	assert.Equal(t, models.JobStatusDone, snap[1].Status)
	assert.Equal(t, []int{1}, p.Pending())
	assert.Equal(t, StatePolling, p.State())

	// failed refetches are retried on the next tick
	batches.mu.Lock()
	delete(batches.errs, 1)
	batches.responses[1] = []models.BatchSubmission{batch(1, 1, 1, models.JobStatusDone)}
	batches.mu.Unlock()

	clock.last().c <- time.Now()
	nextUpdate(t, p)
	assert.Equal(t, StateIdle, p.State())
	assert.Equal(t, 2, batches.callCount(1))
	assert.Equal(t, 1, batches.callCount(2))
}

func TestPoller_RestartsWhenNewWorkIsTracked(t *testing.T) {
	clock := &fakeClock{}
	batches := newFakeBatches()
	batches.responses[7] = []models.BatchSubmission{batch(7, 1, 1, models.JobStatusDone)}

	p := newTestPoller(clock, batches.refetch)
	defer p.Stop()

	p.Track(batch(1, 1, 1, models.JobStatusDone))
	first := p.Done()
	<-first

	p.Track(batch(7, 0, 1, models.JobStatusQueued))
	assert.Equal(t, StatePolling, p.State())
	assert.Equal(t, 1, clock.count())

	second := p.Done()
	select {
	case <-second:
		t.Fatal("Expected a fresh Done channel while polling")
	default:
	}

	clock.last().c <- time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, p.Wait(ctx))
	assert.Len(t, p.Snapshot(), 2)
}

func TestPoller_TrackReplacesById(t *testing.T) {
	clock := &fakeClock{}
	p := newTestPoller(clock, newFakeBatches().refetch)
	defer p.Stop()

	p.Track(batch(1, 0, 2, models.JobStatusQueued), batch(2, 0, 2, models.JobStatusQueued))
	p.Track(batch(1, 2, 2, models.JobStatusDone))

	snap := p.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, 1, snap[0].ID)
	assert.Equal(t, models.JobStatusDone, snap[0].Status)
	assert.Equal(t, []int{2}, p.Pending())
}

func TestPoller_TrackResolvingLastPendingStopsTimer(t *testing.T) {
	clock := &fakeClock{}
	p := newTestPoller(clock, newFakeBatches().refetch)
	defer p.Stop()

	p.Track(batch(1, 3, 5, models.JobStatusRunning))
	require.Equal(t, StatePolling, p.State())
	require.Equal(t, 1, clock.count())

	p.Track(batch(1, 5, 5, models.JobStatusDone))

	assert.Empty(t, p.Pending())
	assert.Equal(t, StateIdle, p.State())
	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("done not closed with an empty pending set")
	}
	ticker := clock.last()
	assert.Eventually(t, ticker.stopped.Load, 2*time.Second, 10*time.Millisecond)

	// a later pending entity starts a fresh timer
	p.Track(batch(2, 0, 1, models.JobStatusQueued))
	assert.Equal(t, StatePolling, p.State())
	assert.Equal(t, 2, clock.count())
}
