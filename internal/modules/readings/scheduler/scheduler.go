// Package scheduler owns the polling loop for one dashboard variant: fetch on
// mount, then on a fixed period, with every result replacing the previous
// batch wholesale.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"bsf-dashboard/internal/modules/readings/pipeline"
	"bsf-dashboard/internal/modules/readings/types"
)

var ErrNotPolling = errors.New("poller is not running")

type State int

const (
	Idle State = iota
	Polling
)

func (s State) String() string {
	if s == Polling {
		return "polling"
	}
	return "idle"
}

// Fetcher is satisfied by *source.Fetcher.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]types.RawReading, bool)
	SourceName() string
}

type Option func(*Poller)

func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithLocation sets the zone used for clock labels.
func WithLocation(loc *time.Location) Option {
	return func(p *Poller) {
		if loc != nil {
			p.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

// Poller fetches on Start and every period after that. Fetches may overlap;
// each takes a sequence number when it starts and its batch is applied only
// if no newer fetch has been applied already. Completions that arrive after
// Stop, or that belong to an earlier Start, are dropped.
type Poller struct {
	name    string
	fetcher Fetcher
	period  time.Duration
	loc     *time.Location
	now     func() time.Time
	logger  *slog.Logger

	mu       sync.RWMutex
	state    State
	gen      uint64
	nextSeq  uint64
	applied  uint64
	snapshot types.Snapshot
	runCtx   context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	subs     map[<-chan struct{}]chan struct{}
}

func New(name string, fetcher Fetcher, period time.Duration, opts ...Option) *Poller {
	p := &Poller{
		name:    name,
		fetcher: fetcher,
		period:  period,
		loc:     time.Local,
		now:     time.Now,
		logger:  slog.Default(),
		subs:    make(map[<-chan struct{}]chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("variant", name)
	return p
}

func (p *Poller) Name() string             { return p.name }
func (p *Poller) Period() time.Duration    { return p.period }
func (p *Poller) Location() *time.Location { return p.loc }

func (p *Poller) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Start moves Idle to Polling, fetches immediately and then on every tick.
// Calling Start while already polling is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.state == Polling {
		p.mu.Unlock()
		return
	}
	p.state = Polling
	p.gen++
	gen := p.gen
	p.snapshot.Loading = true
	p.runCtx, p.cancel = context.WithCancel(ctx)
	runCtx := p.runCtx
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	p.logger.Info("poller started", "period", p.period, "source", p.fetcher.SourceName())

	p.launch(runCtx, gen)
	go p.loop(runCtx, gen, done)
}

func (p *Poller) loop(ctx context.Context, gen uint64, done chan struct{}) {
	defer close(done)
	if p.period <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(p.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.launch(ctx, gen)
		}
	}
}

// Stop moves Polling to Idle, stops the ticker and cancels in-flight fetches.
// It is safe to call more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.state == Idle {
		p.mu.Unlock()
		return
	}
	p.state = Idle
	p.snapshot.Loading = false
	cancel, done := p.cancel, p.done
	p.cancel, p.done, p.runCtx = nil, nil, nil
	p.mu.Unlock()

	cancel()
	<-done
	p.logger.Info("poller stopped")
}

// launch starts one fetch in its own goroutine. The returned channel is
// closed once the fetch has been applied or discarded.
func (p *Poller) launch(ctx context.Context, gen uint64) <-chan struct{} {
	p.mu.Lock()
	p.nextSeq++
	seq := p.nextSeq
	p.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		pollID := uuid.NewString()
		p.logger.Debug("fetch started", "seq", seq, "poll_id", pollID)

		rows, ok := p.fetcher.FetchAll(ctx)
		batch := types.Batch{
			Seq:       seq,
			PollID:    pollID,
			FetchedAt: p.now(),
			Readings:  pipeline.Normalize(rows, p.loc),
			Failed:    !ok,
		}
		p.apply(gen, batch)
	}()
	return finished
}

func (p *Poller) apply(gen uint64, batch types.Batch) {
	p.mu.Lock()
	switch {
	case p.state != Polling || gen != p.gen:
		p.mu.Unlock()
		p.logger.Debug("fetch discarded after stop", "seq", batch.Seq, "poll_id", batch.PollID)
		return
	case batch.Seq <= p.applied:
		p.mu.Unlock()
		p.logger.Debug("stale fetch discarded", "seq", batch.Seq, "applied", p.applied, "poll_id", batch.PollID)
		return
	}
	p.applied = batch.Seq
	p.snapshot = types.Snapshot{Loading: false, Batch: batch}
	subs := make([]chan struct{}, 0, len(p.subs))
	for _, ch := range p.subs {
		subs = append(subs, ch)
	}
	p.mu.Unlock()

	p.logger.Info("batch applied",
		"seq", batch.Seq,
		"poll_id", batch.PollID,
		"rows", len(batch.Readings),
		"failed", batch.Failed,
	)
	for _, ch := range subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Refresh runs an on-demand fetch and waits for it. The fetch is bound to the
// poller's lifetime rather than ctx, so an abandoned request does not turn
// into a failed batch; ctx only bounds the wait.
func (p *Poller) Refresh(ctx context.Context) (types.Snapshot, error) {
	p.mu.RLock()
	state, gen, runCtx := p.state, p.gen, p.runCtx
	p.mu.RUnlock()
	if state != Polling {
		return types.Snapshot{}, ErrNotPolling
	}

	select {
	case <-p.launch(runCtx, gen):
		return p.Snapshot(), nil
	case <-ctx.Done():
		return types.Snapshot{}, ctx.Err()
	}
}

// Snapshot returns the current state record. Batches are never mutated after
// they are applied, so the returned readings may be shared.
func (p *Poller) Snapshot() types.Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

// View re-runs Filter and Aggregate on the latest batch without fetching.
func (p *Poller) View(sel types.Selection, now time.Time) (types.Snapshot, pipeline.View) {
	snap := p.Snapshot()
	return snap, pipeline.Apply(snap.Batch.Readings, sel, now, p.loc)
}

// Subscribe returns a channel that receives a signal after each applied
// batch. Signals are coalesced; a slow reader sees at most one pending.
func (p *Poller) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	p.mu.Lock()
	p.subs[ch] = ch
	p.mu.Unlock()
	return ch
}

func (p *Poller) Unsubscribe(ch <-chan struct{}) {
	p.mu.Lock()
	delete(p.subs, ch)
	p.mu.Unlock()
}
