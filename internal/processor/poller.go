package processor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/semaphore"
)

var (
	ErrPollerRunning = errors.New("poller already running")
	ErrPollerStopped = errors.New("poller stopped")
)

type PollerState int

const (
	PollerIdle PollerState = iota
	PollerPolling
	PollerStopped
)

func (s PollerState) String() string {
	switch s {
	case PollerIdle:
		return "idle"
	case PollerPolling:
		return "polling"
	default:
		return "stopped"
	}
}

// CycleFunc is one fetch-diff-render-publish pass.
type CycleFunc func(ctx context.Context)

// Poller runs a cycle immediately on Start and then once per interval.
// At most one cycle runs at a time; a tick that finds a cycle still in
// flight is dropped.
type Poller struct {
	clock    clockwork.Clock
	interval time.Duration
	cycle    CycleFunc
	listener Listener

	busy     *semaphore.Weighted
	inflight sync.WaitGroup

	mu     sync.Mutex
	state  PollerState
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(clock clockwork.Clock, interval time.Duration, cycle CycleFunc, listener Listener) *Poller {
	return &Poller{
		clock:    clock,
		interval: interval,
		cycle:    cycle,
		listener: listener,
		busy:     semaphore.NewWeighted(1),
	}
}

func (p *Poller) State() PollerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start runs the first cycle before returning, then keeps polling in the
// background until Stop is called or ctx is cancelled.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	switch p.state {
	case PollerPolling:
		p.mu.Unlock()
		return ErrPollerRunning
	case PollerStopped:
		p.mu.Unlock()
		return ErrPollerStopped
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.state = PollerPolling
	p.cancel = cancel
	p.done = make(chan struct{})
	p.mu.Unlock()

	// Nothing else can hold the slot before the loop starts.
	p.busy.TryAcquire(1)
	p.inflight.Add(1)
	p.runCycle(loopCtx)

	go p.loop(loopCtx)
	return nil
}

func (p *Poller) loop(ctx context.Context) {
	defer close(p.done)
	if ctx.Err() != nil {
		return
	}

	ticker := p.clock.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !p.busy.TryAcquire(1) {
				p.emit(slog.LevelWarn, "Previous cycle still running, skipping tick")
				continue
			}
			p.inflight.Add(1)
			go p.runCycle(ctx)
		}
	}
}

// runCycle expects the busy slot to be held. Stop does not cancel a cycle
// that has already started, so the cycle context only inherits the
// interval deadline.
func (p *Poller) runCycle(ctx context.Context) {
	defer p.inflight.Done()
	defer p.busy.Release(1)

	cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.interval)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.emit(slog.LevelError, "Panic in poll cycle", "panic", r)
		}
	}()
	p.cycle(cycleCtx)
}

// Stop halts future cycles and waits for an in-flight one to finish. It is
// safe to call more than once.
func (p *Poller) Stop() {
	p.mu.Lock()
	switch p.state {
	case PollerStopped:
		p.mu.Unlock()
		return
	case PollerIdle:
		p.state = PollerStopped
		p.mu.Unlock()
		return
	}
	p.state = PollerStopped
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
	p.inflight.Wait()
	p.emit(slog.LevelInfo, "Poller stopped")
}

func (p *Poller) emit(level slog.Level, msg string, attrs ...any) {
	if p.listener == nil {
		return
	}
	p.listener.OnLog(Event{Level: level, Message: msg, Attrs: attrs, At: p.clock.Now()})
}
