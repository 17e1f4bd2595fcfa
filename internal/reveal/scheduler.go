package reveal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MJE43/lotto-desk/internal/draw"
	"github.com/MJE43/lotto-desk/internal/matrix"
	"github.com/MJE43/lotto-desk/internal/metrics"
)

const (
	DefaultInterval = time.Second
	DefaultCooldown = 3 * time.Second
)

// Emitter receives a snapshot after every transition.
type Emitter interface {
	EmitReveal(s Snapshot)
}

// CompleteFunc is called once per sequence, after the last element is shown.
// proof is what the sampler returned with the draw when it is a
// draw.ProvenSampler, and nil otherwise.
type CompleteFunc func(t matrix.Type, d draw.Draw, proof any)

// Options configures a Scheduler.
type Options struct {
	// Interval between reveals. Defaults to one second.
	Interval time.Duration
	// Cooldown after the final reveal before the sequence returns to Idle.
	// Defaults to three seconds.
	Cooldown time.Duration

	Sampler    draw.Sampler
	Emitter    Emitter
	OnComplete CompleteFunc
	Logger     *slog.Logger
}

// Scheduler drives a Machine in real time. At most one sequence is active.
type Scheduler struct {
	mu      sync.Mutex
	machine Machine
	proof   any
	seq     uint64
	cancel  context.CancelFunc
	closed  bool
	wg      sync.WaitGroup

	interval   time.Duration
	cooldown   time.Duration
	sampler    draw.Sampler
	emitter    Emitter
	onComplete CompleteFunc
	logger     *slog.Logger
}

func NewScheduler(opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.Sampler == nil {
		opts.Sampler = draw.SourceSampler{Source: draw.NewMathSource()}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Scheduler{
		interval:   opts.Interval,
		cooldown:   opts.Cooldown,
		sampler:    opts.Sampler,
		emitter:    opts.Emitter,
		onComplete: opts.OnComplete,
		logger:     opts.Logger.With("component", "reveal"),
	}
}

// SetEmitter replaces the emitter. Used when the UI context becomes available
// after construction.
func (s *Scheduler) SetEmitter(e Emitter) {
	s.mu.Lock()
	s.emitter = e
	s.mu.Unlock()
}

// Start samples a draw for t and begins revealing it. While a sequence is
// Running or Settling the request is ignored and started is false.
func (s *Scheduler) Start(t matrix.Type) (snap Snapshot, started bool, err error) {
	cfg, err := matrix.Lookup(t)
	if err != nil {
		return Snapshot{}, false, err
	}
	if err := cfg.Validate(); err != nil {
		return Snapshot{}, false, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Snapshot{}, false, fmt.Errorf("reveal: scheduler closed")
	}
	if s.machine.State() != StateIdle {
		snap = s.machine.Snapshot()
		s.mu.Unlock()
		return snap, false, nil
	}

	d, proof, err := draw.SampleWithProof(s.sampler, cfg)
	if err != nil {
		s.mu.Unlock()
		return Snapshot{}, false, err
	}
	s.machine.Start(cfg, d)
	s.proof = proof
	s.seq++
	seq := s.seq
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	snap = s.machine.Snapshot()
	emitter := s.emitter
	s.wg.Add(1)
	s.mu.Unlock()

	metrics.RecordDraw(string(t), "simulation")
	metrics.RecordReveal("started")
	s.logger.Debug("reveal started", "matrix", t, "steps", snap.TotalSteps)
	emit(emitter, snap)

	go s.run(ctx, seq)
	return snap, true, nil
}

// Reset clears a settled or idle sequence. It fails with ErrBusy while
// numbers are still being revealed.
func (s *Scheduler) Reset() (Snapshot, error) {
	s.mu.Lock()
	if err := s.machine.Reset(); err != nil {
		snap := s.machine.Snapshot()
		s.mu.Unlock()
		return snap, err
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.seq++
	s.proof = nil
	snap := s.machine.Snapshot()
	emitter := s.emitter
	s.mu.Unlock()

	metrics.RecordReveal("reset")
	emit(emitter, snap)
	return snap, nil
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Snapshot()
}

// Close stops the background goroutine, if any, and waits for it.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, seq uint64) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.mu.Lock()
		if s.seq != seq {
			s.mu.Unlock()
			return
		}
		s.machine.Tick()
		snap := s.machine.Snapshot()
		done := snap.State == StateSettling
		var (
			final draw.Draw
			proof any
		)
		if done {
			final, _ = s.machine.Draw()
			proof = s.proof
		}
		emitter, onComplete := s.emitter, s.onComplete
		s.mu.Unlock()

		emit(emitter, snap)
		if done {
			metrics.RecordReveal("completed")
			if onComplete != nil {
				onComplete(snap.Matrix, final, proof)
			}
			break
		}
	}

	timer := time.NewTimer(s.cooldown)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	s.mu.Lock()
	if s.seq != seq || !s.machine.CooldownElapsed() {
		s.mu.Unlock()
		return
	}
	snap := s.machine.Snapshot()
	emitter := s.emitter
	s.cancel = nil
	s.mu.Unlock()

	metrics.RecordReveal("settled")
	emit(emitter, snap)
}

func emit(e Emitter, snap Snapshot) {
	if e != nil {
		e.EmitReveal(snap)
	}
}
