package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"migrator/internal/domain"
	"migrator/internal/etl"
)

// ControllerConfig holds the start-up state of both pipelines.
type ControllerConfig struct {
	Capture         bool
	Backfill        bool
	ShutdownTimeout time.Duration
}

// Controller owns the run flags and the pipeline goroutines. Capture is
// always subscribed before the backfill starts, so that no write made
// during the backfill can be missed.
type Controller struct {
	backfill *etl.Backfill
	capture  *etl.Capture
	emitter  etl.EventEmitter
	log      zerolog.Logger
	cfg      ControllerConfig

	captureFlag  *etl.Flag
	backfillFlag *etl.Flag
	guard        runningGuard

	mu     sync.Mutex
	cancel context.CancelFunc
	// Until capture has subscribed the backfill is held: toggles only
	// change backfillWant, which becomes the flag once it is spawned.
	backfillHeld bool
	backfillWant bool
}

func NewController(backfill *etl.Backfill, capture *etl.Capture, emitter etl.EventEmitter, log zerolog.Logger, cfg ControllerConfig) *Controller {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = time.Minute
	}
	if emitter == nil {
		emitter = &MockEmitter{}
	}
	return &Controller{
		backfill:     backfill,
		capture:      capture,
		emitter:      emitter,
		log:          log.With().Str("component", "controller").Logger(),
		cfg:          cfg,
		captureFlag:  etl.NewFlag(false),
		backfillFlag: etl.NewFlag(false),
		backfillHeld: true,
		backfillWant: cfg.Backfill,
	}
}

// Run starts the pipelines and blocks until ctx is cancelled or Shutdown
// is called, then waits for both pipelines to stop.
func (c *Controller) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()
	defer cancel()

	var g errgroup.Group
	startErr := make(chan error, 1)

	c.captureFlag.Set(c.cfg.Capture)
	c.spawn(ctx, &g, domain.PipelineCapture, c.capture.Run, c.captureFlag, func(err error) {
		select {
		case <-c.capture.Subscribed():
		default:
			select {
			case startErr <- err:
			default:
			}
		}
	})

	if c.cfg.Capture {
		c.log.Info().Msg("waiting for change capture subscription")
		select {
		case <-c.capture.Subscribed():
		case err := <-startErr:
			cancel()
			_ = c.wait(&g)
			return fmt.Errorf("capture: %w", err)
		case <-ctx.Done():
			return c.wait(&g)
		}
	}

	c.mu.Lock()
	c.backfillHeld = false
	backfill := c.backfillWant
	c.backfillFlag.Set(backfill)
	c.mu.Unlock()
	c.spawn(ctx, &g, domain.PipelineBackfill, c.backfill.Run, c.backfillFlag, nil)
	c.log.Info().Bool("capture", c.captureFlag.Active()).Bool("backfill", backfill).Msg("pipelines started")

	<-ctx.Done()
	return c.wait(&g)
}

// spawn supervises one pipeline: when it fails it is logged, stays parked
// with its flag off and runs again once the flag is toggled on.
func (c *Controller) spawn(ctx context.Context, g *errgroup.Group, name string, run func(context.Context, *etl.Flag) error, flag *etl.Flag, onErr func(error)) {
	if !c.guard.TryLock(name) {
		c.log.Warn().Str("pipeline", name).Msg("already running")
		return
	}
	g.Go(func() error {
		defer c.guard.Unlock(name)
		for {
			err := run(ctx, flag)
			if ctx.Err() != nil || err == nil {
				return nil
			}
			c.log.Error().Err(err).Str("pipeline", name).Msg("pipeline stopped")
			c.emitter.Emit(ctx, etl.EventPipelineError, etl.PipelineFailed{Pipeline: name, Err: err})
			if onErr != nil {
				onErr(err)
			}
		}
	})
}

func (c *Controller) wait(g *errgroup.Group) error {
	c.captureFlag.Set(false)
	c.backfillFlag.Set(false)

	waitCtx, cancel := context.WithTimeout(context.Background(), c.cfg.ShutdownTimeout)
	defer cancel()
	if err := c.guard.WaitAll(waitCtx); err != nil {
		return fmt.Errorf("shutdown: pipelines still running after %s", c.cfg.ShutdownTimeout)
	}
	_ = g.Wait()
	c.log.Info().Msg("pipelines stopped")
	return nil
}

// Shutdown stops a running controller. Run returns once both pipelines
// have finished their in-flight work.
func (c *Controller) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// ToggleCapture flips the capture flag and returns the new state.
func (c *Controller) ToggleCapture() bool {
	return c.toggle(domain.PipelineCapture, c.captureFlag)
}

// ToggleBackfill flips the backfill flag and returns the new state. While
// capture has not subscribed yet only the requested state changes.
func (c *Controller) ToggleBackfill() bool {
	c.mu.Lock()
	if c.backfillHeld {
		c.backfillWant = !c.backfillWant
		want := c.backfillWant
		c.mu.Unlock()
		c.log.Info().Bool("active", want).Msg("backfill toggled while waiting for capture")
		c.emitter.Emit(context.Background(), etl.EventToggle, etl.Toggled{Pipeline: domain.PipelineBackfill, Active: want})
		return want
	}
	c.mu.Unlock()
	return c.toggle(domain.PipelineBackfill, c.backfillFlag)
}

func (c *Controller) toggle(name string, flag *etl.Flag) bool {
	active := flag.Toggle()
	c.log.Info().Str("pipeline", name).Bool("active", active).Msg("toggled")
	c.emitter.Emit(context.Background(), etl.EventToggle, etl.Toggled{Pipeline: name, Active: active})
	return active
}

// PipelineStatus is a point-in-time view of one pipeline. A Waiting
// pipeline has not started; Active is the state it will start in.
type PipelineStatus struct {
	Name    string
	Active  bool
	Waiting bool
	State   string
	Stats   etl.StatsSnapshot
}

// Status is a point-in-time view of both pipelines.
type Status struct {
	Capture  PipelineStatus
	Backfill PipelineStatus
}

func (s Status) String() string {
	var b strings.Builder
	for i, p := range []PipelineStatus{s.Capture, s.Backfill} {
		if i > 0 {
			b.WriteString(" | ")
		}
		state := "off"
		switch {
		case p.Waiting && p.Active:
			state = "pending"
		case p.Active:
			state = "on"
		}
		fmt.Fprintf(&b, "%s: %s (%s) processed=%d written=%d failed=%d",
			p.Name, state, p.State, p.Stats.Processed, p.Stats.Written, p.Stats.Failed)
	}
	return b.String()
}

// Status reports flags, phases and counters of both pipelines.
func (c *Controller) Status() Status {
	c.mu.Lock()
	held, want := c.backfillHeld, c.backfillWant
	c.mu.Unlock()

	backfill := PipelineStatus{
		Name:   domain.PipelineBackfill,
		Active: c.backfillFlag.Active(),
		State:  c.backfill.State().String(),
		Stats:  c.backfill.Stats(),
	}
	if held {
		backfill.Active, backfill.Waiting = want, true
		backfill.State = "waiting for capture"
	}
	return Status{
		Capture: PipelineStatus{
			Name:   domain.PipelineCapture,
			Active: c.captureFlag.Active(),
			State:  c.capture.State().String(),
			Stats:  c.capture.Stats(),
		},
		Backfill: backfill,
	}
}
