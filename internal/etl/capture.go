package etl

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"

	"migrator/internal/domain"
	"migrator/internal/normalize"
)

// ── Capture ────────────────────────────────────────────────
// Capture follows the source change feed and applies every insert,
// update and replace to the destination with $set semantics, so the
// latest write always wins over the backfill's set-on-insert.

// CaptureState is the observable phase of the capture pipeline.
type CaptureState int32

const (
	CaptureStopped CaptureState = iota
	CaptureSubscribing
	CaptureListening
	CaptureApplying
)

func (s CaptureState) String() string {
	switch s {
	case CaptureStopped:
		return "stopped"
	case CaptureSubscribing:
		return "subscribing"
	case CaptureListening:
		return "listening"
	case CaptureApplying:
		return "applying"
	default:
		return "unknown"
	}
}

var errStreamClosed = errors.New("change stream closed by the server")

const msgMissingFullDocument = "full document missing"

// Capture is the change pipeline. Checkpoints, Runs and Emitter are optional.
type Capture struct {
	Source       Source
	Dest         Destination
	Router       *Router
	Checkpoints  domain.CheckpointStore
	Runs         domain.RunLogStore
	Emitter      EventEmitter
	Logger       zerolog.Logger
	WriteTimeout time.Duration
	Now          func() time.Time

	state atomic.Int32
	stats Stats

	mu         sync.Mutex
	token      bson.Raw
	loaded     bool
	subscribed chan struct{}
	once       sync.Once
}

// State returns the current phase.
func (c *Capture) State() CaptureState { return CaptureState(c.state.Load()) }

// Stats returns the counters of the current or last session.
func (c *Capture) Stats() StatsSnapshot { return c.stats.Snapshot() }

// Subscribed is closed after the first successful subscription.
func (c *Capture) Subscribed() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribedLocked()
}

func (c *Capture) subscribedLocked() chan struct{} {
	if c.subscribed == nil {
		c.subscribed = make(chan struct{})
	}
	return c.subscribed
}

// ResumeToken returns the position after the last applied event.
func (c *Capture) ResumeToken() bson.Raw {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

func (c *Capture) setState(s CaptureState) { c.state.Store(int32(s)) }

func (c *Capture) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Run drives sessions until ctx is done. A session lasts while flag is
// on; turning it off closes the stream but keeps the resume token, so
// the next session continues after the last applied event.
func (c *Capture) Run(ctx context.Context, flag *Flag) error {
	defer c.setState(CaptureStopped)
	for {
		if err := flag.Wait(ctx, true); err != nil {
			return nil
		}

		res, err := c.Session(ctx, flag)
		recordRun(ctx, c.Runs, c.Logger, domain.PipelineCapture, res, err)
		if err != nil {
			flag.Set(false)
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Session subscribes once and applies events until flag turns off, ctx is
// cancelled or the stream fails.
func (c *Capture) Session(ctx context.Context, flag *Flag) (PassResult, error) {
	res := PassResult{StartedAt: c.now()}
	c.stats.reset()
	log := c.Logger.With().Str("pipeline", domain.PipelineCapture).Logger()

	token, err := c.startToken(ctx)
	if err != nil {
		return c.finish(res, domain.RunStatusFailed), err
	}

	listenCtx, stop := flag.whileActive(ctx)
	defer stop()

	c.setState(CaptureSubscribing)
	stream, err := c.Source.Watch(listenCtx, token)
	if err != nil {
		c.setState(CaptureStopped)
		if listenCtx.Err() != nil {
			return c.finish(res, c.interrupted(ctx)), nil
		}
		return c.finish(res, domain.RunStatusFailed), fmt.Errorf("subscribe: %w", err)
	}
	defer stream.Close(context.WithoutCancel(ctx))

	// A fresh stream starts at "now". Keep that position so a session
	// that fails before its first event still resumes from it.
	if token == nil {
		c.advance(ctx, stream.ResumeToken())
	}

	c.markSubscribed(ctx)
	log.Info().Bool("resumed", token != nil).Msg("change stream subscribed")
	c.setState(CaptureListening)

	interrupted := false
	for stream.Next(listenCtx) {
		// An event read after the flag turned off is not applied; the
		// resume token still points before it.
		if listenCtx.Err() != nil || !flag.Active() {
			interrupted = true
			break
		}
		ev, err := stream.Event()
		if err != nil {
			c.setState(CaptureStopped)
			return c.finish(res, domain.RunStatusFailed), fmt.Errorf("decode change event: %w", err)
		}

		c.setState(CaptureApplying)
		if err := c.apply(ctx, ev); err != nil {
			c.setState(CaptureStopped)
			return c.finish(res, domain.RunStatusFailed), err
		}
		c.advance(ctx, stream.ResumeToken())
		c.setState(CaptureListening)
	}

	c.setState(CaptureStopped)
	if interrupted || listenCtx.Err() != nil {
		status := c.interrupted(ctx)
		log.Info().Str("status", status).Int64("applied", c.stats.written.Load()).Msg("change stream closed")
		return c.finish(res, status), nil
	}
	if err := stream.Err(); err != nil {
		return c.finish(res, domain.RunStatusFailed), fmt.Errorf("change stream: %w", err)
	}
	return c.finish(res, domain.RunStatusFailed), errStreamClosed
}

func (c *Capture) apply(ctx context.Context, ev ChangeEvent) error {
	c.stats.processed.Add(1)

	if ev.FullDocument == nil {
		c.stats.failed.Add(1)
		return c.Router.CaptureFailure(ev.DocumentKey, msgMissingFullDocument)
	}

	wctx, cancel := detachedWrite(ctx, c.WriteTimeout)
	defer cancel()

	user, err := normalize.User(ev.FullDocument, c.now())
	if err != nil {
		c.stats.failed.Add(1)
		if rerr := c.Router.Route(wctx, err); rerr != nil {
			return fmt.Errorf("route failure: %w", rerr)
		}
		return nil
	}

	out, err := c.Dest.BulkWrite(wctx, []WriteOp{{Kind: WriteUpsertSet, User: user}})
	if err != nil {
		c.stats.failed.Add(1)
		return fmt.Errorf("apply %s: %w", user.ID.Hex(), err)
	}
	c.stats.written.Add(out.Written())
	return nil
}

func (c *Capture) startToken(ctx context.Context) (bson.Raw, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loaded || c.Checkpoints == nil {
		return c.token, nil
	}
	cp, err := c.Checkpoints.LoadCheckpoint(ctx, domain.PipelineCapture)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	c.loaded = true
	if cp != nil && len(cp.ResumeToken) > 0 {
		c.token = bson.Raw(cp.ResumeToken)
	}
	return c.token, nil
}

func (c *Capture) advance(ctx context.Context, token bson.Raw) {
	if token == nil {
		return
	}
	c.mu.Lock()
	c.token = append(bson.Raw(nil), token...)
	c.mu.Unlock()

	if c.Checkpoints == nil {
		return
	}
	cp := &domain.Checkpoint{
		Pipeline:    domain.PipelineCapture,
		ResumeToken: token,
		Processed:   c.stats.processed.Load(),
		UpdatedAt:   c.now(),
	}
	if err := c.Checkpoints.SaveCheckpoint(context.WithoutCancel(ctx), cp); err != nil {
		c.Logger.Warn().Err(err).Str("pipeline", domain.PipelineCapture).Msg("save checkpoint")
	}
}

func (c *Capture) markSubscribed(ctx context.Context) {
	c.once.Do(func() {
		c.mu.Lock()
		close(c.subscribedLocked())
		c.mu.Unlock()
		emitterOr(c.Emitter).Emit(ctx, EventCaptureSubscribed, domain.PipelineCapture)
	})
}

func (c *Capture) interrupted(ctx context.Context) string {
	if ctx.Err() != nil {
		return domain.RunStatusStopped
	}
	return domain.RunStatusPaused
}

func (c *Capture) finish(res PassResult, status string) PassResult {
	res.Status = status
	res.FinishedAt = c.now()
	res.Stats = c.stats.Snapshot()
	return res
}
