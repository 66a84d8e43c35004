package etl

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"

	"migrator/internal/domain"
	"migrator/internal/normalize"
)

// ── Backfill ───────────────────────────────────────────────
// Backfill copies every existing legacy user into the destination:
// scan → normalize → buffer → bulk flush. It runs while its Flag is on,
// parks while it is off and switches the Flag off when the source is
// exhausted.

// BackfillState is the observable phase of a backfill pass.
type BackfillState int32

const (
	BackfillIdle BackfillState = iota
	BackfillScanning
	BackfillBatchFull
	BackfillFlushing
	BackfillDraining
)

func (s BackfillState) String() string {
	switch s {
	case BackfillIdle:
		return "idle"
	case BackfillScanning:
		return "scanning"
	case BackfillBatchFull:
		return "batch-full"
	case BackfillFlushing:
		return "flushing"
	case BackfillDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// BackfillConfig holds the tunables of the backfill.
type BackfillConfig struct {
	BatchSize    int
	Mode         domain.WriteMode
	WriteTimeout time.Duration
	// Resume scans in _id order and persists the cursor after every flush,
	// so that a paused or restarted pass continues where it stopped.
	Resume bool
}

// PassResult is the outcome of one backfill pass or capture session.
type PassResult struct {
	Status     string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int64
	Stats      StatsSnapshot
}

// Backfill is the batch pipeline. Checkpoints, Runs and Emitter are optional.
type Backfill struct {
	Source      Source
	Dest        Destination
	Router      *Router
	Checkpoints domain.CheckpointStore
	Runs        domain.RunLogStore
	Emitter     EventEmitter
	Logger      zerolog.Logger
	Config      BackfillConfig
	Now         func() time.Time

	state atomic.Int32
	stats Stats
}

// State returns the current phase.
func (b *Backfill) State() BackfillState { return BackfillState(b.state.Load()) }

// Stats returns the counters of the current or last pass.
func (b *Backfill) Stats() StatsSnapshot { return b.stats.Snapshot() }

func (b *Backfill) setState(s BackfillState) { b.state.Store(int32(s)) }

func (b *Backfill) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now()
}

// Run drives passes until ctx is done. Every time flag turns on a pass
// starts; a completed pass turns flag off. A pass that fails turns flag
// off and its error is returned.
func (b *Backfill) Run(ctx context.Context, flag *Flag) error {
	for {
		if err := flag.Wait(ctx, true); err != nil {
			return nil
		}

		res, err := b.Pass(ctx, flag)
		b.recordRun(ctx, res, err)
		if err != nil {
			flag.Set(false)
			return err
		}
		if res.Status == domain.RunStatusCompleted {
			flag.Set(false)
			emitterOr(b.Emitter).Emit(ctx, EventBackfillDone, res.Stats)
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Pass runs a single scan over the source. It returns early, without
// error, when flag turns off or ctx is cancelled; the unflushed buffer is
// discarded in that case.
func (b *Backfill) Pass(ctx context.Context, flag *Flag) (PassResult, error) {
	res := PassResult{StartedAt: b.now()}
	b.stats.reset()
	log := b.Logger.With().Str("pipeline", domain.PipelineBackfill).Logger()
	emitter := emitterOr(b.Emitter)

	batchSize := b.Config.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}

	total, err := b.Source.EstimatedCount(ctx)
	if err != nil {
		return b.finish(res, domain.RunStatusFailed), fmt.Errorf("estimate count: %w", err)
	}
	res.Total = total
	progress := newMilestones(total)

	opts := ScanOptions{BatchSize: int32(batchSize), Ordered: b.Config.Resume}
	if b.Config.Resume && b.Checkpoints != nil {
		cp, err := b.Checkpoints.LoadCheckpoint(ctx, domain.PipelineBackfill)
		if err != nil {
			return b.finish(res, domain.RunStatusFailed), fmt.Errorf("load checkpoint: %w", err)
		}
		if cp != nil && cp.Cursor != "" {
			after, err := bson.ObjectIDFromHex(cp.Cursor)
			if err != nil {
				return b.finish(res, domain.RunStatusFailed), fmt.Errorf("checkpoint cursor %q: %w", cp.Cursor, err)
			}
			opts.After = &after
			b.stats.processed.Store(cp.Processed)
			progress.resume(cp.Processed)
			log.Info().Str("after", cp.Cursor).Int64("processed", cp.Processed).Msg("resuming from checkpoint")
		}
	}

	scanCtx, stop := flag.whileActive(ctx)
	defer stop()

	kind := WriteKindFor(b.Config.Mode)
	buf := make([]WriteOp, 0, batchSize)
	var cursor *bson.ObjectID

	flush := func() error {
		if len(buf) == 0 {
			return nil
		}
		b.setState(BackfillFlushing)
		wctx, cancel := b.writeContext(ctx)
		out, err := b.Dest.BulkWrite(wctx, buf)
		cancel()
		if err != nil {
			return fmt.Errorf("flush %d users: %w", len(buf), err)
		}
		b.stats.written.Add(out.Written())
		log.Debug().Int("batch", len(buf)).Int64("written", out.Written()).Int64("duplicates", out.Duplicates).Msg("batch flushed")
		buf = make([]WriteOp, 0, batchSize)
		b.saveCursor(ctx, cursor)
		b.setState(BackfillScanning)
		return nil
	}

	log.Info().Int64("total", total).Str("mode", string(b.Config.Mode)).Msg("backfill pass started")
	b.setState(BackfillScanning)

	interrupted := false
	for raw, err := range b.Source.Scan(scanCtx, opts) {
		if scanCtx.Err() != nil || !flag.Active() {
			interrupted = true
			break
		}
		if err != nil {
			b.setState(BackfillIdle)
			return b.finish(res, domain.RunStatusFailed), fmt.Errorf("scan: %w", err)
		}

		processed := b.stats.processed.Add(1)
		if id, ok := objectIDOf(raw); ok {
			cursor = &id
		}

		user, nerr := normalize.User(raw, b.now())
		if nerr != nil {
			b.stats.failed.Add(1)
			wctx, cancel := b.writeContext(ctx)
			rerr := b.Router.Route(wctx, nerr)
			cancel()
			if rerr != nil {
				b.setState(BackfillIdle)
				return b.finish(res, domain.RunStatusFailed), fmt.Errorf("route failure: %w", rerr)
			}
		} else {
			buf = append(buf, WriteOp{Kind: kind, User: user})
		}

		if progress.observe(processed) {
			emitter.Emit(ctx, EventBackfillProgress, Progress{Processed: processed, Total: total})
		}

		if len(buf) >= batchSize {
			b.setState(BackfillBatchFull)
			if err := flush(); err != nil {
				b.setState(BackfillIdle)
				return b.finish(res, domain.RunStatusFailed), err
			}
		}
	}

	if interrupted || scanCtx.Err() != nil {
		b.setState(BackfillIdle)
		status := domain.RunStatusPaused
		if ctx.Err() != nil {
			status = domain.RunStatusStopped
		}
		log.Info().Int("discarded", len(buf)).Str("status", status).Msg("backfill pass interrupted")
		return b.finish(res, status), nil
	}

	b.setState(BackfillDraining)
	if err := flush(); err != nil {
		b.setState(BackfillIdle)
		return b.finish(res, domain.RunStatusFailed), err
	}
	if b.Config.Resume && b.Checkpoints != nil {
		if err := b.Checkpoints.ClearCheckpoint(context.WithoutCancel(ctx), domain.PipelineBackfill); err != nil {
			log.Warn().Err(err).Msg("clear checkpoint")
		}
	}
	b.setState(BackfillIdle)

	res = b.finish(res, domain.RunStatusCompleted)
	log.Info().
		Int64("processed", res.Stats.Processed).
		Int64("written", res.Stats.Written).
		Int64("failed", res.Stats.Failed).
		Msg("backfill pass completed")
	return res, nil
}

// writeContext detaches writes from cancellation so that a stop signal
// never interrupts a flush half way.
func (b *Backfill) writeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return detachedWrite(ctx, b.Config.WriteTimeout)
}

func (b *Backfill) saveCursor(ctx context.Context, cursor *bson.ObjectID) {
	if !b.Config.Resume || b.Checkpoints == nil || cursor == nil {
		return
	}
	cp := &domain.Checkpoint{
		Pipeline:  domain.PipelineBackfill,
		Cursor:    cursor.Hex(),
		Processed: b.stats.processed.Load(),
		UpdatedAt: b.now(),
	}
	if err := b.Checkpoints.SaveCheckpoint(context.WithoutCancel(ctx), cp); err != nil {
		b.Logger.Warn().Err(err).Str("pipeline", domain.PipelineBackfill).Msg("save checkpoint")
	}
}

func (b *Backfill) finish(res PassResult, status string) PassResult {
	res.Status = status
	res.FinishedAt = b.now()
	res.Stats = b.stats.Snapshot()
	return res
}

func (b *Backfill) recordRun(ctx context.Context, res PassResult, err error) {
	recordRun(ctx, b.Runs, b.Logger, domain.PipelineBackfill, res, err)
}

// ── shared helpers ─────────────────────────────────────────

func detachedWrite(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func recordRun(ctx context.Context, runs domain.RunLogStore, log zerolog.Logger, pipeline string, res PassResult, err error) {
	if runs == nil {
		return
	}
	entry := &domain.RunLog{
		Pipeline:   pipeline,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Status:     res.Status,
		Processed:  res.Stats.Processed,
		Written:    res.Stats.Written,
		Failed:     res.Stats.Failed,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if cerr := runs.CreateRunLog(context.WithoutCancel(ctx), entry); cerr != nil {
		log.Warn().Err(cerr).Str("pipeline", pipeline).Msg("record run log")
	}
}

func objectIDOf(doc bson.D) (bson.ObjectID, bool) {
	for _, e := range doc {
		if e.Key == "_id" {
			id, ok := e.Value.(bson.ObjectID)
			return id, ok
		}
	}
	return bson.ObjectID{}, false
}
