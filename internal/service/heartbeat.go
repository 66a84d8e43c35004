package service

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"migrator/internal/etl"
)

// StartHeartbeat emits the controller status on the given cron schedule
// (e.g. "@every 30s"). The returned stop function waits for a running
// emission to finish.
func StartHeartbeat(ctx context.Context, schedule string, ctl Toggler, emitter etl.EventEmitter, log zerolog.Logger) (func(), error) {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		st := ctl.Status()
		log.Debug().
			Int64("capture_processed", st.Capture.Stats.Processed).
			Int64("backfill_processed", st.Backfill.Stats.Processed).
			Msg("heartbeat")
		emitter.Emit(ctx, etl.EventStatus, st)
	})
	if err != nil {
		return nil, fmt.Errorf("status interval %q: %w", schedule, err)
	}
	c.Start()
	log.Info().Str("schedule", schedule).Msg("status heartbeat scheduled")
	return func() { <-c.Stop().Done() }, nil
}
