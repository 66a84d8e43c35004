package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"migrator/internal/dbclient"
	"migrator/internal/etl"
	"migrator/internal/service"
	"migrator/internal/storage"
)

func (c *cli) runCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Backfill the legacy collection and stream live changes into the normalized one",
		Long: `run subscribes to the legacy collection's change stream, then copies every
existing document through the normalizer. Type "capture" or "backfill" on
stdin (or write it to the control file) to pause and resume a pipeline.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.run(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.Int("batch-size", 0, "documents per bulk write (default 100)")
	f.String("write-mode", "", "insert_only or upsert_set_on_insert")
	f.String("logs", "", "failure log file (default logs.log)")
	f.Bool("capture", true, "start with change capture on")
	f.Bool("backfill", true, "start with the backfill on")
	f.Bool("resume", false, "scan in _id order and continue an interrupted backfill")
	f.String("control-file", "", "file watched for operator commands")
	f.String("status-interval", "", `cron schedule for status lines, e.g. "@every 30s"`)
	c.bind(f.Lookup("batch-size"), keyBatchSize)
	c.bind(f.Lookup("write-mode"), keyWriteMode)
	c.bind(f.Lookup("logs"), keyLogs)
	c.bind(f.Lookup("capture"), keyCapture)
	c.bind(f.Lookup("backfill"), keyBackfill)
	c.bind(f.Lookup("resume"), keyResume)
	c.bind(f.Lookup("control-file"), keyControlFile)
	c.bind(f.Lookup("status-interval"), keyStatusInterval)
	return cmd
}

func (c *cli) run(ctx context.Context) error {
	cfg, log := c.cfg, c.log

	failures, err := etl.OpenFailureLog(cfg.Logs)
	if err != nil {
		return err
	}
	defer failures.Close()

	mongo, err := dbclient.Connect(ctx, dbclient.MongoOptions{
		URI:      cfg.URI,
		Database: cfg.Database,
		AppName:  cfg.AppName,
	}, log)
	if err != nil {
		return err
	}
	defer mongo.Close(context.WithoutCancel(ctx))

	source := mongo.Source(cfg.SourceCollection)
	dest := mongo.Destination(cfg.DestinationCollection, cfg.QuarantineCollection)
	router := &etl.Router{Log: failures, Quarantine: dest}
	emitter := service.NewConsoleEmitter(c.stdout, log)

	backfill := &etl.Backfill{
		Source:  source,
		Dest:    dest,
		Router:  router,
		Emitter: emitter,
		Logger:  log.With().Str("component", "backfill").Logger(),
		Config: etl.BackfillConfig{
			BatchSize:    cfg.BatchSize,
			Mode:         cfg.WriteMode,
			WriteTimeout: cfg.WriteTimeout,
			Resume:       cfg.Resume,
		},
	}
	capture := &etl.Capture{
		Source:       source,
		Dest:         dest,
		Router:       router,
		Emitter:      emitter,
		Logger:       log.With().Str("component", "capture").Logger(),
		WriteTimeout: cfg.WriteTimeout,
	}

	if cfg.StateDB != "" {
		db, err := storage.New(cfg.StateDB)
		if err != nil {
			return fmt.Errorf("open state db: %w", err)
		}
		defer db.Close()
		checkpoints, runs := storage.NewCheckpointStore(db), storage.NewRunLogStore(db)
		backfill.Checkpoints, backfill.Runs = checkpoints, runs
		capture.Checkpoints, capture.Runs = checkpoints, runs
		log.Info().Str("component", "storage").Str("path", cfg.StateDB).Msg("state db opened")
	} else if cfg.Resume {
		log.Warn().Msg("resume has no effect without a state db")
	}

	ctl := service.NewController(backfill, capture, emitter, log, service.ControllerConfig{
		Capture:         cfg.Capture,
		Backfill:        cfg.Backfill,
		ShutdownTimeout: cfg.ShutdownTimeout,
	})
	console := service.NewConsole(ctl, c.stdout, log)

	if cfg.StatusInterval != "" {
		stop, err := service.StartHeartbeat(ctx, cfg.StatusInterval, ctl, emitter, log)
		if err != nil {
			return err
		}
		defer stop()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return ctl.Run(gctx) })
	g.Go(func() error {
		if err := console.Serve(gctx, c.stdin); err != nil {
			log.Warn().Err(err).Msg("operator console closed")
		}
		return nil
	})
	if cfg.ControlFile != "" {
		g.Go(func() error {
			if err := console.WatchControlFile(gctx, cfg.ControlFile); err != nil {
				log.Warn().Err(err).Msg("control file disabled")
			}
			return nil
		})
	}
	return g.Wait()
}
