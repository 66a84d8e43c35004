package app

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"migrator/internal/dbclient"
	"migrator/internal/domain"
	"migrator/internal/storage"
)

func (c *cli) statusCommand() *cobra.Command {
	var (
		limit  int
		counts bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show saved checkpoints, recent runs and optionally collection sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.status(cmd.Context(), limit, counts)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs to list")
	cmd.Flags().BoolVar(&counts, "counts", false, "also print estimated collection sizes")
	return cmd
}

func (c *cli) status(ctx context.Context, limit int, counts bool) error {
	if c.cfg.StateDB == "" {
		return fmt.Errorf("%s is empty: nothing is recorded", keyStateDB)
	}
	db, err := storage.New(c.cfg.StateDB)
	if err != nil {
		return fmt.Errorf("open state db: %w", err)
	}
	defer db.Close()

	cps, err := storage.NewCheckpointStore(db).ListCheckpoints(ctx)
	if err != nil {
		return err
	}
	runs, err := storage.NewRunLogStore(db).ListRunLogs(ctx, "", limit)
	if err != nil {
		return err
	}
	if err := writeStatus(c.stdout, cps, runs); err != nil {
		return err
	}

	if !counts {
		return nil
	}
	mongo, err := dbclient.Connect(ctx, dbclient.MongoOptions{
		URI:      c.cfg.URI,
		Database: c.cfg.Database,
		AppName:  c.cfg.AppName,
	}, c.log)
	if err != nil {
		return err
	}
	defer mongo.Close(context.WithoutCancel(ctx))

	sizes, err := mongo.Counts(ctx, c.cfg.SourceCollection, c.cfg.DestinationCollection, c.cfg.QuarantineCollection)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "\nCollections")
	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	for _, s := range sizes {
		fmt.Fprintf(tw, "  %s\t%d\n", s.Name, s.Count)
	}
	return tw.Flush()
}

func writeStatus(w io.Writer, cps []domain.Checkpoint, runs []domain.RunLog) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "Checkpoints")
	if len(cps) == 0 {
		fmt.Fprintln(tw, "  none")
	}
	for _, cp := range cps {
		pos := cp.Cursor
		if len(cp.ResumeToken) > 0 {
			pos = fmt.Sprintf("resume token (%d bytes)", len(cp.ResumeToken))
		}
		fmt.Fprintf(tw, "  %s\t%s\tprocessed=%d\t%s\n",
			cp.Pipeline, pos, cp.Processed, cp.UpdatedAt.Format(time.RFC3339))
	}

	fmt.Fprintln(tw, "\nRecent runs")
	if len(runs) == 0 {
		fmt.Fprintln(tw, "  none")
	}
	for _, r := range runs {
		line := fmt.Sprintf("  %s\t%s\t%s\t%s\tprocessed=%d written=%d failed=%d",
			r.StartedAt.Format(time.RFC3339), r.Pipeline, r.Status,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond),
			r.Processed, r.Written, r.Failed)
		if r.Error != "" {
			line += "\t" + r.Error
		}
		fmt.Fprintln(tw, line)
	}
	return tw.Flush()
}
