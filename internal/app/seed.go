package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"migrator/internal/dbclient"
)

func (c *cli) seedCommand() *cobra.Command {
	var opts dbclient.SeedOptions

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Clone existing legacy users to grow the source collection for load tests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Collection = c.cfg.SourceCollection
			return c.seed(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.Count, "count", 0, "number of users to insert")
	f.IntVar(&opts.BatchSize, "batch", 1000, "documents per insert")
	f.IntVar(&opts.Workers, "workers", 7, "concurrent inserters")
	_ = cmd.MarkFlagRequired("count")
	return cmd
}

func (c *cli) seed(ctx context.Context, opts dbclient.SeedOptions) error {
	if opts.Count <= 0 {
		return fmt.Errorf("count must be positive, got %d", opts.Count)
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

	n, err := mongo.Seed(ctx, opts)
	fmt.Fprintf(c.stdout, "Inserted %d users into %s.%s\n", n, mongo.Database(), opts.Collection)
	return err
}
