package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// cli carries the state shared by the subcommands of one invocation.
type cli struct {
	v          *viper.Viper
	configPath string
	cfg        Config
	log        zerolog.Logger
	logCloser  io.Closer

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// Execute runs the command line and exits non-zero on failure.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := newRootCommand(os.Stdin, os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	c := &cli{v: newViper(), stdin: stdin, stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "migrator",
		Short:         "Copy and normalize legacy user documents into a new collection",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.logCloser != nil {
				return c.logCloser.Close()
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", "", "config file (default ./migrator.yaml)")
	pf.String("uri", "", "MongoDB connection string")
	pf.String("database", "", "database name (default from the URI, else freecodecamp)")
	pf.String("source-collection", "", "legacy user collection")
	pf.String("state-db", "", "sqlite file for checkpoints and run logs (empty disables)")
	pf.String("log-level", "", "debug, info, warn or error")
	pf.String("log-file", "", "append structured logs to this file instead of stderr")
	c.bind(pf.Lookup("uri"), keyURI)
	c.bind(pf.Lookup("database"), keyDatabase)
	c.bind(pf.Lookup("source-collection"), keySourceCollection)
	c.bind(pf.Lookup("state-db"), keyStateDB)
	c.bind(pf.Lookup("log-level"), keyLogLevel)
	c.bind(pf.Lookup("log-file"), keyLogFile)

	root.AddCommand(c.runCommand(), c.seedCommand(), c.statusCommand())
	return root
}

// bind makes a flag the highest-precedence source for key. Unset flags
// fall through to env, file and defaults.
func (c *cli) bind(f *pflag.Flag, key string) {
	if err := c.v.BindPFlag(key, f); err != nil {
		panic(fmt.Sprintf("bind %s: %v", key, err))
	}
}

func (c *cli) load() error {
	if err := readConfigFile(c.v, c.configPath); err != nil {
		return err
	}
	cfg, err := configFrom(c.v)
	if err != nil {
		return err
	}
	log, closer, err := newLogger(cfg.LogLevel, cfg.LogFile, c.stderr)
	if err != nil {
		return err
	}
	c.cfg, c.log, c.logCloser = cfg, log, closer
	if used := c.v.ConfigFileUsed(); used != "" {
		c.log.Debug().Str("path", used).Msg("config file loaded")
	}
	return nil
}
