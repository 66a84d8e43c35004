package service

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const usage = "commands: capture | backfill | status"

// Toggler is the part of the controller the operator surfaces drive.
type Toggler interface {
	ToggleCapture() bool
	ToggleBackfill() bool
	Status() Status
}

// Console reads operator commands line by line and answers on out.
type Console struct {
	ctl Toggler
	log zerolog.Logger

	mu  sync.Mutex
	out io.Writer
}

func NewConsole(ctl Toggler, out io.Writer, log zerolog.Logger) *Console {
	return &Console{ctl: ctl, out: out, log: log.With().Str("component", "console").Logger()}
}

// Dispatch runs one command and returns the reply line.
func (c *Console) Dispatch(line string) string {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return ""
	case "capture":
		return onOff("capture", c.ctl.ToggleCapture())
	case "backfill":
		reply := onOff("backfill", c.ctl.ToggleBackfill())
		if c.ctl.Status().Backfill.Waiting {
			reply += " (waiting for capture subscription)"
		}
		return reply
	case "status":
		return c.ctl.Status().String()
	default:
		return fmt.Sprintf("unknown command %q (%s)", strings.TrimSpace(line), usage)
	}
}

// Exec dispatches line and prints the reply.
func (c *Console) Exec(line string) {
	reply := c.Dispatch(line)
	if reply == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, reply)
}

// Serve reads commands from in until EOF or ctx is done. Reading happens
// on its own goroutine since a blocked terminal read cannot be cancelled.
func (c *Console) Serve(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-lines:
			c.Exec(line)
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("read console: %w", err)
			}
			c.log.Debug().Msg("console closed")
			return nil
		}
	}
}

func onOff(name string, active bool) string {
	if active {
		return name + ": on"
	}
	return name + ": off"
}
