package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kavach/opsengine/internal/config"
	"github.com/kavach/opsengine/internal/dispatcher"
	"github.com/kavach/opsengine/internal/engine"
	"github.com/kavach/opsengine/internal/handlers"
	"github.com/kavach/opsengine/internal/logging"
	"github.com/kavach/opsengine/internal/sim"
	"github.com/kavach/opsengine/internal/storage/memory"
	"github.com/kavach/opsengine/pkg/core"
)

const maxFeedLine = 1 << 20

type replayOptions struct {
	site  string
	ticks int
	seed  uint64
	at    string
}

func newReplayCmd(*rootOptions) *cobra.Command {
	opts := replayOptions{}

	cmd := &cobra.Command{
		Use:   "replay FILE",
		Short: "Apply a recorded feed to an in-memory engine and print the final snapshot",
		Long: `Reads JSON lines of the form {"command", "site", "payload", "timestamp"},
dispatches them in order, runs the requested number of ticks and prints the
resulting snapshot as JSON. Use "-" to read standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			return replay(cmd.Context(), in, cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.site, "site", "", "site to report, defaults to the last site in the feed")
	cmd.Flags().IntVar(&opts.ticks, "ticks", 0, "simulation ticks to run after the feed")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 1, "simulation seed")
	cmd.Flags().StringVar(&opts.at, "at", "", "wall clock for fatigue and timestamps (RFC3339), defaults to now")
	return cmd
}

func replay(ctx context.Context, in io.Reader, out, errOut io.Writer, opts replayOptions) error {
	if opts.ticks < 0 {
		return core.Invalid("ticks", "must not be negative")
	}
	now := time.Now().UTC()
	if opts.at != "" {
		t, err := time.Parse(time.RFC3339, opts.at)
		if err != nil {
			return core.Invalid("at", "%v", err)
		}
		now = t
	}
	clock := func() time.Time { return now }

	level := config.GetString("logLevel")
	kv := logging.NewZerologAdapter(logging.NewZerolog(errOut, level))
	slogManager := logging.NewSlogManager()
	slogManager.Setup(errOut, level, nil)
	logger := slogManager.Logger()

	// ticks only run through Step
	eng, err := engine.New(engine.Config{
		TickInterval: 24 * time.Hour,
		Clock:        clock,
		NewSource:    func(string) sim.Source { return sim.NewSeeded(opts.seed) },
	}, kv)
	if err != nil {
		return err
	}
	defer eng.Close()

	svc := handlers.NewService(handlers.Dependencies{
		Engine:  eng,
		Backend: memory.New(config.MemoryConfig{}),
		Logger:  logger,
		Now:     clock,
	})
	disp, err := dispatcher.New(kv)
	if err != nil {
		return err
	}
	svc.Register(disp)

	site := opts.site
	var applied, rejected int
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFeedLine)
	for n := 1; scanner.Scan(); n++ {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		e, err := svc.Parser().ParseEvent(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		if e.Site == "" {
			e.Site = opts.site
		}
		if _, err := disp.Dispatch(ctx, e); err != nil {
			rejected++
			kv.Warn("Feed event rejected", "line", n, "command", e.Command, "site", e.Site, "error", err)
			continue
		}
		applied++
		if opts.site == "" && e.Site != "" {
			site = e.Site
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading feed: %w", err)
	}
	if site == "" {
		return core.Invalid("site", "feed names no site, pass --site")
	}
	kv.Info("Feed replayed", "applied", applied, "rejected", rejected, "site", site)

	if err := svc.StartSite(ctx, site); err != nil {
		return err
	}
	snap, err := eng.CurrentSnapshot(site)
	if err != nil {
		return err
	}
	for i := 0; i < opts.ticks; i++ {
		if snap, err = eng.Step(site); err != nil {
			return err
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
