package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kavach/opsengine/internal/config"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

const appName = "opsengine"

type rootOptions struct {
	configDir string
	envFile   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Live operational state engine for mine sites",
		Long: `Tracks vehicles, workers and risk history per mine site, derives hazard,
fatigue and aggregate risk on every tick, and pushes snapshots and alerts to
stream subscribers and external sinks.`,
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return opts.loadConfig()
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configDir, "config-dir", ".", "directory containing "+config.FileName)
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file with "+config.EnvPrefix+"_ overrides, skipped when missing")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newReplayCmd(opts))
	return cmd
}

// loadConfig applies the dotenv file and the JSON config. Both are optional;
// defaults and environment overrides apply either way.
func (o *rootOptions) loadConfig() error {
	if o.envFile != "" {
		if err := godotenv.Load(o.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", o.envFile, err)
		}
	}

	err := config.Load(o.configDir)
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return err
	}
	return nil
}
