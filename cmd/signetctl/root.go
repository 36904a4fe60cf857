package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iamgideonidoko/signet-match/pkg/logger"
	"github.com/iamgideonidoko/signet-match/pkg/matcher"
)

// commandContext holds the persistent flags shared by every subcommand.
type commandContext struct {
	matcherConfig string
	verbose       bool
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "signetctl",
		Short:         "Offline tools for the Signet matching engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// stdout carries results; store retry warnings go to stderr
			logger.SetOutput(cmd.ErrOrStderr())
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.matcherConfig, "matcher-config", "", "TOML file overriding matcher defaults")
	rootCmd.PersistentFlags().BoolVarP(&ctx.verbose, "verbose", "v", false, "Log matcher activity to stderr")

	rootCmd.AddCommand(newMatchCommand(ctx))
	rootCmd.AddCommand(newRecognizeCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))
	rootCmd.AddCommand(newSampleCommand())
	rootCmd.AddCommand(newComponentsCommand())

	return rootCmd
}

// engineConfig returns the defaults with the --matcher-config overlay applied.
func (c *commandContext) engineConfig() (matcher.Config, error) {
	cfg := matcher.DefaultConfig()
	if c.matcherConfig != "" {
		patch, err := matcher.LoadPatchFile(c.matcherConfig)
		if err != nil {
			return cfg, err
		}
		cfg = patch.Apply(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *commandContext) logger(cmd *cobra.Command) *logger.Logger {
	if !c.verbose {
		return logger.Nop()
	}
	return logger.New(logger.DEBUG, cmd.ErrOrStderr())
}

func (c *commandContext) newMatcher(cmd *cobra.Command) (*matcher.Matcher, error) {
	cfg, err := c.engineConfig()
	if err != nil {
		return nil, err
	}
	return matcher.New(cfg, matcher.WithLogger(c.logger(cmd)))
}

func readJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
