package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iamgideonidoko/signet-match/internal/models"
	"github.com/iamgideonidoko/signet-match/pkg/matcher"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Matcher configuration utilities",
	}

	configCmd.AddCommand(newConfigValidateCommand(ctx))
	return configCmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the matcher configuration and print the effective values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.engineConfig()
			if err != nil {
				return fmt.Errorf("invalid matcher config: %w", err)
			}
			encoded, err := matcher.EncodeTOML(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if ctx.matcherConfig != "" {
				fmt.Fprintf(out, "# overlay: %s\n", ctx.matcherConfig)
			}
			fmt.Fprint(out, string(encoded))
			fmt.Fprintln(out, "# Configuration valid")
			return nil
		},
	}
}

func newSampleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sample",
		Short: "Print a sample fingerprint bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeJSON(cmd, models.SampleFingerprint())
		},
	}
}

func newComponentsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "components",
		Short: "List fingerprint components with their layer and scoring parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), renderComponents(models.AllComponents))
			return nil
		},
	}
}
