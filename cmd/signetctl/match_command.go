package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iamgideonidoko/signet-match/internal/models"
	"github.com/iamgideonidoko/signet-match/pkg/validator"
)

func newMatchCommand(ctx *commandContext) *cobra.Command {
	var currentPath string
	var candidatesPath string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Match one fingerprint bundle against a file of stored candidates",
		RunE: func(cmd *cobra.Command, args []string) error {
			var req models.MatchRequest
			if err := readJSONFile(currentPath, &req.Current); err != nil {
				return err
			}
			if err := readJSONFile(candidatesPath, &req.Candidates); err != nil {
				return err
			}
			validator.SanitizeFingerprint(&req.Current)
			if err := validator.ValidateMatchRequest(req); err != nil {
				return err
			}

			m, err := ctx.newMatcher(cmd)
			if err != nil {
				return err
			}
			defer m.Close()

			result := m.FindMatches(cmd.Context(), req.Current, req.Candidates)
			if asJSON {
				return writeJSON(cmd, result)
			}
			printResult(cmd, result)
			return nil
		},
	}

	cmd.Flags().StringVar(&currentPath, "current", "", "JSON file holding the fingerprint bundle to match")
	cmd.Flags().StringVar(&candidatesPath, "candidates", "", "JSON file holding an array of stored fingerprints")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw match result as JSON")
	_ = cmd.MarkFlagRequired("current")
	_ = cmd.MarkFlagRequired("candidates")
	return cmd
}

func printResult(cmd *cobra.Command, result models.MatchResult) {
	out := cmd.OutOrStdout()
	d := result.AnalysisDetails
	fmt.Fprintf(out, "Recommendation: %s\n", result.Recommendation)
	fmt.Fprintf(out, "Confidence:     %.4f\n", result.RecognitionConfidence)
	fmt.Fprintf(out, "New device:     %t\n", result.IsNewDevice)
	fmt.Fprintf(out, "Candidates:     %d provided, %d evaluated, %d cached\n", d.CandidatesProvided, d.CandidatesEvaluated, d.CacheHits)
	fmt.Fprintf(out, "Input quality:  %.4f\n", d.InputQualityScore)
	if d.Error != "" {
		fmt.Fprintf(out, "Error:          %s\n", d.Error)
	}

	matches := result.AlternativeMatches
	if result.PrimaryMatch != nil {
		matches = append([]models.Match{*result.PrimaryMatch}, matches...)
	}
	if len(matches) == 0 {
		fmt.Fprintln(out, "No matches")
		return
	}
	fmt.Fprintln(out, renderMatches(matches))
}
