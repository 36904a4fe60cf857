package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iamgideonidoko/signet-match/internal/models"
	"github.com/iamgideonidoko/signet-match/internal/repository"
	"github.com/iamgideonidoko/signet-match/internal/services"
	"github.com/iamgideonidoko/signet-match/pkg/validator"
)

func newRecognizeCommand(ctx *commandContext) *cobra.Command {
	var dbPath string
	var tenant string
	var userID string
	var currentPath string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "recognize",
		Short: "Run a recognition against a local sqlite fingerprint store",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := models.RecognizeRequest{TenantID: tenant}
			if userID != "" {
				req.UserID = &userID
			}
			if err := readJSONFile(currentPath, &req.Fingerprint); err != nil {
				return err
			}
			validator.SanitizeFingerprint(&req.Fingerprint)
			if err := validator.ValidateRecognizeRequest(req); err != nil {
				return err
			}

			repo, err := repository.Open(cmd.Context(), repository.DriverSQLite, dbPath, 1, 1, repository.DefaultRetryConfig)
			if err != nil {
				return err
			}
			defer repo.Close()

			m, err := ctx.newMatcher(cmd)
			if err != nil {
				return err
			}
			defer m.Close()

			service := services.NewRecognitionService(repo, services.NopCounters{}, m, 0,
				services.WithServiceLogger(ctx.logger(cmd)))
			resp, err := service.Recognize(cmd.Context(), req)
			if err != nil {
				return fmt.Errorf("recognize: %w", err)
			}

			if asJSON {
				return writeJSON(cmd, resp)
			}
			out := cmd.OutOrStdout()
			fingerprintID := resp.FingerprintID
			if fingerprintID == "" {
				fingerprintID = "(none)"
			}
			fmt.Fprintf(out, "Fingerprint:    %s\n", fingerprintID)
			fmt.Fprintf(out, "Stored as new:  %t\n", resp.IsNew)
			printResult(cmd, resp.Result)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "signet.db", "Path to the sqlite fingerprint store")
	cmd.Flags().StringVar(&tenant, "tenant", "", "Tenant the fingerprint belongs to")
	cmd.Flags().StringVar(&userID, "user", "", "Optional user id to attach to a new fingerprint")
	cmd.Flags().StringVar(&currentPath, "current", "", "JSON file holding the fingerprint bundle")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the recognition response as JSON")
	_ = cmd.MarkFlagRequired("tenant")
	_ = cmd.MarkFlagRequired("current")
	return cmd
}
