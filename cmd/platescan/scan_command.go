package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"platescan/internal/history"
	"platescan/internal/services"
)

type scanOutput struct {
	PlateNumber string          `json:"plate_number"`
	ImageURI    string          `json:"image_uri"`
	Record      *history.Record `json:"record,omitempty"`
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	var save bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "scan <image>",
		Short: "Extract the license plate from a photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := ctx.loggerFor(false)
			if err != nil {
				return err
			}
			scanner, _, err := ctx.newScanner(logger, nil)
			if err != nil {
				return err
			}

			runCtx := services.WithSource(cmd.Context(), "cli")
			result, err := scanner.Scan(runCtx, args[0])
			if err != nil {
				return displayError(err)
			}
			out := scanOutput{PlateNumber: result.Plate, ImageURI: result.ImageURI}
			if save {
				record, err := scanner.Save(runCtx, result)
				if err != nil {
					return displayError(err)
				}
				out.Record = &record
			}

			if asJSON {
				return writeJSON(cmd, out)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, out.PlateNumber)
			if out.Record != nil {
				fmt.Fprintf(w, "Saved as %s\n", out.Record.ID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Store the plate in history")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}
