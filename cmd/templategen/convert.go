package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/OmkarTuptewar/template-generator/internal/convert"
)

func (a *app) convertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Offline file conversions",
	}

	csvCmd := &cobra.Command{
		Use:   "csv <input.json> <output.csv>",
		Short: "Convert a JSON array of {query, templatized_query, lob} objects to CSV",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open input: %w", err)
			}
			defer in.Close()
			out, err := os.Create(args[1])
			if err != nil {
				return fmt.Errorf("failed to create output: %w", err)
			}
			stats, err := convert.JSONToCSV(cmd.Context(), in, out, a.logger)
			if cerr := out.Close(); err == nil && cerr != nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			a.logger.Info("conversion completed", zap.Int("rows", stats.Rows), zap.Int("skipped", stats.Skipped))
			return nil
		},
	}

	var wrapInput string
	wrapCmd := &cobra.Command{
		Use:   "wrap <output.json>",
		Short: "Wrap the template-only side file into a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if wrapInput == "" {
				wrapInput = a.cfg.Paths.TemplateOnly
			}
			in, err := os.Open(wrapInput)
			if err != nil {
				return fmt.Errorf("failed to open template fragments: %w", err)
			}
			defer in.Close()
			out, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("failed to create output: %w", err)
			}
			stats, err := convert.WrapTemplates(in, out)
			if cerr := out.Close(); err == nil && cerr != nil {
				err = cerr
			}
			if err != nil {
				return err
			}
			a.logger.Info("templates wrapped", zap.Int("templates", stats.Templates), zap.Int("skipped", stats.Skipped))
			return nil
		},
	}
	wrapCmd.Flags().StringVar(&wrapInput, "input", "", "template-only side file (defaults to paths.template_only)")

	cmd.AddCommand(csvCmd, wrapCmd)
	return cmd
}
