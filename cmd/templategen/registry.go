package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/OmkarTuptewar/template-generator/internal/core/registry"
)

func (a *app) registryCmd() *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Print per-label value counts of the merged entity registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = a.cfg.Paths.Registry
			}
			reg, err := registry.Load(path, registry.WithLogger(a.logger))
			if err != nil {
				return err
			}
			snap := reg.Snapshot()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LABEL\tVALUES")
			for _, label := range snap.Labels() {
				fmt.Fprintf(tw, "%s\t%d\n", label, len(snap.Values[label]))
			}
			fmt.Fprintf(tw, "TOTAL\t%d\n", snap.Len())
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "registry overlay file (defaults to paths.registry)")
	return cmd
}
