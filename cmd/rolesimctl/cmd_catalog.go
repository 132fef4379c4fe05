package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashureev/rolesim/internal/app"
	"github.com/ashureev/rolesim/internal/domain"
)

func newCatalogCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Inspect reply catalogs",
	}

	var file string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a YAML catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := file
			if path == "" {
				cfg, err := load()
				if err != nil {
					return err
				}
				path = cfg.Dialogue.CatalogPath
			}
			catalog, err := app.LoadCatalog(path)
			if err != nil {
				return err
			}
			name := path
			if name == "" {
				name = "embedded catalog"
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: OK\n", name)
			for _, p := range domain.AllPhases() {
				entry := catalog.Phases[p]
				fmt.Fprintf(out, "  %-13s rubric=%d candidates=%d\n", p, len(entry.Rubric), len(entry.Candidates))
			}
			fmt.Fprintf(out, "  topics=%d buckets=%d\n", len(catalog.Topics), len(catalog.Buckets))
			return nil
		},
	}
	validate.Flags().StringVarP(&file, "file", "f", "", "catalog file (defaults to the configured catalog)")

	cmd.AddCommand(validate)
	return cmd
}
