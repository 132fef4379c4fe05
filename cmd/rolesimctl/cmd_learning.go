package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ashureev/rolesim/internal/app"
	"github.com/ashureev/rolesim/internal/config"
	"github.com/ashureev/rolesim/internal/learning"
	"github.com/ashureev/rolesim/internal/store"
)

func newLearningCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "learning",
		Short: "Inspect or reset learning records of the configured backend",
	}
	cmd.AddCommand(newLearningSummaryCmd(load))
	cmd.AddCommand(newLearningResetCmd(load))
	return cmd
}

// withLearningStore opens the configured backend, runs fn and releases it.
func withLearningStore(cmd *cobra.Command, load configLoader, fn func(*learning.Store) error) error {
	cfg, err := load()
	if err != nil {
		return err
	}

	var repo *store.SQLiteStore
	if cfg.Learning.Backend == config.BackendSQLite {
		repo, err = store.NewSQLite(cfg.DBPath)
		if err != nil {
			return err
		}
		defer func() { _ = repo.Close() }()
	}
	backend, err := app.OpenLearning(cmd.Context(), cfg.Learning, repo)
	if err != nil {
		return err
	}
	defer func() { _ = backend.Close() }()

	return fn(learning.NewStore(backend.Backend))
}

func newLearningSummaryCmd(load configLoader) *cobra.Command {
	var (
		asJSON  bool
		records bool
	)

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show aggregated objection handling outcomes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withLearningStore(cmd, load, func(s *learning.Store) error {
				summary, err := s.Summarize(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(summary)
				}

				fmt.Fprintf(out, "Objections:   %d\n", summary.TotalObjections)
				fmt.Fprintf(out, "Successful:   %d\n", summary.TotalSuccessful)
				fmt.Fprintf(out, "Unsuccessful: %d\n", summary.TotalUnsuccessful)
				fmt.Fprintf(out, "Success rate: %d%%\n", summary.SuccessRate())
				fmt.Fprintf(out, "Level:        %s\n", summary.Level())
				if summary.MostLearnedObjection != "" {
					fmt.Fprintf(out, "Most learned: %s (%d)\n", summary.MostLearnedObjection, summary.MaxLearningCount)
				}
				if !records {
					return nil
				}
				recs, err := s.Records(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Topics:\n")
				for _, r := range recs {
					fmt.Fprintf(out, "  %-16s ok=%d fail=%d updated=%s\n",
						r.Topic, r.SuccessfulCount, r.UnsuccessfulCount, r.LastUpdated.Format("2006-01-02 15:04"))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the summary as JSON")
	cmd.Flags().BoolVar(&records, "records", false, "also list per-topic records")
	return cmd
}

func newLearningResetCmd(load configLoader) *cobra.Command {
	var confirm string

	cmd := &cobra.Command{
		Use:   "reset --confirm " + string(learning.ConfirmReset),
		Short: "Delete every learning record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if learning.Confirmation(confirm) != learning.ConfirmReset {
				return fmt.Errorf("refusing to reset learning records: pass --confirm %s", learning.ConfirmReset)
			}
			return withLearningStore(cmd, load, func(s *learning.Store) error {
				if err := s.Reset(cmd.Context(), learning.Confirmation(confirm)); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Learning records cleared")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&confirm, "confirm", "", "must be "+string(learning.ConfirmReset))
	return cmd
}
