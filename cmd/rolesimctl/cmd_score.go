package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashureev/rolesim/internal/app"
	"github.com/ashureev/rolesim/internal/dialogue"
	"github.com/ashureev/rolesim/internal/domain"
	"github.com/ashureev/rolesim/internal/learning"
)

func newScoreCmd(load configLoader) *cobra.Command {
	var phase string

	cmd := &cobra.Command{
		Use:   "score --phase PHASE MESSAGE",
		Short: "Score a trainee message against a phase rubric",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := domain.ParsePhase(phase)
			if err != nil {
				return err
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			catalog, err := app.LoadCatalog(cfg.Dialogue.CatalogPath)
			if err != nil {
				return err
			}
			scorer := dialogue.NewScorer(catalog, cfg.Dialogue.LengthThreshold)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Phase:   %s\n", p)
			fmt.Fprintf(out, "Score:   %d\n", scorer.Score(p, args[0]))
			if matches := scorer.Matches(p, args[0]); len(matches) > 0 {
				fmt.Fprintf(out, "Matched: %s\n", strings.Join(matches, ", "))
			}
			if topic := catalog.DetectTopic(args[0]); topic != "" {
				fmt.Fprintf(out, "Topic:   %s\n", topic)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&phase, "phase", "", "conversation phase (greeting, needs, presentation, objections, closing)")
	_ = cmd.MarkFlagRequired("phase")
	return cmd
}

func newReplyCmd(load configLoader) *cobra.Command {
	var (
		phase string
		seed  uint64
	)

	cmd := &cobra.Command{
		Use:   "reply --phase PHASE [--seed N] MESSAGE",
		Short: "Run one offline evaluation and print the counterpart reply",
		Long:  "reply runs a full evaluation cycle against an in-memory learning store,\nso stored learning records are never touched.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := domain.ParsePhase(phase)
			if err != nil {
				return err
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			catalog, err := app.LoadCatalog(cfg.Dialogue.CatalogPath)
			if err != nil {
				return err
			}
			var random dialogue.Randomizer
			if cmd.Flags().Changed("seed") {
				random = dialogue.NewSeededRandom(seed)
			}
			learner := learning.NewStore(learning.NewMemoryBackend())
			engine, err := app.NewEngine(cfg.Dialogue, catalog, learner, random, nil)
			if err != nil {
				return err
			}
			resp, err := engine.Evaluate(cmd.Context(), dialogue.TurnInput{Phase: p, TraineeMessage: args[0]})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			enc.SetEscapeHTML(false)
			return enc.Encode(resp)
		},
	}
	cmd.Flags().StringVar(&phase, "phase", "", "conversation phase")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "seed for reproducible reply selection")
	_ = cmd.MarkFlagRequired("phase")
	return cmd
}
