// rolesimctl is the operator CLI for the dialogue practice engine.
//
// Usage:
//
//	rolesimctl score --phase needs "What matters most to you?"
//	rolesimctl reply --phase objections --seed 7 "I understand, but the price..."
//	rolesimctl catalog validate --file ./catalog.yaml
//	rolesimctl learning summary
//	rolesimctl learning reset --confirm RESET
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashureev/rolesim/internal/config"
	"github.com/ashureev/rolesim/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

func newRootCmd() *cobra.Command {
	var catalogPath string

	root := &cobra.Command{
		Use:           "rolesimctl",
		Short:         "Operate the sales dialogue practice engine",
		Long:          "rolesimctl scores trainee messages offline, validates reply catalogs\nand inspects or resets the learning records of the configured backend.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}
	root.PersistentFlags().StringVar(&catalogPath, "catalog", "", "YAML catalog path (defaults to CATALOG_PATH or the embedded catalog)")

	loadConfig := func() (*config.Config, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		if catalogPath != "" {
			cfg.Dialogue.CatalogPath = catalogPath
		}
		logging.Init(logging.ParseLevel(cfg.LogLevel), "text", os.Stderr)
		return cfg, nil
	}

	root.AddCommand(newScoreCmd(loadConfig))
	root.AddCommand(newReplyCmd(loadConfig))
	root.AddCommand(newCatalogCmd(loadConfig))
	root.AddCommand(newLearningCmd(loadConfig))
	return root
}

// configLoader returns the process configuration with CLI overrides applied.
type configLoader func() (*config.Config, error)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
