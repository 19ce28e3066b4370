package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	appminer "github.com/solfixes/solfixes/pkg/app/miner"
	"github.com/solfixes/solfixes/pkg/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "solfixes",
	Short: "Mines smart-contract vulnerability patches into a CSV dataset",
	Long: "solfixes builds a dataset of real-world smart-contract vulnerability patches\n" +
		"by scanning GitHub repository histories with static analyzers and matching\n" +
		"contracts to their verified on-chain deployments.",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Tokens and API keys come from .env in local development.
		_ = godotenv.Load()
	},
}

func stageCmd(use, short, stage string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return appminer.NewServer(cfg, stage).Run()
		},
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	rootCmd.AddCommand(
		stageCmd("repos", "Discover and record candidate repositories", appminer.StageRepos),
		stageCmd("issues", "Snapshot issue threads of recorded repositories", appminer.StageIssues),
		stageCmd("patches", "Mine commit histories for vulnerability fixes", appminer.StagePatches),
		stageCmd("contracts", "Match contracts to verified on-chain deployments", appminer.StageContracts),
		validateCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
