package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/solfixes/solfixes/pkg/config"
	"github.com/solfixes/solfixes/pkg/dataset"
)

var (
	validateDatasetDir string
	validateLogsDir    string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check dataset conformance and report violation counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, logsRoot := validateDatasetDir, validateLogsDir
		if dir == "" {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			dir = cfg.Dataset.Dir
			if logsRoot == "" {
				logsRoot = cfg.Dataset.LogsDir
			}
		}

		report, err := dataset.ValidateDataset(dir, logsRoot)
		if err != nil {
			return err
		}

		tables := make([]string, 0, len(report.RowsChecked))
		for table := range report.RowsChecked {
			tables = append(tables, table)
		}
		sort.Strings(tables)
		for _, table := range tables {
			fmt.Printf("%s: %d rows\n", table, report.RowsChecked[table])
		}
		if logsRoot != "" {
			fmt.Printf("detector logs: %d files\n", report.LogsChecked)
		}

		for _, v := range report.Violations {
			if v.Line > 0 {
				fmt.Printf("%s: %s:%d: %s\n", v.Check, v.File, v.Line, v.Message)
			} else {
				fmt.Printf("%s: %s: %s\n", v.Check, v.File, v.Message)
			}
		}

		counts := report.Counts()
		checks := make([]string, 0, len(counts))
		for check := range counts {
			checks = append(checks, check)
		}
		sort.Strings(checks)
		for _, check := range checks {
			fmt.Printf("%s: %d violations\n", check, counts[check])
		}

		if !report.OK() {
			return fmt.Errorf("%d violations", len(report.Violations))
		}
		fmt.Println("dataset conforms")
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateDatasetDir, "dataset", "", "Dataset directory (defaults to the configured one)")
	validateCmd.Flags().StringVar(&validateLogsDir, "logs", "", "Detector log root (defaults to the configured one)")
}
