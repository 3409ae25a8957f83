// Command planner is the CLI front end for the elastic parallelization
// planner: it loads a device snapshot plus trainer constants and prints
// the resulting ranked plans as JSON.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "planner",
		Short: "Elastic parallelization planner",
		Long:  "Computes top-k 3D-parallel (DP/TP/PP) plans from a device snapshot and trainer constants.",
	}

	planCmd := &cobra.Command{
		Use:   "plan",
		Short: "Compute plans from a device snapshot",
		RunE:  runPlan,
	}
	planCmd.Flags().StringVarP(&configFile, "config", "c", "", "planner config file (trainer constants, baseline args, solver tuning)")
	planCmd.Flags().StringVar(&snapshotFile, "snapshot", "", "device snapshot file (used/suspended sr, unused devices)")
	planCmd.MarkFlagRequired("snapshot")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a config file",
		RunE:  runValidate,
	}
	validateCmd.Flags().StringVarP(&configFile, "config", "c", "", "planner config file to validate")
	validateCmd.MarkFlagRequired("config")

	rootCmd.AddCommand(planCmd, validateCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
