package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/warp/lead-engine/api"
)

var distributeCmd = &cobra.Command{
	Use:   "distribute",
	Short: "Preview or confirm a distribution",
	Long: `Runs the distribution engine over the brokers in the database and prints
the result as JSON. Nothing is written unless --confirm is given.

Examples:
  server distribute --stock-a 40 --stock-b 25
  server distribute --stock-a 40 --stock-b 25 --confirm --by ana`,
	RunE: runDistribute,
}

var (
	stockA      int
	stockB      int
	confirmRun  bool
	confirmedBy string
)

func init() {
	rootCmd.AddCommand(distributeCmd)
	distributeCmd.Flags().IntVar(&stockA, "stock-a", 0, "PME leads to distribute")
	distributeCmd.Flags().IntVar(&stockB, "stock-b", 0, "PF leads to distribute")
	distributeCmd.Flags().BoolVar(&confirmRun, "confirm", false, "persist the run and write balances")
	distributeCmd.Flags().StringVar(&confirmedBy, "by", "cli", "who confirms the run")
}

func runDistribute(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	handler, store, err := openHandler(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	var out any
	if confirmRun {
		out, err = handler.Confirm(ctx, api.DistributionRequest{StockA: stockA, StockB: stockB, ConfirmedBy: confirmedBy})
	} else {
		out, err = handler.Preview(ctx, stockA, stockB)
	}
	if err != nil {
		return fmt.Errorf("distribute: %w", err)
	}
	return printJSON(out)
}

var closeCycleCmd = &cobra.Command{
	Use:   "close-cycle",
	Short: "Archive production and reset it to zero",
	Long: `Stores every broker's production under a reference and resets it to zero.
Balances from the last run are kept.

Example:
  server close-cycle --reference 2025-03`,
	RunE: runCloseCycle,
}

var cycleRef string

func init() {
	rootCmd.AddCommand(closeCycleCmd)
	closeCycleCmd.Flags().StringVar(&cycleRef, "reference", "", "cycle label (default: current month, YYYY-MM)")
}

func runCloseCycle(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	handler, store, err := openHandler(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	closings, err := handler.CloseCycleNow(cmd.Context(), cycleRef)
	if err != nil {
		return fmt.Errorf("close cycle: %w", err)
	}
	return printJSON(closings)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
