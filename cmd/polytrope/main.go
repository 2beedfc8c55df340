package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "polytrope",
	Short: "polytrope - thermodynamic process state resolver",
	Long: `polytrope resolves the second state of a thermodynamic process.

Fix state 1 of a substance (an ideal gas or water/steam), freeze a process
constraint (isobaric, isothermal, isochoric, adiabatic, polytropic), then pin
one variable of state 2; the resolver classifies the phase region, selects the
correct independent-variable pair, and derives the remaining properties plus
the process energy balance (work and heat).

Units: water states use degC / bar / m3/kg / kJ/kg; ideal-gas states use
K / kPa.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "polytrope.yaml", "path to the configuration file")

	rootCmd.AddCommand(solveCmd)
	rootCmd.AddCommand(envelopeCmd)
	rootCmd.AddCommand(gasesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
