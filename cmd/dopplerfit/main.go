package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/oxygene76/dopplerfit/pkg/doppler/kepler"
	"github.com/oxygene76/dopplerfit/pkg/utils"
)

const (
	appName = "dopplerfit"
	version = "v1.0.0"
)

var cfg *utils.Config

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Radial-velocity exoplanet model fitting",
	Long: `Dopplerfit fits radial-velocity time series of a star to a model of
one or more orbiting bodies. It solves Kepler's equation for each
observation time and optimizes the orbital parameters in two stages: a
bounded differential-evolution search followed by Levenberg-Marquardt
least-squares refinement with per-observation uncertainty weighting.

Fitted models are saved as JSON and can be inspected with "show" or
exported as CSV series with "export".`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "init" || cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = utils.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}
		return nil
	},
}

// initCmd initializes the client configuration
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize client configuration",
	Long: `Initialize the dopplerfit configuration. This creates the default
configuration file and the model and export directories.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Initializing dopplerfit %s\n", version)

		if err := utils.SaveConfig(utils.DefaultConfig()); err != nil {
			return fmt.Errorf("failed to write default config: %w", err)
		}

		path, err := utils.GetConfigPath()
		if err != nil {
			return err
		}
		fmt.Printf("Configuration saved to: %s\n", path)
		return nil
	},
}

// newSolver builds the shared Kepler solver from the loaded configuration.
func newSolver() *kepler.Solver {
	solver := kepler.NewSolver()
	solver.Tolerance = cfg.Solver.Tolerance
	solver.MaxIterations = cfg.Solver.MaxIterations
	solver.Workers = cfg.Solver.Workers
	return solver
}

func main() {
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(fitCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(exportCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
