package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/oxygene76/dopplerfit/internal/dopplererr"
	"github.com/oxygene76/dopplerfit/internal/types"
	"github.com/oxygene76/dopplerfit/pkg/doppler/fit"
	"github.com/oxygene76/dopplerfit/pkg/doppler/model"
	"github.com/oxygene76/dopplerfit/pkg/doppler/observations"
)

var (
	fitObservationsFile string
	fitPlanets          int
	fitJitter           float64
	fitPopulationSize   int
)

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Fit an N-planet model to an observation table",
	Long: `Fit loads a whitespace-delimited observation table (julian time,
radial velocity, uncertainty, instrument id), runs the two-stage
optimization and saves the fitted model as JSON.`,
	RunE: runFit,
}

func init() {
	fitCmd.Flags().StringVar(&fitObservationsFile, "observations", "", "observation table file (required)")
	fitCmd.Flags().IntVar(&fitPlanets, "planets", 0, "number of planets to fit (required)")
	fitCmd.Flags().Float64Var(&fitJitter, "jitter", 0, "stellar jitter added to uncertainties in quadrature")
	fitCmd.Flags().IntVar(&fitPopulationSize, "population-size", 0, "population multiplier for the evolutionary stage")
	fitCmd.MarkFlagRequired("observations")
	fitCmd.MarkFlagRequired("planets")
}

func runFit(cmd *cobra.Command, args []string) error {
	jitter := fitJitter
	if !cmd.Flags().Changed("jitter") {
		jitter = cfg.Fit.StellarJitter
	}

	log.Printf("Reading observations from %s", fitObservationsFile)
	opts := observations.DefaultLoadOptions()
	opts.Jitter = jitter
	set, err := observations.Load(fitObservationsFile, opts)
	if err != nil {
		return err
	}
	log.Printf("Loaded %d observations from %d telescopes", set.Count(), set.TelescopeCount())

	pipeline := fit.DefaultPipelineOptions()
	pipeline.MaxPeriod = cfg.Fit.MaxPeriod
	pipeline.OffsetBound = cfg.Fit.OffsetBound
	pipeline.Evolve.PopulationSize = cfg.Fit.PopulationSize
	pipeline.Evolve.MaxGenerations = cfg.Fit.MaxGenerations
	pipeline.Evolve.Seed = cfg.Fit.Seed
	pipeline.Evolve.Workers = cfg.Solver.Workers
	if cmd.Flags().Changed("population-size") {
		pipeline.Evolve.PopulationSize = fitPopulationSize
	}

	solver := newSolver()
	startTime := time.Now()

	log.Printf("Running evolutionary optimization...")
	deModel, err := fit.EvolutionaryFit(fitPlanets, set, solver, pipeline)
	if err != nil {
		return err
	}

	log.Printf("Running gradient optimization...")
	lmModel, err := fit.GradientFit(fitPlanets, set, solver, deModel.Params, pipeline)
	if err != nil {
		if !errors.Is(err, dopplererr.ErrNotConverged) {
			return err
		}
		log.Printf("Warning: %v; keeping best-so-far parameters", err)
	}
	stopTime := time.Now()

	deQuality, err := deModel.QualityOfFit(set)
	if err != nil {
		return err
	}
	lmQuality, err := lmModel.QualityOfFit(set)
	if err != nil {
		return err
	}

	lmModel.AddMetadata(fitObservationsFile, jitter)

	if err := os.MkdirAll(cfg.Output.ModelsDir, 0755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}
	outputFile := filepath.Join(cfg.Output.ModelsDir, modelFileName(fitObservationsFile, jitter, fitPlanets, lmQuality))
	if err := model.Save(outputFile, lmModel); err != nil {
		return err
	}

	report := types.FitReport{
		ObservationsFile: fitObservationsFile,
		Planets:          fitPlanets,
		Telescopes:       set.TelescopeCount(),
		StellarJitter:    jitter,
		StartTime:        startTime,
		StopTime:         stopTime,
		Duration:         stopTime.Sub(startTime),
		DEQuality:        deQuality,
		LMQuality:        lmQuality,
		OutputFile:       outputFile,
	}
	printFitSummary(report)
	return nil
}

// modelFileName derives the output name from the input file, jitter,
// planet count and fit quality, e.g. hd10180-j1.0-p2-q1.23.json.
func modelFileName(observationsFile string, jitter float64, planets int, quality float64) string {
	base := filepath.Base(observationsFile)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%s-j%.1f-p%d-q%.2f.json", base, jitter, planets, quality)
}

func printFitSummary(report types.FitReport) {
	fmt.Println("Calculation summary:")
	fmt.Printf("  %-12s: %s\n", "Start time", report.StartTime.Format(time.TimeOnly))
	fmt.Printf("  %-12s: %s\n", "Stop time", report.StopTime.Format(time.TimeOnly))
	fmt.Printf("  %-12s: %s\n", "Duration", report.Duration)
	fmt.Println()
	fmt.Printf("  DE model quality: %g\n", report.DEQuality)
	fmt.Printf("  LM model quality: %g\n", report.LMQuality)
	fmt.Println()
	fmt.Printf("  Resulting file  : %s\n", report.OutputFile)
}
