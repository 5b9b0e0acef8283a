package main

import (
	"encoding/csv"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oxygene76/dopplerfit/pkg/doppler/model"
	"github.com/oxygene76/dopplerfit/pkg/doppler/observations"
)

var (
	exportModelFile        string
	exportObservationsFile string
	exportOutDir           string
	exportSamples          int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the fitted curve and residuals as CSV",
	Long: `Export evaluates a saved model over a dense time grid spanning the
observations and writes two CSV files: the model curve (with one column
per planet from the split decomposition) and the offset-corrected
observation points with their residuals.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportModelFile, "model", "", "model file (required)")
	exportCmd.Flags().StringVar(&exportObservationsFile, "observations", "", "observation table; defaults to the file recorded in the model")
	exportCmd.Flags().StringVar(&exportOutDir, "out", "", "output directory; defaults to the configured exports directory")
	exportCmd.Flags().IntVar(&exportSamples, "samples", 1000, "number of samples of the model curve")
	exportCmd.MarkFlagRequired("model")
}

func runExport(cmd *cobra.Command, args []string) error {
	m, err := model.Load(exportModelFile)
	if err != nil {
		return err
	}
	m.UseSolver(newSolver())

	observationsFile := exportObservationsFile
	if observationsFile == "" {
		observationsFile = m.Meta.ObservationsFile
	}
	if observationsFile == "" {
		return fmt.Errorf("model records no observations file; pass --observations")
	}

	opts := observations.DefaultLoadOptions()
	opts.Jitter = m.Meta.StellarJitter
	set, err := observations.Load(observationsFile, opts)
	if err != nil {
		return err
	}

	outDir := exportOutDir
	if outDir == "" {
		outDir = cfg.Output.ExportsDir
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(exportModelFile), filepath.Ext(exportModelFile))
	curveFile := filepath.Join(outDir, base+"-curve.csv")
	residualsFile := filepath.Join(outDir, base+"-residuals.csv")

	if err := writeCurve(curveFile, m, set, exportSamples); err != nil {
		return err
	}
	if err := writeResiduals(residualsFile, m, set); err != nil {
		return err
	}

	log.Printf("Exported %s and %s", curveFile, residualsFile)
	return nil
}

// writeCurve samples the composite model and its per-planet split over a
// dense grid spanning the observation times.
func writeCurve(path string, m *model.Model, set *observations.Set, samples int) error {
	if samples < 2 {
		return fmt.Errorf("curve needs at least 2 samples, got %d", samples)
	}

	minTime, maxTime := set.TimeSpan()
	step := (maxTime - minTime) / float64(samples-1)

	grid := make([]float64, samples)
	for i := range grid {
		grid[i] = minTime + float64(i)*step
	}

	total, err := m.RadialVelocities(grid)
	if err != nil {
		return err
	}

	parts := m.Split()
	partCurves := make([][]float64, len(parts))
	for i, part := range parts {
		curve, err := part.RadialVelocities(grid)
		if err != nil {
			return err
		}
		partCurves[i] = curve
	}

	header := []string{"time", "velocity"}
	for planet := range parts {
		header = append(header, fmt.Sprintf("velocity_p%d", planet))
	}

	rows := make([][]string, samples)
	for i := range grid {
		row := []string{formatFloat(grid[i]), formatFloat(total[i])}
		for _, curve := range partCurves {
			row = append(row, formatFloat(curve[i]))
		}
		rows[i] = row
	}
	return writeCSV(path, header, rows)
}

// writeResiduals reduces the instrument offsets out of the measured
// velocities and writes the offset-corrected points with their residuals.
func writeResiduals(path string, m *model.Model, set *observations.Set) error {
	residuals, err := m.Residuals(set)
	if err != nil {
		return err
	}

	// Offsets are folded into the displayed points after fitting.
	if err := set.ReduceOffsets(m.OffsetsOfInstruments(set.Instruments)); err != nil {
		return err
	}

	header := []string{"time", "velocity", "residual", "uncertainty", "instrument"}
	rows := make([][]string, set.Count())
	for i := range rows {
		rows[i] = []string{
			formatFloat(set.Times[i]),
			formatFloat(set.Velocities[i]),
			formatFloat(residuals[i]),
			formatFloat(set.Uncertainties[i]),
			strconv.Itoa(set.Instruments[i]),
		}
	}
	return writeCSV(path, header, rows)
}

func writeCSV(path string, header []string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(header); err != nil {
		return err
	}
	if err := writer.WriteAll(rows); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
