package main

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oxygene76/dopplerfit/pkg/doppler/model"
	"github.com/oxygene76/dopplerfit/pkg/doppler/observations"
)

func exportFixtures(t *testing.T) (*model.Model, *observations.Set) {
	t.Helper()

	m, err := model.New(1, 1, []float64{0, 50, 0, 10, 0, 2})
	require.NoError(t, err)

	set, err := observations.FromColumns(
		[]float64{0, 5, 10, 15},
		[]float64{52, -48, 52, -48},
		[]float64{1, 1, 1, 1},
		[]int{0, 0, 0, 0},
	)
	require.NoError(t, err)
	return m, set
}

func TestWriteCurveRejectsDegenerateGrid(t *testing.T) {
	m, set := exportFixtures(t)
	path := filepath.Join(t.TempDir(), "curve.csv")

	require.Error(t, writeCurve(path, m, set, 1))
	require.Error(t, writeCurve(path, m, set, 0))
	require.NoFileExists(t, path)
}

func TestWriteCurveSamplesTheSpan(t *testing.T) {
	m, set := exportFixtures(t)
	path := filepath.Join(t.TempDir(), "curve.csv")

	require.NoError(t, writeCurve(path, m, set, 5))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 6) // header plus 5 samples
	require.Equal(t, []string{"time", "velocity", "velocity_p0"}, records[0])
	require.Equal(t, "0", records[1][0])
	require.Equal(t, "15", records[5][0])
}
