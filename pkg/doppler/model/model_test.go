package model

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oxygene76/dopplerfit/internal/dopplererr"
	"github.com/oxygene76/dopplerfit/pkg/doppler/observations"
	"github.com/oxygene76/dopplerfit/pkg/doppler/orbit"
)

func grid(n int, step float64) []float64 {
	ts := make([]float64, n)
	for i := range ts {
		ts[i] = float64(i) * step
	}
	return ts
}

func TestNewValidatesParameterCount(t *testing.T) {
	_, err := New(2, 3, make([]float64, 12))
	if err == nil {
		t.Fatal("expected error for 12 parameters with 2 planets and 3 telescopes")
	}

	m, err := New(2, 3, make([]float64, 13))
	if err != nil {
		t.Fatalf("New failed for a valid layout: %v", err)
	}
	if m.ParamCount() != 13 {
		t.Errorf("expected 13 parameters, got %d", m.ParamCount())
	}
}

func TestAccessorsSliceTheFlatArray(t *testing.T) {
	params := []float64{
		1, 2, 3, 4, 0.1, // planet 0
		5, 6, 7, 8, 0.2, // planet 1
		-3, 12, 0.5, // offsets
	}
	m, err := New(2, 3, params)
	require.NoError(t, err)

	require.Equal(t, []float64{1, 2, 3, 4, 0.1}, m.PlanetParams(0))
	require.Equal(t, []float64{5, 6, 7, 8, 0.2}, m.PlanetParams(1))
	require.Equal(t, []float64{-3, 12, 0.5}, m.Offsets())
	require.Equal(t, orbit.Orbit{Tau: 5, K: 6, Omega: 7, Period: 8, Ecc: 0.2}, m.PlanetOrbit(1))
	require.Nil(t, m.PlanetUncertainties(0))
	require.Nil(t, m.OffsetUncertainties())
}

func TestAccessorsReturnCopies(t *testing.T) {
	m, err := New(1, 1, []float64{1, 2, 3, 4, 0.1, 7})
	require.NoError(t, err)

	m.PlanetParams(0)[0] = 99
	m.Offsets()[0] = 99
	require.Equal(t, []float64{1, 2, 3, 4, 0.1, 7}, m.Params)
}

func TestSinglePlanetMatchesOrbit(t *testing.T) {
	params := []float64{0.5, 40, 1.1, 9, 0.3, 0}
	m, err := New(1, 1, params)
	require.NoError(t, err)

	ts := grid(30, 0.4)
	got, err := m.RadialVelocities(ts)
	require.NoError(t, err)

	want, err := orbit.FromParams(params[:5]).RadialVelocities(m.keplerSolver(), ts)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSplitPartsSumToComposite(t *testing.T) {
	params := []float64{
		0, 50, 0, 10, 0,
		3, 20, 1.5, 37, 0.4,
		-8, 15,
	}
	m, err := New(2, 2, params)
	require.NoError(t, err)

	ts := grid(25, 1.1)
	total, err := m.RadialVelocities(ts)
	require.NoError(t, err)

	parts := m.Split()
	require.Len(t, parts, 2)

	sum := make([]float64, len(ts))
	for _, part := range parts {
		require.Equal(t, 1, part.Planets)
		require.Equal(t, m.Telescopes, part.Telescopes)
		require.Equal(t, m.Offsets(), part.Offsets())

		curve, err := part.RadialVelocities(ts)
		require.NoError(t, err)
		for i := range sum {
			sum[i] += curve[i]
		}
	}

	for i := range total {
		require.InDelta(t, total[i], sum[i], 1e-9, "sample %d", i)
	}
}

func TestResidualSignConvention(t *testing.T) {
	// A zero-amplitude model reduces the residual to offset - observation.
	m, err := New(1, 2, []float64{0, 0, 0, 10, 0, 4, -2})
	require.NoError(t, err)

	set, err := observations.FromColumns(
		[]float64{1, 2, 3},
		[]float64{10, 20, 30},
		[]float64{1, 1, 1},
		[]int{0, 1, 0},
	)
	require.NoError(t, err)

	residuals, err := m.Residuals(set)
	require.NoError(t, err)
	require.Equal(t, []float64{4 - 10, -2 - 20, 4 - 30}, residuals)
}

func TestQualityOfFitDegenerate(t *testing.T) {
	m, err := New(1, 1, []float64{0, 50, 0, 10, 0, 0})
	require.NoError(t, err)

	// 7 observations against 6 parameters leaves zero degrees of freedom.
	set, err := observations.FromColumns(
		grid(7, 1),
		make([]float64, 7),
		[]float64{1, 1, 1, 1, 1, 1, 1},
		make([]int, 7),
	)
	require.NoError(t, err)

	_, err = m.QualityOfFit(set)
	require.Error(t, err)
	require.True(t, errors.Is(err, dopplererr.ErrDegenerateFit))
}

func TestQualityOfFitOfExactModel(t *testing.T) {
	params := []float64{0, 50, 0, 10, 0, 5}
	m, err := New(1, 1, params)
	require.NoError(t, err)

	ts := grid(40, 0.7)
	modeled, err := m.RadialVelocities(ts)
	require.NoError(t, err)

	velocities := make([]float64, len(ts))
	uncertainties := make([]float64, len(ts))
	instruments := make([]int, len(ts))
	for i := range ts {
		velocities[i] = modeled[i] + 5 // model plus the instrument offset
		uncertainties[i] = 1.5
	}

	set, err := observations.FromColumns(ts, velocities, uncertainties, instruments)
	require.NoError(t, err)

	quality, err := m.QualityOfFit(set)
	require.NoError(t, err)
	require.Less(t, math.Abs(quality), 1e-18)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m, err := New(2, 2, []float64{
		0.1, 50, 0.2, 10, 0.05,
		3, 20, 1.5, 37, 0.4,
		-8, 15,
	})
	require.NoError(t, err)
	m.Uncertainties = []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	m.AddMetadata("star.vels", 2.5)

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, Save(path, m))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, m.Planets, loaded.Planets)
	require.Equal(t, m.Telescopes, loaded.Telescopes)
	require.Equal(t, m.Params, loaded.Params)
	require.Equal(t, m.Uncertainties, loaded.Uncertainties)
	require.Equal(t, m.Meta, loaded.Meta)
}

func TestLoadRejectsInconsistentFile(t *testing.T) {
	m, err := New(1, 1, []float64{0, 50, 0, 10, 0, 5})
	require.NoError(t, err)

	// Corrupt the layout after construction; Load must revalidate.
	m.Planets = 3
	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, Save(path, m))

	_, err = Load(path)
	require.Error(t, err)
}
