// Package observations loads and normalizes radial-velocity observation
// tables: whitespace-delimited rows of julian time, radial velocity,
// uncertainty and instrument id.
package observations

import (
	"bufio"
	"fmt"
	"log"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	errorsmod "cosmossdk.io/errors"
	"gonum.org/v1/gonum/stat"

	"github.com/oxygene76/dopplerfit/internal/dopplererr"
)

// Set holds one loaded observation table. All four columns have equal
// length; instrument ids are dense integers 0..TelescopeCount()-1 so they
// can be used as direct indices into a model's offsets slice.
//
// The set is read-only during optimization. ReduceOffsets is the single
// sanctioned mutation and is only applied after fitting completes.
type Set struct {
	Times         []float64
	Velocities    []float64
	Uncertainties []float64
	Instruments   []int

	telescopes int
}

// LoadOptions controls the normalization applied by Load.
type LoadOptions struct {
	Sort         bool    // order observations by time
	ScaleToMean  bool    // subtract the mean radial velocity
	ConvertKmToM bool    // convert velocities from km/s to m/s
	Jitter       float64 // stellar jitter, added to uncertainties in quadrature
}

// DefaultLoadOptions sorts by time and applies no unit conversion.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{Sort: true}
}

type row struct {
	time        float64
	velocity    float64
	uncertainty float64
	instrument  float64
}

// Load reads a whitespace-delimited observation table. Blank lines and
// lines starting with '#' are skipped; malformed rows are logged and
// skipped. A table with zero usable rows is an error.
func Load(path string, opts LoadOptions) (*Set, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open observations: %w", err)
	}
	defer file.Close()

	var rows []row
	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		r, err := parseRow(line)
		if err != nil {
			log.Printf("Warning: skipping line %d: %v", lineNo, err)
			continue
		}
		rows = append(rows, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read observations: %w", err)
	}

	if len(rows) == 0 {
		return nil, errorsmod.Wrapf(dopplererr.ErrNoObservations, "file %s", path)
	}

	if opts.Sort {
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].time < rows[j].time })
	}

	set := &Set{
		Times:         make([]float64, len(rows)),
		Velocities:    make([]float64, len(rows)),
		Uncertainties: make([]float64, len(rows)),
		Instruments:   make([]int, len(rows)),
	}
	for i, r := range rows {
		set.Times[i] = r.time
		set.Velocities[i] = r.velocity
		set.Uncertainties[i] = r.uncertainty
	}

	if opts.ScaleToMean {
		mean := stat.Mean(set.Velocities, nil)
		for i := range set.Velocities {
			set.Velocities[i] -= mean
		}
	}

	if opts.ConvertKmToM {
		for i := range set.Velocities {
			set.Velocities[i] *= 1000
		}
	}

	if opts.Jitter != 0 {
		for i := range set.Uncertainties {
			set.Uncertainties[i] = math.Sqrt(set.Uncertainties[i]*set.Uncertainties[i] + opts.Jitter*opts.Jitter)
		}
	}

	set.remapInstruments(rows)
	return set, nil
}

func parseRow(line string) (row, error) {
	fields := strings.Fields(line)
	if len(fields) != 4 {
		return row{}, fmt.Errorf("expected 4 columns, got %d", len(fields))
	}

	var r row
	var err error
	if r.time, err = strconv.ParseFloat(fields[0], 64); err != nil {
		return row{}, fmt.Errorf("invalid time: %w", err)
	}
	if r.velocity, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return row{}, fmt.Errorf("invalid radial velocity: %w", err)
	}
	if r.uncertainty, err = strconv.ParseFloat(fields[2], 64); err != nil {
		return row{}, fmt.Errorf("invalid uncertainty: %w", err)
	}
	if r.instrument, err = strconv.ParseFloat(fields[3], 64); err != nil {
		return row{}, fmt.Errorf("invalid instrument id: %w", err)
	}
	if r.uncertainty <= 0 {
		return row{}, fmt.Errorf("uncertainty must be positive, got %g", r.uncertainty)
	}
	if r.instrument < 0 {
		return row{}, fmt.Errorf("instrument id must be non-negative, got %g", r.instrument)
	}
	return r, nil
}

// remapInstruments converts the raw instrument column to dense integer ids
// 0..K-1, assigned in ascending order of the raw values. Input files are
// not required to use contiguous ids, but offsets are indexed directly by
// id downstream, so density is established here.
func (s *Set) remapInstruments(rows []row) {
	distinct := make(map[int]struct{})
	for _, r := range rows {
		distinct[int(r.instrument)] = struct{}{}
	}

	raw := make([]int, 0, len(distinct))
	for id := range distinct {
		raw = append(raw, id)
	}
	sort.Ints(raw)

	dense := make(map[int]int, len(raw))
	for i, id := range raw {
		dense[id] = i
	}

	for i, r := range rows {
		s.Instruments[i] = dense[int(r.instrument)]
	}
	s.telescopes = len(raw)
}

// FromColumns builds a Set directly from column slices. The instrument ids
// must already be dense 0..K-1 integers. Intended for synthetic datasets
// and tests.
func FromColumns(times, velocities, uncertainties []float64, instruments []int) (*Set, error) {
	n := len(times)
	if len(velocities) != n || len(uncertainties) != n || len(instruments) != n {
		return nil, fmt.Errorf("column lengths differ: %d/%d/%d/%d",
			len(times), len(velocities), len(uncertainties), len(instruments))
	}
	if n == 0 {
		return nil, dopplererr.ErrNoObservations
	}

	for i, u := range uncertainties {
		if u <= 0 {
			return nil, fmt.Errorf("uncertainty must be positive, got %g at row %d", u, i)
		}
	}

	telescopes := 0
	for _, id := range instruments {
		if id < 0 {
			return nil, fmt.Errorf("instrument id must be non-negative, got %d", id)
		}
		if id+1 > telescopes {
			telescopes = id + 1
		}
	}

	return &Set{
		Times:         times,
		Velocities:    velocities,
		Uncertainties: uncertainties,
		Instruments:   instruments,
		telescopes:    telescopes,
	}, nil
}

// Count returns the number of observations.
func (s *Set) Count() int { return len(s.Times) }

// TelescopeCount returns the number of distinct instruments.
func (s *Set) TelescopeCount() int { return s.telescopes }

// TimeSpan returns the earliest and latest observation times.
func (s *Set) TimeSpan() (min, max float64) {
	min, max = s.Times[0], s.Times[0]
	for _, t := range s.Times[1:] {
		if t < min {
			min = t
		}
		if t > max {
			max = t
		}
	}
	return min, max
}

// VelocitySpan returns the smallest and largest measured velocities.
func (s *Set) VelocitySpan() (min, max float64) {
	min, max = s.Velocities[0], s.Velocities[0]
	for _, v := range s.Velocities[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

// ReduceOffsets subtracts a per-observation offset from the measured
// velocities, in place. Used after fitting to display offset-corrected
// residual points; never called during optimization.
func (s *Set) ReduceOffsets(offsets []float64) error {
	if len(offsets) != s.Count() {
		return fmt.Errorf("offsets length %d does not match observation count %d", len(offsets), s.Count())
	}
	for i := range s.Velocities {
		s.Velocities[i] -= offsets[i]
	}
	return nil
}
