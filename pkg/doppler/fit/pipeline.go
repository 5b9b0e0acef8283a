package fit

import (
	"fmt"
	"log"

	"github.com/oxygene76/dopplerfit/pkg/doppler/kepler"
	"github.com/oxygene76/dopplerfit/pkg/doppler/model"
	"github.com/oxygene76/dopplerfit/pkg/doppler/observations"
)

// PipelineOptions gathers the settings of both optimization stages.
type PipelineOptions struct {
	Evolve EvolveOptions
	Refine RefineOptions

	// MaxPeriod and OffsetBound shape the stage-one search box.
	MaxPeriod   float64
	OffsetBound float64
}

// DefaultPipelineOptions uses the standard search box: periods up to 2000
// days and instrument offsets within +/- 25.
func DefaultPipelineOptions() PipelineOptions {
	return PipelineOptions{
		Evolve:      DefaultEvolveOptions(),
		Refine:      DefaultRefineOptions(),
		MaxPeriod:   2000,
		OffsetBound: 25,
	}
}

// EvolutionaryFit runs the global stage: a bounded differential-evolution
// search of the scalar objective. The returned model has no parameter
// uncertainties; those only exist after refinement.
func EvolutionaryFit(planets int, set *observations.Set, solver *kepler.Solver, opts PipelineOptions) (*model.Model, error) {
	telescopes := set.TelescopeCount()
	_, scalar := Objectives(planets, telescopes, set, solver)
	bounds := SearchBounds(planets, telescopes, set, opts.MaxPeriod, opts.OffsetBound)

	params, merit, err := Evolve(scalar, bounds, opts.Evolve)
	if err != nil {
		return nil, fmt.Errorf("evolutionary optimization failed: %w", err)
	}
	log.Printf("Evolutionary search finished with merit %.6g", merit)

	m, err := model.New(planets, telescopes, params)
	if err != nil {
		return nil, err
	}
	m.UseSolver(solver)
	return m, nil
}

// GradientFit runs the local stage: Levenberg-Marquardt refinement of the
// vector objective seeded with the stage-one parameters. On a convergence
// failure the best-so-far model is returned along with the error.
func GradientFit(planets int, set *observations.Set, solver *kepler.Solver, initial []float64, opts PipelineOptions) (*model.Model, error) {
	telescopes := set.TelescopeCount()
	vector, _ := Objectives(planets, telescopes, set, solver)

	params, uncertainties, refineErr := Refine(vector, set, initial, opts.Refine)
	if params == nil {
		return nil, fmt.Errorf("gradient optimization failed: %w", refineErr)
	}

	m, err := model.New(planets, telescopes, params)
	if err != nil {
		return nil, err
	}
	m.Uncertainties = uncertainties
	m.UseSolver(solver)
	return m, refineErr
}

// Run chains both stages and returns the stage-one and stage-two models.
// The stages are strictly sequential: refinement starts from the
// evolutionary result and shares nothing else with it.
func Run(planets int, set *observations.Set, solver *kepler.Solver, opts PipelineOptions) (deModel, lmModel *model.Model, err error) {
	deModel, err = EvolutionaryFit(planets, set, solver, opts)
	if err != nil {
		return nil, nil, err
	}

	lmModel, err = GradientFit(planets, set, solver, deModel.Params, opts)
	if lmModel == nil {
		return nil, nil, err
	}
	return deModel, lmModel, err
}
