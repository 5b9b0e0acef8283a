package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oxygene76/dopplerfit/pkg/doppler/model"
)

var showModelFile string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the configuration and parameters of a saved model",
	RunE:  runShow,
}

func init() {
	showCmd.Flags().StringVar(&showModelFile, "model", "", "model file (required)")
	showCmd.MarkFlagRequired("model")
}

var parameterNames = [model.ParamsPerPlanet]string{"tau", "K", "omega", "P", "ecc"}

func runShow(cmd *cobra.Command, args []string) error {
	m, err := model.Load(showModelFile)
	if err != nil {
		return err
	}

	fmt.Println("Configuration of the model")
	fmt.Println()
	fmt.Printf("  Observations: %s\n", m.Meta.ObservationsFile)
	fmt.Printf("  Jitter value: %g\n", m.Meta.StellarJitter)
	fmt.Printf("  N.Planets   : %d\n", m.Planets)
	fmt.Printf("  N.Telescopes: %d\n", m.Telescopes)
	fmt.Println()
	fmt.Println("Orbital parameters")

	for planet := 0; planet < m.Planets; planet++ {
		fmt.Printf(" ---------- P%d ---------- \n", planet)

		params := m.PlanetParams(planet)
		uncertainties := m.PlanetUncertainties(planet)
		for i, name := range parameterNames {
			if uncertainties != nil {
				fmt.Printf("%6s: %20.8f  (+/- %.8f)\n", name, params[i], uncertainties[i])
			} else {
				fmt.Printf("%6s: %20.8f\n", name, params[i])
			}
		}
	}

	fmt.Println()
	fmt.Println("Offsets of the telescopes")
	fmt.Println()

	offsets := m.Offsets()
	offsetUncertainties := m.OffsetUncertainties()
	for telescope, offset := range offsets {
		if offsetUncertainties != nil {
			fmt.Printf("  T%d: %20.8f  (+/- %.8f)\n", telescope, offset, offsetUncertainties[telescope])
		} else {
			fmt.Printf("  T%d: %20.8f\n", telescope, offset)
		}
	}
	return nil
}
