package model

import (
	"encoding/json"
	"fmt"
	"os"
)

// Save writes the model as JSON. The file captures everything needed to
// reproduce an equivalent model: body and instrument counts, the flat
// parameter array, uncertainties when present, and provenance metadata.
func Save(path string, m *Model) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write model file: %w", err)
	}
	return nil
}

// Load reads a model previously written by Save and revalidates its
// parameter layout.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file: %w", err)
	}

	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model: %w", err)
	}

	loaded, err := New(m.Planets, m.Telescopes, m.Params)
	if err != nil {
		return nil, fmt.Errorf("invalid model file %s: %w", path, err)
	}
	if m.Uncertainties != nil {
		if len(m.Uncertainties) != len(m.Params) {
			return nil, fmt.Errorf("invalid model file %s: %d uncertainties for %d parameters",
				path, len(m.Uncertainties), len(m.Params))
		}
		loaded.Uncertainties = append([]float64(nil), m.Uncertainties...)
	}
	loaded.Meta = m.Meta
	return loaded, nil
}
