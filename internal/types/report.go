package types

import (
	"time"
)

// FitReport summarizes one completed fitting run for console reporting.
type FitReport struct {
	ObservationsFile string        `json:"observations_file"`
	Planets          int           `json:"planets"`
	Telescopes       int           `json:"telescopes"`
	StellarJitter    float64       `json:"stellar_jitter"`
	StartTime        time.Time     `json:"start_time"`
	StopTime         time.Time     `json:"stop_time"`
	Duration         time.Duration `json:"duration"`
	DEQuality        float64       `json:"de_quality"`
	LMQuality        float64       `json:"lm_quality"`
	OutputFile       string        `json:"output_file"`
}
