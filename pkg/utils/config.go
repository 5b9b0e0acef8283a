package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config represents the client configuration
type Config struct {
	Fit    FitConfig    `yaml:"fit" mapstructure:"fit"`
	Solver SolverConfig `yaml:"solver" mapstructure:"solver"`
	Output OutputConfig `yaml:"output" mapstructure:"output"`
}

// FitConfig contains the optimization defaults
type FitConfig struct {
	StellarJitter  float64 `yaml:"stellar_jitter" mapstructure:"stellar_jitter"`
	PopulationSize int     `yaml:"population_size" mapstructure:"population_size"`
	MaxGenerations int     `yaml:"max_generations" mapstructure:"max_generations"`
	MaxPeriod      float64 `yaml:"max_period" mapstructure:"max_period"`
	OffsetBound    float64 `yaml:"offset_bound" mapstructure:"offset_bound"`
	Seed           int64   `yaml:"seed" mapstructure:"seed"`
}

// SolverConfig contains the Kepler solver settings
type SolverConfig struct {
	Tolerance     float64 `yaml:"tolerance" mapstructure:"tolerance"`
	MaxIterations int     `yaml:"max_iterations" mapstructure:"max_iterations"`
	Workers       int     `yaml:"workers" mapstructure:"workers"`
}

// OutputConfig contains output locations
type OutputConfig struct {
	ModelsDir  string `yaml:"models_dir" mapstructure:"models_dir"`
	ExportsDir string `yaml:"exports_dir" mapstructure:"exports_dir"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dopplerDir := filepath.Join(homeDir, ".dopplerfit")

	return &Config{
		Fit: FitConfig{
			StellarJitter:  0.0,
			PopulationSize: 15,
			MaxGenerations: 1000,
			MaxPeriod:      2000,
			OffsetBound:    25,
			Seed:           1,
		},
		Solver: SolverConfig{
			Tolerance:     1e-10,
			MaxIterations: 100,
			Workers:       runtime.NumCPU(),
		},
		Output: OutputConfig{
			ModelsDir:  filepath.Join(dopplerDir, "models"),
			ExportsDir: filepath.Join(dopplerDir, "exports"),
		},
	}
}

// LoadConfig loads configuration from file or creates default
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	homeDir, _ := os.UserHomeDir()
	viper.AddConfigPath(filepath.Join(homeDir, ".dopplerfit"))
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("DOPPLERFIT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createDefaultConfig()
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config) error {
	homeDir, _ := os.UserHomeDir()
	configDir := filepath.Join(homeDir, ".dopplerfit")
	configFile := filepath.Join(configDir, "config.yaml")

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := createDirectories(config); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// createDefaultConfig creates and saves a default configuration
func createDefaultConfig() (*Config, error) {
	config := DefaultConfig()

	if err := SaveConfig(config); err != nil {
		return nil, err
	}

	return config, nil
}

// validateConfig validates the configuration
func validateConfig(config *Config) error {
	if config.Fit.PopulationSize <= 0 {
		return fmt.Errorf("population size must be positive")
	}

	if config.Fit.MaxGenerations <= 0 {
		return fmt.Errorf("max generations must be positive")
	}

	if config.Fit.MaxPeriod <= 1 {
		return fmt.Errorf("max period must exceed the 1-day lower search bound")
	}

	if config.Fit.OffsetBound <= 0 {
		return fmt.Errorf("offset bound must be positive")
	}

	if config.Solver.Tolerance <= 0 {
		return fmt.Errorf("solver tolerance must be positive")
	}

	if config.Solver.MaxIterations <= 0 {
		return fmt.Errorf("solver iteration cap must be positive")
	}

	if config.Solver.Workers <= 0 {
		return fmt.Errorf("solver worker count must be positive")
	}

	return nil
}

// createDirectories creates necessary directories based on config
func createDirectories(config *Config) error {
	dirs := []string{
		config.Output.ModelsDir,
		config.Output.ExportsDir,
	}

	for _, dir := range dirs {
		if dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create directory %s: %w", dir, err)
			}
		}
	}

	return nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(homeDir, ".dopplerfit", "config.yaml"), nil
}
