package forecast

import (
	"fmt"

	"github.com/okian/conjunction/internal/domain/model"
)

// Default architecture values.
const (
	DefaultHiddenSize     = 64
	DefaultNumLayers      = 2
	DefaultSequenceLength = 10
	DefaultDropout        = 0.2
)

// Config is the model architecture.
type Config struct {
	InputSize      int     `yaml:"input_size" json:"input_size"`
	HiddenSize     int     `yaml:"hidden_size" json:"hidden_size"`
	NumLayers      int     `yaml:"num_layers" json:"num_layers"`
	SequenceLength int     `yaml:"sequence_length" json:"sequence_length"`
	Dropout        float64 `yaml:"dropout" json:"dropout"`
}

// DefaultConfig returns the reference architecture.
func DefaultConfig() Config {
	return Config{
		InputSize:      model.NumFeatures,
		HiddenSize:     DefaultHiddenSize,
		NumLayers:      DefaultNumLayers,
		SequenceLength: DefaultSequenceLength,
		Dropout:        DefaultDropout,
	}
}

// Validate checks the architecture.
func (c Config) Validate() error {
	switch {
	case c.InputSize != model.NumFeatures:
		return fmt.Errorf("%w: input_size must be %d, got %d", ErrInvalidArchitecture, model.NumFeatures, c.InputSize)
	case c.HiddenSize < 1:
		return fmt.Errorf("%w: hidden_size must be positive, got %d", ErrInvalidArchitecture, c.HiddenSize)
	case c.NumLayers < 1:
		return fmt.Errorf("%w: num_layers must be positive, got %d", ErrInvalidArchitecture, c.NumLayers)
	case c.SequenceLength < 1:
		return fmt.Errorf("%w: sequence_length must be positive, got %d", ErrInvalidArchitecture, c.SequenceLength)
	case c.Dropout < 0 || c.Dropout >= 1:
		return fmt.Errorf("%w: dropout must be in [0,1), got %g", ErrInvalidArchitecture, c.Dropout)
	}
	return nil
}
