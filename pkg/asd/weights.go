package asd

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
)

// ErrInvalidWeights is returned when fusion weights are negative or do not
// sum to one.
var ErrInvalidWeights = errors.New("asd: invalid weights")

// Weights are the fusion coefficients of the activity score.
type Weights struct {
	Lip   float64 `json:"lip" yaml:"lip"`
	Audio float64 `json:"audio" yaml:"audio"`
	Bias  float64 `json:"bias" yaml:"bias"`
}

const weightSumTolerance = 1e-9

// Validate reports whether w is usable: every weight non-negative and
// finite, and the three summing to 1.
func (w Weights) Validate() error {
	for _, v := range []float64{w.Lip, w.Audio, w.Bias} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %+v has a negative or non-finite weight", ErrInvalidWeights, w)
		}
	}
	if sum := w.Lip + w.Audio + w.Bias; math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("%w: %+v sums to %g, want 1", ErrInvalidWeights, w, sum)
	}
	return nil
}

var (
	// PresetCenterBias favours lip motion and gives the frame center a say.
	PresetCenterBias = Weights{Lip: 0.6, Audio: 0.2, Bias: 0.2}

	// PresetLipAudio ignores position entirely.
	PresetLipAudio = Weights{Lip: 0.7, Audio: 0.3, Bias: 0}
)

var presets = map[string]Weights{
	"center-bias": PresetCenterBias,
	"lip-audio":   PresetLipAudio,
}

// Presets returns the names of the built-in weight presets, sorted.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// LookupPreset returns the preset with the given name.
func LookupPreset(name string) (Weights, error) {
	w, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Weights{}, fmt.Errorf("asd: unknown weight preset %q (have %s)", name, strings.Join(Presets(), ", "))
	}
	return w, nil
}
