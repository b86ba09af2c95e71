// v0
// internal/risk/profile.go
package risk

import (
	"errors"
	"fmt"
	"math"

	"cyclesense/analysis/internal/journal"
)

// Built-in profile names.
const (
	ProfileFull = "full"
	ProfileCore = "core"
)

// Weights are the maximum number of score points each factor can contribute.
// They must sum to 100.
type Weights struct {
	Pain     float64 `yaml:"pain" json:"pain"`
	Fatigue  float64 `yaml:"fatigue" json:"fatigue"`
	Acne     float64 `yaml:"acne" json:"acne"`
	HairFall float64 `yaml:"hairFall" json:"hairFall"`
	Diet     float64 `yaml:"diet" json:"diet"`
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Pain + w.Fatigue + w.Acne + w.HairFall + w.Diet
}

// Levels holds the score cut-offs: score < Medium is low, score < High is
// medium, anything else is high.
type Levels struct {
	Medium int `yaml:"medium" json:"medium"`
	High   int `yaml:"high" json:"high"`
}

// Classify maps a score to its level.
func (l Levels) Classify(score int) Level {
	switch {
	case score < l.Medium:
		return LevelLow
	case score < l.High:
		return LevelMedium
	default:
		return LevelHigh
	}
}

// Profile is one weighting scheme of the local risk calculator.
type Profile struct {
	Name    string  `yaml:"-" json:"name"`
	Window  int     `yaml:"window" json:"window"`
	Weights Weights `yaml:"weights" json:"weights"`
	Levels  Levels  `yaml:"levels" json:"levels"`
	// DietCap is the junk-food count at which the diet factor saturates.
	DietCap int `yaml:"dietCap" json:"dietCap"`
	// JunkCategories lists the food categories counted by the diet factor.
	JunkCategories []journal.Category `yaml:"junkCategories" json:"junkCategories"`
	Suggestions    bool               `yaml:"suggestions" json:"suggestions"`
	// RegularCoverage is the minimum share of entries in the window carrying
	// a period start before the cycle is treated as irregular.
	RegularCoverage float64 `yaml:"regularCoverage" json:"regularCoverage"`
}

// FullProfile tracks pain, fatigue, acne, hair fall and diet.
func FullProfile() Profile {
	return Profile{
		Name:            ProfileFull,
		Window:          10,
		Weights:         Weights{Pain: 35, Fatigue: 25, Acne: 20, HairFall: 10, Diet: 10},
		Levels:          Levels{Medium: 35, High: 65},
		DietCap:         5,
		JunkCategories:  []journal.Category{journal.CategoryJunk, journal.CategorySugar},
		RegularCoverage: 0.6,
	}
}

// CoreProfile tracks pain, fatigue and diet only, and emits suggestions.
func CoreProfile() Profile {
	return Profile{
		Name:            ProfileCore,
		Window:          10,
		Weights:         Weights{Pain: 40, Fatigue: 40, Diet: 20},
		Levels:          Levels{Medium: 35, High: 65},
		DietCap:         5,
		JunkCategories:  []journal.Category{journal.CategoryJunk, journal.CategorySugar},
		Suggestions:     true,
		RegularCoverage: 0.6,
	}
}

// BuiltinProfiles returns fresh copies of the shipped profiles keyed by name.
func BuiltinProfiles() map[string]Profile {
	return map[string]Profile{
		ProfileFull: FullProfile(),
		ProfileCore: CoreProfile(),
	}
}

var errInvalidProfile = errors.New("invalid risk profile")

// Validate checks the internal consistency of a profile.
func (p Profile) Validate() error {
	if p.Window <= 0 {
		return fmt.Errorf("%w %q: window must be positive", errInvalidProfile, p.Name)
	}
	w := p.Weights
	for name, v := range map[string]float64{"pain": w.Pain, "fatigue": w.Fatigue, "acne": w.Acne, "hairFall": w.HairFall, "diet": w.Diet} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%w %q: weight %s must be non-negative", errInvalidProfile, p.Name, name)
		}
	}
	if math.Abs(w.Sum()-100) > 1e-9 {
		return fmt.Errorf("%w %q: weights sum to %g, want 100", errInvalidProfile, p.Name, w.Sum())
	}
	if p.Levels.Medium <= 0 || p.Levels.Medium >= p.Levels.High || p.Levels.High > 100 {
		return fmt.Errorf("%w %q: levels must satisfy 0 < medium < high <= 100", errInvalidProfile, p.Name)
	}
	if w.Diet > 0 {
		if p.DietCap <= 0 {
			return fmt.Errorf("%w %q: dietCap must be positive", errInvalidProfile, p.Name)
		}
		if len(p.JunkCategories) == 0 {
			return fmt.Errorf("%w %q: junkCategories required when diet is weighted", errInvalidProfile, p.Name)
		}
		for _, c := range p.JunkCategories {
			if _, err := journal.ParseCategory(string(c)); err != nil {
				return fmt.Errorf("%w %q: %v", errInvalidProfile, p.Name, err)
			}
		}
	}
	if p.RegularCoverage < 0 || p.RegularCoverage > 1 {
		return fmt.Errorf("%w %q: regularCoverage must be within [0,1]", errInvalidProfile, p.Name)
	}
	return nil
}
