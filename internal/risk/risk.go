// v0
// internal/risk/risk.go
package risk

import (
	"math"

	"cyclesense/analysis/internal/journal"
)

// Level is the three-tier classification of a risk score.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// Fill hints used by progress-bar renderers.
const (
	FillRed    = "#f47b7b"
	FillYellow = "#f7c948"
	FillGreen  = "#6bcb8b"
	FillLilac  = "#c8b4e8"
	FillPink   = "#f5a7c7"
)

// Severity thresholds on the 0-10 scales.
const (
	severeAverage   = 6.0
	moderateAverage = 3.0
)

// Factor is one bar of the score breakdown.
type Factor struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
	Max   int    `json:"max"`
	Fill  string `json:"fill"`
}

// Result is the outcome of a local risk computation. It is derived on every
// call and never cached.
type Result struct {
	Score       int          `json:"score"`
	Level       Level        `json:"level"`
	Factors     []Factor     `json:"factors"`
	Suggestions []Suggestion `json:"suggestions,omitempty"`
	Profile     string       `json:"profile"`
}

// Window summarizes the sampled symptom entries.
type Window struct {
	Entries        int
	AvgPain        float64
	AvgFatigue     float64
	AcneRate       float64
	HairFallRate   float64
	PeriodCoverage float64
	JunkFoods      int
}

// Summarize samples the first p.Window symptom entries (the slice is expected
// most-recent-first) and counts junk foods across the entire food log.
func Summarize(p Profile, symptoms []journal.SymptomEntry, foods []journal.FoodEntry) Window {
	recent := symptoms
	if p.Window > 0 && len(recent) > p.Window {
		recent = recent[:p.Window]
	}
	w := Window{Entries: len(recent), JunkFoods: journal.CountCategories(foods, p.JunkCategories...)}
	if len(recent) == 0 {
		return w
	}
	var pain, fatigue float64
	var acne, hair, period int
	for _, s := range recent {
		pain += s.Pain
		fatigue += s.Fatigue
		if s.Acne {
			acne++
		}
		if s.HairFall {
			hair++
		}
		if s.HasPeriodStart() {
			period++
		}
	}
	n := float64(len(recent))
	w.AvgPain = pain / n
	w.AvgFatigue = fatigue / n
	w.AcneRate = float64(acne) / n
	w.HairFallRate = float64(hair) / n
	w.PeriodCoverage = float64(period) / n
	return w
}

// Compute produces the risk assessment for the given entries. It is a pure
// function of its inputs. No symptom entries yields score 0, level low and
// an empty factor list.
func Compute(p Profile, symptoms []journal.SymptomEntry, foods []journal.FoodEntry) Result {
	if len(symptoms) == 0 {
		return Result{Score: 0, Level: LevelLow, Factors: []Factor{}, Profile: p.Name}
	}
	w := Summarize(p, symptoms, foods)

	painScore := (w.AvgPain / journal.MaxLevel) * p.Weights.Pain
	fatigueScore := (w.AvgFatigue / journal.MaxLevel) * p.Weights.Fatigue
	acneScore := w.AcneRate * p.Weights.Acne
	hairScore := w.HairFallRate * p.Weights.HairFall
	foodScore := 0.0
	if p.DietCap > 0 {
		foodScore = math.Min(float64(w.JunkFoods)/float64(p.DietCap), 1) * p.Weights.Diet
	}

	total := roundHalfUp(painScore + fatigueScore + acneScore + hairScore + foodScore)
	score := int(math.Min(100, math.Max(0, total)))

	factors := make([]Factor, 0, 5)
	add := func(name string, value, max float64, fill string) {
		if max <= 0 {
			return
		}
		factors = append(factors, Factor{Name: name, Value: int(roundHalfUp(value)), Max: int(roundHalfUp(max)), Fill: fill})
	}
	add("Pain Level", painScore, p.Weights.Pain, painFill(w.AvgPain))
	add("Fatigue", fatigueScore, p.Weights.Fatigue, fatigueFill(w.AvgFatigue))
	add("Acne / Hormonal", acneScore, p.Weights.Acne, FillLilac)
	add("Hair Fall", hairScore, p.Weights.HairFall, FillPink)
	add("Diet Impact", foodScore, p.Weights.Diet, FillYellow)

	res := Result{Score: score, Level: p.Levels.Classify(score), Factors: factors, Profile: p.Name}
	if p.Suggestions {
		res.Suggestions = Suggest(p, w)
	}
	return res
}

func painFill(avg float64) string {
	switch {
	case avg > severeAverage:
		return FillRed
	case avg > moderateAverage:
		return FillYellow
	default:
		return FillGreen
	}
}

func fatigueFill(avg float64) string {
	if avg > severeAverage {
		return FillRed
	}
	return FillYellow
}

// roundHalfUp rounds .5 toward positive infinity, matching the rounding the
// browser client applies to the same numbers.
func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}
