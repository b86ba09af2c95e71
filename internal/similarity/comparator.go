// v0
// internal/similarity/comparator.go
package similarity

import (
	"errors"
	"fmt"
	"math"

	"cyclesense/analysis/internal/dataset"
)

// ErrStatsUnavailable is returned when no dataset stats were loaded.
var ErrStatsUnavailable = errors.New("dataset stats not loaded")

const (
	painScale      = 10.0
	junkFoodCap    = 10.0
	percentPlaces  = 1
	irregularValue = 1
)

// RiskLevel is the comparator's three-tier classification.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

// Levels holds the similarity cut-offs. They are intentionally separate from
// the local risk calculator's levels.
type Levels struct {
	Moderate int `yaml:"moderate" json:"moderate"`
	High     int `yaml:"high" json:"high"`
}

// DefaultLevels returns moderate at 35 and high at 60.
func DefaultLevels() Levels {
	return Levels{Moderate: 35, High: 60}
}

// Classify maps a similarity score to its level.
func (l Levels) Classify(score int) RiskLevel {
	switch {
	case score < l.Moderate:
		return RiskLow
	case score < l.High:
		return RiskModerate
	default:
		return RiskHigh
	}
}

// Validate requires 0 < moderate < high <= 100.
func (l Levels) Validate() error {
	if l.Moderate <= 0 || l.Moderate >= l.High || l.High > 100 {
		return fmt.Errorf("comparator levels must satisfy 0 < moderate < high <= 100, got %d/%d", l.Moderate, l.High)
	}
	return nil
}

// Input carries a user's aggregate metrics.
type Input struct {
	Pain      float64
	Irregular int
	JunkFoods int
}

// UserValues echoes the inputs back to the caller.
type UserValues struct {
	Pain         float64 `json:"pain"`
	Irregular    int     `json:"irregular"`
	JunkFoods    int     `json:"junkFoods"`
	HormoneProxy float64 `json:"hormoneProxy"`
	NormPain     float64 `json:"normPain"`
}

// GroupView is the display subset of one group's stats. Rates are percents.
type GroupView struct {
	MeanPain         float64 `json:"meanPain"`
	IrregularityRate float64 `json:"irregularityRate"`
	HormoneAbnRate   float64 `json:"hormoneAbnRate"`
	MeanAge          float64 `json:"meanAge"`
}

// Comparison is the side-by-side table of both groups.
type Comparison struct {
	TotalDatasetRows int       `json:"totalDatasetRows"`
	DiagnosedCount   int       `json:"diagnosedCount"`
	HealthyCount     int       `json:"healthyCount"`
	Diagnosed        GroupView `json:"diagnosed"`
	Healthy          GroupView `json:"healthy"`
}

// Result is the outcome of one comparison. It is never persisted.
type Result struct {
	SimilarityScore   int        `json:"similarityScore"`
	RiskLevel         RiskLevel  `json:"riskLevel"`
	PainPercentile    int        `json:"painPercentile"`
	UserValues        UserValues `json:"userValues"`
	DatasetComparison Comparison `json:"datasetComparison"`
}

// Summary is the short description served by the stats endpoint.
type Summary struct {
	TotalRows      int    `json:"totalRows"`
	DiagnosedCount int    `json:"diagnosedCount"`
	HealthyCount   int    `json:"healthyCount"`
	GeneratedAt    string `json:"generatedAt"`
}

// Comparator scores inputs against a loaded, read-only stats artifact. It is
// safe for concurrent use.
type Comparator struct {
	stats  *dataset.Stats
	levels Levels
}

// NewComparator wraps stats, which may be nil when loading failed. Every
// call then reports ErrStatsUnavailable.
func NewComparator(stats *dataset.Stats, levels Levels) *Comparator {
	return &Comparator{stats: stats, levels: levels}
}

// Available reports whether stats are loaded.
func (c *Comparator) Available() bool {
	return c != nil && c.stats != nil
}

// Summary describes the loaded artifact.
func (c *Comparator) Summary() (Summary, error) {
	if !c.Available() {
		return Summary{}, ErrStatsUnavailable
	}
	s := c.stats
	return Summary{
		TotalRows:      s.TotalRows,
		DiagnosedCount: s.DiagnosedGroup.Count,
		HealthyCount:   s.HealthyGroup.Count,
		GeneratedAt:    s.GeneratedAt,
	}, nil
}

// Compare scores in against the diagnosed population profile.
//
// The pain term is asymmetric: when the user's pain is strictly closer to the
// diagnosed mean the score is 1 - diff/10, otherwise it is the distance from
// the healthy mean over 10.
func (c *Comparator) Compare(in Input) (Result, error) {
	if !c.Available() {
		return Result{}, ErrStatsUnavailable
	}
	in = sanitize(in)
	dg, hg, w := c.stats.DiagnosedGroup, c.stats.HealthyGroup, c.stats.ScoringWeights

	normPain := math.Min(1, in.Pain/painScale)
	hormoneProxy := math.Min(1, float64(in.JunkFoods)/junkFoodCap)

	diagDiff := math.Abs(in.Pain - dg.MeanPain)
	healthyDiff := math.Abs(in.Pain - hg.MeanPain)
	var painScore float64
	if diagDiff < healthyDiff {
		painScore = 1 - diagDiff/painScale
	} else {
		painScore = healthyDiff / painScale
	}

	irregScore := 1 - hg.IrregularityRate
	if in.Irregular == irregularValue {
		irregScore = dg.IrregularityRate
	}

	hormoneScore := hormoneProxy * dg.HormoneAbnRate

	raw := painScore*w.Pain + irregScore*w.Irregularity + hormoneScore*w.HormoneProxy
	score := int(roundHalfUp(math.Min(100, math.Max(0, raw*100))))

	return Result{
		SimilarityScore: score,
		RiskLevel:       c.levels.Classify(score),
		PainPercentile:  int(roundHalfUp(c.stats.Percentile(in.Pain))),
		UserValues: UserValues{
			Pain:         in.Pain,
			Irregular:    in.Irregular,
			JunkFoods:    in.JunkFoods,
			HormoneProxy: dataset.Round(hormoneProxy*100, percentPlaces),
			NormPain:     normPain,
		},
		DatasetComparison: Comparison{
			TotalDatasetRows: c.stats.TotalRows,
			DiagnosedCount:   dg.Count,
			HealthyCount:     hg.Count,
			Diagnosed:        view(dg),
			Healthy:          view(hg),
		},
	}, nil
}

func view(g dataset.GroupStats) GroupView {
	return GroupView{
		MeanPain:         g.MeanPain,
		IrregularityRate: dataset.Round(g.IrregularityRate*100, percentPlaces),
		HormoneAbnRate:   dataset.Round(g.HormoneAbnRate*100, percentPlaces),
		MeanAge:          g.MeanAge,
	}
}

func sanitize(in Input) Input {
	if math.IsNaN(in.Pain) || math.IsInf(in.Pain, 0) {
		in.Pain = 0
	}
	if in.JunkFoods < 0 {
		in.JunkFoods = 0
	}
	return in
}

func roundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}
