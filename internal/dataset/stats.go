// v0
// internal/dataset/stats.go
package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Pain lookup table bounds: 0.0 through 10.0 in steps of 0.5.
const (
	LookupStep    = 0.5
	LookupMax     = 10.0
	LookupBuckets = 21
)

var (
	// ErrInvalidWeights is returned when scoring weights are negative or do
	// not sum to 1.
	ErrInvalidWeights = errors.New("scoring weights must be non-negative and sum to 1")
	// ErrInvalidStats wraps every consistency failure of a stats artifact.
	ErrInvalidStats = errors.New("invalid dataset stats")
)

// ScoringWeights are the fixed composite weights used by the comparator.
type ScoringWeights struct {
	Pain         float64 `json:"pain"`
	Irregularity float64 `json:"irregularity"`
	HormoneProxy float64 `json:"hormoneProxy"`
}

// DefaultWeights returns the shipped weights. They are a design constant and
// are not derived from the data.
func DefaultWeights() ScoringWeights {
	return ScoringWeights{Pain: 0.45, Irregularity: 0.35, HormoneProxy: 0.20}
}

// Validate checks that the weights are usable as a convex combination.
func (w ScoringWeights) Validate() error {
	for _, v := range []float64{w.Pain, w.Irregularity, w.HormoneProxy} {
		if v < 0 || math.IsNaN(v) {
			return ErrInvalidWeights
		}
	}
	if math.Abs(w.Pain+w.Irregularity+w.HormoneProxy-1) > 1e-9 {
		return fmt.Errorf("%w: got %g", ErrInvalidWeights, w.Pain+w.Irregularity+w.HormoneProxy)
	}
	return nil
}

// GroupStats summarizes one diagnosis group of the reference dataset.
type GroupStats struct {
	Label            string  `json:"label"`
	Count            int     `json:"count"`
	MeanPain         float64 `json:"meanPain"`
	StdPain          float64 `json:"stdPain"`
	P25Pain          float64 `json:"p25Pain"`
	P50Pain          float64 `json:"p50Pain"`
	P75Pain          float64 `json:"p75Pain"`
	P90Pain          float64 `json:"p90Pain"`
	MeanAge          float64 `json:"meanAge"`
	MeanBMI          float64 `json:"meanBMI"`
	IrregularityRate float64 `json:"irregularityRate"`
	HormoneAbnRate   float64 `json:"hormoneAbnRate"`
	InfertilityRate  float64 `json:"infertilityRate"`
}

func (g GroupStats) validate(name string) error {
	if g.Count < 0 {
		return fmt.Errorf("%w: %s count is negative", ErrInvalidStats, name)
	}
	for field, v := range map[string]float64{
		"irregularityRate": g.IrregularityRate,
		"hormoneAbnRate":   g.HormoneAbnRate,
		"infertilityRate":  g.InfertilityRate,
	} {
		if v < 0 || v > 1 || math.IsNaN(v) {
			return fmt.Errorf("%w: %s %s %g outside [0,1]", ErrInvalidStats, name, field, v)
		}
	}
	for field, v := range map[string]float64{"meanPain": g.MeanPain, "stdPain": g.StdPain, "meanAge": g.MeanAge, "meanBMI": g.MeanBMI} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s %s is not finite", ErrInvalidStats, name, field)
		}
	}
	return nil
}

// PainLookup maps a pain bucket key ("0.0" … "10.0") to the percentage of
// the diagnosed group reporting pain at or below it.
type PainLookup map[string]float64

// LookupKey formats a pain bucket the way the table is keyed.
func LookupKey(pain float64) string {
	return strconv.FormatFloat(pain, 'f', 1, 64)
}

// LookupKeys returns the 21 bucket keys in ascending numeric order.
func LookupKeys() []string {
	keys := make([]string, 0, LookupBuckets)
	for i := 0; i < LookupBuckets; i++ {
		keys = append(keys, LookupKey(float64(i)*LookupStep))
	}
	return keys
}

// MarshalJSON writes buckets in numeric order so artifacts diff cleanly.
func (p PainLookup) MarshalJSON() ([]byte, error) {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, errA := strconv.ParseFloat(keys[i], 64)
		b, errB := strconv.ParseFloat(keys[j], 64)
		if errA != nil || errB != nil || a == b {
			return keys[i] < keys[j]
		}
		return a < b
	})
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(p[k])
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Stats is the precomputed artifact produced by the offline builder and
// consumed read-only by the comparator.
type Stats struct {
	GeneratedAt    string         `json:"generatedAt"`
	TotalRows      int            `json:"totalRows"`
	DiagnosedGroup GroupStats     `json:"diagnosedGroup"`
	HealthyGroup   GroupStats     `json:"healthyGroup"`
	PainLookup     PainLookup     `json:"painLookup"`
	ScoringWeights ScoringWeights `json:"scoringWeights"`
}

// Percentile returns the lookup value for a pain level rounded to the nearest
// half point. Missing or out-of-range buckets yield 0.
func (s *Stats) Percentile(pain float64) float64 {
	if s == nil || math.IsNaN(pain) || math.IsInf(pain, 0) {
		return 0
	}
	bucket := math.Floor(pain*2+0.5) / 2
	return s.PainLookup[LookupKey(bucket)]
}

// Validate checks the invariants every artifact must satisfy.
func (s *Stats) Validate() error {
	if s == nil {
		return fmt.Errorf("%w: nil stats", ErrInvalidStats)
	}
	if err := s.ScoringWeights.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStats, err)
	}
	if s.TotalRows < 0 {
		return fmt.Errorf("%w: totalRows is negative", ErrInvalidStats)
	}
	if err := s.DiagnosedGroup.validate("diagnosedGroup"); err != nil {
		return err
	}
	if err := s.HealthyGroup.validate("healthyGroup"); err != nil {
		return err
	}
	if s.DiagnosedGroup.Count+s.HealthyGroup.Count != s.TotalRows {
		return fmt.Errorf("%w: group counts %d+%d do not add up to totalRows %d",
			ErrInvalidStats, s.DiagnosedGroup.Count, s.HealthyGroup.Count, s.TotalRows)
	}
	if len(s.PainLookup) != LookupBuckets {
		return fmt.Errorf("%w: painLookup has %d buckets, want %d", ErrInvalidStats, len(s.PainLookup), LookupBuckets)
	}
	for _, k := range LookupKeys() {
		v, ok := s.PainLookup[k]
		if !ok {
			return fmt.Errorf("%w: painLookup missing bucket %q", ErrInvalidStats, k)
		}
		if v < 0 || v > 100 || math.IsNaN(v) {
			return fmt.Errorf("%w: painLookup[%s]=%g outside [0,100]", ErrInvalidStats, k, v)
		}
	}
	return nil
}
