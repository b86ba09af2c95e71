// v0
// internal/dataset/builder.go
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Required input columns.
const (
	ColDiagnosis     = "Diagnosis"
	ColPain          = "Chronic_Pain_Level"
	ColAge           = "Age"
	ColBMI           = "BMI"
	ColIrregularity  = "Menstrual_Irregularity"
	ColHormoneAbn    = "Hormone_Level_Abnormality"
	ColInfertility   = "Infertility"
	DiagnosedLabel   = "Endometriosis Diagnosed"
	HealthyLabel     = "No Diagnosis"
	statsPlaces      = 4
	demographyPlaces = 2
	lookupPlaces     = 1
)

var requiredColumns = []string{ColDiagnosis, ColPain, ColAge, ColBMI, ColIrregularity, ColHormoneAbn, ColInfertility}

var (
	// ErrNoHeader is returned for an empty source.
	ErrNoHeader = errors.New("dataset has no header line")
	// ErrMissingColumn is returned when a required column is absent.
	ErrMissingColumn = errors.New("dataset is missing a required column")
	// ErrEmptyGroup is returned when either diagnosis group has no rows.
	ErrEmptyGroup = errors.New("diagnosis group is empty")
)

// Row is one parsed dataset record.
type Row struct {
	Diagnosed  bool
	Pain       float64
	Age        float64
	BMI        float64
	Irregular  bool
	HormoneAbn bool
	Infertile  bool
}

// Report counts what happened to the source rows while parsing.
type Report struct {
	RowsRead  int `json:"rowsRead"`
	RowsKept  int `json:"rowsKept"`
	ShortRows int `json:"shortRows"`
	BadRows   int `json:"badRows"`
	Unlabeled int `json:"unlabeled"`
}

// Skipped is the total number of rows left out of the build.
func (r Report) Skipped() int {
	return r.ShortRows + r.BadRows + r.Unlabeled
}

// ReadRows parses comma-delimited rows with a header line. Rows that are
// short, unparseable, or carry a Diagnosis other than 0/1 are skipped and
// counted in the report; only I/O failures and header problems are errors.
func ReadRows(src io.Reader) ([]Row, Report, error) {
	var rep Report
	r := csv.NewReader(src)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, rep, ErrNoHeader
	}
	if err != nil {
		return nil, rep, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		index[h] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, rep, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}

	var rows []Row
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var perr *csv.ParseError
		if errors.As(err, &perr) {
			rep.RowsRead++
			rep.BadRows++
			continue
		}
		if err != nil {
			return nil, rep, fmt.Errorf("read row %d: %w", rep.RowsRead+1, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		rep.RowsRead++
		if len(rec) < len(header) {
			rep.ShortRows++
			continue
		}
		field := func(col string) (float64, error) {
			return strconv.ParseFloat(strings.TrimSpace(rec[index[col]]), 64)
		}
		diag, err := field(ColDiagnosis)
		if err != nil {
			rep.BadRows++
			continue
		}
		if diag != 0 && diag != 1 {
			rep.Unlabeled++
			continue
		}
		var vals [6]float64
		bad := false
		for i, col := range requiredColumns[1:] {
			v, err := field(col)
			if err != nil {
				bad = true
				break
			}
			vals[i] = v
		}
		if bad {
			rep.BadRows++
			continue
		}
		rows = append(rows, Row{
			Diagnosed:  diag == 1,
			Pain:       vals[0],
			Age:        vals[1],
			BMI:        vals[2],
			Irregular:  vals[3] == 1,
			HormoneAbn: vals[4] == 1,
			Infertile:  vals[5] == 1,
		})
		rep.RowsKept++
	}
	return rows, rep, nil
}

// Build reduces parsed rows into the stats artifact. The same rows and
// generatedAt always produce the same Stats.
func Build(rows []Row, generatedAt time.Time, weights ScoringWeights) (*Stats, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	var diagnosed, healthy []Row
	for _, r := range rows {
		if r.Diagnosed {
			diagnosed = append(diagnosed, r)
		} else {
			healthy = append(healthy, r)
		}
	}
	if len(diagnosed) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyGroup, DiagnosedLabel)
	}
	if len(healthy) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyGroup, HealthyLabel)
	}

	stats := &Stats{
		GeneratedAt:    generatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		TotalRows:      len(diagnosed) + len(healthy),
		DiagnosedGroup: ComputeGroup(DiagnosedLabel, diagnosed),
		HealthyGroup:   ComputeGroup(HealthyLabel, healthy),
		PainLookup:     BuildPainLookup(pains(diagnosed)),
		ScoringWeights: weights,
	}
	if err := stats.Validate(); err != nil {
		return nil, err
	}
	return stats, nil
}

// BuildFromCSV parses src and builds the stats in one step.
func BuildFromCSV(src io.Reader, generatedAt time.Time, weights ScoringWeights) (*Stats, Report, error) {
	rows, rep, err := ReadRows(src)
	if err != nil {
		return nil, rep, err
	}
	stats, err := Build(rows, generatedAt, weights)
	return stats, rep, err
}

// ComputeGroup summarizes one group. An empty group yields zero values.
func ComputeGroup(label string, rows []Row) GroupStats {
	pain := pains(rows)
	age := make([]float64, 0, len(rows))
	bmi := make([]float64, 0, len(rows))
	var irregular, hormone, infertile int
	for _, r := range rows {
		age = append(age, r.Age)
		bmi = append(bmi, r.BMI)
		if r.Irregular {
			irregular++
		}
		if r.HormoneAbn {
			hormone++
		}
		if r.Infertile {
			infertile++
		}
	}
	return GroupStats{
		Label:            label,
		Count:            len(rows),
		MeanPain:         Round(Mean(pain), statsPlaces),
		StdPain:          Round(StdDev(pain), statsPlaces),
		P25Pain:          Round(Percentile(pain, 25), statsPlaces),
		P50Pain:          Round(Percentile(pain, 50), statsPlaces),
		P75Pain:          Round(Percentile(pain, 75), statsPlaces),
		P90Pain:          Round(Percentile(pain, 90), statsPlaces),
		MeanAge:          Round(Mean(age), demographyPlaces),
		MeanBMI:          Round(Mean(bmi), demographyPlaces),
		IrregularityRate: Round(Rate(irregular, len(rows)), statsPlaces),
		HormoneAbnRate:   Round(Rate(hormone, len(rows)), statsPlaces),
		InfertilityRate:  Round(Rate(infertile, len(rows)), statsPlaces),
	}
}

// BuildPainLookup computes, for every half-point bucket from 0.0 to 10.0,
// the percentage of values at or below the bucket.
func BuildPainLookup(values []float64) PainLookup {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	out := make(PainLookup, LookupBuckets)
	for i := 0; i < LookupBuckets; i++ {
		threshold := float64(i) * LookupStep
		count := sort.Search(len(sorted), func(j int) bool { return sorted[j] > threshold })
		out[LookupKey(threshold)] = Round(Rate(count, len(sorted))*100, lookupPlaces)
	}
	return out
}

func pains(rows []Row) []float64 {
	out := make([]float64, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Pain)
	}
	return out
}
