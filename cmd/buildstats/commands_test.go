// v0
// cmd/buildstats/commands_test.go
package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyclesense/analysis/internal/dataset"
)

const csvFixture = `Age,Menstrual_Irregularity,Chronic_Pain_Level,Hormone_Level_Abnormality,Infertility,BMI,Diagnosis
30,1,6,1,0,22,1
34,0,8,0,1,24,1
28,0,2,0,0,21,0
29,1,oops,0,0,21,0
`

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(slog.New(slog.NewTextHandler(io.Discard, nil)))
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestBuildThenInspect(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "dataset.csv")
	output := filepath.Join(dir, "out", "stats.json")
	require.NoError(t, os.WriteFile(input, []byte(csvFixture), 0o644))

	_, err := run(t, "build", "--input", input, "--output", output, "--generated-at", "2024-03-01T12:00:00+02:00")
	require.NoError(t, err)

	stats, err := dataset.Load(output)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T10:00:00.000Z", stats.GeneratedAt)
	assert.Equal(t, 3, stats.TotalRows)
	assert.Equal(t, 7.0, stats.DiagnosedGroup.MeanPain)

	first, err := os.ReadFile(output)
	require.NoError(t, err)
	_, err = run(t, "build", "--input", input, "--output", output, "--generated-at", "2024-03-01T10:00:00Z")
	require.NoError(t, err)
	second, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Equal(t, first, second, "rebuilds with the same timestamp are byte-identical")

	out, err := run(t, "inspect", "--stats", output)
	require.NoError(t, err)
	var got inspection
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, 2, got.DiagnosedGroup.Count)
	assert.Equal(t, 1, got.HealthyGroup.Count)
	assert.Equal(t, dataset.DefaultWeights(), got.Weights)
}

func TestBuildFailures(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, "build")
	assert.Error(t, err, "input is required")

	_, err = run(t, "build", "--input", filepath.Join(dir, "missing.csv"))
	assert.Error(t, err)

	onlyHealthy := filepath.Join(dir, "healthy.csv")
	require.NoError(t, os.WriteFile(onlyHealthy, []byte("Age,Menstrual_Irregularity,Chronic_Pain_Level,Hormone_Level_Abnormality,Infertility,BMI,Diagnosis\n30,0,2,0,0,22,0\n"), 0o644))
	output := filepath.Join(dir, "stats.json")
	_, err = run(t, "build", "--input", onlyHealthy, "--output", output)
	assert.ErrorIs(t, err, dataset.ErrEmptyGroup)
	assert.NoFileExists(t, output)

	_, err = run(t, "inspect", "--stats", filepath.Join(dir, "nope.json"))
	assert.Error(t, err)
}

func TestResolveGeneratedAt(t *testing.T) {
	now := func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	at, err := resolveGeneratedAt("", "", now)
	require.NoError(t, err)
	assert.Equal(t, now(), at)

	at, err = resolveGeneratedAt("", "1700000000", now)
	require.NoError(t, err)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), at)

	at, err = resolveGeneratedAt("2024-01-01T00:00:00Z", "1700000000", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), at)

	_, err = resolveGeneratedAt("yesterday", "", now)
	assert.ErrorIs(t, err, errBadTimestamp)
	_, err = resolveGeneratedAt("", "soon", now)
	assert.ErrorIs(t, err, errBadTimestamp)
}
