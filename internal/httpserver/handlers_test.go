// v0
// internal/httpserver/handlers_test.go
package httpserver

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyclesense/analysis/internal/dataset"
	"cyclesense/analysis/internal/journal"
	"cyclesense/analysis/internal/metrics"
	"cyclesense/analysis/internal/policy"
	"cyclesense/analysis/internal/risk"
	"cyclesense/analysis/internal/similarity"
)

func testStats(t *testing.T) *dataset.Stats {
	t.Helper()
	rows := []dataset.Row{
		{Diagnosed: true, Pain: 2, Age: 30, Irregular: true, HormoneAbn: true},
		{Diagnosed: true, Pain: 4, Age: 32, Irregular: true},
		{Diagnosed: true, Pain: 6, Age: 34, Irregular: true, HormoneAbn: true},
		{Diagnosed: true, Pain: 8, Age: 36},
		{Pain: 1, Age: 25},
		{Pain: 3, Age: 27, Irregular: true},
	}
	stats, err := dataset.Build(rows, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), dataset.DefaultWeights())
	require.NoError(t, err)
	return stats
}

type fixture struct {
	server  *httptest.Server
	journal *journal.Store
	health  *HealthState
}

func newFixture(t *testing.T, stats *dataset.Stats, strict bool) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := journal.Open(":memory:", logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := &Handlers{
		Log:         logger,
		Comparator:  similarity.NewComparator(stats, similarity.DefaultLevels()),
		Policy:      policy.Default(),
		Journal:     store,
		Metrics:     metrics.New(),
		StrictQuery: strict,
	}
	health := NewHealthState()
	health.SetReady(true)
	srv := httptest.NewServer(NewHandler(h, health, logger, []string{"http://localhost:3000"}))
	t.Cleanup(srv.Close)
	return &fixture{server: srv, journal: store, health: health}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.server.URL+path, rdr)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

func TestCompareServedAtRootAndAPIAlias(t *testing.T) {
	f := newFixture(t, testStats(t), false)
	for _, path := range []string{"/analysis/compare", "/api/analysis/compare"} {
		resp, body := f.do(t, http.MethodGet, path+"?pain=5&irregular=1&junkFoods=10", "")
		require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
		res := decode[similarity.Result](t, body)
		assert.Equal(t, 81, res.SimilarityScore)
		assert.Equal(t, similarity.RiskHigh, res.RiskLevel)
		assert.Equal(t, 50, res.PainPercentile)
		assert.Equal(t, 100.0, res.UserValues.HormoneProxy)
		assert.Equal(t, 6, res.DatasetComparison.TotalDatasetRows)
	}
}

func TestComparePermissiveAndStrictQueries(t *testing.T) {
	lenient := newFixture(t, testStats(t), false)
	resp, body := lenient.do(t, http.MethodGet, "/analysis/compare?pain=abc&junkFoods=x", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[similarity.Result](t, body)
	assert.Equal(t, similarity.UserValues{}, res.UserValues)

	strict := newFixture(t, testStats(t), true)
	resp, body = strict.do(t, http.MethodGet, "/analysis/compare?pain=abc", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[map[string]string](t, body)["msg"], "pain")
}

func TestAnalysisWithoutStatsIsUnavailable(t *testing.T) {
	f := newFixture(t, nil, false)

	resp, body := f.do(t, http.MethodGet, "/analysis/compare?pain=5", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, decode[map[string]string](t, body)["msg"], "Dataset stats not loaded")

	resp, body = f.do(t, http.MethodGet, "/api/analysis/stats", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, map[string]string{"msg": "Stats not available"}, decode[map[string]string](t, body))

	resp, body = f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, healthBody{Status: "ok", Ready: true, StatsLoaded: false}, decode[healthBody](t, body))
}

func TestStatsSummary(t *testing.T) {
	f := newFixture(t, testStats(t), false)
	resp, body := f.do(t, http.MethodGet, "/analysis/stats", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, similarity.Summary{TotalRows: 6, DiagnosedCount: 4, HealthyCount: 2, GeneratedAt: "2024-05-01T00:00:00.000Z"},
		decode[similarity.Summary](t, body))
}

func TestMethodNotAllowedAndNotFound(t *testing.T) {
	f := newFixture(t, testStats(t), false)
	resp, body := f.do(t, http.MethodPost, "/analysis/compare", "{}")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "method not allowed", decode[map[string]string](t, body)["msg"])

	resp, _ = f.do(t, http.MethodPost, "/api/analysis/stats", "{}")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = f.do(t, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestJournalEndpointsAndRisk(t *testing.T) {
	f := newFixture(t, testStats(t), false)

	resp, body := f.do(t, http.MethodGet, "/risk", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	empty := decode[risk.Result](t, body)
	assert.Equal(t, 0, empty.Score)
	assert.Equal(t, risk.LevelLow, empty.Level)
	assert.Empty(t, empty.Factors)

	resp, _ = f.do(t, http.MethodGet, "/analysis/self", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	for i := 0; i < 4; i++ {
		resp, body = f.do(t, http.MethodPost, "/api/symptoms", `{"date":"2024-04-0`+string(rune('1'+i))+`","pain":8,"fatigue":2,"mood":"low"}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	}
	created := decode[journal.SymptomEntry](t, body)
	assert.NotEmpty(t, created.ID)

	resp, body = f.do(t, http.MethodPost, "/symptoms", `{"pain":12}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
	resp, _ = f.do(t, http.MethodPost, "/symptoms", `not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = f.do(t, http.MethodGet, "/symptoms?limit=2", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	listed := decode[[]journal.SymptomEntry](t, body)
	require.Len(t, listed, 2)
	assert.Equal(t, "2024-04-04", listed[0].Date)

	resp, _ = f.do(t, http.MethodGet, "/symptoms?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = f.do(t, http.MethodGet, "/risk?profile=core", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	core := decode[risk.Result](t, body)
	assert.Equal(t, 40, core.Score)
	assert.Equal(t, risk.LevelMedium, core.Level)
	assert.Equal(t, "core", core.Profile)
	require.Len(t, core.Suggestions, 2, "pain and cycle hints")

	resp, _ = f.do(t, http.MethodGet, "/risk?profile=legacy", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = f.do(t, http.MethodPost, "/foods", `{"name":"fries","category":"junk"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	fries := decode[journal.FoodEntry](t, body)
	resp, _ = f.do(t, http.MethodPost, "/foods", `{"name":"soda","category":"sugar"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = f.do(t, http.MethodPost, "/foods", `{"name":"rock","category":"mineral"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body = f.do(t, http.MethodGet, "/foods", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]journal.FoodEntry](t, body), 2)

	resp, body = f.do(t, http.MethodGet, "/analysis/self", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	self := decode[similarity.Result](t, body)
	assert.Equal(t, similarity.UserValues{Pain: 8, Irregular: 0, JunkFoods: 2, HormoneProxy: 20, NormPain: 0.8}, self.UserValues)

	resp, _ = f.do(t, http.MethodDelete, "/foods/"+fries.ID, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body = f.do(t, http.MethodDelete, "/foods/"+fries.ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, string(body))
}

func TestRiskFromBody(t *testing.T) {
	f := newFixture(t, testStats(t), false)
	body := `{"profile":"core","symptoms":[{"pain":10,"fatigue":10},{"pain":10,"fatigue":10}],
		"foods":[{"name":"a","category":"junk"},{"name":"b","category":"sugar"},{"name":"c","category":"junk"},
		{"name":"d","category":"junk"},{"name":"e","category":"sugar"}]}`
	resp, data := f.do(t, http.MethodPost, "/api/risk", body)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	res := decode[risk.Result](t, data)
	assert.Equal(t, 100, res.Score)
	assert.Equal(t, risk.LevelHigh, res.Level)

	resp, data = f.do(t, http.MethodPost, "/risk?profile=full", `{"symptoms":[]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "full", decode[risk.Result](t, data).Profile)

	resp, _ = f.do(t, http.MethodPost, "/risk", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProfilesListing(t *testing.T) {
	f := newFixture(t, testStats(t), false)
	resp, body := f.do(t, http.MethodGet, "/risk/profiles", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[profilesResponse](t, body)
	assert.Equal(t, "full", out.Default)
	require.Len(t, out.Profiles, 2)
	assert.Equal(t, "core", out.Profiles[0].Name)
}

func TestHealthProbesAndMetrics(t *testing.T) {
	f := newFixture(t, testStats(t), false)

	resp, body := f.do(t, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	f.health.SetReady(false)
	resp, body = f.do(t, http.MethodGet, "/health/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "NOT_READY", string(body))

	resp, _ = f.do(t, http.MethodGet, "/api/health/live", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	f.do(t, http.MethodGet, "/analysis/compare?pain=4", "")
	resp, body = f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `http_requests_total{route="/analysis/compare",status="200"} 1`)
	assert.Contains(t, string(body), `analysis_comparisons_total{risk_level="moderate"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, testStats(t), false)
	req, err := http.NewRequest(http.MethodOptions, f.server.URL+"/api/symptoms", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRiskFromBodyValidatesEntries(t *testing.T) {
	f := newFixture(t, testStats(t), false)

	resp, data := f.do(t, http.MethodPost, "/risk", `{"profile":"core","symptoms":[{"pain":50}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[map[string]string](t, data)["msg"], "symptoms[0]")

	resp, data = f.do(t, http.MethodPost, "/risk", `{"symptoms":[{"pain":2,"date":"01/02/2024"}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(data))

	resp, data = f.do(t, http.MethodPost, "/risk", `{"symptoms":[{"pain":2}],"foods":[{"name":"x","category":"fried"}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[map[string]string](t, data)["msg"], "foods[0]")
}

func TestRiskFromBodyNormalizesFoodCategories(t *testing.T) {
	f := newFixture(t, testStats(t), false)
	body := `{"profile":"core","symptoms":[{"pain":0}],
		"foods":[{"name":"a","category":"Junk"},{"name":"b","category":"SUGAR"},{"name":"c","category":" junk "}]}`
	resp, data := f.do(t, http.MethodPost, "/api/risk", body)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	res := decode[risk.Result](t, data)
	require.Len(t, res.Factors, 3)
	assert.Equal(t, "Diet Impact", res.Factors[2].Name)
	// 3 of a cap of 5 on a 20 point weight
	assert.Equal(t, 12, res.Factors[2].Value)
	assert.Equal(t, 12, res.Score)
}
