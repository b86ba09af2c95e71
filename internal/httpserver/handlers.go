// v0
// internal/httpserver/handlers.go
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"cyclesense/analysis/internal/journal"
	"cyclesense/analysis/internal/metrics"
	"cyclesense/analysis/internal/policy"
	"cyclesense/analysis/internal/risk"
	"cyclesense/analysis/internal/similarity"
)

const (
	msgStatsNotLoaded = "Dataset stats not loaded. Run: buildstats build --input <dataset.csv> --output <stats.json>"
	msgStatsMissing   = "Stats not available"
	msgNoSymptoms     = "No symptom entries logged yet"
	sourceHTTP        = "http"
)

// JournalStore is the subset of *journal.Store used by the handlers.
type JournalStore interface {
	AddSymptom(ctx context.Context, e journal.SymptomEntry) (journal.SymptomEntry, error)
	RecentSymptoms(ctx context.Context, limit int) ([]journal.SymptomEntry, error)
	AddFood(ctx context.Context, e journal.FoodEntry) (journal.FoodEntry, error)
	Foods(ctx context.Context) ([]journal.FoodEntry, error)
	DeleteFood(ctx context.Context, id string) error
}

// Handlers serves the analysis, risk and journal endpoints.
type Handlers struct {
	Log         *slog.Logger
	Comparator  *similarity.Comparator
	Policy      *policy.Policy
	Journal     JournalStore
	Metrics     *metrics.Metrics
	StrictQuery bool
}

func (h *Handlers) compare(w http.ResponseWriter, r *http.Request) {
	in, err := similarity.ParseQuery(r.URL.Query(), h.StrictQuery)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondComparison(w, in)
}

func (h *Handlers) respondComparison(w http.ResponseWriter, in similarity.Input) {
	res, err := h.Comparator.Compare(in)
	if errors.Is(err, similarity.ErrStatsUnavailable) {
		h.Log.Warn("comparison_unavailable")
		writeError(w, http.StatusServiceUnavailable, msgStatsNotLoaded)
		return
	}
	if err != nil {
		h.Log.Error("comparison_failed", slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "comparison failed")
		return
	}
	h.Metrics.Comparison(string(res.RiskLevel), res.SimilarityScore)
	h.Log.Info("comparison_served",
		slog.Float64("pain", in.Pain),
		slog.Int("irregular", in.Irregular),
		slog.Int("junkFoods", in.JunkFoods),
		slog.Int("similarityScore", res.SimilarityScore),
		slog.String("riskLevel", string(res.RiskLevel)),
	)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) stats(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Comparator.Summary()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, msgStatsMissing)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handlers) selfCompare(w http.ResponseWriter, r *http.Request) {
	symptoms, foods, ok := h.loadJournal(w, r, 0)
	if !ok {
		return
	}
	in, ok := similarity.Aggregate(symptoms, foods)
	if !ok {
		writeError(w, http.StatusNotFound, msgNoSymptoms)
		return
	}
	h.respondComparison(w, in)
}

type profilesResponse struct {
	Default  string         `json:"default"`
	Profiles []risk.Profile `json:"profiles"`
}

func (h *Handlers) profiles(w http.ResponseWriter, r *http.Request) {
	names := h.Policy.Names()
	out := profilesResponse{Default: h.Policy.DefaultProfile, Profiles: make([]risk.Profile, 0, len(names))}
	for _, name := range names {
		out.Profiles = append(out.Profiles, h.Policy.Profiles[name])
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) riskFromJournal(w http.ResponseWriter, r *http.Request) {
	prof, err := h.Policy.Profile(r.URL.Query().Get("profile"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	symptoms, foods, ok := h.loadJournal(w, r, prof.Window)
	if !ok {
		return
	}
	h.respondRisk(w, prof, symptoms, foods)
}

type riskRequest struct {
	Profile  string                 `json:"profile"`
	Symptoms []journal.SymptomEntry `json:"symptoms"`
	Foods    []journal.FoodEntry    `json:"foods"`
}

// riskFromBody scores entries supplied by the caller. Symptoms must be
// ordered most-recent-first.
func (h *Handlers) riskFromBody(w http.ResponseWriter, r *http.Request) {
	var req riskRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := req.Profile
	if strings.TrimSpace(name) == "" {
		name = r.URL.Query().Get("profile")
	}
	prof, err := h.Policy.Profile(name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := normalizeEntries(req.Symptoms, req.Foods); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondRisk(w, prof, req.Symptoms, req.Foods)
}

// normalizeEntries applies the journal's validation to caller-supplied
// entries and canonicalizes food categories in place.
func normalizeEntries(symptoms []journal.SymptomEntry, foods []journal.FoodEntry) error {
	for i, s := range symptoms {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("symptoms[%d]: %w", i, err)
		}
	}
	for i := range foods {
		cat, err := journal.ParseCategory(string(foods[i].Category))
		if err != nil {
			return fmt.Errorf("foods[%d]: %w", i, err)
		}
		foods[i].Category = cat
	}
	return nil
}

func (h *Handlers) respondRisk(w http.ResponseWriter, prof risk.Profile, symptoms []journal.SymptomEntry, foods []journal.FoodEntry) {
	res := risk.Compute(prof, symptoms, foods)
	h.Metrics.RiskAssessment(prof.Name, string(res.Level))
	h.Log.Info("risk_computed",
		slog.String("profile", prof.Name),
		slog.Int("entries", len(symptoms)),
		slog.Int("score", res.Score),
		slog.String("level", string(res.Level)),
	)
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) addSymptom(w http.ResponseWriter, r *http.Request) {
	var e journal.SymptomEntry
	if err := decodeBody(w, r, &e); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stored, err := h.Journal.AddSymptom(r.Context(), e)
	if err != nil {
		h.storeError(w, "symptom", err)
		return
	}
	h.Metrics.JournalEntry("symptom", sourceHTTP)
	writeJSON(w, http.StatusCreated, stored)
}

func (h *Handlers) listSymptoms(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	entries, err := h.Journal.RecentSymptoms(r.Context(), limit)
	if err != nil {
		h.storeError(w, "symptom", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handlers) addFood(w http.ResponseWriter, r *http.Request) {
	var e journal.FoodEntry
	if err := decodeBody(w, r, &e); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stored, err := h.Journal.AddFood(r.Context(), e)
	if err != nil {
		h.storeError(w, "food", err)
		return
	}
	h.Metrics.JournalEntry("food", sourceHTTP)
	writeJSON(w, http.StatusCreated, stored)
}

func (h *Handlers) listFoods(w http.ResponseWriter, r *http.Request) {
	foods, err := h.Journal.Foods(r.Context())
	if err != nil {
		h.storeError(w, "food", err)
		return
	}
	writeJSON(w, http.StatusOK, foods)
}

func (h *Handlers) deleteFood(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.Journal.DeleteFood(r.Context(), id); err != nil {
		h.storeError(w, "food", err)
		return
	}
	writeJSON(w, http.StatusOK, msgBody{Msg: "Food entry removed"})
}

func (h *Handlers) loadJournal(w http.ResponseWriter, r *http.Request, window int) ([]journal.SymptomEntry, []journal.FoodEntry, bool) {
	symptoms, err := h.Journal.RecentSymptoms(r.Context(), window)
	if err != nil {
		h.storeError(w, "symptom", err)
		return nil, nil, false
	}
	foods, err := h.Journal.Foods(r.Context())
	if err != nil {
		h.storeError(w, "food", err)
		return nil, nil, false
	}
	return symptoms, foods, true
}

func (h *Handlers) storeError(w http.ResponseWriter, kind string, err error) {
	switch {
	case errors.Is(err, journal.ErrInvalidEntry):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, journal.ErrDuplicate):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, journal.ErrNotFound):
		writeError(w, http.StatusNotFound, "Entry not found")
	default:
		h.Log.Error("journal_store_error", slog.String("kind", kind), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, "journal unavailable")
	}
}
