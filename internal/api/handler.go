package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sipadi/padi/internal/domain"
	"github.com/sipadi/padi/internal/quota"
	"github.com/sipadi/padi/internal/rules"
	"github.com/sipadi/padi/internal/verdict"
)

// Deps holds what the handlers need. Cache and Bus are optional.
type Deps struct {
	Repo    domain.Repository
	Cache   domain.Cache
	Bus     domain.EventBus
	Catalog *rules.Catalog
	Verdict *verdict.Service
	Guard   *quota.Guard
	Metrics *Metrics
	Version string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	catalog *rules.Catalog
	verdict *verdict.Service
	guard   *quota.Guard
	metrics *Metrics
	version string
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	if deps.Metrics == nil {
		deps.Metrics = NewMetrics()
	}
	return &Handler{
		repo:    deps.Repo,
		cache:   deps.Cache,
		bus:     deps.Bus,
		catalog: deps.Catalog,
		verdict: deps.Verdict,
		guard:   deps.Guard,
		metrics: deps.Metrics,
		version: deps.Version,
	}
}

// Envelope wraps every JSON response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	components := map[string]string{}

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			slog.Warn("health check failed", "component", name, "error", err)
			components[name] = "down"
			status = "degraded"
			return
		}
		components[name] = "up"
	}
	if h.repo != nil {
		check("repository", func() error { return h.repo.Ping(ctx) })
	}
	if h.cache != nil {
		check("cache", func() error { return h.cache.Ping(ctx) })
	}
	if h.bus != nil {
		check("bus", func() error { return h.bus.Ping(ctx) })
	}

	writeSuccess(w, http.StatusOK, "", map[string]any{
		"status":     status,
		"version":    h.version,
		"components": components,
	})
}

// Ready reports whether a knowledge base is loaded.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.catalog == nil || h.catalog.Current() == nil {
		writeError(w, http.StatusServiceUnavailable, "knowledge base not loaded")
		return
	}
	snap := h.catalog.Current()
	symptoms, diseases, activeRules := snap.Stats()
	writeSuccess(w, http.StatusOK, "", map[string]any{
		"ready":        true,
		"symptoms":     symptoms,
		"diseases":     diseases,
		"active_rules": activeRules,
		"loaded_at":    snap.LoadedAt(),
	})
}

// ListSymptoms returns every symptom.
func (h *Handler) ListSymptoms(w http.ResponseWriter, r *http.Request) {
	symptoms, err := h.repo.ListSymptoms(r.Context())
	if err != nil {
		writeDomainError(w, "failed to list symptoms", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", symptoms)
}

// ListDiseases returns every disease.
func (h *Handler) ListDiseases(w http.ResponseWriter, r *http.Request) {
	diseases, err := h.repo.ListDiseases(r.Context())
	if err != nil {
		writeDomainError(w, "failed to list diseases", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", diseases)
}

// DiseaseSymptom is a symptom as it appears in one disease's rules.
type DiseaseSymptom struct {
	domain.SymptomRef
	RuleCode string  `json:"rule_code"`
	MB       float64 `json:"mb"`
	MD       float64 `json:"md"`
	Active   bool    `json:"is_active"`
}

// GetDisease returns a disease with the symptoms its rules reference.
func (h *Handler) GetDisease(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	disease, err := h.repo.Disease(ctx, id)
	if err != nil {
		writeDomainError(w, "failed to get disease", err)
		return
	}

	all, err := h.repo.ListRules(ctx)
	if err != nil {
		writeDomainError(w, "failed to list rules", err)
		return
	}
	var own []*domain.Rule
	var symptomIDs []int64
	for _, rule := range all {
		if rule.DiseaseID == id {
			own = append(own, rule)
			symptomIDs = append(symptomIDs, rule.SymptomID)
		}
	}
	symptoms, err := h.repo.Symptoms(ctx, symptomIDs)
	if err != nil {
		writeDomainError(w, "failed to load symptoms", err)
		return
	}

	minMatch := 0
	items := make([]DiseaseSymptom, 0, len(own))
	for _, rule := range own {
		s, ok := symptoms[rule.SymptomID]
		if !ok {
			continue
		}
		minMatch = rule.MinSymptomMatch
		items = append(items, DiseaseSymptom{
			SymptomRef: s.Ref(),
			RuleCode:   rule.Code,
			MB:         round4(rule.MB),
			MD:         round4(rule.MD),
			Active:     rule.Active,
		})
	}

	writeSuccess(w, http.StatusOK, "", map[string]any{
		"disease":           disease,
		"symptoms":          items,
		"min_symptom_match": minMatch,
	})
}

// ListHistory returns the caller's visible diagnoses, newest first.
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 100)
	}

	items, err := h.repo.ListHistory(ctx, GetUserID(ctx), nowUTC(), limit)
	if err != nil {
		writeDomainError(w, "failed to list history", err)
		return
	}
	for _, item := range items {
		roundHistory(item)
	}
	writeSuccess(w, http.StatusOK, "", items)
}

// GetHistory returns one of the caller's diagnoses.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	item, err := h.repo.GetHistory(ctx, GetUserID(ctx), id)
	if err != nil {
		writeDomainError(w, "failed to get history", err)
		return
	}
	roundHistory(item)
	writeSuccess(w, http.StatusOK, "", item)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeSuccess(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, Envelope{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Envelope{Success: false, Message: message})
}

// writeDomainError maps repository and validation errors to status codes.
func writeDomainError(w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error(msg, "error", err)
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	return true
}

func idParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}
