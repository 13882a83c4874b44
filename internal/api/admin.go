package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sipadi/padi/internal/domain"
	"github.com/sipadi/padi/internal/rules"
)

// CreateSymptom handles POST /symptoms. A symptom with an existing code is updated.
func (h *Handler) CreateSymptom(w http.ResponseWriter, r *http.Request) {
	var s domain.Symptom
	if !decodeJSON(w, r, &s) {
		return
	}
	s.ID = 0
	if err := h.repo.SaveSymptom(r.Context(), &s); err != nil {
		writeDomainError(w, "failed to save symptom", err)
		return
	}
	slog.Info("symptom saved", "symptom_id", s.ID, "code", s.Code)
	writeSuccess(w, http.StatusCreated, "Gejala berhasil disimpan", &s)
}

// CreateDisease handles POST /diseases. A disease with an existing code is updated.
func (h *Handler) CreateDisease(w http.ResponseWriter, r *http.Request) {
	var d domain.Disease
	if !decodeJSON(w, r, &d) {
		return
	}
	d.ID = 0
	if err := h.repo.SaveDisease(r.Context(), &d); err != nil {
		writeDomainError(w, "failed to save disease", err)
		return
	}
	slog.Info("disease saved", "disease_id", d.ID, "code", d.Code)
	writeSuccess(w, http.StatusCreated, "Penyakit berhasil disimpan", &d)
}

// ListRules returns every stored rule, active or not.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	list, err := h.repo.ListRules(r.Context())
	if err != nil {
		writeDomainError(w, "failed to list rules", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", map[string]any{
		"rules": list,
		"count": len(list),
	})
}

// CreateRules handles POST /rules. It replaces the disease's rules with
// one rule per symptom, scaled by cf_value, then reloads the knowledge base.
func (h *Handler) CreateRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var draft rules.RuleDraft
	if !decodeJSON(w, r, &draft) {
		return
	}
	if _, err := h.repo.Disease(ctx, draft.DiseaseID); err != nil {
		writeDomainError(w, "failed to load disease", err)
		return
	}

	symptoms, err := h.repo.Symptoms(ctx, draft.SymptomIDs)
	if err != nil {
		writeDomainError(w, "failed to load symptoms", err)
		return
	}
	existing, err := h.repo.ListRules(ctx)
	if err != nil {
		writeDomainError(w, "failed to list rules", err)
		return
	}
	codes := make([]string, 0, len(existing))
	for _, rule := range existing {
		codes = append(codes, rule.Code)
	}

	built, err := rules.BuildRules(draft, symptoms, rules.NextRuleNumber(codes))
	if err != nil {
		writeDomainError(w, "failed to build rules", err)
		return
	}
	if err := h.repo.ReplaceDiseaseRules(ctx, draft.DiseaseID, built); err != nil {
		writeDomainError(w, "failed to save rules", err)
		return
	}

	slog.Info("disease rules replaced",
		"disease_id", draft.DiseaseID,
		"rules", len(built),
	)
	h.reload(ctx)
	writeSuccess(w, http.StatusCreated, fmt.Sprintf("%d aturan berhasil disimpan", len(built)), built)
}

// SetRuleActive handles PUT /rules/{id}/active.
func (h *Handler) SetRuleActive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var body struct {
		Active *bool `json:"is_active"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if body.Active == nil {
		writeError(w, http.StatusBadRequest, "is_active is required")
		return
	}

	if err := h.repo.SetRuleActive(ctx, id, *body.Active); err != nil {
		writeDomainError(w, "failed to update rule", err)
		return
	}
	h.reload(ctx)
	writeSuccess(w, http.StatusOK, "", map[string]any{
		"id":        id,
		"is_active": *body.Active,
	})
}

// SetMinSymptomMatch handles PUT /diseases/{id}/min-match. The value must
// lie between 1 and the disease's rule count.
func (h *Handler) SetMinSymptomMatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := idParam(w, r)
	if !ok {
		return
	}

	var body struct {
		MinSymptomMatch int `json:"min_symptom_match"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}

	all, err := h.repo.ListRules(ctx)
	if err != nil {
		writeDomainError(w, "failed to list rules", err)
		return
	}
	count := 0
	for _, rule := range all {
		if rule.DiseaseID == id {
			count++
		}
	}
	if count == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("disease %d has no rules", id))
		return
	}
	if body.MinSymptomMatch < 1 || body.MinSymptomMatch > count {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("min_symptom_match must be between 1 and %d", count))
		return
	}

	if err := h.repo.SetMinSymptomMatch(ctx, id, body.MinSymptomMatch); err != nil {
		writeDomainError(w, "failed to update min symptom match", err)
		return
	}
	h.reload(ctx)
	writeSuccess(w, http.StatusOK, "", map[string]any{
		"disease_id":        id,
		"min_symptom_match": body.MinSymptomMatch,
	})
}

// ReloadRules rebuilds the knowledge base snapshot from the repository.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	snap, err := h.catalog.Reload(r.Context())
	if err != nil {
		slog.Error("failed to reload knowledge base", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload knowledge base: "+err.Error())
		return
	}
	h.metrics.kbReloads.Inc()

	symptoms, diseases, activeRules := snap.Stats()
	writeSuccess(w, http.StatusOK, "knowledge base reloaded", map[string]any{
		"symptoms":     symptoms,
		"diseases":     diseases,
		"active_rules": activeRules,
	})
}

// reload refreshes the snapshot after an edit. A failed reload keeps the
// previous snapshot, so the edit still succeeds.
func (h *Handler) reload(ctx context.Context) {
	if h.catalog == nil {
		return
	}
	if _, err := h.catalog.Reload(ctx); err != nil {
		slog.Error("failed to reload knowledge base", "error", err)
		return
	}
	h.metrics.kbReloads.Inc()
}

// ListSettings returns every runtime setting.
func (h *Handler) ListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.repo.ListSettings(r.Context())
	if err != nil {
		writeDomainError(w, "failed to list settings", err)
		return
	}
	writeSuccess(w, http.StatusOK, "", settings)
}

// numericSettings must hold non-negative integers.
var numericSettings = map[string]bool{
	domain.SettingMaxDiagnosesPerDay:   true,
	domain.SettingHistoryRetentionDays: true,
}

// UpdateSetting handles PUT /settings/{key}.
func (h *Handler) UpdateSetting(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	var body struct {
		Value string `json:"value"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if numericSettings[key] {
		if n, err := strconv.Atoi(body.Value); err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, key+" must be a non-negative integer")
			return
		}
	}

	if err := h.repo.SetSetting(r.Context(), key, body.Value); err != nil {
		writeDomainError(w, "failed to save setting", err)
		return
	}
	slog.Info("setting updated", "key", key, "value", body.Value)
	writeSuccess(w, http.StatusOK, "", map[string]string{"key": key, "value": body.Value})
}

// CleanupHistory handles POST /history/cleanup.
func (h *Handler) CleanupHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cutoff, ok := h.guard.RetentionCutoff(ctx)
	if !ok {
		writeSuccess(w, http.StatusOK, "history retention is disabled", map[string]any{"deleted": 0})
		return
	}

	deleted, err := h.repo.DeleteHistoryBefore(ctx, cutoff)
	if err != nil {
		writeDomainError(w, "failed to clean up history", err)
		return
	}
	slog.Info("history cleaned up", "deleted", deleted, "before", cutoff)
	writeSuccess(w, http.StatusOK, "", map[string]any{
		"deleted": deleted,
		"before":  cutoff.UTC(),
	})
}
