package api

import (
	"net/http"
	"strings"

	"example.com/salestrack/internal/auth"
	"example.com/salestrack/internal/domain"
)

// targets serves /v1/targets/{YYYY-MM} and /v1/targets?year_month=YYYY-MM. Without either
// the current month is used.
func (h *Handler) targets(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getTarget(w, r)
	case http.MethodPut, http.MethodPatch:
		h.updateTarget(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (h *Handler) yearMonth(r *http.Request) (domain.YearMonth, error) {
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/targets"), "/")
	if raw == "" {
		raw = r.URL.Query().Get("year_month")
	}
	if raw == "" {
		return domain.YearMonthOf(h.service.Today()), nil
	}
	return domain.ParseYearMonth(raw)
}

func (h *Handler) getTarget(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeTargetsRead, auth.ScopeTargetsWrite)
	if !ok {
		return
	}
	ym, err := h.yearMonth(r)
	if err != nil {
		h.fail(w, r, err, "invalid year_month")
		return
	}

	target, err := h.service.GetOrCreateTarget(r.Context(), claims.Subject, ym)
	if err != nil {
		h.fail(w, r, err, "unable to load target")
		return
	}
	writeJSON(w, http.StatusOK, toTargetView(target))
}

func (h *Handler) updateTarget(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeTargetsWrite)
	if !ok {
		return
	}
	ym, err := h.yearMonth(r)
	if err != nil {
		h.fail(w, r, err, "invalid year_month")
		return
	}

	var req TargetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.TargetAcquisition == nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "target_acquisition is required")
		return
	}

	target, err := h.service.UpdateTarget(r.Context(), claims.Subject, ym, *req.TargetAcquisition)
	if err != nil {
		h.fail(w, r, err, "unable to update target")
		return
	}
	writeJSON(w, http.StatusOK, toTargetView(target))
}
