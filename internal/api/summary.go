package api

import (
	"net/http"
	"time"

	"example.com/salestrack/internal/auth"
	"example.com/salestrack/internal/domain"
	"example.com/salestrack/internal/observability"
)

func (h *Handler) monthlySummary(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.summary(w, r, "monthly")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toSummaryResponse(summary))
}

func (h *Handler) dailySummary(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.summary(w, r, "daily")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, DailySummaryResponse{
		ReferenceDate: Date{summary.ReferenceDate},
		Daily:         toDailyView(summary.Daily),
	})
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request, kind string) (domain.Summary, bool) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return domain.Summary{}, false
	}
	claims, ok := authorize(w, r, auth.ScopeSummaryRead)
	if !ok {
		return domain.Summary{}, false
	}

	var reference *time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		date, err := domain.ParseDate(raw)
		if err != nil {
			h.fail(w, r, err, "invalid date")
			return domain.Summary{}, false
		}
		reference = &date
	}

	started := time.Now()
	summary, err := h.service.Summary(r.Context(), claims.Subject, reference)
	observability.ObserveSummary(kind, started, err)
	if err != nil {
		h.fail(w, r, err, "unable to compute summary")
		return domain.Summary{}, false
	}
	return summary, true
}
