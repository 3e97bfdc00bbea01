package api

import (
	"net/http"
	"strconv"
	"strings"

	"example.com/salestrack/internal/auth"
	"example.com/salestrack/internal/domain"
	"example.com/salestrack/internal/persistence"
)

func (h *Handler) records(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.createRecord(w, r)
	case http.MethodGet:
		h.listRecords(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (h *Handler) recordByID(w http.ResponseWriter, r *http.Request) {
	raw := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/records/"), "/")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing record id")
		return
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusNotFound, "not_found", "record not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getRecord(w, r, id)
	case http.MethodPut:
		h.updateRecord(w, r, id, true)
	case http.MethodPatch:
		h.updateRecord(w, r, id, false)
	default:
		methodNotAllowed(w)
	}
}

func (h *Handler) createRecord(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeRecordsWrite)
	if !ok {
		return
	}

	var req RecordRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	record, err := h.service.CreateRecord(r.Context(), domain.CreateRecordInput{
		UserID:        claims.Subject,
		InputName:     claims.Username,
		RecordDate:    req.RecordDate.ptr(),
		OperationDate: req.OperationDate.ptr(),
		Counters:      req.counters(),
	})
	if err != nil {
		h.fail(w, r, err, "unable to create record")
		return
	}
	writeJSON(w, http.StatusCreated, toRecordView(*record))
}

func (h *Handler) getRecord(w http.ResponseWriter, r *http.Request, id int64) {
	claims, ok := authorize(w, r, auth.ScopeRecordsRead, auth.ScopeRecordsWrite)
	if !ok {
		return
	}

	record, err := h.service.GetRecord(r.Context(), claims.Subject, id)
	if err != nil {
		h.fail(w, r, err, "unable to load record")
		return
	}
	writeJSON(w, http.StatusOK, toRecordView(*record))
}

func (h *Handler) listRecords(w http.ResponseWriter, r *http.Request) {
	claims, ok := authorize(w, r, auth.ScopeRecordsRead, auth.ScopeRecordsWrite)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := domain.RecordFilter{}
	if raw := query.Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			filter.Limit = parsed
		}
	}
	if raw := query.Get("date"); raw != "" {
		date, err := domain.ParseDate(raw)
		if err != nil {
			h.fail(w, r, err, "invalid date")
			return
		}
		filter.Date = &date
	}
	cursor, err := persistence.DecodeCursor(query.Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}
	filter.Cursor = cursor

	records, next, err := h.service.ListRecords(r.Context(), claims.Subject, filter)
	if err != nil {
		h.fail(w, r, err, "unable to list records")
		return
	}

	resp := ListRecordsResponse{
		Items:      make([]RecordView, 0, len(records)),
		NextCursor: persistence.EncodeCursor(next),
	}
	for _, rec := range records {
		resp.Items = append(resp.Items, toRecordView(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) updateRecord(w http.ResponseWriter, r *http.Request, id int64, full bool) {
	claims, ok := authorize(w, r, auth.ScopeRecordsWrite)
	if !ok {
		return
	}

	var req RecordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if full {
		if name := req.missing(); name != "" {
			writeError(w, http.StatusBadRequest, "validation_failed", name+" is required")
			return
		}
	}

	record, err := h.service.UpdateRecord(r.Context(), claims.Subject, id, req.updateInput())
	if err != nil {
		h.fail(w, r, err, "unable to update record")
		return
	}
	writeJSON(w, http.StatusOK, toRecordView(*record))
}
