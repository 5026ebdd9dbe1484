package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

type buildSummaryRequest struct {
	OwnerID string    `json:"owner_id"`
	From    time.Time `json:"from"`
	To      time.Time `json:"to"`
}

func (a *API) handleReportsCollection(w http.ResponseWriter, r *http.Request) {
	if a.reports == nil {
		writeError(w, r, http.StatusServiceUnavailable, "reporting disabled")
		return
	}
	switch r.Method {
	case http.MethodPost:
		a.buildSummary(w, r)
	case http.MethodGet:
		a.listSummaries(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleReportResource(w http.ResponseWriter, r *http.Request) {
	if a.reports == nil {
		writeError(w, r, http.StatusServiceUnavailable, "reporting disabled")
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/reports/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	act, ok := actor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		sum, err := a.reports.SummaryByID(r.Context(), act, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	case http.MethodDelete:
		if err := a.reports.DeleteSummary(r.Context(), act, id); err != nil {
			handleDomainError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodDelete)
	}
}

func (a *API) buildSummary(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req buildSummaryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	ownerID := act.AccountID
	if req.OwnerID != "" && req.OwnerID != act.AccountID {
		if !act.Admin {
			writeError(w, r, http.StatusForbidden, "cannot report on another account")
			return
		}
		ownerID = req.OwnerID
	}
	if req.From.IsZero() || req.To.IsZero() || req.To.Before(req.From) {
		writeError(w, r, http.StatusBadRequest, "from and to must describe a valid range")
		return
	}

	sum, err := a.reports.BuildSummary(r.Context(), ownerID, req.From, req.To)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sum)
}

func (a *API) listSummaries(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	limit := 10
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 100 {
			writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = v
	}

	items, err := a.reports.LastSummaries(r.Context(), act, limit)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}
