package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"polisure.org/internal/audit"
	"polisure.org/internal/auth"
	"polisure.org/internal/claims"
)

type submitClaimRequest struct {
	Type             string `json:"type"`
	RequestedAmount  int64  `json:"requested_amount"`
	AttachedDocument string `json:"attached_document"`
	Description      string `json:"description"`
	OwnerID          string `json:"owner_id"`
}

type listClaimsResponse struct {
	Items []claims.Claim `json:"items"`
	AsOf  time.Time      `json:"as_of"`
}

func (a *API) handleClaimsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.submitClaim(w, r)
	case http.MethodGet:
		a.listClaims(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleClaimResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/claims/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if id, ok := strings.CutSuffix(path, "/visibility"); ok {
		id = strings.TrimSuffix(id, "/")
		if id == "" {
			writeError(w, r, http.StatusNotFound, "claim not found")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.toggleClaimVisibility(w, r, id)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	a.getClaim(w, r, path)
}

func (a *API) submitClaim(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}

	var req submitClaimRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	// Policyholders submit for themselves; admins may submit on behalf of
	// any account.
	ownerID := act.AccountID
	if req.OwnerID != "" && req.OwnerID != act.AccountID {
		if !act.Admin {
			writeError(w, r, http.StatusForbidden, "cannot submit for another account")
			return
		}
		ownerID = strings.TrimSpace(req.OwnerID)
	}

	claim, err := a.claims.Submit(r.Context(), claims.Submission{
		Type:             claims.Type(strings.ToLower(strings.TrimSpace(req.Type))),
		RequestedAmount:  req.RequestedAmount,
		AttachedDocument: req.AttachedDocument,
		Description:      req.Description,
		OwnerID:          ownerID,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "claim.submitted", map[string]any{
		"claim_id": claim.ID,
		"type":     string(claim.Type),
		"amount":   strconv.FormatInt(claim.RequestedAmount, 10),
		"owner":    claim.OwnerID,
	})

	w.Header().Set("Location", "/v1/claims/"+claim.ID)
	writeJSON(w, http.StatusCreated, claim)
}

func (a *API) listClaims(w http.ResponseWriter, r *http.Request) {
	act, ok := actor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	items, err := a.claims.List(r.Context(), act)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listClaimsResponse{Items: items, AsOf: time.Now().UTC()})
}

func (a *API) getClaim(w http.ResponseWriter, r *http.Request, id string) {
	act, ok := actor(r)
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	claim, err := a.claims.Get(r.Context(), act, id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, claim)
}

func (a *API) toggleClaimVisibility(w http.ResponseWriter, r *http.Request, id string) {
	if !auth.HasRole(r.Context(), auth.RoleAdmin) {
		writeError(w, r, http.StatusForbidden, "admin role required")
		return
	}
	claim, err := a.claims.ToggleDelete(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "claim.visibility_toggled", map[string]any{
		"claim_id": claim.ID,
		"deleted":  claim.Deleted,
	})
	writeJSON(w, http.StatusOK, claim)
}
