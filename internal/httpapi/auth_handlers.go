package httpapi

import (
	"net/http"
	"strings"
	"time"

	"polisure.org/internal/account"
	"polisure.org/internal/audit"
	"polisure.org/internal/auth"
)

type tokenRequest struct {
	AccountID string `json:"account_id"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

const tokenTTL = 15 * time.Minute

// handleAuthToken issues a token for an existing account. Only employed
// accounts may authenticate; roles come from the stored account, never from
// the request.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	id := strings.TrimSpace(req.AccountID)
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "account_id is required")
		return
	}

	acc, err := a.accounts.ByID(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if !acc.Employed {
		handleDomainError(w, r, account.ErrNotEmployed)
		return
	}

	token, err := auth.GenerateToken(acc.ID, []string{string(acc.Role)}, tokenTTL)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	expiresAt := time.Now().UTC().Add(tokenTTL)
	_ = audit.LogEvent(r.Context(), "auth.token.issued", map[string]any{
		"account_id": acc.ID,
		"role":       string(acc.Role),
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}
