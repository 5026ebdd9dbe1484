package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"polisure.org/internal/account"
	"polisure.org/internal/audit"
	"polisure.org/internal/auth"
	"polisure.org/internal/ledger"
	"polisure.org/internal/policy"
)

type registerAccountRequest struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	Tier  string `json:"tier"`
}

type creditRequest struct {
	Amount int64 `json:"amount"`
}

type changePolicyRequest struct {
	Tier string `json:"tier"`
}

type mutationResponse struct {
	Account     account.Account    `json:"account"`
	Transaction ledger.Transaction `json:"transaction"`
}

func (a *API) handleAccountsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !auth.HasRole(r.Context(), auth.RoleAdmin) {
		writeError(w, r, http.StatusForbidden, "admin role required")
		return
	}

	var req registerAccountRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	role := account.Role(strings.ToLower(strings.TrimSpace(req.Role)))
	if role == "" {
		role = account.RolePolicyholder
	}
	if role != account.RoleAdmin && role != account.RolePolicyholder {
		writeError(w, r, http.StatusBadRequest, "unknown role")
		return
	}

	acc, err := a.accounts.Register(r.Context(), req.Email, role, policy.Tier(strings.ToLower(strings.TrimSpace(req.Tier))))
	if err != nil {
		handleDomainError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), "account.registered", map[string]any{
		"account_id": acc.ID,
		"role":       string(acc.Role),
		"tier":       string(acc.PolicyTier),
	})

	w.Header().Set("Location", "/v1/accounts/"+acc.ID)
	writeJSON(w, http.StatusCreated, acc)
}

func (a *API) handleAccountResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/accounts/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if id, ok := strings.CutSuffix(path, "/credit"); ok {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.creditAccount(w, r, strings.TrimSuffix(id, "/"))
		return
	}
	if id, ok := strings.CutSuffix(path, "/policy"); ok {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.changePolicy(w, r, strings.TrimSuffix(id, "/"))
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
	a.getAccount(w, r, path)
}

// canAct reports whether the caller may operate on the given account:
// admins always, others only on themselves.
func canAct(r *http.Request, id string) (auth.Actor, bool) {
	act, ok := actor(r)
	if !ok {
		return auth.Actor{}, false
	}
	return act, act.Admin || act.AccountID == id
}

func (a *API) getAccount(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := canAct(r, id); !ok {
		writeError(w, r, http.StatusForbidden, "access denied")
		return
	}
	acc, err := a.accounts.ByID(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acc)
}

func (a *API) creditAccount(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := canAct(r, id); !ok {
		writeError(w, r, http.StatusForbidden, "access denied")
		return
	}
	var req creditRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	acc, tx, err := a.accounts.Credit(r.Context(), id, req.Amount)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "account.credited", map[string]any{
		"account_id": id,
		"amount":     strconv.FormatInt(req.Amount, 10),
		"reference":  tx.Reference,
	})
	writeJSON(w, http.StatusOK, mutationResponse{Account: acc, Transaction: tx})
}

func (a *API) changePolicy(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := canAct(r, id); !ok {
		writeError(w, r, http.StatusForbidden, "access denied")
		return
	}
	var req changePolicyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	tier := policy.Tier(strings.ToLower(strings.TrimSpace(req.Tier)))
	acc, tx, err := a.accounts.ChangePolicy(r.Context(), id, tier)
	if err != nil {
		// A declined change still produced an audit transaction; surface
		// both the conflict and the recorded attempt.
		handleDomainError(w, r, err)
		_ = audit.LogEvent(r.Context(), "account.policy_change_declined", map[string]any{
			"account_id": id,
			"tier":       string(tier),
		})
		return
	}
	_ = audit.LogEvent(r.Context(), "account.policy_changed", map[string]any{
		"account_id": id,
		"tier":       string(tier),
		"reference":  tx.Reference,
	})
	writeJSON(w, http.StatusOK, mutationResponse{Account: acc, Transaction: tx})
}
