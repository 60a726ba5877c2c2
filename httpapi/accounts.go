package httpapi

import (
	"net/http"

	"github.com/vertix-social/vertix/internal/graph"
	"github.com/vertix-social/vertix/internal/txn"
	"github.com/vertix-social/vertix/internal/verr"
)

// handleAccountLookup implements "GET /api/v1/accounts/lookup?username=…
// &domain=…": a local-row fast path, falling back to WebFinger plus a
// FetchAccount Transaction when nothing is stored yet.
func (s *Server) handleAccountLookup(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	domain := r.URL.Query().Get("domain")
	if username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	lookupDomain := domain
	if domain == s.Domain {
		lookupDomain = ""
	}

	ctx := r.Context()
	if account, err := graph.FindAccountByUsername(ctx, s.DB, username, lookupDomain); err == nil {
		writeJSON(w, http.StatusOK, account)
		return
	}

	if lookupDomain == "" {
		writeError(w, verr.NewNotFound("Account", map[string]string{"username": username}))
		return
	}

	href, err := s.Webfinger.Resolve(ctx, username, domain)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := txn.Call(ctx, s.Conn, txn.Transaction{Actions: []txn.Action{
		txn.FetchAccountAction{URL: href},
	}})
	if err != nil {
		writeError(w, err)
		return
	}
	if len(resp.Responses) != 1 {
		writeError(w, verr.NewInternal("fetch account transaction returned unexpected response count"))
		return
	}
	fr, ok := resp.Responses[0].(txn.FetchAccountResponse)
	if !ok {
		writeError(w, verr.NewInternal("fetch account transaction returned wrong response kind"))
		return
	}

	writeJSON(w, http.StatusOK, fr.Account)
}
