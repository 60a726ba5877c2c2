package httpapi

import (
	"net/http"

	"github.com/vertix-social/vertix/internal/graph"
	"github.com/vertix-social/vertix/internal/txn"
	"github.com/vertix-social/vertix/internal/verr"
)

// handleInitiateFollow implements "PUT /api/v1/accounts/{from}/following/
// accounts/{to}": 201 on a newly created Follow edge, 200 on an existing
// one.
func (s *Server) handleInitiateFollow(w http.ResponseWriter, r *http.Request) {
	fromKey := r.PathValue("from")
	toKey := r.PathValue("to")

	ctx := r.Context()
	if _, err := graph.FindAccountByKey(ctx, s.DB, fromKey); err != nil {
		writeError(w, err)
		return
	}
	if _, err := graph.FindAccountByKey(ctx, s.DB, toKey); err != nil {
		writeError(w, err)
		return
	}

	resp, err := txn.Call(ctx, s.Conn, txn.Transaction{Actions: []txn.Action{
		txn.InitiateFollowAction{From: fromKey, To: toKey},
	}})
	if err != nil {
		writeError(w, err)
		return
	}
	if len(resp.Responses) != 1 {
		writeError(w, verr.NewInternal("initiate follow transaction returned unexpected response count"))
		return
	}
	fr, ok := resp.Responses[0].(txn.InitiateFollowResponse)
	if !ok {
		writeError(w, verr.NewInternal("initiate follow transaction returned wrong response kind"))
		return
	}

	status := http.StatusOK
	if fr.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, fr.Follow)
}

// acceptStatus decides the accept-endpoint's HTTP status from the current
// state of a Follow edge and whether the transaction actually modified it:
// 201 if newly accepted, 200 if already accepted, 409 if already
// rejected. Split out as a pure function so it is testable without a
// broker connection.
func acceptStatus(existing *graph.Follow, modified bool) (int, bool) {
	if existing.Accepted != nil && !*existing.Accepted {
		return http.StatusConflict, false
	}
	if modified {
		return http.StatusCreated, true
	}
	return http.StatusOK, true
}

// handleAcceptFollow implements "PUT /api/v1/follows/{key}/accept". A
// Follow already rejected is refused with 409 here rather than silently
// flipped back.
func (s *Server) handleAcceptFollow(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	ctx := r.Context()

	existing, err := graph.FindFollowByKey(ctx, s.DB, key)
	if err != nil {
		writeError(w, err)
		return
	}
	if status, ok := acceptStatus(existing, false); !ok {
		http.Error(w, "follow already rejected", status)
		return
	}

	resp, err := txn.Call(ctx, s.Conn, txn.Transaction{Actions: []txn.Action{
		txn.SetFollowAcceptedAction{Key: key, Accepted: true},
	}})
	if err != nil {
		writeError(w, err)
		return
	}
	if len(resp.Responses) != 1 {
		writeError(w, verr.NewInternal("set follow accepted transaction returned unexpected response count"))
		return
	}
	fr, ok := resp.Responses[0].(txn.SetFollowAcceptedResponse)
	if !ok {
		writeError(w, verr.NewInternal("set follow accepted transaction returned wrong response kind"))
		return
	}

	status, _ := acceptStatus(&fr.Follow, fr.Modified)
	writeJSON(w, status, fr.Follow)
}

// handlePendingFollowers implements "GET /api/v1/accounts/{key}/
// followers/pending".
func (s *Server) handlePendingFollowers(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	ctx := r.Context()

	account, err := graph.FindAccountByKey(ctx, s.DB, key)
	if err != nil {
		writeError(w, err)
		return
	}
	pending, err := graph.FindPendingFollowsTo(ctx, s.DB, account)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}
