package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/vertix-social/vertix/internal/graph"
	"github.com/vertix-social/vertix/internal/txn"
	"github.com/vertix-social/vertix/internal/verr"
)

// handleCreateNote implements "POST /api/v1/notes?from_username=…":
// resolve the publishing account locally, then submit a single-action
// PublishNote Transaction over the broker RPC.
func (s *Server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	fromUsername := r.URL.Query().Get("from_username")
	if fromUsername == "" {
		http.Error(w, "from_username is required", http.StatusBadRequest)
		return
	}

	var note graph.Note
	if err := json.NewDecoder(r.Body).Decode(&note); err != nil {
		http.Error(w, "invalid note body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	publisher, err := graph.FindAccountByUsername(ctx, s.DB, fromUsername, "")
	if err != nil {
		writeError(w, err)
		return
	}
	note.From = publisher.Key

	resp, err := txn.Call(ctx, s.Conn, txn.Transaction{Actions: []txn.Action{
		txn.PublishNoteAction{Note: note},
	}})
	if err != nil {
		writeError(w, err)
		return
	}
	if len(resp.Responses) != 1 {
		writeError(w, verr.NewInternal("publish note transaction returned unexpected response count"))
		return
	}
	pr, ok := resp.Responses[0].(txn.PublishNoteResponse)
	if !ok {
		writeError(w, verr.NewInternal("publish note transaction returned wrong response kind"))
		return
	}

	writeJSON(w, http.StatusCreated, pr.Note)
}
