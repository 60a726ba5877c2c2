package httpapi

import (
	"io"
	"net/http"

	"github.com/vertix-social/vertix/internal/inbound"
)

// handleUserInbox implements "POST /users/{username}/inbox": enqueue the
// posted activity document for asynchronous processing. The username is
// accepted but not otherwise used; inbound.Processor resolves the
// activity's own actor/object fields, not the inbox URL it arrived on.
//
// TODO: verify HTTP Signatures here before the body is trusted enough to
// enqueue.
func (s *Server) handleUserInbox(w http.ResponseWriter, r *http.Request) {
	s.enqueueInbound(w, r)
}

// handleSharedInbox implements "POST /inbox", the shared-inbox variant.
func (s *Server) handleSharedInbox(w http.ResponseWriter, r *http.Request) {
	s.enqueueInbound(w, r)
}

func (s *Server) enqueueInbound(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if err := inbound.Publish(r.Context(), s.Conn, body); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
