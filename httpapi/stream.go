package httpapi

import (
	"net/http"
	"strings"

	"github.com/vertix-social/vertix/internal/comm"
	"github.com/vertix-social/vertix/internal/interaction"
)

// parseRecipients parses the comma-separated "to" query value into
// comm.Recipient values: "public" maps to comm.Public, anything else is
// treated as an account key.
func parseRecipients(raw string) []comm.Recipient {
	if raw == "" {
		return nil
	}
	var out []comm.Recipient
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if part == "public" {
			out = append(out, comm.Public)
			continue
		}
		out = append(out, comm.Account(part))
	}
	return out
}

func parseKeys(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// handleInteractionsStream implements "GET /api/v1/interactions.stream
// ?from=k1,k2&to=public,acct1": an SSE subscription filtered by the
// request's own from/to query parameters.
func (s *Server) handleInteractionsStream(w http.ResponseWriter, r *http.Request) {
	handler := interaction.SSEHandler(s.Conn, func(r *http.Request) ([]string, []comm.Recipient) {
		q := r.URL.Query()
		return parseKeys(q.Get("from")), parseRecipients(q.Get("to"))
	})
	handler(w, r)
}
