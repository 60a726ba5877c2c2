package interaction

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/vertix-social/vertix/internal/broker"
	"github.com/vertix-social/vertix/internal/comm"
)

// keepAlive is the interval between SSE comment pings, to hold the
// connection open through idle proxies.
const keepAlive = 20 * time.Second

// SSEHandler pipes a Listen subscription to the client as
// "data: {json}\n\n", sending a ": keep-alive" comment every keepAlive to hold the
// connection open. filter picks from/to out of the request (e.g. query
// parameters) the caller has already parsed.
func SSEHandler(conn *broker.Conn, filter func(r *http.Request) (from []string, to []comm.Recipient)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		from, to := filter(r)
		ctx := r.Context()
		stream, err := Listen(ctx, conn, from, to)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()

		for {
			select {
			case i, ok := <-stream:
				if !ok {
					return
				}
				body, err := json.Marshal(i)
				if err != nil {
					continue
				}
				fmt.Fprintf(w, "data: %s\n\n", body)
				flusher.Flush()
			case <-ticker.C:
				fmt.Fprint(w, ": keep-alive\n\n")
				flusher.Flush()
			case <-ctx.Done():
				return
			}
		}
	}
}
