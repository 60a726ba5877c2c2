// Package httpapi is the HTTP surface: it terminates client requests,
// resolves accounts/notes against the graph database directly for reads,
// and re-enters the transaction engine over the broker RPC for anything
// that mutates state.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/vertix-social/vertix/internal/activitystreams"
	"github.com/vertix-social/vertix/internal/broker"
	"github.com/vertix-social/vertix/internal/graph"
	"github.com/vertix-social/vertix/internal/reqcache"
	"github.com/vertix-social/vertix/internal/urlresolver"
	"github.com/vertix-social/vertix/internal/verr"
	"github.com/vertix-social/vertix/internal/webfinger"
)

// Server bundles the collaborators every handler needs.
type Server struct {
	DB        graph.DB
	Conn      *broker.Conn
	Resolver  *urlresolver.Resolver
	Webfinger *webfinger.Client
	Domain    string
	Log       *slog.Logger
}

// Routes builds the full route table.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/notes", s.handleCreateNote)
	mux.HandleFunc("PUT /api/v1/accounts/{from}/following/accounts/{to}", s.handleInitiateFollow)
	mux.HandleFunc("PUT /api/v1/follows/{key}/accept", s.handleAcceptFollow)
	mux.HandleFunc("GET /api/v1/accounts/{key}/followers/pending", s.handlePendingFollowers)
	mux.HandleFunc("GET /api/v1/interactions.stream", s.handleInteractionsStream)
	mux.HandleFunc("GET /api/v1/accounts/lookup", s.handleAccountLookup)

	mux.HandleFunc("POST /users/{username}/inbox", s.handleUserInbox)
	mux.HandleFunc("POST /inbox", s.handleSharedInbox)

	mux.HandleFunc("GET /users/{username}", s.handleActor)
	mux.HandleFunc("GET /users/{username}/followers", s.handleFollowersCollection)
	mux.HandleFunc("GET /users/{username}/followers/page/{n}", s.handleFollowersPage)
	mux.HandleFunc("GET /users/{username}/following", s.handleFollowingCollection)
	mux.HandleFunc("GET /users/{username}/following/page/{n}", s.handleFollowingPage)
	mux.HandleFunc("GET /users/{username}/outbox", s.handleOutboxCollection)
	mux.HandleFunc("GET /users/{username}/outbox/page/{n}", s.handleOutboxPage)

	mux.HandleFunc("/.well-known/webfinger", s.handleWebfinger())

	return mux
}

// accountCache builds a fresh AccountCache; one instance lives no longer
// than one HTTP request.
func (s *Server) accountCache() activitystreams.AccountCache {
	return activitystreams.AccountCache{
		Cache:  reqcache.NewRecordCache[urlresolver.Account](),
		Finder: graph.AccountFinder{DB: s.DB},
	}
}

func (s *Server) noteCache() activitystreams.NoteCache {
	return activitystreams.NoteCache{
		Cache:  reqcache.NewRecordCache[urlresolver.Note](),
		Finder: graph.NoteFinder{DB: s.DB},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeActivityJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/activity+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), verr.HTTPStatus(err))
}
