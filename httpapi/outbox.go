package httpapi

import (
	"net/http"

	"github.com/vertix-social/vertix/internal/activitystreams"
	"github.com/vertix-social/vertix/internal/graph"
)

// handleOutboxCollection implements "GET /users/{username}/outbox".
func (s *Server) handleOutboxCollection(w http.ResponseWriter, r *http.Request) {
	account, err := s.lookupLocalAccount(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx := r.Context()
	cache := s.accountCache()

	self, err := s.Resolver.AccountOutbox(ctx, cache.Cache, cache.Finder, account.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	first, err := s.Resolver.AccountOutboxPage(ctx, cache.Cache, cache.Finder, account.Key, 1)
	if err != nil {
		writeError(w, err)
		return
	}
	total, err := account.CountPublishedNotes(ctx, s.DB)
	if err != nil {
		writeError(w, err)
		return
	}
	writeActivityJSON(w, http.StatusOK, activitystreams.RenderOrderedCollection(self, first, total))
}

// handleOutboxPage implements "GET /users/{username}/outbox/page/{n}".
func (s *Server) handleOutboxPage(w http.ResponseWriter, r *http.Request) {
	account, err := s.lookupLocalAccount(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx := r.Context()
	accounts := s.accountCache()
	notes := s.noteCache()
	page := pageNumber(r)
	pl := graph.PageLimit{Page: uint32(page), Limit: graph.DefaultPageLimit.Limit}

	published, err := account.GetPublishedNotes(ctx, s.DB, pl)
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]interface{}, 0, len(published))
	for i := range published {
		rendered, err := activitystreams.RenderNote(ctx, s.Resolver, accounts, notes, &published[i])
		if err != nil {
			writeError(w, err)
			return
		}
		items = append(items, rendered)
	}

	partOf, err := s.Resolver.AccountOutbox(ctx, accounts.Cache, accounts.Finder, account.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	self, err := s.Resolver.AccountOutboxPage(ctx, accounts.Cache, accounts.Finder, account.Key, page)
	if err != nil {
		writeError(w, err)
		return
	}
	next, err := s.Resolver.AccountOutboxPage(ctx, accounts.Cache, accounts.Finder, account.Key, page+1)
	if err != nil {
		writeError(w, err)
		return
	}
	next = activitystreams.NextPageURL(pl, len(published), next)

	writeActivityJSON(w, http.StatusOK, activitystreams.RenderOrderedCollectionPage(self, partOf, next, items))
}
