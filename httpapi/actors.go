package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/vertix-social/vertix/internal/activitystreams"
	"github.com/vertix-social/vertix/internal/graph"
	"github.com/vertix-social/vertix/internal/reqcache"
	"github.com/vertix-social/vertix/internal/urlresolver"
)

type accountCache = reqcache.RecordCache[urlresolver.Account]
type accountFinder = reqcache.Finder[urlresolver.Account]

// accountURLFunc matches urlresolver.Resolver's Account/AccountFollowers/
// AccountFollowing bound methods, letting handleAccountCollection/Page stay
// generic over which collection they render.
type accountURLFunc func(ctx context.Context, cache *accountCache, finder accountFinder, key string) (string, error)
type accountPageURLFunc func(ctx context.Context, cache *accountCache, finder accountFinder, key string, page int) (string, error)
type countFunc func(a *graph.Account, ctx context.Context, db graph.DB) (int, error)
type listFunc func(a *graph.Account, ctx context.Context, db graph.DB, pl graph.PageLimit) ([]graph.Account, error)

// lookupLocalAccount resolves the {username} path value against this
// server's own accounts; every actor/collection endpoint is local-only.
func (s *Server) lookupLocalAccount(r *http.Request) (*graph.Account, error) {
	return graph.FindAccountByUsername(r.Context(), s.DB, r.PathValue("username"), "")
}

func pageNumber(r *http.Request) int {
	n, err := strconv.Atoi(r.PathValue("n"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// handleActor implements "GET /users/{username}".
func (s *Server) handleActor(w http.ResponseWriter, r *http.Request) {
	account, err := s.lookupLocalAccount(r)
	if err != nil {
		writeError(w, err)
		return
	}
	actor, err := activitystreams.RenderAccount(r.Context(), s.Resolver, s.accountCache(), account.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeActivityJSON(w, http.StatusOK, actor)
}

// handleAccountCollection renders the top-level OrderedCollection pointer
// shared by /followers and /following.
func (s *Server) handleAccountCollection(w http.ResponseWriter, r *http.Request, selfURL accountURLFunc, firstPageURL accountPageURLFunc, count countFunc) {
	account, err := s.lookupLocalAccount(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx := r.Context()
	cache := s.accountCache()

	self, err := selfURL(ctx, cache.Cache, cache.Finder, account.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	first, err := firstPageURL(ctx, cache.Cache, cache.Finder, account.Key, 1)
	if err != nil {
		writeError(w, err)
		return
	}
	total, err := count(account, ctx, s.DB)
	if err != nil {
		writeError(w, err)
		return
	}
	writeActivityJSON(w, http.StatusOK, activitystreams.RenderOrderedCollection(self, first, total))
}

// handleAccountCollectionPage renders one page of accounts (followers or
// following), each as a rendered Actor.
func (s *Server) handleAccountCollectionPage(w http.ResponseWriter, r *http.Request, selfURL accountURLFunc, pageURL accountPageURLFunc, list listFunc) {
	account, err := s.lookupLocalAccount(r)
	if err != nil {
		writeError(w, err)
		return
	}
	ctx := r.Context()
	cache := s.accountCache()
	page := pageNumber(r)
	pl := graph.PageLimit{Page: uint32(page), Limit: graph.DefaultPageLimit.Limit}

	accounts, err := list(account, ctx, s.DB, pl)
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]interface{}, 0, len(accounts))
	for i := range accounts {
		actor, err := activitystreams.RenderAccount(ctx, s.Resolver, cache, accounts[i].Key)
		if err != nil {
			writeError(w, err)
			return
		}
		items = append(items, actor)
	}

	partOf, err := selfURL(ctx, cache.Cache, cache.Finder, account.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	self, err := pageURL(ctx, cache.Cache, cache.Finder, account.Key, page)
	if err != nil {
		writeError(w, err)
		return
	}
	next, err := pageURL(ctx, cache.Cache, cache.Finder, account.Key, page+1)
	if err != nil {
		writeError(w, err)
		return
	}
	next = activitystreams.NextPageURL(pl, len(accounts), next)

	writeActivityJSON(w, http.StatusOK, activitystreams.RenderOrderedCollectionPage(self, partOf, next, items))
}

func (s *Server) handleFollowersCollection(w http.ResponseWriter, r *http.Request) {
	s.handleAccountCollection(w, r, s.Resolver.AccountFollowers, s.Resolver.AccountFollowersPage,
		func(a *graph.Account, ctx context.Context, db graph.DB) (int, error) { return a.CountFollowers(ctx, db) })
}

func (s *Server) handleFollowersPage(w http.ResponseWriter, r *http.Request) {
	s.handleAccountCollectionPage(w, r, s.Resolver.AccountFollowers, s.Resolver.AccountFollowersPage,
		func(a *graph.Account, ctx context.Context, db graph.DB, pl graph.PageLimit) ([]graph.Account, error) {
			return a.GetFollowers(ctx, db, pl)
		})
}

func (s *Server) handleFollowingCollection(w http.ResponseWriter, r *http.Request) {
	s.handleAccountCollection(w, r, s.Resolver.AccountFollowing, s.Resolver.AccountFollowingPage,
		func(a *graph.Account, ctx context.Context, db graph.DB) (int, error) { return a.CountFollowing(ctx, db) })
}

func (s *Server) handleFollowingPage(w http.ResponseWriter, r *http.Request) {
	s.handleAccountCollectionPage(w, r, s.Resolver.AccountFollowing, s.Resolver.AccountFollowingPage,
		func(a *graph.Account, ctx context.Context, db graph.DB, pl graph.PageLimit) ([]graph.Account, error) {
			return a.GetFollowing(ctx, db, pl)
		})
}
