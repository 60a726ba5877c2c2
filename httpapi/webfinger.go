package httpapi

import (
	"context"
	"net/http"

	"github.com/vertix-social/vertix/internal/graph"
	"github.com/vertix-social/vertix/internal/webfinger"
)

// handleWebfinger answers "/.well-known/webfinger" for this server's own
// accounts, wiring internal/webfinger.Handler to a lookup that resolves a
// local username to its canonical actor URL.
func (s *Server) handleWebfinger() http.HandlerFunc {
	return webfinger.Handler(s.Domain, func(ctx context.Context, username string) (string, error) {
		account, err := graph.FindAccountByUsername(ctx, s.DB, username, "")
		if err != nil {
			return "", err
		}
		cache := s.accountCache()
		return s.Resolver.Account(ctx, cache.Cache, cache.Finder, account.Key)
	})
}
