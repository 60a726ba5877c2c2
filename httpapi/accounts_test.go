package httpapi

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertix-social/vertix/internal/graph"
)

// TestHandleAccountLookupLocalHit: a username that already exists locally
// is returned without ever touching WebFinger or the broker.
func TestHandleAccountLookupLocalHit(t *testing.T) {
	db := newFakeDB()
	ctx := context.Background()

	_, err := graph.CreateAccount(ctx, db, graph.Account{Username: "alice"})
	require.NoError(t, err)

	s := &Server{DB: db, Domain: "example.social"}

	req := httptest.NewRequest("GET", "/api/v1/accounts/lookup?username=alice", nil)
	w := httptest.NewRecorder()
	s.handleAccountLookup(w, req)

	assert.Equal(t, 200, w.Code)
	assert.Contains(t, w.Body.String(), "alice")
}

// TestHandleAccountLookupMissingUsername covers the required-parameter
// validation path, which never reaches the database.
func TestHandleAccountLookupMissingUsername(t *testing.T) {
	s := &Server{DB: newFakeDB(), Domain: "example.social"}

	req := httptest.NewRequest("GET", "/api/v1/accounts/lookup", nil)
	w := httptest.NewRecorder()
	s.handleAccountLookup(w, req)

	assert.Equal(t, 400, w.Code)
}

// TestHandleAccountLookupUnknownLocalUsername covers a same-domain lookup
// for a username this server has no record of: it must 404 rather than
// fall through to WebFinger, which only applies to a foreign domain.
func TestHandleAccountLookupUnknownLocalUsername(t *testing.T) {
	s := &Server{DB: newFakeDB(), Domain: "example.social"}

	req := httptest.NewRequest("GET", "/api/v1/accounts/lookup?username=nobody&domain=example.social", nil)
	w := httptest.NewRecorder()
	s.handleAccountLookup(w, req)

	assert.Equal(t, 404, w.Code)
}
