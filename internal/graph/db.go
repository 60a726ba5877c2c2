// Package graph implements the entity layer: Accounts, Notes, and the
// Follow/Publish/Share/Like edges between them, plus the traversal
// queries the timeline and collection endpoints need.
//
// Everything in this package talks to the database only through the DB
// interface: find, create, save, link, and AQL queries, under a
// transaction. That keeps entity logic testable without a real ArangoDB
// instance; see arangodb.go for the real implementation and
// fakedb_test.go for the one the tests use.
package graph

import "context"

// DB is the minimal graph-database surface the entity layer needs.
// Implementations are responsible for serializing documents to/from their
// Go struct representation (JSON tags on Account/Note/Follow etc. double as
// the document shape).
type DB interface {
	// Find runs an equality filter over collection and decodes at most one
	// matching document into out (a pointer). It returns ErrNoRows (wrapped
	// by callers into verr.NotFound) when nothing matches.
	Find(ctx context.Context, collection string, filter map[string]any, out any) error

	// Create inserts doc into collection and decodes the stored document
	// (including its generated key) into out.
	Create(ctx context.Context, collection string, doc any, out any) error

	// Save overwrites the document at key in collection with doc.
	Save(ctx context.Context, collection string, key string, doc any) error

	// Link creates an edge document in edgeCollection from fromID to toID
	// (both full `_id` document handles, "collection/key"), and returns the
	// stored edge's identity (its generated key plus `_from`/`_to`).
	Link(ctx context.Context, edgeCollection string, fromID, toID string, doc any) (Edge, error)

	// Query runs an AQL query with the given bind variables and decodes
	// every result row by appending to the slice pointed to by out.
	Query(ctx context.Context, aql string, bindVars map[string]any, out any) error

	// WithTransaction runs fn against a DB bound to a single ArangoDB
	// streaming transaction spanning writeCollections; fn's error aborts the
	// transaction, a nil return commits it. A panic in fn is not recovered.
	WithTransaction(ctx context.Context, writeCollections []string, fn func(ctx context.Context, tx DB) error) error
}

// Edge is the identity every edge document shares: its own key plus the
// `_from`/`_to` endpoint handles.
type Edge struct {
	Key  string
	From string
	To   string
}

// ErrNoRows is returned by DB.Find when no document matches the filter.
var ErrNoRows = errNoRows{}

type errNoRows struct{}

func (errNoRows) Error() string { return "graph: no matching document" }
