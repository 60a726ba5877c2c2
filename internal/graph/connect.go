package graph

import (
	"context"
	"fmt"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/connection"

	"github.com/vertix-social/vertix/internal/verr"
)

// Connect dials the ArangoDB endpoint and opens the named database,
// mirroring broker.Connect's shape (dial, then hand back a ready
// collaborator) for the other half of every process's startup sequence.
func Connect(ctx context.Context, endpoint, database, username, password string) (*ArangoDB, error) {
	conn := connection.NewHttpConnection(connection.HttpConfiguration{
		Endpoint: connection.NewRoundRobinEndpoints([]string{endpoint}),
	})
	if username != "" {
		if err := conn.SetAuthentication(connection.NewBasicAuth(username, password)); err != nil {
			return nil, verr.Wrap(verr.Model, "set arangodb authentication", err)
		}
	}

	client := arangodb.NewClient(conn)

	db, err := NewArangoDB(ctx, client, database)
	if err != nil {
		return nil, fmt.Errorf("connect to arangodb database %q: %w", database, err)
	}
	return db, nil
}
