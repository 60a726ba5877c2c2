// Command worker runs the transaction engine: it consumes
// Transaction.process, commits each transaction against the graph
// database, publishes the interactions it buffers, and replies over RPC.
package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vertix-social/vertix/internal/activitystreams"
	"github.com/vertix-social/vertix/internal/broker"
	"github.com/vertix-social/vertix/internal/comm"
	"github.com/vertix-social/vertix/internal/config"
	"github.com/vertix-social/vertix/internal/graph"
	"github.com/vertix-social/vertix/internal/interaction"
	"github.com/vertix-social/vertix/internal/txn"
)

// Prefetch bounds the number of Transaction deliveries in flight at once;
// transactions commit against the graph database one at a time per
// delivery, so this is the concurrency cap on writes.
const Prefetch = 2

type App struct {
	log       *slog.Logger
	conn      *broker.Conn
	closeConn func() error
	engine    *txn.Engine
}

func NewApp(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	conn, closeConn, err := broker.Connect(cfg.AMQPAddr, log)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	if err := comm.Setup(conn); err != nil {
		closeConn()
		return nil, fmt.Errorf("declare message catalog: %w", err)
	}

	db, err := graph.Connect(ctx, cfg.ArangoEndpoint, cfg.ArangoDatabase, cfg.ArangoUsername, cfg.ArangoPassword)
	if err != nil {
		closeConn()
		return nil, fmt.Errorf("connect to graph database: %w", err)
	}

	httpClient, err := cfg.NewHTTPClient()
	if err != nil {
		closeConn()
		return nil, fmt.Errorf("build outbound http client: %w", err)
	}

	engine := &txn.Engine{
		DB:        db,
		Fetcher:   &activitystreams.HTTPAccountFetcher{Client: httpClient},
		Publisher: interaction.BrokerPublisher{Conn: conn},
		Log:       log,
	}

	return &App{log: log, conn: conn, closeConn: closeConn, engine: engine}, nil
}

func (a *App) Start(ctx context.Context) error {
	deliveries, err := a.conn.Consume(ctx, comm.QueueTransactionProcess, Prefetch)
	if err != nil {
		return fmt.Errorf("consume %s: %w", comm.QueueTransactionProcess, err)
	}
	a.log.Info("worker ready", slog.String("queue", comm.QueueTransactionProcess))
	a.engine.Serve(ctx, deliveries)
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	if a.closeConn != nil {
		if err := a.closeConn(); err != nil {
			return fmt.Errorf("close broker connection: %w", err)
		}
	}
	return nil
}
