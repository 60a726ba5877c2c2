// Command federator runs the inbound activity processor and the
// remote-interaction sender: the first dispatches ReceiveActivity.process
// by activity kind and re-enters the transaction engine; the second
// watches every committed Interaction and forwards the ones a remote
// party needs to the deliverer.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vertix-social/vertix/internal/broker"
	"github.com/vertix-social/vertix/internal/comm"
	"github.com/vertix-social/vertix/internal/config"
	"github.com/vertix-social/vertix/internal/graph"
	"github.com/vertix-social/vertix/internal/inbound"
	"github.com/vertix-social/vertix/internal/urlresolver"
)

// interactionPrefetch bounds in-flight Interaction.for_remote deliveries;
// unlike the transaction/activity queues this worker has no natural QoS
// constant of its own (internal/inbound.RemoteSender does at most one
// outbound enqueue per delivery), so it reuses inbound.Prefetch.
const interactionPrefetch = inbound.Prefetch

type App struct {
	log          *slog.Logger
	conn         *broker.Conn
	closeConn    func() error
	processor    *inbound.Processor
	remoteSender *inbound.RemoteSender
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

	resolver, err := urlresolver.New(cfg.BaseURL)
	if err != nil {
		closeConn()
		return nil, fmt.Errorf("build url resolver: %w", err)
	}

	accountResolver := &inbound.AccountResolver{DB: db, Resolver: resolver, Conn: conn}

	return &App{
		log:       log,
		conn:      conn,
		closeConn: closeConn,
		processor: &inbound.Processor{Conn: conn, Resolver: accountResolver, Log: log},
		remoteSender: &inbound.RemoteSender{
			Conn:     conn,
			Resolver: resolver,
			Finder:   graph.AccountFinder{DB: db},
			Log:      log,
		},
	}, nil
}

// Start runs both consumer loops and blocks until both stop (which, per
// broker.Conn.Consume, happens when ctx is canceled).
func (a *App) Start(ctx context.Context) error {
	receiveActivity, err := a.conn.Consume(ctx, comm.QueueReceiveActivityProcess, inbound.Prefetch)
	if err != nil {
		return fmt.Errorf("consume %s: %w", comm.QueueReceiveActivityProcess, err)
	}
	interactionForRemote, err := a.conn.Consume(ctx, comm.QueueInteractionForRemote, interactionPrefetch)
	if err != nil {
		return fmt.Errorf("consume %s: %w", comm.QueueInteractionForRemote, err)
	}

	a.log.Info("federator ready",
		slog.String("receive_activity_queue", comm.QueueReceiveActivityProcess),
		slog.String("interaction_for_remote_queue", comm.QueueInteractionForRemote))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.processor.Serve(ctx, receiveActivity)
	}()
	go func() {
		defer wg.Done()
		a.remoteSender.Serve(ctx, interactionForRemote)
	}()
	wg.Wait()
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
