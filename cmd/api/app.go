// Command api serves the HTTP surface: client read/write endpoints,
// inbox delivery intake, and federation's WebFinger/actor/collection
// documents.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/vertix-social/vertix/httpapi"
	"github.com/vertix-social/vertix/internal/broker"
	"github.com/vertix-social/vertix/internal/comm"
	"github.com/vertix-social/vertix/internal/config"
	"github.com/vertix-social/vertix/internal/graph"
	"github.com/vertix-social/vertix/internal/urlresolver"
	"github.com/vertix-social/vertix/internal/webfinger"
)

// App bundles the collaborators this service owns for its lifetime.
type App struct {
	cfg        config.Config
	log        *slog.Logger
	conn       *broker.Conn
	closeConn  func() error
	db         graph.DB
	httpServer *http.Server
}

// NewApp connects to the broker and the graph database, then builds the
// httpapi.Server routes. Nothing is served until Start.
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

	httpClient, err := cfg.NewHTTPClient()
	if err != nil {
		closeConn()
		return nil, fmt.Errorf("build outbound http client: %w", err)
	}

	server := &httpapi.Server{
		DB:        db,
		Conn:      conn,
		Resolver:  resolver,
		Webfinger: &webfinger.Client{HTTP: httpClient},
		Domain:    cfg.Domain,
		Log:       log,
	}

	return &App{
		cfg:       cfg,
		log:       log,
		conn:      conn,
		closeConn: closeConn,
		db:        db,
		httpServer: &http.Server{
			Addr:    cfg.Host + ":" + cfg.Port,
			Handler: server.Routes(),
		},
	}, nil
}

// Start serves HTTP until the context is canceled or ListenAndServe fails.
func (a *App) Start(ctx context.Context) error {
	a.log.Info("starting http server", slog.String("addr", a.httpServer.Addr))
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests and closes the broker connection.
func (a *App) Shutdown(ctx context.Context) error {
	if err := a.httpServer.Shutdown(ctx); err != nil {
		a.log.Error("error shutting down http server", slog.Any("error", err))
	}
	if a.closeConn != nil {
		if err := a.closeConn(); err != nil {
			return fmt.Errorf("close broker connection: %w", err)
		}
	}
	return nil
}
