// Command deliverer runs the remote deliverer: it consumes
// DeliverActivity.process and HTTP POSTs each rendered activity to its
// target inbox.
package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vertix-social/vertix/internal/broker"
	"github.com/vertix-social/vertix/internal/comm"
	"github.com/vertix-social/vertix/internal/config"
	"github.com/vertix-social/vertix/internal/deliver"
)

type App struct {
	log       *slog.Logger
	conn      *broker.Conn
	closeConn func() error
	deliverer *deliver.Deliverer
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

	httpClient, err := cfg.NewHTTPClient()
	if err != nil {
		closeConn()
		return nil, fmt.Errorf("build outbound http client: %w", err)
	}

	return &App{
		log:       log,
		conn:      conn,
		closeConn: closeConn,
		deliverer: &deliver.Deliverer{Client: httpClient, Log: log},
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	deliveries, err := a.conn.Consume(ctx, comm.QueueDeliverActivityProcess, deliver.Prefetch)
	if err != nil {
		return fmt.Errorf("consume %s: %w", comm.QueueDeliverActivityProcess, err)
	}
	a.log.Info("deliverer ready", slog.String("queue", comm.QueueDeliverActivityProcess))
	a.deliverer.Serve(ctx, deliveries)
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
