// Package interaction implements the Interaction fan-out exchange:
// publishing a committed Interaction with derived v-* headers, and a
// filtered listener contract over an exclusive queue.
package interaction

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vertix-social/vertix/internal/broker"
	"github.com/vertix-social/vertix/internal/comm"
	"github.com/vertix-social/vertix/internal/txn"
)

// Publish encodes i to its wire form and sends it to the Interaction
// exchange with headers derived from i.Originator()/i.Recipients().
func Publish(ctx context.Context, conn *broker.Conn, i txn.Interaction) error {
	body, err := txn.MarshalInteraction(i)
	if err != nil {
		return fmt.Errorf("interaction: marshal: %w", err)
	}
	return conn.Publish(ctx, message{headers: comm.DeriveHeaders(i.Originator(), i.Recipients())}, body)
}

// Listen declares an exclusive queue bound to the Interaction exchange
// with the union of from/to filters and returns a channel of decoded
// Interactions. Malformed payloads are dropped rather
// than sent, since this is a no-ack broadcast stream with no redelivery.
func Listen(ctx context.Context, conn *broker.Conn, from []string, to []comm.Recipient) (<-chan txn.Interaction, error) {
	raw, err := conn.ReceiveCopies(ctx, comm.ExchangeInteraction, broker.KindHeaders, "", comm.ListenFilter(from, to))
	if err != nil {
		return nil, fmt.Errorf("interaction: listen: %w", err)
	}
	out := make(chan txn.Interaction)
	go func() {
		defer close(out)
		for body := range raw {
			i, err := txn.UnmarshalInteraction(body)
			if err != nil {
				continue
			}
			select {
			case out <- i:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// BrokerPublisher adapts Publish to txn.Publisher, so an Engine can publish
// committed Interactions straight to the broker.
type BrokerPublisher struct {
	Conn *broker.Conn
}

// PublishInteraction implements txn.Publisher.
func (p BrokerPublisher) PublishInteraction(ctx context.Context, i txn.Interaction) error {
	return Publish(ctx, p.Conn, i)
}

// message adapts a derived header set to broker.Message for publishing on
// the Interaction exchange.
type message struct {
	headers amqp.Table
}

func (m message) Exchange() string         { return comm.ExchangeInteraction }
func (m message) ExchangeKind() broker.Kind { return broker.KindHeaders }
func (m message) RoutingKey() string        { return "" }
func (m message) Headers() amqp.Table       { return m.headers }
