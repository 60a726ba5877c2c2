// Package broker is the typed envelope around an AMQP topic broker:
// publish/consume with a single-exchange-per-message-kind routing
// convention, plus RPC call/reply via the broker's direct-reply-to
// pseudo queue.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Kind is an AMQP exchange type, restricted to the three kinds the message
// catalog (internal/comm) actually uses.
type Kind string

const (
	KindDirect  Kind = "direct"
	KindFanout  Kind = "fanout"
	KindHeaders Kind = "headers"
)

// directReplyQueue is RabbitMQ's direct-reply-to pseudo queue: publishing
// with this as ReplyTo and consuming it with auto-ack delivers RPC replies
// without a queue declared per call.
const directReplyQueue = "amq.rabbitmq.reply-to"

// Message is anything that can be published: it names its own exchange,
// the exchange's kind (for idempotent declare-before-publish), and
// optional routing key / headers.
type Message interface {
	Exchange() string
	ExchangeKind() Kind
	RoutingKey() string
	Headers() amqp.Table
}

// Delivery wraps an incoming amqp.Delivery with the ack/nack/reply
// operations callers use; either Ack or Nack must be called exactly once.
type Delivery struct {
	Payload       []byte
	Headers       amqp.Table
	ReplyTo       string
	CorrelationID string

	raw amqp.Delivery
	ch  *Conn
}

// Ack acknowledges successful processing. Fire-and-forget: broker errors
// are returned but callers are not required to act on them.
func (d Delivery) Ack() error {
	return d.raw.Ack(false)
}

// Nack signals failed processing; requeue controls whether the broker
// redelivers it. The worker, deliverer, and inbound processor all request
// requeue=true when processing fails and requeue=false for a payload they
// cannot decode: retry is broker-level redelivery, no backoff state is
// kept anywhere.
func (d Delivery) Nack(requeue bool) error {
	return d.raw.Nack(false, requeue)
}

// WantsReply reports whether this delivery carries a reply_to the caller
// should respond to.
func (d Delivery) WantsReply() bool {
	return d.ReplyTo != ""
}

// Reply publishes body to this delivery's reply_to queue via the default
// exchange. A no-op if there is no reply_to.
func (d Delivery) Reply(ctx context.Context, body []byte) error {
	if !d.WantsReply() {
		return nil
	}
	return d.ch.ch.PublishWithContext(ctx, "", d.ReplyTo, false, false, amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		CorrelationId: d.CorrelationID,
	})
}

// Conn is a connected broker envelope: one AMQP channel plus the lazily
// started RPC response dispatcher.
type Conn struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *slog.Logger

	rpcMu      sync.Mutex
	rpcPending map[string]chan []byte
	rpcStarted bool
}

// Connect dials addr (a full AMQP URL, vertix's only broker setting) and
// opens a single channel.
func Connect(addr string, log *slog.Logger) (*Conn, func() error, error) {
	conn, err := amqp.Dial(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}
	c := &Conn{
		conn:       conn,
		ch:         ch,
		log:        log,
		rpcPending: make(map[string]chan []byte),
	}
	closeFn := func() error {
		if err := ch.Close(); err != nil {
			return err
		}
		return conn.Close()
	}
	return c, closeFn, nil
}

// DeclareExchange idempotently declares a durable exchange of the given kind.
func (c *Conn) DeclareExchange(name string, kind Kind) error {
	return c.ch.ExchangeDeclare(name, string(kind), true, false, false, false, nil)
}

// DeclareQueue idempotently declares a durable, non-exclusive queue.
func (c *Conn) DeclareQueue(name string) (amqp.Queue, error) {
	return c.ch.QueueDeclare(name, true, false, false, false, nil)
}

// BindQueue binds queue to exchange with the given routing key and/or
// header-match arguments (headers exchanges ignore routing key).
func (c *Conn) BindQueue(queue, exchange, routingKey string, headers amqp.Table) error {
	return c.ch.QueueBind(queue, routingKey, exchange, false, headers)
}

// Publish serializes nothing itself (body is already encoded JSON); it
// sends body to msg's exchange with msg's routing key and headers.
func (c *Conn) Publish(ctx context.Context, msg Message, body []byte) error {
	return c.ch.PublishWithContext(ctx, msg.Exchange(), msg.RoutingKey(), false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        body,
		Headers:     msg.Headers(),
	})
}

// Consume opens a manual-ack subscription on queue with the given prefetch
// (QoS), returning a channel of Delivery so callers never see the raw
// amqp.Delivery.
func (c *Conn) Consume(ctx context.Context, queue string, prefetch int) (<-chan Delivery, error) {
	if prefetch > 0 {
		if err := c.ch.Qos(prefetch, 0, false); err != nil {
			return nil, fmt.Errorf("failed to set qos: %w", err)
		}
	}
	raw, err := c.ch.ConsumeWithContext(ctx, queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming %s: %w", queue, err)
	}
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for d := range raw {
			out <- Delivery{
				Payload:       d.Body,
				Headers:       d.Headers,
				ReplyTo:       d.ReplyTo,
				CorrelationID: d.CorrelationId,
				raw:           d,
				ch:            c,
			}
		}
	}()
	return out, nil
}

// ReceiveCopies declares an exclusive anonymous queue bound to exchange
// with the given routing key or header match, and returns a no-ack stream
// of raw payloads. This is the subscription shape the interaction
// listeners use.
func (c *Conn) ReceiveCopies(ctx context.Context, exchange string, kind Kind, routingKey string, headers amqp.Table) (<-chan []byte, error) {
	q, err := c.ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to declare anonymous queue: %w", err)
	}
	if err := c.ch.QueueBind(q.Name, routingKey, exchange, false, headers); err != nil {
		return nil, fmt.Errorf("failed to bind anonymous queue: %w", err)
	}
	raw, err := c.ch.ConsumeWithContext(ctx, q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to consume anonymous queue: %w", err)
	}
	out := make(chan []byte)
	go func() {
		defer close(out)
		for d := range raw {
			out <- d.Body
		}
	}()
	return out, nil
}

// RemoteCall performs a broker RPC: publish to msg's exchange with
// reply_to set to the direct-reply pseudo queue, and wait for exactly one
// correlated reply. The consume-for-reply is started before the publish
// so a fast broker can't deliver the reply before we're listening for it.
func (c *Conn) RemoteCall(ctx context.Context, msg Message, body []byte) ([]byte, error) {
	if err := c.ensureRPCConsumer(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	respCh := make(chan []byte, 1)
	c.rpcMu.Lock()
	c.rpcPending[id] = respCh
	c.rpcMu.Unlock()
	defer func() {
		c.rpcMu.Lock()
		delete(c.rpcPending, id)
		c.rpcMu.Unlock()
	}()

	err := c.ch.PublishWithContext(ctx, msg.Exchange(), msg.RoutingKey(), false, false, amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		Headers:       msg.Headers(),
		ReplyTo:       directReplyQueue,
		CorrelationId: id,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to publish rpc request: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case reply, ok := <-respCh:
		if !ok {
			return nil, ErrNoReply
		}
		return reply, nil
	}
}

// ErrNoReply is returned when the broker closes the reply channel before
// any reply arrives.
var ErrNoReply = fmt.Errorf("no reply received before reply channel closed")

// ensureRPCConsumer lazily starts the single shared direct-reply-to
// consumer for this connection; one consumer fans replies out by
// correlation id to every in-flight RemoteCall.
func (c *Conn) ensureRPCConsumer() error {
	c.rpcMu.Lock()
	defer c.rpcMu.Unlock()
	if c.rpcStarted {
		return nil
	}
	deliveries, err := c.ch.Consume(directReplyQueue, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume direct-reply queue: %w", err)
	}
	c.rpcStarted = true
	go func() {
		for d := range deliveries {
			c.rpcMu.Lock()
			ch, ok := c.rpcPending[d.CorrelationId]
			c.rpcMu.Unlock()
			if !ok {
				c.log.Warn("unmatched rpc reply", slog.String("correlation_id", d.CorrelationId))
				continue
			}
			ch <- d.Body
		}
		// Broker closed the reply stream: wake every still-waiting caller
		// with a closed channel so RemoteCall can surface ErrNoReply.
		c.rpcMu.Lock()
		for id, ch := range c.rpcPending {
			close(ch)
			delete(c.rpcPending, id)
		}
		c.rpcStarted = false
		c.rpcMu.Unlock()
	}()
	return nil
}
