// Package deliver is the remote deliverer: it consumes
// DeliverActivity.process and HTTP POSTs the rendered activity to the
// target inbox. Outbound requests are not signed.
package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vertix-social/vertix/internal/broker"
	"github.com/vertix-social/vertix/internal/comm"
)

// Prefetch is the QoS cap on in-flight deliveries.
const Prefetch = 2

// Payload is the message carried on DeliverActivity.process.
type Payload struct {
	Inbox    string      `json:"inbox"`
	Activity interface{} `json:"activity"`
}

// deliverActivityMessage implements broker.Message for publishing onto
// DeliverActivity: a direct exchange, no routing key or headers.
type deliverActivityMessage struct{}

func (deliverActivityMessage) Exchange() string         { return comm.ExchangeDeliverActivity }
func (deliverActivityMessage) ExchangeKind() broker.Kind { return broker.KindDirect }
func (deliverActivityMessage) RoutingKey() string        { return "" }
func (deliverActivityMessage) Headers() amqp.Table       { return nil }

// DeliverActivityMessage is the broker.Message for publishing onto
// DeliverActivity.process.
var DeliverActivityMessage broker.Message = deliverActivityMessage{}

// Publish enqueues a single delivery of activity to inbox.
func Publish(ctx context.Context, conn *broker.Conn, inbox string, activity interface{}) error {
	body, err := json.Marshal(Payload{Inbox: inbox, Activity: activity})
	if err != nil {
		return fmt.Errorf("deliver: marshal payload: %w", err)
	}
	return conn.Publish(ctx, DeliverActivityMessage, body)
}

// Deliverer HTTP-POSTs every queued activity to its target inbox.
type Deliverer struct {
	Client *http.Client
	Log    *slog.Logger
}

// New returns a Deliverer using a 10s-timeout client.
func New(log *slog.Logger) *Deliverer {
	return &Deliverer{Client: &http.Client{Timeout: 10 * time.Second}, Log: log}
}

// Serve consumes DeliverActivity.process; callers open it with
// conn.Consume(ctx, comm.QueueDeliverActivityProcess, deliver.Prefetch).
func (d *Deliverer) Serve(ctx context.Context, deliveries <-chan broker.Delivery) {
	for delivery := range deliveries {
		d.handleDelivery(ctx, delivery)
	}
}

func (d *Deliverer) handleDelivery(ctx context.Context, delivery broker.Delivery) {
	var p Payload
	if err := json.Unmarshal(delivery.Payload, &p); err != nil {
		d.Log.Error("malformed deliver payload", slog.String("error", err.Error()))
		_ = delivery.Nack(false)
		return
	}

	activityBody, err := json.Marshal(p.Activity)
	if err != nil {
		d.Log.Error("failed to marshal activity", slog.String("error", err.Error()))
		_ = delivery.Nack(false)
		return
	}

	if err := d.post(ctx, p.Inbox, activityBody); err != nil {
		d.Log.Warn("delivery failed, requeuing", slog.String("inbox", p.Inbox), slog.String("error", err.Error()))
		_ = delivery.Nack(true)
		return
	}

	if err := delivery.Ack(); err != nil {
		d.Log.Error("failed to ack delivery", slog.String("error", err.Error()))
	}
}

func (d *Deliverer) post(ctx context.Context, inbox string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, inbox, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/activity+json")

	resp, err := d.Client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", inbox, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("post %s: HTTP %d", inbox, resp.StatusCode)
	}
	return nil
}
