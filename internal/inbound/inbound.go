// Package inbound is the inbound activity processor: it dispatches
// ReceiveActivity.process deliveries by activity kind, resolves the
// actor/object parties by URI (local lookup, stored remote uri, or a
// fresh FetchAccount transaction), and re-enters the transaction engine
// with a newly built Transaction.
package inbound

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"regexp"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vertix-social/vertix/internal/activitystreams"
	"github.com/vertix-social/vertix/internal/broker"
	"github.com/vertix-social/vertix/internal/comm"
	"github.com/vertix-social/vertix/internal/graph"
	"github.com/vertix-social/vertix/internal/txn"
	"github.com/vertix-social/vertix/internal/urlresolver"
	"github.com/vertix-social/vertix/internal/verr"
)

// Prefetch is the QoS cap on in-flight inbound deliveries, matching the
// worker engine's own prefetch.
const Prefetch = 2

// localUserPath matches this server's own "/users/{username}" actor path.
var localUserPath = regexp.MustCompile(`^/users/([^/]+)$`)

// AccountResolver resolves an actor/object URI to a graph.Account: local
// path match first, then stored remote uri, then a fresh FetchAccount
// Transaction as a last resort.
type AccountResolver struct {
	DB       graph.DB
	Resolver *urlresolver.Resolver
	Conn     *broker.Conn
}

// Resolve looks up the account named by uri.
func (r *AccountResolver) Resolve(ctx context.Context, uri string) (*graph.Account, error) {
	if r.Resolver.IsOwnURL(uri) {
		return r.resolveLocal(ctx, uri)
	}
	if acct, err := graph.FindAccountByURI(ctx, r.DB, uri); err == nil {
		return acct, nil
	}
	return r.fetchAccount(ctx, uri)
}

func (r *AccountResolver) resolveLocal(ctx context.Context, raw string) (*graph.Account, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, verr.Wrap(verr.URL, "parse local actor url", err)
	}
	m := localUserPath.FindStringSubmatch(u.Path)
	if m == nil {
		return nil, verr.NewInternal("local actor url has no /users/{username} path")
	}
	username, err := url.PathUnescape(m[1])
	if err != nil {
		return nil, verr.Wrap(verr.URL, "unescape username", err)
	}
	return graph.FindAccountByUsername(ctx, r.DB, username, "")
}

// fetchAccount submits a single-action FetchAccount Transaction over the
// broker RPC and returns the stored account.
func (r *AccountResolver) fetchAccount(ctx context.Context, uri string) (*graph.Account, error) {
	tx := txn.Transaction{Actions: []txn.Action{txn.FetchAccountAction{URL: uri}}}
	resp, err := txn.Call(ctx, r.Conn, tx)
	if err != nil {
		return nil, err
	}
	if len(resp.Responses) != 1 {
		return nil, verr.NewInternal("fetch account transaction returned unexpected response count")
	}
	fr, ok := resp.Responses[0].(txn.FetchAccountResponse)
	if !ok {
		return nil, verr.NewInternal("fetch account transaction returned wrong response kind")
	}
	return &fr.Account, nil
}

// Processor consumes ReceiveActivity.process and dispatches by activity kind.
type Processor struct {
	Conn     *broker.Conn
	Resolver *AccountResolver
	Log      *slog.Logger
}

// Serve consumes deliveries; callers open it with
// conn.Consume(ctx, comm.QueueReceiveActivityProcess, inbound.Prefetch).
func (p *Processor) Serve(ctx context.Context, deliveries <-chan broker.Delivery) {
	for d := range deliveries {
		p.handleDelivery(ctx, d)
	}
}

func (p *Processor) handleDelivery(ctx context.Context, d broker.Delivery) {
	var act activitystreams.Activity
	if err := json.Unmarshal(d.Payload, &act); err != nil {
		p.Log.Error("malformed inbound activity", slog.String("error", err.Error()))
		_ = d.Nack(false)
		return
	}

	var err error
	switch act.Type {
	case "Follow":
		err = p.processFollow(ctx, act)
	default:
		// Any other kind is logged and nacked until implemented.
		p.Log.Warn("unsupported inbound activity kind", slog.String("kind", act.Type))
		_ = d.Nack(true)
		return
	}

	if err != nil {
		p.Log.Warn("inbound activity processing failed", slog.String("kind", act.Type), slog.String("error", err.Error()))
		_ = d.Nack(true)
		return
	}
	_ = d.Ack()
}

// processFollow resolves the Follow's actor and object and, unless
// neither turns out to be remote (which never happens for a genuine
// inbound delivery), submits a fresh InitiateFollow Transaction. The
// inbound activity's own id is not carried into the action's uri field.
func (p *Processor) processFollow(ctx context.Context, act activitystreams.Activity) error {
	objectURI := stringOrID(act.Object)
	if act.Actor == "" || objectURI == "" {
		return verr.NewInternal("follow activity missing actor or object")
	}

	actor, err := p.Resolver.Resolve(ctx, act.Actor)
	if err != nil {
		return err
	}
	object, err := p.Resolver.Resolve(ctx, objectURI)
	if err != nil {
		return err
	}

	if !actor.IsRemote() && !object.IsRemote() {
		p.Log.Warn("dropping inbound follow with no remote party",
			slog.String("actor", act.Actor), slog.String("object", objectURI))
		return nil
	}

	tx := txn.Transaction{Actions: []txn.Action{
		txn.InitiateFollowAction{From: actor.Key, To: object.Key},
	}}
	_, err = txn.Call(ctx, p.Conn, tx)
	return err
}

// stringOrID extracts a URI from an ActivityStreams value that may be
// either a bare string (the common case for Follow's object) or an embedded
// object carrying its own "id" field.
func stringOrID(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]interface{}:
		if id, ok := val["id"].(string); ok {
			return id
		}
	}
	return ""
}

// receiveActivityMessage implements broker.Message for publishing onto
// ReceiveActivity: a direct exchange, no routing key or headers.
type receiveActivityMessage struct{}

func (receiveActivityMessage) Exchange() string         { return comm.ExchangeReceiveActivity }
func (receiveActivityMessage) ExchangeKind() broker.Kind { return broker.KindDirect }
func (receiveActivityMessage) RoutingKey() string        { return "" }
func (receiveActivityMessage) Headers() amqp.Table       { return nil }

// ReceiveActivityMessage is the broker.Message for publishing onto
// ReceiveActivity.process.
var ReceiveActivityMessage broker.Message = receiveActivityMessage{}

// Publish enqueues a freshly received activity document for processing;
// the inbox endpoints call this and return 202 without waiting.
func Publish(ctx context.Context, conn *broker.Conn, body []byte) error {
	return conn.Publish(ctx, ReceiveActivityMessage, body)
}
