// Package comm declares the message catalog: one exchange per message
// kind, its AMQP exchange type, and the durable queues bound to it. Setup
// is table-driven and idempotent.
package comm

import (
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vertix-social/vertix/internal/broker"
)

// Exchange names, one per message kind.
const (
	ExchangeTransaction     = "Transaction"
	ExchangeInteraction     = "Interaction"
	ExchangeReceiveActivity = "ReceiveActivity"
	ExchangeDeliverActivity = "DeliverActivity"
	ExchangeTestAnnounce    = "TestAnnounce"
)

// Queue names bound with an empty routing key, one per worker.
const (
	QueueTransactionProcess     = "Transaction.process"
	QueueInteractionForRemote   = "Interaction.for_remote"
	QueueReceiveActivityProcess = "ReceiveActivity.process"
	QueueDeliverActivityProcess = "DeliverActivity.process"
)

// binding describes one queue bound to the declaring exchange.
type binding struct {
	queue      string
	routingKey string
	headers    amqp.Table
}

// declaration is one row of the catalog: an exchange, its kind, and the
// durable queues bound to it at startup.
type declaration struct {
	exchange string
	kind     broker.Kind
	bindings []binding
}

// catalog is the full table. Interaction.for_remote is bound with no
// header arguments, so it receives every interaction; the remote-
// federation worker decides per record whether a remote party is
// involved, without needing to know every account key up front.
var catalog = []declaration{
	{
		exchange: ExchangeTransaction,
		kind:     broker.KindDirect,
		bindings: []binding{{queue: QueueTransactionProcess}},
	},
	{
		exchange: ExchangeInteraction,
		kind:     broker.KindHeaders,
		// Interaction.for_remote has no per-account filter: the remote
		// federation worker (component I) needs to see every interaction
		// and decides per-record (via Follow.to_remote/from_remote, or
		// Note.from's locality) whether a remote party is actually
		// involved. A headers binding with no arguments matches every
		// message, unlike the account-scoped listener bindings in
		// internal/interaction, which do use x-match=any over specific
		// v-* keys.
		bindings: []binding{{queue: QueueInteractionForRemote}},
	},
	{
		exchange: ExchangeReceiveActivity,
		kind:     broker.KindDirect,
		bindings: []binding{{queue: QueueReceiveActivityProcess}},
	},
	{
		exchange: ExchangeDeliverActivity,
		kind:     broker.KindDirect,
		bindings: []binding{{queue: QueueDeliverActivityProcess}},
	},
	{
		exchange: ExchangeTestAnnounce,
		kind:     broker.KindFanout,
	},
}

// Setup declares every exchange and binds every queue in the catalog. It is
// idempotent and should run once per worker at startup.
func Setup(c *broker.Conn) error {
	for _, d := range catalog {
		if err := c.DeclareExchange(d.exchange, d.kind); err != nil {
			return err
		}
		for _, b := range d.bindings {
			if _, err := c.DeclareQueue(b.queue); err != nil {
				return err
			}
			if err := c.BindQueue(b.queue, d.exchange, b.routingKey, b.headers); err != nil {
				return err
			}
		}
	}
	return nil
}
