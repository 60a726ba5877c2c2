// Package txn implements the Transaction/Action/Interaction wire types
// and the worker engine that executes them against the graph database.
package txn

import (
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vertix-social/vertix/internal/broker"
	"github.com/vertix-social/vertix/internal/comm"
	"github.com/vertix-social/vertix/internal/graph"
)

// Action is one step of a Transaction.
type Action interface {
	Kind() string
}

// PublishNoteAction asks the worker to publish note as an account's post.
type PublishNoteAction struct {
	Note graph.Note `json:"note"`
}

// Kind implements Action.
func (PublishNoteAction) Kind() string { return "PublishNote" }

// FetchAccountAction asks the worker to fetch and upsert a remote account.
type FetchAccountAction struct {
	URL string `json:"url"`
}

// Kind implements Action.
func (FetchAccountAction) Kind() string { return "FetchAccount" }

// InitiateFollowAction asks the worker to create (or find) a Follow edge.
// URI, when set, is the inbound activity's own id; callers that don't
// have one leave it unset.
type InitiateFollowAction struct {
	From string  `json:"from"`
	To   string  `json:"to"`
	URI  *string `json:"uri,omitempty"`
}

// Kind implements Action.
func (InitiateFollowAction) Kind() string { return "InitiateFollow" }

// SetFollowAcceptedAction asks the worker to set a Follow edge's tri-state
// accepted field.
type SetFollowAcceptedAction struct {
	Key      string `json:"key"`
	Accepted bool   `json:"accepted"`
}

// Kind implements Action.
func (SetFollowAcceptedAction) Kind() string { return "SetFollowAccepted" }

// ActionResponse is the result of executing one Action.
type ActionResponse interface {
	Kind() string
}

// PublishNoteResponse carries the stored note document.
type PublishNoteResponse struct {
	Note graph.Note `json:"note"`
}

// Kind implements ActionResponse.
func (PublishNoteResponse) Kind() string { return "PublishNote" }

// FetchAccountResponse carries the stored account document.
type FetchAccountResponse struct {
	Account graph.Account `json:"account"`
}

// Kind implements ActionResponse.
func (FetchAccountResponse) Kind() string { return "FetchAccount" }

// InitiateFollowResponse reports whether a new edge was created.
type InitiateFollowResponse struct {
	Created bool        `json:"created"`
	Follow  graph.Follow `json:"follow"`
}

// Kind implements ActionResponse.
func (InitiateFollowResponse) Kind() string { return "InitiateFollow" }

// SetFollowAcceptedResponse reports whether the edge's accepted field
// actually changed.
type SetFollowAcceptedResponse struct {
	Modified bool        `json:"modified"`
	Follow   graph.Follow `json:"follow"`
}

// Kind implements ActionResponse.
func (SetFollowAcceptedResponse) Kind() string { return "SetFollowAccepted" }

// Transaction is a client-submitted ordered batch of actions, executed
// atomically by a worker.
type Transaction struct {
	Actions []Action
}

// TransactionResponse is the ordered batch of per-action results;
// |Responses| == |Actions| on success.
type TransactionResponse struct {
	Responses []ActionResponse
}

// Interaction is a fan-out event emitted after commit, announcing a
// durably committed state change.
type Interaction interface {
	Kind() string
	// Originator is the account key whose key gets v-from-acct-{key}.
	Originator() string
	// Recipients lists every account/public recipient that gets a
	// v-to-* header.
	Recipients() []comm.Recipient
}

// NoteInteraction announces a newly committed note.
type NoteInteraction struct {
	NoteDoc graph.Note
}

// Kind implements Interaction.
func (NoteInteraction) Kind() string { return "Note" }

// Originator implements Interaction: the note's author.
func (n NoteInteraction) Originator() string { return n.NoteDoc.From }

// Recipients implements Interaction: the union of to/cc/bto/bcc.
func (n NoteInteraction) Recipients() []comm.Recipient {
	var out []comm.Recipient
	for _, list := range [][]graph.Recipient{n.NoteDoc.To, n.NoteDoc.Cc, n.NoteDoc.Bto, n.NoteDoc.Bcc} {
		for _, r := range list {
			out = append(out, r.ToCommRecipient())
		}
	}
	return out
}

// InitiateFollowInteraction announces a newly created Follow edge.
type InitiateFollowInteraction struct {
	Follow graph.Follow
}

// Kind implements Interaction.
func (InitiateFollowInteraction) Kind() string { return "InitiateFollow" }

// Originator implements Interaction: the edge's actor.
func (f InitiateFollowInteraction) Originator() string {
	return graph.AccountKeyFromID(f.Follow.From)
}

// Recipients implements Interaction: the edge's target account.
func (f InitiateFollowInteraction) Recipients() []comm.Recipient {
	return []comm.Recipient{comm.Account(graph.AccountKeyFromID(f.Follow.To))}
}

// SetFollowAcceptedInteraction announces a Follow edge's accepted state
// changing.
type SetFollowAcceptedInteraction struct {
	Follow graph.Follow
}

// Kind implements Interaction.
func (SetFollowAcceptedInteraction) Kind() string { return "SetFollowAccepted" }

// Originator implements Interaction: the edge's "_from" account, same as
// InitiateFollowInteraction.
func (f SetFollowAcceptedInteraction) Originator() string {
	return graph.AccountKeyFromID(f.Follow.From)
}

// Recipients implements Interaction: the edge's target account.
func (f SetFollowAcceptedInteraction) Recipients() []comm.Recipient {
	return []comm.Recipient{comm.Account(graph.AccountKeyFromID(f.Follow.To))}
}

// envelope is the {type, data} wire shape every tagged union in this
// package marshals to/from.
type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func marshalAction(a Action) (envelope, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return envelope{}, err
	}
	return envelope{Type: a.Kind(), Data: data}, nil
}

func unmarshalAction(e envelope) (Action, error) {
	switch e.Type {
	case "PublishNote":
		var a PublishNoteAction
		return a, json.Unmarshal(e.Data, &a)
	case "FetchAccount":
		var a FetchAccountAction
		return a, json.Unmarshal(e.Data, &a)
	case "InitiateFollow":
		var a InitiateFollowAction
		return a, json.Unmarshal(e.Data, &a)
	case "SetFollowAccepted":
		var a SetFollowAcceptedAction
		return a, json.Unmarshal(e.Data, &a)
	default:
		return nil, fmt.Errorf("txn: unknown action type %q", e.Type)
	}
}

func marshalResponse(r ActionResponse) (envelope, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return envelope{}, err
	}
	return envelope{Type: r.Kind(), Data: data}, nil
}

func unmarshalResponse(e envelope) (ActionResponse, error) {
	switch e.Type {
	case "PublishNote":
		var r PublishNoteResponse
		return r, json.Unmarshal(e.Data, &r)
	case "FetchAccount":
		var r FetchAccountResponse
		return r, json.Unmarshal(e.Data, &r)
	case "InitiateFollow":
		var r InitiateFollowResponse
		return r, json.Unmarshal(e.Data, &r)
	case "SetFollowAccepted":
		var r SetFollowAcceptedResponse
		return r, json.Unmarshal(e.Data, &r)
	default:
		return nil, fmt.Errorf("txn: unknown response type %q", e.Type)
	}
}

// MarshalJSON implements json.Marshaler for Transaction as {"actions": [...]}.
func (t Transaction) MarshalJSON() ([]byte, error) {
	envs := make([]envelope, len(t.Actions))
	for i, a := range t.Actions {
		e, err := marshalAction(a)
		if err != nil {
			return nil, err
		}
		envs[i] = e
	}
	return json.Marshal(struct {
		Actions []envelope `json:"actions"`
	}{envs})
}

// UnmarshalJSON implements json.Unmarshaler for Transaction.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var wire struct {
		Actions []envelope `json:"actions"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	actions := make([]Action, len(wire.Actions))
	for i, e := range wire.Actions {
		a, err := unmarshalAction(e)
		if err != nil {
			return err
		}
		actions[i] = a
	}
	t.Actions = actions
	return nil
}

// MarshalJSON implements json.Marshaler for TransactionResponse.
func (t TransactionResponse) MarshalJSON() ([]byte, error) {
	envs := make([]envelope, len(t.Responses))
	for i, r := range t.Responses {
		e, err := marshalResponse(r)
		if err != nil {
			return nil, err
		}
		envs[i] = e
	}
	return json.Marshal(struct {
		Responses []envelope `json:"responses"`
	}{envs})
}

// UnmarshalJSON implements json.Unmarshaler for TransactionResponse.
func (t *TransactionResponse) UnmarshalJSON(data []byte) error {
	var wire struct {
		Responses []envelope `json:"responses"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	responses := make([]ActionResponse, len(wire.Responses))
	for i, e := range wire.Responses {
		r, err := unmarshalResponse(e)
		if err != nil {
			return err
		}
		responses[i] = r
	}
	t.Responses = responses
	return nil
}

// MarshalInteraction encodes an Interaction to its {type, data} wire form.
func MarshalInteraction(i Interaction) ([]byte, error) {
	data, err := json.Marshal(i)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Type: i.Kind(), Data: data})
}

// UnmarshalInteraction decodes an Interaction from its {type, data} wire
// form.
func UnmarshalInteraction(raw []byte) (Interaction, error) {
	var e envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, err
	}
	switch e.Type {
	case "Note":
		var n NoteInteraction
		return n, json.Unmarshal(e.Data, &n)
	case "InitiateFollow":
		var f InitiateFollowInteraction
		return f, json.Unmarshal(e.Data, &f)
	case "SetFollowAccepted":
		var f SetFollowAcceptedInteraction
		return f, json.Unmarshal(e.Data, &f)
	default:
		return nil, fmt.Errorf("txn: unknown interaction type %q", e.Type)
	}
}

// transactionMessage implements broker.Message for the Transaction RPC
// request: a single direct exchange, no routing key or headers.
type transactionMessage struct{}

func (transactionMessage) Exchange() string         { return comm.ExchangeTransaction }
func (transactionMessage) ExchangeKind() broker.Kind { return broker.KindDirect }
func (transactionMessage) RoutingKey() string        { return "" }
func (transactionMessage) Headers() amqp.Table       { return nil }

// TransactionMessage is the broker.Message for publishing/consuming on the
// Transaction exchange.
var TransactionMessage broker.Message = transactionMessage{}
