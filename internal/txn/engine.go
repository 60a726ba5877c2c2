package txn

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/vertix-social/vertix/internal/broker"
	"github.com/vertix-social/vertix/internal/graph"
	"github.com/vertix-social/vertix/internal/verr"
)

// AccountFetcher performs the FetchAccount action's outbound HTTP call:
// GET url, decode an ActivityStreams Person into an Account body.
// Implemented by internal/activitystreams in the real binary; kept as an
// interface here so the engine is testable without HTTP.
type AccountFetcher interface {
	FetchAccount(ctx context.Context, url string) (graph.Account, error)
}

// Publisher publishes one buffered Interaction after commit; errors are
// logged, not fatal, since the transaction already committed.
type Publisher interface {
	PublishInteraction(ctx context.Context, i Interaction) error
}

// Engine runs transactions against a graph.DB.
type Engine struct {
	DB        graph.DB
	Fetcher   AccountFetcher
	Publisher Publisher
	Log       *slog.Logger
}

// Run executes every action in tx in order inside one DB transaction,
// buffering Interactions as it goes. On success it returns the ordered
// responses and buffered interactions for the caller to commit-publish-
// reply; on any action failure it returns the error and buffers nothing,
// having already rolled back.
func (e *Engine) Run(ctx context.Context, tx Transaction) (TransactionResponse, []Interaction, error) {
	var responses []ActionResponse
	var interactions []Interaction

	writeCollections := []string{"Account", "Note", "Follow", "Publish", "Share", "Like"}
	err := e.DB.WithTransaction(ctx, writeCollections, func(ctx context.Context, txDB graph.DB) error {
		for _, action := range tx.Actions {
			resp, buffered, err := e.runAction(ctx, txDB, action)
			if err != nil {
				return err
			}
			responses = append(responses, resp)
			interactions = append(interactions, buffered...)
		}
		return nil
	})
	if err != nil {
		return TransactionResponse{}, nil, err
	}

	return TransactionResponse{Responses: responses}, interactions, nil
}

func (e *Engine) runAction(ctx context.Context, db graph.DB, action Action) (ActionResponse, []Interaction, error) {
	switch a := action.(type) {
	case PublishNoteAction:
		return e.publishNote(ctx, db, a)
	case FetchAccountAction:
		return e.fetchAccount(ctx, db, a)
	case InitiateFollowAction:
		return e.initiateFollow(ctx, db, a)
	case SetFollowAcceptedAction:
		return e.setFollowAccepted(ctx, db, a)
	default:
		return nil, nil, verr.NewInternal("unknown action kind")
	}
}

func (e *Engine) publishNote(ctx context.Context, db graph.DB, a PublishNoteAction) (ActionResponse, []Interaction, error) {
	if a.Note.From == "" {
		return nil, nil, verr.NewInternal("PublishNote requires note.from")
	}
	var publisher graph.Account
	if err := db.Find(ctx, "Account", map[string]any{"_key": a.Note.From}, &publisher); err != nil {
		return nil, nil, verr.NewNotFound("Account", map[string]string{"key": a.Note.From})
	}

	stored, err := graph.PublishNote(ctx, db, &publisher, a.Note)
	if err != nil {
		return nil, nil, err
	}

	return PublishNoteResponse{Note: *stored}, []Interaction{NoteInteraction{NoteDoc: *stored}}, nil
}

func (e *Engine) fetchAccount(ctx context.Context, db graph.DB, a FetchAccountAction) (ActionResponse, []Interaction, error) {
	fetched, err := e.Fetcher.FetchAccount(ctx, a.URL)
	if err != nil {
		return nil, nil, verr.Wrap(verr.Upstream, "fetch account", err)
	}
	if fetched.Remote == nil || fetched.Remote.URI != a.URL {
		return nil, nil, verr.NewInternal("fetched account's remote.uri does not match requested url")
	}
	now := time.Now().UTC()
	fetched.Remote.LastFetchedAt = &now

	existing, err := graph.FindAccountByURI(ctx, db, a.URL)
	if err == nil {
		existing.Remote = fetched.Remote
		existing.Username = fetched.Username
		// The save hook leaves remote accounts alone, so the re-fetch is
		// recorded here.
		existing.UpdatedAt = &now
		if err := existing.Save(ctx, db); err != nil {
			return nil, nil, err
		}
		return FetchAccountResponse{Account: *existing}, nil, nil
	}

	created, err := graph.CreateAccount(ctx, db, fetched)
	if err != nil {
		return nil, nil, err
	}
	return FetchAccountResponse{Account: *created}, nil, nil
}

func (e *Engine) initiateFollow(ctx context.Context, db graph.DB, a InitiateFollowAction) (ActionResponse, []Interaction, error) {
	var actor, target graph.Account
	if err := db.Find(ctx, "Account", map[string]any{"_key": a.From}, &actor); err != nil {
		return nil, nil, verr.NewNotFound("Account", map[string]string{"key": a.From})
	}
	if err := db.Find(ctx, "Account", map[string]any{"_key": a.To}, &target); err != nil {
		return nil, nil, verr.NewNotFound("Account", map[string]string{"key": a.To})
	}

	if existing, err := graph.FindFollowBetween(ctx, db, &actor, &target); err == nil {
		return InitiateFollowResponse{Created: false, Follow: *existing}, nil, nil
	}

	follow, err := graph.LinkFollow(ctx, db, &actor, &target, a.URI)
	if err != nil {
		return nil, nil, err
	}
	return InitiateFollowResponse{Created: true, Follow: *follow}, []Interaction{InitiateFollowInteraction{Follow: *follow}}, nil
}

func (e *Engine) setFollowAccepted(ctx context.Context, db graph.DB, a SetFollowAcceptedAction) (ActionResponse, []Interaction, error) {
	follow, err := graph.FindFollowByKey(ctx, db, a.Key)
	if err != nil {
		return nil, nil, err
	}
	if follow.Accepted != nil && *follow.Accepted == a.Accepted {
		return SetFollowAcceptedResponse{Modified: false, Follow: *follow}, nil, nil
	}
	follow.Accepted = &a.Accepted
	if err := follow.Save(ctx, db); err != nil {
		return nil, nil, err
	}
	return SetFollowAcceptedResponse{Modified: true, Follow: *follow}, []Interaction{SetFollowAcceptedInteraction{Follow: *follow}}, nil
}

// Serve consumes Transaction.process (prefetch set by the caller's
// broker.Conn.Consume) and runs each delivery through the engine in
// commit-then-publish-then-reply-then-ack order, so a client that sees
// the reply can rely on the side effects being visible in both the
// database and the broker.
func (e *Engine) Serve(ctx context.Context, deliveries <-chan broker.Delivery) {
	for d := range deliveries {
		e.handleDelivery(ctx, d)
	}
}

func (e *Engine) handleDelivery(ctx context.Context, d broker.Delivery) {
	var tx Transaction
	if err := json.Unmarshal(d.Payload, &tx); err != nil {
		e.Log.Error("malformed transaction payload", slog.String("error", err.Error()))
		_ = d.Nack(false)
		return
	}

	resp, interactions, err := e.Run(ctx, tx)
	if err != nil {
		e.Log.Warn("transaction aborted", slog.String("error", err.Error()))
		_ = d.Nack(true)
		return
	}

	for _, i := range interactions {
		if pubErr := e.Publisher.PublishInteraction(ctx, i); pubErr != nil {
			// Already committed: surfaced only as a log.
			e.Log.Error("failed to publish interaction after commit",
				slog.String("kind", i.Kind()), slog.String("error", pubErr.Error()))
		}
	}

	if d.WantsReply() {
		body, err := json.Marshal(resp)
		if err != nil {
			e.Log.Error("failed to marshal transaction response", slog.String("error", err.Error()))
		} else if err := d.Reply(ctx, body); err != nil {
			e.Log.Error("failed to send transaction reply", slog.String("error", err.Error()))
		}
	}

	if err := d.Ack(); err != nil {
		e.Log.Error("failed to ack transaction delivery", slog.String("error", err.Error()))
	}
}
