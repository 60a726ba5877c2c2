package inbound

import (
	"context"
	"log/slog"

	"github.com/vertix-social/vertix/internal/activitystreams"
	"github.com/vertix-social/vertix/internal/broker"
	"github.com/vertix-social/vertix/internal/deliver"
	"github.com/vertix-social/vertix/internal/graph"
	"github.com/vertix-social/vertix/internal/reqcache"
	"github.com/vertix-social/vertix/internal/txn"
	"github.com/vertix-social/vertix/internal/urlresolver"
)

// RemoteSender consumes Interaction.for_remote and renders+delivers the
// wire activity for whichever committed interactions actually involve a
// remote party.
type RemoteSender struct {
	Conn     *broker.Conn
	Resolver *urlresolver.Resolver
	Finder   reqcache.Finder[urlresolver.Account]
	Log      *slog.Logger
}

// Serve consumes Interaction.for_remote; callers open it with
// conn.Consume(ctx, comm.QueueInteractionForRemote, ...). This queue has
// no prefetch requirement of its own beyond what the broker connection
// sets, since each delivery does at most one outbound HTTP enqueue.
func (s *RemoteSender) Serve(ctx context.Context, deliveries <-chan broker.Delivery) {
	for d := range deliveries {
		s.handleDelivery(ctx, d)
	}
}

func (s *RemoteSender) handleDelivery(ctx context.Context, d broker.Delivery) {
	i, err := txn.UnmarshalInteraction(d.Payload)
	if err != nil {
		s.Log.Error("malformed interaction on for_remote queue", slog.String("error", err.Error()))
		_ = d.Nack(false)
		return
	}

	// One cache per delivery, since a single interaction may resolve the
	// same account's URL more than once (actor + object).
	cache := reqcache.NewRecordCache[urlresolver.Account]()

	if err := s.handle(ctx, cache, i); err != nil {
		s.Log.Warn("failed to deliver interaction to remote", slog.String("kind", i.Kind()), slog.String("error", err.Error()))
		_ = d.Nack(true)
		return
	}
	_ = d.Ack()
}

func (s *RemoteSender) handle(ctx context.Context, cache *reqcache.RecordCache[urlresolver.Account], i txn.Interaction) error {
	switch v := i.(type) {
	case txn.NoteInteraction:
		return s.handleNote(v)
	case txn.InitiateFollowInteraction:
		return s.handleInitiateFollow(ctx, cache, v)
	case txn.SetFollowAcceptedInteraction:
		return s.handleSetFollowAccepted(ctx, cache, v)
	default:
		return nil
	}
}

// handleNote is deliberately a no-op for now: fan-out of local notes to
// remote followers' inboxes needs targeting rules (shared-inbox
// dedup, follower sync) that are not settled yet.
// TODO: deliver local notes to remote followers' inboxes.
func (s *RemoteSender) handleNote(n txn.NoteInteraction) error {
	if n.NoteDoc.IsLocal() {
		s.Log.Debug("note fan-out to remote followers deferred", slog.String("key", n.NoteDoc.Key))
	}
	return nil
}

func (s *RemoteSender) accountURL(ctx context.Context, cache *reqcache.RecordCache[urlresolver.Account], key string) (string, error) {
	return s.Resolver.Account(ctx, cache, s.Finder, key)
}

func (s *RemoteSender) accountInbox(ctx context.Context, cache *reqcache.RecordCache[urlresolver.Account], key string) (string, error) {
	return s.Resolver.AccountInbox(ctx, cache, s.Finder, key)
}

// handleInitiateFollow renders and delivers the Follow activity to the
// target's inbox, but only when the target is actually remote. A Follow
// between two remote parties is never delivered: this server does not
// proxy between other servers.
func (s *RemoteSender) handleInitiateFollow(ctx context.Context, cache *reqcache.RecordCache[urlresolver.Account], f txn.InitiateFollowInteraction) error {
	if !f.Follow.ToRemote || f.Follow.FromRemote {
		return nil
	}

	fromKey := graph.AccountKeyFromID(f.Follow.From)
	toKey := graph.AccountKeyFromID(f.Follow.To)

	actorURL, err := s.accountURL(ctx, cache, fromKey)
	if err != nil {
		return err
	}
	objectURL, err := s.accountURL(ctx, cache, toKey)
	if err != nil {
		return err
	}
	inbox, err := s.accountInbox(ctx, cache, toKey)
	if err != nil {
		return err
	}

	activity := activitystreams.RenderFollowActivity(&f.Follow, actorURL, objectURL)
	return deliver.Publish(ctx, s.Conn, inbox, activity)
}

// handleSetFollowAccepted wraps the rendered Follow in an Accept/Reject
// (actor = the target account that decided it) and delivers it to the
// follow's originator, but only when that originator is remote.
func (s *RemoteSender) handleSetFollowAccepted(ctx context.Context, cache *reqcache.RecordCache[urlresolver.Account], f txn.SetFollowAcceptedInteraction) error {
	if !f.Follow.FromRemote {
		return nil
	}

	fromKey := graph.AccountKeyFromID(f.Follow.From)
	toKey := graph.AccountKeyFromID(f.Follow.To)

	fromURL, err := s.accountURL(ctx, cache, fromKey)
	if err != nil {
		return err
	}
	toURL, err := s.accountURL(ctx, cache, toKey)
	if err != nil {
		return err
	}
	inbox, err := s.accountInbox(ctx, cache, fromKey)
	if err != nil {
		return err
	}

	followActivity := activitystreams.RenderFollowActivity(&f.Follow, fromURL, toURL)
	accepted := f.Follow.Accepted != nil && *f.Follow.Accepted
	wrapped := activitystreams.WrapAcceptOrReject(followActivity, accepted, toURL)
	return deliver.Publish(ctx, s.Conn, inbox, wrapped)
}
