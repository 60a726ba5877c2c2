package graph

import (
	"context"
	"strings"
	"time"

	"github.com/vertix-social/vertix/internal/verr"
)

const (
	collectionFollow  = "Follow"
	collectionPublish = "Publish"
	collectionShare   = "Share"
	collectionLike    = "Like"
)

// Follow is the edge tracking one account's follow request/relationship to
// another. Accepted is tri-state: nil = pending, true =
// accepted, false = rejected.
type Follow struct {
	Key        string     `json:"_key,omitempty"`
	From       string     `json:"_from,omitempty"`
	To         string     `json:"_to,omitempty"`
	Accepted   *bool      `json:"accepted,omitempty"`
	FromRemote bool       `json:"from_remote"`
	ToRemote   bool       `json:"to_remote"`
	URI        *string    `json:"uri,omitempty"`
	CreatedAt  *time.Time `json:"created_at,omitempty"`
}

// Publish is the edge from an account to a note it published.
type Publish struct {
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Share is the edge from an account to a note it shared.
type Share struct {
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// Like is the edge from an account to a note it liked.
type Like struct {
	CreatedAt *time.Time `json:"created_at,omitempty"`
}

// AccountKeyFromID strips the "Account/" collection prefix a graph-database
// `_id` handle carries, leaving the bare key Follow.From/To store it as.
func AccountKeyFromID(id string) string {
	return strings.TrimPrefix(id, collectionAccounts+"/")
}

// LinkFollow creates a pending Follow edge from actor to target, setting
// from_remote/to_remote from the endpoints. uri is the
// inbound activity's own id, carried through only when present.
func LinkFollow(ctx context.Context, db DB, actor, target *Account, uri *string) (*Follow, error) {
	now := time.Now().UTC()
	edge, err := db.Link(ctx, collectionFollow, actor.id(), target.id(), Follow{
		FromRemote: actor.IsRemote(),
		ToRemote:   target.IsRemote(),
		URI:        uri,
		CreatedAt:  &now,
	})
	if err != nil {
		return nil, verr.Wrap(verr.Model, "link follow", err)
	}
	return &Follow{
		Key:        edge.Key,
		From:       edge.From,
		To:         edge.To,
		FromRemote: actor.IsRemote(),
		ToRemote:   target.IsRemote(),
		URI:        uri,
		CreatedAt:  &now,
	}, nil
}

// FindFollowBetween returns the Follow edge from actor to target, if any.
func FindFollowBetween(ctx context.Context, db DB, actor, target *Account) (*Follow, error) {
	var f Follow
	filter := map[string]any{"_from": actor.id(), "_to": target.id()}
	if err := db.Find(ctx, collectionFollow, filter, &f); err != nil {
		return nil, notFound("Follow", err, map[string]string{"from": actor.Key, "to": target.Key})
	}
	return &f, nil
}

// FindPendingFollowsFrom returns Follow edges actor sent that are still
// pending (accepted is unset).
func FindPendingFollowsFrom(ctx context.Context, db DB, actor *Account) ([]Follow, error) {
	var edges []Follow
	if err := db.Query(ctx, `
FOR f IN Follow
  FILTER f._from == @from AND f.accepted == null
  RETURN f`, map[string]any{"from": actor.id()}, &edges); err != nil {
		return nil, verr.Wrap(verr.Model, "pending follows from", err)
	}
	return edges, nil
}

// FindPendingFollowsTo returns Follow edges addressed to target that are
// still pending.
func FindPendingFollowsTo(ctx context.Context, db DB, target *Account) ([]Follow, error) {
	var edges []Follow
	if err := db.Query(ctx, `
FOR f IN Follow
  FILTER f._to == @to AND f.accepted == null
  RETURN f`, map[string]any{"to": target.id()}, &edges); err != nil {
		return nil, verr.Wrap(verr.Model, "pending follows to", err)
	}
	return edges, nil
}

// Save overwrites the stored Follow at f.Key (used by
// SetFollowAccepted after mutating Accepted).
func (f *Follow) Save(ctx context.Context, db DB) error {
	if err := db.Save(ctx, collectionFollow, f.Key, f); err != nil {
		return verr.Wrap(verr.Model, "save follow", err)
	}
	return nil
}

// FindFollowByKey loads a Follow edge by its key.
func FindFollowByKey(ctx context.Context, db DB, key string) (*Follow, error) {
	var f Follow
	if err := db.Find(ctx, collectionFollow, map[string]any{"_key": key}, &f); err != nil {
		return nil, notFound("Follow", err, map[string]string{"key": key})
	}
	return &f, nil
}
