package activitystreams

import (
	"context"
	"fmt"

	"github.com/vertix-social/vertix/internal/graph"
	"github.com/vertix-social/vertix/internal/reqcache"
	"github.com/vertix-social/vertix/internal/urlresolver"
	"github.com/vertix-social/vertix/internal/verr"
)

// AccountCache bundles the request-scoped cache and finder RenderAccount and
// RenderNote both need to resolve account URLs.
type AccountCache struct {
	Cache  *reqcache.RecordCache[urlresolver.Account]
	Finder reqcache.Finder[urlresolver.Account]
}

// NoteCache bundles the request-scoped cache and finder RenderNote needs to
// resolve a note's own canonical URL.
type NoteCache struct {
	Cache  *reqcache.RecordCache[urlresolver.Note]
	Finder reqcache.Finder[urlresolver.Note]
}

// RenderAccount builds the Actor document for the account identified by
// key.
func RenderAccount(ctx context.Context, r *urlresolver.Resolver, accounts AccountCache, key string) (*Actor, error) {
	a, err := accounts.Cache.Get(ctx, key, accounts.Finder)
	if err != nil {
		return nil, err
	}
	id, err := r.Account(ctx, accounts.Cache, accounts.Finder, key)
	if err != nil {
		return nil, err
	}
	inbox, err := r.AccountInbox(ctx, accounts.Cache, accounts.Finder, key)
	if err != nil {
		return nil, err
	}
	outbox, err := r.AccountOutbox(ctx, accounts.Cache, accounts.Finder, key)
	if err != nil {
		return nil, err
	}
	followers, err := r.AccountFollowers(ctx, accounts.Cache, accounts.Finder, key)
	if err != nil {
		return nil, err
	}
	following, err := r.AccountFollowing(ctx, accounts.Cache, accounts.Finder, key)
	if err != nil {
		return nil, err
	}
	return &Actor{
		Context:           ActivityStreamsNS,
		ID:                id,
		Type:              "Person",
		PreferredUsername: a.AccountUsername(),
		Inbox:             inbox,
		Outbox:            outbox,
		Followers:         followers,
		Following:         following,
		Endpoints:         &Endpoints{SharedInbox: r.SharedInbox()},
	}, nil
}

// RenderNote builds the Note document for note, resolving its own URL, its
// author's URL, and each recipient's URL (bto/bcc are blind and never
// rendered, per the ActivityPub convention for private audience fields).
func RenderNote(ctx context.Context, r *urlresolver.Resolver, accounts AccountCache, notes NoteCache, note *graph.Note) (*Note, error) {
	id, err := r.Note(ctx, notes.Cache, notes.Finder, accounts.Cache, accounts.Finder, note.Key)
	if err != nil {
		return nil, err
	}
	attributedTo, err := r.Account(ctx, accounts.Cache, accounts.Finder, note.From)
	if err != nil {
		return nil, err
	}
	to, err := renderRecipients(ctx, r, accounts, note.To)
	if err != nil {
		return nil, err
	}
	cc, err := renderRecipients(ctx, r, accounts, note.Cc)
	if err != nil {
		return nil, err
	}

	rendered := &Note{
		Context:      ActivityStreamsNS,
		ID:           id,
		Type:         "Note",
		AttributedTo: attributedTo,
		Content:      note.Content,
		To:           to,
		Cc:           cc,
	}
	if note.CreatedAt != nil {
		rendered.Published = note.CreatedAt.Format(timeFormat)
	}
	if note.UpdatedAt != nil {
		rendered.Updated = note.UpdatedAt.Format(timeFormat)
	}
	return rendered, nil
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

func renderRecipients(ctx context.Context, r *urlresolver.Resolver, accounts AccountCache, recipients []graph.Recipient) ([]string, error) {
	if len(recipients) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(recipients))
	for _, rec := range recipients {
		if rec.Public {
			out = append(out, PublicURI)
			continue
		}
		url, err := r.Account(ctx, accounts.Cache, accounts.Finder, rec.AccountKey)
		if err != nil {
			return nil, err
		}
		out = append(out, url)
	}
	return out, nil
}

// attributed is satisfied by any rendered object that names its author, the
// shape MakeActorAndObjectActivity needs to fill in an activity's actor.
type attributed interface {
	GetAttributedTo() string
}

// MakeActorAndObjectActivity wraps object in an activity of the given
// kind, taking its actor from object.attributedTo; an object with no
// attributed actor cannot be wrapped.
func MakeActorAndObjectActivity(kind string, object attributed) (*Activity, error) {
	actor := object.GetAttributedTo()
	if actor == "" {
		return nil, verr.NewInternal("activity object has no attributed actor")
	}
	return &Activity{Context: ActivityStreamsNS, Type: kind, Actor: actor, Object: object}, nil
}

// RenderFollowActivity builds the wire Follow activity for a Follow edge.
// The activity id is follow.uri if present, else
// {actor_url}#self/{follow.key}.
func RenderFollowActivity(follow *graph.Follow, actorURL, objectURL string) *Activity {
	id := actorURL + "#self/" + follow.Key
	if follow.URI != nil && *follow.URI != "" {
		id = *follow.URI
	}
	return &Activity{
		Context: ActivityStreamsNS,
		ID:      id,
		Type:    "Follow",
		Actor:   actorURL,
		Object:  objectURL,
	}
}

// WrapAcceptOrReject wraps a rendered Follow activity in an Accept or
// Reject, sent by the target back to the originator.
func WrapAcceptOrReject(follow *Activity, accepted bool, actorURL string) *Activity {
	kind := "Reject"
	if accepted {
		kind = "Accept"
	}
	return &Activity{
		Context: ActivityStreamsNS,
		ID:      fmt.Sprintf("%s#%s/%s", actorURL, kind, follow.ID),
		Type:    kind,
		Actor:   actorURL,
		Object:  follow,
	}
}

// RenderOrderedCollection builds the top-level collection pointer.
func RenderOrderedCollection(selfURL, firstPageURL string, total int) *OrderedCollection {
	return &OrderedCollection{
		Context:    ActivityStreamsNS,
		ID:         selfURL,
		Type:       "OrderedCollection",
		TotalItems: total,
		First:      firstPageURL,
	}
}

// RenderOrderedCollectionPage builds one page; nextPageURL is included
// only when the caller determines a further page exists (see
// NextPageURL).
func RenderOrderedCollectionPage(pageURL, partOfURL string, nextPageURL string, items []interface{}) *OrderedCollectionPage {
	return &OrderedCollectionPage{
		Context:      ActivityStreamsNS,
		ID:           pageURL,
		Type:         "OrderedCollectionPage",
		PartOf:       partOfURL,
		Next:         nextPageURL,
		OrderedItems: items,
	}
}

// NextPageURL returns nextURL unless the page came back short of the page
// limit, which signals there is no further page.
func NextPageURL(pl graph.PageLimit, itemCount int, nextURL string) string {
	if itemCount < int(pl.OrDefault().Limit) {
		return ""
	}
	return nextURL
}
