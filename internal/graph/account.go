package graph

import (
	"context"
	"time"

	"github.com/vertix-social/vertix/internal/urlresolver"
	"github.com/vertix-social/vertix/internal/verr"
)

const collectionAccounts = "Account"

// RemoteInfo is set iff the account is remote.
type RemoteInfo struct {
	URI           string     `json:"uri"`
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty"`
	Inbox         string     `json:"inbox,omitempty"`
	Outbox        string     `json:"outbox,omitempty"`
	Followers     string     `json:"followers,omitempty"`
	Following     string     `json:"following,omitempty"`
}

// Account is the local-or-remote actor record.
type Account struct {
	Key       string      `json:"_key,omitempty"`
	Username  string      `json:"username"`
	Domain    string      `json:"domain,omitempty"`
	Remote    *RemoteInfo `json:"remote,omitempty"`
	CreatedAt *time.Time  `json:"created_at,omitempty"`
	UpdatedAt *time.Time  `json:"updated_at,omitempty"`
}

// IsLocal reports whether this account is homed on this server.
func (a *Account) IsLocal() bool { return a.Remote == nil }

// IsRemote reports whether this account is federated from elsewhere.
func (a *Account) IsRemote() bool { return a.Remote != nil }

// AccountUsername satisfies urlresolver.Account.
func (a *Account) AccountUsername() string { return a.Username }

// AccountRemote satisfies urlresolver.Account.
func (a *Account) AccountRemote() *urlresolver.RemoteAccount {
	if a.Remote == nil {
		return nil
	}
	return &urlresolver.RemoteAccount{
		URI:       a.Remote.URI,
		Inbox:     a.Remote.Inbox,
		Outbox:    a.Remote.Outbox,
		Followers: a.Remote.Followers,
		Following: a.Remote.Following,
	}
}

func (a *Account) id() string { return collectionAccounts + "/" + a.Key }

// applyCreateHooks stamps created_at for local accounts only; remote
// accounts preserve upstream timestamps.
func (a *Account) applyCreateHooks() {
	if a.IsLocal() {
		now := time.Now().UTC()
		a.CreatedAt = &now
	}
}

// applySaveHooks stamps updated_at for local accounts only.
func (a *Account) applySaveHooks() {
	if a.IsLocal() {
		now := time.Now().UTC()
		a.UpdatedAt = &now
	}
}

// CreateAccount persists a new account, applying local-entity timestamp
// hooks first.
func CreateAccount(ctx context.Context, db DB, a Account) (*Account, error) {
	a.applyCreateHooks()
	var out Account
	if err := db.Create(ctx, collectionAccounts, a, &out); err != nil {
		return nil, verr.Wrap(verr.Model, "create account", err)
	}
	return &out, nil
}

// Save overwrites the stored account at a.Key, applying the updated_at hook
// for local accounts.
func (a *Account) Save(ctx context.Context, db DB) error {
	a.applySaveHooks()
	if err := db.Save(ctx, collectionAccounts, a.Key, a); err != nil {
		return verr.Wrap(verr.Model, "save account", err)
	}
	return nil
}

// FindAccountByUsername looks up an account by (username, domain); domain
// == "" means strictly local.
func FindAccountByUsername(ctx context.Context, db DB, username, domain string) (*Account, error) {
	filter := map[string]any{"username": username}
	if domain == "" {
		filter["domain"] = nil
	} else {
		filter["domain"] = domain
	}
	var a Account
	if err := db.Find(ctx, collectionAccounts, filter, &a); err != nil {
		return nil, notFound("Account", err, map[string]string{"username": username, "domain": domain})
	}
	return &a, nil
}

// FindAccountByURI looks up a remote account by its canonical URI.
func FindAccountByURI(ctx context.Context, db DB, uri string) (*Account, error) {
	var a Account
	if err := db.Find(ctx, collectionAccounts, map[string]any{"remote.uri": uri}, &a); err != nil {
		return nil, notFound("Account", err, map[string]string{"uri": uri})
	}
	return &a, nil
}

// FindAccountByKey looks up an account by its stable _key.
func FindAccountByKey(ctx context.Context, db DB, key string) (*Account, error) {
	var a Account
	if err := db.Find(ctx, collectionAccounts, map[string]any{"_key": key}, &a); err != nil {
		return nil, notFound("Account", err, map[string]string{"key": key})
	}
	return &a, nil
}

// AccountFinder adapts FindAccountByKey to reqcache.Finder[urlresolver.Account].
type AccountFinder struct {
	DB DB
}

// Find implements reqcache.Finder[urlresolver.Account], resolving an
// account by its stable key.
func (f AccountFinder) Find(ctx context.Context, key string) (urlresolver.Account, error) {
	var a Account
	if err := f.DB.Find(ctx, collectionAccounts, map[string]any{"_key": key}, &a); err != nil {
		return nil, notFound("Account", err, map[string]string{"key": key})
	}
	return &a, nil
}

func notFound(model string, cause error, params map[string]string) error {
	if cause == ErrNoRows {
		return verr.NewNotFound(model, params)
	}
	return verr.Wrap(verr.Model, "lookup "+model, cause)
}

const (
	aqlPublishedNotes = `
FOR v, e IN 1..1 OUTBOUND @start Publish
  SORT v.created_at DESC
  LIMIT @offset, @limit
  RETURN v`

	aqlFollowing = `
FOR v, e IN 1..1 OUTBOUND @start Follow
  FILTER e.accepted == true
  LIMIT @offset, @limit
  RETURN v`

	aqlFollowers = `
FOR v, e IN 1..1 INBOUND @start Follow
  FILTER e.accepted == true
  LIMIT @offset, @limit
  RETURN v`

	aqlCountPublishedNotes = `RETURN LENGTH(FOR v IN 1..1 OUTBOUND @start Publish RETURN 1)`
	aqlCountFollowing      = `RETURN LENGTH(FOR v, e IN 1..1 OUTBOUND @start Follow FILTER e.accepted == true RETURN 1)`
	aqlCountFollowers      = `RETURN LENGTH(FOR v, e IN 1..1 INBOUND @start Follow FILTER e.accepted == true RETURN 1)`

	aqlTimeline = `
FOR v, e, p IN 2..2 OUTBOUND @start Follow, Publish
  FILTER p.edges[0].accepted == true
  FILTER IS_SAME_COLLECTION("Publish", p.edges[1])
  SORT p.edges[1].created_at DESC
  LIMIT @offset, @limit
  RETURN v`
)

// GetPublishedNotes returns notes the account published, newest first.
func (a *Account) GetPublishedNotes(ctx context.Context, db DB, pl PageLimit) ([]Note, error) {
	pl = pl.OrDefault()
	var notes []Note
	bind := map[string]any{"start": a.id(), "offset": pl.Offset(), "limit": pl.Limit}
	if err := db.Query(ctx, aqlPublishedNotes, bind, &notes); err != nil {
		return nil, verr.Wrap(verr.Model, "published notes", err)
	}
	return notes, nil
}

// GetFollowing returns accounts a follows with an accepted Follow edge.
func (a *Account) GetFollowing(ctx context.Context, db DB, pl PageLimit) ([]Account, error) {
	pl = pl.OrDefault()
	var accts []Account
	bind := map[string]any{"start": a.id(), "offset": pl.Offset(), "limit": pl.Limit}
	if err := db.Query(ctx, aqlFollowing, bind, &accts); err != nil {
		return nil, verr.Wrap(verr.Model, "following", err)
	}
	return accts, nil
}

// GetFollowers returns accounts that follow a with an accepted Follow edge.
func (a *Account) GetFollowers(ctx context.Context, db DB, pl PageLimit) ([]Account, error) {
	pl = pl.OrDefault()
	var accts []Account
	bind := map[string]any{"start": a.id(), "offset": pl.Offset(), "limit": pl.Limit}
	if err := db.Query(ctx, aqlFollowers, bind, &accts); err != nil {
		return nil, verr.Wrap(verr.Model, "followers", err)
	}
	return accts, nil
}

// CountPublishedNotes counts a's published notes.
func (a *Account) CountPublishedNotes(ctx context.Context, db DB) (int, error) {
	return a.countOne(ctx, db, aqlCountPublishedNotes)
}

// CountFollowing counts accounts a follows with an accepted edge.
func (a *Account) CountFollowing(ctx context.Context, db DB) (int, error) {
	return a.countOne(ctx, db, aqlCountFollowing)
}

// CountFollowers counts accounts that follow a with an accepted edge.
func (a *Account) CountFollowers(ctx context.Context, db DB) (int, error) {
	return a.countOne(ctx, db, aqlCountFollowers)
}

func (a *Account) countOne(ctx context.Context, db DB, query string) (int, error) {
	var counts []int
	if err := db.Query(ctx, query, map[string]any{"start": a.id()}, &counts); err != nil {
		return 0, verr.Wrap(verr.Model, "count", err)
	}
	if len(counts) == 0 {
		return 0, nil
	}
	return counts[0], nil
}

// GetTimeline returns notes published by accounts a follows (accepted
// only), newest first: a two-hop traversal over Follow then Publish,
// sorted by the Publish edge's created_at.
func (a *Account) GetTimeline(ctx context.Context, db DB, pl PageLimit) ([]Note, error) {
	pl = pl.OrDefault()
	var notes []Note
	bind := map[string]any{"start": a.id(), "offset": pl.Offset(), "limit": pl.Limit}
	if err := db.Query(ctx, aqlTimeline, bind, &notes); err != nil {
		return nil, verr.Wrap(verr.Model, "timeline", err)
	}
	return notes, nil
}
