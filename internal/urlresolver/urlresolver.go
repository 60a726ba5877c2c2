// Package urlresolver decides, per entity, whether a URL is local (built
// from the configured base URL) or remote (taken verbatim from the stored
// record), resolving entities through a request-scoped cache.
package urlresolver

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/vertix-social/vertix/internal/reqcache"
	"github.com/vertix-social/vertix/internal/verr"
)

// RemoteAccount carries the remote URLs known for a federated account.
// Inbox/Outbox/Followers/Following are optional; a nil/empty field means
// the resolver has no per-collection URL for that remote account and
// must fail rather than guess one.
type RemoteAccount struct {
	URI       string
	Inbox     string
	Outbox    string
	Followers string
	Following string
}

// Account is the minimal view UrlFor needs of an account record. graph.Account
// satisfies this directly.
type Account interface {
	AccountUsername() string
	AccountRemote() *RemoteAccount
}

// Note is the minimal view UrlFor needs of a note record.
type Note interface {
	NoteKey() string
	NoteRemoteURI() (string, bool)
	NoteAccountKey() string
}

// Resolver builds and classifies URLs against one configured base URL.
type Resolver struct {
	BaseURL *url.URL
}

// New parses baseURL (the VERTIX_BASE_URL setting) into a Resolver.
func New(baseURL string) (*Resolver, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, verr.Wrap(verr.URL, "parse base url", err)
	}
	return &Resolver{BaseURL: u}, nil
}

// local joins segments onto the base URL, percent-encoding each one so a
// username or note key containing "/" can't be mistaken for an extra path
// segment (net/url.URL.JoinPath itself does not escape "/" inside an element).
func (r *Resolver) local(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return r.BaseURL.JoinPath(escaped...).String()
}

func notFoundOf(model string) error {
	return verr.NewNotFound(model, nil)
}

func cantResolveRemote(what string) error {
	return verr.NewInternal(fmt.Sprintf("can't resolve %s for remote account", what))
}

// Account returns the canonical URL for the account identified by key.
func (r *Resolver) Account(ctx context.Context, cache *reqcache.RecordCache[Account], finder reqcache.Finder[Account], key string) (string, error) {
	a, err := cache.Get(ctx, key, finder)
	if err != nil {
		return "", err
	}
	if rem := a.AccountRemote(); rem != nil {
		if rem.URI == "" {
			return "", notFoundOf("Account")
		}
		return rem.URI, nil
	}
	return r.local("users", a.AccountUsername()), nil
}

// AccountInbox returns the account's inbox URL.
func (r *Resolver) AccountInbox(ctx context.Context, cache *reqcache.RecordCache[Account], finder reqcache.Finder[Account], key string) (string, error) {
	a, err := cache.Get(ctx, key, finder)
	if err != nil {
		return "", err
	}
	if rem := a.AccountRemote(); rem != nil {
		if rem.Inbox == "" {
			return "", cantResolveRemote("inbox")
		}
		return rem.Inbox, nil
	}
	return r.local("users", a.AccountUsername(), "inbox"), nil
}

// AccountOutbox returns the account's outbox collection URL.
func (r *Resolver) AccountOutbox(ctx context.Context, cache *reqcache.RecordCache[Account], finder reqcache.Finder[Account], key string) (string, error) {
	return r.accountCollection(ctx, cache, finder, key, "outbox", func(rem *RemoteAccount) string { return rem.Outbox })
}

// AccountOutboxPage returns a paged outbox URL; remote accounts have no
// page URLs since only the local server paginates its own collections.
func (r *Resolver) AccountOutboxPage(ctx context.Context, cache *reqcache.RecordCache[Account], finder reqcache.Finder[Account], key string, page int) (string, error) {
	return r.accountCollectionPage(ctx, cache, finder, key, "outbox", page)
}

// AccountFollowers returns the account's followers collection URL.
func (r *Resolver) AccountFollowers(ctx context.Context, cache *reqcache.RecordCache[Account], finder reqcache.Finder[Account], key string) (string, error) {
	return r.accountCollection(ctx, cache, finder, key, "followers", func(rem *RemoteAccount) string { return rem.Followers })
}

// AccountFollowersPage returns a paged followers collection URL.
func (r *Resolver) AccountFollowersPage(ctx context.Context, cache *reqcache.RecordCache[Account], finder reqcache.Finder[Account], key string, page int) (string, error) {
	return r.accountCollectionPage(ctx, cache, finder, key, "followers", page)
}

// AccountFollowing returns the account's following collection URL.
func (r *Resolver) AccountFollowing(ctx context.Context, cache *reqcache.RecordCache[Account], finder reqcache.Finder[Account], key string) (string, error) {
	return r.accountCollection(ctx, cache, finder, key, "following", func(rem *RemoteAccount) string { return rem.Following })
}

// AccountFollowingPage returns a paged following collection URL.
func (r *Resolver) AccountFollowingPage(ctx context.Context, cache *reqcache.RecordCache[Account], finder reqcache.Finder[Account], key string, page int) (string, error) {
	return r.accountCollectionPage(ctx, cache, finder, key, "following", page)
}

func (r *Resolver) accountCollection(ctx context.Context, cache *reqcache.RecordCache[Account], finder reqcache.Finder[Account], key, suffix string, remoteURL func(*RemoteAccount) string) (string, error) {
	a, err := cache.Get(ctx, key, finder)
	if err != nil {
		return "", err
	}
	if rem := a.AccountRemote(); rem != nil {
		if u := remoteURL(rem); u != "" {
			return u, nil
		}
		return "", cantResolveRemote(suffix)
	}
	return r.local("users", a.AccountUsername(), suffix), nil
}

func (r *Resolver) accountCollectionPage(ctx context.Context, cache *reqcache.RecordCache[Account], finder reqcache.Finder[Account], key, suffix string, page int) (string, error) {
	a, err := cache.Get(ctx, key, finder)
	if err != nil {
		return "", err
	}
	if a.AccountRemote() != nil {
		return "", cantResolveRemote(suffix + " page")
	}
	return r.local("users", a.AccountUsername(), suffix, "page", strconv.Itoa(page)), nil
}

// Note returns the canonical URL for the note identified by key, resolving
// the owning account to build the local URL when the note itself is local.
func (r *Resolver) Note(ctx context.Context, notes *reqcache.RecordCache[Note], noteFinder reqcache.Finder[Note], accounts *reqcache.RecordCache[Account], accountFinder reqcache.Finder[Account], key string) (string, error) {
	n, err := notes.Get(ctx, key, noteFinder)
	if err != nil {
		return "", err
	}
	if uri, ok := n.NoteRemoteURI(); ok {
		return uri, nil
	}
	acctURL, err := r.Account(ctx, accounts, accountFinder, n.NoteAccountKey())
	if err != nil {
		return "", err
	}
	u, err := url.Parse(acctURL)
	if err != nil {
		return "", verr.Wrap(verr.URL, "parse account url", err)
	}
	return u.JoinPath("notes", url.PathEscape(n.NoteKey())).String(), nil
}

// SharedInbox returns the process-wide shared inbox URL; there is exactly
// one, and it is always local.
func (r *Resolver) SharedInbox() string {
	return r.local("inbox")
}

// IsOwnURL reports whether raw names a resource under this resolver's base
// URL, i.e. shares scheme and host with it. A relative URL counts as own;
// one that does not parse does not.
func (r *Resolver) IsOwnURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if !u.IsAbs() {
		return true
	}
	return u.Scheme == r.BaseURL.Scheme && u.Host == r.BaseURL.Host
}
