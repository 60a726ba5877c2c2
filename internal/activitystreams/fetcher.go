package activitystreams

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/vertix-social/vertix/internal/graph"
	"github.com/vertix-social/vertix/internal/verr"
)

// HTTPAccountFetcher implements txn.AccountFetcher: GET the remote actor
// document and convert it to an Account body. Requests are not signed;
// servers that require authorized fetch will reject them.
type HTTPAccountFetcher struct {
	Client *http.Client
}

// NewHTTPAccountFetcher returns a fetcher using a 10s-timeout client.
func NewHTTPAccountFetcher() *HTTPAccountFetcher {
	return &HTTPAccountFetcher{Client: &http.Client{Timeout: 10 * time.Second}}
}

// FetchAccount implements txn.AccountFetcher.
func (f *HTTPAccountFetcher) FetchAccount(ctx context.Context, rawURL string) (graph.Account, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return graph.Account{}, verr.Wrap(verr.Upstream, "build fetch account request", err)
	}
	req.Header.Set("Accept", "application/activity+json, application/ld+json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return graph.Account{}, verr.Wrap(verr.Upstream, "fetch account", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return graph.Account{}, verr.Wrap(verr.Upstream, fmt.Sprintf("fetch account: HTTP %d", resp.StatusCode), nil)
	}

	var actor Actor
	if err := json.NewDecoder(resp.Body).Decode(&actor); err != nil {
		return graph.Account{}, verr.Wrap(verr.ASValidation, "decode actor document", err)
	}
	if actor.ID == "" || actor.PreferredUsername == "" {
		return graph.Account{}, verr.Wrap(verr.ASValidation, "actor document missing id or preferredUsername", nil)
	}

	domain := rawURL
	if u, err := url.Parse(actor.ID); err == nil && u.Host != "" {
		domain = u.Host
	}

	return graph.Account{
		Username: actor.PreferredUsername,
		Domain:   domain,
		Remote: &graph.RemoteInfo{
			URI:       actor.ID,
			Inbox:     actor.Inbox,
			Outbox:    actor.Outbox,
			Followers: actor.Followers,
			Following: actor.Following,
		},
	}, nil
}
