// Package webfinger resolves "user@domain" to an ActivityPub actor URL
// via the WebFinger protocol, and answers local WebFinger lookups for
// this server's own accounts. There is no cache here; callers that want
// coalescing already hold a request-scoped one.
package webfinger

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vertix-social/vertix/internal/verr"
)

// Link is one entry of a JRD's "links" array.
type Link struct {
	Rel  string `json:"rel"`
	Type string `json:"type,omitempty"`
	Href string `json:"href,omitempty"`
}

// JRD is the JSON Resource Descriptor WebFinger exchanges.
type JRD struct {
	Subject string `json:"subject"`
	Links   []Link `json:"links"`
}

// ActivityHref returns the href of the JRD's "rel=self,
// type=application/activity+json" link, the one naming the ActivityPub
// actor URL.
func (j JRD) ActivityHref() (string, bool) {
	for _, l := range j.Links {
		if l.Rel == selfRel && l.Type == activityType && l.Href != "" {
			return l.Href, true
		}
	}
	return "", false
}

// selfRel and activityType are the link relation/type pair identifying the ActivityPub
// actor URL among a JRD's links.
const (
	selfRel      = "self"
	activityType = "application/activity+json"
)

// Client resolves acct URIs to ActivityPub actor URLs over HTTPS.
type Client struct {
	HTTP *http.Client
}

// NewClient returns a Client using a 10s-timeout HTTP client, matching the
// rest of this core's outbound HTTP defaults.
func NewClient() *Client {
	return &Client{HTTP: &http.Client{Timeout: 10 * time.Second}}
}

// Resolve looks up username@domain and returns the href of its
// "rel=self, type=application/activity+json" link.
func (c *Client) Resolve(ctx context.Context, username, domain string) (string, error) {
	resource := fmt.Sprintf("acct:%s@%s", username, domain)
	u := url.URL{
		Scheme:   "https",
		Host:     domain,
		Path:     "/.well-known/webfinger",
		RawQuery: url.Values{"resource": {resource}}.Encode(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", verr.Wrap(verr.Webfinger, "build webfinger request", err)
	}
	req.Header.Set("Accept", "application/jrd+json, application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", verr.Wrap(verr.Webfinger, "webfinger request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", verr.Wrap(verr.Webfinger, fmt.Sprintf("webfinger: HTTP %d", resp.StatusCode), nil)
	}

	var jrd JRD
	if err := json.NewDecoder(resp.Body).Decode(&jrd); err != nil {
		return "", verr.Wrap(verr.Webfinger, "decode jrd", err)
	}

	href, ok := jrd.ActivityHref()
	if !ok {
		return "", verr.Wrap(verr.Webfinger, "no activity+json self link in jrd", nil)
	}
	return href, nil
}

// ParseResource splits a "acct:user@domain" resource parameter into its
// username/domain parts; it also accepts a bare "user@domain" for callers
// that already stripped the acct: prefix.
func ParseResource(resource string) (username, domain string, err error) {
	resource = strings.TrimPrefix(resource, "acct:")
	parts := strings.SplitN(resource, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", verr.Wrap(verr.Webfinger, "malformed acct resource", nil)
	}
	return parts[0], parts[1], nil
}

// Handler answers local /.well-known/webfinger lookups for this server's
// own accounts, rendering the same rel=self/activity+json link Resolve
// looks for on remote servers.
//
// lookup resolves a local username to its canonical actor URL; it is
// typically a thin wrapper over urlresolver.Resolver.Account fed by
// graph.FindAccountByUsername.
func Handler(domain string, lookup func(ctx context.Context, username string) (string, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resource := r.URL.Query().Get("resource")
		if resource == "" {
			http.Error(w, "missing resource parameter", http.StatusBadRequest)
			return
		}
		username, acctDomain, err := ParseResource(resource)
		if err != nil || acctDomain != domain {
			http.Error(w, "unknown resource", http.StatusNotFound)
			return
		}

		actorURL, err := lookup(r.Context(), username)
		if err != nil {
			http.Error(w, "not found", verr.HTTPStatus(err))
			return
		}

		jrd := JRD{
			Subject: resource,
			Links: []Link{
				{Rel: selfRel, Type: activityType, Href: actorURL},
			},
		}

		w.Header().Set("Content-Type", "application/jrd+json")
		_ = json.NewEncoder(w).Encode(jrd)
	}
}
