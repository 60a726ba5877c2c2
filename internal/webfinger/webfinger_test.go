package webfinger

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Resolve always dials https://{domain}; these tests do not run it against
// a server. The link-selection half is exercised directly against a
// decoded JRD instead.
func TestActivityHrefPicksActivityJSONSelfLink(t *testing.T) {
	var jrd JRD
	require.NoError(t, json.Unmarshal([]byte(`{
		"subject": "acct:alice@example.org",
		"links": [
			{"rel": "http://webfinger.net/rel/profile-page", "type": "text/html", "href": "https://example.org/@alice"},
			{"rel": "self", "type": "application/activity+json", "href": "https://example.org/users/alice"}
		]
	}`), &jrd))

	href, ok := jrd.ActivityHref()
	require.True(t, ok)
	assert.Equal(t, "https://example.org/users/alice", href)
}

func TestActivityHrefMissingSelfLink(t *testing.T) {
	jrd := JRD{Links: []Link{{Rel: "self", Type: "text/html", Href: "https://example.org/@alice"}}}
	_, ok := jrd.ActivityHref()
	assert.False(t, ok)
}

func TestParseResourceRejectsMalformed(t *testing.T) {
	_, _, err := ParseResource("not-an-acct")
	assert.Error(t, err)
}

func TestParseResourceStripsAcctPrefix(t *testing.T) {
	username, domain, err := ParseResource("acct:bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "bob", username)
	assert.Equal(t, "example.com", domain)
}

func TestHandlerRendersSelfLinkForKnownUsername(t *testing.T) {
	lookup := func(ctx context.Context, username string) (string, error) {
		if username != "alice" {
			return "", assert.AnError
		}
		return "https://example.org/users/alice", nil
	}
	h := Handler("example.org", lookup)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/webfinger?resource=acct:alice@example.org", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://example.org/users/alice")
}

func TestHandlerRejectsWrongDomain(t *testing.T) {
	lookup := func(ctx context.Context, username string) (string, error) {
		return "https://example.org/users/alice", nil
	}
	h := Handler("example.org", lookup)

	req := httptest.NewRequest(http.MethodGet, "/.well-known/webfinger?resource=acct:alice@other.org", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
