package activitystreams

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertix-social/vertix/internal/graph"
	"github.com/vertix-social/vertix/internal/reqcache"
	"github.com/vertix-social/vertix/internal/urlresolver"
)

// fakeDB is a minimal in-memory graph.DB, local to this package's tests;
// every package that needs one (internal/graph, internal/txn) writes its
// own small fixture rather than sharing an exported test helper across
// package boundaries.
type fakeDB struct {
	cols map[string]map[string]map[string]any
	seq  int
}

func newFakeDB() *fakeDB { return &fakeDB{cols: map[string]map[string]map[string]any{}} }

func (f *fakeDB) col(name string) map[string]map[string]any {
	c, ok := f.cols[name]
	if !ok {
		c = map[string]map[string]any{}
		f.cols[name] = c
	}
	return c
}

// seed directly inserts doc under key in collection, bypassing Create's
// key-generation, for documents tests construct by hand (e.g. a Note with a
// caller-chosen key).
func (f *fakeDB) seed(collection, key string, doc any) {
	m := toMap(doc)
	m["_key"] = key
	f.col(collection)[key] = m
}

func toMap(doc any) map[string]any {
	raw, _ := json.Marshal(doc)
	var m map[string]any
	_ = json.Unmarshal(raw, &m)
	return m
}

func fromMap(m map[string]any, out any) error {
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (f *fakeDB) Find(ctx context.Context, collection string, filter map[string]any, out any) error {
	for _, m := range f.col(collection) {
		match := true
		for k, v := range filter {
			if m[k] != v {
				match = false
				break
			}
		}
		if match {
			return fromMap(m, out)
		}
	}
	return graph.ErrNoRows
}

func (f *fakeDB) Create(ctx context.Context, collection string, doc any, out any) error {
	f.seq++
	key := fmt.Sprintf("k%d", f.seq)
	m := toMap(doc)
	m["_key"] = key
	f.col(collection)[key] = m
	return fromMap(m, out)
}

func (f *fakeDB) Save(ctx context.Context, collection string, key string, doc any) error {
	m := toMap(doc)
	m["_key"] = key
	f.col(collection)[key] = m
	return nil
}

func (f *fakeDB) Link(ctx context.Context, edgeCollection string, fromID, toID string, doc any) (graph.Edge, error) {
	f.seq++
	key := fmt.Sprintf("k%d", f.seq)
	m := toMap(doc)
	m["_key"] = key
	m["_from"] = fromID
	m["_to"] = toID
	f.col(edgeCollection)[key] = m
	return graph.Edge{Key: key, From: fromID, To: toID}, nil
}

func (f *fakeDB) Query(ctx context.Context, aql string, bindVars map[string]any, out any) error {
	return nil
}

func (f *fakeDB) WithTransaction(ctx context.Context, writeCollections []string, fn func(ctx context.Context, tx graph.DB) error) error {
	return fn(ctx, f)
}

func newAccountCache(db graph.DB) AccountCache {
	return AccountCache{Cache: reqcache.NewRecordCache[urlresolver.Account](), Finder: graph.AccountFinder{DB: db}}
}

func TestRenderAccountBuildsPersonDocument(t *testing.T) {
	db := newFakeDB()
	ctx := context.Background()
	acct, err := graph.CreateAccount(ctx, db, graph.Account{Username: "alice"})
	require.NoError(t, err)

	r, err := urlresolver.New("https://vertix.example/")
	require.NoError(t, err)

	actor, err := RenderAccount(ctx, r, newAccountCache(db), acct.Key)
	require.NoError(t, err)
	assert.Equal(t, "Person", actor.Type)
	assert.Equal(t, "alice", actor.PreferredUsername)
	assert.Equal(t, "https://vertix.example/users/alice", actor.ID)
	assert.Equal(t, "https://vertix.example/users/alice/inbox", actor.Inbox)
	assert.Equal(t, "https://vertix.example/inbox", actor.Endpoints.SharedInbox)
}

func TestRenderNoteIncludesPublicAndAccountRecipients(t *testing.T) {
	db := newFakeDB()
	ctx := context.Background()
	author, err := graph.CreateAccount(ctx, db, graph.Account{Username: "alice"})
	require.NoError(t, err)
	recipient, err := graph.CreateAccount(ctx, db, graph.Account{Username: "bob"})
	require.NoError(t, err)

	r, err := urlresolver.New("https://vertix.example/")
	require.NoError(t, err)

	note := &graph.Note{
		Key:     "n1",
		From:    author.Key,
		Content: "hi",
		To:      []graph.Recipient{{Public: true}, {AccountKey: recipient.Key}},
	}
	db.seed("Note", note.Key, note)

	notes := NoteCache{Cache: reqcache.NewRecordCache[urlresolver.Note](), Finder: graph.NoteFinder{DB: db}}
	rendered, err := RenderNote(ctx, r, newAccountCache(db), notes, note)
	require.NoError(t, err)

	assert.Equal(t, "https://vertix.example/users/alice/notes/n1", rendered.ID)
	assert.Equal(t, "https://vertix.example/users/alice", rendered.AttributedTo)
	assert.Contains(t, rendered.To, PublicURI)
	assert.Contains(t, rendered.To, "https://vertix.example/users/bob")
}

func TestMakeActorAndObjectActivityFailsWithoutAttributedTo(t *testing.T) {
	_, err := MakeActorAndObjectActivity("Create", Note{})
	assert.Error(t, err)
}

func TestMakeActorAndObjectActivitySucceeds(t *testing.T) {
	note := Note{AttributedTo: "https://vertix.example/users/alice"}
	activity, err := MakeActorAndObjectActivity("Create", note)
	require.NoError(t, err)
	assert.Equal(t, "https://vertix.example/users/alice", activity.Actor)
	assert.Equal(t, note, activity.Object)
}

func TestRenderFollowActivityIDRule(t *testing.T) {
	withURI := "https://remote.example/activities/1"
	f1 := &graph.Follow{Key: "k1", URI: &withURI}
	a1 := RenderFollowActivity(f1, "https://vertix.example/users/alice", "https://vertix.example/users/bob")
	assert.Equal(t, withURI, a1.ID)

	f2 := &graph.Follow{Key: "k2"}
	a2 := RenderFollowActivity(f2, "https://vertix.example/users/alice", "https://vertix.example/users/bob")
	assert.Equal(t, "https://vertix.example/users/alice#self/k2", a2.ID)
}

func TestWrapAcceptOrReject(t *testing.T) {
	follow := RenderFollowActivity(&graph.Follow{Key: "k1"}, "https://a.example/users/alice", "https://b.example/users/bob")
	accept := WrapAcceptOrReject(follow, true, "https://b.example/users/bob")
	assert.Equal(t, "Accept", accept.Type)
	reject := WrapAcceptOrReject(follow, false, "https://b.example/users/bob")
	assert.Equal(t, "Reject", reject.Type)
}

func TestNextPageURLOmittedWhenShortPage(t *testing.T) {
	pl := graph.PageLimit{Page: 1, Limit: 50}
	assert.Equal(t, "", NextPageURL(pl, 10, "https://vertix.example/users/alice/outbox/page/2"))
	assert.Equal(t, "https://vertix.example/users/alice/outbox/page/2", NextPageURL(pl, 50, "https://vertix.example/users/alice/outbox/page/2"))
}
