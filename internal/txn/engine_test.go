package txn

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertix-social/vertix/internal/graph"
)

// fakeDB is a minimal in-memory graph.DB sufficient for the engine's own
// tests: exact-field Find, sequential-key Create/Link, no-op Query (the
// engine never calls Query directly), and a WithTransaction that snapshots
// the collections before fn runs and restores them when fn returns an
// error, so the commit-barrier test can observe a rollback.
type fakeDB struct {
	mu   sync.Mutex
	cols map[string]map[string]map[string]any
	seq  int
}

func newFakeDB() *fakeDB {
	return &fakeDB{cols: map[string]map[string]map[string]any{}}
}

func (f *fakeDB) col(name string) map[string]map[string]any {
	c, ok := f.cols[name]
	if !ok {
		c = map[string]map[string]any{}
		f.cols[name] = c
	}
	return c
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

// lookupPath resolves a dotted field path (e.g. "remote.uri") the way the
// entity layer's AQL filters address nested fields.
func lookupPath(m map[string]any, path string) any {
	cur := any(m)
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '.' {
			cm, ok := cur.(map[string]any)
			if !ok {
				return nil
			}
			cur = cm[path[start:i]]
			start = i + 1
		}
	}
	return cur
}

func (f *fakeDB) Find(ctx context.Context, collection string, filter map[string]any, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.col(collection) {
		match := true
		for k, v := range filter {
			if lookupPath(m, k) != v {
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
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	key := strconv.Itoa(f.seq)
	m := toMap(doc)
	m["_key"] = key
	f.col(collection)[key] = m
	return fromMap(m, out)
}

func (f *fakeDB) Save(ctx context.Context, collection string, key string, doc any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := toMap(doc)
	m["_key"] = key
	f.col(collection)[key] = m
	return nil
}

func (f *fakeDB) Link(ctx context.Context, edgeCollection string, fromID, toID string, doc any) (graph.Edge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	key := strconv.Itoa(f.seq)
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
	f.mu.Lock()
	snapshot := make(map[string]map[string]map[string]any, len(f.cols))
	for name, docs := range f.cols {
		c := make(map[string]map[string]any, len(docs))
		for k, m := range docs {
			c[k] = m
		}
		snapshot[name] = c
	}
	f.mu.Unlock()
	if err := fn(ctx, f); err != nil {
		f.mu.Lock()
		f.cols = snapshot
		f.mu.Unlock()
		return err
	}
	return nil
}

type fakePublisher struct {
	mu           sync.Mutex
	interactions []Interaction
}

func (p *fakePublisher) PublishInteraction(ctx context.Context, i Interaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interactions = append(p.interactions, i)
	return nil
}

func newTestEngine(db graph.DB) (*Engine, *fakePublisher) {
	pub := &fakePublisher{}
	return &Engine{
		DB:        db,
		Publisher: pub,
		Log:       slog.Default(),
	}, pub
}

func seedAccount(t *testing.T, ctx context.Context, db graph.DB, username string) graph.Account {
	t.Helper()
	a, err := graph.CreateAccount(ctx, db, graph.Account{Username: username})
	require.NoError(t, err)
	return *a
}

func TestEnginePublishNoteEmitsInteractionOnCommit(t *testing.T) {
	db := newFakeDB()
	ctx := context.Background()
	acct := seedAccount(t, ctx, db, "u")

	engine, pub := newTestEngine(db)

	tx := Transaction{Actions: []Action{
		PublishNoteAction{Note: graph.Note{From: acct.Key, Content: "hi"}},
	}}
	resp, interactions, err := engine.Run(ctx, tx)
	require.NoError(t, err)
	require.Len(t, resp.Responses, 1)

	note := resp.Responses[0].(PublishNoteResponse).Note
	assert.Equal(t, acct.Key, note.From)
	assert.Equal(t, "hi", note.Content)

	require.Len(t, interactions, 1)
	assert.Equal(t, "Note", interactions[0].Kind())

	for _, i := range interactions {
		require.NoError(t, pub.PublishInteraction(ctx, i))
	}
	assert.Len(t, pub.interactions, 1)
}

// TestEngineCommitBarrier: a transaction with a successful InitiateFollow
// followed by a failing PublishNote must persist neither and emit zero
// interactions.
func TestEngineCommitBarrier(t *testing.T) {
	db := newFakeDB()
	ctx := context.Background()
	a := seedAccount(t, ctx, db, "a")
	b := seedAccount(t, ctx, db, "b")

	engine, _ := newTestEngine(db)

	tx := Transaction{Actions: []Action{
		InitiateFollowAction{From: a.Key, To: b.Key},
		PublishNoteAction{Note: graph.Note{Content: "hi"}}, // no From set: fails
	}}

	_, interactions, err := engine.Run(ctx, tx)
	assert.Error(t, err)
	assert.Empty(t, interactions)

	_, err = graph.FindFollowBetween(ctx, db, &a, &b)
	assert.Error(t, err, "follow must not be persisted when a later action in the same transaction fails")
}

func TestEngineInitiateFollowIdempotence(t *testing.T) {
	db := newFakeDB()
	ctx := context.Background()
	a := seedAccount(t, ctx, db, "a")
	b := seedAccount(t, ctx, db, "b")
	engine, _ := newTestEngine(db)

	first, _, err := engine.Run(ctx, Transaction{Actions: []Action{InitiateFollowAction{From: a.Key, To: b.Key}}})
	require.NoError(t, err)
	assert.True(t, first.Responses[0].(InitiateFollowResponse).Created)

	second, interactions, err := engine.Run(ctx, Transaction{Actions: []Action{InitiateFollowAction{From: a.Key, To: b.Key}}})
	require.NoError(t, err)
	assert.False(t, second.Responses[0].(InitiateFollowResponse).Created)
	assert.Empty(t, interactions)
}

// fakeFetcher returns a canned account document, standing in for the HTTP
// fetch the real binary performs.
type fakeFetcher struct {
	account graph.Account
	err     error
}

func (f fakeFetcher) FetchAccount(ctx context.Context, url string) (graph.Account, error) {
	return f.account, f.err
}

// TestEngineFetchAccountCreatesThenUpdates: the first fetch creates the
// remote account with a fresh last_fetched_at, a second fetch of the same
// uri updates the stored row instead of creating another.
func TestEngineFetchAccountCreatesThenUpdates(t *testing.T) {
	db := newFakeDB()
	ctx := context.Background()
	uri := "https://example.org/users/bob"

	engine, _ := newTestEngine(db)
	engine.Fetcher = fakeFetcher{account: graph.Account{
		Username: "bob",
		Domain:   "example.org",
		Remote:   &graph.RemoteInfo{URI: uri, Inbox: uri + "/inbox"},
	}}

	resp, interactions, err := engine.Run(ctx, Transaction{Actions: []Action{FetchAccountAction{URL: uri}}})
	require.NoError(t, err)
	assert.Empty(t, interactions, "FetchAccount buffers no interaction")

	created := resp.Responses[0].(FetchAccountResponse).Account
	require.NotNil(t, created.Remote)
	assert.Equal(t, uri, created.Remote.URI)
	require.NotNil(t, created.Remote.LastFetchedAt)
	assert.WithinDuration(t, time.Now().UTC(), *created.Remote.LastFetchedAt, time.Minute)
	assert.Nil(t, created.CreatedAt, "remote accounts preserve upstream timestamps")

	resp, _, err = engine.Run(ctx, Transaction{Actions: []Action{FetchAccountAction{URL: uri}}})
	require.NoError(t, err)
	updated := resp.Responses[0].(FetchAccountResponse).Account
	assert.Equal(t, created.Key, updated.Key, "second fetch updates the stored account")
	assert.NotNil(t, updated.UpdatedAt)
}

func TestEngineFetchAccountRejectsURIMismatch(t *testing.T) {
	db := newFakeDB()
	engine, _ := newTestEngine(db)
	engine.Fetcher = fakeFetcher{account: graph.Account{
		Username: "bob",
		Domain:   "example.org",
		Remote:   &graph.RemoteInfo{URI: "https://example.org/users/someone-else"},
	}}

	_, _, err := engine.Run(context.Background(), Transaction{Actions: []Action{
		FetchAccountAction{URL: "https://example.org/users/bob"},
	}})
	assert.Error(t, err)
}

// TestEngineResponsesAlignWithActions: n actions in, n responses out,
// same order, matching variant tags.
func TestEngineResponsesAlignWithActions(t *testing.T) {
	db := newFakeDB()
	ctx := context.Background()
	a := seedAccount(t, ctx, db, "a")
	b := seedAccount(t, ctx, db, "b")
	engine, _ := newTestEngine(db)

	resp, _, err := engine.Run(ctx, Transaction{Actions: []Action{
		InitiateFollowAction{From: a.Key, To: b.Key},
		PublishNoteAction{Note: graph.Note{From: b.Key, Content: "hello"}},
	}})
	require.NoError(t, err)
	require.Len(t, resp.Responses, 2)
	assert.Equal(t, "InitiateFollow", resp.Responses[0].Kind())
	assert.Equal(t, "PublishNote", resp.Responses[1].Kind())
}

func TestEngineSetFollowAcceptedIdempotence(t *testing.T) {
	db := newFakeDB()
	ctx := context.Background()
	a := seedAccount(t, ctx, db, "a")
	b := seedAccount(t, ctx, db, "b")
	engine, _ := newTestEngine(db)

	created, _, err := engine.Run(ctx, Transaction{Actions: []Action{InitiateFollowAction{From: a.Key, To: b.Key}}})
	require.NoError(t, err)
	key := created.Responses[0].(InitiateFollowResponse).Follow.Key

	first, interactions, err := engine.Run(ctx, Transaction{Actions: []Action{SetFollowAcceptedAction{Key: key, Accepted: true}}})
	require.NoError(t, err)
	assert.True(t, first.Responses[0].(SetFollowAcceptedResponse).Modified)
	assert.Len(t, interactions, 1)

	second, interactions, err := engine.Run(ctx, Transaction{Actions: []Action{SetFollowAcceptedAction{Key: key, Accepted: true}}})
	require.NoError(t, err)
	assert.False(t, second.Responses[0].(SetFollowAcceptedResponse).Modified)
	assert.Empty(t, interactions)
}
