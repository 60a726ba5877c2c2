package httpapi

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/vertix-social/vertix/internal/graph"
)

// fakeDB is a minimal in-memory graph.DB for exercising the handlers that
// don't need a live broker RPC (local lookups, pure status logic).
// Mirrors internal/inbound's fakeDB.
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
	f.seq++
	key := strconv.Itoa(f.seq)
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
	return fn(ctx, f)
}
