package graph

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"
	"sync"
)

// fakeDB is an in-memory DB used by this package's own tests, so entity
// logic is exercised without a real ArangoDB instance. It understands only
// the fixed AQL query strings this package issues, not general AQL: the
// aql* constants (matched by identity) and the two inline pending-follow
// queries of edges.go (recognised by their "from"/"to" bind variable).
type fakeDB struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]any
	seq         int
}

func newFakeDB() *fakeDB {
	return &fakeDB{collections: map[string]map[string]map[string]any{}}
}

func (f *fakeDB) col(name string) map[string]map[string]any {
	c, ok := f.collections[name]
	if !ok {
		c = map[string]map[string]any{}
		f.collections[name] = c
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
	for _, part := range splitDot(path) {
		cm, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = cm[part]
	}
	return cur
}

func splitDot(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func matchesFilter(m map[string]any, filter map[string]any) bool {
	for k, v := range filter {
		if lookupPath(m, k) != v {
			return false
		}
	}
	return true
}

func (f *fakeDB) Find(ctx context.Context, collection string, filter map[string]any, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.col(collection) {
		if matchesFilter(m, filter) {
			return fromMap(m, out)
		}
	}
	return ErrNoRows
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

func (f *fakeDB) Link(ctx context.Context, edgeCollection string, fromID, toID string, doc any) (Edge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	key := strconv.Itoa(f.seq)
	m := toMap(doc)
	m["_key"] = key
	m["_from"] = fromID
	m["_to"] = toID
	f.col(edgeCollection)[key] = m
	return Edge{Key: key, From: fromID, To: toID}, nil
}

func (f *fakeDB) Query(ctx context.Context, aql string, bindVars map[string]any, out any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	start, _ := bindVars["start"].(string)

	switch aql {
	case aqlPublishedNotes:
		return f.queryEdgeTargets(collectionPublish, start, true, "created_at", bindVars, out)
	case aqlFollowing:
		return f.queryEdgeTargets(collectionFollow, start, true, "", bindVars, out)
	case aqlFollowers:
		return f.queryEdgeSources(collectionFollow, start, true, bindVars, out)
	case aqlCountPublishedNotes:
		return f.queryCount(collectionPublish, start, true, out)
	case aqlCountFollowing:
		return f.queryCount(collectionFollow, start, true, out)
	case aqlCountFollowers:
		n := 0
		for _, e := range f.col(collectionFollow) {
			if e["_to"] == start && e["accepted"] == true {
				n++
			}
		}
		*(out.(*[]int)) = []int{n}
		return nil
	case aqlTimeline:
		return f.queryTimeline(start, bindVars, out)
	}
	for field, bind := range map[string]string{"_from": "from", "_to": "to"} {
		id, ok := bindVars[bind].(string)
		if !ok {
			continue
		}
		var edges []Follow
		for _, e := range f.col(collectionFollow) {
			if e[field] == id && e["accepted"] == nil {
				var fl Follow
				_ = fromMap(e, &fl)
				edges = append(edges, fl)
			}
		}
		*(out.(*[]Follow)) = edges
		return nil
	}
	return nil
}

func (f *fakeDB) queryCount(edgeCollection, start string, requireAccepted bool, out any) error {
	n := 0
	for _, e := range f.col(edgeCollection) {
		if e["_from"] != start {
			continue
		}
		if requireAccepted && edgeCollection == collectionFollow && e["accepted"] != true {
			continue
		}
		n++
	}
	p := out.(*[]int)
	*p = []int{n}
	return nil
}

func (f *fakeDB) queryEdgeTargets(edgeCollection, start string, requireAccepted bool, sortField string, bindVars map[string]any, out any) error {
	var targetIDs []string
	for _, e := range f.col(edgeCollection) {
		if e["_from"] != start {
			continue
		}
		if requireAccepted && edgeCollection == collectionFollow && e["accepted"] != true {
			continue
		}
		targetIDs = append(targetIDs, e["_to"].(string))
	}

	switch v := out.(type) {
	case *[]Note:
		var notes []Note
		for _, id := range targetIDs {
			key := id[len(collectionNotes)+1:]
			var n Note
			_ = fromMap(f.col(collectionNotes)[key], &n)
			notes = append(notes, n)
		}
		sort.Slice(notes, func(i, j int) bool { return notes[i].CreatedAt.After(*notes[j].CreatedAt) })
		*v = paginate(notes, bindVars)
	case *[]Account:
		var accts []Account
		for _, id := range targetIDs {
			key := id[len(collectionAccounts)+1:]
			var a Account
			_ = fromMap(f.col(collectionAccounts)[key], &a)
			accts = append(accts, a)
		}
		*v = paginateAccounts(accts, bindVars)
	}
	return nil
}

func (f *fakeDB) queryEdgeSources(edgeCollection, start string, requireAccepted bool, bindVars map[string]any, out any) error {
	var sourceIDs []string
	for _, e := range f.col(edgeCollection) {
		if e["_to"] != start {
			continue
		}
		if requireAccepted && e["accepted"] != true {
			continue
		}
		sourceIDs = append(sourceIDs, e["_from"].(string))
	}
	var accts []Account
	for _, id := range sourceIDs {
		key := id[len(collectionAccounts)+1:]
		var a Account
		_ = fromMap(f.col(collectionAccounts)[key], &a)
		accts = append(accts, a)
	}
	*(out.(*[]Account)) = paginateAccounts(accts, bindVars)
	return nil
}

func (f *fakeDB) queryTimeline(start string, bindVars map[string]any, out any) error {
	var followedIDs []string
	for _, e := range f.col(collectionFollow) {
		if e["_from"] == start && e["accepted"] == true {
			followedIDs = append(followedIDs, e["_to"].(string))
		}
	}
	type pair struct {
		note Note
	}
	var pairs []pair
	for _, fid := range followedIDs {
		for _, e := range f.col(collectionPublish) {
			if e["_from"] != fid {
				continue
			}
			noteKey := e["_to"].(string)[len(collectionNotes)+1:]
			var n Note
			_ = fromMap(f.col(collectionNotes)[noteKey], &n)
			pairs = append(pairs, pair{note: n})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].note.CreatedAt.After(*pairs[j].note.CreatedAt) })
	var notes []Note
	for _, p := range pairs {
		notes = append(notes, p.note)
	}
	*(out.(*[]Note)) = paginate(notes, bindVars)
	return nil
}

func paginate(notes []Note, bindVars map[string]any) []Note {
	offset := int(toUint32(bindVars["offset"]))
	limit := int(toUint32(bindVars["limit"]))
	if offset >= len(notes) {
		return nil
	}
	end := offset + limit
	if end > len(notes) {
		end = len(notes)
	}
	return notes[offset:end]
}

func paginateAccounts(accts []Account, bindVars map[string]any) []Account {
	offset := int(toUint32(bindVars["offset"]))
	limit := int(toUint32(bindVars["limit"]))
	if offset >= len(accts) {
		return nil
	}
	end := offset + limit
	if end > len(accts) {
		end = len(accts)
	}
	return accts[offset:end]
}

func toUint32(v any) uint32 {
	switch n := v.(type) {
	case uint32:
		return n
	case int:
		return uint32(n)
	}
	return 0
}

func (f *fakeDB) WithTransaction(ctx context.Context, writeCollections []string, fn func(ctx context.Context, tx DB) error) error {
	return fn(ctx, f)
}
