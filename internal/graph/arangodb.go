package graph

import (
	"context"
	"encoding/json"
	"reflect"
	"strconv"

	"github.com/arangodb/go-driver/v2/arangodb"
	"github.com/arangodb/go-driver/v2/arangodb/shared"

	"github.com/vertix-social/vertix/internal/verr"
)

// ArangoDB implements DB against a real ArangoDB database via the v2 driver.
type ArangoDB struct {
	db arangodb.Database
}

// NewArangoDB opens (without creating) the named database on client.
func NewArangoDB(ctx context.Context, client arangodb.Client, dbName string) (*ArangoDB, error) {
	db, err := client.GetDatabase(ctx, dbName, nil)
	if err != nil {
		return nil, verr.Wrap(verr.Model, "open database", err)
	}
	return &ArangoDB{db: db}, nil
}

func (a *ArangoDB) collection(ctx context.Context, name string) (arangodb.Collection, error) {
	col, err := a.db.GetCollection(ctx, name, nil)
	if err != nil {
		return nil, verr.Wrap(verr.Model, "get collection "+name, err)
	}
	return col, nil
}

// Find runs a one-result AQL filter query since the driver's collection API
// has no native by-field lookup beyond document key.
func (a *ArangoDB) Find(ctx context.Context, collection string, filter map[string]any, out any) error {
	query, bind := buildFindQuery(collection, filter)
	cursor, err := a.db.Query(ctx, query, &arangodb.QueryOptions{BindVars: bind})
	if err != nil {
		return verr.Wrap(verr.Model, "find query", err)
	}
	defer cursor.Close()

	if !cursor.HasMore() {
		return ErrNoRows
	}
	if _, err := cursor.ReadDocument(ctx, out); err != nil {
		return verr.Wrap(verr.Model, "decode find result", err)
	}
	return nil
}

func buildFindQuery(collection string, filter map[string]any) (string, map[string]any) {
	bind := map[string]any{}
	query := "FOR d IN " + collection + " FILTER "
	i := 0
	for field, value := range filter {
		if i > 0 {
			query += " AND "
		}
		bindName := "f" + strconv.Itoa(i)
		query += "d." + field + " == @" + bindName
		bind[bindName] = value
		i++
	}
	query += " LIMIT 1 RETURN d"
	return query, bind
}

// decodeCursor drains cursor into the slice out points to, one ReadDocument
// call per row, via reflection since the row type varies by call site.
func decodeCursor(ctx context.Context, cursor arangodb.Cursor, out any) error {
	slicePtr := reflect.ValueOf(out)
	if slicePtr.Kind() != reflect.Ptr || slicePtr.Elem().Kind() != reflect.Slice {
		return verr.NewInternal("graph: Query out must be a pointer to a slice")
	}
	sliceVal := slicePtr.Elem()
	elemType := sliceVal.Type().Elem()

	for cursor.HasMore() {
		elemPtr := reflect.New(elemType)
		if _, err := cursor.ReadDocument(ctx, elemPtr.Interface()); err != nil {
			return verr.Wrap(verr.Model, "decode query row", err)
		}
		sliceVal = reflect.Append(sliceVal, elemPtr.Elem())
	}
	slicePtr.Elem().Set(sliceVal)
	return nil
}

// Create inserts doc into collection and decodes the stored document
// (with its generated _key) into out.
func (a *ArangoDB) Create(ctx context.Context, collection string, doc any, out any) error {
	col, err := a.collection(ctx, collection)
	if err != nil {
		return err
	}
	meta, err := col.CreateDocument(ctx, doc)
	if err != nil {
		return verr.Wrap(verr.Model, "create document", err)
	}
	return mergeCreatedKey(doc, meta.Key, out)
}

// mergeCreatedKey round-trips doc through JSON, stamping _key, since the
// driver's CreateDocument response carries only document metadata, not the
// body the caller already has in memory.
func mergeCreatedKey(doc any, key string, out any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return verr.Wrap(verr.Serialization, "marshal created document", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return verr.Wrap(verr.Serialization, "unmarshal created document", err)
	}
	m["_key"] = key
	raw, err = json.Marshal(m)
	if err != nil {
		return verr.Wrap(verr.Serialization, "remarshal created document", err)
	}
	return json.Unmarshal(raw, out)
}

// Save overwrites the document at key in collection.
func (a *ArangoDB) Save(ctx context.Context, collection string, key string, doc any) error {
	col, err := a.collection(ctx, collection)
	if err != nil {
		return err
	}
	if _, err := col.ReplaceDocument(ctx, key, doc); err != nil {
		return verr.Wrap(verr.Model, "replace document", err)
	}
	return nil
}

// Link creates an edge document in edgeCollection from fromID to toID.
func (a *ArangoDB) Link(ctx context.Context, edgeCollection string, fromID, toID string, doc any) (Edge, error) {
	col, err := a.collection(ctx, edgeCollection)
	if err != nil {
		return Edge{}, err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return Edge{}, verr.Wrap(verr.Serialization, "marshal edge document", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return Edge{}, verr.Wrap(verr.Serialization, "unmarshal edge document", err)
	}
	m["_from"] = fromID
	m["_to"] = toID

	meta, err := col.CreateDocument(ctx, m)
	if err != nil {
		return Edge{}, verr.Wrap(verr.Model, "create edge", err)
	}
	return Edge{Key: meta.Key, From: fromID, To: toID}, nil
}

// Query runs an AQL query, appending each result row to the slice out points to.
func (a *ArangoDB) Query(ctx context.Context, aql string, bindVars map[string]any, out any) error {
	cursor, err := a.db.Query(ctx, aql, &arangodb.QueryOptions{BindVars: bindVars})
	if err != nil {
		return verr.Wrap(verr.Model, "aql query", err)
	}
	defer cursor.Close()
	return decodeCursor(ctx, cursor, out)
}

// WithTransaction runs fn inside an ArangoDB streaming transaction spanning
// writeCollections, committing on a nil return and aborting otherwise.
func (a *ArangoDB) WithTransaction(ctx context.Context, writeCollections []string, fn func(ctx context.Context, tx DB) error) error {
	tx, err := a.db.BeginTransaction(ctx, arangodb.TransactionCollections{
		Write: writeCollections,
	}, nil)
	if err != nil {
		return verr.Wrap(verr.Model, "begin transaction", err)
	}

	txDB := &ArangoDB{db: tx.(arangodb.Database)}

	if err := fn(ctx, txDB); err != nil {
		if abortErr := tx.Abort(ctx, nil); abortErr != nil {
			return verr.Wrap(verr.Model, "abort transaction after error", abortErr)
		}
		return err
	}

	if err := tx.Commit(ctx, nil); err != nil {
		return verr.Wrap(verr.Model, "commit transaction", err)
	}
	return nil
}

// IsArangoNotFound reports whether err is the driver's own not-found error,
// used by callers that receive errors straight from the driver rather than
// through Find's ErrNoRows path (e.g. ReadDocument by key).
func IsArangoNotFound(err error) bool {
	return shared.IsNotFound(err)
}
