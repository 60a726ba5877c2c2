package graph

import (
	"context"
	"time"

	"github.com/vertix-social/vertix/internal/comm"
	"github.com/vertix-social/vertix/internal/urlresolver"
	"github.com/vertix-social/vertix/internal/verr"
)

const collectionNotes = "Note"

// RemoteNote is set iff the note originated on another server.
type RemoteNote struct {
	URI string `json:"uri"`
}

// Note is a single published post.
type Note struct {
	Key       string       `json:"_key,omitempty"`
	From      string       `json:"from,omitempty"`
	Remote    *RemoteNote  `json:"remote,omitempty"`
	To        []Recipient  `json:"to,omitempty"`
	Cc        []Recipient  `json:"cc,omitempty"`
	Bto       []Recipient  `json:"bto,omitempty"`
	Bcc       []Recipient  `json:"bcc,omitempty"`
	Content   string       `json:"content"`
	CreatedAt *time.Time   `json:"created_at,omitempty"`
	UpdatedAt *time.Time   `json:"updated_at,omitempty"`
}

// Recipient is the sum Public | Account(key) used for note addressing,
// represented as a tagged struct for JSON round-tripping.
type Recipient struct {
	Public     bool   `json:"public,omitempty"`
	AccountKey string `json:"account_key,omitempty"`
}

// ToCommRecipient converts a graph Recipient into the comm package's
// Recipient, the shape header derivation operates on.
func (r Recipient) ToCommRecipient() comm.Recipient {
	if r.Public {
		return comm.Public
	}
	return comm.Account(r.AccountKey)
}

// IsLocal reports whether the note originated on this server.
func (n *Note) IsLocal() bool { return n.Remote == nil }

// NoteKey satisfies urlresolver.Note.
func (n *Note) NoteKey() string { return n.Key }

// NoteAccountKey satisfies urlresolver.Note.
func (n *Note) NoteAccountKey() string { return n.From }

// NoteRemoteURI satisfies urlresolver.Note.
func (n *Note) NoteRemoteURI() (string, bool) {
	if n.Remote == nil {
		return "", false
	}
	return n.Remote.URI, true
}

func (n *Note) applyCreateHooks() {
	if n.IsLocal() {
		now := time.Now().UTC()
		n.CreatedAt = &now
	}
}

func (n *Note) applySaveHooks() {
	if n.IsLocal() {
		now := time.Now().UTC()
		n.UpdatedAt = &now
	}
}

// PublishNote creates note (from = publisher.Key) and links
// publisher --Publish--> note, as one logical step. The Publish edge
// carries its own created_at; the timeline traversal sorts on it.
func PublishNote(ctx context.Context, db DB, publisher *Account, note Note) (*Note, error) {
	note.From = publisher.Key
	note.applyCreateHooks()

	var stored Note
	if err := db.Create(ctx, collectionNotes, note, &stored); err != nil {
		return nil, verr.Wrap(verr.Model, "create note", err)
	}

	now := time.Now().UTC()
	if _, err := db.Link(ctx, collectionPublish, publisher.id(), collectionNotes+"/"+stored.Key, Publish{CreatedAt: &now}); err != nil {
		return nil, verr.Wrap(verr.Model, "link publish", err)
	}

	return &stored, nil
}

// NoteFinder adapts FindNoteByKey to reqcache.Finder[urlresolver.Note].
type NoteFinder struct {
	DB DB
}

// Find implements reqcache.Finder[urlresolver.Note].
func (f NoteFinder) Find(ctx context.Context, key string) (urlresolver.Note, error) {
	var n Note
	if err := f.DB.Find(ctx, collectionNotes, map[string]any{"_key": key}, &n); err != nil {
		return nil, notFound("Note", err, map[string]string{"key": key})
	}
	return &n, nil
}
