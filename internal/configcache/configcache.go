// Package configcache stores framework configuration documents by content.
//
// Identical content always maps to the same document: the content hash is
// the natural key, so concurrent or repeated AddConfig calls converge on one
// (id, revision) pair.
package configcache

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/mattjoyce/gridflow/internal/errdefs"
	"github.com/mattjoyce/gridflow/internal/storage"
	"github.com/mattjoyce/gridflow/internal/storage/dialect"
)

// DocRef identifies a stored document revision.
type DocRef struct {
	ID       string `json:"id" yaml:"id"`
	Revision string `json:"revision" yaml:"revision"`
}

// Document is a stored configuration.
type Document struct {
	DocRef
	Content string
}

// Store is the SQL-backed config cache.
type Store struct {
	db  *storage.DB
	now func() time.Time
}

// New returns a Store over db.
func New(db *storage.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// ContentHash returns the hex blake3 digest of content.
func ContentHash(content string) string {
	sum := blake3.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// AddConfig stores content unless an identical document exists and returns
// the reference of the stored document.
func (s *Store) AddConfig(ctx context.Context, content string) (DocRef, error) {
	if content == "" {
		return DocRef{}, errdefs.InvalidArgument("ConfigCache.AddConfig", "content is empty")
	}
	hash := ContentHash(content)
	_, err := s.db.InsertIfAbsent(ctx, dialect.ConfigNew, map[string]any{
		"doc_id":       uuid.NewString(),
		"rev":          "1-" + hash[:32],
		"content_hash": hash,
		"content":      content,
		"created_at":   s.now().UnixNano(),
	})
	if err != nil {
		return DocRef{}, err
	}

	var ref DocRef
	found, err := s.db.QueryRow(ctx, dialect.ConfigByHash, map[string]any{"content_hash": hash}, &ref.ID, &ref.Revision)
	if err != nil {
		return DocRef{}, err
	}
	if !found {
		return DocRef{}, errdefs.NotFound("ConfigCache.AddConfig", "document %s vanished after insert", hash[:12])
	}
	return ref, nil
}

// Fetch loads a document by id.
func (s *Store) Fetch(ctx context.Context, id string) (Document, error) {
	if id == "" {
		return Document{}, errdefs.InvalidArgument("ConfigCache.Fetch", "document id is empty")
	}
	doc := Document{DocRef: DocRef{ID: id}}
	found, err := s.db.QueryRow(ctx, dialect.ConfigByID, map[string]any{"doc_id": id}, &doc.Revision, &doc.Content)
	if err != nil {
		return Document{}, err
	}
	if !found {
		return Document{}, errdefs.NotFound("ConfigCache.Fetch", "document %q", id)
	}
	return doc, nil
}
