// Package store is the document-store façade the execution pipeline and all
// contracts write through. Every mutation routed through it folds into a
// running database hash, the accumulator the replay scheme relies on to
// detect divergence between nodes: identical mutation sequences must produce
// bit-identical hash sequences.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Doc is a persisted record belonging to one collection. Implementations are
// plain gorm models; TableName doubles as the collection name folded into
// the database hash.
type Doc interface {
	TableName() string
}

// Store wraps the underlying gorm connection with deterministic mutation
// tracking. All writes inside one chain transaction are buffered in a single
// database transaction and made durable by Flush.
type Store struct {
	db   *gorm.DB
	tx   *gorm.DB
	hash string
}

// New creates a façade over an initialized gorm connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// session returns the open write batch if one exists, the raw connection
// otherwise (reads outside block production, tests).
func (s *Store) session() *gorm.DB {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Session exposes the current read/query handle. Domain packages build their
// typed finders on it; every query must carry an explicit ORDER BY ending in
// the primary key so result order never depends on storage internals.
func (s *Store) Session() *gorm.DB {
	return s.session()
}

// InitDatabaseHash resets the running accumulator to seed at the start of a
// transaction's processing and opens its write batch.
func (s *Store) InitDatabaseHash(seed string) {
	s.hash = seed
	if s.tx == nil {
		s.tx = s.db.Begin()
	}
}

// GetDatabaseHash returns the accumulator's current value.
func (s *Store) GetDatabaseHash() string {
	return s.hash
}

// Flush commits the in-flight write batch. Called once per transaction, after
// contract execution, before the transaction's database hash is read off.
func (s *Store) Flush() error {
	if s.tx == nil {
		return nil
	}
	err := s.tx.Commit().Error
	s.tx = nil
	if err != nil {
		return fmt.Errorf("failed to flush write batch: %w", err)
	}
	return nil
}

// Insert persists doc, letting the database assign its monotonically
// increasing _id, then folds the mutation into the hash.
func (s *Store) Insert(doc Doc) error {
	if err := s.session().Create(doc).Error; err != nil {
		return fmt.Errorf("insert into %s: %w", doc.TableName(), err)
	}
	s.fold("insert", doc)
	return nil
}

// Update persists the full current state of doc and folds the mutation.
func (s *Store) Update(doc Doc) error {
	if err := s.session().Save(doc).Error; err != nil {
		return fmt.Errorf("update in %s: %w", doc.TableName(), err)
	}
	s.fold("update", doc)
	return nil
}

// Remove deletes doc by primary key and folds the mutation.
func (s *Store) Remove(doc Doc) error {
	if err := s.session().Delete(doc).Error; err != nil {
		return fmt.Errorf("remove from %s: %w", doc.TableName(), err)
	}
	s.fold("remove", doc)
	return nil
}

// TableExists reports whether a collection's backing table has been created.
func (s *Store) TableExists(doc Doc) bool {
	return s.session().Migrator().HasTable(doc)
}

// CreateTable creates the backing table (and its declared indexes) for a
// collection model if it does not exist yet. DDL goes through the open write
// batch when one exists; sqlite DDL is transactional, so a failed chain
// transaction cannot leave half-created collections behind.
func (s *Store) CreateTable(doc Doc) error {
	if err := s.session().AutoMigrate(doc); err != nil {
		return fmt.Errorf("create table %s: %w", doc.TableName(), err)
	}
	return nil
}

// fold advances the accumulator with one mutation. The serialized form is
// the struct's JSON encoding: field order is fixed by the type definition,
// so the fold is canonical across nodes.
func (s *Store) fold(op string, doc Doc) {
	b, err := json.Marshal(doc)
	if err != nil {
		// Collection models are plain structs; this cannot happen for any
		// registered collection and would be a programming error.
		log.Error().Err(err).Str("collection", doc.TableName()).Msg("unserializable document in hash fold")
		b = []byte("null")
	}
	sum := sha256.Sum256([]byte(s.hash + doc.TableName() + op + string(b)))
	s.hash = hex.EncodeToString(sum[:])
}
