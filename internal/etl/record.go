package etl

import (
	"go.mongodb.org/mongo-driver/v2/bson"

	"migrator/internal/domain"
)

// ── Record ─────────────────────────────────────────────────
// Records flow from the Source through the normalizer into WriteOps.
// Legacy documents are kept as ordered bson.D so that quarantined
// copies are byte-for-byte what was read.

// LegacyRecord is a schema-less user document as read from the source.
// It is never mutated.
type LegacyRecord = bson.D

// ChangeEvent is one entry of the source change feed.
// FullDocument is nil when the server could not look the document up,
// e.g. because it was deleted between the change and the lookup.
type ChangeEvent struct {
	OperationType string
	DocumentKey   bson.D
	FullDocument  LegacyRecord
}

// WriteKind selects the write semantics of a single WriteOp.
type WriteKind int

const (
	WriteInsert            WriteKind = iota // insert if absent
	WriteUpsertSetOnInsert                  // upsert by _id, only set fields when inserting
	WriteUpsertSet                          // upsert by _id, always overwrite fields
)

func (k WriteKind) String() string {
	switch k {
	case WriteInsert:
		return "insert"
	case WriteUpsertSetOnInsert:
		return "upsert-set-on-insert"
	case WriteUpsertSet:
		return "upsert-set"
	default:
		return "unknown"
	}
}

// WriteKindFor maps the backfill write mode onto a WriteKind.
func WriteKindFor(mode domain.WriteMode) WriteKind {
	if mode == domain.WriteModeInsertOnly {
		return WriteInsert
	}
	return WriteUpsertSetOnInsert
}

// WriteOp is one element of a bulk write.
type WriteOp struct {
	Kind WriteKind
	User *domain.User
}

// BulkResult aggregates the outcome of a bulk write.
type BulkResult struct {
	Inserted   int64 // plain inserts
	Upserted   int64 // upserts that created a document
	Matched    int64 // upserts that found an existing document
	Modified   int64 // existing documents changed
	Duplicates int64 // inserts skipped because the _id already existed
}

// Written is the number of documents created or changed.
func (r BulkResult) Written() int64 {
	return r.Inserted + r.Upserted + r.Modified
}
