package etl

import (
	"context"
	"iter"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ── Source ──────────────────────────────────────────────────
// A Source is the read-only side of the migration: the legacy user
// collection. The MongoDB implementation lives in internal/dbclient.

// ScanOptions controls a backfill scan.
type ScanOptions struct {
	// BatchSize is the page size requested from the store.
	BatchSize int32
	// Ordered sorts the scan by _id. Without it records come back in
	// natural order.
	Ordered bool
	// After restricts an ordered scan to ObjectID _id values greater than it.
	After *bson.ObjectID
}

// ChangeStream is a live, non-restartable feed of change events.
// Next blocks until an event is available or ctx is done.
type ChangeStream interface {
	Next(ctx context.Context) bool
	Event() (ChangeEvent, error)
	ResumeToken() bson.Raw
	Err() error
	Close(ctx context.Context) error
}

// Source reads legacy records.
type Source interface {
	// EstimatedCount returns a cheap estimate of the collection size.
	EstimatedCount(ctx context.Context) (int64, error)

	// Scan yields records page by page. A non-nil error ends the sequence.
	// Breaking out of the loop releases the underlying cursor.
	Scan(ctx context.Context, opts ScanOptions) iter.Seq2[LegacyRecord, error]

	// Watch subscribes to changes on the collection, requesting the full
	// document for updates. A nil token subscribes from now.
	Watch(ctx context.Context, resumeToken bson.Raw) (ChangeStream, error)
}
