package etl

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// ── Destination ────────────────────────────────────────────
// A Destination receives normalized users and quarantined raw documents.
// It is the only resource shared by the two pipelines; consistency comes
// from the write kinds (set-on-insert for backfill, set for capture),
// not from locking.

// Destination writes to the normalized collection and the quarantine.
type Destination interface {
	// BulkWrite applies ops in order as a single batched call.
	BulkWrite(ctx context.Context, ops []WriteOp) (BulkResult, error)

	// Quarantine stores a raw legacy document as-is.
	Quarantine(ctx context.Context, raw bson.D) error
}
