package etl

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"migrator/internal/normalize"
)

// ── Router ─────────────────────────────────────────────────
// The Router decides where a record that failed normalization goes.
// Identity and shape failures are logged, records missing a mandatory
// field are quarantined verbatim. Sink failures are returned: they are
// I/O failures, not record failures.

// LogSink accepts failure lines.
type LogSink interface {
	Append(tag, msg string) error
}

// Quarantiner stores raw documents for manual recovery.
type Quarantiner interface {
	Quarantine(ctx context.Context, raw bson.D) error
}

// Log tags.
const (
	tagConfusedID = "Confused ID"
	tagCapture    = "Capture"
)

// Router routes classified normalization errors.
type Router struct {
	Log        LogSink
	Quarantine Quarantiner
}

// Route handles a normalization error. Errors that are not classified are
// returned unchanged.
func (r *Router) Route(ctx context.Context, err error) error {
	ce, ok := normalize.Classify(err)
	if !ok {
		return err
	}
	switch e := ce.(type) {
	case *normalize.IdentityError:
		return r.Log.Append(tagConfusedID, extJSON(e.Raw))
	case *normalize.ShapeError:
		return r.Log.Append(e.ID.Hex(), e.Error())
	case *normalize.MissingFieldError:
		if err := r.Quarantine.Quarantine(ctx, e.Raw); err != nil {
			return fmt.Errorf("quarantine %s: %w", e.ID.Hex(), err)
		}
		return nil
	default:
		return fmt.Errorf("unroutable error: %w", err)
	}
}

// CaptureFailure logs a change event that could not be applied.
func (r *Router) CaptureFailure(documentKey bson.D, msg string) error {
	return r.Log.Append(tagCapture, extJSON(documentKey)+": "+msg)
}

func extJSON(doc bson.D) string {
	b, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return fmt.Sprintf("%v", doc)
	}
	return string(b)
}
