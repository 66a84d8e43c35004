package dbclient

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"golang.org/x/sync/errgroup"
)

// ── Seeding ────────────────────────────────────────────────
// Seed multiplies the legacy collection for load testing: existing users
// are cloned with a fresh _id and unique email, username and
// unsubscribeId.

// SeedOptions controls Seed.
type SeedOptions struct {
	Collection string
	// Count is the number of users to insert.
	Count int
	// BatchSize is the number of documents per InsertMany.
	BatchSize int
	// Workers is the number of concurrent inserters.
	Workers int
}

func (o *SeedOptions) defaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 1000
	}
	if o.Workers <= 0 {
		o.Workers = 7
	}
}

// Seed inserts opts.Count clones of existing users and returns how many
// were inserted.
func (m *Mongo) Seed(ctx context.Context, opts SeedOptions) (int64, error) {
	opts.defaults()
	coll := m.db.Collection(opts.Collection)

	cursor, err := coll.Find(ctx, bson.D{}, options.Find().SetLimit(int64(opts.BatchSize)))
	if err != nil {
		return 0, fmt.Errorf("read templates: %w", err)
	}
	var templates []bson.D
	if err := cursor.All(ctx, &templates); err != nil {
		return 0, fmt.Errorf("read templates: %w", err)
	}
	if len(templates) == 0 {
		return 0, fmt.Errorf("collection %s is empty, nothing to clone", opts.Collection)
	}

	var inserted atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for start := 0; start < opts.Count; start += opts.BatchSize {
		n := min(opts.BatchSize, opts.Count-start)
		g.Go(func() error {
			docs := make([]bson.D, n)
			for i := range docs {
				docs[i] = CloneUser(templates[(start+i)%len(templates)], NewSeedSuffix())
			}
			res, err := coll.InsertMany(ctx, docs)
			if err != nil {
				return fmt.Errorf("insert batch at %d: %w", start, err)
			}
			total := inserted.Add(int64(len(res.InsertedIDs)))
			m.log.Info().Int64("inserted", total).Int("target", opts.Count).Msg("seeding")
			return nil
		})
	}

	err = g.Wait()
	return inserted.Load(), err
}

// NewSeedSuffix returns a random upper-case hex token.
func NewSeedSuffix() string {
	id := uuid.New()
	return strings.ToUpper(strings.ReplaceAll(id.String(), "-", "")[:16])
}

// CloneUser copies doc with a new _id and identity fields derived from suffix.
func CloneUser(doc bson.D, suffix string) bson.D {
	handle := "fcc_" + suffix
	replace := map[string]any{
		"email":         handle + "@gmail.com",
		"username":      handle,
		"unsubscribeId": handle,
	}

	out := make(bson.D, 0, len(doc)+1)
	out = append(out, bson.E{Key: "_id", Value: bson.NewObjectID()})
	for _, e := range doc {
		if e.Key == "_id" {
			continue
		}
		if v, ok := replace[e.Key]; ok {
			out = append(out, bson.E{Key: e.Key, Value: v})
			delete(replace, e.Key)
			continue
		}
		out = append(out, e)
	}
	for _, key := range []string{"email", "username", "unsubscribeId"} {
		if v, ok := replace[key]; ok {
			out = append(out, bson.E{Key: key, Value: v})
		}
	}
	return out
}
