package dbclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"migrator/internal/domain"
	"migrator/internal/etl"
)

const duplicateKeyCode = 11000

// MongoDestination writes normalized users and quarantined documents.
type MongoDestination struct {
	coll       *mongo.Collection
	quarantine *mongo.Collection
	log        zerolog.Logger
}

var _ etl.Destination = (*MongoDestination)(nil)

// WriteModels converts ops into driver write models. It also reports
// whether the batch may run unordered: pure insert batches are unordered
// so that one duplicate does not stop the rest.
func WriteModels(ops []etl.WriteOp) ([]mongo.WriteModel, bool, error) {
	models := make([]mongo.WriteModel, 0, len(ops))
	unordered := true
	for _, op := range ops {
		if op.User == nil {
			return nil, false, errors.New("write op without user")
		}
		if op.Kind == etl.WriteInsert {
			models = append(models, mongo.NewInsertOneModel().SetDocument(op.User))
			continue
		}
		unordered = false

		fields, err := fieldsWithoutID(op.User)
		if err != nil {
			return nil, false, err
		}
		operator := "$set"
		if op.Kind == etl.WriteUpsertSetOnInsert {
			operator = "$setOnInsert"
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "_id", Value: op.User.ID}}).
			SetUpdate(bson.D{{Key: operator, Value: fields}}).
			SetUpsert(true))
	}
	return models, unordered, nil
}

// fieldsWithoutID encodes u and drops _id, which lives in the filter.
func fieldsWithoutID(u *domain.User) (bson.D, error) {
	raw, err := bson.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("encode user %s: %w", u.ID.Hex(), err)
	}
	var doc bson.D
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", u.ID.Hex(), err)
	}
	out := doc[:0]
	for _, e := range doc {
		if e.Key != "_id" {
			out = append(out, e)
		}
	}
	return out, nil
}

func (d *MongoDestination) BulkWrite(ctx context.Context, ops []etl.WriteOp) (etl.BulkResult, error) {
	if len(ops) == 0 {
		return etl.BulkResult{}, nil
	}
	models, unordered, err := WriteModels(ops)
	if err != nil {
		return etl.BulkResult{}, err
	}

	res, err := d.coll.BulkWrite(ctx, models, options.BulkWrite().SetOrdered(!unordered))
	out := bulkResult(res)
	if err == nil {
		return out, nil
	}

	dups, ok := OnlyDuplicates(err)
	if !ok {
		return out, fmt.Errorf("bulk write %s: %w", d.coll.Name(), err)
	}
	out.Duplicates = dups
	d.log.Debug().Int64("duplicates", dups).Msg("skipped existing documents")
	return out, nil
}

func bulkResult(res *mongo.BulkWriteResult) etl.BulkResult {
	if res == nil {
		return etl.BulkResult{}
	}
	return etl.BulkResult{
		Inserted: res.InsertedCount,
		Upserted: res.UpsertedCount,
		Matched:  res.MatchedCount,
		Modified: res.ModifiedCount,
	}
}

// OnlyDuplicates reports whether err consists solely of duplicate-key
// write errors, and how many.
func OnlyDuplicates(err error) (int64, bool) {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil || len(bwe.WriteErrors) == 0 {
		return 0, false
	}
	for _, we := range bwe.WriteErrors {
		if we.Code != duplicateKeyCode {
			return 0, false
		}
	}
	return int64(len(bwe.WriteErrors)), true
}

// Quarantine stores raw as-is. A document already quarantined by an
// earlier run is not an error.
func (d *MongoDestination) Quarantine(ctx context.Context, raw bson.D) error {
	_, err := d.quarantine.InsertOne(ctx, raw)
	if err != nil && !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("insert into %s: %w", d.quarantine.Name(), err)
	}
	return nil
}
