package dbclient

import (
	"context"
	"fmt"
	"iter"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"migrator/internal/etl"
)

// MongoSource reads the legacy user collection.
type MongoSource struct {
	coll *mongo.Collection
	log  zerolog.Logger
}

var _ etl.Source = (*MongoSource)(nil)

func (s *MongoSource) EstimatedCount(ctx context.Context) (int64, error) {
	n, err := s.coll.EstimatedDocumentCount(ctx)
	if err != nil {
		return 0, fmt.Errorf("estimated count %s: %w", s.coll.Name(), err)
	}
	return n, nil
}

// ScanFilter builds the find filter and options for a scan.
func ScanFilter(opts etl.ScanOptions) (bson.D, *options.FindOptionsBuilder) {
	filter := bson.D{}
	find := options.Find()
	if opts.BatchSize > 0 {
		find.SetBatchSize(opts.BatchSize)
	}
	if opts.Ordered {
		find.SetSort(bson.D{{Key: "_id", Value: 1}})
		if opts.After != nil {
			filter = bson.D{{Key: "_id", Value: bson.D{{Key: "$gt", Value: *opts.After}}}}
		}
	}
	return filter, find
}

func (s *MongoSource) Scan(ctx context.Context, opts etl.ScanOptions) iter.Seq2[etl.LegacyRecord, error] {
	return func(yield func(etl.LegacyRecord, error) bool) {
		filter, find := ScanFilter(opts)
		cursor, err := s.coll.Find(ctx, filter, find)
		if err != nil {
			yield(nil, fmt.Errorf("find %s: %w", s.coll.Name(), err))
			return
		}
		defer cursor.Close(context.WithoutCancel(ctx))

		for cursor.Next(ctx) {
			var doc bson.D
			if err := cursor.Decode(&doc); err != nil {
				yield(nil, fmt.Errorf("decode: %w", err))
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
		if err := cursor.Err(); err != nil {
			yield(nil, fmt.Errorf("cursor: %w", err))
		}
	}
}

// WatchPipeline restricts the change feed to operations that carry a
// user document.
func WatchPipeline() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "operationType", Value: bson.D{{Key: "$in", Value: bson.A{"insert", "update", "replace"}}}},
		}}},
	}
}

func (s *MongoSource) Watch(ctx context.Context, resumeToken bson.Raw) (etl.ChangeStream, error) {
	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
	if resumeToken != nil {
		opts.SetResumeAfter(resumeToken)
	}
	cs, err := s.coll.Watch(ctx, WatchPipeline(), opts)
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", s.coll.Name(), err)
	}
	s.log.Debug().Bool("resumed", resumeToken != nil).Msg("change stream opened")
	return &mongoChangeStream{cs: cs}, nil
}

type mongoChangeStream struct {
	cs *mongo.ChangeStream
}

// changeEventDoc is the subset of a change event the capture needs.
type changeEventDoc struct {
	OperationType string `bson:"operationType"`
	DocumentKey   bson.D `bson:"documentKey"`
	FullDocument  bson.D `bson:"fullDocument"`
}

func (m *mongoChangeStream) Next(ctx context.Context) bool { return m.cs.Next(ctx) }

func (m *mongoChangeStream) Event() (etl.ChangeEvent, error) {
	var doc changeEventDoc
	if err := m.cs.Decode(&doc); err != nil {
		return etl.ChangeEvent{}, err
	}
	return etl.ChangeEvent{
		OperationType: doc.OperationType,
		DocumentKey:   doc.DocumentKey,
		FullDocument:  doc.FullDocument,
	}, nil
}

func (m *mongoChangeStream) ResumeToken() bson.Raw { return m.cs.ResumeToken() }
func (m *mongoChangeStream) Err() error { return m.cs.Err() }
func (m *mongoChangeStream) Close(ctx context.Context) error { return m.cs.Close(ctx) }
