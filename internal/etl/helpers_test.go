package etl_test

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/bson"

	"migrator/internal/domain"
	"migrator/internal/etl"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func legacy(id bson.ObjectID, email string, extra ...bson.E) bson.D {
	doc := bson.D{
		{Key: "_id", Value: id},
		{Key: "email", Value: email},
		{Key: "username", Value: "camper"},
	}
	return append(doc, extra...)
}

func legacyUsers(n int) ([]bson.D, []bson.ObjectID) {
	docs := make([]bson.D, n)
	ids := make([]bson.ObjectID, n)
	for i := range docs {
		ids[i] = bson.NewObjectID()
		docs[i] = legacy(ids[i], fmt.Sprintf("user%d@example.com", i))
	}
	return docs, ids
}

// recorder is an EventEmitter that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []recorded
}

type recorded struct {
	Event string
	Data  any
}

func (r *recorder) Emit(_ context.Context, event string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recorded{Event: event, Data: data})
}

func (r *recorder) named(event string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, e := range r.events {
		if e.Event == event {
			out = append(out, e.Data)
		}
	}
	return out
}

// syncBuffer is a bytes.Buffer safe for concurrent writers and readers.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// memCheckpoints is an in-memory CheckpointStore.
type memCheckpoints struct {
	mu  sync.Mutex
	cps map[string]domain.Checkpoint
}

func newMemCheckpoints() *memCheckpoints {
	return &memCheckpoints{cps: make(map[string]domain.Checkpoint)}
}

func (m *memCheckpoints) LoadCheckpoint(_ context.Context, pipeline string) (*domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.cps[pipeline]
	if !ok {
		return nil, nil
	}
	return &cp, nil
}

func (m *memCheckpoints) SaveCheckpoint(_ context.Context, cp *domain.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cps[cp.Pipeline] = *cp
	return nil
}

func (m *memCheckpoints) ClearCheckpoint(_ context.Context, pipeline string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cps, pipeline)
	return nil
}

// memRuns is an in-memory RunLogStore.
type memRuns struct {
	mu   sync.Mutex
	logs []domain.RunLog
}

func (m *memRuns) CreateRunLog(_ context.Context, l *domain.RunLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *l)
	return nil
}

func (m *memRuns) ListRunLogs(_ context.Context, pipeline string, limit int) ([]domain.RunLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RunLog
	for i := len(m.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.logs[i].Pipeline == pipeline {
			out = append(out, m.logs[i])
		}
	}
	return out, nil
}

type harness struct {
	src    *etl.MemorySource
	dest   *etl.MemoryDestination
	log    *syncBuffer
	router *etl.Router
	events *recorder
}

func newHarness(t *testing.T, docs ...bson.D) *harness {
	t.Helper()
	h := &harness{
		src:    etl.NewMemorySource(docs...),
		dest:   etl.NewMemoryDestination(),
		log:    &syncBuffer{},
		events: &recorder{},
	}
	h.router = &etl.Router{Log: etl.NewFailureLog(h.log), Quarantine: h.dest}
	return h
}

func (h *harness) backfill(cfg etl.BackfillConfig) *etl.Backfill {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.Mode == "" {
		cfg.Mode = domain.WriteModeUpsertSetOnInsert
	}
	return &etl.Backfill{
		Source:  h.src,
		Dest:    h.dest,
		Router:  h.router,
		Emitter: h.events,
		Logger:  zerolog.Nop(),
		Config:  cfg,
		Now:     func() time.Time { return fixedNow },
	}
}

func (h *harness) capture() *etl.Capture {
	return &etl.Capture{
		Source:  h.src,
		Dest:    h.dest,
		Router:  h.router,
		Emitter: h.events,
		Logger:  zerolog.Nop(),
		Now:     func() time.Time { return fixedNow.Add(time.Hour) },
	}
}

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)
