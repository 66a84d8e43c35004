package etl

import (
	"bytes"
	"context"
	"errors"
	"iter"
	"reflect"
	"slices"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"

	"migrator/internal/domain"
)

// ── In-memory adapters ─────────────────────────────────────
// MemorySource and MemoryDestination implement Source and Destination
// without a server. They back the pipeline and controller tests.

// MemorySource is an in-memory legacy collection with a change log.
type MemorySource struct {
	mu     sync.Mutex
	docs   []bson.D
	events []ChangeEvent
	notify chan struct{}
	tokens []bson.Raw

	// ScanErr is yielded after ScanErrAfter records.
	ScanErr      error
	ScanErrAfter int
	// WatchErr is returned by Watch.
	WatchErr error
	// OnScan, if set, is called before the n-th record (1-based) is yielded.
	OnScan func(n int)
}

// NewMemorySource seeds a source with docs without generating change events.
func NewMemorySource(docs ...bson.D) *MemorySource {
	return &MemorySource{docs: slices.Clone(docs), notify: make(chan struct{})}
}

// Insert adds or replaces doc and records an insert event.
func (s *MemorySource) Insert(doc bson.D) {
	s.put(doc, "insert")
}

// Update replaces the document with the same _id and records an update event.
func (s *MemorySource) Update(doc bson.D) {
	s.put(doc, "update")
}

// Emit appends a raw change event, e.g. one without a full document.
func (s *MemorySource) Emit(ev ChangeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendEvent(ev)
}

// WatchTokens returns the resume tokens passed to Watch, in order.
func (s *MemorySource) WatchTokens() []bson.Raw {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tokens)
}

func (s *MemorySource) put(doc bson.D, op string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := idElem(doc)
	replaced := false
	for i, d := range s.docs {
		if key.Key != "" && reflect.DeepEqual(idElem(d).Value, key.Value) {
			s.docs[i] = doc
			replaced = true
			break
		}
	}
	if !replaced {
		s.docs = append(s.docs, doc)
	}
	s.appendEvent(ChangeEvent{OperationType: op, DocumentKey: bson.D{key}, FullDocument: doc})
}

func (s *MemorySource) appendEvent(ev ChangeEvent) {
	s.events = append(s.events, ev)
	if s.notify == nil {
		s.notify = make(chan struct{})
	}
	close(s.notify)
	s.notify = make(chan struct{})
}

func (s *MemorySource) EstimatedCount(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.docs)), nil
}

func (s *MemorySource) Scan(ctx context.Context, opts ScanOptions) iter.Seq2[LegacyRecord, error] {
	return func(yield func(LegacyRecord, error) bool) {
		s.mu.Lock()
		docs := slices.Clone(s.docs)
		s.mu.Unlock()

		if opts.Ordered {
			docs = orderByID(docs, opts.After)
		}

		for i, doc := range docs {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			if s.ScanErr != nil && i == s.ScanErrAfter {
				yield(nil, s.ScanErr)
				return
			}
			if s.OnScan != nil {
				s.OnScan(i + 1)
			}
			if !yield(doc, nil) {
				return
			}
		}
		if s.ScanErr != nil && s.ScanErrAfter >= len(docs) {
			yield(nil, s.ScanErr)
		}
	}
}

// orderByID mimics {_id: {$gt: after}} sorted by _id: non-ObjectID ids
// sort first and are excluded once after is set.
func orderByID(docs []bson.D, after *bson.ObjectID) []bson.D {
	var others, oids []bson.D
	for _, d := range docs {
		id, ok := objectIDOf(d)
		switch {
		case !ok:
			if after == nil {
				others = append(others, d)
			}
		case after == nil || bytes.Compare(id[:], after[:]) > 0:
			oids = append(oids, d)
		}
	}
	slices.SortStableFunc(oids, func(a, b bson.D) int {
		ia, _ := objectIDOf(a)
		ib, _ := objectIDOf(b)
		return bytes.Compare(ia[:], ib[:])
	})
	return append(others, oids...)
}

func (s *MemorySource) Watch(_ context.Context, resumeToken bson.Raw) (ChangeStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = append(s.tokens, resumeToken)
	if s.WatchErr != nil {
		return nil, s.WatchErr
	}
	pos := len(s.events)
	if resumeToken != nil {
		n, err := decodeMemoryToken(resumeToken)
		if err != nil {
			return nil, err
		}
		pos = n
	}
	return &memoryStream{src: s, pos: pos}, nil
}

func decodeMemoryToken(tok bson.Raw) (int, error) {
	v, err := tok.LookupErr("n")
	if err != nil {
		return 0, errors.New("invalid resume token")
	}
	n, ok := v.Int64OK()
	if !ok {
		return 0, errors.New("invalid resume token")
	}
	return int(n), nil
}

type memoryStream struct {
	src    *MemorySource
	pos    int
	cur    ChangeEvent
	err    error
	closed bool
}

func (m *memoryStream) Next(ctx context.Context) bool {
	for {
		m.src.mu.Lock()
		if m.closed {
			m.src.mu.Unlock()
			return false
		}
		if m.pos < len(m.src.events) {
			m.cur = m.src.events[m.pos]
			m.pos++
			m.src.mu.Unlock()
			return true
		}
		if m.src.notify == nil {
			m.src.notify = make(chan struct{})
		}
		ch := m.src.notify
		m.src.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			m.err = ctx.Err()
			return false
		}
	}
}

func (m *memoryStream) Event() (ChangeEvent, error) { return m.cur, nil }

func (m *memoryStream) ResumeToken() bson.Raw {
	raw, err := bson.Marshal(bson.D{{Key: "n", Value: int64(m.pos)}})
	if err != nil {
		return nil
	}
	return raw
}

func (m *memoryStream) Err() error { return m.err }

func (m *memoryStream) Close(context.Context) error {
	m.src.mu.Lock()
	defer m.src.mu.Unlock()
	m.closed = true
	return nil
}

func idElem(doc bson.D) bson.E {
	for _, e := range doc {
		if e.Key == "_id" {
			return e
		}
	}
	return bson.E{}
}

// MemoryDestination is an in-memory normalized collection plus quarantine.
type MemoryDestination struct {
	mu         sync.Mutex
	users      map[bson.ObjectID]domain.User
	quarantine []bson.D
	writes     []WriteOp
	bulkCalls  int

	// FailBulk is returned by every BulkWrite while set.
	FailBulk error
	// FailQuarantine is returned by every Quarantine while set.
	FailQuarantine error
	// BeforeBulk, if set, runs before each BulkWrite is applied.
	BeforeBulk func(ops []WriteOp)
}

func NewMemoryDestination() *MemoryDestination {
	return &MemoryDestination{users: make(map[bson.ObjectID]domain.User)}
}

func (d *MemoryDestination) BulkWrite(_ context.Context, ops []WriteOp) (BulkResult, error) {
	if d.BeforeBulk != nil {
		d.BeforeBulk(ops)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.bulkCalls++
	if d.FailBulk != nil {
		return BulkResult{}, d.FailBulk
	}

	var res BulkResult
	for _, op := range ops {
		u := *op.User
		_, exists := d.users[u.ID]
		switch op.Kind {
		case WriteInsert:
			if exists {
				res.Duplicates++
				continue
			}
			d.users[u.ID] = u
			res.Inserted++
		case WriteUpsertSetOnInsert:
			if exists {
				res.Matched++
				continue
			}
			d.users[u.ID] = u
			res.Upserted++
		case WriteUpsertSet:
			d.users[u.ID] = u
			if exists {
				res.Matched++
				res.Modified++
			} else {
				res.Upserted++
			}
		}
		d.writes = append(d.writes, op)
	}
	return res, nil
}

func (d *MemoryDestination) Quarantine(_ context.Context, raw bson.D) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailQuarantine != nil {
		return d.FailQuarantine
	}
	d.quarantine = append(d.quarantine, raw)
	return nil
}

// SetFailBulk replaces FailBulk while writes may be in flight.
func (d *MemoryDestination) SetFailBulk(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.FailBulk = err
}

// User returns the stored user with the given _id.
func (d *MemoryDestination) User(id bson.ObjectID) (domain.User, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	return u, ok
}

// Len returns the number of stored users.
func (d *MemoryDestination) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.users)
}

// Quarantined returns the quarantined raw documents in insertion order.
func (d *MemoryDestination) Quarantined() []bson.D {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.quarantine)
}

// Writes returns every applied write op in order.
func (d *MemoryDestination) Writes() []WriteOp {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.writes)
}

// BulkCalls returns how many times BulkWrite was called.
func (d *MemoryDestination) BulkCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bulkCalls
}
