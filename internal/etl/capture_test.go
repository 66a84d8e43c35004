package etl_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"migrator/internal/domain"
	"migrator/internal/etl"
)

// startCapture runs c in the background and waits for its subscription.
func startCapture(t *testing.T, c *etl.Capture, flag *etl.Flag) (stop func() error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, flag) }()

	select {
	case <-c.Subscribed():
	case <-time.After(waitFor):
		cancel()
		t.Fatal("capture never subscribed")
	}

	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(waitFor):
			t.Fatal("capture did not stop")
			return nil
		}
	}
}

func emailOf(h *harness, id bson.ObjectID) string {
	u, ok := h.dest.User(id)
	if !ok {
		return ""
	}
	return u.Email
}

func TestCapture_LastWriteWins(t *testing.T) {
	h := newHarness(t)
	c := h.capture()
	stop := startCapture(t, c, etl.NewFlag(true))

	id := bson.NewObjectID()
	h.src.Insert(legacy(id, "first@example.com"))
	h.src.Update(legacy(id, "second@example.com"))
	h.src.Update(legacy(id, "Third@Example.com"))

	require.Eventually(t, func() bool { return emailOf(h, id) == "third@example.com" }, waitFor, tick)
	require.NoError(t, stop())

	for _, op := range h.dest.Writes() {
		assert.Equal(t, etl.WriteUpsertSet, op.Kind)
	}
	assert.Equal(t, int64(3), c.Stats().Processed)
}

func TestCapture_OverwritesBackfilledDocument(t *testing.T) {
	id := bson.NewObjectID()
	h := newHarness(t, legacy(id, "old@example.com"))

	_, err := h.backfill(etl.BackfillConfig{}).Pass(context.Background(), etl.NewFlag(true))
	require.NoError(t, err)

	stop := startCapture(t, h.capture(), etl.NewFlag(true))
	h.src.Update(legacy(id, "new@example.com"))
	require.Eventually(t, func() bool { return emailOf(h, id) == "new@example.com" }, waitFor, tick)
	require.NoError(t, stop())

	u, _ := h.dest.User(id)
	assert.Equal(t, fixedNow.Add(time.Hour).UnixMilli(), u.LastUpdatedAtInMS)
}

func TestCapture_MissingFullDocumentIsLogged(t *testing.T) {
	h := newHarness(t)
	stop := startCapture(t, h.capture(), etl.NewFlag(true))

	gone := bson.NewObjectID()
	h.src.Emit(etl.ChangeEvent{OperationType: "update", DocumentKey: bson.D{{Key: "_id", Value: gone}}})
	next := bson.NewObjectID()
	h.src.Insert(legacy(next, "next@example.com"))

	require.Eventually(t, func() bool { return emailOf(h, next) != "" }, waitFor, tick)
	require.NoError(t, stop())

	assert.Equal(t, `Capture: {"_id":{"$oid":"`+gone.Hex()+`"}}: full document missing`+"\n", h.log.String())
}

func TestCapture_RoutesNormalizationFailures(t *testing.T) {
	h := newHarness(t)
	stop := startCapture(t, h.capture(), etl.NewFlag(true))

	id := bson.NewObjectID()
	raw := bson.D{{Key: "_id", Value: id}, {Key: "email", Value: nil}}
	h.src.Insert(raw)

	require.Eventually(t, func() bool { return len(h.dest.Quarantined()) == 1 }, waitFor, tick)
	require.NoError(t, stop())
	assert.Equal(t, raw, h.dest.Quarantined()[0])
	assert.Zero(t, h.dest.Len())
}

func TestCapture_WriteFailureStopsRunAndRedelivers(t *testing.T) {
	h := newHarness(t)
	runs := &memRuns{}
	c := h.capture()
	c.Runs = runs
	h.dest.SetFailBulk(errors.New("connection reset"))
	flag := etl.NewFlag(true)

	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), flag) }()
	select {
	case <-c.Subscribed():
	case <-time.After(waitFor):
		t.Fatal("capture never subscribed")
	}

	id := bson.NewObjectID()
	h.src.Insert(legacy(id, "a@example.com"))

	select {
	case err := <-done:
		assert.ErrorContains(t, err, "connection reset")
	case <-time.After(waitFor):
		t.Fatal("a failed write did not stop the run")
	}
	assert.False(t, flag.Active(), "parked until toggled")
	assert.Empty(t, emailOf(h, id))
	assert.Empty(t, h.log.String(), "an I/O failure is surfaced, not logged as a capture failure")
	logs, _ := runs.ListRunLogs(context.Background(), domain.PipelineCapture, 5)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.RunStatusFailed, logs[0].Status)

	h.dest.SetFailBulk(nil)
	flag.Set(true)
	stop := startCapture(t, c, flag)
	require.Eventually(t, func() bool { return emailOf(h, id) == "a@example.com" }, waitFor, tick)
	require.NoError(t, stop())

	tokens := h.src.WatchTokens()
	require.Len(t, tokens, 2)
	assert.NotNil(t, tokens[1], "the second subscription resumes before the failed event")
}

func TestCapture_PauseKeepsResumeToken(t *testing.T) {
	h := newHarness(t)
	c := h.capture()
	flag := etl.NewFlag(true)
	stop := startCapture(t, c, flag)

	first := bson.NewObjectID()
	h.src.Insert(legacy(first, "first@example.com"))
	require.Eventually(t, func() bool { return emailOf(h, first) != "" }, waitFor, tick)

	flag.Set(false)
	require.Eventually(t, func() bool { return c.State() == etl.CaptureStopped }, waitFor, tick)

	missed := bson.NewObjectID()
	h.src.Insert(legacy(missed, "missed@example.com"))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, emailOf(h, missed), "nothing is applied while paused")

	flag.Set(true)
	require.Eventually(t, func() bool { return emailOf(h, missed) != "" }, waitFor, tick)
	require.NoError(t, stop())

	tokens := h.src.WatchTokens()
	require.Len(t, tokens, 2)
	assert.Nil(t, tokens[0])
	assert.NotNil(t, tokens[1], "the second subscription resumes after the last applied event")
}

func TestCapture_PersistsAndLoadsResumeToken(t *testing.T) {
	h := newHarness(t)
	cps := newMemCheckpoints()

	c := h.capture()
	c.Checkpoints = cps
	stop := startCapture(t, c, etl.NewFlag(true))
	id := bson.NewObjectID()
	h.src.Insert(legacy(id, "a@example.com"))
	require.Eventually(t, func() bool { return emailOf(h, id) != "" }, waitFor, tick)
	require.NoError(t, stop())

	cp, err := cps.LoadCheckpoint(context.Background(), domain.PipelineCapture)
	require.NoError(t, err)
	require.NotNil(t, cp)
	assert.Equal(t, []byte(c.ResumeToken()), cp.ResumeToken)

	later := bson.NewObjectID()
	h.src.Insert(legacy(later, "later@example.com"))

	restarted := h.capture()
	restarted.Checkpoints = cps
	stop = startCapture(t, restarted, etl.NewFlag(true))
	require.Eventually(t, func() bool { return emailOf(h, later) != "" }, waitFor, tick)
	require.NoError(t, stop())
}

func TestCapture_SubscribeFailureParks(t *testing.T) {
	h := newHarness(t)
	h.src.WatchErr = errors.New("change streams need a replica set")
	runs := &memRuns{}
	c := h.capture()
	c.Runs = runs
	flag := etl.NewFlag(true)

	err := c.Run(context.Background(), flag)

	assert.ErrorContains(t, err, "replica set")
	assert.False(t, flag.Active())
	select {
	case <-c.Subscribed():
		t.Fatal("subscribed despite the failure")
	default:
	}
	logs, _ := runs.ListRunLogs(context.Background(), domain.PipelineCapture, 5)
	require.Len(t, logs, 1)
	assert.Equal(t, domain.RunStatusFailed, logs[0].Status)
}
