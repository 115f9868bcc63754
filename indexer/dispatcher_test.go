package indexer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"gameindex/catalog"
	"gameindex/pkg/memorydb"
	"gameindex/queue"
	"gameindex/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder returns a 2-dim vector per text and fails any call that
// contains a text with "FAIL".
type fakeEmbedder struct {
	mu    sync.Mutex
	calls [][]string
	short bool
}

func (e *fakeEmbedder) GetEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.calls = append(e.calls, texts)
	e.mu.Unlock()

	for _, t := range texts {
		if strings.Contains(t, "FAIL") {
			return nil, errors.New("inference unavailable")
		}
	}
	n := len(texts)
	if e.short {
		n--
	}
	out := make([][]float32, n)
	for i := range out {
		out[i] = []float32{float32(len(texts[i])), 1}
	}
	return out, nil
}

type countingStore struct {
	*memorydb.Store
	mu      sync.Mutex
	upserts [][]repository.VectorRecord
	err     error
}

func (s *countingStore) Upsert(ctx context.Context, records []repository.VectorRecord) (int, error) {
	s.mu.Lock()
	s.upserts = append(s.upserts, records)
	s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	return s.Store.Upsert(ctx, records)
}

func newStore() *countingStore {
	return &countingStore{Store: memorydb.New(2)}
}

func message(id, body string, attempts int) *queue.Message {
	return &queue.Message{ID: id, Body: []byte(body), Attempts: attempts}
}

func recordIDs(records []repository.VectorRecord) []string {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	return ids
}

func TestVectorID(t *testing.T) {
	testCases := []struct {
		name     string
		index    int
		total    int
		expected string
	}{
		{"SingleChunk", 0, 1, "igdb:42:summary"},
		{"FirstOfTwo", 0, 2, "igdb:42:summary[0]"},
		{"SecondOfTwo", 1, 2, "igdb:42:summary[1]"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, VectorID(42, catalog.FieldSummary, tc.index, tc.total))
		})
	}
}

func TestHandleBatch_SingleChunkSummary(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := newStore()
	d := NewDispatcher(embedder, store)

	msg := message("m1", `{"id":42,"summary":"A hero rises. Evil falls."}`, 1)
	require.NoError(t, d.HandleBatch(context.Background(), []*queue.Message{msg}))

	assert.True(t, msg.Acked())
	require.Len(t, store.upserts, 1)
	require.Len(t, store.upserts[0], 1)

	r := store.upserts[0][0]
	assert.Equal(t, "igdb:42:summary", r.ID)
	assert.Equal(t, repository.VectorMetadata{
		Text:   "A hero rises. Evil falls.",
		GameID: 42,
		Type:   "summary",
	}, r.Metadata)
}

func TestHandleBatch_SummaryWithoutTerminator(t *testing.T) {
	store := newStore()
	d := NewDispatcher(&fakeEmbedder{}, store, WithFields(catalog.FieldSummary))

	msg := message("m1", `{"id":42,"name":"X","summary":"Hello world"}`, 1)
	require.NoError(t, d.HandleBatch(context.Background(), []*queue.Message{msg}))

	assert.True(t, msg.Acked())
	require.Len(t, store.upserts, 1)
	require.Len(t, store.upserts[0], 1)
	assert.Equal(t, "igdb:42:summary", store.upserts[0][0].ID)
	assert.Equal(t, "Hello world", store.upserts[0][0].Metadata.Text)
	assert.Equal(t, "X", store.upserts[0][0].Metadata.Name)
}

func TestHandleBatch_LessThanSignIsText(t *testing.T) {
	store := newStore()
	d := NewDispatcher(&fakeEmbedder{}, store)

	msg := message("m1", `{"id":44,"summary":"Defeat the a<b boss. It is hard. Really hard. Four."}`, 1)
	require.NoError(t, d.HandleBatch(context.Background(), []*queue.Message{msg}))

	require.Len(t, store.upserts, 1)
	assert.Equal(t, []string{"igdb:44:summary[0]", "igdb:44:summary[1]"}, recordIDs(store.upserts[0]))
	assert.Equal(t, "Defeat the a<b boss. It is hard. Really hard.", store.upserts[0][0].Metadata.Text)
	assert.Equal(t, "Four.", store.upserts[0][1].Metadata.Text)
}

func TestHandleBatch_MultiChunkStoryline(t *testing.T) {
	store := newStore()
	d := NewDispatcher(&fakeEmbedder{}, store)

	msg := message("m1", `{"id":7,"name":"Seven","url":"https://igdb.com/games/seven","storyline":"One. Two. Three. Four."}`, 1)
	require.NoError(t, d.HandleBatch(context.Background(), []*queue.Message{msg}))

	assert.True(t, msg.Acked())
	require.Len(t, store.upserts, 1)
	assert.Equal(t, []string{"igdb:7:name", "igdb:7:storyline[0]", "igdb:7:storyline[1]"}, recordIDs(store.upserts[0]))

	first, ok := store.Get("igdb:7:storyline[0]")
	require.True(t, ok)
	assert.Equal(t, "One. Two. Three.", first.Metadata.Text)
	assert.Equal(t, "Seven", first.Metadata.Name)
	assert.Equal(t, "https://igdb.com/games/seven", first.Metadata.URL)

	second, ok := store.Get("igdb:7:storyline[1]")
	require.True(t, ok)
	assert.Equal(t, "Four.", second.Metadata.Text)
}

func TestHandleBatch_OneEmbedCallPerField(t *testing.T) {
	embedder := &fakeEmbedder{}
	d := NewDispatcher(embedder, newStore())

	msg := message("m1", `{"id":1,"name":"N","summary":"A. B. C. D. E.","storyline":""}`, 1)
	require.NoError(t, d.HandleBatch(context.Background(), []*queue.Message{msg}))

	require.Len(t, embedder.calls, 2)
	assert.Equal(t, []string{"N"}, embedder.calls[0])
	assert.Equal(t, []string{"A. B. C.", "D. E."}, embedder.calls[1])
}

func TestHandleBatch_EveryMessageProcessed(t *testing.T) {
	store := newStore()
	d := NewDispatcher(&fakeEmbedder{}, store)

	msgs := []*queue.Message{
		message("m1", `{"id":1,"name":"One"}`, 1),
		message("m2", `{"id":2,"name":"Two"}`, 1),
		message("m3", `{"id":3,"name":"Three"}`, 1),
	}
	require.NoError(t, d.HandleBatch(context.Background(), msgs))

	assert.Len(t, store.upserts, 3)
	for _, m := range msgs {
		assert.True(t, m.Acked(), m.ID)
	}
	assert.Equal(t, 3, store.Len())
}

func TestHandleBatch_NoTextStillAcked(t *testing.T) {
	store := newStore()
	d := NewDispatcher(&fakeEmbedder{}, store)

	msg := message("m1", `{"id":9,"url":"https://igdb.com/games/nine"}`, 1)
	require.NoError(t, d.HandleBatch(context.Background(), []*queue.Message{msg}))

	assert.True(t, msg.Acked())
	assert.Empty(t, store.upserts)
}

func TestHandleBatch_InvalidPayloadAcked(t *testing.T) {
	testCases := []struct {
		name string
		body string
	}{
		{"NotJSON", `{{`},
		{"MissingID", `{"name":"No id"}`},
		{"WrongType", `{"id":"abc"}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			embedder := &fakeEmbedder{}
			d := NewDispatcher(embedder, newStore())

			msg := message("m1", tc.body, 1)
			require.NoError(t, d.HandleBatch(context.Background(), []*queue.Message{msg}))
			assert.True(t, msg.Acked())
			assert.Empty(t, embedder.calls)
		})
	}
}

func TestHandleBatch_FieldFailureRetries(t *testing.T) {
	store := newStore()
	d := NewDispatcher(&fakeEmbedder{}, store, WithRetryDelay(time.Second))

	msg := message("m1", `{"id":5,"name":"Five","summary":"FAIL here."}`, 1)
	err := d.HandleBatch(context.Background(), []*queue.Message{msg})

	require.ErrorIs(t, err, ErrFieldEmbedding)
	assert.True(t, msg.Retried())
	assert.False(t, msg.Acked())

	// The field that succeeded is still stored.
	require.Len(t, store.upserts, 1)
	assert.Equal(t, []string{"igdb:5:name"}, recordIDs(store.upserts[0]))
}

func TestHandleBatch_CountMismatchRetries(t *testing.T) {
	store := newStore()
	d := NewDispatcher(&fakeEmbedder{short: true}, store)

	msg := message("m1", `{"id":5,"summary":"One. Two. Three. Four."}`, 1)
	err := d.HandleBatch(context.Background(), []*queue.Message{msg})

	require.ErrorIs(t, err, ErrFieldEmbedding)
	assert.True(t, msg.Retried())
	assert.Empty(t, store.upserts)
}

func TestHandleBatch_UpsertFailureRetries(t *testing.T) {
	store := newStore()
	store.err = errors.New("store down")
	d := NewDispatcher(&fakeEmbedder{}, store)

	ok := message("m1", `{"id":1,"name":"One"}`, 1)
	bad := message("m2", `{{`, 1)
	err := d.HandleBatch(context.Background(), []*queue.Message{ok, bad})

	require.ErrorIs(t, err, ErrUpsert)
	assert.True(t, ok.Retried())
	assert.True(t, bad.Acked())
}

func TestHandleBatch_Options(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := newStore()
	d := NewDispatcher(embedder, store, WithFields(catalog.FieldStoryline), WithMaxSentences(1))

	msg := message("m1", `{"id":3,"name":"Skip","storyline":"One. Two."}`, 1)
	require.NoError(t, d.HandleBatch(context.Background(), []*queue.Message{msg}))

	require.Len(t, embedder.calls, 1)
	assert.Equal(t, []string{"One.", "Two."}, embedder.calls[0])
	assert.Equal(t, []string{"igdb:3:storyline[0]", "igdb:3:storyline[1]"}, recordIDs(store.upserts[0]))
}

func TestBackoffDelay(t *testing.T) {
	testCases := []struct {
		name     string
		attempts int
		r        float64
		expected time.Duration
	}{
		{"FirstAttemptNoJitter", 1, 0.5, 10 * time.Second},
		{"SecondAttempt", 2, 0.5, 20 * time.Second},
		{"ZeroAttemptsTreatedAsFirst", 0, 0.5, 10 * time.Second},
		{"LowJitter", 1, 0, 7500 * time.Millisecond},
		{"Capped", 10, 0.5, MaxRetryDelay},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, backoffDelay(10*time.Second, tc.attempts, tc.r))
		})
	}
}
