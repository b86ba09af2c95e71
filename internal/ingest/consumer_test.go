// v0
// internal/ingest/consumer_test.go
package ingest

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyclesense/analysis/internal/journal"
)

type step struct {
	msg kafka.Message
	err error
}

type fakeReader struct {
	mu        sync.Mutex
	steps     []step
	committed []int64
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.steps) == 0 {
		return kafka.Message{}, io.EOF
	}
	s := r.steps[0]
	r.steps = r.steps[1:]
	return s.msg, s.err
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type fakeSink struct {
	symptoms []journal.SymptomEntry
	foods    []journal.FoodEntry
	seen     map[string]bool
}

func (s *fakeSink) AddSymptom(ctx context.Context, e journal.SymptomEntry) (journal.SymptomEntry, error) {
	if err := e.Validate(); err != nil {
		return journal.SymptomEntry{}, err
	}
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	if e.ID != "" && s.seen[e.ID] {
		return journal.SymptomEntry{}, journal.ErrDuplicate
	}
	s.seen[e.ID] = true
	s.symptoms = append(s.symptoms, e)
	return e, nil
}

func (s *fakeSink) AddFood(ctx context.Context, e journal.FoodEntry) (journal.FoodEntry, error) {
	if err := e.Validate(); err != nil {
		return journal.FoodEntry{}, err
	}
	s.foods = append(s.foods, e)
	return e, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	entries map[string]int
	errors  map[string]int
	states  []float64
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{entries: map[string]int{}, errors: map[string]int{}}
}

func (r *fakeRecorder) JournalEntry(kind, source string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[kind+"/"+source]++
}

func (r *fakeRecorder) IngestError(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors[reason]++
}

func (r *fakeRecorder) SetCircuitBreakerState(target string, state float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func msg(offset int64, value string) step {
	return step{msg: kafka.Message{Offset: offset, Value: []byte(value)}}
}

func TestRunStoresEventsAndCommitsEverything(t *testing.T) {
	reader := &fakeReader{steps: []step{
		msg(1, `{"kind":"symptom","entry":{"id":"a","date":"2024-04-01","pain":4,"fatigue":2}}`),
		msg(2, `{"kind":"food","entry":{"name":"chips","category":"junk","date":"2024-04-01"}}`),
		msg(3, `not json`),
		msg(4, `{"kind":"symptom","entry":{"id":"b","pain":14}}`),
		msg(5, `{"kind":"symptom","entry":{"id":"a","date":"2024-04-01","pain":4}}`),
		{err: context.DeadlineExceeded},
	}}
	sink := &fakeSink{}
	rec := newFakeRecorder()
	c, err := newJournalConsumer(Config{Topic: "cyclesense.journal", PollTimeout: 10 * time.Millisecond}, reader, sink, rec, discardLogger())
	require.NoError(t, err)

	require.NoError(t, c.Run(context.Background()))

	assert.Len(t, sink.symptoms, 1)
	assert.Len(t, sink.foods, 1)
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, reader.committed)
	assert.Equal(t, map[string]int{"symptom/kafka": 1, "food/kafka": 1}, rec.entries)
	assert.Equal(t, map[string]int{"decode": 1, "invalid": 1}, rec.errors)

	require.NoError(t, c.Close())
	assert.True(t, reader.closed)
}

func TestRunWithBreakerFastFailsOnBrokerErrors(t *testing.T) {
	boom := errors.New("broker down")
	reader := &fakeReader{steps: []step{{err: boom}, {err: boom}}}
	rec := newFakeRecorder()
	cfg := Config{
		Topic:          "cyclesense.journal",
		PollTimeout:    5 * time.Millisecond,
		BreakerEnabled: true,
		Breaker:        BreakerConfig{MaxFailures: 2, ResetTimeout: time.Millisecond},
	}
	c, err := newJournalConsumer(cfg, reader, &fakeSink{}, rec, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Run(ctx))

	assert.Equal(t, 2, rec.errors["fetch"])
	require.NotEmpty(t, rec.states)
	assert.Equal(t, float64(Closed), rec.states[0])
	assert.Contains(t, rec.states, float64(Open))
	assert.Contains(t, rec.states, float64(HalfOpen))
}

func TestRunStopsOnCancel(t *testing.T) {
	reader := &blockingReader{}
	c, err := newJournalConsumer(Config{PollTimeout: time.Second}, reader, &fakeSink{}, nil, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

type blockingReader struct{}

func (blockingReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (blockingReader) CommitMessages(context.Context, ...kafka.Message) error { return nil }

func (blockingReader) Close() error { return nil }

func TestNewJournalConsumerValidates(t *testing.T) {
	_, err := NewJournalConsumer(Config{Topic: "t", GroupID: "g"}, &fakeSink{}, nil, discardLogger())
	assert.Error(t, err)
	_, err = NewJournalConsumer(Config{Brokers: []string{"k:9092"}, GroupID: "g"}, &fakeSink{}, nil, discardLogger())
	assert.Error(t, err)
	_, err = newJournalConsumer(Config{}, &fakeReader{}, nil, nil, discardLogger())
	assert.Error(t, err)
	_, err = newJournalConsumer(Config{}, &fakeReader{}, &fakeSink{}, nil, nil)
	assert.Error(t, err)
}

// failingSink fails the first failures symptom writes with a store error;
// a negative count fails every write.
type failingSink struct {
	fakeSink
	failures int
	attempts int
}

func (s *failingSink) AddSymptom(ctx context.Context, e journal.SymptomEntry) (journal.SymptomEntry, error) {
	s.attempts++
	if s.failures < 0 || s.attempts <= s.failures {
		return journal.SymptomEntry{}, errors.New("database is locked")
	}
	return s.fakeSink.AddSymptom(ctx, e)
}

func TestRunDoesNotCommitWhenStoreFails(t *testing.T) {
	reader := &fakeReader{steps: []step{
		msg(7, `{"kind":"symptom","entry":{"id":"a","date":"2024-04-01","pain":4}}`),
	}}
	sink := &failingSink{failures: -1}
	rec := newFakeRecorder()
	c, err := newJournalConsumer(Config{Topic: "cyclesense.journal", PollTimeout: 5 * time.Millisecond}, reader, sink, rec, discardLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Run(ctx), context.DeadlineExceeded)

	assert.Empty(t, reader.committed)
	assert.Empty(t, sink.symptoms)
	assert.GreaterOrEqual(t, sink.attempts, 2, "the same message is retried")
	assert.Equal(t, sink.attempts, rec.errors["store"])
}

func TestRunRetriesStoreFailureThenCommits(t *testing.T) {
	reader := &fakeReader{steps: []step{
		msg(7, `{"kind":"symptom","entry":{"id":"a","date":"2024-04-01","pain":4}}`),
	}}
	sink := &failingSink{failures: 2}
	rec := newFakeRecorder()
	c, err := newJournalConsumer(Config{Topic: "cyclesense.journal", PollTimeout: time.Millisecond}, reader, sink, rec, discardLogger())
	require.NoError(t, err)

	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, []int64{7}, reader.committed)
	assert.Len(t, sink.symptoms, 1)
	assert.Equal(t, 3, sink.attempts)
	assert.Equal(t, 2, rec.errors["store"])
	assert.Equal(t, 1, rec.entries["symptom/kafka"])
}

func TestRunPausesAfterFetchErrorsWithoutBreaker(t *testing.T) {
	boom := errors.New("broker down")
	reader := &fakeReader{steps: []step{{err: boom}, {err: boom}, {err: boom}}}
	rec := newFakeRecorder()
	poll := 20 * time.Millisecond
	c, err := newJournalConsumer(Config{Topic: "cyclesense.journal", PollTimeout: poll}, reader, &fakeSink{}, rec, discardLogger())
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, 3, rec.errors["fetch"])
	assert.GreaterOrEqual(t, time.Since(start), 3*poll)
}
