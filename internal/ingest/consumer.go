// v0
// internal/ingest/consumer.go
package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"cyclesense/analysis/internal/journal"
)

const (
	sourceKafka   = "kafka"
	breakerTarget = "journal"
)

// Config captures the runtime tunables of the journal consumer.
type Config struct {
	Brokers        []string
	Topic          string
	GroupID        string
	PollTimeout    time.Duration
	BreakerEnabled bool
	Breaker        BreakerConfig
}

// Sink stores decoded journal entries. *journal.Store satisfies it.
type Sink interface {
	AddSymptom(ctx context.Context, e journal.SymptomEntry) (journal.SymptomEntry, error)
	AddFood(ctx context.Context, e journal.FoodEntry) (journal.FoodEntry, error)
}

// Recorder receives ingestion metrics. *metrics.Metrics satisfies it.
type Recorder interface {
	JournalEntry(kind, source string)
	IngestError(reason string)
	SetCircuitBreakerState(target string, state float64)
}

type noopRecorder struct{}

func (noopRecorder) JournalEntry(string, string) {}
func (noopRecorder) IngestError(string) {}
func (noopRecorder) SetCircuitBreakerState(string, float64) {}

// messageReader is the subset of kafka.Reader used by the consumer.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// JournalConsumer streams journal events from Kafka into a Sink.
type JournalConsumer struct {
	cfg     Config
	reader  messageReader
	breaker *Breaker
	sink    Sink
	rec     Recorder
	log     *slog.Logger
	poll    time.Duration
}

// NewJournalConsumer builds a Kafka reader for cfg, optionally guarded by a
// circuit breaker around fetches.
func NewJournalConsumer(cfg Config, sink Sink, rec Recorder, log *slog.Logger) (*JournalConsumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("journal topic must not be empty")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("consumer group must not be empty")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newJournalConsumer(cfg, reader, sink, rec, log)
}

func newJournalConsumer(cfg Config, reader messageReader, sink Sink, rec Recorder, log *slog.Logger) (*JournalConsumer, error) {
	if log == nil {
		return nil, errors.New("logger must not be nil")
	}
	if sink == nil {
		return nil, errors.New("sink must not be nil")
	}
	if rec == nil {
		rec = noopRecorder{}
	}
	poll := cfg.PollTimeout
	if poll <= 0 {
		poll = 5 * time.Second
	}
	c := &JournalConsumer{cfg: cfg, reader: reader, sink: sink, rec: rec, log: log, poll: poll}
	if cfg.BreakerEnabled {
		c.breaker = NewBreaker("journal-consumer", cfg.Breaker, log, func(s State) {
			rec.SetCircuitBreakerState(breakerTarget, float64(s))
		})
		rec.SetCircuitBreakerState(breakerTarget, float64(Closed))
		log.Info("journal_consumer_cb_enabled")
	} else {
		log.Info("journal_consumer_cb_disabled")
	}
	return c, nil
}

// Close shuts down the underlying Kafka reader.
func (c *JournalConsumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Run blocks until the context is cancelled or the reader is closed.
func (c *JournalConsumer) Run(ctx context.Context) error {
	if c == nil {
		return errors.New("nil consumer")
	}

	c.log.Info("journal_consumer_started",
		slog.String("topic", c.cfg.Topic),
		slog.String("group", c.cfg.GroupID),
		slog.String("brokers", strings.Join(c.cfg.Brokers, ",")),
		slog.Duration("pollTimeout", c.poll),
	)
	defer c.log.Info("journal_consumer_stopped")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		msg, err := c.fetch(ctx)
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				continue
			case errors.Is(err, context.Canceled):
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, kafka.ErrGroupClosed):
				return nil
			case errors.Is(err, ErrBreakerOpen):
				if !sleep(ctx, c.poll) {
					return ctx.Err()
				}
				continue
			}
			c.rec.IngestError("fetch")
			c.log.Error("journal_consumer_fetch_error", slog.Any("err", err))
			if !sleep(ctx, c.poll) {
				return ctx.Err()
			}
			continue
		}

		// A store failure leaves the offset uncommitted and retries the same
		// message until it is stored or the consumer stops.
		for c.handle(ctx, msg) != nil {
			if !sleep(ctx, c.poll) {
				return ctx.Err()
			}
		}

		commitCtx, cancel := context.WithTimeout(ctx, c.poll)
		if err := c.reader.CommitMessages(commitCtx, msg); err != nil {
			if !(errors.Is(err, context.Canceled) && ctx.Err() != nil) {
				c.rec.IngestError("commit")
				c.log.Error("journal_consumer_commit_error", slog.Any("err", err))
			}
		}
		cancel()
	}
}

// fetch reads one message within the poll timeout. Poll timeouts are not
// breaker failures.
func (c *JournalConsumer) fetch(ctx context.Context) (kafka.Message, error) {
	var msg kafka.Message
	var idle error
	op := func(ctx context.Context) error {
		fetchCtx, cancel := context.WithTimeout(ctx, c.poll)
		defer cancel()
		m, err := c.reader.FetchMessage(fetchCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				idle = err
				return nil
			}
			return err
		}
		msg = m
		return nil
	}
	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, op)
	} else {
		err = op(ctx)
	}
	if err != nil {
		return kafka.Message{}, err
	}
	if idle != nil {
		return kafka.Message{}, idle
	}
	return msg, nil
}

// handle decodes and stores one message. Poison payloads (undecodable,
// invalid or duplicate entries) are logged and return nil so they get
// committed. Only store failures are returned.
func (c *JournalConsumer) handle(ctx context.Context, msg kafka.Message) error {
	ev, err := decodeJournalMessage(msg.Value)
	if err != nil {
		c.rec.IngestError("decode")
		c.log.Warn("journal_consumer_decode_error", slog.Any("err", err), slog.Int64("offset", msg.Offset))
		return nil
	}

	var id string
	switch ev.Kind {
	case KindSymptom:
		var stored journal.SymptomEntry
		stored, err = c.sink.AddSymptom(ctx, *ev.Symptom)
		id = stored.ID
	case KindFood:
		var stored journal.FoodEntry
		stored, err = c.sink.AddFood(ctx, *ev.Food)
		id = stored.ID
	}
	switch {
	case err == nil:
		c.rec.JournalEntry(ev.Kind, sourceKafka)
		c.log.Info("journal_event_stored", slog.String("kind", ev.Kind), slog.String("id", id), slog.Int64("offset", msg.Offset))
	case errors.Is(err, journal.ErrDuplicate):
		c.log.Info("journal_event_duplicate", slog.String("kind", ev.Kind), slog.Int64("offset", msg.Offset))
	case errors.Is(err, journal.ErrInvalidEntry):
		c.rec.IngestError("invalid")
		c.log.Warn("journal_event_invalid", slog.String("kind", ev.Kind), slog.Any("err", err), slog.Int64("offset", msg.Offset))
	default:
		c.rec.IngestError("store")
		c.log.Error("journal_event_store_error", slog.String("kind", ev.Kind), slog.Any("err", err), slog.Int64("offset", msg.Offset))
		return err
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
