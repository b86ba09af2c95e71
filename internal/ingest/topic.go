// v0
// internal/ingest/topic.go
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

const adminTimeout = 10 * time.Second

// TopicSpec describes the journal topic layout created by EnsureTopic.
type TopicSpec struct {
	Brokers           []string
	Topic             string
	Partitions        int
	ReplicationFactor int
}

func (s TopicSpec) validate() error {
	switch {
	case len(s.Brokers) == 0:
		return errors.New("at least one broker is required")
	case strings.TrimSpace(s.Topic) == "":
		return errors.New("topic must not be empty")
	case s.Partitions <= 0:
		return errors.New("partitions must be positive")
	case s.ReplicationFactor <= 0:
		return errors.New("replication factor must be positive")
	}
	return nil
}

// EnsureTopic creates the topic through the cluster controller unless it
// already exists, then reports the partition count the broker holds.
func EnsureTopic(ctx context.Context, log *slog.Logger, spec TopicSpec) (int, error) {
	if err := spec.validate(); err != nil {
		return 0, err
	}
	dialCtx, cancel := context.WithTimeout(ctx, adminTimeout)
	defer cancel()
	conn, err := kafka.DialContext(dialCtx, "tcp", spec.Brokers[0])
	if err != nil {
		return 0, fmt.Errorf("dial broker %s: %w", spec.Brokers[0], err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Warn("broker_close", slog.Any("err", cerr))
		}
	}()
	controller, err := conn.Controller()
	if err != nil {
		return 0, fmt.Errorf("fetch controller metadata: %w", err)
	}
	ctrlAddr := fmt.Sprintf("%s:%d", controller.Host, controller.Port)
	admin, err := kafka.DialContext(dialCtx, "tcp", ctrlAddr)
	if err != nil {
		return 0, fmt.Errorf("dial controller %s: %w", ctrlAddr, err)
	}
	defer func() {
		if cerr := admin.Close(); cerr != nil {
			log.Warn("controller_close", slog.Any("err", cerr))
		}
	}()
	if err := admin.SetDeadline(time.Now().Add(adminTimeout)); err != nil {
		log.Warn("controller_deadline", slog.Any("err", err))
	}

	err = admin.CreateTopics(kafka.TopicConfig{
		Topic:             spec.Topic,
		NumPartitions:     spec.Partitions,
		ReplicationFactor: spec.ReplicationFactor,
	})
	switch {
	case err == nil:
		log.Info("journal_topic_created",
			slog.String("topic", spec.Topic),
			slog.Int("partitions", spec.Partitions),
			slog.Int("replication", spec.ReplicationFactor),
		)
	case isAlreadyExists(err):
		log.Info("journal_topic_exists", slog.String("topic", spec.Topic))
	default:
		return 0, fmt.Errorf("create topic %s: %w", spec.Topic, err)
	}
	return readPartitions(admin, spec.Topic)
}

func readPartitions(conn *kafka.Conn, topic string) (int, error) {
	partitions, err := conn.ReadPartitions(topic)
	if err != nil {
		return 0, fmt.Errorf("read partitions for %s: %w", topic, err)
	}
	seen := map[int]struct{}{}
	for _, part := range partitions {
		if part.Topic == topic {
			seen[part.ID] = struct{}{}
		}
	}
	return len(seen), nil
}

func isAlreadyExists(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, kafka.TopicAlreadyExists) {
		return true
	}
	return strings.Contains(err.Error(), "Topic with this name already exists")
}
