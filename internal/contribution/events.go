package contribution

import (
	"context"
	"encoding/json"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"
)

// ContributionCompletedTopic is the topic every successful contribution is
// published to for downstream ledger-reconciliation and reporting
// consumers outside this engine's scope.
const ContributionCompletedTopic = "contribution.completed.v1"

// ContributionCompleted is the event payload published after every
// successful SaveContribution.
type ContributionCompleted struct {
	ContributionID string  `json:"contribution_id"`
	Kind           string  `json:"kind"`
	PublisherID    string  `json:"publisher_id"`
	Amount         float64 `json:"amount"`
	Source         string  `json:"source"`
}

// EventPublisher fires domain events. Publish failures are logged, never
// block or fail the contribution itself (fire-and-forget, matching the fee
// processor's own discipline).
type EventPublisher interface {
	PublishContributionCompleted(ctx context.Context, c Contribution)
}

// KafkaEventPublisher is the production EventPublisher, backed by
// confluent-kafka-go (teacher dependency).
type KafkaEventPublisher struct {
	producer *kafka.Producer
	logger   *zap.Logger
}

func NewKafkaEventPublisher(producer *kafka.Producer, logger *zap.Logger) *KafkaEventPublisher {
	return &KafkaEventPublisher{producer: producer, logger: logger}
}

func (p *KafkaEventPublisher) PublishContributionCompleted(ctx context.Context, c Contribution) {
	if p.producer == nil {
		return
	}
	evt := ContributionCompleted{
		ContributionID: c.ID,
		Kind:           c.ContributionType,
		PublisherID:    c.PublisherID,
		Amount:         c.Amount,
		Source:         c.Source,
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		p.logger.Error("failed to marshal contribution completed event", zap.Error(err))
		return
	}
	topic := ContributionCompletedTopic
	err = p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Key:            []byte(c.PublisherID),
		Value:          payload,
	}, nil)
	if err != nil {
		p.logger.Error("failed to enqueue contribution completed event", zap.Error(err), zap.String("contribution_id", c.ID))
	}
}

// NoopEventPublisher discards every event; used in tests and any
// deployment without a Kafka broker configured.
type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishContributionCompleted(context.Context, Contribution) {}
