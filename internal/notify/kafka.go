package notify

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	kafka "github.com/segmentio/kafka-go"

	"github.com/alexanderjulianmartinez/quality-watch/internal/config"
	"github.com/alexanderjulianmartinez/quality-watch/internal/pipeline"
)

const publishTimeout = 10 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher sends each run summary to a Kafka topic, keyed by table name so
// that summaries for one table stay ordered within a partition.
type Publisher struct {
	w messageWriter
}

func NewPublisher(cfg config.KafkaConfig) (*Publisher, error) {
	var brokers []string
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("no kafka brokers provided")
	}
	return &Publisher{w: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}}, nil
}

func (p *Publisher) Name() string {
	return "kafka"
}

func (p *Publisher) Publish(ctx context.Context, run *pipeline.Run) error {
	msg, err := message(run)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return errors.Wrap(err, "publish summary")
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.w.Close()
}

func message(run *pipeline.Run) (kafka.Message, error) {
	value, err := json.Marshal(run.Summary)
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, "encode summary")
	}
	persisted := run.WriteErr == nil
	return kafka.Message{
		Key:   []byte(run.Summary.TableName),
		Value: value,
		Time:  run.Summary.SchemaCheckResult.ExecutionDT.Time,
		Headers: []kafka.Header{
			{Key: "run_id", Value: []byte(run.Summary.RunID)},
			{Key: "is_passed", Value: []byte(strconv.FormatBool(run.Summary.IsPassed))},
			{Key: "persisted", Value: []byte(strconv.FormatBool(persisted))},
		},
	}, nil
}
