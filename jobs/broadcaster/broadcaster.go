package broadcaster

import (
	"context"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"tachyon/infra/outbox"
)

// Broadcaster drains the decomposed-event outbox to Kafka. Entries are
// marked sent before publish (idempotent) and acked only after the
// broker confirms, so a crash replays unacked entries on the next pass.
type Broadcaster struct {
	box      *outbox.Outbox
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	log      *zap.Logger
}

func New(box *outbox.Outbox, brokers []string, topic string, interval time.Duration, log *zap.Logger) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}
	return &Broadcaster{
		box:      box,
		producer: producer,
		topic:    topic,
		interval: interval,
		log:      log,
	}, nil
}

func (b *Broadcaster) Run(ctx context.Context) {
	b.log.Info("broadcaster started", zap.String("topic", b.topic))
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.drainOnce()
		}
	}
}

func (b *Broadcaster) drainOnce() {
	var maxAcked uint64
	_ = b.box.ScanPending(func(e *outbox.Entry) error {
		b.box.MarkSent(e.Seq)

		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Key:   sarama.StringEncoder(e.Key),
			Value: sarama.ByteEncoder(e.Payload),
		}
		if _, _, err := b.producer.SendMessage(msg); err != nil {
			b.log.Warn("publish failed, will retry",
				zap.Uint64("seq", e.Seq), zap.Error(err))
			return nil // leave for next pass
		}
		b.box.MarkAcked(e.Seq)
		if e.Seq > maxAcked {
			maxAcked = e.Seq
		}
		return nil
	})
	if maxAcked > 0 {
		b.box.TrimAcked(maxAcked)
	}
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
