package job

import (
	"context"
	"time"

	"floraledger/internal/config"
	"floraledger/internal/model"
	"floraledger/internal/repository"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Publisher delivers one keyed message to the event bus.
type Publisher interface {
	SendMessage(topic, key, value string) error
}

// OutboxSender relays pending ledger events to Kafka. A message that keeps failing is parked
// as FAILED after business.outbox_max_retry attempts.
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  Publisher
	cfg        *config.Config
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, publisher Publisher, cfg *config.Config) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		cfg:        cfg,
		stopCh:     make(chan struct{}),
		interval:   500 * time.Millisecond,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	log.Info().Str("component", "outbox_sender").Msg("started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("component", "outbox_sender").Msg("context done, exiting")
			return
		case <-s.stopCh:
			log.Info().Str("component", "outbox_sender").Msg("stopped")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		log.Error().Str("component", "outbox_sender").Err(err).Msg("failed to load pending messages")
		return
	}

	for _, msg := range messages {
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	err := s.publisher.SendMessage(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if err := s.outboxRepo.MarkSent(ctx, msg.ID); err != nil {
			log.Error().Str("component", "outbox_sender").Err(err).Int64("id", msg.ID).Msg("failed to mark message sent")
			return
		}
		log.Debug().Str("component", "outbox_sender").Int64("id", msg.ID).Str("key", msg.MessageKey).Msg("message sent")
		return
	}

	log.Warn().Str("component", "outbox_sender").Err(err).Int64("id", msg.ID).Msg("send failed")

	parked, err := s.outboxRepo.RecordFailure(ctx, msg, s.cfg.Business.OutboxMaxRetry)
	if err != nil {
		log.Error().Str("component", "outbox_sender").Err(err).Int64("id", msg.ID).Msg("failed to record send failure")
		return
	}
	if parked {
		log.Error().Str("component", "outbox_sender").Int64("id", msg.ID).Int("retries", msg.RetryCount+1).Msg("message parked after max retries")
	}
}
