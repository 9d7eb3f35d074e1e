package service

import (
	"context"
	"time"

	"floraledger/internal/model"
	"floraledger/internal/repository"
	"floraledger/pkg/idgen"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Actor identifies who triggered an operation.
type Actor struct {
	UserID   int64
	ChatID   int64
	UserName string
}

// AuditService appends one entry per user-visible operation. Writes are best-effort.
type AuditService struct {
	auditRepo *repository.AuditRepository
	now       func() time.Time
}

func NewAuditService(db *gorm.DB) *AuditService {
	return &AuditService{
		auditRepo: repository.NewAuditRepository(db),
		now:       time.Now,
	}
}

// Record writes the entry and only logs a failure.
func (s *AuditService) Record(ctx context.Context, actor Actor, operationType, message string, transactionID *string) {
	entry := &model.AuditLog{
		AuditNo:        idgen.GenerateAuditNo(),
		Timestamp:      s.now(),
		UserID:         actor.UserID,
		ChatID:         actor.ChatID,
		OperationType:  operationType,
		MessageContent: message,
		UserName:       actor.UserName,
		TransactionID:  transactionID,
	}

	if err := s.auditRepo.Create(ctx, entry); err != nil {
		log.Error().
			Str("component", "audit").
			Err(err).
			Str("operation_type", operationType).
			Int64("user_id", actor.UserID).
			Msg("failed to write audit entry")
	}
}
