package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// Ledger lifecycle event types carried by outbox messages.
const (
	LedgerEventInserted = "transaction.inserted"
	LedgerEventDeleted  = "transaction.deleted"
	LedgerEventEdited   = "transaction.edited"
)

// OutboxMessage is written in the same database transaction as the ledger rows it describes
// and relayed to Kafka afterwards.
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// LedgerEvent is the JSON payload of a ledger outbox message.
type LedgerEvent struct {
	EventNo        string  `json:"event_no"`
	Type           string  `json:"type"`
	TransactionID  string  `json:"transaction_id"`
	Date           string  `json:"date"`
	TotalSalePrice *string `json:"total_sale_price"`
	PaymentMethod  *string `json:"payment_method"`
	ExpensesTotal  string  `json:"expenses_total"`
	OccurredAt     string  `json:"occurred_at"`
}
