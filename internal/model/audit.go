package model

import (
	"time"
)

// Audit operation types, one per user-visible operation.
const (
	AuditUnauthorizedAccess  = "unauthorized_access"
	AuditDataInsert          = "data_insert"
	AuditEditTransaction     = "edit_transaction"
	AuditDeleteTransaction   = "delete_transaction"
	AuditClosureReport       = "closure_report"
	AuditBulkInventoryUpdate = "bulk_inventory_update"
	AuditInventoryLoss       = "inventory_loss"
)

// AuditLog is write-only: nothing in the service reads it back.
type AuditLog struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	AuditNo        string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"audit_no"`
	Timestamp      time.Time `gorm:"not null;index" json:"timestamp"`
	UserID         int64     `gorm:"index" json:"user_id"`
	ChatID         int64     `json:"chat_id"`
	OperationType  string    `gorm:"type:varchar(32);index;not null" json:"operation_type"`
	MessageContent string    `gorm:"type:text" json:"message_content"`
	UserName       string    `gorm:"type:varchar(128)" json:"user_name"`
	TransactionID  *string   `gorm:"type:varchar(64)" json:"transaction_id"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}
