package model

import (
	"fmt"
	"time"
)

// Inventory issue reasons.
const (
	IssueReasonNotInInventory = "does not exist in inventory"
	IssueReasonInsufficient   = "insufficient inventory"
)

// LossTransactionID tags deductions caused by a recorded loss rather than a sale.
const LossTransactionID = "PERDIDA"

// InventoryItem is the stock document of one (item, quality) key.
type InventoryItem struct {
	Item      string    `json:"item"`
	Quality   string    `json:"quality"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// InventoryKey is the deterministic document key of an (item, quality) pair.
func InventoryKey(item, quality string) string {
	return fmt.Sprintf("%s_%s", item, quality)
}

// Synonym maps a free-text alias onto a canonical item. An empty Quality keeps the caller's quality.
type Synonym struct {
	Alias   string `json:"alias" binding:"required"`
	Item    string `json:"item" binding:"required"`
	Quality string `json:"quality" binding:"omitempty,oneof=regular special"`
}

// InventoryEntry is one line of a bulk intake or loss message.
type InventoryEntry struct {
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
	Quality  string `json:"quality"`
}

// InventoryIssue is a stock shortfall recorded for later review. It never blocks a sale.
type InventoryIssue struct {
	IssueNo       string `json:"issue_no"`
	Timestamp     string `json:"timestamp"`
	TransactionID string `json:"transaction_id"`
	Item          string `json:"item"`
	Quality       string `json:"quality"`
	RequestedQty  int    `json:"requested_qty"`
	Reason        string `json:"reason"`
}

// InventoryLoss records stock thrown away or damaged.
type InventoryLoss struct {
	LossNo          string `json:"loss_no"`
	Timestamp       string `json:"timestamp"`
	UserID          int64  `json:"user_id"`
	UserName        string `json:"user_name"`
	ChatID          int64  `json:"chat_id"`
	Item            string `json:"item"`
	Quality         string `json:"quality"`
	Quantity        int    `json:"quantity"`
	OriginalMessage string `json:"original_message"`
}
