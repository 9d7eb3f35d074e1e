package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ============================================================================
// Transaction vocabulary
// ============================================================================

const (
	QualityRegular = "regular"
	QualitySpecial = "special"
)

const (
	PaymentMethodCash         = "cash"
	PaymentMethodBankTransfer = "bank_transfer"
)

// OperationDeleted marks a tombstone row. Live rows carry a NULL operation.
const OperationDeleted = "deleted"

// DateLayout is the calendar date format used for ledger dates and report keys.
const DateLayout = "2006-01-02"

// Sale is one sold line of a transaction.
type Sale struct {
	Item      string              `json:"item"`
	Quantity  *int                `json:"quantity"`
	UnitPrice decimal.NullDecimal `json:"unit_price"`
	Quality   string              `json:"quality"`
}

// Qty returns the sold quantity, treating an unknown quantity as zero.
func (s Sale) Qty() int {
	if s.Quantity == nil {
		return 0
	}
	return *s.Quantity
}

// Expense is one expense line of a transaction.
type Expense struct {
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// Transaction is the logical state of one ledger row: what the extractor produced plus the
// identity and lifecycle columns.
type Transaction struct {
	TransactionID  string              `json:"transaction_id"`
	Date           string              `json:"date"`
	Sales          []Sale              `json:"sales"`
	Expenses       []Expense           `json:"expenses"`
	TotalSalePrice decimal.NullDecimal `json:"total_sale_price"`
	PaymentMethod  *string             `json:"payment_method"`
	Operation      *string             `json:"operation"`
	IsDeleted      bool                `json:"is_deleted"`
	SenderName     *string             `json:"sender_name"`
}

// HasSales reports whether the transaction carries at least one sold line.
func (t *Transaction) HasSales() bool {
	return len(t.Sales) > 0
}

// IsEmpty reports whether the transaction records neither sales nor expenses.
func (t *Transaction) IsEmpty() bool {
	return len(t.Sales) == 0 && len(t.Expenses) == 0
}

// ExpensesTotal sums every expense line.
func (t *Transaction) ExpensesTotal() decimal.Decimal {
	total := decimal.Zero
	for _, e := range t.Expenses {
		total = total.Add(e.Amount)
	}
	return total
}

// Clone returns a deep copy so callers can derive tombstones and edits without aliasing.
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.Sales = append([]Sale(nil), t.Sales...)
	for i, s := range c.Sales {
		if s.Quantity != nil {
			q := *s.Quantity
			c.Sales[i].Quantity = &q
		}
	}
	c.Expenses = append([]Expense(nil), t.Expenses...)
	c.PaymentMethod = cloneString(t.PaymentMethod)
	c.Operation = cloneString(t.Operation)
	c.SenderName = cloneString(t.SenderName)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// ============================================================================
// Ledger entry (physical row)
// ============================================================================

// LedgerEntry is one physical row of the append-only ledger.
//
// Rows are never updated or deleted. A transaction_id may own several rows: the original
// insert, tombstones (operation = "deleted") and re-inserts produced by edits. The row with the
// highest ID for a transaction_id is its current state.
type LedgerEntry struct {
	ID             int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionID  string              `gorm:"type:varchar(64);index;not null" json:"transaction_id"`
	Date           string              `gorm:"column:txn_date;type:varchar(10);index;not null" json:"date"`
	Sales          datatypes.JSON      `json:"sales"`
	Expenses       datatypes.JSON      `json:"expenses"`
	TotalSalePrice decimal.NullDecimal `gorm:"type:decimal(14,2)" json:"total_sale_price"`
	PaymentMethod  *string             `gorm:"type:varchar(20);index" json:"payment_method"`
	Operation      *string             `gorm:"type:varchar(20)" json:"operation"`
	IsDeleted      bool                `gorm:"not null;default:false" json:"is_deleted"`
	SenderName     *string             `gorm:"type:varchar(128)" json:"sender_name"`
	CreatedAt      time.Time           `gorm:"autoCreateTime;index" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entry"
}

// IsLive reports whether the row represents live state rather than a tombstone.
func (e *LedgerEntry) IsLive() bool {
	return e.Operation == nil && !e.IsDeleted
}

// NewLedgerEntry encodes a transaction into a row ready to be appended.
func NewLedgerEntry(t *Transaction) (*LedgerEntry, error) {
	sales := t.Sales
	if sales == nil {
		sales = []Sale{}
	}
	expenses := t.Expenses
	if expenses == nil {
		expenses = []Expense{}
	}
	salesJSON, err := json.Marshal(sales)
	if err != nil {
		return nil, fmt.Errorf("encode sales: %w", err)
	}
	expensesJSON, err := json.Marshal(expenses)
	if err != nil {
		return nil, fmt.Errorf("encode expenses: %w", err)
	}
	return &LedgerEntry{
		TransactionID:  t.TransactionID,
		Date:           t.Date,
		Sales:          datatypes.JSON(salesJSON),
		Expenses:       datatypes.JSON(expensesJSON),
		TotalSalePrice: t.TotalSalePrice,
		PaymentMethod:  cloneString(t.PaymentMethod),
		Operation:      cloneString(t.Operation),
		IsDeleted:      t.IsDeleted,
		SenderName:     cloneString(t.SenderName),
	}, nil
}

// Transaction decodes the row back into its logical form.
func (e *LedgerEntry) Transaction() (*Transaction, error) {
	t := &Transaction{
		TransactionID:  e.TransactionID,
		Date:           e.Date,
		TotalSalePrice: e.TotalSalePrice,
		PaymentMethod:  cloneString(e.PaymentMethod),
		Operation:      cloneString(e.Operation),
		IsDeleted:      e.IsDeleted,
		SenderName:     cloneString(e.SenderName),
	}
	if len(e.Sales) > 0 {
		if err := json.Unmarshal(e.Sales, &t.Sales); err != nil {
			return nil, fmt.Errorf("decode sales of %s: %w", e.TransactionID, err)
		}
	}
	if len(e.Expenses) > 0 {
		if err := json.Unmarshal(e.Expenses, &t.Expenses); err != nil {
			return nil, fmt.Errorf("decode expenses of %s: %w", e.TransactionID, err)
		}
	}
	return t, nil
}

// ============================================================================
// Closure report
// ============================================================================

// ClosureReport is the end-of-day aggregate for one shop-local date.
type ClosureReport struct {
	Date          string          `json:"date"`
	CashSales     decimal.Decimal `json:"cash_sales"`
	TransferSales decimal.Decimal `json:"transfer_sales"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	Transactions  int             `json:"transactions"`
}

// CashOnHand is derived, never stored.
func (r *ClosureReport) CashOnHand() decimal.Decimal {
	return r.CashSales.Sub(r.TotalExpenses)
}

// IsEmpty reports whether no transaction contributed to the report.
func (r *ClosureReport) IsEmpty() bool {
	return r.Transactions == 0
}
