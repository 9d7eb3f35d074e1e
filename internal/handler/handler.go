package handler

import (
	"context"
	"errors"
	"strconv"
	"time"

	"floraledger/internal/model"
	"floraledger/internal/repository"
	"floraledger/internal/service"
	"floraledger/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	defaultIssueLimit = 50
	maxIssueLimit     = 500
)

// LedgerReader is the read side of the transaction coordinator.
type LedgerReader interface {
	Today() string
	GetTransactionByID(ctx context.Context, transactionID string) (*model.Transaction, error)
	GetLastTransactionID(ctx context.Context) (string, error)
	GetHistory(ctx context.Context, transactionID string) ([]*model.LedgerEntry, error)
	GetClosureReport(ctx context.Context, date string) (*model.ClosureReport, error)
}

// InventoryAdmin is the inventory surface exposed to operators.
type InventoryAdmin interface {
	Get(ctx context.Context, item, quality string) (*model.InventoryItem, error)
	Update(ctx context.Context, item, quality string, quantity int) error
	AddSynonym(ctx context.Context, syn model.Synonym) error
	ListIssues(ctx context.Context, limit int) ([]model.InventoryIssue, error)
	ListLosses(ctx context.Context, limit int) ([]model.InventoryLoss, error)
}

// Handler serves the admin JSON API.
type Handler struct {
	ledger    LedgerReader
	inventory InventoryAdmin
}

func NewHandler(ledger LedgerReader, inventory InventoryAdmin) *Handler {
	return &Handler{ledger: ledger, inventory: inventory}
}

// ============================================================
// Transactions
// ============================================================

// GetTransaction returns the live state of a transaction.
// GET /api/v1/transaction/detail?transaction_id=xxx
func (h *Handler) GetTransaction(c *gin.Context) {
	transactionID := c.Query("transaction_id")
	if transactionID == "" {
		response.ParamError(c, "transaction_id is required")
		return
	}

	tx, err := h.ledger.GetTransactionByID(c.Request.Context(), transactionID)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, tx)
}

// GetTransactionHistory returns every physical row of a transaction, tombstones included.
// GET /api/v1/transaction/history?transaction_id=xxx
func (h *Handler) GetTransactionHistory(c *gin.Context) {
	transactionID := c.Query("transaction_id")
	if transactionID == "" {
		response.ParamError(c, "transaction_id is required")
		return
	}

	entries, err := h.ledger.GetHistory(c.Request.Context(), transactionID)
	if err != nil {
		respondError(c, err)
		return
	}

	rows := make([]*model.Transaction, 0, len(entries))
	for _, entry := range entries {
		tx, err := entry.Transaction()
		if err != nil {
			response.ServerError(c, err.Error())
			return
		}
		rows = append(rows, tx)
	}
	response.Success(c, gin.H{"transaction_id": transactionID, "rows": rows, "count": len(rows)})
}

// GetLastTransaction returns the id of the newest live transaction.
// GET /api/v1/transaction/last
func (h *Handler) GetLastTransaction(c *gin.Context) {
	id, err := h.ledger.GetLastTransactionID(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"transaction_id": id})
}

// GetClosureReport aggregates one day, today when date is omitted.
// GET /api/v1/report/closure?date=2024-01-01
func (h *Handler) GetClosureReport(c *gin.Context) {
	date := c.DefaultQuery("date", h.ledger.Today())
	if _, err := time.Parse(model.DateLayout, date); err != nil {
		response.ParamError(c, "date must be YYYY-MM-DD")
		return
	}

	report, err := h.ledger.GetClosureReport(c.Request.Context(), date)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{
		"date":           report.Date,
		"cash_sales":     report.CashSales.StringFixed(2),
		"transfer_sales": report.TransferSales.StringFixed(2),
		"total_expenses": report.TotalExpenses.StringFixed(2),
		"cash_on_hand":   report.CashOnHand().StringFixed(2),
		"transactions":   report.Transactions,
	})
}

// ============================================================
// Inventory
// ============================================================

// GetInventoryItem returns the stock of an item after synonym resolution.
// GET /api/v1/inventory/item?item=rosa&quality=regular
func (h *Handler) GetInventoryItem(c *gin.Context) {
	item := c.Query("item")
	if item == "" {
		response.ParamError(c, "item is required")
		return
	}

	inv, err := h.inventory.Get(c.Request.Context(), item, c.Query("quality"))
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, inv)
}

// UpdateInventoryRequest sets an absolute stock count.
type UpdateInventoryRequest struct {
	Item     string `json:"item" binding:"required"`
	Quality  string `json:"quality" binding:"omitempty,oneof=regular special"`
	Quantity *int   `json:"quantity" binding:"required,gte=0"`
}

// UpdateInventory
// POST /api/v1/inventory/update
func (h *Handler) UpdateInventory(c *gin.Context) {
	var req UpdateInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	if err := h.inventory.Update(c.Request.Context(), req.Item, req.Quality, *req.Quantity); err != nil {
		respondError(c, err)
		return
	}

	inv, err := h.inventory.Get(c.Request.Context(), req.Item, req.Quality)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, inv)
}

// AddSynonym maps an alias onto a canonical item.
// POST /api/v1/inventory/synonym
func (h *Handler) AddSynonym(c *gin.Context) {
	var req model.Synonym
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "invalid request: "+err.Error())
		return
	}

	if err := h.inventory.AddSynonym(c.Request.Context(), req); err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, req)
}

// ListInventoryIssues returns the most recent stock shortfalls.
// GET /api/v1/inventory/issues?limit=50
func (h *Handler) ListInventoryIssues(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	issues, err := h.inventory.ListIssues(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"issues": issues, "count": len(issues)})
}

// ListInventoryLosses returns the most recent recorded losses.
// GET /api/v1/inventory/losses?limit=50
func (h *Handler) ListInventoryLosses(c *gin.Context) {
	limit, ok := queryLimit(c)
	if !ok {
		return
	}

	losses, err := h.inventory.ListLosses(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	response.Success(c, gin.H{"losses": losses, "count": len(losses)})
}

// queryLimit reads ?limit, clamped to maxIssueLimit. It writes the error response itself.
func queryLimit(c *gin.Context) (int, bool) {
	limit := defaultIssueLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			response.ParamError(c, "limit must be a positive integer")
			return 0, false
		}
		limit = n
	}
	if limit > maxIssueLimit {
		limit = maxIssueLimit
	}
	return limit, true
}

func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		response.BusinessError(c, response.CodeTransactionNotFound, err.Error())
	case errors.Is(err, repository.ErrInventoryNotFound):
		response.BusinessError(c, response.CodeInventoryNotFound, err.Error())
	case errors.Is(err, service.ErrValidation):
		response.ParamError(c, err.Error())
	case errors.Is(err, service.ErrPersistence):
		response.BusinessError(c, response.CodePersistenceFailed, err.Error())
	case errors.Is(err, service.ErrExtraction):
		response.BusinessError(c, response.CodeExtractionFailed, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}
