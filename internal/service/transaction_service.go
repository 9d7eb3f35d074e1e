package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"floraledger/internal/config"
	"floraledger/internal/model"
	"floraledger/internal/repository"
	"floraledger/pkg/idgen"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Locker serializes ledger mutations of one transaction id across invocations.
type Locker interface {
	Acquire(ctx context.Context, transactionID string) (release func(), err error)
}

// TransactionService coordinates the append-only ledger with its inventory side effects.
//
// The ledger row is always written first. Inventory and audit effects run only after it is
// durable, so every deduction has a ledger row behind it.
type TransactionService struct {
	db         *gorm.DB
	ledgerRepo *repository.LedgerRepository
	outboxRepo *repository.OutboxRepository
	inventory  *InventoryService
	locker     Locker
	cfg        *config.Config
	loc        *time.Location
	now        func() time.Time
	newID      func() string
}

func NewTransactionService(db *gorm.DB, inventory *InventoryService, locker Locker, cfg *config.Config) *TransactionService {
	return &TransactionService{
		db:         db,
		ledgerRepo: repository.NewLedgerRepository(db),
		outboxRepo: repository.NewOutboxRepository(db),
		inventory:  inventory,
		locker:     locker,
		cfg:        cfg,
		loc:        shopLocation(cfg),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Today returns the shop-local calendar date.
func (s *TransactionService) Today() string {
	return s.now().In(s.loc).Format(model.DateLayout)
}

// ============================================================================
// Ledger primitives
// ============================================================================

// Insert appends a live row. It assigns a fresh transaction id and today's date when tx has
// none, and writes both back into tx.
func (s *TransactionService) Insert(ctx context.Context, tx *model.Transaction) (string, error) {
	if tx.TransactionID == "" {
		tx.TransactionID = s.newID()
	}
	if tx.Date == "" {
		tx.Date = s.Today()
	}
	tx.Operation = nil
	tx.IsDeleted = false

	err := s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		return s.appendRow(ctx, dbtx, tx, model.LedgerEventInserted)
	})
	if err != nil {
		return "", fmt.Errorf("%w: insert %s: %v", ErrPersistence, tx.TransactionID, err)
	}

	log.Info().Str("component", "ledger").Str("transaction_id", tx.TransactionID).Str("date", tx.Date).Msg("transaction inserted")
	return tx.TransactionID, nil
}

// SafeDelete appends a tombstone for the live row of transactionID.
func (s *TransactionService) SafeDelete(ctx context.Context, transactionID string) error {
	release, err := s.locker.Acquire(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("%w: lock %s: %v", ErrPersistence, transactionID, err)
	}
	defer release()

	_, err = s.safeDelete(ctx, transactionID)
	return err
}

// SafeEdit tombstones the live row of transactionID and appends payload as its new live row.
// The new row always carries transactionID, whatever payload says.
func (s *TransactionService) SafeEdit(ctx context.Context, transactionID string, payload *model.Transaction) error {
	release, err := s.locker.Acquire(ctx, transactionID)
	if err != nil {
		return fmt.Errorf("%w: lock %s: %v", ErrPersistence, transactionID, err)
	}
	defer release()

	_, err = s.safeEdit(ctx, transactionID, payload)
	return err
}

// GetTransactionByID returns the live state of transactionID.
func (s *TransactionService) GetTransactionByID(ctx context.Context, transactionID string) (*model.Transaction, error) {
	entry, err := s.ledgerRepo.GetLatest(ctx, transactionID)
	if errors.Is(err, repository.ErrTransactionNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, transactionID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lookup %s: %v", ErrPersistence, transactionID, err)
	}
	if !entry.IsLive() {
		return nil, fmt.Errorf("%w: %s was deleted", ErrNotFound, transactionID)
	}
	return entry.Transaction()
}

// GetHistory returns every physical row of transactionID, oldest first, tombstones included.
func (s *TransactionService) GetHistory(ctx context.Context, transactionID string) ([]*model.LedgerEntry, error) {
	entries, err := s.ledgerRepo.ListByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("%w: history of %s: %v", ErrPersistence, transactionID, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, transactionID)
	}
	return entries, nil
}

// GetLastTransactionID returns the id of the newest live transaction.
func (s *TransactionService) GetLastTransactionID(ctx context.Context) (string, error) {
	id, err := s.ledgerRepo.GetLastLiveTransactionID(ctx)
	if errors.Is(err, repository.ErrTransactionNotFound) {
		return "", fmt.Errorf("%w: ledger is empty", ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("%w: last transaction: %v", ErrPersistence, err)
	}
	return id, nil
}

// GetClosureReport aggregates one shop-local date under the configured closure policy.
//
// single_row counts only transaction ids that own exactly one physical row, so anything ever
// edited or deleted is left out. live_rows counts the current row of every live transaction.
func (s *TransactionService) GetClosureReport(ctx context.Context, date string) (*model.ClosureReport, error) {
	var (
		entries []*model.LedgerEntry
		err     error
	)
	switch s.cfg.Business.ClosurePolicy {
	case config.ClosurePolicyLiveRows:
		entries, err = s.ledgerRepo.ListLiveByDate(ctx, date)
	default:
		entries, err = s.ledgerRepo.ListSingleRowByDate(ctx, date)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: closure rows for %s: %v", ErrPersistence, date, err)
	}

	report := &model.ClosureReport{
		Date:          date,
		CashSales:     decimal.Zero,
		TransferSales: decimal.Zero,
		TotalExpenses: decimal.Zero,
	}
	for _, entry := range entries {
		tx, err := entry.Transaction()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		if tx.PaymentMethod != nil && tx.TotalSalePrice.Valid {
			switch *tx.PaymentMethod {
			case model.PaymentMethodCash:
				report.CashSales = report.CashSales.Add(tx.TotalSalePrice.Decimal)
			case model.PaymentMethodBankTransfer:
				report.TransferSales = report.TransferSales.Add(tx.TotalSalePrice.Decimal)
			}
		}
		report.TotalExpenses = report.TotalExpenses.Add(tx.ExpensesTotal())
		report.Transactions++
	}
	return report, nil
}

// ============================================================================
// Flows with inventory effects
// ============================================================================

// InsertResult is the outcome of recording a new transaction.
type InsertResult struct {
	Transaction *model.Transaction
	Issues      []model.InventoryIssue
}

// Record inserts tx and then deducts its sold lines from stock.
// A failed deduction is returned together with the already durable transaction.
func (s *TransactionService) Record(ctx context.Context, tx *model.Transaction) (*InsertResult, error) {
	if _, err := s.Insert(ctx, tx); err != nil {
		return nil, err
	}

	result := &InsertResult{Transaction: tx}
	if !tx.HasSales() {
		return result, nil
	}
	issues, err := s.inventory.Deduct(ctx, tx.Sales, tx.TransactionID)
	result.Issues = issues
	if err != nil {
		return result, fmt.Errorf("deduct inventory of %s: %w", tx.TransactionID, err)
	}
	return result, nil
}

// Remove deletes transactionID and puts its sold lines back into stock.
// It returns the state that was deleted.
func (s *TransactionService) Remove(ctx context.Context, transactionID string) (*model.Transaction, error) {
	release, err := s.locker.Acquire(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("%w: lock %s: %v", ErrPersistence, transactionID, err)
	}
	defer release()

	removed, err := s.safeDelete(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if err := s.inventory.RestoreSales(ctx, removed.Sales); err != nil {
		return removed, fmt.Errorf("restore inventory of %s: %w", transactionID, err)
	}
	return removed, nil
}

// EditResult is the outcome of replacing a transaction.
type EditResult struct {
	Previous *model.Transaction
	Current  *model.Transaction
	Issues   []model.InventoryIssue
}

// Amend replaces transactionID with payload, restores the stock of the previous sold lines and
// deducts the new ones.
func (s *TransactionService) Amend(ctx context.Context, transactionID string, payload *model.Transaction) (*EditResult, error) {
	release, err := s.locker.Acquire(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("%w: lock %s: %v", ErrPersistence, transactionID, err)
	}
	defer release()

	previous, err := s.safeEdit(ctx, transactionID, payload)
	if err != nil {
		return nil, err
	}

	result := &EditResult{Previous: previous, Current: payload}
	if err := s.inventory.RestoreSales(ctx, previous.Sales); err != nil {
		return result, fmt.Errorf("restore inventory of %s: %w", transactionID, err)
	}
	if payload.HasSales() {
		issues, err := s.inventory.Deduct(ctx, payload.Sales, transactionID)
		result.Issues = issues
		if err != nil {
			return result, fmt.Errorf("deduct inventory of %s: %w", transactionID, err)
		}
	}
	return result, nil
}

// ============================================================================
// Internals
// ============================================================================

// safeDelete expects the caller to hold the transaction lock.
func (s *TransactionService) safeDelete(ctx context.Context, transactionID string) (*model.Transaction, error) {
	live, err := s.GetTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		return s.appendTombstone(ctx, dbtx, live)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: delete %s: %v", ErrPersistence, transactionID, err)
	}

	log.Info().Str("component", "ledger").Str("transaction_id", transactionID).Msg("transaction deleted")
	return live, nil
}

// safeEdit expects the caller to hold the transaction lock. It returns the replaced state and
// rewrites payload into the new live state.
func (s *TransactionService) safeEdit(ctx context.Context, transactionID string, payload *model.Transaction) (*model.Transaction, error) {
	live, err := s.GetTransactionByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	payload.TransactionID = transactionID
	payload.Operation = nil
	payload.IsDeleted = false
	if payload.Date == "" {
		payload.Date = s.Today()
	}

	err = s.db.WithContext(ctx).Transaction(func(dbtx *gorm.DB) error {
		if err := s.appendTombstone(ctx, dbtx, live); err != nil {
			return err
		}
		return s.appendRow(ctx, dbtx, payload, model.LedgerEventEdited)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: edit %s: %v", ErrPersistence, transactionID, err)
	}

	log.Info().Str("component", "ledger").Str("transaction_id", transactionID).Msg("transaction edited")
	return live, nil
}

// appendTombstone writes a deleted copy of live, dated today.
func (s *TransactionService) appendTombstone(ctx context.Context, dbtx *gorm.DB, live *model.Transaction) error {
	tombstone := live.Clone()
	op := model.OperationDeleted
	tombstone.Operation = &op
	tombstone.IsDeleted = true
	tombstone.Date = s.Today()

	entry, err := model.NewLedgerEntry(tombstone)
	if err != nil {
		return err
	}
	if err := s.ledgerRepo.Create(ctx, dbtx, entry); err != nil {
		return err
	}
	return s.enqueueEvent(ctx, dbtx, model.LedgerEventDeleted, tombstone)
}

func (s *TransactionService) appendRow(ctx context.Context, dbtx *gorm.DB, tx *model.Transaction, eventType string) error {
	entry, err := model.NewLedgerEntry(tx)
	if err != nil {
		return err
	}
	if err := s.ledgerRepo.Create(ctx, dbtx, entry); err != nil {
		return err
	}
	return s.enqueueEvent(ctx, dbtx, eventType, tx)
}

// enqueueEvent writes the outbox message in the same database transaction as the ledger rows.
func (s *TransactionService) enqueueEvent(ctx context.Context, dbtx *gorm.DB, eventType string, tx *model.Transaction) error {
	if !s.cfg.Kafka.Enabled {
		return nil
	}

	event := model.LedgerEvent{
		EventNo:       idgen.GenerateEventNo(),
		Type:          eventType,
		TransactionID: tx.TransactionID,
		Date:          tx.Date,
		PaymentMethod: tx.PaymentMethod,
		ExpensesTotal: tx.ExpensesTotal().StringFixed(2),
		OccurredAt:    s.now().In(s.loc).Format(time.RFC3339),
	}
	if tx.TotalSalePrice.Valid {
		total := tx.TotalSalePrice.Decimal.StringFixed(2)
		event.TotalSalePrice = &total
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	return s.outboxRepo.Create(ctx, dbtx, &model.OutboxMessage{
		MessageKey: tx.TransactionID,
		Topic:      s.cfg.Kafka.Topic.LedgerEvents,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	})
}
