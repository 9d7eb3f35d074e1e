package repository

import (
	"context"
	"errors"

	"floraledger/internal/model"

	"gorm.io/gorm"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
)

// LedgerRepository is the append-only transaction table. It can insert and query rows but
// deliberately has no update or delete method.
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Create appends one row. Pass tx to join a surrounding database transaction.
func (r *LedgerRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.LedgerEntry) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

// GetLatest returns the most recently appended row of a transaction_id, live or tombstone.
func (r *LedgerRepository) GetLatest(ctx context.Context, transactionID string) (*model.LedgerEntry, error) {
	var entry model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("id DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// ListByTransactionID returns the full physical history of a transaction_id, oldest first.
func (r *LedgerRepository) ListByTransactionID(ctx context.Context, transactionID string) ([]*model.LedgerEntry, error) {
	var entries []*model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

// ListSingleRowByDate returns live rows dated date whose transaction_id owns exactly one
// physical row, i.e. transactions that were never edited or deleted.
func (r *LedgerRepository) ListSingleRowByDate(ctx context.Context, date string) ([]*model.LedgerEntry, error) {
	untouched := r.db.
		Model(&model.LedgerEntry{}).
		Select("transaction_id").
		Group("transaction_id").
		Having("COUNT(*) = ?", 1)

	var entries []*model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("txn_date = ? AND operation IS NULL AND transaction_id IN (?)", date, untouched).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

// ListLiveByDate returns the current row of every transaction_id whose current row is live and
// dated date.
func (r *LedgerRepository) ListLiveByDate(ctx context.Context, date string) ([]*model.LedgerEntry, error) {
	var entries []*model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("txn_date = ? AND operation IS NULL AND is_deleted = ? AND id IN (?)", date, false, r.latestIDs()).
		Order("id ASC").
		Find(&entries).Error
	return entries, err
}

// GetLastLiveTransactionID returns the transaction_id of the newest live transaction by date.
func (r *LedgerRepository) GetLastLiveTransactionID(ctx context.Context) (string, error) {
	var entry model.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("operation IS NULL AND is_deleted = ? AND id IN (?)", false, r.latestIDs()).
		Order("txn_date DESC").
		Order("id DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrTransactionNotFound
		}
		return "", err
	}
	return entry.TransactionID, nil
}

func (r *LedgerRepository) latestIDs() *gorm.DB {
	return r.db.
		Model(&model.LedgerEntry{}).
		Select("MAX(id)").
		Group("transaction_id")
}
