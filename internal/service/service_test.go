package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"floraledger/internal/config"
	"floraledger/internal/infrastructure/database"
	"floraledger/internal/infrastructure/lock"
	"floraledger/internal/model"
	"floraledger/internal/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 2024-01-01 15:00 in El Salvador (UTC-6).
var fixedNow = time.Date(2024, 1, 1, 21, 0, 0, 0, time.UTC)

type testEnv struct {
	cfg       *config.Config
	db        *gorm.DB
	redis     *redis.Client
	mr        *miniredis.Miniredis
	ledger    *repository.LedgerRepository
	stock     *repository.InventoryRepository
	inventory *InventoryService
	txns      *TransactionService
	audit     *AuditService
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: 8080, Timezone: "America/El_Salvador"},
		Kafka: config.KafkaConfig{
			Enabled: true,
			Topic:   config.KafkaTopicConfig{LedgerEvents: "ledger_events"},
		},
		Telegram: config.TelegramConfig{
			OwnerID:           900,
			DeveloperID:       901,
			AllowedUsers:      []int64{100},
			LiveNotifications: true,
		},
		Business: config.BusinessConfig{
			ClosurePolicy:      config.ClosurePolicySingleRow,
			LockTTLSeconds:     30,
			OutboxMaxRetry:     3,
			InventoryKeyPrefix: "test",
		},
	}
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testConfig()

	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ledger.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	inventory := NewInventoryService(client, cfg)
	inventory.now = func() time.Time { return fixedNow }

	txns := NewTransactionService(db, inventory, lock.NewRedisLocker(client, cfg.LockTTL()), cfg)
	txns.now = func() time.Time { return fixedNow }

	audit := NewAuditService(db)
	audit.now = func() time.Time { return fixedNow }

	return &testEnv{
		cfg:       cfg,
		db:        db,
		redis:     client,
		mr:        mr,
		ledger:    repository.NewLedgerRepository(db),
		stock:     repository.NewInventoryRepository(client, cfg.Business.InventoryKeyPrefix),
		inventory: inventory,
		txns:      txns,
		audit:     audit,
	}
}

func (e *testEnv) setStock(t *testing.T, item, quality string, qty int) {
	t.Helper()
	require.NoError(t, e.stock.Set(context.Background(), item, quality, qty, fixedNow))
}

func (e *testEnv) stockOf(t *testing.T, item, quality string) int {
	t.Helper()
	inv, err := e.stock.Get(context.Background(), item, quality)
	require.NoError(t, err)
	return inv.Quantity
}

func (e *testEnv) rowCount(t *testing.T, transactionID string) int64 {
	t.Helper()
	rows, err := e.ledger.ListByTransactionID(context.Background(), transactionID)
	require.NoError(t, err)
	return int64(len(rows))
}

func ptr[T any](v T) *T { return &v }

func saleTx(item string, qty int, total int64, method string) *model.Transaction {
	return &model.Transaction{
		Sales:          []model.Sale{{Item: item, Quantity: ptr(qty), Quality: model.QualityRegular}},
		TotalSalePrice: decimal.NewNullDecimal(decimal.NewFromInt(total)),
		PaymentMethod:  ptr(method),
	}
}

func expenseTx(amount int64) *model.Transaction {
	return &model.Transaction{
		Expenses: []model.Expense{{Description: "papel", Amount: decimal.NewFromInt(amount)}},
	}
}
