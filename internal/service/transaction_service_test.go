package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"floraledger/internal/config"
	"floraledger/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertAssignsIdentityAndDate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tx := saleTx("rosa", 2, 10, model.PaymentMethodCash)
	id, err := env.txns.Insert(ctx, tx)
	require.NoError(t, err)

	assert.NotEmpty(t, id)
	assert.Equal(t, id, tx.TransactionID)
	assert.Equal(t, "2024-01-01", tx.Date)

	live, err := env.txns.GetTransactionByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, live.Operation)
	assert.False(t, live.IsDeleted)
	assert.True(t, live.TotalSalePrice.Decimal.Equal(decimal.NewFromInt(10)))
}

func TestInsertKeepsSuppliedIdentityAndDate(t *testing.T) {
	env := newTestEnv(t)
	tx := expenseTx(5)
	tx.TransactionID = "given-id"
	tx.Date = "2023-12-31"

	id, err := env.txns.Insert(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, "given-id", id)
	assert.Equal(t, "2023-12-31", tx.Date)
}

func TestInsertGeneratesDistinctIDs(t *testing.T) {
	env := newTestEnv(t)
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		id, err := env.txns.Insert(context.Background(), expenseTx(1))
		require.NoError(t, err)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestInsertWritesLedgerEventInSameTransaction(t *testing.T) {
	env := newTestEnv(t)
	id, err := env.txns.Insert(context.Background(), saleTx("rosa", 1, 3, model.PaymentMethodCash))
	require.NoError(t, err)

	var msgs []model.OutboxMessage
	require.NoError(t, env.db.Find(&msgs).Error)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].MessageKey)
	assert.Equal(t, "ledger_events", msgs[0].Topic)
	assert.Equal(t, model.OutboxStatusPending, msgs[0].Status)

	var event model.LedgerEvent
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Payload), &event))
	assert.Equal(t, model.LedgerEventInserted, event.Type)
	assert.Equal(t, id, event.TransactionID)
	require.NotNil(t, event.TotalSalePrice)
	assert.Equal(t, "3.00", *event.TotalSalePrice)
}

func TestInsertSkipsEventsWhenKafkaDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.cfg.Kafka.Enabled = false

	_, err := env.txns.Insert(context.Background(), expenseTx(2))
	require.NoError(t, err)

	var count int64
	require.NoError(t, env.db.Model(&model.OutboxMessage{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestInsertFailureIsPersistenceError(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Migrator().DropTable(&model.LedgerEntry{}))

	_, err := env.txns.Insert(context.Background(), expenseTx(2))
	assert.ErrorIs(t, err, ErrPersistence)
}

func TestSafeDeleteAppendsTombstone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tx := saleTx("rosa", 1, 3, model.PaymentMethodCash)
	tx.Date = "2023-12-20"
	id, err := env.txns.Insert(ctx, tx)
	require.NoError(t, err)

	require.NoError(t, env.txns.SafeDelete(ctx, id))
	assert.Equal(t, int64(2), env.rowCount(t, id))

	rows, err := env.ledger.ListByTransactionID(ctx, id)
	require.NoError(t, err)
	// original row untouched
	assert.True(t, rows[0].IsLive())
	assert.Equal(t, "2023-12-20", rows[0].Date)
	// tombstone dated on deletion day
	require.NotNil(t, rows[1].Operation)
	assert.Equal(t, model.OperationDeleted, *rows[1].Operation)
	assert.True(t, rows[1].IsDeleted)
	assert.Equal(t, "2024-01-01", rows[1].Date)
	assert.True(t, rows[1].TotalSalePrice.Decimal.Equal(decimal.NewFromInt(3)))

	_, err = env.txns.GetTransactionByID(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSafeDeleteTwiceFailsWithoutNewRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.txns.Insert(ctx, expenseTx(4))
	require.NoError(t, err)
	require.NoError(t, env.txns.SafeDelete(ctx, id))

	err = env.txns.SafeDelete(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int64(2), env.rowCount(t, id))
}

func TestSafeDeleteUnknownID(t *testing.T) {
	env := newTestEnv(t)
	err := env.txns.SafeDelete(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, env.rowCount(t, "nope"))
}

func TestSafeEditAppendsTombstoneAndLiveRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.txns.Insert(ctx, saleTx("rosa", 1, 3, model.PaymentMethodCash))
	require.NoError(t, err)

	payload := saleTx("girasol", 2, 8, model.PaymentMethodBankTransfer)
	payload.TransactionID = "something-else"
	payload.Operation = ptr(model.OperationDeleted)
	payload.IsDeleted = true
	require.NoError(t, env.txns.SafeEdit(ctx, id, payload))

	rows, err := env.ledger.ListByTransactionID(ctx, id)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.False(t, rows[1].IsLive())
	assert.True(t, rows[2].IsLive())

	live, err := env.txns.GetTransactionByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, live.TransactionID)
	assert.Equal(t, "girasol", live.Sales[0].Item)
	assert.Equal(t, model.PaymentMethodBankTransfer, *live.PaymentMethod)

	assert.Zero(t, env.rowCount(t, "something-else"))
}

func TestSafeEditRequiresLiveRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.txns.Insert(ctx, expenseTx(4))
	require.NoError(t, err)
	require.NoError(t, env.txns.SafeDelete(ctx, id))

	err = env.txns.SafeEdit(ctx, id, expenseTx(9))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, int64(2), env.rowCount(t, id))
}

func TestLedgerOnlyGrowsAndKeepsOneLiveState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	id, err := env.txns.Insert(ctx, expenseTx(1))
	require.NoError(t, err)

	steps := []func() error{
		func() error { return env.txns.SafeEdit(ctx, id, expenseTx(2)) },
		func() error { return env.txns.SafeEdit(ctx, id, expenseTx(3)) },
		func() error { return env.txns.SafeDelete(ctx, id) },
		func() error { return env.txns.SafeDelete(ctx, id) },
		func() error { return env.txns.SafeEdit(ctx, id, expenseTx(4)) },
	}

	before, err := env.ledger.ListByTransactionID(ctx, id)
	require.NoError(t, err)
	for _, step := range steps {
		_ = step()
		after, err := env.ledger.ListByTransactionID(ctx, id)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(after), len(before))
		// earlier rows are never rewritten
		for i := range before {
			assert.Equal(t, before[i].ID, after[i].ID)
			assert.Equal(t, before[i].Operation, after[i].Operation)
			assert.Equal(t, before[i].Date, after[i].Date)
			assert.JSONEq(t, string(before[i].Expenses), string(after[i].Expenses))
		}
		before = after
	}
	assert.Len(t, before, 6)

	_, err = env.txns.GetTransactionByID(ctx, id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClosureReportAggregatesDay(t *testing.T) {
	for _, policy := range []string{config.ClosurePolicySingleRow, config.ClosurePolicyLiveRows} {
		t.Run(policy, func(t *testing.T) {
			env := newTestEnv(t)
			env.cfg.Business.ClosurePolicy = policy
			ctx := context.Background()

			cash := saleTx("rosa", 1, 100, model.PaymentMethodCash)
			cash.Date = "2024-01-01"
			transfer := saleTx("lirio", 1, 50, model.PaymentMethodBankTransfer)
			transfer.Date = "2024-01-01"
			expense := expenseTx(30)
			expense.Date = "2024-01-01"
			other := saleTx("rosa", 1, 999, model.PaymentMethodCash)
			other.Date = "2024-01-02"

			for _, tx := range []*model.Transaction{cash, transfer, expense, other} {
				_, err := env.txns.Insert(ctx, tx)
				require.NoError(t, err)
			}

			report, err := env.txns.GetClosureReport(ctx, "2024-01-01")
			require.NoError(t, err)
			assert.True(t, report.CashSales.Equal(decimal.NewFromInt(100)), report.CashSales.String())
			assert.True(t, report.TransferSales.Equal(decimal.NewFromInt(50)))
			assert.True(t, report.TotalExpenses.Equal(decimal.NewFromInt(30)))
			assert.True(t, report.CashOnHand().Equal(decimal.NewFromInt(70)))
			assert.Equal(t, 3, report.Transactions)
		})
	}
}

func TestClosureReportEmptyDay(t *testing.T) {
	env := newTestEnv(t)
	report, err := env.txns.GetClosureReport(context.Background(), "2030-05-05")
	require.NoError(t, err)
	assert.True(t, report.IsEmpty())
	assert.True(t, report.CashSales.IsZero())
	assert.True(t, report.CashOnHand().IsZero())
}

func TestClosurePoliciesDisagreeOnEditedTransactions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	edited := saleTx("rosa", 1, 40, model.PaymentMethodCash)
	id, err := env.txns.Insert(ctx, edited)
	require.NoError(t, err)
	require.NoError(t, env.txns.SafeEdit(ctx, id, saleTx("rosa", 2, 80, model.PaymentMethodCash)))

	deleted := saleTx("rosa", 1, 10, model.PaymentMethodCash)
	delID, err := env.txns.Insert(ctx, deleted)
	require.NoError(t, err)
	require.NoError(t, env.txns.SafeDelete(ctx, delID))

	_, err = env.txns.Insert(ctx, saleTx("rosa", 1, 5, model.PaymentMethodCash))
	require.NoError(t, err)

	env.cfg.Business.ClosurePolicy = config.ClosurePolicySingleRow
	single, err := env.txns.GetClosureReport(ctx, "2024-01-01")
	require.NoError(t, err)
	assert.True(t, single.CashSales.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, 1, single.Transactions)

	env.cfg.Business.ClosurePolicy = config.ClosurePolicyLiveRows
	live, err := env.txns.GetClosureReport(ctx, "2024-01-01")
	require.NoError(t, err)
	assert.True(t, live.CashSales.Equal(decimal.NewFromInt(85)), live.CashSales.String())
	assert.Equal(t, 2, live.Transactions)
}

func TestGetHistoryIncludesTombstones(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id, err := env.txns.Insert(ctx, saleTx("rosa", 1, 10, model.PaymentMethodCash))
	require.NoError(t, err)
	require.NoError(t, env.txns.SafeEdit(ctx, id, saleTx("rosa", 2, 20, model.PaymentMethodCash)))

	history, err := env.txns.GetHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.True(t, history[0].IsLive())
	assert.False(t, history[1].IsLive())
	assert.True(t, history[2].IsLive())

	_, err = env.txns.GetHistory(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetLastTransactionID(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.txns.GetLastTransactionID(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	first, err := env.txns.Insert(ctx, expenseTx(1))
	require.NoError(t, err)
	second, err := env.txns.Insert(ctx, expenseTx(2))
	require.NoError(t, err)

	last, err := env.txns.GetLastTransactionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, last)

	require.NoError(t, env.txns.SafeDelete(ctx, second))
	last, err = env.txns.GetLastTransactionID(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, last)
}

func TestRecordDeductsAfterInsert(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.setStock(t, "rosa", model.QualityRegular, 5)

	result, err := env.txns.Record(ctx, saleTx("rosa", 12, 24, model.PaymentMethodCash))
	require.NoError(t, err)

	require.Len(t, result.Issues, 1)
	issue := result.Issues[0]
	assert.Equal(t, "rosa", issue.Item)
	assert.Equal(t, model.QualityRegular, issue.Quality)
	assert.Equal(t, model.IssueReasonInsufficient, issue.Reason)
	assert.Equal(t, result.Transaction.TransactionID, issue.TransactionID)

	assert.Equal(t, 0, env.stockOf(t, "rosa", model.QualityRegular))
	assert.Equal(t, int64(1), env.rowCount(t, result.Transaction.TransactionID))
}

func TestRecordKeepsLedgerRowWhenInventoryFails(t *testing.T) {
	env := newTestEnv(t)
	env.mr.SetError("inventory down")

	result, err := env.txns.Record(context.Background(), saleTx("rosa", 1, 2, model.PaymentMethodCash))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	require.NotNil(t, result)

	env.mr.SetError("")
	assert.Equal(t, int64(1), env.rowCount(t, result.Transaction.TransactionID))
}

func TestRemoveRestoresInventory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.setStock(t, "rosa", model.QualityRegular, 10)

	result, err := env.txns.Record(ctx, saleTx("rosa", 4, 8, model.PaymentMethodCash))
	require.NoError(t, err)
	assert.Equal(t, 6, env.stockOf(t, "rosa", model.QualityRegular))

	removed, err := env.txns.Remove(ctx, result.Transaction.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, "rosa", removed.Sales[0].Item)
	assert.Equal(t, 10, env.stockOf(t, "rosa", model.QualityRegular))

	_, err = env.txns.Remove(ctx, result.Transaction.TransactionID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 10, env.stockOf(t, "rosa", model.QualityRegular))
}

func TestAmendRestoresThenDeducts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.setStock(t, "rosa", model.QualityRegular, 10)
	env.setStock(t, "girasol", model.QualityRegular, 3)

	result, err := env.txns.Record(ctx, saleTx("rosa", 4, 8, model.PaymentMethodCash))
	require.NoError(t, err)
	id := result.Transaction.TransactionID

	edit, err := env.txns.Amend(ctx, id, saleTx("girasol", 5, 10, model.PaymentMethodCash))
	require.NoError(t, err)

	assert.Equal(t, "rosa", edit.Previous.Sales[0].Item)
	assert.Equal(t, id, edit.Current.TransactionID)
	assert.Equal(t, 10, env.stockOf(t, "rosa", model.QualityRegular))
	assert.Equal(t, 0, env.stockOf(t, "girasol", model.QualityRegular))
	require.Len(t, edit.Issues, 1)
	assert.Equal(t, model.IssueReasonInsufficient, edit.Issues[0].Reason)
}

func TestAmendSameItemNetsOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.setStock(t, "rosa", model.QualityRegular, 10)

	result, err := env.txns.Record(ctx, saleTx("rosa", 4, 8, model.PaymentMethodCash))
	require.NoError(t, err)

	_, err = env.txns.Amend(ctx, result.Transaction.TransactionID, saleTx("rosa", 6, 12, model.PaymentMethodCash))
	require.NoError(t, err)
	assert.Equal(t, 4, env.stockOf(t, "rosa", model.QualityRegular))
}

type busyLocker struct{}

func (busyLocker) Acquire(context.Context, string) (func(), error) {
	return nil, errors.New("lock held")
}

func TestDeleteFailsWhenLockUnavailable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id, err := env.txns.Insert(ctx, expenseTx(1))
	require.NoError(t, err)

	env.txns.locker = busyLocker{}
	err = env.txns.SafeDelete(ctx, id)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, int64(1), env.rowCount(t, id))
}
