package repository

import (
	"context"
	"math"
	"testing"
	"time"

	"floraledger/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInventoryGetMissingDocument(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewInventoryRepository(client, "test")

	_, err := repo.Get(context.Background(), "rosa", model.QualityRegular)
	assert.ErrorIs(t, err, ErrInventoryNotFound)
}

func TestInventorySetAndMergeQuantity(t *testing.T) {
	client, mr := newTestRedis(t)
	repo := NewInventoryRepository(client, "test")
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Set(ctx, "rosa", model.QualitySpecial, 20, at))
	require.NoError(t, repo.SetQuantity(ctx, "rosa", model.QualitySpecial, 15, at.Add(time.Hour)))

	inv, err := repo.Get(ctx, "rosa", model.QualitySpecial)
	require.NoError(t, err)
	assert.Equal(t, 15, inv.Quantity)
	assert.Equal(t, "rosa", inv.Item)
	assert.Equal(t, model.QualitySpecial, inv.Quality)
	assert.True(t, inv.UpdatedAt.Equal(at.Add(time.Hour)))

	assert.Equal(t, "15", mr.HGet("test:inventory:rosa_special", "quantity"))
}

func TestInventoryCoercesMalformedQuantity(t *testing.T) {
	client, mr := newTestRedis(t)
	repo := NewInventoryRepository(client, "test")
	ctx := context.Background()

	cases := map[string]int{
		"7":                    7,
		"7.9":                  7,
		"doce":                 0,
		"":                     0,
		"-3":                   0,
		"1e400":                0,
		"Inf":                  0,
		"1e300":                math.MaxInt32,
		"4294967296":           math.MaxInt32,
		"99999999999999999999": math.MaxInt32,
	}
	for raw, want := range cases {
		mr.HSet("test:inventory:lirio_regular", "quantity", raw)
		inv, err := repo.Get(ctx, "lirio", model.QualityRegular)
		require.NoError(t, err)
		assert.Equal(t, want, inv.Quantity, "raw %q", raw)
	}
}

func TestInventorySynonymsAreListedByAlias(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewInventoryRepository(client, "test")
	ctx := context.Background()

	require.NoError(t, repo.SaveSynonym(ctx, model.Synonym{Alias: "rosa ecuador", Item: "rosa", Quality: model.QualitySpecial}))
	require.NoError(t, repo.SaveSynonym(ctx, model.Synonym{Alias: "girasoles", Item: "girasol"}))

	syns, err := repo.ListSynonyms(ctx)
	require.NoError(t, err)
	require.Len(t, syns, 2)
	assert.Equal(t, "girasoles", syns[0].Alias)
	assert.Equal(t, "rosa ecuador", syns[1].Alias)
	assert.Equal(t, model.QualitySpecial, syns[1].Quality)
}

func TestInventoryIssueAndLossLogsAppend(t *testing.T) {
	client, _ := newTestRedis(t)
	repo := NewInventoryRepository(client, "test")
	ctx := context.Background()

	for _, item := range []string{"rosa", "lirio", "tulipan"} {
		require.NoError(t, repo.AppendIssue(ctx, &model.InventoryIssue{Item: item, Reason: model.IssueReasonInsufficient}))
	}
	issues, err := repo.ListIssues(ctx, 2)
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, "lirio", issues[0].Item)
	assert.Equal(t, "tulipan", issues[1].Item)

	require.NoError(t, repo.AppendLoss(ctx, &model.InventoryLoss{Item: "rosa", Quantity: 3}))
	require.NoError(t, repo.AppendLoss(ctx, &model.InventoryLoss{Item: "lirio", Quantity: 1}))
	losses, err := repo.ListLosses(ctx, 10)
	require.NoError(t, err)
	require.Len(t, losses, 2)
	assert.Equal(t, "rosa", losses[0].Item)
	assert.Equal(t, 3, losses[0].Quantity)
}
