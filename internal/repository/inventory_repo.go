package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"floraledger/internal/model"

	"github.com/go-redis/redis/v8"
)

var (
	ErrInventoryNotFound = errors.New("inventory item not found")
)

const (
	fieldItem      = "item"
	fieldQuality   = "quality"
	fieldQuantity  = "quantity"
	fieldUpdatedAt = "updated_at"
)

// InventoryRepository keeps one Redis hash per (item, quality) document, a synonym hash and
// append-only issue and loss lists.
type InventoryRepository struct {
	client *redis.Client
	prefix string
}

func NewInventoryRepository(client *redis.Client, prefix string) *InventoryRepository {
	return &InventoryRepository{client: client, prefix: prefix}
}

func (r *InventoryRepository) itemKey(item, quality string) string {
	return fmt.Sprintf("%s:inventory:%s", r.prefix, model.InventoryKey(item, quality))
}

func (r *InventoryRepository) synonymsKey() string {
	return r.prefix + ":inventory_synonyms"
}

func (r *InventoryRepository) issuesKey() string {
	return r.prefix + ":inventory_issues"
}

func (r *InventoryRepository) lossesKey() string {
	return r.prefix + ":inventory_losses"
}

// Get reads a stock document. Malformed stored quantities read as 0 instead of failing.
func (r *InventoryRepository) Get(ctx context.Context, item, quality string) (*model.InventoryItem, error) {
	fields, err := r.client.HGetAll(ctx, r.itemKey(item, quality)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, ErrInventoryNotFound
	}

	inv := &model.InventoryItem{
		Item:     item,
		Quality:  quality,
		Quantity: coerceQuantity(fields[fieldQuantity]),
	}
	if v, ok := fields[fieldItem]; ok && v != "" {
		inv.Item = v
	}
	if v, ok := fields[fieldQuality]; ok && v != "" {
		inv.Quality = v
	}
	if v, ok := fields[fieldUpdatedAt]; ok {
		if ts, err := time.Parse(time.RFC3339, v); err == nil {
			inv.UpdatedAt = ts
		}
	}
	return inv, nil
}

// Set merges the full document: identity fields and an absolute quantity.
func (r *InventoryRepository) Set(ctx context.Context, item, quality string, quantity int, at time.Time) error {
	return r.client.HSet(ctx, r.itemKey(item, quality),
		fieldItem, item,
		fieldQuality, quality,
		fieldQuantity, quantity,
		fieldUpdatedAt, at.Format(time.RFC3339),
	).Err()
}

// SetQuantity merges only the quantity of an existing document.
func (r *InventoryRepository) SetQuantity(ctx context.Context, item, quality string, quantity int, at time.Time) error {
	return r.client.HSet(ctx, r.itemKey(item, quality),
		fieldQuantity, quantity,
		fieldUpdatedAt, at.Format(time.RFC3339),
	).Err()
}

// ListSynonyms returns every synonym ordered by alias. Undecodable entries are skipped.
func (r *InventoryRepository) ListSynonyms(ctx context.Context) ([]model.Synonym, error) {
	raw, err := r.client.HGetAll(ctx, r.synonymsKey()).Result()
	if err != nil {
		return nil, err
	}
	aliases := make([]string, 0, len(raw))
	for alias := range raw {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)

	synonyms := make([]model.Synonym, 0, len(raw))
	for _, alias := range aliases {
		var syn model.Synonym
		if err := json.Unmarshal([]byte(raw[alias]), &syn); err != nil {
			continue
		}
		if syn.Alias == "" {
			syn.Alias = alias
		}
		synonyms = append(synonyms, syn)
	}
	return synonyms, nil
}

func (r *InventoryRepository) SaveSynonym(ctx context.Context, syn model.Synonym) error {
	payload, err := json.Marshal(syn)
	if err != nil {
		return err
	}
	return r.client.HSet(ctx, r.synonymsKey(), syn.Alias, payload).Err()
}

func (r *InventoryRepository) AppendIssue(ctx context.Context, issue *model.InventoryIssue) error {
	return r.appendJSON(ctx, r.issuesKey(), issue)
}

// ListIssues returns up to limit most recent issues, oldest first.
func (r *InventoryRepository) ListIssues(ctx context.Context, limit int) ([]model.InventoryIssue, error) {
	return listJSON[model.InventoryIssue](ctx, r.client, r.issuesKey(), limit)
}

func (r *InventoryRepository) AppendLoss(ctx context.Context, loss *model.InventoryLoss) error {
	return r.appendJSON(ctx, r.lossesKey(), loss)
}

// ListLosses returns up to limit most recent losses, oldest first.
func (r *InventoryRepository) ListLosses(ctx context.Context, limit int) ([]model.InventoryLoss, error) {
	return listJSON[model.InventoryLoss](ctx, r.client, r.lossesKey(), limit)
}

func (r *InventoryRepository) appendJSON(ctx context.Context, key string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.client.RPush(ctx, key, payload).Err()
}

// listJSON decodes the last limit entries of a JSON list. Undecodable entries are skipped.
func listJSON[T any](ctx context.Context, client *redis.Client, key string, limit int) ([]T, error) {
	raw, err := client.LRange(ctx, key, int64(-limit), -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(raw))
	for _, s := range raw {
		var v T
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func coerceQuantity(raw string) int {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n < 0 {
			return 0
		}
		if n > math.MaxInt32 {
			return math.MaxInt32
		}
		return int(n)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	if f > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Trunc(f))
}
