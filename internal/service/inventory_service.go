package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"floraledger/internal/config"
	"floraledger/internal/model"
	"floraledger/internal/repository"
	"floraledger/pkg/idgen"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// InventoryService keeps stock counts in step with recorded sales.
//
// Counters are read-modify-write without locking: two concurrent deductions of the same
// (item, quality) may lose an update. Shortfalls never fail an operation, they are recorded as
// issues and returned.
type InventoryService struct {
	inventoryRepo *repository.InventoryRepository
	loc           *time.Location
	now           func() time.Time
}

func NewInventoryService(redisClient *redis.Client, cfg *config.Config) *InventoryService {
	return &InventoryService{
		inventoryRepo: repository.NewInventoryRepository(redisClient, cfg.Business.InventoryKeyPrefix),
		loc:           shopLocation(cfg),
		now:           time.Now,
	}
}

// Resolve maps an alias onto its canonical (item, quality). Unknown names come back normalized
// but otherwise unchanged.
func (s *InventoryService) Resolve(ctx context.Context, item, quality string) (string, string, error) {
	item = normalizeName(item)
	quality = normalizeName(quality)
	if quality == "" {
		quality = model.QualityRegular
	}

	synonyms, err := s.inventoryRepo.ListSynonyms(ctx)
	if err != nil {
		return "", "", fmt.Errorf("%w: list synonyms: %v", ErrPersistence, err)
	}
	for _, syn := range synonyms {
		if !strings.EqualFold(syn.Alias, item) {
			continue
		}
		// synonyms stored before targets were normalized may still carry capitals
		if q := normalizeName(syn.Quality); q != "" {
			quality = q
		}
		return normalizeName(syn.Item), quality, nil
	}
	return item, quality, nil
}

// Deduct subtracts every sold line from stock and returns the shortfalls it found.
// A missing document skips the line; an insufficient one is still deducted, clamped at zero.
// Issues found before a store failure are still logged and returned with the error.
func (s *InventoryService) Deduct(ctx context.Context, sales []model.Sale, transactionID string) ([]model.InventoryIssue, error) {
	issues, err := s.deductLines(ctx, sales, transactionID)
	s.logIssues(ctx, transactionID, issues)
	return issues, err
}

func (s *InventoryService) deductLines(ctx context.Context, sales []model.Sale, transactionID string) ([]model.InventoryIssue, error) {
	var issues []model.InventoryIssue

	for _, sale := range sales {
		item, quality, err := s.Resolve(ctx, sale.Item, sale.Quality)
		if err != nil {
			return issues, err
		}
		requested := sale.Qty()

		current, err := s.inventoryRepo.Get(ctx, item, quality)
		if errors.Is(err, repository.ErrInventoryNotFound) {
			issues = append(issues, s.newIssue(transactionID, item, quality, requested, model.IssueReasonNotInInventory))
			continue
		}
		if err != nil {
			return issues, fmt.Errorf("%w: read inventory %s: %v", ErrPersistence, model.InventoryKey(item, quality), err)
		}

		if current.Quantity < requested {
			issues = append(issues, s.newIssue(transactionID, item, quality, requested, model.IssueReasonInsufficient))
		}

		remaining := current.Quantity - requested
		if remaining < 0 {
			remaining = 0
		}
		if err := s.inventoryRepo.SetQuantity(ctx, item, quality, remaining, s.now()); err != nil {
			return issues, fmt.Errorf("%w: write inventory %s: %v", ErrPersistence, model.InventoryKey(item, quality), err)
		}
	}
	return issues, nil
}

// logIssues appends issues to the persistent issue log. Append failures are only logged.
func (s *InventoryService) logIssues(ctx context.Context, transactionID string, issues []model.InventoryIssue) {
	if len(issues) == 0 {
		return
	}
	for i := range issues {
		if err := s.inventoryRepo.AppendIssue(ctx, &issues[i]); err != nil {
			log.Error().Str("component", "inventory").Err(err).Str("issue_no", issues[i].IssueNo).Msg("failed to log inventory issue")
		}
	}
	log.Warn().Str("component", "inventory").Str("transaction_id", transactionID).Int("issues", len(issues)).Msg("inventory issues")
}

// Restore puts a quantity back into stock. A missing document is created with that quantity.
func (s *InventoryService) Restore(ctx context.Context, item, quality string, quantity int) error {
	item, quality, err := s.Resolve(ctx, item, quality)
	if err != nil {
		return err
	}

	current, err := s.inventoryRepo.Get(ctx, item, quality)
	if errors.Is(err, repository.ErrInventoryNotFound) {
		return s.set(ctx, item, quality, quantity)
	}
	if err != nil {
		return fmt.Errorf("%w: read inventory %s: %v", ErrPersistence, model.InventoryKey(item, quality), err)
	}

	restored := current.Quantity + quantity
	if restored < 0 {
		restored = 0
	}
	if err := s.inventoryRepo.SetQuantity(ctx, item, quality, restored, s.now()); err != nil {
		return fmt.Errorf("%w: write inventory %s: %v", ErrPersistence, model.InventoryKey(item, quality), err)
	}
	return nil
}

// RestoreSales restores every sold line of a transaction.
func (s *InventoryService) RestoreSales(ctx context.Context, sales []model.Sale) error {
	for _, sale := range sales {
		if sale.Qty() <= 0 {
			continue
		}
		if err := s.Restore(ctx, sale.Item, sale.Quality, sale.Qty()); err != nil {
			return err
		}
	}
	return nil
}

// Update sets an absolute quantity, as done by a bulk intake.
func (s *InventoryService) Update(ctx context.Context, item, quality string, quantity int) error {
	item, quality, err := s.Resolve(ctx, item, quality)
	if err != nil {
		return err
	}
	return s.set(ctx, item, quality, quantity)
}

// RecordLoss deducts thrown away stock like a sale and appends every entry to the loss log.
func (s *InventoryService) RecordLoss(ctx context.Context, entries []model.InventoryEntry, actor Actor, original string) ([]model.InventoryIssue, error) {
	var issues []model.InventoryIssue
	timestamp := s.timestamp()

	for _, entry := range entries {
		quantity := entry.Quantity
		sale := model.Sale{Item: entry.Item, Quantity: &quantity, Quality: entry.Quality}
		found, err := s.Deduct(ctx, []model.Sale{sale}, model.LossTransactionID)
		issues = append(issues, found...)
		if err != nil {
			return issues, err
		}

		loss := &model.InventoryLoss{
			LossNo:          idgen.GenerateLossNo(),
			Timestamp:       timestamp,
			UserID:          actor.UserID,
			UserName:        actor.UserName,
			ChatID:          actor.ChatID,
			Item:            entry.Item,
			Quality:         entry.Quality,
			Quantity:        entry.Quantity,
			OriginalMessage: original,
		}
		if err := s.inventoryRepo.AppendLoss(ctx, loss); err != nil {
			return issues, fmt.Errorf("%w: append loss: %v", ErrPersistence, err)
		}
	}
	return issues, nil
}

// Get returns the stock of a resolved (item, quality).
func (s *InventoryService) Get(ctx context.Context, item, quality string) (*model.InventoryItem, error) {
	item, quality, err := s.Resolve(ctx, item, quality)
	if err != nil {
		return nil, err
	}
	return s.inventoryRepo.Get(ctx, item, quality)
}

func (s *InventoryService) AddSynonym(ctx context.Context, syn model.Synonym) error {
	syn.Alias = normalizeName(syn.Alias)
	syn.Item = normalizeName(syn.Item)
	syn.Quality = normalizeName(syn.Quality)
	if syn.Alias == "" || syn.Item == "" {
		return fmt.Errorf("%w: synonym needs alias and item", ErrValidation)
	}
	switch syn.Quality {
	case "", model.QualityRegular, model.QualitySpecial:
	default:
		return fmt.Errorf("%w: unknown quality %q", ErrValidation, syn.Quality)
	}
	if err := s.inventoryRepo.SaveSynonym(ctx, syn); err != nil {
		return fmt.Errorf("%w: save synonym: %v", ErrPersistence, err)
	}
	return nil
}

func (s *InventoryService) ListIssues(ctx context.Context, limit int) ([]model.InventoryIssue, error) {
	return s.inventoryRepo.ListIssues(ctx, limit)
}

func (s *InventoryService) ListLosses(ctx context.Context, limit int) ([]model.InventoryLoss, error) {
	return s.inventoryRepo.ListLosses(ctx, limit)
}

func (s *InventoryService) set(ctx context.Context, item, quality string, quantity int) error {
	if quantity < 0 {
		quantity = 0
	}
	if err := s.inventoryRepo.Set(ctx, item, quality, quantity, s.now()); err != nil {
		return fmt.Errorf("%w: write inventory %s: %v", ErrPersistence, model.InventoryKey(item, quality), err)
	}
	return nil
}

func (s *InventoryService) newIssue(transactionID, item, quality string, requested int, reason string) model.InventoryIssue {
	return model.InventoryIssue{
		IssueNo:       idgen.GenerateIssueNo(),
		Timestamp:     s.timestamp(),
		TransactionID: transactionID,
		Item:          item,
		Quality:       quality,
		RequestedQty:  requested,
		Reason:        reason,
	}
}

func (s *InventoryService) timestamp() string {
	return s.now().In(s.loc).Format(time.RFC3339)
}

// normalizeName folds an item or quality name onto its stock key form.
func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func shopLocation(cfg *config.Config) *time.Location {
	loc, err := cfg.Location()
	if err != nil {
		// LoadConfig already rejected an unknown zone
		return time.UTC
	}
	return loc
}
