package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"floraledger/internal/config"
	"floraledger/internal/model"

	"github.com/rs/zerolog/log"
)

// Extractor interprets free-text shop messages.
type Extractor interface {
	Interpret(ctx context.Context, message string) (*model.Transaction, error)
	InterpretInventory(ctx context.Context, message string) ([]model.InventoryEntry, error)
	Summarize(ctx context.Context, tx *model.Transaction, original string) (string, error)
}

// Notifier delivers chat messages.
type Notifier interface {
	Send(chatID int64, text string) error
	SendCode(chatID int64, text string) error
}

// IncomingMessage is one text message received by the bot.
type IncomingMessage struct {
	UpdateID int
	ChatID   int64
	UserID   int64
	UserName string
	Text     string
}

const (
	actionInsert    = "insertar"
	actionDelete    = "eliminar"
	actionEdit      = "editar"
	actionClosure   = "cierre"
	actionInventory = "inventario"
	actionLoss      = "perdida"
)

// BotService maps chat commands onto the ledger and inventory operations and turns every
// outcome into a reply. It is the boundary where errors stop propagating.
type BotService struct {
	txns      *TransactionService
	inventory *InventoryService
	audit     *AuditService
	extractor Extractor
	notifier  Notifier
	cfg       *config.Config
	allowed   map[int64]bool
}

func NewBotService(txns *TransactionService, inventory *InventoryService, audit *AuditService, extractor Extractor, notifier Notifier, cfg *config.Config) *BotService {
	allowed := make(map[int64]bool, len(cfg.Telegram.AllowedUsers))
	for _, id := range cfg.Telegram.AllowedUsers {
		allowed[id] = true
	}
	return &BotService{
		txns:      txns,
		inventory: inventory,
		audit:     audit,
		extractor: extractor,
		notifier:  notifier,
		cfg:       cfg,
		allowed:   allowed,
	}
}

// HandleMessage routes one message. Commands are matched case-insensitively by prefix.
func (s *BotService) HandleMessage(ctx context.Context, msg IncomingMessage) {
	actor := Actor{UserID: msg.UserID, ChatID: msg.ChatID, UserName: msg.UserName}

	if !s.allowed[msg.UserID] {
		s.handleUnauthorized(ctx, msg, actor)
		return
	}

	text := strings.TrimSpace(msg.Text)
	command := strings.ToLower(text)

	var (
		action string
		err    error
	)
	switch {
	case command == "/start":
		s.reply(msg.ChatID, msgGreeting)
		return
	case strings.HasPrefix(command, actionDelete):
		action = actionDelete
		err = s.handleDelete(ctx, msg, actor, text)
	case strings.HasPrefix(command, actionEdit):
		action = actionEdit
		err = s.handleEdit(ctx, msg, actor, text)
	case strings.HasPrefix(command, actionClosure):
		action = actionClosure
		err = s.handleClosure(ctx, msg, actor, text)
	case strings.HasPrefix(command, actionInventory+":"):
		action = actionInventory
		err = s.handleInventoryUpdate(ctx, msg, actor, text)
	case strings.HasPrefix(command, actionLoss+":"):
		action = actionLoss
		err = s.handleInventoryLoss(ctx, msg, actor, text)
	default:
		action = actionInsert
		err = s.handleInsert(ctx, msg, actor, text)
	}

	if err != nil {
		s.handleError(msg, actor, action, err)
	}
}

func (s *BotService) handleUnauthorized(ctx context.Context, msg IncomingMessage, actor Actor) {
	log.Warn().Str("component", "bot").Int64("user_id", msg.UserID).Msg("unauthorized access")
	s.reply(msg.ChatID, fmt.Sprintf(msgUnauthorized, msg.UserID))
	s.audit.Record(ctx, actor, model.AuditUnauthorizedAccess, msg.Text, nil)
}

func (s *BotService) handleInsert(ctx context.Context, msg IncomingMessage, actor Actor, text string) error {
	tx, err := s.extractor.Interpret(ctx, text)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	if tx.IsEmpty() {
		s.reply(msg.ChatID, msgNothingExtracted)
		return nil
	}

	result, err := s.txns.Record(ctx, tx)
	if result == nil {
		return err
	}
	if err != nil {
		// the ledger row is durable; only the stock update failed
		s.reportToDeveloper(actor, actionInsert, err)
	}
	id := result.Transaction.TransactionID

	if len(result.Issues) > 0 {
		s.notifyOwner(formatIssues("⚠️ Problemas con el inventario:", result.Issues))
	}

	if tx.SenderName != nil && *tx.SenderName != "" {
		actor.UserName = *tx.SenderName
	}
	s.audit.Record(ctx, actor, model.AuditDataInsert, text, &id)

	summary, err := s.extractor.Summarize(ctx, tx, text)
	if err != nil || summary == "" {
		log.Warn().Str("component", "bot").Err(err).Str("transaction_id", id).Msg("summary fell back to local format")
		summary = FormatSummary(tx)
	}
	s.reply(msg.ChatID, summary+"\n\n"+msgSaved)
	s.replyCode(msg.ChatID, id)

	if s.cfg.Telegram.LiveNotifications {
		s.notifyOwner(fmt.Sprintf("🔔 Nueva operación registrada por %s (ID: %d):\n\n%s\n\nID de Transacción: %s",
			actor.UserName, actor.UserID, text, id))
	}
	return nil
}

func (s *BotService) handleDelete(ctx context.Context, msg IncomingMessage, actor Actor, text string) error {
	parts := strings.Fields(text)
	if len(parts) != 3 {
		return fmt.Errorf("%w: delete takes an id and a name, got %d tokens", ErrValidation, len(parts))
	}
	id := parts[1]
	actor.UserName = parts[2]

	removed, err := s.txns.Remove(ctx, id)
	if removed == nil {
		return err
	}
	if err != nil {
		s.reportToDeveloper(actor, actionDelete, err)
	}

	s.reply(msg.ChatID, msgDeleted)
	s.replyCode(msg.ChatID, id)
	s.audit.Record(ctx, actor, model.AuditDeleteTransaction, text, &id)

	if s.cfg.Telegram.LiveNotifications {
		s.notifyOwner(formatAdminNotice(actor, "Eliminar", "ID de Transacción: "+id))
	}
	return nil
}

func (s *BotService) handleEdit(ctx context.Context, msg IncomingMessage, actor Actor, text string) error {
	parts := splitCommand(text, 3)
	if len(parts) != 3 {
		return fmt.Errorf("%w: edit takes an id and a message", ErrValidation)
	}
	id, newText := parts[1], parts[2]

	payload, err := s.extractor.Interpret(ctx, newText)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	if payload.IsEmpty() {
		s.reply(msg.ChatID, msgNothingExtracted)
		return nil
	}

	result, err := s.txns.Amend(ctx, id, payload)
	if result == nil {
		return err
	}
	if err != nil {
		s.reportToDeveloper(actor, actionEdit, err)
	}
	if len(result.Issues) > 0 {
		s.notifyOwner(formatIssues("⚠️ Problemas con el inventario:", result.Issues))
	}

	if payload.SenderName != nil && *payload.SenderName != "" {
		actor.UserName = *payload.SenderName
	}
	s.reply(msg.ChatID, msgEdited)
	s.replyCode(msg.ChatID, id)
	s.audit.Record(ctx, actor, model.AuditEditTransaction, text, &id)

	if s.cfg.Telegram.LiveNotifications {
		s.notifyOwner(formatAdminNotice(actor, "Editar", "ID de Transacción: "+id))
	}
	return nil
}

func (s *BotService) handleClosure(ctx context.Context, msg IncomingMessage, actor Actor, text string) error {
	parts := strings.Fields(text)
	if len(parts) != 2 {
		return fmt.Errorf("%w: closure takes a name, got %d tokens", ErrValidation, len(parts))
	}
	actor.UserName = parts[1]

	today := s.txns.Today()
	report, err := s.txns.GetClosureReport(ctx, today)
	if err != nil {
		return err
	}
	if report.IsEmpty() {
		s.reply(msg.ChatID, msgNoClosureData)
		return nil
	}

	summary := FormatClosureReport(report)
	s.reply(msg.ChatID, summary)
	s.audit.Record(ctx, actor, model.AuditClosureReport, "Cierre de caja para "+today, nil)

	if s.cfg.Telegram.LiveNotifications {
		s.notifyOwner(formatAdminNotice(actor, "Cierre de caja", "Fecha: "+today+"\n\n"+summary))
	}
	return nil
}

func (s *BotService) handleInventoryUpdate(ctx context.Context, msg IncomingMessage, actor Actor, text string) error {
	entries, err := s.extractor.InterpretInventory(ctx, commandBody(text))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	if len(entries) == 0 {
		s.reply(msg.ChatID, msgNoInventory)
		return nil
	}

	for _, entry := range entries {
		if err := s.inventory.Update(ctx, entry.Item, entry.Quality, entry.Quantity); err != nil {
			return err
		}
	}

	s.audit.Record(ctx, actor, model.AuditBulkInventoryUpdate, text, nil)
	s.reply(msg.ChatID, fmt.Sprintf(msgInventoryUpdated, len(entries)))

	if s.cfg.Telegram.LiveNotifications {
		s.notifyOwner(formatAdminNotice(actor, "Actualización de inventario", "Mensaje: "+text))
	}
	return nil
}

func (s *BotService) handleInventoryLoss(ctx context.Context, msg IncomingMessage, actor Actor, text string) error {
	entries, err := s.extractor.InterpretInventory(ctx, commandBody(text))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExtraction, err)
	}
	if len(entries) == 0 {
		s.reply(msg.ChatID, msgNoLoss)
		return nil
	}

	issues, err := s.inventory.RecordLoss(ctx, entries, actor, text)
	if err != nil {
		return err
	}

	s.audit.Record(ctx, actor, model.AuditInventoryLoss, text, nil)
	s.reply(msg.ChatID, fmt.Sprintf(msgLossRecorded, len(entries)))
	if len(issues) > 0 {
		s.notifyOwner(formatIssues("⚠️ Problemas al registrar la pérdida:", issues))
	}

	if s.cfg.Telegram.LiveNotifications {
		s.notifyOwner(formatAdminNotice(actor, "Pérdida de inventario", "Mensaje: "+text))
	}
	return nil
}

// handleError turns a failed command into a reply. Unexpected failures also reach the developer.
func (s *BotService) handleError(msg IncomingMessage, actor Actor, action string, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		s.reply(msg.ChatID, fmt.Sprintf(msgBadFormat, commandUsage[action]))
	case errors.Is(err, ErrNotFound):
		s.reply(msg.ChatID, msgNotFound)
	default:
		log.Error().Str("component", "bot").Err(err).Str("action", action).Int64("user_id", actor.UserID).Msg("command failed")
		s.reportToDeveloper(actor, action, err)
		s.reply(msg.ChatID, msgGenericError)
	}
}

func (s *BotService) reportToDeveloper(actor Actor, action string, err error) {
	if s.cfg.Telegram.DeveloperID == 0 {
		return
	}
	if sendErr := s.notifier.Send(s.cfg.Telegram.DeveloperID, formatErrorReport(actor, action, err)); sendErr != nil {
		log.Error().Str("component", "bot").Err(sendErr).Msg("failed to report error to developer")
	}
}

func (s *BotService) notifyOwner(text string) {
	if s.cfg.Telegram.OwnerID == 0 {
		return
	}
	if err := s.notifier.Send(s.cfg.Telegram.OwnerID, text); err != nil {
		log.Error().Str("component", "bot").Err(err).Msg("failed to notify owner")
	}
}

func (s *BotService) reply(chatID int64, text string) {
	if err := s.notifier.Send(chatID, text); err != nil {
		log.Error().Str("component", "bot").Err(err).Int64("chat_id", chatID).Msg("failed to reply")
	}
}

func (s *BotService) replyCode(chatID int64, text string) {
	if err := s.notifier.SendCode(chatID, text); err != nil {
		log.Error().Str("component", "bot").Err(err).Int64("chat_id", chatID).Msg("failed to reply")
	}
}

// splitCommand splits on whitespace into at most n parts; the last part keeps its inner spacing.
func splitCommand(text string, n int) []string {
	var parts []string
	rest := strings.TrimSpace(text)
	for len(parts) < n-1 && rest != "" {
		i := strings.IndexFunc(rest, isSpace)
		if i < 0 {
			break
		}
		parts = append(parts, rest[:i])
		rest = strings.TrimSpace(rest[i:])
	}
	if rest != "" {
		parts = append(parts, rest)
	}
	return parts
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// commandBody returns what follows the first colon of a prefixed command.
func commandBody(text string) string {
	if i := strings.Index(text, ":"); i >= 0 {
		return strings.TrimSpace(text[i+1:])
	}
	return text
}
