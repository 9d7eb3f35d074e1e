package handler

import (
	"context"
	"net/http"
	"strings"

	"floraledger/internal/service"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// MessageHandler processes one chat message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg service.IncomingMessage)
}

// UpdateGuard remembers processed update ids. MarkProcessed reports false for a redelivery.
type UpdateGuard interface {
	MarkProcessed(ctx context.Context, updateID int) (bool, error)
}

// WebhookRegistrar registers the public webhook URL with Telegram.
type WebhookRegistrar interface {
	SetWebhook(url string) error
}

// WebhookHandler receives Telegram updates.
type WebhookHandler struct {
	bot       MessageHandler
	guard     UpdateGuard
	registrar WebhookRegistrar
	publicURL string
	path      string
}

func NewWebhookHandler(bot MessageHandler, guard UpdateGuard, registrar WebhookRegistrar, publicURL, path string) *WebhookHandler {
	return &WebhookHandler{
		bot:       bot,
		guard:     guard,
		registrar: registrar,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		path:      path,
	}
}

// Register points Telegram at this service. Without a configured public URL the request host
// is used.
// GET <webhook_path>
func (h *WebhookHandler) Register(c *gin.Context) {
	base := h.publicURL
	if base == "" {
		base = "https://" + c.Request.Host
	}
	if err := h.registrar.SetWebhook(base + h.path); err != nil {
		log.Error().Str("component", "webhook").Err(err).Msg("failed to set webhook")
		c.String(http.StatusBadGateway, "Webhook not set")
		return
	}
	c.String(http.StatusOK, "Webhook set")
}

// Receive handles one update. Redeliveries and non-text updates are acknowledged and dropped.
// POST <webhook_path>
func (h *WebhookHandler) Receive(c *gin.Context) {
	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		log.Warn().Str("component", "webhook").Err(err).Msg("undecodable update")
		c.String(http.StatusBadRequest, "bad update")
		return
	}

	ctx := c.Request.Context()
	first, err := h.guard.MarkProcessed(ctx, update.UpdateID)
	if err != nil {
		// without the dedupe store a redelivery may be processed twice
		log.Error().Str("component", "webhook").Err(err).Int("update_id", update.UpdateID).Msg("update dedupe unavailable")
	} else if !first {
		log.Info().Str("component", "webhook").Int("update_id", update.UpdateID).Msg("duplicate update")
		c.String(http.StatusOK, "ok")
		return
	}

	msg := update.Message
	if msg == nil || msg.Text == "" || msg.From == nil || msg.Chat == nil {
		c.String(http.StatusOK, "ok")
		return
	}

	// a flow runs to completion even if Telegram drops the connection
	h.bot.HandleMessage(context.WithoutCancel(ctx), service.IncomingMessage{
		UpdateID: update.UpdateID,
		ChatID:   msg.Chat.ID,
		UserID:   msg.From.ID,
		UserName: fullName(msg.From),
		Text:     msg.Text,
	})
	c.String(http.StatusOK, "ok")
}

func fullName(u *tgbotapi.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
