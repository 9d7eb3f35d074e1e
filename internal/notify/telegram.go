package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"
)

// maxMessageRunes is the Telegram limit for one text message.
const maxMessageRunes = 4096

// TelegramNotifier sends bot replies and operator notifications.
type TelegramNotifier struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramNotifier authenticates the bot token against the Bot API.
func NewTelegramNotifier(token string) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	log.Info().Str("component", "notify").Str("bot", bot.Self.UserName).Msg("telegram bot authorized")
	return NewNotifier(bot), nil
}

// NewNotifier wraps an existing bot client.
func NewNotifier(bot *tgbotapi.BotAPI) *TelegramNotifier {
	return &TelegramNotifier{bot: bot}
}

// Send delivers plain text, split into several messages when it is too long.
func (n *TelegramNotifier) Send(chatID int64, text string) error {
	for _, chunk := range splitText(text, maxMessageRunes) {
		if _, err := n.bot.Send(tgbotapi.NewMessage(chatID, chunk)); err != nil {
			return fmt.Errorf("send to %d: %w", chatID, err)
		}
	}
	return nil
}

// SendCode delivers text as a MarkdownV2 inline code span, easy to copy on mobile clients.
func (n *TelegramNotifier) SendCode(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, "`"+tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, text)+"`")
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := n.bot.Send(msg); err != nil {
		return fmt.Errorf("send code to %d: %w", chatID, err)
	}
	return nil
}

// SetWebhook points Telegram at url.
func (n *TelegramNotifier) SetWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return fmt.Errorf("build webhook: %w", err)
	}
	if _, err := n.bot.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	log.Info().Str("component", "notify").Str("url", url).Msg("webhook set")
	return nil
}

func splitText(text string, limit int) []string {
	runes := []rune(text)
	if len(runes) <= limit {
		return []string{text}
	}
	var chunks []string
	for len(runes) > limit {
		chunks = append(chunks, string(runes[:limit]))
		runes = runes[limit:]
	}
	if len(runes) > 0 {
		chunks = append(chunks, string(runes))
	}
	return chunks
}
