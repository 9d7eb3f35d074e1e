package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"floraledger/internal/config"
	"floraledger/internal/model"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"
)

// ChatCompleter is the slice of the OpenAI client the extractor needs.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIExtractor turns shop messages into typed payloads through a chat completion model.
type OpenAIExtractor struct {
	client      ChatCompleter
	model       string
	temperature float32
	timeout     time.Duration
}

// NewOpenAIExtractor builds an extractor backed by the public OpenAI API.
func NewOpenAIExtractor(cfg *config.OpenAIConfig) *OpenAIExtractor {
	return NewExtractor(openai.NewClient(cfg.APIKey), cfg)
}

// NewExtractor builds an extractor on top of any chat completion client.
func NewExtractor(client ChatCompleter, cfg *config.OpenAIConfig) *OpenAIExtractor {
	return &OpenAIExtractor{
		client:      client,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
	}
}

// Interpret extracts sales and expenses from a free-text message.
func (e *OpenAIExtractor) Interpret(ctx context.Context, message string) (*model.Transaction, error) {
	raw, err := e.complete(ctx, transactionPrompt, message, true)
	if err != nil {
		return nil, err
	}
	tx, err := ParseTransaction(raw)
	if err != nil {
		log.Warn().Str("component", "extractor").Err(err).Str("raw", raw).Msg("rejected transaction payload")
		return nil, err
	}
	return tx, nil
}

// InterpretInventory extracts stock lines from a bulk intake or loss message.
func (e *OpenAIExtractor) InterpretInventory(ctx context.Context, message string) ([]model.InventoryEntry, error) {
	raw, err := e.complete(ctx, inventoryPrompt, message, true)
	if err != nil {
		return nil, err
	}
	entries, err := ParseInventory(raw)
	if err != nil {
		log.Warn().Str("component", "extractor").Err(err).Str("raw", raw).Msg("rejected inventory payload")
		return nil, err
	}
	return entries, nil
}

// Summarize writes a short Spanish confirmation of a stored transaction.
func (e *OpenAIExtractor) Summarize(ctx context.Context, tx *model.Transaction, original string) (string, error) {
	record, err := json.Marshal(tx)
	if err != nil {
		return "", err
	}
	prompt := fmt.Sprintf("Registro:\n%s\n\nMensaje original:\n%s", record, original)
	summary, err := e.complete(ctx, summaryPrompt, prompt, false)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(summary), nil
}

func (e *OpenAIExtractor) complete(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model:       e.model,
		Temperature: e.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject}
	}

	start := time.Now()
	resp, err := e.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices returned", ErrUnavailable)
	}

	log.Debug().
		Str("component", "extractor").
		Str("model", e.model).
		Int("total_tokens", resp.Usage.TotalTokens).
		Dur("latency", time.Since(start)).
		Msg("chat completion")

	return resp.Choices[0].Message.Content, nil
}
