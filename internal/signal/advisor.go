package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/Bing4Ever/quant-trading-sub001/internal/logging"
	"github.com/Bing4Ever/quant-trading-sub001/internal/models"
)

// DefaultAdvisorModel is used when no model is configured.
const DefaultAdvisorModel = "gpt-4o-mini"

const advisorSystemPrompt = `You are a disciplined equity trading assistant.
Given a symbol, its last price and optional notes, decide whether to buy, sell or hold.
Respond with a single JSON object:
{"signal": 1 for buy, -1 for sell, 0 for hold,
 "confidence": number between 0 and 1,
 "reason": short explanation,
 "target_price": optional limit price}`

// Advisor asks a chat model for a raw strategy record.
type Advisor struct {
	client *openai.Client
	model  string
	logger zerolog.Logger
}

// AdvisorConfig holds configuration for the advisor.
type AdvisorConfig struct {
	APIKey  string
	Model   string
	BaseURL string // optional, for compatible endpoints
	Logger  zerolog.Logger
}

// NewAdvisor creates a new OpenAI-backed advisor.
func NewAdvisor(cfg AdvisorConfig) *Advisor {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultAdvisorModel
	}

	return &Advisor{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
		logger: logging.WithComponent(cfg.Logger, "advisor"),
	}
}

// Strategy is the strategy tag given to advisor signals.
func (a *Advisor) Strategy() string {
	return "llm:" + a.model
}

type advice struct {
	Signal      float64  `json:"signal"`
	Confidence  float64  `json:"confidence"`
	Reason      string   `json:"reason"`
	TargetPrice *float64 `json:"target_price"`
}

// Advise requests a buy/sell/hold decision for symbol at price.
func (a *Advisor) Advise(ctx context.Context, symbol string, price float64, notes string) (models.RawSignal, error) {
	prompt := fmt.Sprintf("Symbol: %s\nLast price: %.4f", symbol, price)
	if notes = strings.TrimSpace(notes); notes != "" {
		prompt += "\nNotes: " + notes
	}

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: advisorSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return models.RawSignal{}, fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return models.RawSignal{}, fmt.Errorf("no response from openai")
	}

	raw, err := parseAdvice(resp.Choices[0].Message.Content)
	if err != nil {
		return models.RawSignal{}, err
	}

	a.logger.Debug().
		Str("symbol", symbol).
		Int("signal", raw.Signal).
		Float64("confidence", raw.Confidence).
		Msg("Advice received")
	return raw, nil
}

// parseAdvice decodes the model reply. The signal is reduced to its sign and
// confidence is clamped to [0,1].
func parseAdvice(content string) (models.RawSignal, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var a advice
	if err := json.Unmarshal([]byte(content), &a); err != nil {
		return models.RawSignal{}, fmt.Errorf("decoding advice: %w", err)
	}

	raw := models.RawSignal{
		Confidence: clamp01(a.Confidence),
		Reason:     a.Reason,
	}
	switch {
	case a.Signal > 0:
		raw.Signal = 1
	case a.Signal < 0:
		raw.Signal = -1
	}
	if a.TargetPrice != nil && *a.TargetPrice > 0 {
		raw.TargetPrice = models.Float(*a.TargetPrice)
	}
	return raw, nil
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
