package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tg-importance-bot/internal/domain"
	openai "tg-importance-bot/internal/infra/openai"
	"tg-importance-bot/internal/infra/retry"
)

type chatCompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

const systemPrompt = `Ты — помощник, который оценивает важность сообщений из Telegram-чатов и каналов.
Определи, достаточно ли сообщение важно, чтобы уведомить читателя или опубликовать его в канале.

Учитывай:
1. Срочность: требует ли сообщение немедленного внимания или действий?
2. Необходимость действий: нужно ли читателю что-то сделать?
3. Временную чувствительность: касается ли оно дедлайнов, встреч, важных событий?
4. Информационную ценность: есть ли в нём сведения, которые нельзя пропустить?
5. Ключевые слова, важные для читателя.

Неважны: приветствия и поздравления, общие обсуждения, реклама, технические детали без последствий.

Ответь только JSON-объектом без пояснений:
{"score": число от 0.0 (не важно) до 1.0 (очень важно), "reason": "краткое объяснение на русском языке"}`

// LLM оценивает важность сообщений через OpenAI-совместимый Chat Completions API.
type LLM struct {
	client  chatCompletionClient
	model   string
	timeout time.Duration
	retries int
	log     zerolog.Logger
}

var _ domain.ScoringOracle = (*LLM)(nil)

// NewLLM создаёт оракул. timeout ограничивает одну попытку, retries — число повторов после первой.
func NewLLM(client chatCompletionClient, model string, timeout time.Duration, retries int, logger zerolog.Logger) *LLM {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if retries < 0 {
		retries = 0
	}
	return &LLM{client: client, model: model, timeout: timeout, retries: retries, log: logger}
}

type verdictPayload struct {
	Score  *float64 `json:"score"`
	Reason string   `json:"reason"`
}

// ScoreText запрашивает у модели оценку важности текста.
func (o *LLM) ScoreText(ctx context.Context, text string, oc domain.OracleContext) (domain.OracleVerdict, error) {
	req := openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: 0.1,
		Messages: []openai.ChatMessage{
			{Role: openai.RoleSystem, Content: systemPrompt},
			{Role: openai.RoleUser, Content: userPrompt(text, oc)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ResponseFormatTypeJSONObject},
	}

	var verdict domain.OracleVerdict
	policy := retry.Policy{Attempts: o.retries + 1, Timeout: o.timeout, Initial: 500 * time.Millisecond, Max: 5 * time.Second}
	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		resp, err := o.client.CreateChatCompletion(ctx, req)
		if err != nil {
			if !openai.IsRetryable(err) {
				return retry.Permanent(err)
			}
			o.log.Debug().Err(err).Msg("oracle: completion failed, retrying")
			return err
		}
		content, ok := resp.Content()
		if !ok {
			return errors.New("oracle: empty completion")
		}
		v, err := ParseVerdict(content)
		if err != nil {
			return retry.Permanent(err)
		}
		verdict = v
		return nil
	})
	if err != nil {
		return domain.OracleVerdict{}, err
	}
	o.log.Debug().Float64("score", verdict.Score).Str("reason", verdict.Reason).Msg("oracle: message scored")
	return verdict, nil
}

// ParseVerdict разбирает ответ модели. Допускается JSON, обёрнутый в текст или markdown.
func ParseVerdict(content string) (domain.OracleVerdict, error) {
	raw := strings.TrimSpace(content)
	var payload verdictPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		obj, ok := openai.ExtractJSONObject(raw)
		if !ok {
			return domain.OracleVerdict{}, fmt.Errorf("oracle: no JSON object in response %q", truncate(raw, 200))
		}
		if err := json.Unmarshal([]byte(obj), &payload); err != nil {
			return domain.OracleVerdict{}, fmt.Errorf("oracle: decode verdict: %w", err)
		}
	}
	if payload.Score == nil || math.IsNaN(*payload.Score) {
		return domain.OracleVerdict{}, errors.New("oracle: verdict has no score")
	}
	return domain.OracleVerdict{Score: *payload.Score, Reason: strings.TrimSpace(payload.Reason)}, nil
}

func userPrompt(text string, oc domain.OracleContext) string {
	var b strings.Builder
	b.WriteString("Сообщение для оценки:\n")
	if oc.Source != "" {
		b.WriteString("Источник: " + oc.Source + "\n")
	}
	if oc.Forwarded {
		b.WriteString("Сообщение переслано из другого чата.\n")
	}
	b.WriteString("Текст:\n" + truncate(text, 4000) + "\n\n")
	keywords := "не указаны"
	if len(oc.Keywords) > 0 {
		keywords = strings.Join(oc.Keywords, ", ")
	}
	b.WriteString("Важные ключевые слова: " + keywords + "\n\n")
	b.WriteString("Оцени важность сообщения и верни JSON-объект.")
	return b.String()
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
