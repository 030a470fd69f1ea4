// Package genai talks to OpenAI-compatible chat and speech endpoints. The
// default endpoint is Gemini's OpenAI compatibility layer.
package genai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"github.com/rs/zerolog"

	"mimitomo/internal/domain"
	"mimitomo/internal/ports"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"
	DefaultModel   = "gemini-2.5-flash"

	// OfflineReply is returned by Reply when no API key is configured.
	OfflineReply = "こんにちは！今日はどんなお話をしましょうか？Gemini APIキーが設定されていないため、これはデモ用の返信です。"

	reminderTitleRunes = 20
)

var ErrEmptyResponse = errors.New("genai: empty choices in response")

// Config selects the endpoint and model.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// Client implements ports.GenerativeText.
type Client struct {
	client oai.Client
	model  string
	online bool
	log    zerolog.Logger
}

func NewClient(cfg Config, log zerolog.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	c := &Client{model: cfg.Model, log: log, online: strings.TrimSpace(cfg.APIKey) != ""}
	if !c.online {
		log.Warn().Msg("generative api key is not set; replies use offline fallbacks")
		return c
	}
	c.client = oai.NewClient(requestOptions(cfg.APIKey, cfg.BaseURL, cfg.Timeout, cfg.MaxRetries)...)
	return c
}

func requestOptions(apiKey, baseURL string, timeout time.Duration, maxRetries int) []option.RequestOption {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(maxRetries),
	}
	if timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: timeout}))
	}
	return opts
}

// Online reports whether requests reach the model.
func (c *Client) Online() bool {
	return c.online
}

// Reply continues the conversation as the companion.
func (c *Client) Reply(ctx context.Context, prompt string, history []ports.ChatTurn, userContext string) (string, error) {
	if !c.online {
		return OfflineReply, nil
	}

	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(history)+2)
	messages = append(messages, oai.SystemMessage(companionInstruction(userContext)))
	for _, turn := range history {
		messages = append(messages, convertTurn(turn))
	}
	messages = append(messages, oai.UserMessage(prompt))

	text, err := c.complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("genai: reply: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// ExtractReminder pulls a title and HH:MM time out of spoken text.
func (c *Client) ExtractReminder(ctx context.Context, text string) (domain.ReminderDraft, error) {
	if !c.online {
		return offlineDraft(text), nil
	}

	messages := []oai.ChatCompletionMessageParamUnion{
		oai.SystemMessage(reminderInstruction),
		oai.UserMessage(fmt.Sprintf("以下の文章から、予定のタイトルと時刻を抽出してください。\n\n「%s」", text)),
	}
	content, err := c.complete(ctx, messages)
	if err != nil {
		return domain.ReminderDraft{}, fmt.Errorf("genai: extract reminder: %w", err)
	}

	draft, ok := parseDraft(content)
	if !ok {
		c.log.Warn().Str("content", content).Msg("reminder extraction returned non-json content")
		return domain.ReminderDraft{Title: domain.TruncateRunes(text, reminderTitleRunes), Time: domain.TimeUnset}, nil
	}
	return draft, nil
}

func (c *Client) complete(ctx context.Context, messages []oai.ChatCompletionMessageParamUnion) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: messages,
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

func convertTurn(turn ports.ChatTurn) oai.ChatCompletionMessageParamUnion {
	if turn.Role == domain.RoleModel {
		asst := oai.ChatCompletionAssistantMessageParam{}
		asst.Content.OfString = oai.String(turn.Text)
		return oai.ChatCompletionMessageParamUnion{OfAssistant: &asst}
	}
	return oai.UserMessage(turn.Text)
}

// parseDraft accepts a bare JSON object, optionally inside a markdown fence.
func parseDraft(content string) (domain.ReminderDraft, bool) {
	body := strings.TrimSpace(content)
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	body = strings.TrimSpace(body)
	if !strings.HasPrefix(body, "{") || !strings.HasSuffix(body, "}") {
		return domain.ReminderDraft{}, false
	}

	var draft domain.ReminderDraft
	if err := json.Unmarshal([]byte(body), &draft); err != nil {
		return domain.ReminderDraft{}, false
	}
	if strings.TrimSpace(draft.Title) == "" {
		draft.Title = domain.UntitledReminder
	}
	if strings.TrimSpace(draft.Time) == "" {
		draft.Time = domain.TimeUnset
	}
	return draft, true
}

func offlineDraft(text string) domain.ReminderDraft {
	clock, ok := domain.FindClock(text)
	if !ok {
		clock = domain.TimeUnset
	}
	return domain.ReminderDraft{Title: domain.TruncateRunes(text, reminderTitleRunes), Time: clock}
}
