package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"mimitomo/internal/domain"
	"mimitomo/internal/ports"
)

// ReplyErrorText is shown in place of a reply when generation fails.
const ReplyErrorText = "エラーが発生しました。"

// Exchange is one user message and the companion's answer.
type Exchange struct {
	User  domain.ChatMessage `json:"user"`
	Reply domain.ChatMessage `json:"reply"`
}

// Conversation is the chat with the companion.
type Conversation struct {
	store    ports.Store
	ai       ports.GenerativeText
	profiles *Profiles
	voice    *Voice
	metrics  ports.RemoteMetrics
	log      zerolog.Logger
}

func NewConversation(
	store ports.Store,
	ai ports.GenerativeText,
	profiles *Profiles,
	voice *Voice,
	metrics ports.RemoteMetrics,
	log zerolog.Logger,
) *Conversation {
	return &Conversation{
		store:    store,
		ai:       ai,
		profiles: profiles,
		voice:    voice,
		metrics:  remoteMetricsOrNoop(metrics),
		log:      log,
	}
}

// History returns the persisted messages in the order they were written.
func (c *Conversation) History(ctx context.Context, userID string) ([]domain.ChatMessage, error) {
	return call(c.metrics, "chat_messages.list", func() ([]domain.ChatMessage, error) {
		return c.store.ChatMessages().List(ctx, userID)
	})
}

// Send stores the user's message, asks the model for a reply, stores the
// reply and speaks it. When generation fails the returned exchange carries a
// local, unsaved error reply alongside the error.
func (c *Conversation) Send(ctx context.Context, userID string, text string) (Exchange, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Exchange{}, fmt.Errorf("%w: message is empty", domain.ErrInvalid)
	}

	history, err := c.History(ctx, userID)
	if err != nil {
		return Exchange{}, err
	}

	userMessage, err := call(c.metrics, "chat_messages.create", func() (domain.ChatMessage, error) {
		return c.store.ChatMessages().Create(ctx, domain.ChatMessage{UserID: userID, Role: domain.RoleUser, Text: text})
	})
	if err != nil {
		return Exchange{}, err
	}
	exchange := Exchange{User: userMessage}

	userContext, err := c.userContext(ctx, userID)
	if err != nil {
		exchange.Reply = domain.ChatMessage{UserID: userID, Role: domain.RoleModel, Text: ReplyErrorText}
		return exchange, err
	}

	turns := make([]ports.ChatTurn, 0, len(history))
	for _, message := range history {
		turns = append(turns, ports.ChatTurn{Role: message.Role, Text: message.Text})
	}

	reply, err := call(c.metrics, "genai.reply", func() (string, error) {
		return c.ai.Reply(ctx, text, turns, userContext)
	})
	if err != nil {
		c.log.Error().Err(err).Str("user_id", userID).Msg("reply generation failed")
		exchange.Reply = domain.ChatMessage{UserID: userID, Role: domain.RoleModel, Text: ReplyErrorText}
		return exchange, err
	}

	modelMessage, err := call(c.metrics, "chat_messages.create", func() (domain.ChatMessage, error) {
		return c.store.ChatMessages().Create(ctx, domain.ChatMessage{UserID: userID, Role: domain.RoleModel, Text: reply})
	})
	if err != nil {
		exchange.Reply = domain.ChatMessage{UserID: userID, Role: domain.RoleModel, Text: ReplyErrorText}
		return exchange, err
	}
	exchange.Reply = modelMessage

	if c.voice != nil {
		c.voice.Say(reply)
	}
	return exchange, nil
}

func (c *Conversation) userContext(ctx context.Context, userID string) (string, error) {
	user, err := c.profiles.Load(ctx, userID)
	if errors.Is(err, ports.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return FormatProfileForAI(user), nil
}
