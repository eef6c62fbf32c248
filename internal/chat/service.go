package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/reverie/internal/apperr"
	"github.com/starford/reverie/internal/assistant"
	"github.com/starford/reverie/internal/models"
)

// MaxMessageRunes bounds one chat message.
const MaxMessageRunes = 4000

// ReplyGenerator produces the agent reply for an assembled context.
type ReplyGenerator interface {
	Reply(ctx context.Context, contextText, mode string) (string, error)
}

// Notifier receives a notification for every stored exchange.
type Notifier interface {
	PublishChatEvent(ownerID, conversationID string, messageID int64)
}

// RespondInput is one user turn.
type RespondInput struct {
	OwnerID        string `json:"owner_id"`
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
	Mode           string `json:"mode"`
}

// Validate checks the input shape.
func (in RespondInput) Validate() error {
	modes := make([]any, len(assistant.Modes))
	for i, m := range assistant.Modes {
		modes[i] = m
	}
	return validation.ValidateStruct(&in,
		validation.Field(&in.OwnerID, validation.Required, validation.Length(1, 128)),
		validation.Field(&in.ConversationID, validation.Length(1, 128)),
		validation.Field(&in.Message, validation.Required, validation.Length(1, MaxMessageRunes), validation.By(notBlank)),
		validation.Field(&in.Mode, validation.In(modes...)),
	)
}

func notBlank(v any) error {
	if s, _ := v.(string); strings.TrimSpace(s) == "" {
		return errors.New("must not be blank")
	}
	return nil
}

// Exchange is a stored user message and its reply.
type Exchange struct {
	ConversationID string             `json:"conversation_id"`
	User           models.ChatMessage `json:"user"`
	Agent          models.ChatMessage `json:"agent"`
	Entries        []models.Candidate `json:"entries"`
}

// Service answers chat messages using journal context.
type Service struct {
	assembler *Assembler
	messages  MessageStore
	replies   ReplyGenerator
	notifier  Notifier
	logger    *slog.Logger
	mode      string
}

// NewService creates a chat service. notifier may be nil.
func NewService(assembler *Assembler, messages MessageStore, replies ReplyGenerator, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{
		assembler: assembler,
		messages:  messages,
		replies:   replies,
		notifier:  notifier,
		logger:    logger,
		mode:      assistant.NormalizeMode(assembler.opts.DefaultMode),
	}
}

// Respond assembles context for the message, obtains a reply and stores both
// messages together. Nothing is stored when any step fails.
func (s *Service) Respond(ctx context.Context, in RespondInput) (*Exchange, error) {
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
	}
	if in.ConversationID == "" {
		in.ConversationID = uuid.NewString()
	}
	mode := s.mode
	if in.Mode != "" {
		mode = in.Mode
	}
	log := s.logger.With(slog.String("owner_id", in.OwnerID), slog.String("conversation_id", in.ConversationID))

	cc, err := s.assembler.Assemble(ctx, in.OwnerID, in.ConversationID, in.Message)
	if err != nil {
		log.Error("chat: context assembly failed, message not stored", slog.String("error", err.Error()))
		return nil, err
	}
	reply, err := s.replies.Reply(ctx, cc.Text, mode)
	if err != nil {
		log.Error("chat: reply failed, message not stored", slog.String("error", err.Error()))
		return nil, fmt.Errorf("chat: reply: %w", err)
	}

	now := time.Now().UTC()
	stored, err := s.messages.AppendExchange(ctx,
		models.ChatMessage{OwnerID: in.OwnerID, ConversationID: in.ConversationID, Sender: models.SenderUser, Text: in.Message, Mode: mode, CreatedAt: now},
		models.ChatMessage{OwnerID: in.OwnerID, ConversationID: in.ConversationID, Sender: models.SenderAgent, Text: reply, Mode: mode, CreatedAt: now},
	)
	if err != nil {
		log.Error("chat: store exchange failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("chat: store exchange: %w", err)
	}
	if s.notifier != nil {
		s.notifier.PublishChatEvent(in.OwnerID, in.ConversationID, stored[1].ID)
	}

	log.Info("chat: exchange stored", slog.Int("context_entries", len(cc.Entries)), slog.String("mode", mode))
	return &Exchange{
		ConversationID: in.ConversationID,
		User:           stored[0],
		Agent:          stored[1],
		Entries:        cc.Entries,
	}, nil
}

// History returns up to n messages of a conversation, most recent first.
func (s *Service) History(ctx context.Context, ownerID, conversationID string, n int) ([]models.ChatMessage, error) {
	if ownerID == "" || conversationID == "" {
		return nil, fmt.Errorf("%w: owner and conversation are required", apperr.ErrInvalidInput)
	}
	msgs, err := s.messages.RecentMessages(ctx, ownerID, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("chat: history: %w", err)
	}
	return msgs, nil
}
