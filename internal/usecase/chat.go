package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"kitsune-backend/internal/domain"
	"kitsune-backend/internal/integrations/s3store"
)

// MessageStore defines the persistence operations the orchestrator needs.
type MessageStore interface {
	Append(ctx context.Context, chatID string, timestamp any, text, role, audioURL string) error
	List(ctx context.Context, chatID string) ([]domain.Message, error)
}

// LLMClient invokes the external language model.
type LLMClient interface {
	Chat(ctx context.Context, model string, temperature float32, messages []domain.ChatMessage) (string, error)
}

// Synthesizer converts text to an audio byte stream.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// AudioStore persists audio objects and issues time-limited retrieval links.
type AudioStore interface {
	Upload(ctx context.Context, audio []byte, objectName string, metadata map[string]string) error
	PresignedLink(ctx context.Context, objectName string, expiry time.Duration) (string, error)
}

// ChatService orchestrates one conversational turn: persist the user
// message, replay history into the model, persist the reply, then attempt a
// spoken rendition as a best-effort enhancement.
type ChatService struct {
	store  MessageStore
	llm    LLMClient
	tts    Synthesizer
	audio  AudioStore
	logger *slog.Logger
}

// ChatInput is one user turn as received from the HTTP surface.
type ChatInput struct {
	ChatID         string
	Timestamp      int64
	Message        string
	Model          string
	PromptTemplate string
	Temperature    float32
}

// ChatOutput is the assembled turn result. The audio fields are meaningful
// only when AudioFileName is set, i.e. synthesis produced bytes.
type ChatOutput struct {
	Response      string
	AudioFileName string
	AudioUploaded bool
	AudioLink     string
}

func NewChatService(store MessageStore, llm LLMClient, tts Synthesizer, audio AudioStore, logger *slog.Logger) (*ChatService, error) {
	if store == nil {
		return nil, errors.New("usecase: message store must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if tts == nil {
		return nil, errors.New("usecase: synthesizer must not be nil")
	}
	if audio == nil {
		return nil, errors.New("usecase: audio store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatService{store: store, llm: llm, tts: tts, audio: audio, logger: logger}, nil
}

// Respond runs one chat turn. The user message is persisted before the
// model is invoked and is never rolled back: if the model fails, the input
// survives for the next attempt.
func (s *ChatService) Respond(ctx context.Context, in ChatInput) (ChatOutput, error) {
	chatID := strings.TrimSpace(in.ChatID)
	if chatID == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_chat_id", nil)
	}
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_message", nil)
	}
	if strings.TrimSpace(in.Model) == "" {
		return ChatOutput{}, newError(ErrorInvalidInput, "empty_model", nil)
	}
	if in.Timestamp <= 0 {
		return ChatOutput{}, newError(ErrorInvalidInput, "invalid_timestamp", nil)
	}

	if err := s.store.Append(ctx, chatID, in.Timestamp, message, domain.RoleUser, ""); err != nil {
		return ChatOutput{}, newError(ErrorPersistence, "dynamodb_write_error", err)
	}

	history, err := s.store.List(ctx, chatID)
	if err != nil {
		return ChatOutput{}, newError(ErrorPersistence, "dynamodb_history_error", err)
	}

	systemPrompt := PersonaFor(in.PromptTemplate)
	reply, err := s.llm.Chat(ctx, in.Model, in.Temperature, buildChatMessages(systemPrompt, history))
	if err != nil {
		return ChatOutput{}, newError(ErrorUpstream, "openai_error", err)
	}

	// Timestamps must stay unique per chat; bump past the user's when the
	// turn completes within the same second.
	botTimestamp := nowFunc().Unix()
	if botTimestamp <= in.Timestamp {
		botTimestamp = in.Timestamp + 1
	}

	if err := s.store.Append(ctx, chatID, botTimestamp, reply, domain.RoleAI, ""); err != nil {
		return ChatOutput{}, newError(ErrorPersistence, "dynamodb_write_error", err)
	}

	out := ChatOutput{Response: reply}
	s.attachAudio(ctx, chatID, botTimestamp, reply, &out)
	return out, nil
}

// attachAudio runs the synthesize → upload → presign chain. Every sub-step
// is best-effort: a failure degrades the turn to a text-only response and is
// only logged, never escalated.
func (s *ChatService) attachAudio(ctx context.Context, chatID string, botTimestamp int64, reply string, out *ChatOutput) {
	audio, err := s.tts.Synthesize(ctx, reply)
	if err != nil {
		s.logger.Warn("audio synthesis failed, returning text-only response", "chat_id", chatID, "err", err)
		return
	}

	name := newAudioName()
	out.AudioFileName = name

	metadata := map[string]string{
		"chatid":    chatID,
		"timestamp": strconv.FormatInt(botTimestamp, 10),
	}
	if err := s.audio.Upload(ctx, audio, name, metadata); err != nil {
		s.logger.Warn("audio upload failed, returning text-only response", "chat_id", chatID, "object", name, "err", err)
		return
	}
	out.AudioUploaded = true

	link, err := s.audio.PresignedLink(ctx, name, 0)
	if err != nil {
		s.logger.Warn("presigned link generation failed", "chat_id", chatID, "object", name, "err", err)
		return
	}
	out.AudioLink = link
}

// History returns all messages for a chat in ascending timestamp order.
func (s *ChatService) History(ctx context.Context, chatID string) ([]domain.Message, error) {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		return nil, newError(ErrorInvalidInput, "empty_chat_id", nil)
	}
	msgs, err := s.store.List(ctx, chatID)
	if err != nil {
		return nil, newError(ErrorPersistence, "dynamodb_history_error", err)
	}
	return msgs, nil
}

var nowFunc = time.Now

var newAudioName = s3store.GenerateAudioName
