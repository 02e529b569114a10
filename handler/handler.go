package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"kitsune-backend/internal/domain"
	"kitsune-backend/internal/usecase"
)

// defaultTemperature applies when the client omits the sampling parameter.
const defaultTemperature = 0.2

// ChatUseCase is the orchestration surface consumed by the HTTP handlers.
type ChatUseCase interface {
	Respond(ctx context.Context, in usecase.ChatInput) (usecase.ChatOutput, error)
	History(ctx context.Context, chatID string) ([]domain.Message, error)
}

type chatRequest struct {
	ChatID         string   `json:"chat_id" binding:"required"`
	Timestamp      int64    `json:"timestamp" binding:"required"`
	Message        string   `json:"message" binding:"required"`
	Model          string   `json:"model" binding:"required"`
	PromptTemplate string   `json:"prompt_template"`
	Temperature    *float32 `json:"temperature"`
}

type messagesRequest struct {
	ChatID string `json:"chat_id" binding:"required"`
}

// Handler serves the chat HTTP surface.
type Handler struct {
	chat   ChatUseCase
	logger *slog.Logger
}

// NewHandler creates a Handler around the given use case.
func NewHandler(chat ChatUseCase, logger *slog.Logger) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat use case must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{chat: chat, logger: logger}, nil
}

// NewRouter builds the gin engine with recovery, CORS and all routes.
func NewRouter(h *Handler, allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprint(recovered)})
	}))
	r.Use(corsMiddleware(allowedOrigins))

	r.GET("/", h.Root)
	r.POST("/chat", h.Chat)
	r.POST("/chat/messages", h.Messages)
	return r
}

// Root is the liveness probe.
func (h *Handler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"Hello": "World"})
}

// Chat runs one conversational turn.
func (h *Handler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	temperature := float32(defaultTemperature)
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	out, err := h.chat.Respond(c.Request.Context(), usecase.ChatInput{
		ChatID:         req.ChatID,
		Timestamp:      req.Timestamp,
		Message:        req.Message,
		Model:          req.Model,
		PromptTemplate: req.PromptTemplate,
		Temperature:    temperature,
	})
	if err != nil {
		h.logger.Error("chat turn failed", "chat_id", req.ChatID, "err", err)
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}

	payload := gin.H{"data": gin.H{"response": out.Response}}
	// Audio keys appear only when synthesis produced bytes; the link is null
	// when upload or presigning failed.
	if out.AudioFileName != "" {
		payload["audio_s3_upload"] = out.AudioUploaded
		payload["audio_file_name"] = out.AudioFileName
		if out.AudioLink != "" {
			payload["audio_link"] = out.AudioLink
		} else {
			payload["audio_link"] = nil
		}
	}
	c.JSON(http.StatusOK, payload)
}

// Messages returns the full history for one chat in ascending timestamp order.
func (h *Handler) Messages(c *gin.Context) {
	var req messagesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msgs, err := h.chat.History(c.Request.Context(), req.ChatID)
	if err != nil {
		h.logger.Error("history fetch failed", "chat_id", req.ChatID, "err", err)
		c.JSON(statusForError(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": msgs})
}

// statusForError maps use-case errors onto HTTP statuses: malformed input is
// the client's fault, everything else is a server error.
func statusForError(err error) int {
	var ucErr *usecase.Error
	if errors.As(err, &ucErr) && ucErr.Code == usecase.ErrorInvalidInput {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// corsMiddleware allows the configured browser origins to call the API.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if _, ok := allowed[origin]; ok {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, Origin")
			c.Writer.Header().Set("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
