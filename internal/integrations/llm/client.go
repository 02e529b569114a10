package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"kitsune-backend/internal/domain"
	"kitsune-backend/internal/integrations/paramstore"
)

// Client invokes the OpenAI chat-completions API. The API key is fetched
// from SSM on the first call to Chat and reused for the lifetime of the
// process.
type Client struct {
	baseURL     string
	getter      paramstore.Getter
	paramPrefix string

	initOnce sync.Once
	api      *openai.Client
	initErr  error
}

type Option func(*Client)

// WithBaseURL points the client at an alternate OpenAI-compatible endpoint.
// Used in tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

// NewClient creates a new Client backed by the given paramstore.Getter for
// API key retrieval.
func NewClient(ps paramstore.Getter, paramPrefix string, opts ...Option) (*Client, error) {
	if ps == nil {
		return nil, errors.New("llm: paramstore getter must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("llm: parameter prefix must not be empty")
	}
	c := &Client{
		getter:      ps,
		paramPrefix: paramPrefix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) tokenParameterName() string {
	return c.paramPrefix + "/open-ai-token"
}

// resolveAPI builds the underlying go-openai client on first use, fetching
// the API key from the parameter store exactly once.
func (c *Client) resolveAPI(ctx context.Context) (*openai.Client, error) {
	c.initOnce.Do(func() {
		token, err := paramstore.FetchToken(ctx, c.getter, c.tokenParameterName())
		if err != nil {
			c.initErr = err
			return
		}
		cfg := openai.DefaultConfig(token)
		if c.baseURL != "" {
			cfg.BaseURL = c.baseURL
		}
		c.api = openai.NewClientWithConfig(cfg)
	})
	return c.api, c.initErr
}

// Chat sends the composed prompt messages to the model and returns the
// generated text. Model and temperature are passed through unchanged and
// validated only by the service.
func (c *Client) Chat(ctx context.Context, model string, temperature float32, messages []domain.ChatMessage) (string, error) {
	if model == "" {
		return "", errors.New("llm: model must not be empty")
	}

	api, err := c.resolveAPI(ctx)
	if err != nil {
		return "", err
	}

	req := openai.ChatCompletionRequest{
		Model:       model,
		Temperature: temperature,
		Messages:    toCompletionMessages(messages),
	}

	resp, err := api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("llm: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("llm: no choices in response")
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", errors.New("llm: empty completion content")
	}
	return content, nil
}

func toCompletionMessages(messages []domain.ChatMessage) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    completionRole(m.Role),
			Content: m.Content,
		})
	}
	return out
}

// completionRole maps stored roles onto the chat-completions role set.
func completionRole(role string) string {
	switch role {
	case "system":
		return openai.ChatMessageRoleSystem
	case domain.RoleAI, "assistant":
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
