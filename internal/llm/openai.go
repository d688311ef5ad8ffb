package llm

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"kazo/internal/log"
)

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *log.Logger
	Metrics Metrics
	// HTTPClient overrides the transport, mostly for tests.
	HTTPClient *http.Client
}

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint.
// Structured requests use the json_schema response format.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *log.Logger
	metrics Metrics
}

func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Discard()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}
	return &OpenAIClient{
		client:  openai.NewClientWithConfig(oc),
		model:   cfg.Model,
		timeout: cfg.Timeout,
		logger:  cfg.Logger.WithComponent(log.ComponentLLM),
		metrics: cfg.Metrics,
	}
}

func (c *OpenAIClient) Ask(ctx context.Context, req Request) (string, error) {
	msgs, err := c.messages(req)
	if err != nil {
		return "", err
	}
	return c.complete(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
	}, c.timeout)
}

func (c *OpenAIClient) AskStructured(ctx context.Context, req Request) (json.RawMessage, error) {
	msgs, err := c.messages(req)
	if err != nil {
		return nil, err
	}
	name := req.SchemaName
	if name == "" {
		name = "response"
	}
	timeout := c.timeout
	if req.ImagePath != "" {
		timeout *= 2
	}
	content, err := c.complete(ctx, openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: msgs,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: req.Schema,
			},
		},
	}, timeout)
	if err != nil {
		return nil, err
	}
	content = stripFence(content)
	if content == "" {
		return nil, ErrNoStructuredOutput
	}
	if !json.Valid([]byte(content)) {
		return nil, fmt.Errorf("%w: %.300s", ErrNoStructuredOutput, content)
	}
	return json.RawMessage(content), nil
}

func (c *OpenAIClient) complete(ctx context.Context, creq openai.ChatCompletionRequest, timeout time.Duration) (string, error) {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := c.client.CreateChatCompletion(callCtx, creq)
	if err != nil {
		if callCtx.Err() != nil {
			err = fmt.Errorf("chat completion: %w", callCtx.Err())
		} else {
			err = fmt.Errorf("chat completion: %w", err)
		}
		c.metrics.ObserveLLMCall("openai", outcome(err), time.Since(start))
		return "", err
	}
	if len(resp.Choices) == 0 {
		err := fmt.Errorf("chat completion returned no choices")
		c.metrics.ObserveLLMCall("openai", outcome(err), time.Since(start))
		return "", err
	}
	c.metrics.ObserveLLMCall("openai", outcome(nil), time.Since(start))
	c.logger.DebugContext(ctx, "Chat completion finished",
		"model", resp.Model,
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		log.FieldDuration, time.Since(start).Milliseconds())
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) messages(req Request) ([]openai.ChatCompletionMessage, error) {
	var msgs []openai.ChatCompletionMessage
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	if req.ImagePath == "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.Prompt,
		})
		return msgs, nil
	}

	url, err := imageDataURL(req.ImagePath)
	if err != nil {
		return nil, err
	}
	msgs = append(msgs, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser,
		MultiContent: []openai.ChatMessagePart{
			{Type: openai.ChatMessagePartTypeText, Text: req.Prompt},
			{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
				URL:    url,
				Detail: openai.ImageURLDetailHigh,
			}},
		},
	})
	return msgs, nil
}

func imageDataURL(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return "", fmt.Errorf("unsupported attachment type %q for this backend", mime)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// stripFence removes a surrounding ```json fence some models add.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
