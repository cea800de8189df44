package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	DefaultModel         = "claude-sonnet-4-5"
	DefaultMaxTokens     = 8000
	classifyMaxTokens    = 200
	classifySystemPrompt = "Return either node or react based on what you think this project should be. Only return a single word, either 'node' or 'react'. Do not return anything extra."
	errEmptyResponseText = "empty response from model"
)

// AnthropicConfig configures the Anthropic client.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int64
}

// Anthropic implements Completer and Classifier over the Messages API. The
// SDK's retries are disabled: a failed call is reported once.
type Anthropic struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	system    string
}

// NewAnthropic creates a client. Empty fields fall back to defaults.
func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		model:     anthropic.Model(model),
		maxTokens: maxTokens,
		system:    SystemPrompt(),
	}
}

// Complete sends the conversation with the build system prompt and returns
// the reply text.
func (a *Anthropic) Complete(ctx context.Context, msgs []Message) (string, error) {
	if len(msgs) == 0 {
		return "", &ServiceError{Op: "complete", Err: errors.New("no messages")}
	}

	params := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleUser:
			params = append(params, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case RoleAssistant:
			params = append(params, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			return "", &ServiceError{Op: "complete", Err: fmt.Errorf("unknown role %q", m.Role)}
		}
	}

	text, err := a.send(ctx, a.system, a.maxTokens, params)
	if err != nil {
		return "", &ServiceError{Op: "complete", Err: err}
	}
	return text, nil
}

// Classify asks the model for the project type of prompt. The returned label
// is lowercased and trimmed but otherwise unchecked.
func (a *Anthropic) Classify(ctx context.Context, prompt string) (string, error) {
	params := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
	}
	text, err := a.send(ctx, classifySystemPrompt, classifyMaxTokens, params)
	if err != nil {
		return "", &ServiceError{Op: "classify", Err: err}
	}
	return normalizeLabel(text), nil
}

func (a *Anthropic) send(ctx context.Context, system string, maxTokens int64, msgs []anthropic.MessageParam) (string, error) {
	resp, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: system}},
		Messages:  msgs,
	})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New(errEmptyResponseText)
	}
	return sb.String(), nil
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Trim(s, ".'\"` ")
}
