// Package openai adapts the OpenAI Chat Completions API to the skill.Client
// interface using the official github.com/openai/openai-go SDK.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/parley-dev/parley/skill"
)

// ChatClient captures the subset of the OpenAI SDK used by the adapter, so
// callers can substitute a mock in tests.
type ChatClient interface {
	New(ctx context.Context, body sdk.ChatCompletionNewParams, opts ...option.RequestOption) (*sdk.ChatCompletion, error)
}

// Options configures the OpenAI adapter.
type Options struct {
	Client       ChatClient
	DefaultModel string
}

// Client implements skill.Client via the OpenAI Chat Completions API.
type Client struct {
	chat  ChatClient
	model string
}

var _ skill.Client = (*Client)(nil)

// New builds an OpenAI-backed skill.Client.
func New(opts Options) (*Client, error) {
	if opts.Client == nil {
		return nil, errors.New("openai: chat client is required")
	}
	modelID := strings.TrimSpace(opts.DefaultModel)
	if modelID == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{chat: opts.Client, model: modelID}, nil
}

// NewFromAPIKey constructs a client using the default OpenAI HTTP transport
// authenticated with apiKey. An empty or blank apiKey is an error.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(Options{Client: &c.Chat.Completions, DefaultModel: defaultModel})
}

// Complete implements skill.Client.
func (c *Client) Complete(ctx context.Context, req *skill.Request) (*skill.Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("openai: messages are required")
	}
	modelID := strings.TrimSpace(req.Model)
	if modelID == "" {
		modelID = c.model
	}

	messages := make([]sdk.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case skill.RoleSystem:
			messages = append(messages, sdk.SystemMessage(m.Text))
		case skill.RoleUser:
			messages = append(messages, sdk.UserMessage(m.Text))
		case skill.RoleAssistant:
			messages = append(messages, sdk.AssistantMessage(m.Text))
		}
	}

	tools, err := encodeTools(req.Tools)
	if err != nil {
		return nil, fmt.Errorf("openai: encode tools: %w", err)
	}

	params := sdk.ChatCompletionNewParams{
		Model:    modelID,
		Messages: messages,
		Tools:    tools,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(int64(req.MaxTokens))
	}

	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	return translateResponse(resp)
}

func encodeTools(defs []skill.ToolDefinition) ([]sdk.ChatCompletionToolParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]sdk.ChatCompletionToolParam, 0, len(defs))
	for _, d := range defs {
		schemaJSON, err := json.Marshal(d.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %q: marshal schema: %w", d.Name, err)
		}
		var params sdk.FunctionParameters
		if err := json.Unmarshal(schemaJSON, &params); err != nil {
			return nil, fmt.Errorf("tool %q: decode schema: %w", d.Name, err)
		}
		out = append(out, sdk.ChatCompletionToolParam{
			Function: sdk.FunctionDefinitionParam{
				Name:        d.Name,
				Description: sdk.String(d.Description),
				Parameters:  params,
			},
		})
	}
	return out, nil
}

func translateResponse(resp *sdk.ChatCompletion) (*skill.Response, error) {
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: no choices returned")
	}
	choice := resp.Choices[0]
	out := &skill.Response{
		Text:       choice.Message.Content,
		StopReason: string(choice.FinishReason),
		Usage: skill.TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, skill.ToolCall{
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
			ID:        tc.ID,
		})
	}
	return out, nil
}
