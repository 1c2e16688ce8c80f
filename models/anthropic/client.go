// Package anthropic adapts the Anthropic Claude Messages API to the
// skill.Client interface, translating negotiation skill requests into
// anthropic.Message calls and mapping tool calls and usage back into the
// generic skill.Response shape.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/parley-dev/parley/skill"
)

// MessagesClient captures the subset of the Anthropic SDK used by the
// adapter, so callers can substitute a mock in tests.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// Options configures the Anthropic adapter.
type Options struct {
	// DefaultModel is used when a Request does not specify Model.
	DefaultModel string
	// MaxTokens is the default completion cap when a Request does not
	// specify MaxTokens.
	MaxTokens int
}

// Client implements skill.Client on top of Anthropic Claude Messages.
type Client struct {
	msg          MessagesClient
	defaultModel string
	maxTokens    int
}

var _ skill.Client = (*Client)(nil)

// New builds an Anthropic-backed skill.Client.
func New(msg MessagesClient, opts Options) (*Client, error) {
	if msg == nil {
		return nil, errors.New("anthropic: messages client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("anthropic: default model is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Client{msg: msg, defaultModel: opts.DefaultModel, maxTokens: maxTokens}, nil
}

// NewFromAPIKey constructs a client using the default Anthropic HTTP
// transport authenticated with apiKey. An empty apiKey is an error.
func NewFromAPIKey(apiKey, defaultModel string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&c.Messages, Options{DefaultModel: defaultModel})
}

// Complete implements skill.Client.
func (c *Client) Complete(ctx context.Context, req *skill.Request) (*skill.Response, error) {
	if len(req.Messages) == 0 {
		return nil, errors.New("anthropic: messages are required")
	}

	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	msgs, system := encodeMessages(req.Messages)
	tools, err := encodeTools(req.Tools)
	if err != nil {
		return nil, fmt.Errorf("anthropic: encode tools: %w", err)
	}

	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
		Model:     sdk.Model(modelID),
	}
	if system != "" {
		params.System = []sdk.TextBlockParam{{Text: system}}
	}
	if len(tools) > 0 {
		params.Tools = tools
	}

	resp, err := c.msg.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic: messages.new: %w", err)
	}
	return translateResponse(resp)
}

func encodeMessages(msgs []skill.Message) ([]sdk.MessageParam, string) {
	var system string
	var out []sdk.MessageParam
	for _, m := range msgs {
		switch m.Role {
		case skill.RoleSystem:
			system = m.Text
		case skill.RoleUser:
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Text)))
		case skill.RoleAssistant:
			out = append(out, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Text)))
		}
	}
	return out, system
}

func encodeTools(defs []skill.ToolDefinition) ([]sdk.ToolUnionParam, error) {
	if len(defs) == 0 {
		return nil, nil
	}
	out := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		schemaJSON, err := json.Marshal(d.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %q: marshal schema: %w", d.Name, err)
		}
		var schema sdk.ToolInputSchemaParam
		if err := json.Unmarshal(schemaJSON, &schema); err != nil {
			return nil, fmt.Errorf("tool %q: decode schema: %w", d.Name, err)
		}
		out = append(out, sdk.ToolUnionParam{
			OfTool: &sdk.ToolParam{
				Name:        d.Name,
				Description: sdk.String(d.Description),
				InputSchema: schema,
			},
		})
	}
	return out, nil
}

func translateResponse(msg *sdk.Message) (*skill.Response, error) {
	resp := &skill.Response{
		StopReason: string(msg.StopReason),
		Usage: skill.TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case sdk.TextBlock:
			resp.Text += b.Text
		case sdk.ToolUseBlock:
			resp.ToolCalls = append(resp.ToolCalls, skill.ToolCall{
				Name:      b.Name,
				Arguments: json.RawMessage(b.Input),
				ID:        b.ID,
			})
		}
	}
	return resp, nil
}
