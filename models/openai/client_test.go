package openai

import (
	"context"
	"testing"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/require"

	"github.com/parley-dev/parley/skill"
)

type stubChatClient struct {
	lastParams sdk.ChatCompletionNewParams
	resp       *sdk.ChatCompletion
	err        error
}

func (s *stubChatClient) New(_ context.Context, body sdk.ChatCompletionNewParams, _ ...option.RequestOption) (*sdk.ChatCompletion, error) {
	s.lastParams = body
	return s.resp, s.err
}

func TestCompleteTextOnly(t *testing.T) {
	stub := &stubChatClient{
		resp: &sdk.ChatCompletion{
			Choices: []sdk.ChatCompletionChoice{
				{
					Message:      sdk.ChatCompletionMessage{Content: "hi there"},
					FinishReason: "stop",
				},
			},
			Usage: sdk.CompletionUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
	}
	cl, err := New(Options{Client: stub, DefaultModel: "gpt-4o"})
	require.NoError(t, err)

	resp, err := cl.Complete(context.Background(), &skill.Request{
		Messages: []skill.Message{{Role: skill.RoleUser, Text: "hello"}},
	})
	require.NoError(t, err)
	require.Equal(t, "hi there", resp.Text)
	require.Equal(t, 15, resp.Usage.TotalTokens)
	require.Equal(t, "gpt-4o", stub.lastParams.Model)
}

func TestCompleteRejectsEmptyMessages(t *testing.T) {
	cl, err := New(Options{Client: &stubChatClient{}, DefaultModel: "m"})
	require.NoError(t, err)
	_, err = cl.Complete(context.Background(), &skill.Request{})
	require.Error(t, err)
}

func TestNewRequiresDefaultModel(t *testing.T) {
	_, err := New(Options{Client: &stubChatClient{}})
	require.Error(t, err)
}
