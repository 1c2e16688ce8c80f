package anthropic

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/require"

	"github.com/parley-dev/parley/skill"
)

type stubMessagesClient struct {
	lastParams sdk.MessageNewParams
	resp       *sdk.Message
	err        error
}

func (s *stubMessagesClient) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	s.lastParams = body
	return s.resp, s.err
}

func TestCompleteTextOnly(t *testing.T) {
	stub := &stubMessagesClient{
		resp: &sdk.Message{
			StopReason: sdk.StopReasonEndTurn,
			Usage:      sdk.Usage{InputTokens: 10, OutputTokens: 5},
		},
	}
	cl, err := New(stub, Options{DefaultModel: "claude-3-5-sonnet", MaxTokens: 128})
	require.NoError(t, err)

	resp, err := cl.Complete(context.Background(), &skill.Request{
		Messages: []skill.Message{{Role: skill.RoleUser, Text: "hello"}},
	})
	require.NoError(t, err)
	require.Equal(t, string(sdk.StopReasonEndTurn), resp.StopReason)
	require.Equal(t, 15, resp.Usage.TotalTokens)
	require.Equal(t, "claude-3-5-sonnet", string(stub.lastParams.Model))
}

func TestCompleteRejectsEmptyMessages(t *testing.T) {
	cl, err := New(&stubMessagesClient{}, Options{DefaultModel: "m"})
	require.NoError(t, err)
	_, err = cl.Complete(context.Background(), &skill.Request{})
	require.Error(t, err)
}

func TestNewRequiresDefaultModel(t *testing.T) {
	_, err := New(&stubMessagesClient{}, Options{})
	require.Error(t, err)
}
