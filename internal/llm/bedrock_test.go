package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/raphaelgruber/parq/internal/config"
	"github.com/raphaelgruber/parq/internal/faults"
)

type fakeConverse struct {
	in   *bedrockruntime.ConverseInput
	text string
	err  error
}

func (f *fakeConverse) Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.in = params
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{
			Value: types.Message{
				Role:    types.ConversationRoleAssistant,
				Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: f.text}},
			},
		},
	}, nil
}

func TestBedrockComplete(t *testing.T) {
	fake := &fakeConverse{text: "SELECT 1"}
	c := NewBedrockCompleterWithClient(fake, "model-id")

	got, err := c.Complete(context.Background(), "system", "user")
	if err != nil {
		t.Fatal(err)
	}
	if got != "SELECT 1" {
		t.Errorf("got %q", got)
	}
	if *fake.in.ModelId != "model-id" {
		t.Errorf("model = %q", *fake.in.ModelId)
	}
	system, ok := fake.in.System[0].(*types.SystemContentBlockMemberText)
	if !ok || system.Value != "system" {
		t.Errorf("system block = %+v", fake.in.System)
	}
	if len(fake.in.Messages) != 1 || fake.in.Messages[0].Role != types.ConversationRoleUser {
		t.Errorf("messages = %+v", fake.in.Messages)
	}
}

func TestBedrockCompleteTransportError(t *testing.T) {
	fake := &fakeConverse{err: errors.New("throttled")}
	c := NewBedrockCompleterWithClient(fake, "model-id")

	_, err := c.Complete(context.Background(), "s", "u")
	if !errors.Is(err, faults.ErrLLMUnavailable) {
		t.Fatalf("err = %v, want ErrLLMUnavailable", err)
	}
}

func TestBedrockCompleteEmptyOutput(t *testing.T) {
	fake := &fakeConverse{}
	c := NewBedrockCompleterWithClient(fake, "model-id")

	// An empty text block is still a response: it comes back as an empty
	// string, not an error.
	fake.text = ""
	out, err := c.Complete(context.Background(), "s", "u")
	if err != nil {
		t.Fatalf("empty text is still a response: %v", err)
	}
	if out != "" {
		t.Errorf("got %q", out)
	}
}

func TestNewCompleterUnknownProvider(t *testing.T) {
	_, err := NewCompleter(context.Background(), config.Config{LLMProvider: "carrier-pigeon"})
	if err == nil {
		t.Error("unknown provider must fail")
	}
}
