package llm

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/raphaelgruber/parq/internal/faults"
)

// ConverseAPI is the subset of the Bedrock runtime client the completer
// uses.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockCompleter talks to a Bedrock model via the Converse API.
type BedrockCompleter struct {
	client  ConverseAPI
	modelID string
}

// NewBedrockCompleter loads the default AWS configuration and creates a
// completer for the given model id.
func NewBedrockCompleter(ctx context.Context, modelID string) (*BedrockCompleter, error) {
	sdkConfig, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &BedrockCompleter{
		client:  bedrockruntime.NewFromConfig(sdkConfig),
		modelID: modelID,
	}, nil
}

// NewBedrockCompleterWithClient wires an explicit client (for testing).
func NewBedrockCompleterWithClient(client ConverseAPI, modelID string) *BedrockCompleter {
	return &BedrockCompleter{client: client, modelID: modelID}
}

// Complete submits one system+user prompt pair and returns the response
// text.
func (c *BedrockCompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	out, err := c.client.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId: aws.String(c.modelID),
		System: []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: systemPrompt},
		},
		Messages: []types.Message{{
			Role: types.ConversationRoleUser,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: userPrompt},
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("bedrock converse: %w: %w", faults.ErrLLMUnavailable, err)
	}
	return converseOutputText(out)
}

// converseOutputText extracts the first text block from a Converse
// response.
func converseOutputText(out *bedrockruntime.ConverseOutput) (string, error) {
	msg, ok := out.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return "", fmt.Errorf("converse output is not a message: %w", faults.ErrLLMUnavailable)
	}
	if len(msg.Value.Content) == 0 {
		return "", fmt.Errorf("converse message has no content: %w", faults.ErrLLMUnavailable)
	}
	text, ok := msg.Value.Content[0].(*types.ContentBlockMemberText)
	if !ok {
		return "", fmt.Errorf("converse content is not text: %w", faults.ErrLLMUnavailable)
	}
	return text.Value, nil
}
