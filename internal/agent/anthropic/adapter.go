// Package anthropic adapts agent.InferenceService to the Anthropic Messages
// API, translating the reactor's provider-agnostic transcript and tool
// specs into request parameters and back.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/voidreach/sectors/internal/agent"
)

// Config holds the adapter's model and extended-thinking settings.
// IncludeThoughts is stored but not read by Service: thinking blocks in a
// response are dropped and never reach the agent.InferenceResult.
type Config struct {
	APIKey          string
	Model           string
	MaxTokens       int64
	ThinkingBudget  int64
	IncludeThoughts bool
}

// Service implements agent.InferenceService against the Anthropic Messages
// API.
type Service struct {
	client sdk.Client
	cfg    Config
}

// NewService builds a Service from cfg.
func NewService(cfg Config) *Service {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return &Service{
		client: sdk.NewClient(option.WithAPIKey(cfg.APIKey)),
		cfg:    cfg,
	}
}

// Infer sends the transcript and tool definitions to the model and
// translates the response back into an agent.InferenceResult.
func (s *Service) Infer(ctx context.Context, messages []agent.Message, tools []*agent.Tool) (agent.InferenceResult, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(s.cfg.Model),
		MaxTokens: s.cfg.MaxTokens,
		Messages:  toSDKMessages(messages),
		Tools:     toSDKTools(tools),
	}
	for _, m := range messages {
		if m.Role == "system" {
			params.System = append(params.System, sdk.TextBlockParam{Text: m.Content})
		}
	}
	if s.cfg.ThinkingBudget > 0 {
		params.Thinking = sdk.ThinkingConfigParamOfEnabled(s.cfg.ThinkingBudget)
	}

	message, err := s.client.Messages.New(ctx, params)
	if err != nil {
		return agent.InferenceResult{}, fmt.Errorf("anthropic: infer: %w", err)
	}
	return toInferenceResult(message), nil
}

func toSDKMessages(messages []agent.Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			continue // system prompt is carried separately, not as a transcript turn
		case "assistant":
			out = append(out, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		case "tool":
			out = append(out, sdk.NewUserMessage(sdk.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		default:
			out = append(out, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		}
	}
	return out
}

func toSDKTools(tools []*agent.Tool) []sdk.ToolUnionParam {
	out := make([]sdk.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		out = append(out, sdk.ToolUnionParam{
			OfTool: &sdk.ToolParam{
				Name:        t.Name,
				Description: sdk.String(t.Description),
				InputSchema: sdk.ToolInputSchemaParam{
					Type: "object",
				},
			},
		})
	}
	return out
}

func toInferenceResult(message *sdk.Message) agent.InferenceResult {
	result := agent.InferenceResult{}
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case sdk.TextBlock:
			result.Text += variant.Text
		case sdk.ToolUseBlock:
			args := map[string]any{}
			_ = json.Unmarshal(variant.Input, &args)
			result.ToolCalls = append(result.ToolCalls, agent.ToolCall{
				ID:   variant.ID,
				Name: variant.Name,
				Args: args,
			})
		}
	}
	return result
}
