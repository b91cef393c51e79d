package providers

import (
	"context"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go/v3"
	openaioption "github.com/openai/openai-go/v3/option"

	"github.com/codemode/toolgateway/internal/model"
)

// AICompletePayload is the provider-payload shape for the built-in
// ai.complete tool: which vendor backs the call (MODULE ADDITIONS: lets
// code-mode snippets call an LLM as just another tools.* member).
type AICompletePayload struct {
	Vendor       string `json:"vendor"` // "anthropic" | "openai"
	DefaultModel string `json:"defaultModel"`
}

// AICompleteFunc returns a BuiltinFunc implementing `ai.complete(prompt,
// model?)`, dispatching to Anthropic or OpenAI per the descriptor's
// AICompletePayload.
func AICompleteFunc() BuiltinFunc {
	anthropicClient := anthropic.NewClient(anthropicoption.WithAPIKey(os.Getenv("ANTHROPIC_API_KEY")))
	openaiClient := openai.NewClient(openaioption.WithAPIKey(os.Getenv("OPENAI_API_KEY")))

	return func(ctx context.Context, desc model.ToolDescriptor, args map[string]any, ic InvokeContext) (InvokeResult, error) {
		prompt, err := RequireString(args, "prompt")
		if err != nil {
			return InvokeResult{}, err
		}
		modelName, _ := args["model"].(string)

		vendor := "anthropic"
		if payload, ok := desc.ProviderPayload.(*AICompletePayload); ok && payload.Vendor != "" {
			vendor = payload.Vendor
		}
		if modelName == "" {
			if payload, ok := desc.ProviderPayload.(*AICompletePayload); ok {
				modelName = payload.DefaultModel
			}
		}

		switch vendor {
		case "openai":
			if modelName == "" {
				modelName = openai.ChatModelGPT4oMini
			}
			resp, err := openaiClient.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
				Model: modelName,
				Messages: []openai.ChatCompletionMessageParamUnion{
					openai.UserMessage(prompt),
				},
			})
			if err != nil {
				return InvokeResult{}, model.Errorf(model.ErrProvider, "ai.complete (openai) failed: %v", err)
			}
			if len(resp.Choices) == 0 {
				return InvokeResult{Body: ""}, nil
			}
			return InvokeResult{Body: resp.Choices[0].Message.Content}, nil

		default:
			if modelName == "" {
				modelName = string(anthropic.ModelClaudeSonnet4_5_20250929)
			}
			resp, err := anthropicClient.Messages.New(ctx, anthropic.MessageNewParams{
				Model:     anthropic.Model(modelName),
				MaxTokens: 1024,
				Messages: []anthropic.MessageParam{
					anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
				},
			})
			if err != nil {
				return InvokeResult{}, model.Errorf(model.ErrProvider, "ai.complete (anthropic) failed: %v", err)
			}
			var out string
			for _, block := range resp.Content {
				if block.Type == "text" {
					out += block.Text
				}
			}
			return InvokeResult{Body: out}, nil
		}
	}
}
