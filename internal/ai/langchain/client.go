package langchain

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"

	"github.com/applydraft/internal/ai"
	"github.com/applydraft/pkg/models"
)

// Config configures the langchain-backed generation client.
type Config struct {
	APIKey    string
	ModelName string
}

// DefaultModel is the model used when none is configured.
const DefaultModel = "claude-haiku-4-5-20251001"

// Client implements ai.Generator on top of langchaingo's Anthropic bindings.
type Client struct {
	llm       llms.Model
	modelName string
}

// New creates a configured client. The API key is required.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("langchain: API key is required")
	}
	modelName := cfg.ModelName
	if modelName == "" {
		modelName = DefaultModel
	}

	llm, err := anthropic.New(
		anthropic.WithToken(cfg.APIKey),
		anthropic.WithModel(modelName),
	)
	if err != nil {
		return nil, fmt.Errorf("langchain: failed to initialize LLM: %w", err)
	}

	return &Client{llm: llm, modelName: modelName}, nil
}

// Generate issues one capability call. The response text is the concatenation
// of all text parts in the model's reply; token counts come from the
// provider's generation info when available.
func (c *Client) Generate(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResult, error) {
	maxTokens := req.MaxOutputTokens
	if maxTokens <= 0 || maxTokens > ai.MaxOutputTokens {
		maxTokens = ai.MaxOutputTokens
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, req.System),
		llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt),
	}

	opts := []llms.CallOption{
		llms.WithMaxTokens(maxTokens),
		llms.WithModel(c.modelName),
	}
	if req.SearchEnabled {
		maxSearches := req.MaxSearchOps
		if maxSearches <= 0 {
			maxSearches = 3
		}
		opts = append(opts, llms.WithTools(webSearchTools(maxSearches)))
	}

	log.Debug().
		Str("model", c.modelName).
		Int("max_tokens", maxTokens).
		Bool("search", req.SearchEnabled).
		Msg("Calling generation capability")

	resp, err := c.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return nil, fmt.Errorf("langchain: generate content: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("langchain: empty response from model")
	}

	var parts []string
	for _, choice := range resp.Choices {
		if text := strings.TrimSpace(choice.Content); text != "" {
			parts = append(parts, text)
		}
	}

	usage := usageFromChoice(resp.Choices[0].GenerationInfo)

	return &ai.GenerateResult{
		Text:  strings.Join(parts, "\n"),
		Usage: usage,
	}, nil
}

// webSearchTools declares Anthropic's server-side web search tool. The
// max_uses parameter rides in the tool definition so the provider enforces
// the search ceiling.
func webSearchTools(maxUses int) []llms.Tool {
	return []llms.Tool{
		{
			Type: "web_search_20250305",
			Function: &llms.FunctionDefinition{
				Name:        "web_search",
				Description: "Server-side web search",
				Parameters:  map[string]any{"max_uses": maxUses},
			},
		},
	}
}

// usageFromChoice pulls token counts from the provider's generation info.
// Key names vary across langchaingo provider bindings, so check the known
// spellings and fall back to zero rather than failing the call.
func usageFromChoice(info map[string]any) models.TokenUsage {
	usage := models.TokenUsage{APICalls: 1}
	if info == nil {
		return usage
	}
	usage.InputTokens = intFromInfo(info, "InputTokens", "input_tokens", "PromptTokens")
	usage.OutputTokens = intFromInfo(info, "OutputTokens", "output_tokens", "CompletionTokens")
	return usage
}

func intFromInfo(info map[string]any, keys ...string) int {
	for _, key := range keys {
		switch v := info[key].(type) {
		case int:
			return v
		case int64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return 0
}
