package provider

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/guilhermeleaosoares/llm-council/internal/apierr"
	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

const defaultAnthropicBase = "https://api.anthropic.com"

// AnthropicChat implements the Anthropic Messages API using the official SDK.
type AnthropicChat struct {
	HTTPClient *http.Client
}

// Chat sends a Messages request. Turns are merged into strict alternation
// and images precede the text of the final user turn.
func (p *AnthropicChat) Chat(ctx context.Context, req ChatRequest) (string, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(req.Model.APIKey),
		option.WithBaseURL(trimBase(req.Model.BaseURL, defaultAnthropicBase, true) + "/"),
		option.WithMaxRetries(0),
	}
	if p.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(p.HTTPClient))
	}
	client := anthropic.NewClient(opts...)

	slug := req.Model.Slug
	if slug == "" {
		slug = "claude-sonnet-4-20250514"
	}
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(slug),
		MaxTokens:   int64(MaxTokens),
		Messages:    buildAnthropicMessages(req),
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{
			{Text: req.System},
		}
	}

	msg, err := client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &apierr.Error{Kind: apierr.Transport, Provider: "anthropic", Status: apiErr.StatusCode, Message: err.Error(), Err: err}
		}
		return "", apierr.Wrap(apierr.Transport, "anthropic", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", apierr.New(apierr.Parse, "anthropic", 0, "empty response from model")
}

func buildAnthropicMessages(req ChatRequest) []anthropic.MessageParam {
	var result []anthropic.MessageParam
	for _, t := range alternatingTurns(req.Messages, req.Images) {
		var blocks []anthropic.ContentBlockParamUnion
		for _, img := range t.images {
			blocks = append(blocks, anthropic.NewImageBlockBase64(img.MimeType, img.Base64))
		}
		if text := strings.Join(t.texts, "\n\n"); text != "" {
			blocks = append(blocks, anthropic.NewTextBlock(text))
		}
		if len(blocks) == 0 {
			blocks = append(blocks, anthropic.NewTextBlock("."))
		}

		if t.role == models.RoleAssistant {
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		} else {
			result = append(result, anthropic.NewUserMessage(blocks...))
		}
	}
	return result
}
