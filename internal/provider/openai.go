package provider

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/guilhermeleaosoares/llm-council/internal/apierr"
	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

const (
	defaultOpenAIBase = "https://api.openai.com"
	openRouterReferer = "http://localhost:5173"
	openRouterTitle   = "LLM Council"
)

// OpenAIChat talks to any OpenAI-compatible chat completions endpoint
// (OpenAI, OpenRouter, xAI, DeepSeek, Groq, Together, Kie, ...).
// With SlugInPath the model slug is part of the URL path, as Kie requires.
type OpenAIChat struct {
	HTTPClient *http.Client
	SlugInPath bool
}

func (p *OpenAIChat) newClient(m models.ModelDescriptor) openai.Client {
	var base string
	if p.SlugInPath {
		base = trimBase(m.BaseURL, "https://api.kie.ai", true) + "/" + m.Slug + "/v1/"
	} else {
		base = trimBase(m.BaseURL, defaultOpenAIBase, true) + "/v1/"
	}
	return openai.NewClient(openAIOptions(p.HTTPClient, m, base)...)
}

func openAIOptions(client *http.Client, m models.ModelDescriptor, base string) []option.RequestOption {
	opts := []option.RequestOption{
		option.WithAPIKey(m.APIKey),
		option.WithBaseURL(base),
		option.WithMaxRetries(0),
	}
	if client != nil {
		opts = append(opts, option.WithHTTPClient(client))
	}
	if strings.Contains(base, "openrouter.ai") {
		opts = append(opts,
			option.WithHeader("HTTP-Referer", openRouterReferer),
			option.WithHeader("X-Title", openRouterTitle),
		)
	}
	return opts
}

// Chat sends a chat completion request.
func (p *OpenAIChat) Chat(ctx context.Context, req ChatRequest) (string, error) {
	client := p.newClient(req.Model)

	slug := req.Model.Slug
	if slug == "" {
		slug = "gpt-4o"
	}
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(slug),
		Messages:    buildOpenAIMessages(req),
		Temperature: openai.Float(req.Temperature),
		MaxTokens:   openai.Int(MaxTokens),
	}

	completion, err := client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", openAIError(err)
	}
	if err := embeddedError("openai", []byte(completion.RawJSON())); err != nil {
		return "", err
	}
	if len(completion.Choices) == 0 || completion.Choices[0].Message.Content == "" {
		return "", apierr.New(apierr.Parse, "openai", 0, "empty response from model")
	}
	return completion.Choices[0].Message.Content, nil
}

// buildOpenAIMessages converts the neutral request into chat messages.
// Images ride on the final message when it is a user message.
func buildOpenAIMessages(req ChatRequest) []openai.ChatCompletionMessageParamUnion {
	var result []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		result = append(result, openai.SystemMessage(req.System))
	}

	for i, m := range req.Messages {
		switch m.Role {
		case models.RoleAssistant:
			result = append(result, openai.AssistantMessage(m.Content))
		case models.RoleSystem:
			result = append(result, openai.SystemMessage(m.Content))
		default:
			if i == len(req.Messages)-1 && len(req.Images) > 0 {
				var parts []openai.ChatCompletionContentPartUnionParam
				if m.Content != "" {
					parts = append(parts, openai.TextContentPart(m.Content))
				}
				for _, img := range req.Images {
					parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
						URL: dataURI(img),
					}))
				}
				result = append(result, openai.UserMessage(parts))
				continue
			}
			result = append(result, openai.UserMessage(m.Content))
		}
	}
	return result
}

// openAIError classifies an SDK error, preferring a numeric error code from
// the body over the HTTP status.
func openAIError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return apierr.Wrap(apierr.Transport, "openai", err)
	}

	status := apiErr.StatusCode
	if code, convErr := strconv.Atoi(apiErr.Code); convErr == nil && code >= 100 && code <= 599 {
		status = code
	}
	msg := apiErr.Message
	if msg == "" {
		msg = http.StatusText(apiErr.StatusCode)
	}
	return &apierr.Error{Kind: apierr.Transport, Provider: "openai", Status: status, Message: msg, Err: err}
}

// OpenAIImages generates images through an OpenAI-compatible
// images/generations endpoint (OpenAI, xAI, AIMLAPI, ...).
type OpenAIImages struct {
	HTTPClient *http.Client
}

// GenerateImage requests one 1024x1024 image.
func (p *OpenAIImages) GenerateImage(ctx context.Context, req MediaRequest) (*models.MediaResult, error) {
	base := trimBase(req.Model.BaseURL, defaultOpenAIBase, true) + "/v1/"
	client := openai.NewClient(openAIOptions(p.HTTPClient, req.Model, base)...)

	slug := req.Model.Slug
	if slug == "" {
		slug = "dall-e-3"
	}
	resp, err := client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt: req.Prompt,
		Model:  openai.ImageModel(slug),
		N:      openai.Int(1),
		Size:   openai.ImageGenerateParamsSize1024x1024,
	})
	if err != nil {
		return nil, openAIError(err)
	}
	if len(resp.Data) == 0 {
		return nil, apierr.New(apierr.Parse, "openai", 0, "no image data returned")
	}

	img := resp.Data[0]
	if img.URL != "" {
		return &models.MediaResult{ImageURL: img.URL}, nil
	}
	if img.B64JSON != "" {
		return &models.MediaResult{ImageURL: "data:image/png;base64," + img.B64JSON}, nil
	}
	return nil, apierr.New(apierr.Parse, "openai", 0, "no image data returned")
}
