package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/guilhermeleaosoares/llm-council/internal/apierr"
	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

const defaultGeminiBase = "https://generativelanguage.googleapis.com"

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  map[string]interface{} `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func geminiURL(m models.ModelDescriptor, method string) string {
	base := trimBase(m.BaseURL, defaultGeminiBase, false)
	base = strings.TrimSuffix(base, "/v1beta")
	return fmt.Sprintf("%s/v1beta/models/%s:%s?key=%s", base, m.Slug, method, url.QueryEscape(m.APIKey))
}

// GeminiChat calls the Gemini generateContent REST endpoint.
type GeminiChat struct {
	HTTPClient *http.Client
}

// Chat sends a generateContent request with merged user/model turns.
func (p *GeminiChat) Chat(ctx context.Context, req ChatRequest) (string, error) {
	var contents []geminiContent
	for _, t := range alternatingTurns(req.Messages, req.Images) {
		role := "user"
		if t.role == models.RoleAssistant {
			role = "model"
		}
		var parts []geminiPart
		for _, text := range t.texts {
			parts = append(parts, geminiPart{Text: text})
		}
		for _, img := range t.images {
			parts = append(parts, geminiPart{InlineData: &geminiInlineData{MimeType: img.MimeType, Data: img.Base64}})
		}
		contents = append(contents, geminiContent{Role: role, Parts: parts})
	}

	payload := geminiRequest{
		Contents: contents,
		GenerationConfig: map[string]interface{}{
			"temperature":     req.Temperature,
			"maxOutputTokens": MaxTokens,
		},
	}
	if req.System != "" {
		payload.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}

	body, _, err := postJSON(ctx, p.HTTPClient, "gemini", geminiURL(req.Model, "generateContent"), nil, payload)
	if err != nil {
		return "", err
	}
	if err := embeddedError("gemini", body); err != nil {
		return "", err
	}

	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", apierr.Wrap(apierr.Parse, "gemini", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 || resp.Candidates[0].Content.Parts[0].Text == "" {
		return "", apierr.New(apierr.Parse, "gemini", 0, "empty response from model")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

// GeminiImages generates images through Gemini image models
// (generateContent with IMAGE modality) or Imagen (predict).
type GeminiImages struct {
	HTTPClient *http.Client
}

// GenerateImage dispatches on the model slug.
func (p *GeminiImages) GenerateImage(ctx context.Context, req MediaRequest) (*models.MediaResult, error) {
	if strings.Contains(req.Model.Slug, "gemini") {
		return p.generateContent(ctx, req)
	}
	return p.predict(ctx, req)
}

func (p *GeminiImages) generateContent(ctx context.Context, req MediaRequest) (*models.MediaResult, error) {
	payload := geminiRequest{
		Contents:         []geminiContent{{Parts: []geminiPart{{Text: req.Prompt}}}},
		GenerationConfig: map[string]interface{}{"responseModalities": []string{"IMAGE"}},
	}
	body, _, err := postJSON(ctx, p.HTTPClient, "gemini", geminiURL(req.Model, "generateContent"), nil, payload)
	if err != nil {
		return nil, err
	}

	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apierr.Wrap(apierr.Parse, "gemini", err)
	}
	if len(resp.Candidates) == 0 {
		return nil, apierr.New(apierr.Parse, "gemini", 0, "no image data returned from Gemini")
	}

	parts := resp.Candidates[0].Content.Parts
	for _, part := range parts {
		if part.InlineData != nil && strings.HasPrefix(part.InlineData.MimeType, "image/") {
			return &models.MediaResult{ImageURL: "data:" + part.InlineData.MimeType + ";base64," + part.InlineData.Data}, nil
		}
	}
	for _, part := range parts {
		if part.Text != "" {
			text := part.Text
			if len(text) > 200 {
				text = text[:200]
			}
			return nil, apierr.New(apierr.Parse, "gemini", 0, "model returned text instead of image: "+text)
		}
	}
	return nil, apierr.New(apierr.Parse, "gemini", 0, "no image data returned from Gemini")
}

func (p *GeminiImages) predict(ctx context.Context, req MediaRequest) (*models.MediaResult, error) {
	payload := map[string]interface{}{
		"instances":  []map[string]string{{"prompt": req.Prompt}},
		"parameters": map[string]int{"sampleCount": 1},
	}
	body, _, err := postJSON(ctx, p.HTTPClient, "imagen", geminiURL(req.Model, "predict"), nil, payload)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Predictions []struct {
			BytesBase64Encoded string `json:"bytesBase64Encoded"`
		} `json:"predictions"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, apierr.Wrap(apierr.Parse, "imagen", err)
	}
	if len(resp.Predictions) == 0 || resp.Predictions[0].BytesBase64Encoded == "" {
		return nil, apierr.New(apierr.Parse, "imagen", 0, "no image data returned from Imagen")
	}
	return &models.MediaResult{ImageURL: "data:image/png;base64," + resp.Predictions[0].BytesBase64Encoded}, nil
}
