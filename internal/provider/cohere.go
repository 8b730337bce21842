package provider

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/guilhermeleaosoares/llm-council/internal/apierr"
	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

const defaultCohereBase = "https://api.cohere.com"

// CohereChat calls the Cohere v2 chat endpoint.
type CohereChat struct {
	HTTPClient *http.Client
}

type cohereImageURL struct {
	URL string `json:"url"`
}

type cohereContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *cohereImageURL `json:"image_url,omitempty"`
}

type cohereMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// Chat sends a v2 chat request. The system prompt leads the message list.
func (p *CohereChat) Chat(ctx context.Context, req ChatRequest) (string, error) {
	var msgs []cohereMessage
	if req.System != "" {
		msgs = append(msgs, cohereMessage{Role: "system", Content: req.System})
	}
	for i, m := range req.Messages {
		role := "user"
		if m.Role == models.RoleAssistant {
			role = "assistant"
		}
		if i == len(req.Messages)-1 && role == "user" && len(req.Images) > 0 {
			var parts []cohereContentPart
			if m.Content != "" {
				parts = append(parts, cohereContentPart{Type: "text", Text: m.Content})
			}
			for _, img := range req.Images {
				parts = append(parts, cohereContentPart{Type: "image_url", ImageURL: &cohereImageURL{URL: dataURI(img)}})
			}
			msgs = append(msgs, cohereMessage{Role: role, Content: parts})
			continue
		}
		msgs = append(msgs, cohereMessage{Role: role, Content: m.Content})
	}

	slug := req.Model.Slug
	if slug == "" {
		slug = "command-r-plus"
	}
	payload := map[string]interface{}{
		"model":       slug,
		"messages":    msgs,
		"temperature": req.Temperature,
		"max_tokens":  MaxTokens,
	}
	headers := map[string]string{"Authorization": "Bearer " + req.Model.APIKey}

	url := trimBase(req.Model.BaseURL, defaultCohereBase, true)
	body, _, err := postJSON(ctx, p.HTTPClient, "cohere", url+"/v2/chat", headers, payload)
	if err != nil {
		return "", err
	}
	if err := embeddedError("cohere", body); err != nil {
		return "", err
	}

	var resp struct {
		Message struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"message"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", apierr.Wrap(apierr.Parse, "cohere", err)
	}
	if len(resp.Message.Content) > 0 && resp.Message.Content[0].Text != "" {
		return resp.Message.Content[0].Text, nil
	}
	if resp.Text != "" {
		return resp.Text, nil
	}
	return "", apierr.New(apierr.Parse, "cohere", 0, "empty response from model")
}
