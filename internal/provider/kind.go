package provider

import (
	"strings"

	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

// Kind identifies the wire protocol family of a model endpoint.
type Kind string

const (
	KindOpenAI      Kind = "openai-compat"
	KindGemini      Kind = "gemini"
	KindAnthropic   Kind = "anthropic"
	KindCohere      Kind = "cohere"
	KindKie         Kind = "kie"
	KindFal         Kind = "fal"
	KindHuggingFace Kind = "huggingface"
	KindAIMLAPI     Kind = "aimlapi"
)

// Classify maps a base URL onto a provider kind by domain pattern.
func Classify(baseURL string) Kind {
	u := strings.ToLower(baseURL)
	switch {
	case strings.Contains(u, "generativelanguage.googleapis.com"):
		return KindGemini
	case strings.Contains(u, "api.anthropic.com"):
		return KindAnthropic
	case strings.Contains(u, "api.cohere.com"):
		return KindCohere
	case strings.Contains(u, "kie.ai"):
		return KindKie
	case strings.Contains(u, "fal.run"), strings.Contains(u, "fal.ai"):
		return KindFal
	case strings.Contains(u, "huggingface.co"), strings.Contains(u, "hf.co"):
		return KindHuggingFace
	case strings.Contains(u, "aimlapi.com"):
		return KindAIMLAPI
	default:
		return KindOpenAI
	}
}

// KindOf returns the descriptor's explicit provider kind, or classifies its
// base URL when none is set.
func KindOf(m models.ModelDescriptor) Kind {
	if m.ProviderKind != "" {
		return Kind(m.ProviderKind)
	}
	return Classify(m.BaseURL)
}

var kieSlugs = map[string]string{
	"nano-banana":        "google/nano-banana",
	"seedream-4.5":       "bytedance/seedream",
	"grok-imagine":       "grok-imagine/text-to-image",
	"kling-2.6":          "kling/v2-1-pro",
	"kling-2.1":          "kling/v2-1-pro",
	"grok-imagine-video": "grok-imagine/text-to-video",
}

// MapKieSlug maps short UI slugs onto the Kie API model names.
func MapKieSlug(slug string) string {
	if mapped, ok := kieSlugs[slug]; ok {
		return mapped
	}
	return slug
}

// trimBase strips trailing slashes and, when stripV1 is set, a trailing /v1.
// An empty base yields def.
func trimBase(base, def string, stripV1 bool) string {
	b := strings.TrimRight(base, "/")
	if stripV1 {
		b = strings.TrimSuffix(b, "/v1")
	}
	if b == "" {
		return def
	}
	return b
}
