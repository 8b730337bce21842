// Package provider adapts the council's provider-neutral requests onto the
// wire formats of the supported model APIs.
package provider

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

// MaxTokens is the completion budget sent to every chat provider.
const MaxTokens = 4096

// DefaultTemperature is used when callers have no preference.
const DefaultTemperature = 0.7

// ChatRequest is a provider-neutral chat call. Images belong to the final
// user message only.
type ChatRequest struct {
	Model       models.ModelDescriptor
	Messages    []models.ChatMessage
	System      string
	Temperature float64
	Images      []models.ImageAttachment
}

// MediaRequest is a provider-neutral image or video call.
type MediaRequest struct {
	Model   models.ModelDescriptor
	Prompt  string
	Options models.MediaOptions
}

// ChatProvider produces text completions.
type ChatProvider interface {
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// ImageProvider produces images.
type ImageProvider interface {
	GenerateImage(ctx context.Context, req MediaRequest) (*models.MediaResult, error)
}

// VideoProvider produces videos.
type VideoProvider interface {
	GenerateVideo(ctx context.Context, req MediaRequest) (*models.MediaResult, error)
}

// Registry maps provider kinds onto adapters. Lookups for unregistered kinds
// fall back to the OpenAI-compatible adapter of the same capability.
type Registry struct {
	chat  map[Kind]ChatProvider
	image map[Kind]ImageProvider
	video map[Kind]VideoProvider
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		chat:  make(map[Kind]ChatProvider),
		image: make(map[Kind]ImageProvider),
		video: make(map[Kind]VideoProvider),
	}
}

// RegisterChat binds a chat adapter to a kind.
func (r *Registry) RegisterChat(kind Kind, p ChatProvider) { r.chat[kind] = p }

// RegisterImage binds an image adapter to a kind.
func (r *Registry) RegisterImage(kind Kind, p ImageProvider) { r.image[kind] = p }

// RegisterVideo binds a video adapter to a kind.
func (r *Registry) RegisterVideo(kind Kind, p VideoProvider) { r.video[kind] = p }

// Chat returns the chat adapter for kind.
func (r *Registry) Chat(kind Kind) ChatProvider {
	if p, ok := r.chat[kind]; ok {
		return p
	}
	return r.chat[KindOpenAI]
}

// Image returns the image adapter for kind.
func (r *Registry) Image(kind Kind) ImageProvider {
	if p, ok := r.image[kind]; ok {
		return p
	}
	return r.image[KindOpenAI]
}

// Video returns the video adapter for kind.
func (r *Registry) Video(kind Kind) VideoProvider {
	if p, ok := r.video[kind]; ok {
		return p
	}
	return r.video[KindOpenAI]
}

// MediaConfig controls create-then-poll media jobs.
type MediaConfig struct {
	PollInterval time.Duration
	PollTimeout  time.Duration
}

// DefaultRegistry wires every built-in adapter.
func DefaultRegistry(client *http.Client, media MediaConfig) *Registry {
	r := NewRegistry()

	openaiChat := &OpenAIChat{HTTPClient: client}
	r.RegisterChat(KindOpenAI, openaiChat)
	r.RegisterChat(KindKie, &OpenAIChat{HTTPClient: client, SlugInPath: true})
	r.RegisterChat(KindAnthropic, &AnthropicChat{HTTPClient: client})
	r.RegisterChat(KindGemini, &GeminiChat{HTTPClient: client})
	r.RegisterChat(KindCohere, &CohereChat{HTTPClient: client})

	kie := &KieMedia{HTTPClient: client, PollInterval: media.PollInterval, PollTimeout: media.PollTimeout}
	r.RegisterImage(KindOpenAI, &OpenAIImages{HTTPClient: client})
	r.RegisterImage(KindKie, kie)
	r.RegisterImage(KindFal, &FalImages{HTTPClient: client})
	r.RegisterImage(KindGemini, &GeminiImages{HTTPClient: client})
	r.RegisterImage(KindHuggingFace, &HuggingFaceImages{HTTPClient: client})

	r.RegisterVideo(KindOpenAI, &GenericVideo{HTTPClient: client})
	r.RegisterVideo(KindKie, kie)

	return r
}

// Client dispatches council calls through a Registry.
type Client struct {
	registry   *Registry
	httpClient *http.Client
}

// NewClient creates a client over the given registry.
func NewClient(registry *Registry, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{registry: registry, httpClient: httpClient}
}

// resolve returns a call-local copy of m with provider slug aliases applied.
func resolve(m models.ModelDescriptor) (models.ModelDescriptor, Kind) {
	kind := KindOf(m)
	if kind == KindKie {
		m.Slug = MapKieSlug(m.Slug)
	}
	return m, kind
}

// InvokeChat sends one chat completion request.
func (c *Client) InvokeChat(ctx context.Context, m models.ModelDescriptor, messages []models.ChatMessage, system string, temperature float64, images []models.ImageAttachment) (string, error) {
	resolved, kind := resolve(m)
	p := c.registry.Chat(kind)
	if p == nil {
		return "", fmt.Errorf("no chat adapter for provider %s", kind)
	}
	return p.Chat(ctx, ChatRequest{
		Model:       resolved,
		Messages:    messages,
		System:      system,
		Temperature: temperature,
		Images:      images,
	})
}

// InvokeImage generates one image.
func (c *Client) InvokeImage(ctx context.Context, m models.ModelDescriptor, prompt string, opts models.MediaOptions) (*models.MediaResult, error) {
	resolved, kind := resolve(m)
	p := c.registry.Image(kind)
	if p == nil {
		return nil, fmt.Errorf("no image adapter for provider %s", kind)
	}
	return p.GenerateImage(ctx, MediaRequest{Model: resolved, Prompt: prompt, Options: opts})
}

// InvokeVideo generates one video.
func (c *Client) InvokeVideo(ctx context.Context, m models.ModelDescriptor, prompt string, opts models.MediaOptions) (*models.MediaResult, error) {
	resolved, kind := resolve(m)
	p := c.registry.Video(kind)
	if p == nil {
		return nil, fmt.Errorf("no video adapter for provider %s", kind)
	}
	return p.GenerateVideo(ctx, MediaRequest{Model: resolved, Prompt: prompt, Options: opts})
}

// FetchImage resolves a generated image reference into inline base64.
func (c *Client) FetchImage(ctx context.Context, ref string) (models.ImageAttachment, error) {
	return FetchAsBase64(ctx, c.httpClient, ref)
}

// Test performs a lightweight connectivity check and returns a short
// human-readable result.
func (c *Client) Test(ctx context.Context, m models.ModelDescriptor) (string, error) {
	resolved, kind := resolve(m)

	if resolved.Modality == models.ModalityImage || resolved.Modality == models.ModalityVideo {
		switch kind {
		case KindKie:
			return probeKie(ctx, c.httpClient, resolved)
		case KindFal:
			return probeFal(ctx, c.httpClient, resolved)
		default:
			return "Media API key set, generate an artifact to fully test", nil
		}
	}

	text, err := c.InvokeChat(ctx, m, []models.ChatMessage{{Role: models.RoleUser, Content: `Reply with only the word "ok".`}}, "", 0, nil)
	if err != nil {
		log.Printf("Provider test failed for %s: %v", m.Name, err)
		return "", err
	}
	return strings.TrimSpace(models.Truncate(text, 100)), nil
}
