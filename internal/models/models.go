// Package models holds the data types shared by the council engine, the
// provider adapters and the conversation store.
package models

// Modality is the kind of artifact a model produces.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
	ModalityVideo Modality = "video"
)

// ModelDescriptor is a configured model. APIKey is a secret and must never be
// logged or returned by the HTTP API.
type ModelDescriptor struct {
	ID           string   `json:"id" yaml:"id"`
	Name         string   `json:"name" yaml:"name"`
	Slug         string   `json:"slug" yaml:"slug"`
	BaseURL      string   `json:"baseUrl" yaml:"base_url"`
	APIKey       string   `json:"apiKey,omitempty" yaml:"api_key"`
	ProviderKind string   `json:"providerKind,omitempty" yaml:"provider_kind"`
	Tier         int      `json:"tier" yaml:"tier"`
	Weight       int      `json:"weight" yaml:"weight"`
	Enabled      bool     `json:"enabled" yaml:"-"`
	Modality     Modality `json:"modality" yaml:"modality"`
	Color        string   `json:"color,omitempty" yaml:"color"`
}

// Redacted returns a copy with the API key masked.
func (m ModelDescriptor) Redacted() ModelDescriptor {
	if m.APIKey != "" {
		m.APIKey = "********"
	}
	return m
}

// Role is the author of a chat turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleCouncil   Role = "council"
)

// ChatMessage is one provider-neutral chat turn.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ImageAttachment is an inline image sent with the final user turn.
type ImageAttachment struct {
	MimeType string `json:"mimeType"`
	Base64   string `json:"base64"`
}

// Document is a text attachment whose content has already been extracted.
type Document struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// Domain is the label a voter assigns to a query.
type Domain string

const (
	DomainCoding           Domain = "coding"
	DomainCreativeWriting  Domain = "creative_writing"
	DomainDataAnalysis     Domain = "data_analysis"
	DomainMath             Domain = "math"
	DomainResearch         Domain = "research"
	DomainGeneralKnowledge Domain = "general_knowledge"
	DomainImageDescription Domain = "image_description"
	DomainTranslation      Domain = "translation"
	DomainOther            Domain = "other"
)

// Domains lists every domain label in prompt order.
var Domains = []Domain{
	DomainCoding, DomainCreativeWriting, DomainDataAnalysis, DomainMath, DomainResearch,
	DomainGeneralKnowledge, DomainImageDescription, DomainTranslation, DomainOther,
}

// ValidDomain reports whether d is one of the known labels.
func ValidDomain(d Domain) bool {
	for _, known := range Domains {
		if d == known {
			return true
		}
	}
	return false
}

// Vote is one model's self-assessment during King election.
type Vote struct {
	ModelID    string `json:"modelId"`
	ModelName  string `json:"modelName"`
	Domain     Domain `json:"domain"`
	Confidence int    `json:"confidence"`
	Reason     string `json:"reason"`
	Error      string `json:"error,omitempty"`
}

// ConsensusResult is the outcome of a voting round.
type ConsensusResult struct {
	ElectedKingID   string `json:"electedKingId"`
	ElectedKingName string `json:"electedKingName"`
	Votes           []Vote `json:"votes"`
	ConsensusDomain Domain `json:"consensusDomain"`
	LatencyMs       int64  `json:"latencyMs"`
	EstimatedTokens int    `json:"estimatedTokens"`
}

// VoteStance is a response's agreement marker.
type VoteStance string

const (
	StanceAgree    VoteStance = "agree"
	StancePartial  VoteStance = "partial"
	StanceDisagree VoteStance = "disagree"
)

// ModelResponse is one model's contribution to a round.
type ModelResponse struct {
	ModelID         string     `json:"modelId"`
	ModelName       string     `json:"modelName"`
	Text            string     `json:"text"`
	Confidence      float64    `json:"confidence"`
	Vote            VoteStance `json:"vote"`
	IsKing          bool       `json:"isKing"`
	EffectiveWeight float64    `json:"effectiveWeight"`
	Error           string     `json:"error,omitempty"`
}

// Valid reports whether the response carries usable text.
func (r ModelResponse) Valid() bool {
	return r.Error == "" && r.Text != ""
}

// ReasoningEntry is one model's output within a reasoning round.
type ReasoningEntry struct {
	ModelName string `json:"modelName"`
	Text      string `json:"text"`
}

// ReasoningRound is one labeled step of the reasoning trace.
type ReasoningRound struct {
	Label   string           `json:"label"`
	Entries []ReasoningEntry `json:"entries"`
}

// ThinkMode selects how many council rounds run.
type ThinkMode string

const (
	ThinkQuick   ThinkMode = "quick"
	ThinkDefault ThinkMode = "default"
	ThinkDeep    ThinkMode = "deep"
	ThinkDeeper  ThinkMode = "deeper"
)

// ParseThinkMode maps user input onto a mode, defaulting to ThinkDefault.
func ParseThinkMode(s string) ThinkMode {
	switch ThinkMode(s) {
	case ThinkQuick, ThinkDeep, ThinkDeeper:
		return ThinkMode(s)
	default:
		return ThinkDefault
	}
}

// TurnOptions are the per-turn switches. They are stored with the user
// message so a retry reissues the turn identically.
type TurnOptions struct {
	ThinkMode   ThinkMode `json:"thinkMode"`
	Combine     bool      `json:"combine,omitempty"`
	SearchMode  bool      `json:"searchMode,omitempty"`
	DeepSearch  bool      `json:"deepSearch,omitempty"`
	KingModelID string    `json:"kingModelId,omitempty"`
}

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
	Source  string `json:"source,omitempty"`
}

// MediaKind is the kind of generated artifact.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

// MediaOptions tune an image or video request.
type MediaOptions struct {
	AspectRatio string `json:"aspectRatio,omitempty"`
	Quality     string `json:"quality,omitempty"`
	Duration    string `json:"duration,omitempty"`
}

// MediaResult is the outcome of a generation call.
type MediaResult struct {
	ImageURL string `json:"imageUrl,omitempty"`
	VideoURL string `json:"videoUrl,omitempty"`
	Content  string `json:"content,omitempty"`
}

// URL returns whichever artifact URL is set.
func (r MediaResult) URL() string {
	if r.VideoURL != "" {
		return r.VideoURL
	}
	return r.ImageURL
}

// MediaArtifact is a generated image or video stored with a message.
type MediaArtifact struct {
	Kind      MediaKind `json:"kind"`
	ModelID   string    `json:"modelId"`
	ModelName string    `json:"modelName"`
	Prompt    string    `json:"prompt"`
	URL       string    `json:"url,omitempty"`
	MimeType  string    `json:"mimeType,omitempty"`
	Base64    string    `json:"base64,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Weights are the constants of the response weighting formula.
type Weights struct {
	KingMultiplier     float64         `json:"kingMultiplier" yaml:"king_multiplier"`
	TierWeights        map[int]float64 `json:"tierWeights" yaml:"tier_weights"`
	FallbackTierWeight float64         `json:"fallbackTierWeight" yaml:"fallback_tier_weight"`
	DefaultWeight      int             `json:"defaultWeight" yaml:"default_weight"`
	BaselineConfidence float64         `json:"baselineConfidence" yaml:"baseline_confidence"`
}

// DefaultWeights returns the stock weighting constants.
func DefaultWeights() Weights {
	return Weights{
		KingMultiplier:     3.0,
		TierWeights:        map[int]float64{1: 1.5, 2: 1.0, 3: 0.7},
		FallbackTierWeight: 0.7,
		DefaultWeight:      50,
		BaselineConfidence: 0.85,
	}
}

// TierWeight returns the multiplier for a tier.
func (w Weights) TierWeight(tier int) float64 {
	if v, ok := w.TierWeights[tier]; ok {
		return v
	}
	return w.FallbackTierWeight
}

// Truncate cuts s to at most n runes, never splitting a character.
func Truncate(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
