package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

// Synthesis modes.
const (
	SynthesisChoice  = "choice"
	SynthesisCombine = "combine"
)

// CouncilFile is the YAML description of the council.
type CouncilFile struct {
	Models        []models.ModelDescriptor `yaml:"-"`
	KingModelID   string                   `yaml:"king_model_id"`
	SynthesisMode string                   `yaml:"synthesis_mode"`
	Weighting     models.Weights           `yaml:"weighting"`
	Media         MediaConfig              `yaml:"media"`
}

// MediaConfig tunes the create-then-poll job client.
type MediaConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	PollTimeout  time.Duration `yaml:"poll_timeout"`
}

// jobSubmitMargin is the time allowed for task creation and the artifact
// download on top of the polling budget.
const jobSubmitMargin = time.Minute

// JobTimeout bounds a whole media job. It outlasts PollTimeout so an
// expired poll surfaces as a poll timeout rather than a cancelled context.
func (m MediaConfig) JobTimeout() time.Duration {
	return m.PollTimeout + jobSubmitMargin
}

// modelEntry mirrors ModelDescriptor with an optional enabled flag so an
// omitted flag can default to true.
type modelEntry struct {
	models.ModelDescriptor `yaml:",inline"`
	Enabled                *bool `yaml:"enabled"`
}

type councilDocument struct {
	CouncilFile `yaml:",inline"`
	Models      []modelEntry `yaml:"models"`
}

// DefaultCouncil returns an empty council with stock constants.
func DefaultCouncil() *CouncilFile {
	c := &CouncilFile{}
	c.applyDefaults()
	return c
}

// LoadCouncil reads a models file from path and returns a validated council.
func LoadCouncil(path string) (*CouncilFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return ParseCouncil(data)
}

// ParseCouncil unmarshals YAML bytes into a validated council.
func ParseCouncil(data []byte) (*CouncilFile, error) {
	var doc councilDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	cfg := doc.CouncilFile
	for _, entry := range doc.Models {
		m := entry.ModelDescriptor
		m.Enabled = entry.Enabled == nil || *entry.Enabled
		cfg.Models = append(cfg.Models, m)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in default values.
func (c *CouncilFile) applyDefaults() {
	if c.SynthesisMode == "" {
		c.SynthesisMode = SynthesisChoice
	}

	defaults := models.DefaultWeights()
	if c.Weighting.KingMultiplier == 0 {
		c.Weighting.KingMultiplier = defaults.KingMultiplier
	}
	if len(c.Weighting.TierWeights) == 0 {
		c.Weighting.TierWeights = defaults.TierWeights
	}
	if c.Weighting.FallbackTierWeight == 0 {
		c.Weighting.FallbackTierWeight = defaults.FallbackTierWeight
	}
	if c.Weighting.DefaultWeight == 0 {
		c.Weighting.DefaultWeight = defaults.DefaultWeight
	}
	if c.Weighting.BaselineConfidence == 0 {
		c.Weighting.BaselineConfidence = defaults.BaselineConfidence
	}

	if c.Media.PollInterval == 0 {
		c.Media.PollInterval = 3 * time.Second
	}
	if c.Media.PollTimeout == 0 {
		c.Media.PollTimeout = 5 * time.Minute
	}

	for i := range c.Models {
		m := &c.Models[i]
		if m.Name == "" {
			m.Name = m.ID
		}
		if m.Tier == 0 {
			m.Tier = 1
		}
		if m.Weight == 0 {
			m.Weight = 80
		}
		if m.Modality == "" {
			m.Modality = models.ModalityText
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *CouncilFile) validate() error {
	seen := make(map[string]bool)
	for i, m := range c.Models {
		if m.ID == "" {
			return fmt.Errorf("config: models[%d]: id is required", i)
		}
		if seen[m.ID] {
			return fmt.Errorf("config: models[%d]: duplicate id %q", i, m.ID)
		}
		seen[m.ID] = true
		if m.Slug == "" {
			return fmt.Errorf("config: model %q: slug is required", m.ID)
		}
		if m.BaseURL == "" {
			return fmt.Errorf("config: model %q: base_url is required", m.ID)
		}
		switch m.Modality {
		case models.ModalityText, models.ModalityImage, models.ModalityVideo:
		default:
			return fmt.Errorf("config: model %q: unknown modality %q", m.ID, m.Modality)
		}
		if m.Tier < 1 || m.Tier > 3 {
			return fmt.Errorf("config: model %q: tier must be 1-3, got %d", m.ID, m.Tier)
		}
		if m.Weight < 0 || m.Weight > 100 {
			return fmt.Errorf("config: model %q: weight must be 0-100, got %d", m.ID, m.Weight)
		}
	}

	if c.KingModelID != "" && !seen[c.KingModelID] {
		return fmt.Errorf("config: king_model_id %q does not name a configured model", c.KingModelID)
	}
	if c.SynthesisMode != SynthesisChoice && c.SynthesisMode != SynthesisCombine {
		return fmt.Errorf("config: unknown synthesis_mode %q", c.SynthesisMode)
	}
	if c.Weighting.KingMultiplier < 1 {
		return fmt.Errorf("config: weighting.king_multiplier must be >= 1")
	}
	for tier, w := range c.Weighting.TierWeights {
		if w <= 0 {
			return fmt.Errorf("config: weighting.tier_weights[%d] must be > 0, got %v", tier, w)
		}
	}
	if c.Weighting.FallbackTierWeight <= 0 {
		return fmt.Errorf("config: weighting.fallback_tier_weight must be > 0")
	}
	if c.Weighting.BaselineConfidence <= 0 || c.Weighting.BaselineConfidence > 1 {
		return fmt.Errorf("config: weighting.baseline_confidence must be in (0, 1]")
	}
	if c.Media.PollTimeout < c.Media.PollInterval {
		return fmt.Errorf("config: media.poll_timeout must be >= media.poll_interval")
	}
	return nil
}
