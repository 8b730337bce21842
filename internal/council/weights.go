package council

import (
	"sort"
	"strings"

	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

// ApplyWeights computes the effective weight of every response and returns
// a copy sorted by weight, heaviest first. Failed responses always weigh 0
// and rank below every valid one. Other ties keep input order, so applying
// it twice gives the same result.
func ApplyWeights(responses []models.ModelResponse, descriptors map[string]models.ModelDescriptor, w models.Weights) []models.ModelResponse {
	weighted := make([]models.ModelResponse, len(responses))
	copy(weighted, responses)

	for i := range weighted {
		r := &weighted[i]
		if !r.Valid() {
			r.EffectiveWeight = 0
			continue
		}

		m := descriptors[r.ModelID]
		weight := m.Weight
		if weight <= 0 {
			weight = w.DefaultWeight
		}
		king := 1.0
		if r.IsKing {
			king = w.KingMultiplier
		}
		r.EffectiveWeight = w.TierWeight(m.Tier) * float64(weight) / 100 * r.Confidence * king
	}

	sort.SliceStable(weighted, func(i, j int) bool {
		vi, vj := weighted[i].Valid(), weighted[j].Valid()
		if vi != vj {
			return vi
		}
		return weighted[i].EffectiveWeight > weighted[j].EffectiveWeight
	})
	return weighted
}

var cheapKeywords = []string{"auto", "mini", "flash", "haiku", "small", "lite"}

// CheapScore rates how inexpensive a model looks from its name and slug.
// Higher is cheaper.
func CheapScore(m models.ModelDescriptor) float64 {
	text := strings.ToLower(m.Name + " " + m.Slug)

	score := 0.0
	for _, kw := range cheapKeywords {
		if strings.Contains(text, kw) {
			score += 10
		}
	}
	// Aggregator auto-routing is the cheapest option.
	if strings.Contains(text, "openrouter") && strings.Contains(text, "auto") {
		score += 20
	}

	tier := m.Tier
	if tier <= 0 {
		tier = 1
	}
	score += float64(tier) * 2

	weight := m.Weight
	if weight <= 0 {
		weight = 50
	}
	score -= float64(weight) / 100
	return score
}

// SelectQuick returns the cheapest-looking model, preferring the earlier
// one on ties. It returns false for an empty list.
func SelectQuick(candidates []models.ModelDescriptor) (models.ModelDescriptor, bool) {
	if len(candidates) == 0 {
		return models.ModelDescriptor{}, false
	}
	best := candidates[0]
	bestScore := CheapScore(best)
	for _, m := range candidates[1:] {
		if s := CheapScore(m); s > bestScore {
			best, bestScore = m, s
		}
	}
	return best, true
}
