package council

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

func TestApplyWeights(t *testing.T) {
	descriptors := map[string]models.ModelDescriptor{
		"king":    {ID: "king", Tier: 1, Weight: 80},
		"member":  {ID: "member", Tier: 2, Weight: 50},
		"unrated": {ID: "unrated", Tier: 3},
		"broken":  {ID: "broken", Tier: 1, Weight: 100},
	}
	responses := []models.ModelResponse{
		{ModelID: "member", Text: "b", Confidence: 0.85},
		{ModelID: "broken", Error: "timeout", Confidence: 1},
		{ModelID: "unrated", Text: "c", Confidence: 1},
		{ModelID: "king", Text: "a", Confidence: 0.9, IsKing: true},
	}

	weighted := ApplyWeights(responses, descriptors, models.DefaultWeights())

	require.Len(t, weighted, 4)
	ids := make([]string, len(weighted))
	for i, r := range weighted {
		ids[i] = r.ModelID
	}
	assert.Equal(t, []string{"king", "member", "unrated", "broken"}, ids)
	assert.InDelta(t, 3.24, weighted[0].EffectiveWeight, 1e-9)
	assert.InDelta(t, 0.425, weighted[1].EffectiveWeight, 1e-9)
	assert.InDelta(t, 0.35, weighted[2].EffectiveWeight, 1e-9)
	assert.Zero(t, weighted[3].EffectiveWeight)

	assert.Equal(t, "member", responses[0].ModelID, "input must not be reordered")
	assert.Equal(t, weighted, ApplyWeights(weighted, descriptors, models.DefaultWeights()))
}

func TestApplyWeightsCustomConstants(t *testing.T) {
	w := models.DefaultWeights()
	w.KingMultiplier = 2
	w.TierWeights = map[int]float64{1: 1}

	weighted := ApplyWeights([]models.ModelResponse{
		{ModelID: "a", Text: "x", Confidence: 1, IsKing: true},
		{ModelID: "b", Text: "y", Confidence: 1},
	}, map[string]models.ModelDescriptor{
		"a": {ID: "a", Tier: 1, Weight: 100},
		"b": {ID: "b", Tier: 2, Weight: 100},
	}, w)

	assert.InDelta(t, 2.0, weighted[0].EffectiveWeight, 1e-9)
	assert.InDelta(t, w.FallbackTierWeight, weighted[1].EffectiveWeight, 1e-9)
}

func TestApplyWeightsFailuresRankLast(t *testing.T) {
	w := models.DefaultWeights()
	w.TierWeights = map[int]float64{1: 1, 2: 0}

	weighted := ApplyWeights([]models.ModelResponse{
		{ModelID: "failed", Error: "timeout"},
		{ModelID: "zero", Text: "ok", Confidence: 1},
		{ModelID: "top", Text: "best", Confidence: 1},
	}, map[string]models.ModelDescriptor{
		"failed": {ID: "failed", Tier: 1, Weight: 100},
		"zero":   {ID: "zero", Tier: 2, Weight: 100},
		"top":    {ID: "top", Tier: 1, Weight: 100},
	}, w)

	ids := []string{weighted[0].ModelID, weighted[1].ModelID, weighted[2].ModelID}
	assert.Equal(t, []string{"top", "zero", "failed"}, ids)
}

func TestSelectQuick(t *testing.T) {
	candidates := []models.ModelDescriptor{
		{ID: "big", Name: "GPT-4o", Slug: "openai/gpt-4o", Tier: 1, Weight: 90},
		{ID: "mini", Name: "GPT-4o mini", Slug: "openai/gpt-4o-mini", Tier: 1, Weight: 80},
		{ID: "auto", Name: "Auto", Slug: "openrouter/auto", Tier: 1, Weight: 80},
	}

	assert.InDelta(t, 11.2, CheapScore(candidates[1]), 1e-9)
	assert.InDelta(t, 31.2, CheapScore(candidates[2]), 1e-9)

	m, ok := SelectQuick(candidates)
	require.True(t, ok)
	assert.Equal(t, "auto", m.ID)

	m, ok = SelectQuick(candidates[:1])
	require.True(t, ok)
	assert.Equal(t, "big", m.ID)

	_, ok = SelectQuick(nil)
	assert.False(t, ok)
}

func TestSelectQuickTieKeepsFirst(t *testing.T) {
	m, ok := SelectQuick([]models.ModelDescriptor{
		{ID: "first", Name: "Alpha", Tier: 1, Weight: 50},
		{ID: "second", Name: "Beta", Tier: 1, Weight: 50},
	})
	require.True(t, ok)
	assert.Equal(t, "first", m.ID)
}

func TestDetectToolCall(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		ok     bool
		action string
	}{
		{"plain json", `{"action":"generate_image","prompt":"a red fox"}`, true, ActionGenerateImage},
		{"fenced json", "```json\n{\"action\":\"generate_video\",\"prompt\":\"waves\"}\n```", true, ActionGenerateVideo},
		{"bare fence", "```\n{\"action\":\"generate_image\",\"prompt\":\"cat\"}\n```", true, ActionGenerateImage},
		{"prose", "Here is a picture of a fox.", false, ""},
		{"json in prose", `Sure! {"action":"generate_image","prompt":"fox"}`, false, ""},
		{"unknown action", `{"action":"send_email","prompt":"hi"}`, false, ""},
		{"empty prompt", `{"action":"generate_image","prompt":"  "}`, false, ""},
		{"broken json", `{"action":"generate_image",`, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			call, ok := DetectToolCall(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.action, call.Action)
		})
	}
}

func TestToolCallNotice(t *testing.T) {
	call := ToolCall{Action: ActionGenerateVideo, Prompt: "ocean waves at dusk"}

	assert.Equal(t, models.MediaVideo, call.Kind())
	assert.Equal(t, models.MediaImage, ToolCall{Action: ActionGenerateImage}.Kind())
	assert.Equal(t, "*Autonomously invoking generate video...*\n\n**Optimized Prompt:** ocean waves at dusk", call.Notice())
}

func TestFallbackTitle(t *testing.T) {
	assert.Equal(t, "What is Go?", FallbackTitle("  What is \n  Go?  "))
	assert.Equal(t, models.DefaultTitle, FallbackTitle("   "))
	assert.Len(t, []rune(FallbackTitle(strings.Repeat("é", 80))), 50)
}

func TestGenerateTitle(t *testing.T) {
	chat := &fakeChat{reply: func(call chatCall) (string, error) {
		return `  "Go Concurrency Basics"  `, nil
	}}

	title, err := GenerateTitle(context.Background(), chat, models.ModelDescriptor{ID: "a"}, "how do goroutines work?")
	require.NoError(t, err)
	assert.Equal(t, "Go Concurrency Basics", title)
	require.Len(t, chat.calls, 1)
	assert.Contains(t, chat.calls[0].last(), "how do goroutines work?")

	chat.reply = func(call chatCall) (string, error) { return strings.Repeat("word ", 20), nil }
	title, err = GenerateTitle(context.Background(), chat, models.ModelDescriptor{ID: "a"}, "q")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(title, "..."))
	assert.Len(t, title, 50)

	chat.reply = func(call chatCall) (string, error) { return "", errors.New("down") }
	_, err = GenerateTitle(context.Background(), chat, models.ModelDescriptor{ID: "a"}, "q")
	assert.Error(t, err)

	chat.reply = func(call chatCall) (string, error) { return `""`, nil }
	_, err = GenerateTitle(context.Background(), chat, models.ModelDescriptor{ID: "a"}, "q")
	assert.Error(t, err)
}

func TestDocumentDirectiveTruncatesOnRunes(t *testing.T) {
	directive := DocumentDirective([]models.Document{{Name: "notes.txt", Text: strings.Repeat("日", maxDocumentChars+10)}})

	assert.True(t, utf8.ValidString(directive))
	assert.Contains(t, directive, strings.Repeat("日", maxDocumentChars)+"\n--- End of notes.txt ---")
	assert.NotContains(t, directive, strings.Repeat("日", maxDocumentChars+1))
}
