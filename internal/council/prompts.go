package council

import (
	"fmt"
	"strings"

	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

// Trace labels, in round order.
const (
	LabelRound1  = "Round 1: Initial Responses"
	LabelCombine = "Synthesis (Combine Mode)"
	LabelRound2  = "Round 2: Review & Fact-Check"
	LabelRound3  = "Round 3: Final Synthesis"
)

// User-visible texts for turns that produce no council answer.
const (
	NoTextModelsText = "No text models are active. Add models with API keys in Settings."
	AllFailedText    = "All models failed. Check API keys in Settings."
)

// maxDocumentChars bounds how much of one attached document reaches the prompt.
const maxDocumentChars = 100000

// KingAddendum is appended to the system prompt of every non-King model in
// Round 1.
func KingAddendum(kingName string) string {
	return fmt.Sprintf("\n[Council Directive: %s is leading this query. Provide your best analysis.]", kingName)
}

// CombinePrompt asks the King to merge the valid Round 1 answers.
func CombinePrompt(valid []models.ModelResponse) string {
	parts := make([]string, len(valid))
	for i, r := range valid {
		parts[i] = fmt.Sprintf("[%s]:\n%s", r.ModelName, r.Text)
	}
	return "You are the lead AI synthesizing responses from a council of experts for the user's prompt. " +
		"Read the following perspectives from your fellow council members and provide a single, definitive, " +
		"and highly comprehensive answer that bridges the best insights without directly mentioning that you " +
		"are summarizing other models.\n\nReviews:\n" + strings.Join(parts, "\n\n---\n\n")
}

// ReviewPrompt asks a model to fact-check the reviewed answer.
func ReviewPrompt(reviewed string) string {
	return "You are reviewing and fact-checking the following response from another AI model. " +
		"Point out any errors, missing information, biases, or improvements needed. " +
		"Be thorough and specific.\n\nOriginal response:\n" + reviewed
}

// SynthesisPrompt asks a model for a final answer informed by the reviews.
func SynthesisPrompt(reviews []models.ModelResponse) string {
	parts := make([]string, len(reviews))
	for i, r := range reviews {
		parts[i] = fmt.Sprintf("**%s** review:\n%s", r.ModelName, r.Text)
	}
	return "Based on the original question and the following reviews from multiple AI models, provide a final, " +
		"comprehensive response that addresses all the feedback, corrections, and improvements. " +
		"Synthesize the best insights.\n\nReviews:\n" + strings.Join(parts, "\n\n---\n\n")
}

// DocumentDirective tells the models that attached documents were already
// extracted. Returns "" when no document has text.
func DocumentDirective(docs []models.Document) string {
	var extracted strings.Builder
	for _, d := range docs {
		text := strings.TrimSpace(d.Text)
		if text == "" {
			continue
		}
		text = models.Truncate(text, maxDocumentChars)
		fmt.Fprintf(&extracted, "\n\n--- Content of attached file: %s ---\n%s\n--- End of %s ---\n", d.Name, text, d.Name)
	}
	if extracted.Len() == 0 {
		return ""
	}

	return `

[SYSTEM DIRECTIVE REGARDING ATTACHED DOCUMENTS]
The user has attached one or more documents. Do NOT state that you cannot read files or open documents. The contents of the documents have already been extracted and provided below. You MUST read this extracted text and use it to answer the user's prompt as if you opened the file yourself.

=== START OF EXTRACTED DOCUMENT CONTENT ===
` + extracted.String() + `
=== END OF EXTRACTED DOCUMENT CONTENT ===
`
}

// ToolDirective advertises the media tools that have at least one enabled
// model. Returns "" when neither is available.
func ToolDirective(hasImage, hasVideo bool) string {
	if !hasImage && !hasVideo {
		return ""
	}

	var tools []string
	if hasImage {
		tools = append(tools, "- generate_image: Generates an image based on a prompt.")
	}
	if hasVideo {
		tools = append(tools, "- generate_video: Generates a video based on a prompt.")
	}

	return "\n\n[SYSTEM DIRECTIVE REGARDING TOOLS]\nYou have access to the following tools:\n" +
		strings.Join(tools, "\n") + `

If the user asks you to generate, create, or modify an image or video, you MUST NOT output standard conversational text. Instead, you MUST output EXACTLY the following JSON block and nothing else. DO NOT wrap it in markdown block quotes.:
{
  "action": "generate_image",
  "prompt": "Highly detailed prompt describing the exact desired output..."
}
(use "generate_video" as the action for videos)
`
}

// thinkLabel decorates the verdict headline for multi-round modes.
func thinkLabel(mode models.ThinkMode) string {
	switch mode {
	case models.ThinkDeep:
		return " (Deep Think - 2 rounds)"
	case models.ThinkDeeper:
		return " (Deeper Think - 3 rounds)"
	default:
		return ""
	}
}

func searchLabel(opts models.TurnOptions, results []models.SearchResult) string {
	switch {
	case opts.DeepSearch:
		return fmt.Sprintf(" Web Deep Search (%d sources).", len(results))
	case opts.SearchMode && len(results) > 0:
		return fmt.Sprintf(" Web Search (%d results).", len(results))
	default:
		return ""
	}
}

// Moderation renders the verdict line of a council message. ok is the
// number of successful responses out of total text models.
func Moderation(mode models.ThinkMode, ok, total int, kingName string, consensus *models.ConsensusResult, avgConfidence float64, search string) string {
	if ok == 0 {
		return fmt.Sprintf("**Council Verdict:** 0/%d models responded successfully.", total)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Council Verdict%s:** %d/%d models responded successfully. **%s** led as King",
		thinkLabel(mode), ok, total, kingName)
	if consensus != nil {
		fmt.Fprintf(&b, " (elected via consensus: %s domain, %dms, ~%d tokens estimated).",
			consensus.ConsensusDomain, consensus.LatencyMs, consensus.EstimatedTokens)
	} else {
		b.WriteString(".")
	}
	fmt.Fprintf(&b, " Average confidence: %d%%.%s", int(avgConfidence*100+0.5), search)
	return b.String()
}

// QuickModeration is the verdict line of a quick-mode answer.
func QuickModeration(modelName string) string {
	return fmt.Sprintf("**Quick Mode:** Responded by **%s** (no council vote).", modelName)
}
