// Package consensus elects a King model for a query by asking every council
// member to classify the query and rate its own confidence.
package consensus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/guilhermeleaosoares/llm-council/internal/apierr"
	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

// EstimatedTokensPerVote is the rough token cost of one vote round trip.
const EstimatedTokensPerVote = 80

// ErrNoModels is returned when a voting round has no candidates.
var ErrNoModels = errors.New("no models to vote")

// Chatter sends a single chat request to a model.
type Chatter interface {
	InvokeChat(ctx context.Context, m models.ModelDescriptor, messages []models.ChatMessage, system string, temperature float64, images []models.ImageAttachment) (string, error)
}

// Engine runs voting rounds.
type Engine struct {
	chat    Chatter
	timeout time.Duration
	now     func() time.Time
}

// New creates an engine. timeout bounds each individual vote; zero means
// only the caller's context applies.
func New(chat Chatter, timeout time.Duration) *Engine {
	return &Engine{chat: chat, timeout: timeout, now: time.Now}
}

var jsonObject = regexp.MustCompile(`\{[\s\S]*\}`)

func votePrompt(query string) string {
	query = models.Truncate(query, 500)
	domains := make([]string, len(models.Domains))
	for i, d := range models.Domains {
		domains[i] = string(d)
	}
	return fmt.Sprintf(`You are part of an AI council. Classify this user query and rate your confidence in handling it.

User query: "%s"

Reply ONLY with valid JSON, no markdown:
{"domain":"<one of: %s>","confidence":<1-10 integer>,"reason":"<one sentence>"}`, query, strings.Join(domains, ", "))
}

// RunVotingRound asks every model for a vote in parallel and elects the most
// confident one. Individual failures become default votes; the round itself
// only fails when models is empty.
func (e *Engine) RunVotingRound(ctx context.Context, candidates []models.ModelDescriptor, query string) (*models.ConsensusResult, error) {
	if len(candidates) == 0 {
		return nil, ErrNoModels
	}

	start := e.now()
	prompt := votePrompt(query)
	votes := make([]models.Vote, len(candidates))

	var g errgroup.Group
	for i, m := range candidates {
		i, m := i, m
		g.Go(func() error {
			votes[i] = e.castVote(ctx, m, prompt)
			return nil
		})
	}
	_ = g.Wait()

	king := Elect(votes)

	return &models.ConsensusResult{
		ElectedKingID:   king.ModelID,
		ElectedKingName: king.ModelName,
		Votes:           votes,
		ConsensusDomain: TallyDomain(votes),
		LatencyMs:       e.now().Sub(start).Milliseconds(),
		EstimatedTokens: len(votes) * EstimatedTokensPerVote,
	}, nil
}

func (e *Engine) castVote(ctx context.Context, m models.ModelDescriptor, prompt string) models.Vote {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	vote := models.Vote{ModelID: m.ID, ModelName: m.Name}
	raw, err := e.chat.InvokeChat(ctx, m, []models.ChatMessage{{Role: models.RoleUser, Content: prompt}}, "", 0, nil)
	if err == nil {
		vote.Domain, vote.Confidence, vote.Reason, err = ParseVote(raw)
	}
	if err != nil {
		log.Printf("Vote from %s failed: %v", m.Name, err)
		vote.Domain = models.DomainGeneralKnowledge
		vote.Confidence = 5
		vote.Reason = "Vote failed: " + err.Error()
		vote.Error = err.Error()
	}
	return vote
}

// ParseVote extracts the first JSON object from a model's reply and
// normalizes it. Confidence is clamped to 1..10 with 5 for unparseable or
// zero values; unknown domains become "other".
func ParseVote(raw string) (models.Domain, int, string, error) {
	match := jsonObject.FindString(strings.TrimSpace(raw))
	if match == "" {
		return "", 0, "", apierr.New(apierr.Parse, "", 0, "no JSON in response")
	}

	var payload struct {
		Domain     string      `json:"domain"`
		Confidence interface{} `json:"confidence"`
		Reason     string      `json:"reason"`
	}
	if err := json.Unmarshal([]byte(match), &payload); err != nil {
		return "", 0, "", apierr.Wrap(apierr.Parse, "", err)
	}

	domain := models.Domain(strings.ToLower(strings.TrimSpace(payload.Domain)))
	switch {
	case domain == "":
		domain = models.DomainGeneralKnowledge
	case !models.ValidDomain(domain):
		domain = models.DomainOther
	}

	confidence := truncateConfidence(payload.Confidence)
	if confidence == 0 {
		confidence = 5
	}
	confidence = max(1, min(10, confidence))

	return domain, confidence, payload.Reason, nil
}

// truncateConfidence reads an integer from a number or a numeric string,
// truncating fractions. Unreadable values yield 0.
func truncateConfidence(v interface{}) int {
	var f float64
	switch c := v.(type) {
	case float64:
		f = c
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(c), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return int(math.Trunc(f))
}

// Elect returns the vote with the highest confidence. Ties keep the earlier
// vote. Returns nil for an empty slice.
func Elect(votes []models.Vote) *models.Vote {
	if len(votes) == 0 {
		return nil
	}
	sorted := make([]models.Vote, len(votes))
	copy(sorted, votes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})
	return &sorted[0]
}

// TallyDomain returns the most common domain among valid votes. Ties go to
// the domain encountered first; no valid votes yields general_knowledge.
func TallyDomain(votes []models.Vote) models.Domain {
	counts := make(map[models.Domain]int)
	var order []models.Domain
	for _, v := range votes {
		if v.Error != "" {
			continue
		}
		if counts[v.Domain] == 0 {
			order = append(order, v.Domain)
		}
		counts[v.Domain]++
	}

	best := models.DomainGeneralKnowledge
	bestCount := 0
	for _, d := range order {
		if counts[d] > bestCount {
			best, bestCount = d, counts[d]
		}
	}
	return best
}
