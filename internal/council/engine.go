// Package council runs the deliberation state machine that turns one user
// message into one council message, and the service that wraps it with
// persistence, search, titles and media follow-ups.
package council

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/guilhermeleaosoares/llm-council/internal/models"
)

// ChatInvoker sends one chat completion request.
type ChatInvoker interface {
	InvokeChat(ctx context.Context, m models.ModelDescriptor, messages []models.ChatMessage, system string, temperature float64, images []models.ImageAttachment) (string, error)
}

// Voter elects a King among candidates for a query.
type Voter interface {
	RunVotingRound(ctx context.Context, candidates []models.ModelDescriptor, query string) (*models.ConsensusResult, error)
}

// Temperature used for every council round.
const Temperature = 0.7

// Progress phases reported while a turn runs.
const (
	PhaseSearching     = "searching"
	PhaseDeepSearching = "deep searching"
	PhaseVoting        = "voting"
	PhaseGenerating    = "generating"
	PhaseQuick         = "generating (quick)"
	PhaseCombine       = "synthesizing all"
	PhaseReview        = "reviewing (round 2)"
	PhaseSynthesis     = "synthesizing (round 3)"
)

var errEmptyResponse = errors.New("empty response")

// State is a step of the orchestration state machine.
type State int

const (
	StateIdle State = iota
	StateRouting
	StateQuick
	StateVoting
	StateRound1
	StateSynthCombine
	StateRound2
	StateRound3
	StateWeightAndSelect
	StateToolDetect
	StateDone
)

var stateNames = map[State]string{
	StateIdle:            "idle",
	StateRouting:         "routing",
	StateQuick:           "quick",
	StateVoting:          "voting",
	StateRound1:          "round1",
	StateSynthCombine:    "synth_combine",
	StateRound2:          "round2",
	StateRound3:          "round3",
	StateWeightAndSelect: "weight_and_select",
	StateToolDetect:      "tool_detect",
	StateDone:            "done",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// Turn is everything the engine needs for one orchestration run.
type Turn struct {
	// Messages is the prior history plus the final user turn, search
	// context already folded in.
	Messages     []models.ChatMessage
	Query        string
	SystemPrompt string
	Images       []models.ImageAttachment
	Options      models.TurnOptions

	TextModels []models.ModelDescriptor
	// PinnedKingID is honored only when it names one of TextModels.
	PinnedKingID string

	SearchResults     []models.SearchResult
	DeepSearchQueries []string

	Progress func(phase string)
}

// Result is the outcome of a run. Message has no id or timestamp yet.
type Result struct {
	Message models.Message
	Tool    *ToolCall
	States  []State
}

// Engine runs council turns. It is safe for concurrent use.
type Engine struct {
	chat    ChatInvoker
	voter   Voter
	weights models.Weights
	timeout time.Duration
}

// NewEngine creates an engine. timeout bounds each model call; zero means
// only the caller's context applies.
func NewEngine(chat ChatInvoker, voter Voter, weights models.Weights, timeout time.Duration) *Engine {
	return &Engine{chat: chat, voter: voter, weights: weights, timeout: timeout}
}

// run is the mutable state of one orchestration.
type run struct {
	e    *Engine
	turn *Turn

	king      models.ModelDescriptor
	consensus *models.ConsensusResult
	round1    []models.ModelResponse
	final     []models.ModelResponse
	trace     []models.ReasoningRound
	published string

	msg  models.Message
	tool *ToolCall
}

type stateFn func(r *run, ctx context.Context) State

// Run drives the state machine from Routing to Done and returns the council
// message. Model failures never surface as an error; Run fails only when
// ctx is cancelled before the turn completes.
func (e *Engine) Run(ctx context.Context, turn *Turn) (*Result, error) {
	r := &run{e: e, turn: turn}
	r.msg = models.Message{
		Role:              models.RoleCouncil,
		ThinkMode:         turn.Options.ThinkMode,
		SearchResults:     turn.SearchResults,
		DeepSearchQueries: turn.DeepSearchQueries,
	}
	if r.msg.ThinkMode == "" {
		r.msg.ThinkMode = models.ThinkDefault
	}

	transitions := map[State]stateFn{
		StateRouting:         (*run).route,
		StateQuick:           (*run).quick,
		StateVoting:          (*run).vote,
		StateRound1:          (*run).roundOne,
		StateSynthCombine:    (*run).combine,
		StateRound2:          (*run).roundTwo,
		StateRound3:          (*run).roundThree,
		StateWeightAndSelect: (*run).weightAndSelect,
		StateToolDetect:      (*run).toolDetect,
	}

	visited := []State{StateIdle}
	state := StateRouting
	for state != StateDone {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		visited = append(visited, state)
		state = transitions[state](r, ctx)
	}
	visited = append(visited, StateDone)

	return &Result{Message: r.msg, Tool: r.tool, States: visited}, nil
}

func (r *run) progress(phase string) {
	if r.turn.Progress != nil {
		r.turn.Progress(phase)
	}
}

func (r *run) mode() models.ThinkMode {
	return r.msg.ThinkMode
}

func (r *run) deliberates() bool {
	return r.mode() == models.ThinkDeep || r.mode() == models.ThinkDeeper
}

func (r *run) route(_ context.Context) State {
	if len(r.turn.TextModels) == 0 {
		r.msg.Text = NoTextModelsText
		r.msg.Failed = true
		return StateDone
	}
	if r.mode() == models.ThinkQuick {
		return StateQuick
	}

	for _, m := range r.turn.TextModels {
		if m.ID == r.turn.PinnedKingID {
			r.king = m
			return StateRound1
		}
	}
	if len(r.turn.TextModels) > 1 && r.e.voter != nil {
		return StateVoting
	}
	r.king = r.turn.TextModels[0]
	return StateRound1
}

func (r *run) quick(ctx context.Context) State {
	r.progress(PhaseQuick)
	m, _ := SelectQuick(r.turn.TextModels)

	text, err := r.e.invoke(ctx, m, r.turn.Messages, r.turn.SystemPrompt, r.turn.Images)
	r.msg.KingModelID = m.ID
	if err != nil {
		log.Printf("[council] Quick mode model %s failed: %v", m.Name, err)
		r.msg.Text = "Quick mode failed: " + err.Error()
		r.msg.ModerationText = "**Quick Mode Error:** " + m.Name + " returned an error."
		r.msg.Failed = true
		return StateDone
	}

	r.msg.Text = text
	r.msg.ModerationText = QuickModeration(m.Name)
	r.msg.Responses = []models.ModelResponse{{
		ModelID:         m.ID,
		ModelName:       m.Name,
		Text:            text,
		Confidence:      1,
		Vote:            models.StanceAgree,
		IsKing:          true,
		EffectiveWeight: 1,
	}}
	r.published = text
	return StateToolDetect
}

func (r *run) vote(ctx context.Context) State {
	r.progress(PhaseVoting)
	r.king = r.turn.TextModels[0]

	result, err := r.e.voter.RunVotingRound(ctx, r.turn.TextModels, r.turn.Query)
	if err != nil {
		log.Printf("[council] Consensus failed, using first model as King: %v", err)
		return StateRound1
	}

	r.consensus = result
	for _, m := range r.turn.TextModels {
		if m.ID == result.ElectedKingID {
			r.king = m
			break
		}
	}
	return StateRound1
}

func (r *run) roundOne(ctx context.Context) State {
	r.progress(PhaseGenerating)
	r.round1 = r.generateAll(ctx, r.turn.Messages, KingAddendum(r.king.Name), r.turn.Images)
	r.final = r.round1

	if r.deliberates() {
		r.record(LabelRound1, r.round1)
	}

	switch {
	case r.turn.Options.Combine:
		return StateSynthCombine
	case r.deliberates():
		return StateRound2
	default:
		return StateWeightAndSelect
	}
}

func (r *run) combine(ctx context.Context) State {
	next := StateWeightAndSelect
	if r.deliberates() {
		next = StateRound2
	}

	valid := validOnly(r.round1)
	if len(valid) < 2 {
		return next
	}

	r.progress(PhaseCombine)
	messages := appendTurn(r.turn.Messages, models.RoleUser, CombinePrompt(valid))
	synth := r.respond(ctx, r.king, messages, r.turn.SystemPrompt, nil)
	if !synth.Valid() {
		return next
	}

	combined := make([]models.ModelResponse, len(r.final))
	for i, resp := range r.final {
		if resp.ModelID == r.king.ID {
			resp = synth
		}
		combined[i] = resp
	}
	r.final = combined
	r.record(LabelCombine, []models.ModelResponse{synth})
	return next
}

func (r *run) roundTwo(ctx context.Context) State {
	r.progress(PhaseReview)

	reviewed := ""
	if k, ok := kingOf(r.round1); ok {
		reviewed = k.Text
	} else if valid := validOnly(r.round1); len(valid) > 0 {
		reviewed = valid[0].Text
	}

	messages := r.turn.Messages
	if reviewed != "" {
		messages = appendTurn(messages, models.RoleAssistant, reviewed)
	}
	messages = appendTurn(messages, models.RoleUser, ReviewPrompt(reviewed))

	r.final = r.generateAll(ctx, messages, "", nil)
	r.record(LabelRound2, r.final)

	if r.mode() == models.ThinkDeeper {
		return StateRound3
	}
	return StateWeightAndSelect
}

func (r *run) roundThree(ctx context.Context) State {
	r.progress(PhaseSynthesis)
	messages := appendTurn(r.turn.Messages, models.RoleUser, SynthesisPrompt(validOnly(r.final)))

	r.final = r.generateAll(ctx, messages, "", nil)
	r.record(LabelRound3, r.final)
	return StateWeightAndSelect
}

func (r *run) weightAndSelect(_ context.Context) State {
	descriptors := make(map[string]models.ModelDescriptor, len(r.turn.TextModels))
	for _, m := range r.turn.TextModels {
		descriptors[m.ID] = m
	}

	weighted := ApplyWeights(r.final, descriptors, r.e.weights)
	valid := validOnly(weighted)
	total := len(r.turn.TextModels)

	r.msg.Responses = weighted
	r.msg.ConsensusLog = r.consensus
	r.msg.KingModelID = r.king.ID
	if len(r.trace) > 0 {
		r.msg.ReasoningTrace = r.trace
	}

	if len(valid) == 0 {
		r.msg.Text = AllFailedText
		r.msg.ModerationText = Moderation(r.mode(), 0, total, "", nil, 0, "")
		r.msg.Failed = true
		return StateDone
	}

	top := valid[0]
	if k, ok := kingOf(weighted); ok {
		top = k
	}

	sum := 0.0
	for _, v := range valid {
		sum += v.Confidence
	}

	r.published = top.Text
	r.msg.Text = top.Text
	r.msg.ModerationText = Moderation(r.mode(), len(valid), total, top.ModelName, r.consensus,
		sum/float64(len(valid)), searchLabel(r.turn.Options, r.turn.SearchResults))
	return StateToolDetect
}

func (r *run) toolDetect(_ context.Context) State {
	call, ok := DetectToolCall(r.published)
	if !ok {
		return StateDone
	}

	r.tool = &call
	r.msg.Text = call.Notice()
	r.msg.IsToolCall = true
	r.msg.ToolAction = call.Action
	r.msg.ToolPrompt = call.Prompt
	return StateDone
}

// record appends the valid responses of a round to the reasoning trace.
func (r *run) record(label string, responses []models.ModelResponse) {
	round := models.ReasoningRound{Label: label, Entries: []models.ReasoningEntry{}}
	for _, resp := range validOnly(responses) {
		round.Entries = append(round.Entries, models.ReasoningEntry{ModelName: resp.ModelName, Text: resp.Text})
	}
	r.trace = append(r.trace, round)
}

// generateAll asks every text model in parallel. The round always returns
// one record per model in configuration order; failures become records
// with Error set. addendum goes to every non-King system prompt.
func (r *run) generateAll(ctx context.Context, messages []models.ChatMessage, addendum string, images []models.ImageAttachment) []models.ModelResponse {
	responses := make([]models.ModelResponse, len(r.turn.TextModels))

	var g errgroup.Group
	for i, m := range r.turn.TextModels {
		i, m := i, m
		g.Go(func() error {
			system := r.turn.SystemPrompt
			if m.ID != r.king.ID {
				system += addendum
			}
			responses[i] = r.respond(ctx, m, messages, system, images)
			return nil
		})
	}
	_ = g.Wait()

	return responses
}

// respond performs one model call and converts the outcome into a record.
func (r *run) respond(ctx context.Context, m models.ModelDescriptor, messages []models.ChatMessage, system string, images []models.ImageAttachment) models.ModelResponse {
	resp := models.ModelResponse{
		ModelID:   m.ID,
		ModelName: m.Name,
		IsKing:    m.ID == r.king.ID,
	}

	text, err := r.e.invoke(ctx, m, messages, system, images)
	if err != nil {
		log.Printf("[council] Model %s failed: %v", m.Name, err)
		resp.Text = "Error: " + err.Error()
		resp.Error = err.Error()
		resp.Vote = models.StanceDisagree
		return resp
	}

	resp.Text = text
	resp.Vote = models.StanceAgree
	resp.Confidence = r.confidence(m.ID)
	return resp
}

// confidence is the model's own King-election confidence scaled to 0..1,
// or the configured baseline when it cast no valid vote.
func (r *run) confidence(modelID string) float64 {
	if r.consensus != nil {
		for _, v := range r.consensus.Votes {
			if v.ModelID == modelID && v.Error == "" && v.Confidence > 0 {
				return float64(v.Confidence) / 10
			}
		}
	}
	return r.e.weights.BaselineConfidence
}

func (e *Engine) invoke(ctx context.Context, m models.ModelDescriptor, messages []models.ChatMessage, system string, images []models.ImageAttachment) (string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	text, err := e.chat.InvokeChat(ctx, m, messages, system, Temperature, images)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", errEmptyResponse
	}
	return text, nil
}

func validOnly(responses []models.ModelResponse) []models.ModelResponse {
	valid := make([]models.ModelResponse, 0, len(responses))
	for _, r := range responses {
		if r.Valid() {
			valid = append(valid, r)
		}
	}
	return valid
}

func kingOf(responses []models.ModelResponse) (models.ModelResponse, bool) {
	for _, r := range responses {
		if r.IsKing && r.Valid() {
			return r, true
		}
	}
	return models.ModelResponse{}, false
}

// appendTurn returns a copy of messages with one more turn at the end.
func appendTurn(messages []models.ChatMessage, role models.Role, content string) []models.ChatMessage {
	out := make([]models.ChatMessage, len(messages), len(messages)+1)
	copy(out, messages)
	return append(out, models.ChatMessage{Role: role, Content: content})
}
