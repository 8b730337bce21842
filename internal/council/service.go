package council

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/guilhermeleaosoares/llm-council/internal/models"
	"github.com/guilhermeleaosoares/llm-council/internal/search"
	"github.com/guilhermeleaosoares/llm-council/internal/store"
)

var (
	// ErrConversationBusy is returned when a turn is already running on the
	// conversation.
	ErrConversationBusy = errors.New("conversation is busy")

	// ErrMessageNotFound is returned when a retry names no council message.
	ErrMessageNotFound = errors.New("message not found")

	// ErrEmptyMessage is returned for a turn with no text or attachments.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNoMediaModels is returned when no enabled model can produce the
	// requested media kind.
	ErrNoMediaModels = errors.New("no media models available")
)

// historyImageLimit is how many generated images from earlier turns are
// re-sent as multimodal context.
const historyImageLimit = 5

// MaxMediaAttempts caps the attempts per model of one media request.
const MaxMediaAttempts = 4

// ModelSource lists the enabled models and the pinned King.
type ModelSource interface {
	Enabled(modality models.Modality) []models.ModelDescriptor
	KingModelID() string
}

// MediaInvoker generates media and downloads generated images.
type MediaInvoker interface {
	InvokeImage(ctx context.Context, m models.ModelDescriptor, prompt string, opts models.MediaOptions) (*models.MediaResult, error)
	InvokeVideo(ctx context.Context, m models.ModelDescriptor, prompt string, opts models.MediaOptions) (*models.MediaResult, error)
	FetchImage(ctx context.Context, ref string) (models.ImageAttachment, error)
}

// WebSearcher is the web-search collaborator.
type WebSearcher interface {
	Search(ctx context.Context, query string) ([]models.SearchResult, error)
	DeepSearch(ctx context.Context, query string, subQueries []string) (*search.DeepResult, error)
}

// Deps are the collaborators of a Service. Search may be nil.
type Deps struct {
	Store  store.Store
	Models ModelSource
	Engine *Engine
	Chat   ChatInvoker
	Media  MediaInvoker
	Search WebSearcher
}

// Options tune a Service.
type Options struct {
	// Combine applies the combine overlay to every turn.
	Combine      bool
	TitleTimeout time.Duration
	// MediaTimeout bounds background media generation after a tool call.
	MediaTimeout time.Duration
}

// SendRequest is one user turn.
type SendRequest struct {
	Text      string
	Images    []models.ImageAttachment
	Documents []models.Document
	Options   models.TurnOptions
	Progress  func(phase string)
}

// SendResult holds the two messages a turn appended.
type SendResult struct {
	UserMessage    models.Message `json:"userMessage"`
	CouncilMessage models.Message `json:"councilMessage"`
	States         []State        `json:"-"`
}

// MediaRequest asks for explicit image or video generation.
type MediaRequest struct {
	Kind     models.MediaKind
	Prompt   string
	ModelIDs []string
	Attempts int
	Options  models.MediaOptions
}

// Service runs council turns against stored conversations. Turns on the
// same conversation are serialized; a second concurrent turn fails with
// ErrConversationBusy.
type Service struct {
	deps Deps
	opts Options

	mu   sync.Mutex
	busy map[string]bool
	wg   sync.WaitGroup
}

// NewService creates a service.
func NewService(deps Deps, opts Options) *Service {
	if opts.TitleTimeout <= 0 {
		opts.TitleTimeout = 30 * time.Second
	}
	if opts.MediaTimeout <= 0 {
		opts.MediaTimeout = 10 * time.Minute
	}
	return &Service{deps: deps, opts: opts, busy: make(map[string]bool)}
}

// Wait blocks until background work (titles, media after tool calls) is done.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) acquire(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy[id] {
		return ErrConversationBusy
	}
	s.busy[id] = true
	return nil
}

func (s *Service) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.busy, id)
}

// SendMessage appends the user message, runs the council and appends the
// council message.
func (s *Service) SendMessage(ctx context.Context, conversationID string, req SendRequest) (*SendResult, error) {
	if strings.TrimSpace(req.Text) == "" && len(req.Images) == 0 && len(req.Documents) == 0 {
		return nil, ErrEmptyMessage
	}
	if err := s.acquire(conversationID); err != nil {
		return nil, err
	}
	defer s.release(conversationID)

	return s.send(ctx, conversationID, req)
}

// Retry removes a council message and the user message before it, then
// reissues that user message with its original attachments and options.
func (s *Service) Retry(ctx context.Context, conversationID, councilMessageID string, progress func(string)) (*SendResult, error) {
	if err := s.acquire(conversationID); err != nil {
		return nil, err
	}
	defer s.release(conversationID)

	conv, err := s.conversation(conversationID)
	if err != nil {
		return nil, err
	}

	idx := -1
	for i, m := range conv.Messages {
		if m.ID == councilMessageID && m.Role == models.RoleCouncil {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrMessageNotFound
	}

	var user *models.Message
	for i := idx - 1; i >= 0; i-- {
		if conv.Messages[i].Role == models.RoleUser {
			user = &conv.Messages[i]
			break
		}
	}
	if user == nil {
		return nil, ErrMessageNotFound
	}

	if err := s.deps.Store.RemoveMessages(conversationID, user.ID, councilMessageID); err != nil {
		return nil, fmt.Errorf("failed to remove messages: %w", err)
	}

	req := SendRequest{
		Text:      user.Text,
		Images:    user.Images,
		Documents: user.Documents,
		Progress:  progress,
	}
	if user.Options != nil {
		req.Options = *user.Options
	}
	return s.send(ctx, conversationID, req)
}

func (s *Service) conversation(id string) (*models.Conversation, error) {
	conv, err := s.deps.Store.GetConversation(id)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, store.ErrNotFound
	}
	return conv, nil
}

func (s *Service) send(ctx context.Context, conversationID string, req SendRequest) (*SendResult, error) {
	conv, err := s.conversation(conversationID)
	if err != nil {
		return nil, err
	}

	req.Options.ThinkMode = models.ParseThinkMode(string(req.Options.ThinkMode))
	opts := req.Options
	userMsg := models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleUser,
		Text:      req.Text,
		Timestamp: time.Now().UTC(),
		Images:    req.Images,
		Documents: req.Documents,
		Options:   &opts,
	}
	if err := s.deps.Store.AppendMessage(conversationID, userMsg); err != nil {
		return nil, fmt.Errorf("failed to add user message: %w", err)
	}

	if len(conv.Messages) == 0 {
		s.generateTitle(conversationID, req.Text)
	}

	turn := s.prepare(ctx, conv, req)
	result, err := s.deps.Engine.Run(ctx, turn)
	if err != nil {
		if rmErr := s.deps.Store.RemoveMessages(conversationID, userMsg.ID); rmErr != nil {
			log.Printf("[council] Failed to roll back user message: %v", rmErr)
		}
		return nil, err
	}

	councilMsg := result.Message
	councilMsg.ID = uuid.New().String()
	councilMsg.Timestamp = time.Now().UTC()
	if err := s.deps.Store.AppendMessage(conversationID, councilMsg); err != nil {
		return nil, fmt.Errorf("failed to add council message: %w", err)
	}

	if result.Tool != nil {
		s.runToolCall(conversationID, *result.Tool)
	}

	return &SendResult{UserMessage: userMsg, CouncilMessage: councilMsg, States: result.States}, nil
}

// prepare builds the engine input: search context, directives, history and
// multimodal attachments.
func (s *Service) prepare(ctx context.Context, conv *models.Conversation, req SendRequest) *Turn {
	progress := req.Progress
	if progress == nil {
		progress = func(string) {}
	}

	turn := &Turn{
		Query:        req.Text,
		Options:      req.Options,
		TextModels:   s.deps.Models.Enabled(models.ModalityText),
		PinnedKingID: req.Options.KingModelID,
		Progress:     req.Progress,
	}
	turn.Options.Combine = req.Options.Combine || s.opts.Combine
	if turn.PinnedKingID == "" {
		turn.PinnedKingID = s.deps.Models.KingModelID()
	}

	content := req.Text
	if s.deps.Search != nil && strings.TrimSpace(req.Text) != "" {
		switch {
		case req.Options.DeepSearch:
			progress(PhaseDeepSearching)
			res, err := s.deps.Search.DeepSearch(ctx, req.Text, nil)
			if err != nil {
				log.Printf("[council] Deep search failed: %v", err)
			} else {
				turn.SearchResults = res.Results
				turn.DeepSearchQueries = res.Queries
			}
		case req.Options.SearchMode:
			progress(PhaseSearching)
			results, err := s.deps.Search.Search(ctx, req.Text)
			if err != nil {
				log.Printf("[council] Search failed: %v", err)
			} else {
				turn.SearchResults = results
			}
		}
		if block := search.ContextBlock(turn.SearchResults, req.Options.DeepSearch); block != "" {
			content += "\n\n" + block
		}
	}

	turn.Messages = append(store.History(conv.Messages), models.ChatMessage{Role: models.RoleUser, Content: content})

	turn.Images = append(turn.Images, req.Images...)
	turn.Images = append(turn.Images, historyImages(conv.Messages)...)

	hasImage := len(s.deps.Models.Enabled(models.ModalityImage)) > 0
	hasVideo := len(s.deps.Models.Enabled(models.ModalityVideo)) > 0
	turn.SystemPrompt = conv.SystemPrompt + DocumentDirective(req.Documents) + ToolDirective(hasImage, hasVideo)

	return turn
}

// historyImages returns the most recent generated images that were kept
// as base64.
func historyImages(messages []models.Message) []models.ImageAttachment {
	var images []models.ImageAttachment
	for _, m := range messages {
		if m.Media == nil || m.Media.Base64 == "" {
			continue
		}
		mime := m.Media.MimeType
		if mime == "" {
			mime = "image/png"
		}
		images = append(images, models.ImageAttachment{MimeType: mime, Base64: m.Media.Base64})
	}
	if len(images) > historyImageLimit {
		images = images[len(images)-historyImageLimit:]
	}
	return images
}

// generateTitle names a new conversation in the background.
func (s *Service) generateTitle(conversationID, text string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		title := FallbackTitle(text)
		if m, ok := SelectQuick(s.deps.Models.Enabled(models.ModalityText)); ok && s.deps.Chat != nil && strings.TrimSpace(text) != "" {
			ctx, cancel := context.WithTimeout(context.Background(), s.opts.TitleTimeout)
			generated, err := GenerateTitle(ctx, s.deps.Chat, m, text)
			cancel()
			if err != nil {
				log.Printf("[council] Error generating title: %v", err)
			} else {
				title = generated
			}
		}

		if err := s.deps.Store.UpdateTitle(conversationID, title); err != nil {
			log.Printf("[council] Error updating conversation title: %v", err)
		}
	}()
}

// runToolCall generates the media a council answer asked for and appends
// the result once it resolves. Exactly one generation request is issued,
// to the first enabled model of the requested kind.
func (s *Service) runToolCall(conversationID string, call ToolCall) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.opts.MediaTimeout)
		defer cancel()

		targets := s.deps.Models.Enabled(modalityOf(call.Kind()))
		var msg models.Message
		if len(targets) == 0 {
			msg = models.Message{
				Role:   models.RoleCouncil,
				Text:   fmt.Sprintf("No %s models are active. Add one in Settings to use %s.", call.Kind(), call.Action),
				Failed: true,
			}
		} else {
			msg = s.generateOne(ctx, targets[0], call.Kind(), call.Prompt, models.MediaOptions{}, 1)
		}

		msg.ID = uuid.New().String()
		msg.Timestamp = time.Now().UTC()
		if err := s.deps.Store.AppendMessage(conversationID, msg); err != nil {
			log.Printf("[council] Failed to store tool-call media: %v", err)
		}
	}()
}

// GenerateMedia runs an explicit image or video request: the prompt is
// stored as a user message followed by one message per model and attempt.
func (s *Service) GenerateMedia(ctx context.Context, conversationID string, req MediaRequest) ([]models.Message, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, ErrEmptyMessage
	}
	if req.Kind != models.MediaVideo {
		req.Kind = models.MediaImage
	}
	req.Attempts = max(1, min(req.Attempts, MaxMediaAttempts))

	if err := s.acquire(conversationID); err != nil {
		return nil, err
	}
	defer s.release(conversationID)

	conv, err := s.conversation(conversationID)
	if err != nil {
		return nil, err
	}

	targets := filterModels(s.deps.Models.Enabled(modalityOf(req.Kind)), req.ModelIDs)
	if len(targets) == 0 {
		return nil, ErrNoMediaModels
	}

	userMsg := models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleUser,
		Text:      req.Prompt,
		Timestamp: time.Now().UTC(),
	}
	if err := s.deps.Store.AppendMessage(conversationID, userMsg); err != nil {
		return nil, fmt.Errorf("failed to add user message: %w", err)
	}
	if len(conv.Messages) == 0 {
		label := "Image"
		if req.Kind == models.MediaVideo {
			label = "Video"
		}
		if err := s.deps.Store.UpdateTitle(conversationID, label+": "+FallbackTitle(req.Prompt)); err != nil {
			log.Printf("[council] Error updating conversation title: %v", err)
		}
	}

	type job struct {
		model   models.ModelDescriptor
		attempt int
	}
	var jobs []job
	for _, m := range targets {
		for a := 1; a <= req.Attempts; a++ {
			jobs = append(jobs, job{model: m, attempt: a})
		}
	}

	results := make([]models.Message, len(jobs))
	var g errgroup.Group
	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			results[i] = s.generateOne(ctx, j.model, req.Kind, req.Prompt, req.Options, j.attempt)
			return nil
		})
	}
	_ = g.Wait()

	for i := range results {
		results[i].ID = uuid.New().String()
		results[i].Timestamp = time.Now().UTC()
		if err := s.deps.Store.AppendMessage(conversationID, results[i]); err != nil {
			return nil, fmt.Errorf("failed to add media message: %w", err)
		}
	}
	return results, nil
}

// generateOne performs one generation call and renders it as a council
// message. Generated images are downloaded as base64 so later turns can
// see them.
func (s *Service) generateOne(ctx context.Context, m models.ModelDescriptor, kind models.MediaKind, prompt string, opts models.MediaOptions, attempt int) models.Message {
	artifact := &models.MediaArtifact{
		Kind:      kind,
		ModelID:   m.ID,
		ModelName: m.Name,
		Prompt:    prompt,
	}
	msg := models.Message{Role: models.RoleCouncil, Media: artifact}

	var (
		result *models.MediaResult
		err    error
	)
	if kind == models.MediaVideo {
		result, err = s.deps.Media.InvokeVideo(ctx, m, prompt, opts)
	} else {
		result, err = s.deps.Media.InvokeImage(ctx, m, prompt, opts)
	}
	if err == nil && (result == nil || result.URL() == "") {
		err = errors.New("provider returned no artifact URL")
	}
	if err != nil {
		log.Printf("[council] %s generation with %s failed: %v", kind, m.Name, err)
		label := "Image"
		if kind == models.MediaVideo {
			label = "Video"
		}
		artifact.Error = err.Error()
		msg.Text = fmt.Sprintf("%s generation failed (%s): %s", label, m.Name, err)
		msg.Failed = true
		return msg
	}

	artifact.URL = result.URL()
	msg.Text = fmt.Sprintf("Generated by %s (Attempt %d):", m.Name, attempt)

	if kind == models.MediaImage {
		img, err := s.deps.Media.FetchImage(ctx, artifact.URL)
		if err != nil {
			log.Printf("[council] Failed to fetch generated image: %v", err)
		} else {
			artifact.Base64 = img.Base64
			artifact.MimeType = img.MimeType
		}
	}
	return msg
}

func modalityOf(kind models.MediaKind) models.Modality {
	if kind == models.MediaVideo {
		return models.ModalityVideo
	}
	return models.ModalityImage
}

// filterModels keeps the models named by ids, or all of them when ids is
// empty.
func filterModels(candidates []models.ModelDescriptor, ids []string) []models.ModelDescriptor {
	if len(ids) == 0 {
		return candidates
	}
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []models.ModelDescriptor
	for _, m := range candidates {
		if want[m.ID] {
			out = append(out, m)
		}
	}
	return out
}
