package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"ragdesk/internal/knowledge"
	"ragdesk/internal/metrics"
	"ragdesk/internal/model"
	"ragdesk/internal/rag"
	"ragdesk/internal/rag/answer"
	"ragdesk/internal/rag/expand"
	"ragdesk/internal/repository"
)

const (
	DefaultGenerationTimeout = 90 * time.Second
	historyCacheSize         = 200

	fallbackReply = "I'm sorry, I couldn't come up with an answer just now. Could you rephrase your question?"
)

type AsyncMessagePublisher interface {
	Publish(ctx context.Context, msg model.Message) error
}

type HistoryCache interface {
	Get(ctx context.Context, userID uint) ([]model.Message, bool, error)
	Set(ctx context.Context, userID uint, messages []model.Message) error
	Invalidate(ctx context.Context, userID uint) error
	IsDirty(ctx context.Context, userID uint) (bool, error)
}

type QueryExpander interface {
	Expand(ctx context.Context, query string, history []rag.Turn) ([]string, error)
}

type ChatConfig struct {
	TopK              int
	UseReranking      bool
	ExpansionEnabled  bool
	HistoryMode       string
	HistoryLimit      int
	GenerationTimeout time.Duration
}

type AnswerInput struct {
	Query     string
	History   []rag.Turn
	OwnerName string
	Retrieved []SearchResult
}

type SendMessageInput struct {
	UserID   uint
	UserName string
	Content  string
}

type SendMessageResult struct {
	Reply    string          `json:"reply"`
	Messages []model.Message `json:"messages"`
}

type ChatService struct {
	messageRepo *repository.MessageRepository
	publisher   AsyncMessagePublisher
	history     HistoryCache
	search      *SearchService
	expander    QueryExpander
	generator   expand.Generator
	assembler   *answer.Assembler
	sanitizer   *answer.Sanitizer
	knowledge   *knowledge.Base
	cfg         ChatConfig
	log         *zap.Logger
}

// NewChatService wires the read path. publisher, history, expander and kb may
// be nil: messages are then stored synchronously, history is read from the
// database, queries are not expanded and no company knowledge is added.
func NewChatService(
	messageRepo *repository.MessageRepository,
	publisher AsyncMessagePublisher,
	history HistoryCache,
	search *SearchService,
	expander QueryExpander,
	generator expand.Generator,
	assembler *answer.Assembler,
	sanitizer *answer.Sanitizer,
	kb *knowledge.Base,
	cfg ChatConfig,
	log *zap.Logger,
) *ChatService {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultSearchK
	}
	if cfg.HistoryMode == "" {
		cfg.HistoryMode = answer.HistoryLastN
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = answer.DefaultHistoryLimit
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = DefaultGenerationTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ChatService{
		messageRepo: messageRepo,
		publisher:   publisher,
		history:     history,
		search:      search,
		expander:    expander,
		generator:   generator,
		assembler:   assembler,
		sanitizer:   sanitizer,
		knowledge:   kb,
		cfg:         cfg,
		log:         log,
	}
}

// ExpandQuery returns the query followed by its alternates. It never fails;
// without an expander, or when expansion fails, only the query is returned.
func (s *ChatService) ExpandQuery(ctx context.Context, query string, history []rag.Turn) []string {
	query = strings.TrimSpace(query)
	if s.expander == nil || !s.cfg.ExpansionEnabled {
		return []string{query}
	}
	queries, err := s.expander.Expand(ctx, query, history)
	if err != nil {
		s.log.Debug("query expansion used fallback", zap.Error(err))
	}
	if len(queries) == 0 {
		return []string{query}
	}
	return queries
}

// BuildAnswer assembles the prompt, generates a reply and strips provenance
// leaks from it. An empty generation, or one that cannot be cleaned of
// provenance, yields a fixed polite reply; a failed one yields
// ErrGenerationUnavailable.
func (s *ChatService) BuildAnswer(ctx context.Context, input AnswerInput) (string, error) {
	passages := make([]answer.Passage, len(input.Retrieved))
	for i, r := range input.Retrieved {
		passages[i] = answer.Passage{
			Content:     r.Content,
			Similarity:  r.Similarity,
			RerankScore: r.RerankScore,
		}
	}
	var kb string
	if s.knowledge != nil {
		kb = s.knowledge.Lookup(input.Query)
	}
	prompt := s.assembler.Build(answer.Input{
		Query:     input.Query,
		History:   input.History,
		OwnerName: input.OwnerName,
		Retrieved: passages,
		Knowledge: kb,
	})

	started := time.Now()
	genCtx, cancel := context.WithTimeout(ctx, s.cfg.GenerationTimeout)
	defer cancel()
	text, err := s.generator.Generate(genCtx, prompt)
	metrics.ObserveStage(string(rag.StageGenerate), started)
	if err != nil {
		s.log.Error("generation failed", zap.Error(err))
		return "", rag.NewError(rag.KindModel, rag.StageGenerate, fmt.Errorf("%w: %w", ErrGenerationUnavailable, err))
	}

	text = strings.TrimSpace(text)
	if text == "" {
		metrics.Fallback(string(rag.StageGenerate), 1)
		s.log.Warn("generation returned empty text")
		return fallbackReply, nil
	}
	clean := s.sanitizer.Sanitize(text)
	if s.sanitizer.Leaks(clean) {
		metrics.Fallback("sanitize", 1)
		s.log.Warn("reply still reveals provenance after sanitizing, using fallback reply")
		return fallbackReply, nil
	}
	return clean, nil
}

// RecentTurns returns the history window used for expansion and prompting.
func (s *ChatService) RecentTurns(ctx context.Context, userID uint) ([]rag.Turn, error) {
	limit := s.cfg.HistoryLimit
	if s.cfg.HistoryMode == answer.HistoryAll {
		limit = 0
	}
	past, err := s.GetHistory(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	return toTurns(past), nil
}

// SendMessage answers one user message from the user's own documents and
// queues both sides of the exchange for storage.
func (s *ChatService) SendMessage(ctx context.Context, input SendMessageInput) (*SendMessageResult, error) {
	if input.UserID == 0 {
		return nil, ErrInvalidInput
	}
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, ErrMessageEmpty
	}

	turns, err := s.RecentTurns(ctx, input.UserID)
	if err != nil {
		return nil, err
	}

	queries := s.ExpandQuery(ctx, content, turns)
	retrieved, err := s.search.SearchMany(ctx, input.UserID, queries, s.cfg.TopK, s.cfg.UseReranking)
	if err != nil {
		return nil, err
	}

	userMessage := model.Message{
		UserID:    input.UserID,
		Role:      model.RoleUser,
		Content:   content,
		CreatedAt: time.Now(),
	}
	if err := s.persist(ctx, &userMessage); err != nil {
		return nil, err
	}

	reply, err := s.BuildAnswer(ctx, AnswerInput{
		Query:     content,
		History:   turns,
		OwnerName: input.UserName,
		Retrieved: retrieved,
	})
	if err != nil {
		return nil, err
	}

	assistantMessage := model.Message{
		UserID:    input.UserID,
		Role:      model.RoleAssistant,
		Content:   reply,
		CreatedAt: time.Now(),
	}
	if err := s.persist(ctx, &assistantMessage); err != nil {
		return nil, err
	}

	return &SendMessageResult{
		Reply:    reply,
		Messages: []model.Message{userMessage, assistantMessage},
	}, nil
}

func (s *ChatService) persist(ctx context.Context, msg *model.Message) error {
	if s.history != nil {
		if err := s.history.Invalidate(ctx, msg.UserID); err != nil {
			s.log.Warn("invalidate history cache failed", zap.Uint("user_id", msg.UserID), zap.Error(err))
		}
	}
	if s.publisher == nil {
		return s.messageRepo.Create(msg)
	}
	if err := s.publisher.Publish(ctx, *msg); err != nil {
		s.log.Error("enqueue message failed", zap.Uint("user_id", msg.UserID), zap.Error(err))
		return ErrMessageEnqueue
	}
	return nil
}

// GetHistory returns the user's latest messages oldest first; limit <= 0
// returns everything cached, up to the cache size.
func (s *ChatService) GetHistory(ctx context.Context, userID uint, limit int) ([]model.Message, error) {
	if userID == 0 {
		return nil, ErrInvalidInput
	}

	if s.history != nil {
		dirty, err := s.history.IsDirty(ctx, userID)
		if err == nil && !dirty {
			if cached, hit, cacheErr := s.history.Get(ctx, userID); cacheErr == nil && hit {
				return trimMessages(cached, limit), nil
			}
		}
	}

	messages, err := s.messageRepo.ListRecentByUserID(userID, historyCacheSize)
	if err != nil {
		return nil, err
	}
	if s.history != nil {
		if dirty, dirtyErr := s.history.IsDirty(ctx, userID); dirtyErr == nil && !dirty {
			if err := s.history.Set(ctx, userID, messages); err != nil {
				s.log.Warn("cache history failed", zap.Uint("user_id", userID), zap.Error(err))
			}
		}
	}
	return trimMessages(messages, limit), nil
}

// ClearHistory deletes the user's conversation and returns how many messages
// were removed.
func (s *ChatService) ClearHistory(ctx context.Context, userID uint) (int64, error) {
	if userID == 0 {
		return 0, ErrInvalidInput
	}
	n, err := s.messageRepo.DeleteByUserID(userID)
	if err != nil {
		return 0, err
	}
	if s.history != nil {
		if err := s.history.Invalidate(ctx, userID); err != nil {
			s.log.Warn("invalidate history cache failed", zap.Uint("user_id", userID), zap.Error(err))
		}
	}
	return n, nil
}

func trimMessages(messages []model.Message, limit int) []model.Message {
	if limit <= 0 || limit >= len(messages) {
		return messages
	}
	return messages[len(messages)-limit:]
}

func toTurns(messages []model.Message) []rag.Turn {
	turns := make([]rag.Turn, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role == "" {
			role = rag.RoleUser
		}
		turns = append(turns, rag.Turn{Role: role, Content: m.Content})
	}
	return turns
}
