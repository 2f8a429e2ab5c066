package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloo-solutions/stockrag/internal/domain"
	"github.com/cloo-solutions/stockrag/internal/generation"
	"github.com/cloo-solutions/stockrag/internal/telemetry"
)

const (
	promptHistoryMessages = 10
	sourceSnippetLength   = 400
)

// Generator produces a completion for a prompt. Implementations must abort
// when ctx is cancelled.
type Generator interface {
	Name() string
	Model() string
	Generate(ctx context.Context, prompt string, params generation.SamplingParams) (string, error)
	Ping(ctx context.Context) error
}

// ContextRetriever supplies the retrieved context of a chat turn.
type ContextRetriever interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

type ChatErrorKind string

const (
	ChatErrorConnection    ChatErrorKind = "connection"
	ChatErrorTimeout       ChatErrorKind = "timeout"
	ChatErrorIndexNotReady ChatErrorKind = "index_not_ready"
	ChatErrorGeneric       ChatErrorKind = "generic"
)

var chatErrorMessages = map[ChatErrorKind]string{
	ChatErrorConnection:    "The assistant is temporarily unavailable. Please try again shortly.",
	ChatErrorTimeout:       "The assistant took too long to answer. Please try again or ask a shorter question.",
	ChatErrorIndexNotReady: "The inventory data is still being indexed. Please try again in a few minutes.",
	ChatErrorGeneric:       "Sorry, I could not answer that right now. Please try again.",
}

// ChatError is returned when every strategy failed. Message is safe to show
// to the user; Err carries the underlying cause.
type ChatError struct {
	Kind    ChatErrorKind
	Message string
	Err     error
}

func (e *ChatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chat %s: %v", e.Kind, e.Err)
	}
	return "chat " + string(e.Kind)
}

func (e *ChatError) Unwrap() error { return e.Err }

func newChatError(kind ChatErrorKind, err error) *ChatError {
	return &ChatError{Kind: kind, Message: chatErrorMessages[kind], Err: err}
}

// kindRank orders failure kinds by how much they tell the user.
var kindRank = map[ChatErrorKind]int{
	ChatErrorConnection:    3,
	ChatErrorTimeout:       2,
	ChatErrorIndexNotReady: 1,
	ChatErrorGeneric:       0,
}

func classifyChatError(err error) ChatErrorKind {
	var opErr *net.OpError
	switch {
	case errors.Is(err, domain.ErrProviderOffline),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.As(err, &opErr),
		strings.Contains(strings.ToLower(err.Error()), "connection refused"):
		return ChatErrorConnection
	case errors.Is(err, domain.ErrGenerationTimeout), errors.Is(err, context.DeadlineExceeded):
		return ChatErrorTimeout
	case errors.Is(err, domain.ErrIndexNotReady):
		return ChatErrorIndexNotReady
	default:
		return ChatErrorGeneric
	}
}

// classifyFailures picks the most specific kind among the strategy failures.
func classifyFailures(errs []error) *ChatError {
	best := ChatErrorGeneric
	for _, err := range errs {
		if k := classifyChatError(err); kindRank[k] > kindRank[best] {
			best = k
		}
	}
	return newChatError(best, errors.Join(errs...))
}

type ChatConfig struct {
	Strategies []Strategy
	Sampling   generation.SamplingParams
}

func DefaultChatConfig() ChatConfig {
	return ChatConfig{Strategies: DefaultStrategies()}
}

type ChatRequest struct {
	SessionID string        `json:"session_id,omitempty"`
	UserID    string        `json:"user_id,omitempty"`
	Message   string        `json:"message"`
	Filters   SearchFilters `json:"filters,omitempty"`
}

type ChatSource struct {
	DocumentID string            `json:"document_id"`
	EntityType domain.EntityType `json:"entity_type"`
	EntityID   string            `json:"entity_id"`
	Title      string            `json:"title"`
	Relevance  float64           `json:"relevance"`
}

type ChatResponse struct {
	SessionID  string       `json:"session_id"`
	Reply      string       `json:"reply"`
	Strategy   string       `json:"strategy"`
	Provider   string       `json:"provider"`
	Model      string       `json:"model"`
	Language   string       `json:"language"`
	DurationMS int64        `json:"duration_ms"`
	Sources    []ChatSource `json:"sources"`
}

// ChatService answers chat turns with retrieved inventory context, falling
// back through progressively cheaper strategies.
type ChatService struct {
	sessions  *SessionStore
	retriever ContextRetriever
	generator Generator
	ready     *Readiness
	cfg       ChatConfig
	metrics   *Metrics
	logger    *zap.Logger
	now       func() time.Time
}

func NewChatService(sessions *SessionStore, retriever ContextRetriever, generator Generator, ready *Readiness, cfg ChatConfig, metrics *Metrics, logger *zap.Logger) *ChatService {
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = DefaultStrategies()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		sessions:  sessions,
		retriever: retriever,
		generator: generator,
		ready:     ready,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger.Named("chat"),
		now:       time.Now,
	}
}

func (s *ChatService) Sessions() *SessionStore { return s.sessions }

type strategyOutcome struct {
	reply   string
	sources []ChatSource
}

// HandleMessage runs one chat turn. It returns ErrNotInitialized while the
// generator has not passed its startup probe and a *ChatError when every
// strategy failed. The question is recorded before generation starts and the
// assistant turn only on success.
func (s *ChatService) HandleMessage(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return nil, domain.ErrEmptyMessage
	}
	if err := s.ready.Err(); err != nil {
		return nil, err
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ctx, span := telemetry.StartSpan(ctx, "ChatService.HandleMessage", telemetry.SpanAttributes{SessionID: sessionID, Operation: "chat"})
	defer span.End()

	log := s.logger.With(zap.String("session_id", sessionID))

	lang := generation.DetectLanguage(message)
	started := s.now()

	// The question refreshes the idle clock before any strategy runs, so a
	// sweep during generation cannot evict the conversation.
	session := s.sessions.Append(sessionID, req.UserID, domain.Message{Role: domain.RoleUser, Content: message, Timestamp: started})
	history := session.Messages
	if n := len(history); n > 0 && history[n-1].Role == domain.RoleUser {
		history = history[:n-1]
	}

	var failures []error
	for _, st := range s.cfg.Strategies {
		attemptStart := s.now()
		out, err := s.runStrategy(ctx, st, req, message, history, lang)
		s.metrics.observeStrategy(st.Name, s.now().Sub(attemptStart))
		if err == nil {
			return s.complete(sessionID, req.UserID, st, out, lang, started), nil
		}

		log.Warn("strategy failed", zap.String("strategy", st.Name), zap.Error(err))
		failures = append(failures, fmt.Errorf("%s: %w", st.Name, err))
		if ctx.Err() != nil {
			break
		}
	}

	s.metrics.observeChatTurn("none", "failed")

	if err := ctx.Err(); err != nil {
		span.SetError(err)
		return nil, err
	}
	chatErr := classifyFailures(failures)
	span.SetError(chatErr)
	log.Error("all strategies failed", zap.String("kind", string(chatErr.Kind)), zap.Error(chatErr.Err))
	return nil, chatErr
}

func (s *ChatService) complete(sessionID, userID string, st Strategy, out strategyOutcome, lang generation.Language, started time.Time) *ChatResponse {
	finished := s.now()
	elapsed := finished.Sub(started)

	ids := make([]string, 0, len(out.sources))
	for _, src := range out.sources {
		ids = append(ids, src.DocumentID)
	}

	reply := domain.Message{
		Role:      domain.RoleAssistant,
		Content:   out.reply,
		Timestamp: finished,
		Metadata: map[string]string{
			"strategy":    st.Name,
			"provider":    s.generator.Name(),
			"model":       s.generator.Model(),
			"duration_ms": strconv.FormatInt(elapsed.Milliseconds(), 10),
			"sources":     strings.Join(ids, ","),
			"language":    lang.Code,
		},
	}
	s.sessions.Append(sessionID, userID, reply)
	s.metrics.observeChatTurn(st.Name, "success")

	return &ChatResponse{
		SessionID:  sessionID,
		Reply:      out.reply,
		Strategy:   st.Name,
		Provider:   s.generator.Name(),
		Model:      s.generator.Model(),
		Language:   lang.Code,
		DurationMS: elapsed.Milliseconds(),
		Sources:    out.sources,
	}
}

// runStrategy retrieves context and generates under the strategy timeout.
// Expiry cancels the in-flight generation.
func (s *ChatService) runStrategy(ctx context.Context, st Strategy, req ChatRequest, message string, history []domain.Message, lang generation.Language) (strategyOutcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "chat.strategy", telemetry.SpanAttributes{Strategy: st.Name, Operation: "generate"})
	defer span.End()

	if st.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, st.Timeout)
		defer cancel()
	}

	var hits []SearchHit
	if st.TopK > 0 {
		resp, err := s.retriever.Search(ctx, SearchRequest{Query: message, Filters: req.Filters, Limit: st.TopK})
		if err != nil {
			span.SetError(err)
			return strategyOutcome{}, s.timeoutOr(ctx, err)
		}
		hits = resp.Hits
	}

	if !st.IncludeHistory {
		history = nil
	}
	prompt := buildPrompt(message, hits, history, lang)

	reply, err := s.generator.Generate(ctx, prompt, s.cfg.Sampling)
	if err != nil {
		span.SetError(err)
		return strategyOutcome{}, s.timeoutOr(ctx, err)
	}
	if strings.TrimSpace(reply) == "" {
		return strategyOutcome{}, errors.New("empty reply")
	}

	sources := make([]ChatSource, 0, len(hits))
	for _, h := range hits {
		sources = append(sources, ChatSource{
			DocumentID: h.DocumentID,
			EntityType: h.EntityType,
			EntityID:   h.EntityID,
			Title:      h.Title,
			Relevance:  h.Relevance,
		})
	}
	return strategyOutcome{reply: strings.TrimSpace(reply), sources: sources}, nil
}

func (s *ChatService) timeoutOr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return domain.ErrGenerationTimeout.WithCause(err)
	}
	return err
}

func buildPrompt(message string, hits []SearchHit, history []domain.Message, lang generation.Language) string {
	var b strings.Builder

	b.WriteString("You are an inventory assistant for a business that tracks users, clients, products, suppliers, purchases and invoices. ")
	b.WriteString("Answer using the records below. If they do not contain the answer, say so plainly and do not invent figures.\n")
	fmt.Fprintf(&b, "Respond in %s.\n", lang.Name)

	if len(hits) > 0 {
		b.WriteString("\nRecords:\n")
		for i, h := range hits {
			fmt.Fprintf(&b, "[%d] %s (%s %s)\n%s\n", i+1, h.Title, h.EntityType.Singular(), h.EntityID, snippet(h.Content, sourceSnippetLength))
		}
	}

	if len(history) > 0 {
		start := max(0, len(history)-promptHistoryMessages)
		b.WriteString("\nConversation so far:\n")
		for _, m := range history[start:] {
			switch m.Role {
			case domain.RoleUser:
				fmt.Fprintf(&b, "User: %s\n", m.Content)
			case domain.RoleAssistant:
				fmt.Fprintf(&b, "Assistant: %s\n", m.Content)
			}
		}
	}

	fmt.Fprintf(&b, "\nUser: %s\nAssistant:", message)
	return b.String()
}
