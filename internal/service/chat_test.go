package service

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cloo-solutions/stockrag/internal/domain"
)

type fakeRetriever struct {
	mu     sync.Mutex
	hits   []SearchHit
	err    error
	limits []int
}

func (f *fakeRetriever) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	f.mu.Lock()
	f.limits = append(f.limits, req.Limit)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &SearchResponse{Query: req.Query, Hits: f.hits}, nil
}

type chatFixture struct {
	svc       *ChatService
	gen       *MockGenerator
	retriever *fakeRetriever
	sessions  *SessionStore
	reg       *prometheus.Registry
}

func newChatFixture(t *testing.T, strategies ...Strategy) *chatFixture {
	t.Helper()
	f := &chatFixture{
		gen: &MockGenerator{},
		retriever: &fakeRetriever{hits: []SearchHit{{
			DocumentID: "invoices:i1", EntityType: domain.EntityInvoices, EntityID: "i1",
			Title: "Invoice INV-1", Content: "Invoice INV-1 is overdue by 12 days.", Relevance: 0.9,
		}}},
		sessions: NewSessionStore(DefaultSessionConfig(), nil, zaptest.NewLogger(t)),
		reg:      prometheus.NewRegistry(),
	}
	f.svc = NewChatService(f.sessions, f.retriever, f.gen, readyReadiness(), ChatConfig{Strategies: strategies}, NewMetrics(f.reg), zaptest.NewLogger(t))
	return f
}

func TestHandleMessage_FirstStrategyAnswers(t *testing.T) {
	f := newChatFixture(t)
	f.gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("INV-1 is overdue.", nil).Once()

	resp, err := f.svc.HandleMessage(context.Background(), ChatRequest{SessionID: "s1", Message: "Which invoices are overdue?"})
	require.NoError(t, err)

	assert.Equal(t, "INV-1 is overdue.", resp.Reply)
	assert.Equal(t, StrategyEnhancedSearch, resp.Strategy)
	assert.Equal(t, "mock", resp.Provider)
	assert.Equal(t, "en", resp.Language)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "invoices:i1", resp.Sources[0].DocumentID)
	assert.Equal(t, []int{8}, f.retriever.limits)

	session, err := f.sessions.Get("s1")
	require.NoError(t, err)
	require.Len(t, session.Messages, 2)
	assert.Equal(t, domain.RoleUser, session.Messages[0].Role)
	reply := session.Messages[1]
	assert.Equal(t, domain.RoleAssistant, reply.Role)
	assert.Equal(t, StrategyEnhancedSearch, reply.Metadata["strategy"])
	assert.Equal(t, "mock", reply.Metadata["provider"])
	assert.Equal(t, "mock-1", reply.Metadata["model"])
	assert.Equal(t, "invoices:i1", reply.Metadata["sources"])
	assert.Contains(t, reply.Metadata, "duration_ms")

	prompt := f.gen.Calls[0].Arguments.String(1)
	assert.Contains(t, prompt, "Invoice INV-1 is overdue by 12 days.")
	assert.Contains(t, prompt, "Respond in English.")

	assert.Equal(t, 1.0, testutil.ToFloat64(f.svc.metrics.chatTurns.WithLabelValues(StrategyEnhancedSearch, "success")))
	f.gen.AssertExpectations(t)
}

func TestHandleMessage_FallsBackInOrder(t *testing.T) {
	f := newChatFixture(t)
	f.gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("model crashed")).Once()
	f.gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("Fallback answer.", nil).Once()

	resp, err := f.svc.HandleMessage(context.Background(), ChatRequest{SessionID: "s1", Message: "Low stock products?"})
	require.NoError(t, err)

	assert.Equal(t, StrategyModerateContext, resp.Strategy)
	assert.Equal(t, []int{8, 4}, f.retriever.limits)
}

func TestHandleMessage_AllStrategiesFail(t *testing.T) {
	f := newChatFixture(t)
	f.gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("model crashed"))

	_, err := f.svc.HandleMessage(context.Background(), ChatRequest{SessionID: "s1", Message: "Hello"})

	var chatErr *ChatError
	require.ErrorAs(t, err, &chatErr)
	assert.Equal(t, ChatErrorGeneric, chatErr.Kind)
	assert.NotEmpty(t, chatErr.Message)
	assert.NotContains(t, chatErr.Message, "model crashed")
	f.gen.AssertNumberOfCalls(t, "Generate", 3)
	assert.Equal(t, []int{8, 4}, f.retriever.limits)

	session, err := f.sessions.Get("s1")
	require.NoError(t, err)
	require.Len(t, session.Messages, 1)
	assert.Equal(t, domain.RoleUser, session.Messages[0].Role)
}

func TestHandleMessage_TimeoutCancelsGeneration(t *testing.T) {
	quick := []Strategy{
		{Name: StrategyEnhancedSearch, TopK: 8, IncludeHistory: true, Timeout: 20 * time.Millisecond},
		{Name: StrategyHistoryOnly, IncludeHistory: true, Timeout: 20 * time.Millisecond},
	}
	f := newChatFixture(t, quick...)
	f.gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return("", context.DeadlineExceeded)

	_, err := f.svc.HandleMessage(context.Background(), ChatRequest{Message: "Slow question"})

	var chatErr *ChatError
	require.ErrorAs(t, err, &chatErr)
	assert.Equal(t, ChatErrorTimeout, chatErr.Kind)
	assert.ErrorIs(t, err, domain.ErrGenerationTimeout)
}

func TestHandleMessage_IndexNotReadyOutranksGeneric(t *testing.T) {
	f := newChatFixture(t)
	f.retriever.err = domain.ErrIndexNotReady
	f.gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("", errors.New("model crashed"))

	_, err := f.svc.HandleMessage(context.Background(), ChatRequest{Message: "Stock of bolts?"})

	var chatErr *ChatError
	require.ErrorAs(t, err, &chatErr)
	assert.Equal(t, ChatErrorIndexNotReady, chatErr.Kind)
	f.gen.AssertNumberOfCalls(t, "Generate", 1)
}

func TestHandleMessage_NotInitialized(t *testing.T) {
	f := newChatFixture(t)
	f.svc.ready = NewReadiness()

	_, err := f.svc.HandleMessage(context.Background(), ChatRequest{Message: "Hello"})
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
	f.gen.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleMessage_EmptyMessage(t *testing.T) {
	f := newChatFixture(t)

	_, err := f.svc.HandleMessage(context.Background(), ChatRequest{Message: " \n"})
	assert.ErrorIs(t, err, domain.ErrEmptyMessage)
}

func TestHandleMessage_RespondsInDetectedLanguage(t *testing.T) {
	f := newChatFixture(t)
	f.gen.On("Generate", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "Respond in Arabic.")
	}), mock.Anything).Return("الفاتورة متأخرة", nil).Once()

	resp, err := f.svc.HandleMessage(context.Background(), ChatRequest{Message: "ما هي الفواتير المتأخرة؟"})
	require.NoError(t, err)
	assert.Equal(t, "ar", resp.Language)
	assert.NotEmpty(t, resp.SessionID)
}

func TestHandleMessage_HistoryReachesPrompt(t *testing.T) {
	f := newChatFixture(t)
	f.gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("First answer.", nil).Once()
	f.gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).Return("Second answer.", nil).Once()

	_, err := f.svc.HandleMessage(context.Background(), ChatRequest{SessionID: "s1", Message: "Who supplies bolts?"})
	require.NoError(t, err)
	_, err = f.svc.HandleMessage(context.Background(), ChatRequest{SessionID: "s1", Message: "And their city?"})
	require.NoError(t, err)

	prompt := f.gen.Calls[1].Arguments.String(1)
	assert.Contains(t, prompt, "User: Who supplies bolts?")
	assert.Contains(t, prompt, "Assistant: First answer.")
}

func TestHandleMessage_SweepDuringGenerationKeepsConversation(t *testing.T) {
	f := newChatFixture(t)
	clock := &testClock{now: fixedNow}
	f.sessions.now = clock.Now
	f.svc.now = clock.Now

	f.sessions.Append("s1", "u1",
		domain.Message{Role: domain.RoleUser, Content: "Who supplies bolts?"},
		domain.Message{Role: domain.RoleAssistant, Content: "Aceros del Sur."},
	)
	clock.Advance(59 * time.Minute)

	var swept int
	f.gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			clock.Advance(2 * time.Minute)
			n, err := f.sessions.Sweep(context.Background())
			require.NoError(t, err)
			swept = n
		}).
		Return("They are in Arequipa.", nil).Once()

	_, err := f.svc.HandleMessage(context.Background(), ChatRequest{SessionID: "s1", UserID: "u1", Message: "And their city?"})
	require.NoError(t, err)

	assert.Zero(t, swept)
	session, err := f.sessions.Get("s1")
	require.NoError(t, err)
	require.Len(t, session.Messages, 4)
	assert.Equal(t, "Who supplies bolts?", session.Messages[0].Content)
	assert.Equal(t, "And their city?", session.Messages[2].Content)
	assert.Equal(t, "They are in Arequipa.", session.Messages[3].Content)

	prompt := f.gen.Calls[0].Arguments.String(1)
	assert.Contains(t, prompt, "Assistant: Aceros del Sur.")
	assert.Equal(t, 1, strings.Count(prompt, "And their city?"))
}

func TestHandleMessage_QuestionRecordedBeforeGeneration(t *testing.T) {
	f := newChatFixture(t)

	var during []domain.Message
	f.gen.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			session, err := f.sessions.Get("s1")
			require.NoError(t, err)
			during = session.Messages
		}).
		Return("Three products.", nil).Once()

	_, err := f.svc.HandleMessage(context.Background(), ChatRequest{SessionID: "s1", Message: "How many products are low?"})
	require.NoError(t, err)

	require.Len(t, during, 1)
	assert.Equal(t, domain.RoleUser, during[0].Role)
	assert.NotContains(t, f.gen.Calls[0].Arguments.String(1), "Conversation so far")
}

func TestClassifyChatError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ChatErrorKind
	}{
		{"refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, ChatErrorConnection},
		{"refused text", errors.New("Post http://localhost:11434: connection refused"), ChatErrorConnection},
		{"offline", domain.ErrProviderOffline, ChatErrorConnection},
		{"deadline", context.DeadlineExceeded, ChatErrorTimeout},
		{"timeout", domain.ErrGenerationTimeout.WithCause(errors.New("x")), ChatErrorTimeout},
		{"index", domain.ErrIndexNotReady, ChatErrorIndexNotReady},
		{"other", errors.New("bad gateway"), ChatErrorGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifyChatError(tt.err))
		})
	}
}

func TestClassifyFailures_Precedence(t *testing.T) {
	errs := []error{
		errors.New("bad gateway"),
		domain.ErrIndexNotReady,
		context.DeadlineExceeded,
	}
	assert.Equal(t, ChatErrorTimeout, classifyFailures(errs).Kind)

	errs = append(errs, errors.New("dial tcp: connection refused"))
	assert.Equal(t, ChatErrorConnection, classifyFailures(errs).Kind)
}

func TestDefaultStrategies(t *testing.T) {
	s := DefaultStrategies()
	require.Len(t, s, 3)
	assert.Equal(t, []string{StrategyEnhancedSearch, StrategyModerateContext, StrategyHistoryOnly}, []string{s[0].Name, s[1].Name, s[2].Name})
	assert.Equal(t, []int{8, 4, 0}, []int{s[0].TopK, s[1].TopK, s[2].TopK})
	assert.Equal(t, 45*time.Second, s[0].Timeout)
	assert.Equal(t, 25*time.Second, s[2].Timeout)
}
