package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap/zaptest"

	"github.com/cloo-solutions/stockrag/internal/domain"
	"github.com/cloo-solutions/stockrag/internal/service"
)

// MockJobProcessor is a mock implementation of JobProcessor
type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

type MockSyncer struct {
	mock.Mock
}

func (m *MockSyncer) SyncAll(ctx context.Context) ([]service.SyncResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.SyncResult), args.Error(1)
}

type MockSweeper struct {
	mock.Mock
}

func (m *MockSweeper) Sweep(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func TestWorker_StartStop(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker("test", mockProcessor, 50*time.Millisecond, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(180 * time.Millisecond)

	worker.Stop()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

func TestWorker_ContextCancellation(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(errors.New("transient"))

	worker := NewWorker("test", mockProcessor, 50*time.Millisecond, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(130 * time.Millisecond)
	cancel()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

func TestWorker_RunOnStart(t *testing.T) {
	var runs atomic.Int32
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Run(func(mock.Arguments) { runs.Add(1) }).Return(nil)

	worker := NewWorker("test", mockProcessor, time.Hour, zaptest.NewLogger(t), WithRunOnStart())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	assert.Eventually(t, func() bool {
		return runs.Load() > 0
	}, time.Second, 10*time.Millisecond)

	worker.Stop()
	wg.Wait()
	mockProcessor.AssertNumberOfCalls(t, "ProcessJobs", 1)
}

func TestSyncProcessor_ProcessJobs(t *testing.T) {
	syncer := new(MockSyncer)
	syncer.On("SyncAll", mock.Anything).Return([]service.SyncResult{
		{EntityType: domain.EntityProducts, Outcome: service.SyncOutcomeSynced},
		{EntityType: domain.EntityClients, Outcome: service.SyncOutcomeFailed, Error: "timeout"},
	}, nil).Once()

	err := NewSyncProcessor(syncer, zaptest.NewLogger(t)).ProcessJobs(context.Background())

	assert.NoError(t, err)
	syncer.AssertExpectations(t)
}

func TestSyncProcessor_NotReady(t *testing.T) {
	syncer := new(MockSyncer)
	syncer.On("SyncAll", mock.Anything).Return(nil, domain.ErrNotInitialized).Once()

	err := NewSyncProcessor(syncer, zaptest.NewLogger(t)).ProcessJobs(context.Background())

	assert.ErrorIs(t, err, domain.ErrNotInitialized)
}

func TestSessionSweeper_ProcessJobs(t *testing.T) {
	sweeper := new(MockSweeper)
	sweeper.On("Sweep", mock.Anything).Return(2, nil).Once()
	sweeper.On("Sweep", mock.Anything).Return(0, errors.New("archive down")).Once()

	s := NewSessionSweeper(sweeper, zaptest.NewLogger(t))
	assert.NoError(t, s.ProcessJobs(context.Background()))
	assert.ErrorContains(t, s.ProcessJobs(context.Background()), "archive down")
	sweeper.AssertExpectations(t)
}
