package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/cloo-solutions/stockrag/internal/domain"
	"github.com/cloo-solutions/stockrag/internal/service"
)

type MockSyncService struct {
	mock.Mock
}

func (m *MockSyncService) Statuses(ctx context.Context) ([]*domain.SyncStatus, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.SyncStatus), args.Error(1)
}

func (m *MockSyncService) Health(ctx context.Context) *service.HealthReport {
	args := m.Called(ctx)
	return args.Get(0).(*service.HealthReport)
}

func (m *MockSyncService) DataQuality(ctx context.Context) (*service.DataQualityReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.DataQualityReport), args.Error(1)
}

func (m *MockSyncService) PerformanceMetrics() []service.TypePerformance {
	args := m.Called()
	return args.Get(0).([]service.TypePerformance)
}

func (m *MockSyncService) SyncType(ctx context.Context, name string) (*service.SyncResult, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SyncResult), args.Error(1)
}

func (m *MockSyncService) FullResync(ctx context.Context) ([]service.SyncResult, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.SyncResult), args.Error(1)
}

func (m *MockSyncService) ClearIndex(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MockSearchService struct {
	mock.Mock
}

func (m *MockSearchService) Search(ctx context.Context, req service.SearchRequest) (*service.SearchResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.SearchResponse), args.Error(1)
}

func (m *MockSearchService) AdvancedSearch(ctx context.Context, req service.SearchRequest) (*service.AdvancedSearchResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AdvancedSearchResponse), args.Error(1)
}

func (m *MockSearchService) RawSearch(ctx context.Context, query string, filters service.SearchFilters, limit int) ([]service.SearchHit, error) {
	args := m.Called(ctx, query, filters, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.SearchHit), args.Error(1)
}

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) HandleMessage(ctx context.Context, req service.ChatRequest) (*service.ChatResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ChatResponse), args.Error(1)
}
