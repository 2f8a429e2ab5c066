package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEntityType(t *testing.T) {
	for _, et := range AllEntityTypes() {
		got, err := ParseEntityType(string(et))
		require.NoError(t, err)
		assert.Equal(t, et, got)
	}

	_, err := ParseEntityType("warehouses")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownEntityType))
}

func TestDomainError_IsMatchesWrappedSentinel(t *testing.T) {
	err := fmt.Errorf("sync products: %w", ErrStoreUnreachable.WithCause(errors.New("dial tcp: refused")))

	assert.True(t, errors.Is(err, ErrStoreUnreachable))
	assert.False(t, errors.Is(err, ErrIndexNotReady))
	assert.Contains(t, err.Error(), "dial tcp")
}

func TestPriorityWeight(t *testing.T) {
	tests := []struct {
		priority Priority
		expected float64
	}{
		{PriorityHigh, 1.0},
		{PriorityMedium, 0.5},
		{PriorityLow, 0.2},
		{Priority("unknown"), 0},
	}

	for _, tt := range tests {
		t.Run(string(tt.priority), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.priority.Weight())
		})
	}
}

func TestInvoiceIsOverdue(t *testing.T) {
	now := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	due := now.AddDate(0, 0, -5)

	tests := []struct {
		name     string
		invoice  Invoice
		expected bool
	}{
		{"sent past due", Invoice{Status: InvoiceStatusSent, TotalAmount: 100, DueDate: due}, true},
		{"paid past due", Invoice{Status: InvoiceStatusPaid, TotalAmount: 100, PaidAmount: 100, DueDate: due}, false},
		{"explicit overdue", Invoice{Status: InvoiceStatusOverdue, TotalAmount: 100}, true},
		{"sent not yet due", Invoice{Status: InvoiceStatusSent, TotalAmount: 100, DueDate: now.AddDate(0, 0, 5)}, false},
		{"fully paid but sent", Invoice{Status: InvoiceStatusSent, TotalAmount: 100, PaidAmount: 100, DueDate: due}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.invoice.IsOverdue(now))
		})
	}
}

func TestChunkFilterValidate(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	tests := []struct {
		name    string
		filter  ChunkFilter
		wantErr bool
	}{
		{"empty", ChunkFilter{}, false},
		{"equals", ChunkFilter{Equals: map[string]string{"entity_type": "products"}}, false},
		{"attribute", ChunkFilter{Equals: map[string]string{"attributes.city": "Oran"}}, false},
		{"injection", ChunkFilter{Equals: map[string]string{"x'; DROP TABLE": "1"}}, true},
		{"equals on list", ChunkFilter{Equals: map[string]string{"tags": "overdue"}}, true},
		{"contains on scalar", ChunkFilter{ContainsAny: map[string][]string{"status": {"paid"}}}, true},
		{"contains tags", ChunkFilter{ContainsAny: map[string][]string{"tags": {"overdue"}}}, false},
		{"range", ChunkFilter{Ranges: []TimeRange{{Field: "updated_at", From: &from, To: &to}}}, false},
		{"inverted range", ChunkFilter{Ranges: []TimeRange{{Field: "updated_at", From: &to, To: &from}}}, true},
		{"range on text", ChunkFilter{Ranges: []TimeRange{{Field: "title", From: &from}}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate()
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidFilter))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateSyncStatus(t *testing.T) {
	synced := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		status  *SyncStatus
		wantErr bool
	}{
		{"never synced", NewSyncStatus(EntityProducts), false},
		{"synced", &SyncStatus{EntityType: EntityProducts, LastSync: synced, Checksum: "abc", DocumentCount: 3}, false},
		{"failed after sync", &SyncStatus{EntityType: EntityProducts, LastSync: synced, Checksum: "abc", LastError: "boom"}, false},
		{"nil", nil, true},
		{"unknown type", &SyncStatus{EntityType: "warehouses", LastSync: SyncEpoch}, true},
		{"empty checksum after sync", &SyncStatus{EntityType: EntityProducts, LastSync: synced}, true},
		{"checksum on sentinel", &SyncStatus{EntityType: EntityProducts, LastSync: SyncEpoch, Checksum: "abc"}, true},
		{"negative count", &SyncStatus{EntityType: EntityProducts, LastSync: SyncEpoch, DocumentCount: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSyncStatus(tt.status)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestChatSession_TrimKeepsSystemMessages(t *testing.T) {
	now := time.Now()
	s := NewChatSession("s1", "u1", now)
	s.Append(Message{Role: RoleSystem, Content: "system prompt", Timestamp: now}, 30)

	for i := 0; i < 40; i++ {
		s.Append(Message{Role: RoleUser, Content: fmt.Sprintf("m%d", i), Timestamp: now.Add(time.Duration(i) * time.Second)}, 30)
	}

	require.Len(t, s.Messages, 30)
	assert.Equal(t, RoleSystem, s.Messages[0].Role)
	assert.Equal(t, "m11", s.Messages[1].Content)
	assert.Equal(t, "m39", s.Messages[29].Content)
	assert.Equal(t, now.Add(39*time.Second), s.LastActivity)
}

func TestChatSession_IdleSince(t *testing.T) {
	now := time.Now()
	s := NewChatSession("s1", "u1", now.Add(-2*time.Hour))

	assert.True(t, s.IdleSince(now, time.Hour))
	assert.False(t, s.IdleSince(now, 3*time.Hour))
}

func TestChatSession_CloneIsDeep(t *testing.T) {
	now := time.Now()
	s := NewChatSession("s1", "u1", now)
	s.Append(Message{Role: RoleAssistant, Content: "hi", Timestamp: now, Metadata: map[string]string{"strategy": "history_only"}}, 30)

	c := s.Clone()
	c.Messages[0].Metadata["strategy"] = "changed"
	c.Messages = append(c.Messages, Message{Role: RoleUser})

	assert.Equal(t, "history_only", s.Messages[0].Metadata["strategy"])
	assert.Len(t, s.Messages, 1)
}
