package domain

import (
	"fmt"
	"time"
)

// SyncEpoch is the LastSync sentinel of a type that was never synced. A sync
// starting from it fetches every record.
var SyncEpoch = time.Unix(0, 0).UTC()

// SyncStatus is the persisted checkpoint of one entity type
type SyncStatus struct {
	EntityType    EntityType
	LastSync      time.Time
	Checksum      string
	DocumentCount int
	LastError     string
	DurationMS    int64
	UpdatedAt     time.Time
}

// NewSyncStatus returns the never-synced checkpoint for t
func NewSyncStatus(t EntityType) *SyncStatus {
	return &SyncStatus{
		EntityType: t,
		LastSync:   SyncEpoch,
	}
}

// NeverSynced reports whether the checkpoint is still the sentinel
func (s *SyncStatus) NeverSynced() bool {
	return !s.LastSync.After(SyncEpoch)
}

// ValidateSyncStatus checks a checkpoint before it is persisted
func ValidateSyncStatus(s *SyncStatus) error {
	if s == nil {
		return fmt.Errorf("sync status cannot be nil")
	}

	if !s.EntityType.IsValid() {
		return ErrUnknownEntityType.WithCause(fmt.Errorf("%q", s.EntityType))
	}

	if s.DocumentCount < 0 {
		return ErrInvalidSyncStatus.WithCause(fmt.Errorf("negative document count %d", s.DocumentCount))
	}

	if s.Checksum == "" && !s.NeverSynced() && s.LastError == "" {
		return ErrInvalidSyncStatus.WithCause(fmt.Errorf("empty checksum on synced type %s", s.EntityType))
	}

	if s.Checksum != "" && s.NeverSynced() {
		return ErrInvalidSyncStatus.WithCause(fmt.Errorf("checksum set on never-synced type %s", s.EntityType))
	}

	return nil
}
