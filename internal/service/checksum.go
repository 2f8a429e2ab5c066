package service

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cloo-solutions/stockrag/internal/domain"
)

// volatileFields are excluded from the checksum so that a touched but
// otherwise identical record does not count as a change.
var volatileFields = []string{"updated_at"}

// Checksum hashes a record set independently of its order: records are
// sorted by type and id, serialized as canonical JSON and hashed with
// SHA-256.
func Checksum(records []domain.Record) (string, error) {
	sorted := make([]domain.Record, 0, len(records))
	for _, r := range records {
		if r != nil {
			sorted = append(sorted, r)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].RecordType() != sorted[j].RecordType() {
			return sorted[i].RecordType() < sorted[j].RecordType()
		}
		return sorted[i].RecordID() < sorted[j].RecordID()
	})

	h := sha256.New()
	for _, r := range sorted {
		canonical, err := canonicalRecord(r)
		if err != nil {
			return "", fmt.Errorf("checksum %s %s: %w", r.RecordType(), r.RecordID(), err)
		}
		h.Write([]byte(r.RecordType()))
		h.Write([]byte{0})
		h.Write(canonical)
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// canonicalRecord re-encodes the record through a map so keys come out
// sorted.
func canonicalRecord(r domain.Record) ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	for _, f := range volatileFields {
		delete(fields, f)
	}
	return json.Marshal(fields)
}
