package repository

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cloo-solutions/stockrag/internal/domain"
)

// metadataPath renders the JSONB text accessor for a validated field name.
func metadataPath(field string) string {
	if attr, ok := strings.CutPrefix(field, "attributes."); ok {
		return fmt.Sprintf("metadata->'attributes'->>'%s'", attr)
	}
	return fmt.Sprintf("metadata->>'%s'", field)
}

// buildChunkFilter translates a filter into a WHERE clause. Placeholders are
// numbered from next. Field names are validated by the caller.
func buildChunkFilter(f domain.ChunkFilter, next int) (string, []any) {
	var conds []string
	var args []any

	for _, field := range sortedKeys(f.Equals) {
		conds = append(conds, fmt.Sprintf("%s = $%d", metadataPath(field), next))
		args = append(args, f.Equals[field])
		next++
	}

	for _, field := range sortedKeys(f.OneOf) {
		conds = append(conds, fmt.Sprintf("%s = ANY($%d)", metadataPath(field), next))
		args = append(args, f.OneOf[field])
		next++
	}

	for _, field := range sortedKeys(f.ContainsAny) {
		conds = append(conds, fmt.Sprintf("metadata->'%s' ?| $%d", field, next))
		args = append(args, f.ContainsAny[field])
		next++
	}

	for _, r := range f.Ranges {
		if r.From != nil {
			conds = append(conds, fmt.Sprintf("(%s)::timestamptz >= $%d", metadataPath(r.Field), next))
			args = append(args, *r.From)
			next++
		}
		if r.To != nil {
			conds = append(conds, fmt.Sprintf("(%s)::timestamptz <= $%d", metadataPath(r.Field), next))
			args = append(args, *r.To)
			next++
		}
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
