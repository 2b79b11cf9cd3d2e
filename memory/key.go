package memory

import (
	"strconv"
	"strings"
)

// NormalizeQuery lowercases q, trims it and collapses inner whitespace runs
// to a single space.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// CacheKey derives the QueryCache key for a search. Queries that differ only
// in case or whitespace share a key; different limits never do.
func CacheKey(query string, limit int) string {
	return NormalizeQuery(query) + ":" + strconv.Itoa(limit)
}
