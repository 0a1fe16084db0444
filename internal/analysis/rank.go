package analysis

import (
	"cmp"
	"slices"
)

// Rank orders a table snapshot by descending count. Equal counts are ordered
// by ascending signal text so repeated calls always agree.
func Rank(snapshot map[string]int) []RankedEntry {
	entries := make([]RankedEntry, 0, len(snapshot))
	for signal, count := range snapshot {
		entries = append(entries, RankedEntry{Signal: signal, Count: count})
	}
	slices.SortFunc(entries, func(a, b RankedEntry) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return cmp.Compare(a.Signal, b.Signal)
	})
	return entries
}

// Top truncates entries to at most limit rows. A limit <= 0 keeps everything.
func Top(entries []RankedEntry, limit int) []RankedEntry {
	if limit <= 0 || len(entries) <= limit {
		return entries
	}
	return entries[:limit]
}
