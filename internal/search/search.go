package search

import (
	"sort"
	"strings"

	lfuzzy "github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/mmcdole/tonearm/internal/domain"
	"github.com/sahilm/fuzzy"
)

// Match is a filtered song with the matched character positions of its label.
type Match struct {
	Index          int   // position in the searched slice
	MatchedIndexes []int // byte offsets into Label for highlighting
	Score          int   // higher is better
}

// Label is the searchable text for a song: "title - artist".
func Label(s domain.Song) string {
	return s.DisplayTitle()
}

// songIndex implements fuzzy.Source over lowercase labels
type songIndex struct {
	labels []string
}

func (idx songIndex) String(i int) string { return idx.labels[i] }
func (idx songIndex) Len() int            { return len(idx.labels) }

func newIndex(songs []domain.Song) songIndex {
	labels := make([]string, len(songs))
	for i, s := range songs {
		labels[i] = strings.ToLower(Label(s))
	}
	return songIndex{labels: labels}
}

// Filter returns the songs matching query, best first. An empty query
// matches everything in order.
func Filter(songs []domain.Song, query string) []Match {
	query = strings.TrimSpace(query)
	if query == "" {
		all := make([]Match, len(songs))
		for i := range songs {
			all[i] = Match{Index: i}
		}
		return all
	}

	matches := fuzzy.FindFrom(strings.ToLower(query), newIndex(songs))
	results := make([]Match, len(matches))
	for i, m := range matches {
		results[i] = Match{
			Index:          m.Index,
			MatchedIndexes: m.MatchedIndexes,
			Score:          m.Score,
		}
	}
	return results
}

// Best picks the single song a query most plausibly names, for commands
// that take a song by name. Exact id matches win outright.
func Best(songs []domain.Song, query string) (int, bool) {
	query = strings.TrimSpace(query)
	if query == "" || len(songs) == 0 {
		return 0, false
	}
	for i, s := range songs {
		if s.ID == query {
			return i, true
		}
	}

	idx := newIndex(songs)
	ranks := lfuzzy.RankFindFold(query, idx.labels)
	if len(ranks) == 0 {
		return 0, false
	}
	sort.Stable(ranks)
	return ranks[0].OriginalIndex, true
}
