package retrieve

import (
	"regexp"
	"sort"
	"strings"
)

// Stopwords dropped when reducing a query to its keywords. Covers the
// interrogative and filler vocabulary typical of learner queries.
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true, "is": true, "are": true, "was": true,
	"be": true, "of": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "from": true, "with": true, "and": true, "or": true,
	"not": true, "by": true, "as": true, "it": true, "its": true,
	"what": true, "which": true, "who": true, "whom": true, "whose": true,
	"when": true, "where": true, "why": true, "how": true, "does": true,
	"do": true, "did": true, "can": true, "could": true, "should": true,
	"would": true, "about": true, "following": true, "most": true,
	"correct": true, "appropriate": true, "best": true, "among": true,
	"these": true, "this": true, "that": true, "explain": true,
	"describe": true, "question": true, "answer": true, "please": true,
	"tell": true, "me": true,
}

var nonWordRe = regexp.MustCompile(`[^\p{L}\p{N}]+`)

const maxKeywords = 5

// KeywordQuery reduces a query to its top keywords by frequency, dropping
// stopwords and single-character tokens. Returns "" when nothing useful
// remains; callers then skip the lexical variant.
func KeywordQuery(query string) string {
	words := nonWordRe.Split(strings.ToLower(query), -1)

	counts := make(map[string]int)
	var order []string
	for _, w := range words {
		if len([]rune(w)) < 2 || stopwords[w] {
			continue
		}
		if counts[w] == 0 {
			order = append(order, w)
		}
		counts[w]++
	}
	if len(order) == 0 {
		return ""
	}

	// Frequency descending, first appearance breaking ties.
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > maxKeywords {
		order = order[:maxKeywords]
	}
	return strings.Join(order, " ")
}
