package search

import "strings"

// Common English words that carry no signal for verbatim matching.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "be": {}, "is": {}, "are": {},
	"was": {}, "to": {}, "of": {}, "and": {}, "in": {}, "that": {},
	"have": {}, "it": {}, "for": {}, "not": {}, "on": {}, "with": {},
	"as": {}, "you": {}, "do": {}, "at": {}, "this": {}, "but": {},
	"by": {}, "from": {},
}

const wordCutset = ".,!?;:'\"-()[]{}"

// significantWords lowercases text, trims surrounding punctuation and drops
// stop words.
func significantWords(text string) []string {
	var words []string
	for _, field := range strings.Fields(text) {
		word := strings.ToLower(strings.Trim(field, wordCutset))
		if word == "" {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		words = append(words, word)
	}
	return words
}

// containsAllQueryWords reports whether every significant query word appears
// in the document. A query of nothing but stop words matches no document.
func containsAllQueryWords(document, query string) bool {
	queryWords := significantWords(query)
	if len(queryWords) == 0 {
		return false
	}

	present := make(map[string]struct{})
	for _, word := range significantWords(document) {
		present[word] = struct{}{}
	}
	for _, word := range queryWords {
		if _, ok := present[word]; !ok {
			return false
		}
	}
	return true
}
