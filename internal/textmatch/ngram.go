package textmatch

import "sort"

// Match is one index hit with its trigram similarity.
type Match struct {
	Key        string
	Similarity float64
}

// NGramIndex matches strings by padded trigram overlap. Lookups return
// Jaccard similarity over trigram sets, which tolerates spelling variants
// that exact lookup would miss.
type NGramIndex struct {
	n       int
	entries map[string]map[string]bool
}

// NewNGramIndex returns an empty trigram index.
func NewNGramIndex() *NGramIndex {
	return &NGramIndex{n: 3, entries: make(map[string]map[string]bool)}
}

// Add indexes text under key. Re-adding a key replaces its text.
func (ix *NGramIndex) Add(key, text string) {
	ix.entries[key] = ngrams(text, ix.n)
}

// Len returns the number of indexed keys.
func (ix *NGramIndex) Len() int { return len(ix.entries) }

// Search returns all keys whose similarity to text is at least threshold,
// best first. Ties break on key for determinism.
func (ix *NGramIndex) Search(text string, threshold float64) []Match {
	probe := ngrams(text, ix.n)
	var out []Match
	for key, grams := range ix.entries {
		sim := jaccard(probe, grams)
		if sim >= threshold {
			out = append(out, Match{Key: key, Similarity: sim})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Best returns the single best match at or above threshold.
func (ix *NGramIndex) Best(text string, threshold float64) (Match, bool) {
	matches := ix.Search(text, threshold)
	if len(matches) == 0 {
		return Match{}, false
	}
	return matches[0], true
}

func ngrams(s string, n int) map[string]bool {
	folded := Fold(s)
	if folded == "" {
		return nil
	}
	padded := make([]rune, 0, len(folded)+2*(n-1))
	for i := 0; i < n-1; i++ {
		padded = append(padded, ' ')
	}
	padded = append(padded, []rune(folded)...)
	for i := 0; i < n-1; i++ {
		padded = append(padded, ' ')
	}

	set := make(map[string]bool)
	for i := 0; i+n <= len(padded); i++ {
		set[string(padded[i:i+n])] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for g := range a {
		if b[g] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
