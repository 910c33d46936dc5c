// Package bm25 implements the lexical half of search: an Okapi BM25
// index over stemmed symbol-name and insertion tokens, k1=1.2,
// b=0.75.
package bm25

import (
	"encoding/json"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/surgebase/porter2"

	"github.com/standardbeagle/semidx/internal/types"
)

const (
	k1 = 1.2
	b  = 0.75

	minStemLength = 3
)

// stemExclusions holds short/acronym-like tokens kept unstemmed
// (api, http, ...); Porter2 over-stems these.
var stemExclusions = map[string]bool{
	"api": true, "http": true, "sql": true, "id": true, "url": true, "uri": true,
}

// Doc is one document in the index: a symbol, keyed by its SymbolID.
type Doc struct {
	ID     types.SymbolID
	Tokens []string
}

// posting is one entry of a stemmed term's posting list: the index of a
// doc (into Index.docs) containing the term, plus that doc's term
// frequency.
type posting struct {
	docIdx int
	freq   int
}

// Index is an in-memory BM25 index, serialized whole by the shard
// writer rather than incrementally
// persisted term-by-term.
type Index struct {
	docs      []Doc
	postings  map[string][]posting
	docLen    []int
	avgDocLen float64
}

// New builds an empty index.
func New() *Index {
	return &Index{postings: make(map[string][]posting)}
}

// Stem normalizes one token: lowercase, Porter2, skipping
// short/exempted tokens.
func Stem(tok string) string {
	tok = strings.ToLower(tok)
	if stemExclusions[tok] || len([]rune(tok)) < minStemLength {
		return tok
	}
	return porter2.Stem(tok)
}

// Tokenize splits an identifier into its constituent words: camelCase
// and snake_case boundaries both count as breaks.
func Tokenize(name string) []string {
	var words []string
	var cur strings.Builder
	runes := []rune(name)
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, strings.ToLower(cur.String()))
			cur.Reset()
		}
	}
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == '.':
			flush()
		case unicode.IsUpper(r) && i > 0 && !unicode.IsUpper(runes[i-1]):
			flush()
			cur.WriteRune(r)
		case unicode.IsUpper(r) && i > 0 && unicode.IsUpper(runes[i-1]) && i+1 < len(runes) && unicode.IsLower(runes[i+1]):
			// End of an acronym run: "HTTPServer" breaks before "Server".
			flush()
			cur.WriteRune(r)
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return words
}

// Add inserts or replaces a document's token set.
func (idx *Index) Add(id types.SymbolID, rawTokens []string) {
	stemmed := make([]string, 0, len(rawTokens))
	for _, raw := range rawTokens {
		for _, w := range Tokenize(raw) {
			stemmed = append(stemmed, Stem(w))
		}
	}
	idx.Remove(id)

	docIdx := len(idx.docs)
	idx.docs = append(idx.docs, Doc{ID: id, Tokens: stemmed})
	idx.docLen = append(idx.docLen, len(stemmed))

	counts := make(map[string]int, len(stemmed))
	for _, t := range stemmed {
		counts[t]++
	}
	for term, freq := range counts {
		idx.postings[term] = append(idx.postings[term], posting{docIdx: docIdx, freq: freq})
	}
	idx.recomputeAvgLen()
}

// Remove deletes a document from the index, dropping its postings so
// an incremental reindex can replace it.
func (idx *Index) Remove(id types.SymbolID) {
	target := -1
	for i, d := range idx.docs {
		if d.ID == id {
			target = i
			break
		}
	}
	if target < 0 {
		return
	}
	idx.docs = append(idx.docs[:target], idx.docs[target+1:]...)
	idx.docLen = append(idx.docLen[:target], idx.docLen[target+1:]...)

	for term, plist := range idx.postings {
		out := plist[:0]
		for _, p := range plist {
			switch {
			case p.docIdx == target:
				continue
			case p.docIdx > target:
				p.docIdx--
			}
			out = append(out, p)
		}
		if len(out) == 0 {
			delete(idx.postings, term)
		} else {
			idx.postings[term] = out
		}
	}
	idx.recomputeAvgLen()
}

func (idx *Index) recomputeAvgLen() {
	if len(idx.docLen) == 0 {
		idx.avgDocLen = 0
		return
	}
	total := 0
	for _, l := range idx.docLen {
		total += l
	}
	idx.avgDocLen = float64(total) / float64(len(idx.docLen))
}

// Result is one scored search hit.
type Result struct {
	ID    types.SymbolID
	Score float64
}

// Search scores every document containing at least one query term and
// returns the top limit results, highest score first.
func (idx *Index) Search(query string, limit int) []Result {
	terms := make([]string, 0, 4)
	for _, raw := range Tokenize(query) {
		terms = append(terms, Stem(raw))
	}
	if len(terms) == 0 || len(idx.docs) == 0 {
		return nil
	}

	scores := make(map[int]float64)
	n := float64(len(idx.docs))
	for _, term := range terms {
		plist := idx.postings[term]
		if len(plist) == 0 {
			continue
		}
		idf := math.Log(1 + (n-float64(len(plist))+0.5)/(float64(len(plist))+0.5))
		for _, p := range plist {
			dl := float64(idx.docLen[p.docIdx])
			tf := float64(p.freq)
			denom := tf + k1*(1-b+b*dl/idx.avgDocLen)
			scores[p.docIdx] += idf * (tf * (k1 + 1) / denom)
		}
	}

	results := make([]Result, 0, len(scores))
	for docIdx, score := range scores {
		results = append(results, Result{ID: idx.docs[docIdx].ID, Score: score})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID.String() < results[j].ID.String()
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Len reports the number of documents currently indexed.
func (idx *Index) Len() int { return len(idx.docs) }

// persistedIndex is the on-disk shape of an Index: just the documents.
// Postings, doc lengths and the average length are derived state
// rebuilt from the document list on load rather than serialized
// themselves, so the index file can't drift from its own postings.
type persistedIndex struct {
	Docs []Doc `json:"docs"`
}

// MarshalJSON persists the document set only; MarshalJSON/UnmarshalJSON
// round-trip is what the shard writer uses for bm25_index.json.
func (idx *Index) MarshalJSON() ([]byte, error) {
	return json.Marshal(persistedIndex{Docs: idx.docs})
}

// UnmarshalJSON rebuilds the postings directly from the persisted
// document set, whose tokens are already stemmed; it does not go
// through Add.
func (idx *Index) UnmarshalJSON(data []byte) error {
	var p persistedIndex
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	idx.docs = nil
	idx.postings = make(map[string][]posting)
	idx.docLen = nil
	idx.avgDocLen = 0
	for _, d := range p.Docs {
		docIdx := len(idx.docs)
		idx.docs = append(idx.docs, d)
		idx.docLen = append(idx.docLen, len(d.Tokens))
		counts := make(map[string]int, len(d.Tokens))
		for _, t := range d.Tokens {
			counts[t]++
		}
		for term, freq := range counts {
			idx.postings[term] = append(idx.postings[term], posting{docIdx: docIdx, freq: freq})
		}
	}
	idx.recomputeAvgLen()
	return nil
}
