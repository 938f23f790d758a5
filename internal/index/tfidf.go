// Package index builds a sparse TF-IDF vector space over a document collection.
package index

import (
	"math"
	"sort"

	"autoqa/internal/domain"
	"autoqa/internal/tokenizer"
)

// TermVector maps a term to its TF-IDF weight for one document.
// Terms absent from the document are absent from the map.
type TermVector map[string]float64

// Index holds one TermVector per document, in document order, and the shared IDF table.
type Index struct {
	Vectors []TermVector
	IDF     map[string]float64
	norms   []float64
}

// Stats summarises an index.
type Stats struct {
	Documents  int `json:"documents"`
	Vocabulary int `json:"vocabulary"`
}

// Build computes the index for docs. It never fails; an empty collection
// yields an empty but valid index.
func Build(docs []domain.Document) *Index {
	// Document frequencies over token sets
	tokenized := make([][]string, len(docs))
	df := make(map[string]int)
	for i, d := range docs {
		tokens := tokenizer.Tokenize(d.Title + " " + d.Content)
		tokenized[i] = tokens
		seen := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	n := float64(max(1, len(docs)))
	idf := make(map[string]float64, len(df))
	for term, count := range df {
		// Smoothed IDF, strictly positive
		idf[term] = math.Log((n+1)/(float64(count)+1)) + 1.0
	}
	idx := &Index{
		Vectors: make([]TermVector, len(docs)),
		IDF:     idf,
		norms:   make([]float64, len(docs)),
	}
	for i, tokens := range tokenized {
		idx.Vectors[i] = weigh(tokens, idf)
		idx.norms[i] = norm(idx.Vectors[i])
	}
	return idx
}

// Vectorize weighs query terms with the existing IDF table. Unknown terms are dropped.
func (x *Index) Vectorize(query string) TermVector {
	return weigh(tokenizer.Tokenize(query), x.IDF)
}

// Scores returns the cosine similarity of q against every document, in document order.
func (x *Index) Scores(q TermVector) []float64 {
	terms := sortedTerms(q)
	qn := normOf(q, terms)
	scores := make([]float64, len(x.Vectors))
	if qn == 0 {
		return scores
	}
	for i, d := range x.Vectors {
		if x.norms[i] == 0 {
			continue
		}
		scores[i] = dot(q, terms, d) / (qn * x.norms[i])
	}
	return scores
}

// Len returns the number of indexed documents.
func (x *Index) Len() int { return len(x.Vectors) }

// Stats returns the document count and vocabulary size.
func (x *Index) Stats() Stats {
	return Stats{Documents: len(x.Vectors), Vocabulary: len(x.IDF)}
}

// Cosine returns dot(a,b)/(|a||b|), or 0 when either vector is empty.
func Cosine(a, b TermVector) float64 {
	na, nb := norm(a), norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot(a, sortedTerms(a), b) / (na * nb)
}

// dot sums in sorted term order so that equal inputs give bit-identical results.
func dot(a TermVector, terms []string, b TermVector) float64 {
	sum := 0.0
	for _, term := range terms {
		if w, ok := b[term]; ok {
			sum += a[term] * w
		}
	}
	return sum
}

func weigh(tokens []string, idf map[string]float64) TermVector {
	tf := make(map[string]int)
	for _, tok := range tokens {
		tf[tok]++
	}
	total := float64(max(1, len(tokens)))
	vec := make(TermVector, len(tf))
	for term, count := range tf {
		w, ok := idf[term]
		if !ok {
			continue
		}
		vec[term] = float64(count) / total * w
	}
	return vec
}

func norm(v TermVector) float64 {
	return normOf(v, sortedTerms(v))
}

func normOf(v TermVector, terms []string) float64 {
	sum := 0.0
	for _, term := range terms {
		sum += v[term] * v[term]
	}
	return math.Sqrt(sum)
}

func sortedTerms(v TermVector) []string {
	terms := make([]string, 0, len(v))
	for term := range v {
		terms = append(terms, term)
	}
	sort.Strings(terms)
	return terms
}
