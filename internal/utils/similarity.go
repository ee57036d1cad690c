package utils

import (
	"fmt"
	"math"
	"strings"
	"unicode"
)

// TermVector is a sparse bag-of-words vector keyed by lowercased term.
type TermVector map[string]float32

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true, "by": true,
	"do": true, "does": true, "for": true, "from": true, "how": true, "i": true, "in": true, "is": true,
	"it": true, "of": true, "on": true, "or": true, "the": true, "this": true, "to": true, "what": true,
	"when": true, "where": true, "which": true, "who": true, "why": true, "with": true, "you": true,
}

// NewTermVector counts the terms of text, ignoring stop words and single characters.
func NewTermVector(text string) TermVector {
	vec := TermVector{}
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	for _, w := range words {
		if len(w) < 2 || stopWords[w] {
			continue
		}
		vec[w]++
	}
	return vec
}

// dotProduct calculates the dot product of two sparse vectors.
func dotProduct(vec1, vec2 TermVector) float32 {
	if len(vec2) < len(vec1) {
		vec1, vec2 = vec2, vec1
	}
	var product float32
	for term, w := range vec1 {
		product += w * vec2[term]
	}
	return product
}

// magnitude calculates the L2 norm (magnitude) of a vector.
func magnitude(vec TermVector) float32 {
	var sumOfSquares float32
	for _, val := range vec {
		sumOfSquares += val * val
	}
	return float32(math.Sqrt(float64(sumOfSquares)))
}

// CosineSimilarity calculates the cosine similarity between two term vectors.
func CosineSimilarity(vec1, vec2 TermVector) (float32, error) {
	if len(vec1) == 0 || len(vec2) == 0 {
		return 0, fmt.Errorf("vectors cannot be empty")
	}
	mag1 := magnitude(vec1)
	mag2 := magnitude(vec2)
	if mag1 == 0 || mag2 == 0 {
		return 0, nil
	}
	return dotProduct(vec1, vec2) / (mag1 * mag2), nil
}
