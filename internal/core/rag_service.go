package core

import (
	"sort"
	"strings"

	"gwi.com/onboarding-backend/internal/platform/logger"
	"gwi.com/onboarding-backend/internal/store"
	"gwi.com/onboarding-backend/internal/utils"
)

const (
	NumRelevantChunks   = 3   // Number of chapters to retrieve for context
	SimilarityThreshold = 0.1 // Minimum similarity score to consider a chapter relevant
)

// Chunk is one retrievable piece of an onboarding guide.
type Chunk struct {
	Title   string
	Content string
	vector  utils.TermVector
}

type ScoredChunk struct {
	Chunk      Chunk
	Similarity float32
}

// ChapterRetriever ranks the chapters of a variant against a question.
type ChapterRetriever struct {
	chunks []Chunk
	log    *logger.Logger
}

func NewChapterRetriever(v store.CodebaseVariant, log *logger.Logger) *ChapterRetriever {
	chunks := make([]Chunk, 0, len(v.Chapters))
	for _, ch := range v.Chapters {
		var b strings.Builder
		b.WriteString(ch.Title)
		b.WriteString("\n")
		b.WriteString(ch.Content)
		for _, s := range ch.Sections {
			b.WriteString("\n")
			b.WriteString(s.Heading)
			b.WriteString("\n")
			b.WriteString(s.Content)
		}
		content := b.String()
		chunks = append(chunks, Chunk{Title: ch.Title, Content: content, vector: utils.NewTermVector(content)})
	}
	return &ChapterRetriever{chunks: chunks, log: log}
}

// Relevant returns up to NumRelevantChunks chunks at or above SimilarityThreshold, best first.
func (r *ChapterRetriever) Relevant(query string) []ScoredChunk {
	if len(r.chunks) == 0 {
		return nil
	}
	queryVec := utils.NewTermVector(query)

	scored := make([]ScoredChunk, 0, len(r.chunks))
	for _, c := range r.chunks {
		similarity, err := utils.CosineSimilarity(queryVec, c.vector)
		if err != nil {
			r.log.Debug("skipping chunk", "title", c.Title, "error", err)
			continue
		}
		if similarity >= SimilarityThreshold {
			scored = append(scored, ScoredChunk{Chunk: c, Similarity: similarity})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if len(scored) > NumRelevantChunks {
		scored = scored[:NumRelevantChunks]
	}
	return scored
}

// Context joins the relevant chunks into a prompt section and returns their titles.
func (r *ChapterRetriever) Context(query string) (string, []string) {
	scored := r.Relevant(query)
	if len(scored) == 0 {
		return "", nil
	}
	var b strings.Builder
	titles := make([]string, 0, len(scored))
	for _, s := range scored {
		b.WriteString(s.Chunk.Content)
		b.WriteString("\n\n")
		titles = append(titles, s.Chunk.Title)
	}
	return strings.TrimSpace(b.String()), titles
}
