package pipeline

import (
	"context"
	"log"
	"math"
	"sort"

	"github.com/mohammad-safakhou/vidqa/internal/store"
)

// ThresholdPolicy names the two similarity thresholds the pipeline
// uses: Keep admits chunks into results, Sufficiency decides whether
// transcript coverage is good enough to skip the external fallback.
type ThresholdPolicy struct {
	Keep        float64
	Sufficiency float64
}

// DefaultThresholds is the documented threshold scheme.
var DefaultThresholds = ThresholdPolicy{Keep: 0.75, Sufficiency: 0.5}

// LexicalSearcher ranks full transcripts against a query.
type LexicalSearcher interface {
	LexicalSearch(ctx context.Context, query, videoID string, limit int) ([]store.LexicalHit, error)
}

// ChunkSource supplies chunk candidates with normalised embeddings.
type ChunkSource interface {
	SemanticCandidates(ctx context.Context, videoID string, limit int) ([]store.ChunkCandidate, error)
}

// Embedder is the one provider method the retriever needs.
type Embedder interface {
	Embed(ctx context.Context, model string, input []string) ([][]float32, error)
}

// HybridRetriever combines full-document lexical search with
// chunk-level semantic similarity search. Lexical matches come first
// (broad context), ranked semantic chunks after (specific detail).
type HybridRetriever struct {
	lexical    LexicalSearcher
	chunks     ChunkSource
	embedder   Embedder
	embedModel string
	policy     ThresholdPolicy
	fetchK     int
	candidates int
	logger     *log.Logger
}

// NewHybridRetriever builds the retriever. fetchK caps how many ranked
// chunks are fetched before the per-query top-k cap is applied.
func NewHybridRetriever(lexical LexicalSearcher, chunks ChunkSource, embedder Embedder, embedModel string, policy ThresholdPolicy, fetchK int, logger *log.Logger) *HybridRetriever {
	if policy.Keep <= 0 {
		policy.Keep = DefaultThresholds.Keep
	}
	if policy.Sufficiency <= 0 {
		policy.Sufficiency = DefaultThresholds.Sufficiency
	}
	if fetchK <= 0 {
		fetchK = 10
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[RETRIEVER] ", log.LstdFlags)
	}
	return &HybridRetriever{
		lexical:    lexical,
		chunks:     chunks,
		embedder:   embedder,
		embedModel: embedModel,
		policy:     policy,
		fetchK:     fetchK,
		candidates: 200,
		logger:     logger,
	}
}

// Search runs both legs and combines them. It never returns an error:
// each leg degrades independently, worst case to an empty result.
func (r *HybridRetriever) Search(ctx context.Context, query, videoID string, topK int) []RetrievedDocument {
	if topK <= 0 {
		topK = 5
	}

	var docs []RetrievedDocument

	hits, err := r.lexical.LexicalSearch(ctx, query, videoID, 1)
	if err != nil {
		r.logger.Printf("warn: lexical search failed: %v", err)
	}
	for _, h := range hits {
		docs = append(docs, RetrievedDocument{
			Text:       h.Content,
			SourceType: SourceFullTranscript,
			VideoID:    h.VideoID,
		})
	}

	sem, err := r.semantic(ctx, query, videoID, topK, r.candidates)
	if err != nil {
		// One retry with a smaller fetch window before settling for
		// lexical-only results.
		r.logger.Printf("warn: semantic search failed, retrying: %v", err)
		sem, err = r.semantic(ctx, query, videoID, topK, r.candidates/4)
		if err != nil {
			r.logger.Printf("warn: semantic retry failed, returning lexical results only: %v", err)
			return docs
		}
	}
	return append(docs, sem...)
}

func (r *HybridRetriever) semantic(ctx context.Context, query, videoID string, topK, candidateLimit int) ([]RetrievedDocument, error) {
	vecs, err := r.embedder.Embed(ctx, r.embedModel, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, nil
	}
	qvec := vecs[0]

	cands, err := r.chunks.SemanticCandidates(ctx, videoID, candidateLimit)
	if err != nil {
		return nil, err
	}

	var scored []RetrievedDocument
	for _, c := range cands {
		sim := CosineSimilarity(qvec, c.Embedding)
		if sim <= r.policy.Keep {
			continue
		}
		scored = append(scored, RetrievedDocument{
			Text:       c.Text,
			SourceType: SourceChunk,
			Similarity: sim,
			StartTime:  c.StartTime,
			EndTime:    c.EndTime,
			VideoID:    c.VideoID,
		})
	}
	sort.Slice(scored, func(i, j int) bool { return scored[i].Similarity > scored[j].Similarity })
	if len(scored) > r.fetchK {
		scored = scored[:r.fetchK]
	}
	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// CosineSimilarity computes dot(a,b)/(|a||b|) clamped to [0,1]. It
// returns 0 when either magnitude is zero or the lengths mismatch.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	sim := dot / (math.Sqrt(na) * math.Sqrt(nb))
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}
