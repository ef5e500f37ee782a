package pipeline

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/mohammad-safakhou/vidqa/internal/store"
)

type fakeLexical struct {
	hits  []store.LexicalHit
	err   error
	calls int
}

func (f *fakeLexical) LexicalSearch(_ context.Context, _, _ string, _ int) ([]store.LexicalHit, error) {
	f.calls++
	return f.hits, f.err
}

type fakeChunks struct {
	candidates []store.ChunkCandidate
	errs       []error
	calls      int
}

func (f *fakeChunks) SemanticCandidates(_ context.Context, _ string, _ int) ([]store.ChunkCandidate, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.candidates, nil
}

type fakeEmbedder struct {
	vec   []float32
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string, input []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(input))
	for i := range input {
		out[i] = f.vec
	}
	return out, nil
}

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("self-similarity = %f, want 1", got)
	}
	if got := CosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3}); got != 0 {
		t.Fatalf("zero vector similarity = %f, want 0", got)
	}
	if got := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3}); got != 0 {
		t.Fatalf("length mismatch similarity = %f, want 0", got)
	}
	// Opposite vectors clamp to zero rather than going negative.
	if got := CosineSimilarity([]float32{1, 0}, []float32{-1, 0}); got != 0 {
		t.Fatalf("opposite vector similarity = %f, want 0", got)
	}
}

func TestSearchCombinesLegsLexicalFirst(t *testing.T) {
	lex := &fakeLexical{hits: []store.LexicalHit{{VideoID: "vid-1", Content: "full transcript text", Rank: 0.4}}}
	chunks := &fakeChunks{candidates: []store.ChunkCandidate{
		{VideoID: "vid-1", ChunkIndex: 0, Text: "exact match", Embedding: []float32{1, 0, 0}},
		{VideoID: "vid-1", ChunkIndex: 1, Text: "close match", Embedding: []float32{0.8, 0.6, 0}},
		{VideoID: "vid-1", ChunkIndex: 2, Text: "weak match", Embedding: []float32{0.6, 0.8, 0}},
	}}
	emb := &fakeEmbedder{vec: []float32{1, 0, 0}}
	r := NewHybridRetriever(lex, chunks, emb, "embed-model", DefaultThresholds, 10, nil)

	docs := r.Search(context.Background(), "query", "vid-1", 5)
	if len(docs) != 3 {
		t.Fatalf("got %d docs, want 3 (weak match below keep threshold)", len(docs))
	}
	if docs[0].SourceType != SourceFullTranscript {
		t.Fatalf("first doc is %s, want %s", docs[0].SourceType, SourceFullTranscript)
	}
	if docs[1].Text != "exact match" || docs[2].Text != "close match" {
		t.Fatalf("chunks not ranked by similarity: %q then %q", docs[1].Text, docs[2].Text)
	}
	if docs[1].Similarity <= docs[2].Similarity {
		t.Fatalf("similarity ordering broken: %f then %f", docs[1].Similarity, docs[2].Similarity)
	}
}

func TestSearchTopKCapsChunks(t *testing.T) {
	var cands []store.ChunkCandidate
	for i := 0; i < 8; i++ {
		cands = append(cands, store.ChunkCandidate{VideoID: "vid-1", ChunkIndex: i, Text: "chunk", Embedding: []float32{1, 0, 0}})
	}
	r := NewHybridRetriever(&fakeLexical{}, &fakeChunks{candidates: cands}, &fakeEmbedder{vec: []float32{1, 0, 0}}, "embed-model", DefaultThresholds, 10, nil)

	docs := r.Search(context.Background(), "query", "vid-1", 3)
	if len(docs) != 3 {
		t.Fatalf("got %d docs, want top-k cap of 3", len(docs))
	}
}

func TestSearchSemanticRetriesThenDegrades(t *testing.T) {
	lex := &fakeLexical{hits: []store.LexicalHit{{VideoID: "vid-1", Content: "full transcript"}}}

	// Candidate fetch fails once, succeeds on the retry.
	chunks := &fakeChunks{
		candidates: []store.ChunkCandidate{{VideoID: "vid-1", Text: "chunk", Embedding: []float32{1, 0, 0}}},
		errs:       []error{errors.New("db blip")},
	}
	r := NewHybridRetriever(lex, chunks, &fakeEmbedder{vec: []float32{1, 0, 0}}, "embed-model", DefaultThresholds, 10, nil)
	docs := r.Search(context.Background(), "query", "vid-1", 5)
	if chunks.calls != 2 {
		t.Fatalf("expected one retry, got %d calls", chunks.calls)
	}
	if len(docs) != 2 {
		t.Fatalf("got %d docs after retry, want 2", len(docs))
	}

	// Persistent embedding failure: lexical results only, no error.
	emb := &fakeEmbedder{err: errors.New("provider down")}
	r = NewHybridRetriever(lex, &fakeChunks{}, emb, "embed-model", DefaultThresholds, 10, nil)
	docs = r.Search(context.Background(), "query", "vid-1", 5)
	if emb.calls != 2 {
		t.Fatalf("expected embed retry, got %d calls", emb.calls)
	}
	if len(docs) != 1 || docs[0].SourceType != SourceFullTranscript {
		t.Fatalf("expected lexical-only degradation, got %+v", docs)
	}
}

func TestSearchBothLegsFailingYieldsEmpty(t *testing.T) {
	lex := &fakeLexical{err: errors.New("index closed")}
	emb := &fakeEmbedder{err: errors.New("provider down")}
	r := NewHybridRetriever(lex, &fakeChunks{}, emb, "embed-model", DefaultThresholds, 10, nil)

	docs := r.Search(context.Background(), "query", "", 5)
	if len(docs) != 0 {
		t.Fatalf("expected empty result, got %d docs", len(docs))
	}
}
