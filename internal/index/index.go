package index

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/blevesearch/bleve"
	"github.com/mohammad-safakhou/vidqa/internal/store"
)

// TranscriptIndex is an in-memory BM25 index over full transcripts. It
// serves the lexical leg of hybrid retrieval and is rebuilt from the
// relational store on startup or on demand.
type TranscriptIndex struct {
	mu     sync.RWMutex
	idx    bleve.Index
	meta   map[string]store.Transcript
	logger *log.Logger
}

// transcriptDoc is the shape indexed per video.
type transcriptDoc struct {
	Title      string `json:"title"`
	Transcript string `json:"transcript"`
}

// transcriptLister is the slice of the store the index needs.
type transcriptLister interface {
	ListTranscripts(ctx context.Context) ([]store.Transcript, error)
}

// New creates an empty in-memory transcript index.
func New(logger *log.Logger) (*TranscriptIndex, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[INDEX] ", log.LstdFlags)
	}
	idx, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create bleve index: %w", err)
	}
	return &TranscriptIndex{idx: idx, meta: make(map[string]store.Transcript), logger: logger}, nil
}

// Add indexes one transcript, replacing any prior entry for the video.
func (t *TranscriptIndex) Add(tr store.Transcript) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.meta[tr.VideoID] = tr
	return t.idx.Index(tr.VideoID, transcriptDoc{Title: tr.Title, Transcript: tr.Content})
}

// Len reports how many transcripts are indexed.
func (t *TranscriptIndex) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.meta)
}

// Refresh rebuilds the index from the store.
func (t *TranscriptIndex) Refresh(ctx context.Context, lister transcriptLister) error {
	transcripts, err := lister.ListTranscripts(ctx)
	if err != nil {
		return fmt.Errorf("refresh transcript index: %w", err)
	}
	fresh, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return fmt.Errorf("refresh transcript index: %w", err)
	}
	meta := make(map[string]store.Transcript, len(transcripts))
	for _, tr := range transcripts {
		meta[tr.VideoID] = tr
		if err := fresh.Index(tr.VideoID, transcriptDoc{Title: tr.Title, Transcript: tr.Content}); err != nil {
			return fmt.Errorf("index transcript %s: %w", tr.VideoID, err)
		}
	}
	t.mu.Lock()
	old := t.idx
	t.idx = fresh
	t.meta = meta
	t.mu.Unlock()
	_ = old.Close()
	t.logger.Printf("transcript index refreshed (%d videos)", len(meta))
	return nil
}

// LexicalSearch ranks indexed transcripts against the query, best first. A
// non-empty videoID restricts results to that video.
func (t *TranscriptIndex) LexicalSearch(_ context.Context, query, videoID string, limit int) ([]store.LexicalHit, error) {
	if limit <= 0 {
		limit = 1
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit*3, 0, false)
	res, err := t.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	var out []store.LexicalHit
	for _, hit := range res.Hits {
		if videoID != "" && hit.ID != videoID {
			continue
		}
		doc, ok := t.meta[hit.ID]
		if !ok {
			continue
		}
		out = append(out, store.LexicalHit{VideoID: hit.ID, Content: doc.Content, Rank: hit.Score})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}
