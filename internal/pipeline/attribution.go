package pipeline

import (
	"fmt"
	"strings"
)

// Primary source labels.
const (
	PrimaryTranscript      = "transcript"
	PrimaryTranscriptHeavy = "hybrid_transcript_heavy"
	PrimaryExternalHeavy   = "hybrid_external_heavy"
	PrimaryExternal        = "external"
)

// QualityMetrics aggregates similarity statistics over chunk documents.
type QualityMetrics struct {
	AvgSimilarity float64 `json:"avg_similarity"`
	MaxSimilarity float64 `json:"max_similarity"`
}

// AttributionRecord accounts for which sources contributed to one
// answer. Composition percentages sum to 100 whenever any content was
// assembled.
type AttributionRecord struct {
	PrimarySource    string             `json:"primary_source"`
	Composition      map[string]float64 `json:"composition"`
	ContentBreakdown map[string]int     `json:"content_breakdown"`
	SourceCounts     map[string]int     `json:"source_counts"`
	QualityMetrics   QualityMetrics     `json:"quality_metrics"`
	Explanation      string             `json:"explanation"`
}

// BuildAttribution computes provenance metrics over one query's
// documents. triggerReason is the reason string captured from the
// external gateway decision.
func BuildAttribution(docs []RetrievedDocument, externalUsed bool, externalText, triggerReason string) AttributionRecord {
	rec := AttributionRecord{
		Composition:      map[string]float64{},
		ContentBreakdown: map[string]int{},
		SourceCounts:     map[string]int{},
	}

	var (
		transcriptLen int
		chunkSum      float64
		chunkN        int
	)
	for _, d := range docs {
		rec.SourceCounts[d.SourceType]++
		if d.SourceType == SourceExternal {
			continue
		}
		transcriptLen += len(d.Text)
		if d.SourceType == SourceChunk {
			chunkSum += d.Similarity
			chunkN++
			if d.Similarity > rec.QualityMetrics.MaxSimilarity {
				rec.QualityMetrics.MaxSimilarity = d.Similarity
			}
		}
	}
	if chunkN > 0 {
		rec.QualityMetrics.AvgSimilarity = chunkSum / float64(chunkN)
	}

	externalLen := 0
	if externalUsed {
		externalLen = len(externalText)
	}
	rec.ContentBreakdown["transcript"] = transcriptLen
	rec.ContentBreakdown["external"] = externalLen

	total := transcriptLen + externalLen
	if total > 0 {
		rec.Composition["transcript"] = 100 * float64(transcriptLen) / float64(total)
		rec.Composition["external"] = 100 * float64(externalLen) / float64(total)
	}

	externalShare := 0.0
	if total > 0 {
		externalShare = rec.Composition["external"]
	}
	switch {
	case externalUsed && transcriptLen == 0:
		rec.PrimarySource = PrimaryExternal
	case externalUsed && externalShare > 50:
		rec.PrimarySource = PrimaryExternalHeavy
	case externalUsed && externalLen > 0:
		rec.PrimarySource = PrimaryTranscriptHeavy
	default:
		rec.PrimarySource = PrimaryTranscript
	}

	rec.Explanation = buildExplanation(rec, externalUsed, triggerReason)
	return rec
}

func buildExplanation(rec AttributionRecord, externalUsed bool, triggerReason string) string {
	var b strings.Builder
	switch rec.PrimarySource {
	case PrimaryExternal:
		b.WriteString("Answer is based entirely on external knowledge")
	case PrimaryExternalHeavy:
		fmt.Fprintf(&b, "Answer leans on external knowledge (%.0f%% of context) over transcript content", rec.Composition["external"])
	case PrimaryTranscriptHeavy:
		fmt.Fprintf(&b, "Answer is mostly transcript-based (%.0f%% of context) with an external supplement", rec.Composition["transcript"])
	default:
		b.WriteString("Answer is based on transcript content")
	}
	if externalUsed && triggerReason != "" {
		fmt.Fprintf(&b, "; external lookup was triggered because %s", triggerReason)
	}
	b.WriteString(".")
	return b.String()
}
