package pipeline

import (
	"math"
	"strings"
	"testing"
)

func TestBuildAttributionCompositionSumsToHundred(t *testing.T) {
	docs := []RetrievedDocument{
		{SourceType: SourceChunk, Text: strings.Repeat("t", 300), Similarity: 0.9},
		{SourceType: SourceChunk, Text: strings.Repeat("t", 100), Similarity: 0.8},
		{SourceType: SourceExternal, Text: strings.Repeat("e", 100)},
	}
	rec := BuildAttribution(docs, true, strings.Repeat("e", 100), "low-quality chunk matches")

	sum := rec.Composition["transcript"] + rec.Composition["external"]
	if math.Abs(sum-100) > 0.01 {
		t.Fatalf("composition sums to %f, want 100", sum)
	}
	if rec.ContentBreakdown["transcript"] != 400 || rec.ContentBreakdown["external"] != 100 {
		t.Fatalf("unexpected breakdown: %+v", rec.ContentBreakdown)
	}
	if rec.SourceCounts[SourceChunk] != 2 || rec.SourceCounts[SourceExternal] != 1 {
		t.Fatalf("unexpected source counts: %+v", rec.SourceCounts)
	}
	if math.Abs(rec.QualityMetrics.AvgSimilarity-0.85) > 1e-9 {
		t.Fatalf("avg similarity = %f, want 0.85", rec.QualityMetrics.AvgSimilarity)
	}
	if rec.QualityMetrics.MaxSimilarity != 0.9 {
		t.Fatalf("max similarity = %f, want 0.9", rec.QualityMetrics.MaxSimilarity)
	}
}

func TestBuildAttributionPrimarySource(t *testing.T) {
	transcriptDoc := func(n int) RetrievedDocument {
		return RetrievedDocument{SourceType: SourceChunk, Text: strings.Repeat("t", n), Similarity: 0.8}
	}

	cases := []struct {
		name         string
		docs         []RetrievedDocument
		externalUsed bool
		externalText string
		want         string
	}{
		{
			name: "transcript only",
			docs: []RetrievedDocument{transcriptDoc(500)},
			want: PrimaryTranscript,
		},
		{
			name:         "external only",
			docs:         []RetrievedDocument{{SourceType: SourceExternal, Text: strings.Repeat("e", 200)}},
			externalUsed: true,
			externalText: strings.Repeat("e", 200),
			want:         PrimaryExternal,
		},
		{
			name:         "external majority",
			docs:         []RetrievedDocument{transcriptDoc(100), {SourceType: SourceExternal, Text: strings.Repeat("e", 400)}},
			externalUsed: true,
			externalText: strings.Repeat("e", 400),
			want:         PrimaryExternalHeavy,
		},
		{
			name:         "transcript majority with supplement",
			docs:         []RetrievedDocument{transcriptDoc(400), {SourceType: SourceExternal, Text: strings.Repeat("e", 100)}},
			externalUsed: true,
			externalText: strings.Repeat("e", 100),
			want:         PrimaryTranscriptHeavy,
		},
		{
			name:         "external triggered but returned nothing",
			docs:         []RetrievedDocument{transcriptDoc(400)},
			externalUsed: true,
			externalText: "",
			want:         PrimaryTranscript,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := BuildAttribution(tc.docs, tc.externalUsed, tc.externalText, "")
			if rec.PrimarySource != tc.want {
				t.Fatalf("primary source = %s, want %s", rec.PrimarySource, tc.want)
			}
		})
	}
}

func TestBuildAttributionExplanationCarriesTrigger(t *testing.T) {
	docs := []RetrievedDocument{{SourceType: SourceExternal, Text: "external answer"}}
	rec := BuildAttribution(docs, true, "external answer", "no transcript content retrieved")
	if !strings.Contains(rec.Explanation, "no transcript content retrieved") {
		t.Fatalf("explanation missing trigger reason: %q", rec.Explanation)
	}
}

func TestBuildAttributionEmpty(t *testing.T) {
	rec := BuildAttribution(nil, false, "", "")
	if rec.PrimarySource != PrimaryTranscript {
		t.Fatalf("primary source = %s, want %s", rec.PrimarySource, PrimaryTranscript)
	}
	if len(rec.Composition) != 0 {
		t.Fatalf("expected empty composition when no content, got %+v", rec.Composition)
	}
}
