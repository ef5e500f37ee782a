package pipeline

import "strings"

// summaryKeywords match "give me an overview" style questions. Pure
// lexical containment; a match short-circuits hybrid retrieval in
// favour of fetching the full transcript directly.
var summaryKeywords = []string{
	"summarize",
	"summarise",
	"summary",
	"overview",
	"main points",
	"key points",
	"key topics",
	"key takeaways",
	"tl;dr",
	"tldr",
	"recap",
	"what is this video about",
	"what's this video about",
	"what is the video about",
	"gist of",
}

// IsSummaryRequest reports whether the question asks for a whole-video
// summary rather than a specific answer.
func IsSummaryRequest(question string) bool {
	q := strings.ToLower(question)
	for _, kw := range summaryKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}
