package pipeline

import (
	"fmt"
	"strings"
)

// Mode is the caller-selectable latency/quality tradeoff.
type Mode string

const (
	ModeSpeed    Mode = "speed"
	ModeQuality  Mode = "quality"
	ModeBalanced Mode = "balanced"
)

// Token thresholds for balanced-mode routing.
const (
	largeContextTokens = 6000
	smallContextTokens = 1500
)

// complexityKeywords mark questions that deserve the quality model
// regardless of context size.
var complexityKeywords = []string{
	"analyze",
	"analyse",
	"compare",
	"comparison",
	"explain why",
	"comprehensive",
	"elaborate",
	"in depth",
	"in-depth",
	"evaluate",
	"pros and cons",
}

// ModelSelector chooses between the fast and quality chat models.
type ModelSelector struct {
	Fast    string
	Quality string
}

// Select picks a model for the given context and query. It is a pure
// function of its inputs; the returned reason is for observability.
func (s ModelSelector) Select(contextText, query string, mode Mode) ModelSelection {
	switch mode {
	case ModeSpeed:
		return ModelSelection{ModelName: s.Fast, SelectionReason: "speed mode requested"}
	case ModeQuality:
		return ModelSelection{ModelName: s.Quality, SelectionReason: "quality mode requested"}
	}

	tokens := estimateTokens(contextText)
	complex := hasComplexityKeyword(query)
	switch {
	case tokens > largeContextTokens:
		return ModelSelection{
			ModelName:       s.Quality,
			SelectionReason: fmt.Sprintf("large context (~%d tokens) needs the quality model", tokens),
		}
	case complex:
		return ModelSelection{
			ModelName:       s.Quality,
			SelectionReason: "query contains complexity keywords",
		}
	case tokens < smallContextTokens:
		return ModelSelection{
			ModelName:       s.Fast,
			SelectionReason: fmt.Sprintf("small context (~%d tokens) and simple query", tokens),
		}
	default:
		return ModelSelection{
			ModelName:       s.Fast,
			SelectionReason: fmt.Sprintf("mid-sized context (~%d tokens), simple query", tokens),
		}
	}
}

func hasComplexityKeyword(query string) bool {
	q := strings.ToLower(query)
	for _, kw := range complexityKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}
