package pipeline

import "testing"

func TestIsSummaryRequest(t *testing.T) {
	positive := []string{
		"Summarize this video",
		"Can you give me an overview?",
		"What are the main points discussed?",
		"tl;dr please",
		"What is this video about?",
		"Give me a quick recap",
	}
	for _, q := range positive {
		if !IsSummaryRequest(q) {
			t.Errorf("expected summary request: %q", q)
		}
	}

	negative := []string{
		"Who founded the company?",
		"When was the rocket launched?",
		"What did she say about batteries?",
	}
	for _, q := range negative {
		if IsSummaryRequest(q) {
			t.Errorf("unexpected summary request: %q", q)
		}
	}
}
