package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeGenerator struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, _ string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

func TestHasReferences(t *testing.T) {
	positive := []string{
		"What companies has he worked at?",
		"Why is she famous?",
		"Tell me more about the company",
		"What about that?",
		"How does it work?",
	}
	for _, q := range positive {
		if !HasReferences(q) {
			t.Errorf("expected references in %q", q)
		}
	}

	negative := []string{
		"When was SpaceX founded?",
		"List the topics discussed in the interview",
		"What makes a good battery chemistry?",
	}
	for _, q := range negative {
		if HasReferences(q) {
			t.Errorf("unexpected references in %q", q)
		}
	}
}

func TestResolveNoContextReturnsInput(t *testing.T) {
	gen := &fakeGenerator{response: "should not be called?"}
	r := NewResolver(gen, "fast", nil)

	got, used := r.Resolve(context.Background(), "What companies has he worked at?", "")
	if used || got != "What companies has he worked at?" {
		t.Fatalf("expected unchanged question, got %q (used=%v)", got, used)
	}
	if len(gen.prompts) != 0 {
		t.Fatal("resolver must not call the model without context")
	}
}

func TestResolveRecency(t *testing.T) {
	gen := &fakeGenerator{response: "What companies has Elon Musk worked at?"}
	r := NewResolver(gen, "fast", nil)

	convContext := "User: Who is Jeff Bezos?\nAssistant: Jeff Bezos founded Amazon.\nUser: Who is Elon Musk?\nAssistant: Elon Musk founded SpaceX."
	got, used := r.Resolve(context.Background(), "What companies has he worked at?", convContext)
	if !used {
		t.Fatal("expected rewrite to be used")
	}
	if !strings.Contains(got, "Elon Musk") {
		t.Fatalf("expected explicit entity in %q", got)
	}
	if len(gen.prompts) != 1 || !strings.Contains(gen.prompts[0], "MOST RECENTLY") {
		t.Fatal("prompt must instruct recency preference")
	}
}

func TestResolveFallsBackOnModelError(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("boom")}
	r := NewResolver(gen, "fast", nil)

	got, used := r.Resolve(context.Background(), "What did he say?", "some context")
	if used || got != "What did he say?" {
		t.Fatalf("expected original question on model error, got %q", got)
	}
}

func TestResolveRejectsImplausibleRewrites(t *testing.T) {
	original := "What did he say?"
	bad := []string{
		"",
		"The speaker talked about many things",           // not a question
		"I think you are asking what the speaker said?",  // explanatory preamble
		strings.Repeat("What did the speaker say? ", 20), // far too long
	}
	for _, rewrite := range bad {
		gen := &fakeGenerator{response: rewrite}
		r := NewResolver(gen, "fast", nil)
		got, used := r.Resolve(context.Background(), original, "ctx")
		if used || got != original {
			t.Errorf("rewrite %q should have been rejected, got %q", preview(rewrite, 40), got)
		}
	}
}
