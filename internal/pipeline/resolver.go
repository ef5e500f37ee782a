package pipeline

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
)

// Reference categories produced by the detection rule table.
const (
	refPronoun       = "pronoun"
	refDemonstrative = "demonstrative"
	refTrigger       = "trigger"
)

// refRule is one detection rule: pattern plus the category it signals.
// Keeping the rules as data makes the heuristic auditable; it is a
// cheap pre-filter, not a coreference engine, and both false positives
// ("it" in "is it raining") and false negatives (novel phrasings) are
// accepted risks.
type refRule struct {
	pattern  *regexp.Regexp
	category string
}

var referenceRules = buildReferenceRules()

func buildReferenceRules() []refRule {
	var rules []refRule
	word := func(words ...string) *regexp.Regexp {
		return regexp.MustCompile(`\b(` + strings.Join(words, "|") + `)\b`)
	}
	rules = append(rules, refRule{
		pattern: word("he", "she", "they", "him", "her", "them", "it",
			"his", "hers", "their", "theirs", "its",
			"himself", "herself", "themselves", "itself"),
		category: refPronoun,
	})
	rules = append(rules, refRule{
		pattern: word("this", "that", "these", "those",
			"the person", "the company", "the guy", "the guest", "the host"),
		category: refDemonstrative,
	})
	rules = append(rules, refRule{
		pattern:  word("what about", "how does", "why is", "what makes", "how can"),
		category: refTrigger,
	})
	return rules
}

// matchCategories runs the rule table over a lowercased question.
func matchCategories(question string) map[string]bool {
	q := strings.ToLower(question)
	out := make(map[string]bool, len(referenceRules))
	for _, r := range referenceRules {
		if r.pattern.MatchString(q) {
			out[r.category] = true
		}
	}
	return out
}

// HasReferences reports whether the question contains ambiguous
// pronouns or references that need conversational context to resolve.
func HasReferences(question string) bool {
	cats := matchCategories(question)
	if cats[refPronoun] || cats[refDemonstrative] {
		return true
	}
	// Trigger phrases only count when a referential word co-occurs.
	return cats[refTrigger] && (cats[refPronoun] || cats[refDemonstrative])
}

// generator is the one provider method the resolver needs.
type generator interface {
	Generate(ctx context.Context, prompt string, model string) (string, error)
}

// Resolver rewrites ambiguous references into explicit entity names
// using conversational history.
type Resolver struct {
	provider generator
	model    string
	logger   *log.Logger
}

// NewResolver builds a reference resolver that rewrites with the given
// chat model.
func NewResolver(provider generator, model string, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.New(log.Writer(), "[RESOLVER] ", log.LstdFlags)
	}
	return &Resolver{provider: provider, model: model, logger: logger}
}

const resolvePromptTemplate = `You rewrite questions to make ambiguous references explicit.

Conversation so far:
%s

Question: %s

Rewrite the question replacing pronouns and ambiguous references (he, she, they, it, this, that, "the person", "the company", ...) with the explicit entity names from the conversation. When several entities of the same kind were mentioned, ALWAYS pick the MOST RECENTLY mentioned one, even if an earlier one seems more topical.

Reply with the rewritten question only. Keep it a question.`

// Resolve returns the question with references rewritten to explicit
// entities. With empty context, or when the rewrite fails validation or
// the model errors, the original question is returned unchanged.
func (r *Resolver) Resolve(ctx context.Context, question, convContext string) (string, bool) {
	if strings.TrimSpace(convContext) == "" {
		return question, false
	}
	prompt := fmt.Sprintf(resolvePromptTemplate, convContext, question)
	out, err := r.provider.Generate(ctx, prompt, r.model)
	if err != nil {
		r.logger.Printf("warn: reference resolution failed: %v", err)
		return question, false
	}
	resolved := strings.TrimSpace(out)
	if !validResolution(question, resolved) {
		r.logger.Printf("warn: discarding implausible rewrite: %q", preview(resolved, 80))
		return question, false
	}
	return resolved, resolved != question
}

// validResolution sanity-checks a model rewrite: non-empty, not wildly
// longer than the original, still a question, and not an explanation.
func validResolution(original, resolved string) bool {
	if resolved == "" {
		return false
	}
	if len(resolved) >= 3*len(original) {
		return false
	}
	if !strings.Contains(resolved, "?") {
		return false
	}
	if strings.HasPrefix(resolved, "I ") || strings.HasPrefix(resolved, "The ") {
		return false
	}
	return true
}
