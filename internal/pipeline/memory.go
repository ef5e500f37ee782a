package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/mohammad-safakhou/vidqa/internal/session"
)

// SessionMemory keeps a bounded conversational buffer per session.
// Older turns are compressed into a running summary once the buffer
// exceeds its token budget, so memory cost stays bounded while age
// ordering is preserved.
type SessionMemory struct {
	store        session.Store
	provider     generator
	summaryModel string
	tokenBudget  int
	maxTurns     int
	logger       *log.Logger
}

// NewSessionMemory builds session memory over the given buffer store.
func NewSessionMemory(store session.Store, provider generator, summaryModel string, tokenBudget, maxTurns int, logger *log.Logger) *SessionMemory {
	if tokenBudget <= 0 {
		tokenBudget = 1500
	}
	if maxTurns <= 0 {
		maxTurns = 10
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[MEMORY] ", log.LstdFlags)
	}
	return &SessionMemory{
		store:        store,
		provider:     provider,
		summaryModel: summaryModel,
		tokenBudget:  tokenBudget,
		maxTurns:     maxTurns,
		logger:       logger,
	}
}

// Context renders the session's conversational context, possibly empty.
// When annotated is true (the current question contains references),
// each turn carries an explicit chronological index and the rendering
// is prefixed with an instruction that higher index means more recent,
// to bias reference resolution toward recency.
func (m *SessionMemory) Context(ctx context.Context, sessionID string, annotated bool) (string, error) {
	buf, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("get session buffer: %w", err)
	}
	return renderBuffer(buf, annotated), nil
}

// AddExchange appends a question/answer turn, compressing older turns
// into the running summary when the buffer exceeds its budget. If
// summarisation fails the raw buffer is kept untruncated rather than
// dropping history.
func (m *SessionMemory) AddExchange(ctx context.Context, sessionID, question, answer string) error {
	return m.store.Update(ctx, sessionID, func(buf *session.Buffer) error {
		buf.Turns = append(buf.Turns, session.Turn{Question: question, Answer: answer})
		if !m.overBudget(*buf) {
			return nil
		}
		m.compress(ctx, buf)
		return nil
	})
}

func (m *SessionMemory) overBudget(buf session.Buffer) bool {
	if len(buf.Turns) > m.maxTurns {
		return true
	}
	return estimateTokens(renderBuffer(buf, false)) > m.tokenBudget
}

// compress summarises all but the two most recent turns into the
// running summary. On any failure the buffer is left as-is.
func (m *SessionMemory) compress(ctx context.Context, buf *session.Buffer) {
	keep := 2
	if len(buf.Turns) <= keep {
		return
	}
	older := buf.Turns[:len(buf.Turns)-keep]

	var b strings.Builder
	if buf.Summary != "" {
		b.WriteString("Existing summary:\n")
		b.WriteString(buf.Summary)
		b.WriteString("\n\n")
	}
	b.WriteString("Conversation to fold in:\n")
	for _, t := range older {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", t.Question, t.Answer)
	}
	prompt := fmt.Sprintf(`Condense the following conversation into a short factual summary that preserves entity names and the order topics were discussed. Reply with the summary only.

%s`, b.String())

	summary, err := m.provider.Generate(ctx, prompt, m.summaryModel)
	if err != nil || strings.TrimSpace(summary) == "" {
		m.logger.Printf("warn: memory summarisation failed, keeping raw buffer: %v", err)
		return
	}
	buf.Summary = strings.TrimSpace(summary)
	buf.Turns = append([]session.Turn(nil), buf.Turns[len(buf.Turns)-keep:]...)
}

// renderBuffer flattens a buffer into prompt text.
func renderBuffer(buf session.Buffer, annotated bool) string {
	if buf.Summary == "" && len(buf.Turns) == 0 {
		return ""
	}
	var b strings.Builder
	if annotated {
		b.WriteString("Conversation turns are numbered in chronological order; a higher number means more recent. When resolving references, prefer the most recent mention.\n\n")
	}
	if buf.Summary != "" {
		b.WriteString("Earlier conversation summary: ")
		b.WriteString(buf.Summary)
		b.WriteString("\n\n")
	}
	for i, t := range buf.Turns {
		if annotated {
			fmt.Fprintf(&b, "[%d] User: %s\n[%d] Assistant: %s\n", i+1, t.Question, i+1, t.Answer)
		} else {
			fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", t.Question, t.Answer)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
