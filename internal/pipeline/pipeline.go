package pipeline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/mohammad-safakhou/vidqa/internal/session"
	"github.com/mohammad-safakhou/vidqa/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

const fallbackAnswer = "I'm sorry, I couldn't generate an answer for that question right now. Please try again."

// transcriptFetcher is the slice of the store the direct-fetch branch needs.
type transcriptFetcher interface {
	FetchFullTranscript(ctx context.Context, videoID string) (store.Transcript, bool, error)
}

// sessionPersistence records sessions and exchanges durably.
type sessionPersistence interface {
	FindOrCreateSession(ctx context.Context, token, videoID string) (string, string, error)
	AppendMessage(ctx context.Context, sessionID, role, content string, latencyMs int64) error
}

// Request is one question for the pipeline.
type Request struct {
	Question string
	VideoID  string
	// SessionToken binds the query to a conversation; empty mints a new
	// session when persistence is available.
	SessionToken string
	// History is caller-supplied conversation context used when no
	// session memory exists for this conversation yet.
	History []session.Turn
	TopK    int
	Mode    Mode
}

// Pipeline orchestrates the conversational retrieval stages. Every
// stage except the final model invocation degrades on failure; Query
// never returns an error to its caller.
type Pipeline struct {
	memory      *SessionMemory
	resolver    *Resolver
	retriever   *HybridRetriever
	external    *ExternalGateway
	selector    ModelSelector
	provider    generator
	transcripts transcriptFetcher
	sessions    sessionPersistence
	logger      *log.Logger

	queries           otelmetric.Int64Counter
	failures          otelmetric.Int64Counter
	externalTriggered otelmetric.Int64Counter
	llmLatency        otelmetric.Float64Histogram
}

// New assembles the pipeline. sessions may be nil (no durable
// persistence); transcripts is required for the summary short-circuit.
func New(memory *SessionMemory, resolver *Resolver, retriever *HybridRetriever, external *ExternalGateway, selector ModelSelector, provider generator, transcripts transcriptFetcher, sessions sessionPersistence, logger *log.Logger) *Pipeline {
	if logger == nil {
		logger = log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags)
	}
	p := &Pipeline{
		memory:      memory,
		resolver:    resolver,
		retriever:   retriever,
		external:    external,
		selector:    selector,
		provider:    provider,
		transcripts: transcripts,
		sessions:    sessions,
		logger:      logger,
	}
	meter := otel.Meter("vidqa/pipeline")
	p.queries, _ = meter.Int64Counter("pipeline.queries")
	p.failures, _ = meter.Int64Counter("pipeline.failures")
	p.externalTriggered, _ = meter.Int64Counter("pipeline.external_triggered")
	p.llmLatency, _ = meter.Float64Histogram("pipeline.llm_latency_ms")
	return p
}

// Query answers one question. It always returns a QueryResult: any
// unexpected failure is converted into an apologetic answer with
// metadata.error populated.
func (p *Pipeline) Query(ctx context.Context, req Request) (result QueryResult) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Printf("error: pipeline panic: %v", r)
			p.failures.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("kind", "panic")))
			result = QueryResult{Answer: fallbackAnswer}
			result.Metadata.Error = fmt.Sprintf("internal error: %v", r)
			result.Metadata.ProcessingTimeMs = time.Since(start).Milliseconds()
		}
	}()
	p.queries.Add(ctx, 1)
	result = p.run(ctx, req, start)
	return result
}

func (p *Pipeline) run(ctx context.Context, req Request, start time.Time) QueryResult {
	var md Metadata

	// Session resolution. Failure degrades to a memory-less query.
	var sessionID, token string
	if p.sessions != nil {
		var err error
		sessionID, token, err = p.sessions.FindOrCreateSession(ctx, req.SessionToken, req.VideoID)
		if err != nil {
			p.logger.Printf("warn: session resolution failed: %v", err)
			sessionID, token = "", ""
		}
	}
	md.SessionID = token

	// Conversational context, annotated with chronology when the
	// question carries references.
	hadRefs := HasReferences(req.Question)
	memCtx := p.memoryContext(ctx, token, req.History, hadRefs)
	md.MemoryUsed = memCtx != ""
	md.MemoryContextLength = len(memCtx)

	// Reference resolution. The resolved question drives retrieval and
	// the final prompt; the original is what gets persisted.
	resolved, rewriteUsed := req.Question, false
	if hadRefs {
		resolved, rewriteUsed = p.resolver.Resolve(ctx, req.Question, memCtx)
	}
	md.PronounResolution = PronounResolution{
		Used:             rewriteUsed,
		OriginalQuestion: req.Question,
		ResolvedQuestion: resolved,
		HadPronouns:      hadRefs,
		MemoryAvailable:  memCtx != "",
	}

	// Retrieval: summary questions scoped to a video bypass hybrid
	// retrieval in favour of the full transcript.
	docs, method := p.retrieve(ctx, resolved, req.VideoID, req.TopK)
	md.RetrievalMethod = method

	// External knowledge fallback.
	externalNeeded, reason := p.external.NeedsExternal(resolved, docs)
	externalText := ""
	if externalNeeded {
		p.externalTriggered.Add(ctx, 1)
		externalText = p.external.Fetch(ctx, resolved, memCtx)
		if externalText != "" {
			docs = append(docs, RetrievedDocument{Text: externalText, SourceType: SourceExternal})
		}
	}
	md.ExternalSearch = ExternalSearch{
		Triggered:      externalNeeded,
		Success:        externalNeeded && externalText != "",
		ResponseLength: len(externalText),
		UsedInContext:  externalText != "",
	}

	contextText := assembleContext(docs)
	md.ContextLength = len(contextText)
	md.SourceCount = len(docs)

	selection := p.selector.Select(contextText, resolved, req.Mode)
	md.ModelSelection = selection

	prompt := buildPrompt(contextText, memCtx, resolved)

	llmStart := time.Now()
	answer, err := p.provider.Generate(ctx, prompt, selection.ModelName)
	md.LLMTimeMs = time.Since(llmStart).Milliseconds()
	p.llmLatency.Record(ctx, float64(md.LLMTimeMs), otelmetric.WithAttributes(attribute.String("model", selection.ModelName)))
	if err != nil {
		p.logger.Printf("error: model invocation failed: %v", err)
		p.failures.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("kind", "model")))
		answer = fallbackAnswer
		md.Error = err.Error()
	}
	md.AnswerLength = len(answer)
	if md.AnswerLength > 0 {
		md.CompressionRatio = float64(md.ContextLength) / float64(md.AnswerLength)
	}

	// Persist the exchange with the question the user actually asked,
	// not the rewritten one. Persistence failures never block the
	// response.
	latency := time.Since(start).Milliseconds()
	if md.Error == "" {
		p.persistExchange(ctx, sessionID, token, req.Question, answer, latency)
	}

	md.PipelineAttribution = BuildAttribution(docs, externalNeeded, externalText, reason)
	md.ProcessingTimeMs = time.Since(start).Milliseconds()

	return QueryResult{
		Answer:   answer,
		Sources:  sourceRefs(docs),
		Metadata: md,
	}
}

// memoryContext resolves the conversational context: session memory
// when a session exists, the caller-supplied history otherwise.
func (p *Pipeline) memoryContext(ctx context.Context, token string, history []session.Turn, annotated bool) string {
	if token != "" && p.memory != nil {
		memCtx, err := p.memory.Context(ctx, token, annotated)
		if err != nil {
			p.logger.Printf("warn: memory context failed: %v", err)
		} else if memCtx != "" {
			return memCtx
		}
	}
	if len(history) == 0 {
		return ""
	}
	return renderBuffer(session.Buffer{Turns: history}, annotated)
}

// retrieve picks the retrieval branch and never fails: a broken direct
// fetch falls through to hybrid search, a broken hybrid search yields
// an empty document set.
func (p *Pipeline) retrieve(ctx context.Context, question, videoID string, topK int) ([]RetrievedDocument, string) {
	if IsSummaryRequest(question) && videoID != "" {
		tr, ok, err := p.transcripts.FetchFullTranscript(ctx, videoID)
		if err != nil {
			p.logger.Printf("warn: direct transcript fetch failed: %v", err)
		}
		if err == nil && ok {
			return []RetrievedDocument{{
				Text:       tr.Content,
				SourceType: SourceFullTranscriptDirect,
				VideoID:    tr.VideoID,
			}}, "direct_transcript"
		}
		// No stored transcript for this id: standard retrieval.
	}
	return p.retriever.Search(ctx, question, videoID, topK), "hybrid"
}

func (p *Pipeline) persistExchange(ctx context.Context, sessionID, token, question, answer string, latencyMs int64) {
	if token != "" && p.memory != nil {
		if err := p.memory.AddExchange(ctx, token, question, answer); err != nil {
			p.logger.Printf("warn: memory update failed: %v", err)
		}
	}
	if sessionID != "" && p.sessions != nil {
		if err := p.sessions.AppendMessage(ctx, sessionID, "user", question, 0); err != nil {
			p.logger.Printf("warn: persist user message failed: %v", err)
		}
		if err := p.sessions.AppendMessage(ctx, sessionID, "assistant", answer, latencyMs); err != nil {
			p.logger.Printf("warn: persist assistant message failed: %v", err)
		}
	}
}

// assembleContext flattens documents into prompt context, transcript
// content first, external knowledge last and labelled as such.
func assembleContext(docs []RetrievedDocument) string {
	var b strings.Builder
	for _, d := range docs {
		switch d.SourceType {
		case SourceExternal:
			b.WriteString("Additional knowledge (external source):\n")
			b.WriteString(d.Text)
			b.WriteString("\n\n")
		case SourceChunk:
			if d.EndTime > 0 {
				fmt.Fprintf(&b, "Transcript excerpt [%s - %s]:\n", formatTimestamp(d.StartTime), formatTimestamp(d.EndTime))
			} else {
				b.WriteString("Transcript excerpt:\n")
			}
			b.WriteString(d.Text)
			b.WriteString("\n\n")
		default:
			b.WriteString("Full transcript:\n")
			b.WriteString(d.Text)
			b.WriteString("\n\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatTimestamp(seconds float64) string {
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

func buildPrompt(contextText, memCtx, question string) string {
	var b strings.Builder
	b.WriteString("You answer questions about video content. Use the provided transcript context; when external knowledge is included, you may use it and say so. If the context does not contain the answer, say you don't know rather than guessing.\n\n")
	if memCtx != "" {
		b.WriteString("Conversation so far:\n")
		b.WriteString(memCtx)
		b.WriteString("\n\n")
	}
	if contextText != "" {
		b.WriteString("Context:\n")
		b.WriteString(contextText)
		b.WriteString("\n\n")
	}
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\nAnswer:")
	return b.String()
}

func sourceRefs(docs []RetrievedDocument) []SourceRef {
	refs := make([]SourceRef, 0, len(docs))
	for _, d := range docs {
		refs = append(refs, SourceRef{
			VideoID:    d.VideoID,
			SourceType: d.SourceType,
			Similarity: d.Similarity,
			StartTime:  d.StartTime,
			EndTime:    d.EndTime,
			Preview:    preview(d.Text, 200),
		})
	}
	return refs
}
