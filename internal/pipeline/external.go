package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// externalOnlyKeywords mark questions about the wider world that
// transcripts cannot answer reliably even when retrieval coverage is
// good: identity, biography and anything time-sensitive.
var externalOnlyKeywords = []string{
	"who is",
	"biography of",
	"net worth",
	"stock price",
	"market cap",
	"current",
	"latest",
	"today's",
	"news",
}

// ExternalGateway is the fallback call to a general-purpose knowledge
// API when transcript retrieval is insufficient.
type ExternalGateway struct {
	apiKey      string
	baseURL     string
	model       string
	timeout     time.Duration
	sufficiency float64
	httpClient  *http.Client
	logger      *log.Logger
}

// NewExternalGateway builds the gateway. timeout is a hard cap on the
// whole external request, default 5s.
func NewExternalGateway(apiKey, baseURL, model string, timeout time.Duration, sufficiency float64, logger *log.Logger) *ExternalGateway {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if sufficiency <= 0 {
		sufficiency = DefaultThresholds.Sufficiency
	}
	if baseURL == "" {
		baseURL = "https://api.perplexity.ai"
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[EXTERNAL] ", log.LstdFlags)
	}
	return &ExternalGateway{
		apiKey:      apiKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		timeout:     timeout,
		sufficiency: sufficiency,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// NeedsExternal decides whether to call the external knowledge API.
// The returned reason is recorded by attribution.
func (g *ExternalGateway) NeedsExternal(question string, docs []RetrievedDocument) (bool, string) {
	if kw := matchExternalKeyword(question); kw != "" {
		return true, fmt.Sprintf("question matches external-only keyword %q", kw)
	}

	var (
		hasFull  bool
		chunkSum float64
		chunkN   int
	)
	for _, d := range docs {
		switch d.SourceType {
		case SourceFullTranscript, SourceFullTranscriptDirect:
			hasFull = true
		case SourceChunk:
			chunkSum += d.Similarity
			chunkN++
		}
	}
	if hasFull {
		return false, "full transcript available"
	}
	if chunkN > 0 {
		mean := chunkSum / float64(chunkN)
		if mean >= g.sufficiency {
			return false, fmt.Sprintf("chunk coverage sufficient (mean similarity %.2f)", mean)
		}
		return true, fmt.Sprintf("low-quality chunk matches (mean similarity %.2f)", mean)
	}
	return true, "no transcript content retrieved"
}

func matchExternalKeyword(question string) string {
	q := strings.ToLower(question)
	for _, kw := range externalOnlyKeywords {
		if strings.Contains(q, kw) {
			return kw
		}
	}
	return ""
}

// Fetch asks the external API for a short factual answer. Any timeout,
// network error or non-2xx response degrades to an empty string.
func (g *ExternalGateway) Fetch(ctx context.Context, question, contextHint string) string {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	prompt := fmt.Sprintf("Answer factually and concisely: %s", question)
	if strings.TrimSpace(contextHint) != "" {
		prompt += fmt.Sprintf("\n\nBackground from the conversation: %s", contextHint)
	}
	body := map[string]interface{}{
		"model": g.model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
	}
	jsonData, err := json.Marshal(body)
	if err != nil {
		g.logger.Printf("warn: external request marshal failed: %v", err)
		return ""
	}
	req, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		g.logger.Printf("warn: external request build failed: %v", err)
		return ""
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.logger.Printf("warn: external search failed: %v", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		g.logger.Printf("warn: external search returned status %d", resp.StatusCode)
		return ""
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		g.logger.Printf("warn: external response parse failed: %v", err)
		return ""
	}
	if len(out.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(out.Choices[0].Message.Content)
}
