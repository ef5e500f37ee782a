package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNeedsExternal(t *testing.T) {
	g := NewExternalGateway("key", "https://example.invalid", "sonar", time.Second, 0.5, nil)

	fullDoc := RetrievedDocument{SourceType: SourceFullTranscript, Text: "transcript"}
	goodChunks := []RetrievedDocument{
		{SourceType: SourceChunk, Similarity: 0.9},
		{SourceType: SourceChunk, Similarity: 0.8},
	}
	weakChunks := []RetrievedDocument{
		{SourceType: SourceChunk, Similarity: 0.3},
		{SourceType: SourceChunk, Similarity: 0.4},
	}

	cases := []struct {
		name     string
		question string
		docs     []RetrievedDocument
		want     bool
	}{
		{name: "keyword overrides full transcript", question: "Who is the guest?", docs: []RetrievedDocument{fullDoc}, want: true},
		{name: "time-sensitive keyword", question: "What is the latest launch date?", docs: goodChunks, want: true},
		{name: "full transcript suffices", question: "What was discussed about batteries?", docs: []RetrievedDocument{fullDoc}, want: false},
		{name: "good chunk coverage suffices", question: "What was discussed about batteries?", docs: goodChunks, want: false},
		{name: "weak chunks trigger lookup", question: "What was discussed about batteries?", docs: weakChunks, want: true},
		{name: "nothing retrieved", question: "What was discussed about batteries?", docs: nil, want: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, reason := g.NeedsExternal(tc.question, tc.docs)
			if got != tc.want {
				t.Fatalf("NeedsExternal = %v (%s), want %v", got, reason, tc.want)
			}
			if reason == "" {
				t.Fatal("reason must not be empty")
			}
		})
	}
}

func TestFetchSuccess(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"choices":[{"message":{"content":"Jane Doe is the CEO of Acme Corp."}}]}`))
	}))
	defer srv.Close()

	g := NewExternalGateway("secret", srv.URL, "sonar", time.Second, 0.5, nil)
	got := g.Fetch(context.Background(), "Who is Jane Doe?", "")
	if got != "Jane Doe is the CEO of Acme Corp." {
		t.Fatalf("unexpected answer: %q", got)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}
}

func TestFetchDegradesToEmpty(t *testing.T) {
	t.Run("non-2xx", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer srv.Close()
		g := NewExternalGateway("key", srv.URL, "sonar", time.Second, 0.5, nil)
		if got := g.Fetch(context.Background(), "Who is Jane Doe?", ""); got != "" {
			t.Fatalf("expected empty answer, got %q", got)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(300 * time.Millisecond)
			w.Write([]byte(`{"choices":[{"message":{"content":"too late"}}]}`))
		}))
		defer srv.Close()
		g := NewExternalGateway("key", srv.URL, "sonar", 50*time.Millisecond, 0.5, nil)
		start := time.Now()
		if got := g.Fetch(context.Background(), "Who is Jane Doe?", ""); got != "" {
			t.Fatalf("expected empty answer, got %q", got)
		}
		if time.Since(start) > 250*time.Millisecond {
			t.Fatal("fetch did not honour the timeout")
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("not json"))
		}))
		defer srv.Close()
		g := NewExternalGateway("key", srv.URL, "sonar", time.Second, 0.5, nil)
		if got := g.Fetch(context.Background(), "Who is Jane Doe?", ""); got != "" {
			t.Fatalf("expected empty answer, got %q", got)
		}
	})
}

func TestFetchIncludesConversationHint(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && len(body.Messages) > 0 {
			gotPrompt = body.Messages[0].Content
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	g := NewExternalGateway("key", srv.URL, "sonar", time.Second, 0.5, nil)
	g.Fetch(context.Background(), "Who is she?", "User: Who is Jane Doe?")
	if !strings.Contains(gotPrompt, "Jane Doe") {
		t.Fatalf("conversation hint missing from prompt: %q", gotPrompt)
	}
}
