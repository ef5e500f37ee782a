package store

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// DefaultEmbeddingDimensions indicates the expected length of chunk
// embedding vectors when none is configured.
const DefaultEmbeddingDimensions = 1536

// Store wraps the relational database used for transcripts, chunks and
// conversation sessions.
type Store struct {
	DB *sql.DB

	// EmbeddingDimensions is the expected chunk vector length; candidates
	// whose stored embedding parses to a different length are skipped.
	EmbeddingDimensions int

	logger *log.Logger
}

// New opens a Postgres connection and verifies it.
func New(ctx context.Context, dsn string, dims int, logger *log.Logger) (*Store, error) {
	if dims <= 0 {
		dims = DefaultEmbeddingDimensions
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[STORE] ", log.LstdFlags)
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Store{DB: db, EmbeddingDimensions: dims, logger: logger}, nil
}

// Transcript is the full, unsegmented text of one video.
type Transcript struct {
	VideoID       string
	Title         string
	Content       string
	SegmentCount  int
	TotalDuration float64
}

// LexicalHit is a full-transcript match from text search.
type LexicalHit struct {
	VideoID string
	Content string
	Rank    float64
}

// ChunkCandidate is a time-stamped transcript slice with its embedding
// already normalised to a fixed-length vector.
type ChunkCandidate struct {
	VideoID    string
	ChunkIndex int
	Text       string
	StartTime  float64
	EndTime    float64
	Embedding  []float32
}

// Message is one persisted conversation message.
type Message struct {
	Role      string
	Content   string
	LatencyMs int64
	CreatedAt time.Time
}

// LexicalSearch ranks full transcripts against the query and returns up
// to limit matches, best first. An empty videoID searches all videos.
func (s *Store) LexicalSearch(ctx context.Context, query, videoID string, limit int) ([]LexicalHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT video_id, transcript,
       ts_rank(to_tsvector('english', transcript), plainto_tsquery('english', $1)) AS rank
FROM videos
WHERE to_tsvector('english', transcript) @@ plainto_tsquery('english', $1)
  AND ($2 = '' OR video_id = $2)
ORDER BY rank DESC
LIMIT $3
`, query, videoID, limit)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()
	var hits []LexicalHit
	for rows.Next() {
		var h LexicalHit
		if err := rows.Scan(&h.VideoID, &h.Content, &h.Rank); err != nil {
			return nil, err
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// SemanticCandidates returns chunk rows for similarity scoring. The
// stored embedding column is parsed exactly once here; rows whose value
// cannot be parsed into a vector of the expected length are skipped.
func (s *Store) SemanticCandidates(ctx context.Context, videoID string, limit int) ([]ChunkCandidate, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := s.DB.QueryContext(ctx, `
SELECT video_id, chunk_index, chunk_text, start_time, end_time, embedding
FROM transcript_chunks
WHERE ($1 = '' OR video_id = $1)
ORDER BY video_id, chunk_index
LIMIT $2
`, videoID, limit)
	if err != nil {
		return nil, fmt.Errorf("semantic candidates: %w", err)
	}
	defer rows.Close()
	var out []ChunkCandidate
	for rows.Next() {
		var (
			c   ChunkCandidate
			raw sql.NullString
		)
		if err := rows.Scan(&c.VideoID, &c.ChunkIndex, &c.Text, &c.StartTime, &c.EndTime, &raw); err != nil {
			return nil, err
		}
		if !raw.Valid {
			continue
		}
		vec, err := parseEmbedding(raw.String, s.EmbeddingDimensions)
		if err != nil {
			s.logger.Printf("warn: skipping chunk %s/%d: %v", c.VideoID, c.ChunkIndex, err)
			continue
		}
		c.Embedding = vec
		out = append(out, c)
	}
	return out, rows.Err()
}

// FetchFullTranscript loads one video's transcript.
func (s *Store) FetchFullTranscript(ctx context.Context, videoID string) (Transcript, bool, error) {
	var t Transcript
	err := s.DB.QueryRowContext(ctx, `
SELECT video_id, COALESCE(title,''), transcript, segment_count, total_duration
FROM videos
WHERE video_id = $1
`, videoID).Scan(&t.VideoID, &t.Title, &t.Content, &t.SegmentCount, &t.TotalDuration)
	if err == sql.ErrNoRows {
		return Transcript{}, false, nil
	}
	if err != nil {
		return Transcript{}, false, fmt.Errorf("fetch transcript: %w", err)
	}
	return t, true, nil
}

// ListTranscripts loads every stored transcript, used to build the
// in-memory lexical index at startup.
func (s *Store) ListTranscripts(ctx context.Context) ([]Transcript, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT video_id, COALESCE(title,''), transcript, segment_count, total_duration
FROM videos
ORDER BY video_id
`)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()
	var out []Transcript
	for rows.Next() {
		var t Transcript
		if err := rows.Scan(&t.VideoID, &t.Title, &t.Content, &t.SegmentCount, &t.TotalDuration); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// FindOrCreateSession resolves a session token to its id, creating the
// session when the token is empty or unknown. Returns id and token.
func (s *Store) FindOrCreateSession(ctx context.Context, token, videoID string) (string, string, error) {
	if token != "" {
		var id string
		err := s.DB.QueryRowContext(ctx,
			`SELECT id FROM sessions WHERE token = $1`, token).Scan(&id)
		if err == nil {
			return id, token, nil
		}
		if err != sql.ErrNoRows {
			return "", "", fmt.Errorf("find session: %w", err)
		}
	}
	if token == "" {
		token = uuid.NewString()
	}
	var id string
	err := s.DB.QueryRowContext(ctx, `
INSERT INTO sessions (token, video_id, created_at)
VALUES ($1, NULLIF($2,''), NOW())
RETURNING id
`, token, videoID).Scan(&id)
	if err != nil {
		return "", "", fmt.Errorf("create session: %w", err)
	}
	return id, token, nil
}

// AppendMessage persists one message of a session's exchange.
func (s *Store) AppendMessage(ctx context.Context, sessionID, role, content string, latencyMs int64) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO messages (session_id, role, content, latency_ms, created_at)
VALUES ($1, $2, $3, $4, NOW())
`, sessionID, role, content, latencyMs)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// ListMessages returns a session's messages oldest first, resolved by token.
func (s *Store) ListMessages(ctx context.Context, token string) ([]Message, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT m.role, m.content, m.latency_ms, m.created_at
FROM messages m
JOIN sessions s ON s.id = m.session_id
WHERE s.token = $1
ORDER BY m.created_at, m.id
`, token)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.Role, &m.Content, &m.LatencyMs, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// parseEmbedding normalises a stored embedding value into a []float32.
// Accepted forms are pgvector/JSON literals "[0.1,0.2]" and Postgres
// array literals "{0.1,0.2}". This is the only place embeddings are
// parsed; retrieval code downstream always sees fixed-length vectors.
func parseEmbedding(raw string, dims int) ([]float32, error) {
	t := strings.TrimSpace(raw)
	if len(t) < 2 {
		return nil, fmt.Errorf("embedding literal too short")
	}
	switch {
	case strings.HasPrefix(t, "[") && strings.HasSuffix(t, "]"):
		t = t[1 : len(t)-1]
	case strings.HasPrefix(t, "{") && strings.HasSuffix(t, "}"):
		t = t[1 : len(t)-1]
	default:
		return nil, fmt.Errorf("unrecognised embedding literal")
	}
	parts := strings.Split(t, ",")
	vec := make([]float32, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("parse embedding element: %w", err)
		}
		vec = append(vec, float32(f))
	}
	if dims > 0 && len(vec) != dims {
		return nil, fmt.Errorf("embedding dimensions mismatch (got %d want %d)", len(vec), dims)
	}
	return vec, nil
}
