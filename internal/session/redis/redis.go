package redis_session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mohammad-safakhou/vidqa/internal/session"
	"github.com/redis/go-redis/v9"
)

// Store keeps session buffers in Redis so conversations survive
// restarts and can be shared by multiple instances. Per-session
// serialisation is a process-local guarantee (one mutex per session
// id); deployments that route a session to a single instance get the
// full no-lost-update property.
type Store struct {
	client *redis.Client
	ttl    time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore creates a Redis-backed session buffer store.
func NewStore(addr, password string, db int, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		ttl:    ttl,
		locks:  make(map[string]*sync.Mutex),
	}
}

func key(sessionID string) string {
	return fmt.Sprintf("vidqa:session:%s:memory", sessionID)
}

func (s *Store) lockFor(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sessionID] = l
	}
	return l
}

func (s *Store) load(ctx context.Context, sessionID string) (session.Buffer, error) {
	var buf session.Buffer
	val, err := s.client.Get(ctx, key(sessionID)).Result()
	if err == redis.Nil {
		return buf, nil
	}
	if err != nil {
		return buf, fmt.Errorf("load session buffer: %w", err)
	}
	if err := json.Unmarshal([]byte(val), &buf); err != nil {
		return session.Buffer{}, fmt.Errorf("decode session buffer: %w", err)
	}
	return buf, nil
}

// Get returns the current buffer for a session.
func (s *Store) Get(ctx context.Context, sessionID string) (session.Buffer, error) {
	l := s.lockFor(sessionID)
	l.Lock()
	defer l.Unlock()
	return s.load(ctx, sessionID)
}

// Update applies fn to the stored buffer under the per-session lock and
// writes the result back with a refreshed TTL.
func (s *Store) Update(ctx context.Context, sessionID string, fn func(*session.Buffer) error) error {
	l := s.lockFor(sessionID)
	l.Lock()
	defer l.Unlock()

	buf, err := s.load(ctx, sessionID)
	if err != nil {
		return err
	}
	if err := fn(&buf); err != nil {
		return err
	}
	data, err := json.Marshal(buf)
	if err != nil {
		return fmt.Errorf("encode session buffer: %w", err)
	}
	if err := s.client.Set(ctx, key(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store session buffer: %w", err)
	}
	return nil
}

// Close releases the underlying Redis client.
func (s *Store) Close() error { return s.client.Close() }
