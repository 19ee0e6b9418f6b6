package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionKey identifies one open wizard: one per requester and room.
type SessionKey struct {
	RequesterRef string
	RoomRef      string
}

func (k SessionKey) String() string {
	return "rentview:wizard:" + k.RequesterRef + ":" + k.RoomRef
}

// SessionStore keeps wizard snapshots between HTTP requests.
// Get returns nil, nil when no live session exists.
type SessionStore interface {
	Get(ctx context.Context, key SessionKey) (*Snapshot, error)
	Save(ctx context.Context, key SessionKey, snap Snapshot) error
	Delete(ctx context.Context, key SessionKey) error
}

type memorySession struct {
	snap      Snapshot
	updatedAt time.Time
}

// MemorySessionStore manages wizard sessions in process memory.
type MemorySessionStore struct {
	sessions map[SessionKey]*memorySession
	mu       sync.RWMutex
	timeout  time.Duration
	now      func() time.Time
}

// NewMemorySessionStore creates a new session store.
func NewMemorySessionStore(timeout time.Duration) *MemorySessionStore {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &MemorySessionStore{
		sessions: make(map[SessionKey]*memorySession),
		timeout:  timeout,
		now:      time.Now,
	}
}

func (ss *MemorySessionStore) expired(s *memorySession) bool {
	return ss.now().Sub(s.updatedAt) > ss.timeout
}

// Get returns the session snapshot, dropping it when expired.
func (ss *MemorySessionStore) Get(_ context.Context, key SessionKey) (*Snapshot, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	s, ok := ss.sessions[key]
	if !ok {
		return nil, nil
	}
	if ss.expired(s) {
		delete(ss.sessions, key)
		return nil, nil
	}
	snap := s.snap
	return &snap, nil
}

// Save stores the snapshot and refreshes its expiry.
func (ss *MemorySessionStore) Save(_ context.Context, key SessionKey, snap Snapshot) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.sessions[key] = &memorySession{snap: snap, updatedAt: ss.now()}
	return nil
}

// Delete removes a session.
func (ss *MemorySessionStore) Delete(_ context.Context, key SessionKey) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.sessions, key)
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (ss *MemorySessionStore) Len() int {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return len(ss.sessions)
}

// Cleanup removes expired sessions.
func (ss *MemorySessionStore) Cleanup() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	removed := 0
	for key, s := range ss.sessions {
		if ss.expired(s) {
			delete(ss.sessions, key)
			removed++
		}
	}
	return removed
}

// RedisSessionStore keeps snapshots as JSON values with a TTL.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore creates a redis-backed session store.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisSessionStore{client: client, ttl: ttl}
}

func (rs *RedisSessionStore) Get(ctx context.Context, key SessionKey) (*Snapshot, error) {
	data, err := rs.client.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get wizard session: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode wizard session: %w", err)
	}
	return &snap, nil
}

func (rs *RedisSessionStore) Save(ctx context.Context, key SessionKey, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode wizard session: %w", err)
	}
	if err := rs.client.Set(ctx, key.String(), data, rs.ttl).Err(); err != nil {
		return fmt.Errorf("save wizard session: %w", err)
	}
	return nil
}

func (rs *RedisSessionStore) Delete(ctx context.Context, key SessionKey) error {
	if err := rs.client.Del(ctx, key.String()).Err(); err != nil {
		return fmt.Errorf("delete wizard session: %w", err)
	}
	return nil
}
