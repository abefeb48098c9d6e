// Package history keeps the per-user append-only conversation log.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/horus-ai-bot-go/internal/clock"
	"github.com/horus-ai-bot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// DefaultWindow bounds Recent when the caller passes no limit.
const DefaultWindow = 50

// Store is the per-user chat log. Messages are immutable once appended and
// always read in chronological order.
type Store interface {
	Append(ctx context.Context, role, content, userID string) error
	Recent(ctx context.Context, userID string, limit int) ([]models.ChatMessage, error)
	Clear(ctx context.Context, userID string) error
	AppendBatch(ctx context.Context, userID string, messages []models.ChatMessage) error
}

// RedisStore keeps each user's log as a redis list, pushed to the tail.
type RedisStore struct {
	client *redis.Client
	clk    clock.Clock
	logger *logrus.Logger
}

// NewRedisStore creates the redis-backed log. clk may be nil, which means
// the system clock.
func NewRedisStore(client *redis.Client, clk clock.Clock, logger *logrus.Logger) *RedisStore {
	if clk == nil {
		clk = clock.System()
	}
	return &RedisStore{client: client, clk: clk, logger: logger}
}

func historyKey(userID string) string {
	return fmt.Sprintf("chat:history:%s", userID)
}

func (r *RedisStore) Append(ctx context.Context, role, content, userID string) error {
	msg := models.ChatMessage{
		Role:      role,
		Content:   content,
		UserID:    userID,
		Timestamp: r.clk.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return r.client.RPush(ctx, historyKey(userID), data).Err()
}

// Recent returns at most limit of the latest messages, oldest first.
// Negative list indexes ask redis for the tail of the log.
func (r *RedisStore) Recent(ctx context.Context, userID string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultWindow
	}

	entries, err := r.client.LRange(ctx, historyKey(userID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	messages := make([]models.ChatMessage, 0, len(entries))
	for _, entry := range entries {
		var msg models.ChatMessage
		if err := json.Unmarshal([]byte(entry), &msg); err != nil {
			r.logger.WithError(err).Warn("Skipping unreadable history entry")
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (r *RedisStore) Clear(ctx context.Context, userID string) error {
	return r.client.Del(ctx, historyKey(userID)).Err()
}

func (r *RedisStore) AppendBatch(ctx context.Context, userID string, messages []models.ChatMessage) error {
	for _, msg := range messages {
		if err := r.Append(ctx, msg.Role, msg.Content, userID); err != nil {
			return err
		}
	}
	return nil
}

// MemoryStore is the in-process backend, used in tests and single-node runs.
type MemoryStore struct {
	mu   sync.RWMutex
	clk  clock.Clock
	logs map[string][]models.ChatMessage
}

// NewMemoryStore creates the in-process log. clk may be nil, which means the
// system clock.
func NewMemoryStore(clk clock.Clock) *MemoryStore {
	if clk == nil {
		clk = clock.System()
	}
	return &MemoryStore{clk: clk, logs: make(map[string][]models.ChatMessage)}
}

func (m *MemoryStore) Append(ctx context.Context, role, content, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs[userID] = append(m.logs[userID], models.ChatMessage{
		Role:      role,
		Content:   content,
		UserID:    userID,
		Timestamp: m.clk.Now().UTC(),
	})
	return nil
}

func (m *MemoryStore) Recent(ctx context.Context, userID string, limit int) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultWindow
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	log := m.logs[userID]
	if len(log) > limit {
		log = log[len(log)-limit:]
	}
	out := make([]models.ChatMessage, len(log))
	copy(out, log)
	return out, nil
}

func (m *MemoryStore) Clear(ctx context.Context, userID string) error {
	m.mu.Lock()
	delete(m.logs, userID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) AppendBatch(ctx context.Context, userID string, messages []models.ChatMessage) error {
	for _, msg := range messages {
		if err := m.Append(ctx, msg.Role, msg.Content, userID); err != nil {
			return err
		}
	}
	return nil
}
