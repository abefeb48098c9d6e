package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/horus-ai-bot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// FactIndex is the durable record log behind the vector store. It owns exact
// content deduplication and ordered per-user listing; the vector side only
// answers similarity queries.
type FactIndex interface {
	// Insert records the fact unless an identical content already exists
	// for the owner. Returns the stored record and whether it was newly
	// inserted; on a duplicate, the previously stored fact is returned.
	Insert(ctx context.Context, fact models.MemoryFact) (models.MemoryFact, bool, error)
	// Remove undoes an Insert (used when the vector write fails).
	Remove(ctx context.Context, fact models.MemoryFact) error
	// AllByUser lists a user's facts in creation order. docType filters on
	// the metadata type tag; empty means all. limit <= 0 means no bound.
	AllByUser(ctx context.Context, ownerID, docType string, limit int) ([]models.MemoryFact, error)
	// Purge deletes all facts for the owner.
	Purge(ctx context.Context, ownerID string) error
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func factType(fact models.MemoryFact) string {
	if t, ok := fact.Metadata["type"].AsString(); ok {
		return t
	}
	return ""
}

// RedisFactIndex stores the fact log as a redis list per user, with a
// content-hash set guarding inserts. SADD is atomic, so two concurrent
// identical facts cannot both insert.
type RedisFactIndex struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisFactIndex(client *redis.Client, logger *logrus.Logger) *RedisFactIndex {
	return &RedisFactIndex{client: client, logger: logger}
}

func (r *RedisFactIndex) logKey(ownerID string) string {
	return fmt.Sprintf("facts:log:%s", ownerID)
}

func (r *RedisFactIndex) hashKey(ownerID string) string {
	return fmt.Sprintf("facts:hash:%s", ownerID)
}

func (r *RedisFactIndex) Insert(ctx context.Context, fact models.MemoryFact) (models.MemoryFact, bool, error) {
	added, err := r.client.SAdd(ctx, r.hashKey(fact.OwnerID), contentHash(fact.Content)).Result()
	if err != nil {
		return models.MemoryFact{}, false, fmt.Errorf("failed to reserve fact: %w", err)
	}

	if added == 0 {
		existing, err := r.findByContent(ctx, fact.OwnerID, fact.Content)
		if err != nil {
			return models.MemoryFact{}, false, err
		}
		if existing != nil {
			return *existing, false, nil
		}
		// Hash present without a record: a previous insert failed halfway.
		// Fall through and store the record.
	}

	data, err := json.Marshal(fact)
	if err != nil {
		return models.MemoryFact{}, false, fmt.Errorf("failed to marshal fact: %w", err)
	}
	if err := r.client.RPush(ctx, r.logKey(fact.OwnerID), data).Err(); err != nil {
		return models.MemoryFact{}, false, fmt.Errorf("failed to store fact: %w", err)
	}
	return fact, true, nil
}

func (r *RedisFactIndex) Remove(ctx context.Context, fact models.MemoryFact) error {
	data, err := json.Marshal(fact)
	if err != nil {
		return err
	}
	if err := r.client.LRem(ctx, r.logKey(fact.OwnerID), 1, data).Err(); err != nil {
		return err
	}
	return r.client.SRem(ctx, r.hashKey(fact.OwnerID), contentHash(fact.Content)).Err()
}

func (r *RedisFactIndex) AllByUser(ctx context.Context, ownerID, docType string, limit int) ([]models.MemoryFact, error) {
	entries, err := r.client.LRange(ctx, r.logKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read fact log: %w", err)
	}

	facts := make([]models.MemoryFact, 0, len(entries))
	for _, entry := range entries {
		var fact models.MemoryFact
		if err := json.Unmarshal([]byte(entry), &fact); err != nil {
			r.logger.WithError(err).Warn("Skipping unreadable fact record")
			continue
		}
		if docType != "" && factType(fact) != docType {
			continue
		}
		facts = append(facts, fact)
		if limit > 0 && len(facts) >= limit {
			break
		}
	}
	return facts, nil
}

func (r *RedisFactIndex) Purge(ctx context.Context, ownerID string) error {
	return r.client.Del(ctx, r.logKey(ownerID), r.hashKey(ownerID)).Err()
}

func (r *RedisFactIndex) findByContent(ctx context.Context, ownerID, content string) (*models.MemoryFact, error) {
	entries, err := r.client.LRange(ctx, r.logKey(ownerID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read fact log: %w", err)
	}
	for _, entry := range entries {
		var fact models.MemoryFact
		if err := json.Unmarshal([]byte(entry), &fact); err != nil {
			continue
		}
		if fact.Content == content {
			return &fact, nil
		}
	}
	return nil, nil
}

// MemoryFactIndex is the in-process fallback backend, mirroring the redis
// semantics under a single mutex.
type MemoryFactIndex struct {
	mu     sync.Mutex
	logs   map[string][]models.MemoryFact
	hashes map[string]map[string]bool
}

func NewMemoryFactIndex() *MemoryFactIndex {
	return &MemoryFactIndex{
		logs:   make(map[string][]models.MemoryFact),
		hashes: make(map[string]map[string]bool),
	}
}

func (m *MemoryFactIndex) Insert(ctx context.Context, fact models.MemoryFact) (models.MemoryFact, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	hashes := m.hashes[fact.OwnerID]
	if hashes == nil {
		hashes = make(map[string]bool)
		m.hashes[fact.OwnerID] = hashes
	}

	hash := contentHash(fact.Content)
	if hashes[hash] {
		for _, existing := range m.logs[fact.OwnerID] {
			if existing.Content == fact.Content {
				return existing, false, nil
			}
		}
	}

	hashes[hash] = true
	m.logs[fact.OwnerID] = append(m.logs[fact.OwnerID], fact)
	return fact, true, nil
}

func (m *MemoryFactIndex) Remove(ctx context.Context, fact models.MemoryFact) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := m.logs[fact.OwnerID]
	for i, existing := range log {
		if existing.ID == fact.ID {
			m.logs[fact.OwnerID] = append(log[:i], log[i+1:]...)
			break
		}
	}
	if hashes := m.hashes[fact.OwnerID]; hashes != nil {
		delete(hashes, contentHash(fact.Content))
	}
	return nil
}

func (m *MemoryFactIndex) AllByUser(ctx context.Context, ownerID, docType string, limit int) ([]models.MemoryFact, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	facts := make([]models.MemoryFact, 0, len(m.logs[ownerID]))
	for _, fact := range m.logs[ownerID] {
		if docType != "" && factType(fact) != docType {
			continue
		}
		facts = append(facts, fact)
		if limit > 0 && len(facts) >= limit {
			break
		}
	}
	return facts, nil
}

func (m *MemoryFactIndex) Purge(ctx context.Context, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.logs, ownerID)
	delete(m.hashes, ownerID)
	return nil
}
