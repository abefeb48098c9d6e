// Package memory implements user-scoped long-term memory on top of the rag
// store: retrieval for prompt augmentation, write-back of disclosed facts and
// extraction of memory tags from model replies.
package memory

import (
	"context"
	"fmt"

	gocache "github.com/patrickmn/go-cache"

	"github.com/horus-ai-bot-go/internal/clock"
	"github.com/horus-ai-bot-go/internal/config"
	"github.com/horus-ai-bot-go/internal/models"
	"github.com/sirupsen/logrus"
)

const typeMemory = "memory"

// DocumentStore is the slice of rag.Store the provider needs.
type DocumentStore interface {
	AddDocument(ctx context.Context, fact models.MemoryFact) (models.MemoryFact, error)
	SearchSimilar(ctx context.Context, ownerID, query string, limit int, minSimilarity float32) ([]models.RetrievedDocument, error)
	AllByUser(ctx context.Context, ownerID, docType string, limit int) ([]models.MemoryFact, error)
	PurgeUser(ctx context.Context, ownerID string) error
}

// OpMetrics records memory operations. Satisfied by middleware.Metrics.
type OpMetrics interface {
	RecordMemoryOperation(operation, status string)
}

// Provider enforces the memory failure policy: read failures degrade to an
// empty result and write failures to false, so a broken memory backend never
// aborts a generation request.
type Provider struct {
	store         DocumentStore
	snapshots     *gocache.Cache
	searchLimit   int
	minSimilarity float32
	clk           clock.Clock
	metrics       OpMetrics
	logger        *logrus.Logger
}

// NewProvider creates the memory provider. clk may be nil, which means the
// system clock; metrics may be nil.
func NewProvider(store DocumentStore, cfg *config.MemoryConfig, clk clock.Clock, metrics OpMetrics, logger *logrus.Logger) *Provider {
	if clk == nil {
		clk = clock.System()
	}
	return &Provider{
		store:         store,
		snapshots:     gocache.New(cfg.SnapshotTTL, cfg.SnapshotTTL*2),
		searchLimit:   cfg.SearchLimit,
		minSimilarity: cfg.MinSimilarity,
		clk:           clk,
		metrics:       metrics,
		logger:        logger,
	}
}

func snapshotKey(userID string) string {
	return fmt.Sprintf("user_memories_%s", userID)
}

// RelevantMemories returns the facts most similar to the query, scoped to
// the user. Errors degrade to an empty result.
func (p *Provider) RelevantMemories(ctx context.Context, userID, query string) []models.MemoryFact {
	if userID == "" {
		return nil
	}

	docs, err := p.store.SearchSimilar(ctx, userID, query, p.searchLimit, p.minSimilarity)
	if err != nil {
		p.logger.WithError(err).WithField("user_id", userID).Error("Failed to search memories")
		p.recordOp("search", "error")
		return nil
	}
	p.recordOp("search", "success")

	facts := make([]models.MemoryFact, 0, len(docs))
	for _, doc := range docs {
		if t, _ := doc.Fact.Metadata["type"].AsString(); t != typeMemory {
			continue
		}
		facts = append(facts, doc.Fact)
	}
	return facts
}

// Memories lists all of the user's memory facts in creation order, from a
// short-lived snapshot cache when available. Errors degrade to empty.
func (p *Provider) Memories(ctx context.Context, userID string) []models.MemoryFact {
	if userID == "" {
		return nil
	}

	if cached, found := p.snapshots.Get(snapshotKey(userID)); found {
		return cached.([]models.MemoryFact)
	}

	facts, err := p.store.AllByUser(ctx, userID, typeMemory, 0)
	if err != nil {
		p.logger.WithError(err).WithField("user_id", userID).Error("Failed to list memories")
		p.recordOp("list", "error")
		return nil
	}
	p.recordOp("list", "success")

	p.snapshots.SetDefault(snapshotKey(userID), facts)
	return facts
}

// Store persists one fact for the user. Returns false on any failure or when
// the owner is unknown; never errors out.
func (p *Provider) Store(ctx context.Context, userID, content, source string, metadata map[string]models.Value) bool {
	if userID == "" {
		return false
	}

	merged := map[string]models.Value{
		"type": models.String(typeMemory),
	}
	for k, v := range metadata {
		merged[k] = v
	}

	_, err := p.store.AddDocument(ctx, models.MemoryFact{
		Content:   content,
		OwnerID:   userID,
		Source:    source,
		CreatedAt: p.clk.Now().UTC(),
		Metadata:  merged,
	})
	if err != nil {
		p.logger.WithError(err).WithField("user_id", userID).Error("Failed to store memory")
		p.recordOp("store", "error")
		return false
	}
	p.recordOp("store", "success")

	p.snapshots.Delete(snapshotKey(userID))
	return true
}

// Clear irreversibly deletes all of the user's memories.
func (p *Provider) Clear(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	if err := p.store.PurgeUser(ctx, userID); err != nil {
		p.recordOp("purge", "error")
		return err
	}
	p.recordOp("purge", "success")
	p.snapshots.Delete(snapshotKey(userID))
	return nil
}

// ArchiveWorkingMemory stores the raw user prompt as a working-memory
// document for future retrieval. Best-effort.
func (p *Provider) ArchiveWorkingMemory(ctx context.Context, userID, prompt string) {
	if userID == "" {
		return
	}
	_, err := p.store.AddDocument(ctx, models.MemoryFact{
		Content:   prompt,
		OwnerID:   userID,
		Source:    "user-prompt",
		CreatedAt: p.clk.Now().UTC(),
		Metadata: map[string]models.Value{
			"type": models.String("working_memory"),
		},
	})
	if err != nil {
		p.logger.WithError(err).WithField("user_id", userID).Warn("Failed to archive working memory")
	}
}

func (p *Provider) recordOp(operation, status string) {
	if p.metrics != nil {
		p.metrics.RecordMemoryOperation(operation, status)
	}
}
