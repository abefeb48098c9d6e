package rag

import (
	"context"
	"fmt"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/google/uuid"
	"github.com/horus-ai-bot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// Store is the vector-capable document store: chromem-go collections hold
// the embeddings (one collection per user for namespace isolation) while a
// FactIndex keeps the ordered record log and dedup guard.
type Store struct {
	db          *chromem.DB
	collections map[string]*chromem.Collection
	mu          sync.RWMutex
	index       FactIndex
	embedder    Embedder
	logger      *logrus.Logger
}

// NewStore opens the vector database. An empty path keeps everything
// in memory; otherwise chromem persists to disk.
func NewStore(path string, index FactIndex, embedder Embedder, logger *logrus.Logger) (*Store, error) {
	var (
		db  *chromem.DB
		err error
	)
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
		if err != nil {
			return nil, fmt.Errorf("failed to open vector database: %w", err)
		}
	}

	return &Store{
		db:          db,
		collections: make(map[string]*chromem.Collection),
		index:       index,
		embedder:    embedder,
		logger:      logger,
	}, nil
}

func collectionName(ownerID string) string {
	if ownerID == "" {
		return "global"
	}
	return fmt.Sprintf("user_%s", ownerID)
}

func (s *Store) collection(ownerID string) (*chromem.Collection, error) {
	s.mu.RLock()
	col, exists := s.collections[ownerID]
	s.mu.RUnlock()
	if exists {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, exists := s.collections[ownerID]; exists {
		return col, nil
	}

	col, err := s.db.GetOrCreateCollection(collectionName(ownerID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection: %w", err)
	}
	s.collections[ownerID] = col
	return col, nil
}

// AddDocument stores a fact unless an identical content already exists for
// the same owner, in which case the existing record is returned. The dedup
// guard is atomic at the index layer, so concurrent identical inserts
// resolve to a single record.
func (s *Store) AddDocument(ctx context.Context, fact models.MemoryFact) (models.MemoryFact, error) {
	if fact.ID == "" {
		fact.ID = uuid.NewString()
	}
	if fact.CreatedAt.IsZero() {
		fact.CreatedAt = time.Now().UTC()
	}

	stored, inserted, err := s.index.Insert(ctx, fact)
	if err != nil {
		return models.MemoryFact{}, err
	}
	if !inserted {
		s.logger.WithField("fact", truncate(fact.Content, 80)).Info("Document already exists, skipping")
		return stored, nil
	}

	embedding, err := s.embedder.Embed(ctx, fact.Content)
	if err != nil {
		s.rollback(ctx, fact)
		return models.MemoryFact{}, fmt.Errorf("failed to embed document: %w", err)
	}

	col, err := s.collection(fact.OwnerID)
	if err != nil {
		s.rollback(ctx, fact)
		return models.MemoryFact{}, err
	}

	metadata := map[string]string{
		"fact_id":    fact.ID,
		"owner_id":   fact.OwnerID,
		"type":       factType(fact),
		"source":     fact.Source,
		"created_at": fact.CreatedAt.Format(time.RFC3339),
	}
	for k, v := range fact.Metadata {
		if _, reserved := metadata[k]; reserved {
			continue
		}
		if s, ok := v.AsString(); ok {
			metadata[k] = s
		}
	}

	doc := chromem.Document{
		ID:        fact.ID,
		Content:   fact.Content,
		Embedding: embedding,
		Metadata:  metadata,
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		s.rollback(ctx, fact)
		return models.MemoryFact{}, fmt.Errorf("failed to add document: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"id":    fact.ID,
		"owner": fact.OwnerID,
		"type":  factType(fact),
	}).Info("Document added")
	return fact, nil
}

func (s *Store) rollback(ctx context.Context, fact models.MemoryFact) {
	if err := s.index.Remove(ctx, fact); err != nil {
		s.logger.WithError(err).Warn("Failed to roll back fact index entry")
	}
}

// SearchSimilar returns up to limit documents whose similarity to the query
// exceeds minSimilarity, ordered by similarity descending. No match is an
// empty result, not an error.
func (s *Store) SearchSimilar(ctx context.Context, ownerID, query string, limit int, minSimilarity float32) ([]models.RetrievedDocument, error) {
	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	col, err := s.collection(ownerID)
	if err != nil {
		return nil, err
	}

	// chromem rejects nResults above the collection size.
	n := limit
	if count := col.Count(); count < n {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, embedding, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("similarity query failed: %w", err)
	}

	docs := make([]models.RetrievedDocument, 0, len(results))
	for _, result := range results {
		if result.Similarity < minSimilarity {
			continue
		}
		docs = append(docs, models.RetrievedDocument{
			Fact:       factFromResult(ownerID, result),
			Similarity: result.Similarity,
		})
	}
	return docs, nil
}

// AllByUser lists a user's documents in creation order.
func (s *Store) AllByUser(ctx context.Context, ownerID, docType string, limit int) ([]models.MemoryFact, error) {
	return s.index.AllByUser(ctx, ownerID, docType, limit)
}

// PurgeUser irreversibly deletes everything stored for the owner.
func (s *Store) PurgeUser(ctx context.Context, ownerID string) error {
	if err := s.index.Purge(ctx, ownerID); err != nil {
		return fmt.Errorf("failed to purge fact index: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, ownerID)
	if err := s.db.DeleteCollection(collectionName(ownerID)); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

const typeSearchResult = "search_result"

// Archived results must clear a lower bar than personal memories; anything
// below this is noise rather than a usable prior result.
const archivedResultFloor float32 = 0.5

// ArchiveSearchResult stores a fetched web result as a global document,
// retrievable later through SearchArchivedResults. Best-effort: failures are
// only logged.
func (s *Store) ArchiveSearchResult(ctx context.Context, pageURL, content, summary string) {
	fact := models.MemoryFact{
		Content: content,
		Source:  "web-search",
		Metadata: map[string]models.Value{
			"type":    models.String(typeSearchResult),
			"url":     models.String(pageURL),
			"summary": models.String(summary),
		},
	}
	if _, err := s.AddDocument(ctx, fact); err != nil {
		s.logger.WithError(err).WithField("url", pageURL).Warn("Failed to archive search result")
	}
}

// SearchArchivedResults returns previously archived web results similar to
// the query. When nothing clears the similarity floor it falls back to the
// most recently archived results, so a stale archive still beats no answer.
func (s *Store) SearchArchivedResults(ctx context.Context, query string, limit int) ([]models.MemoryFact, error) {
	docs, err := s.SearchSimilar(ctx, "", query, limit, archivedResultFloor)
	if err != nil {
		return nil, err
	}

	facts := make([]models.MemoryFact, 0, len(docs))
	for _, doc := range docs {
		if t, _ := doc.Fact.Metadata["type"].AsString(); t != typeSearchResult {
			continue
		}
		facts = append(facts, doc.Fact)
	}
	if len(facts) > 0 {
		return facts, nil
	}

	all, err := s.index.AllByUser(ctx, "", typeSearchResult, 0)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	return all, nil
}

func factFromResult(ownerID string, result chromem.Result) models.MemoryFact {
	createdAt, _ := time.Parse(time.RFC3339, result.Metadata["created_at"])

	metadata := make(map[string]models.Value, len(result.Metadata))
	for k, v := range result.Metadata {
		switch k {
		case "fact_id", "owner_id", "source", "created_at":
		default:
			metadata[k] = models.String(v)
		}
	}

	return models.MemoryFact{
		ID:        result.Metadata["fact_id"],
		Content:   result.Content,
		OwnerID:   ownerID,
		Source:    result.Metadata["source"],
		CreatedAt: createdAt,
		Metadata:  metadata,
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
