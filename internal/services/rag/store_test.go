package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/horus-ai-bot-go/internal/models"
)

// MockEmbedder returns canned vectors keyed by text, so similarity is fully
// deterministic without a running embedding server.
type MockEmbedder struct {
	vectors map[string][]float32
	fail    bool
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.fail {
		return nil, errors.New("embedding backend down")
	}
	if v, ok := m.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func newTestStore(t *testing.T, embedder Embedder) *Store {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	store, err := NewStore("", NewMemoryFactIndex(), embedder, logger)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return store
}

func TestAddDocumentAssignsIDAndLists(t *testing.T) {
	store := newTestStore(t, &MockEmbedder{})
	ctx := context.Background()

	fact, err := store.AddDocument(ctx, models.MemoryFact{
		Content: "likes jazz",
		OwnerID: "42",
		Source:  "model-disclosed",
		Metadata: map[string]models.Value{
			"type": models.String("memory"),
		},
	})
	if err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}
	if fact.ID == "" {
		t.Error("Expected a generated ID")
	}
	if fact.CreatedAt.IsZero() {
		t.Error("Expected CreatedAt to be set")
	}

	facts, err := store.AllByUser(ctx, "42", "memory", 0)
	if err != nil {
		t.Fatalf("AllByUser failed: %v", err)
	}
	if len(facts) != 1 || facts[0].Content != "likes jazz" {
		t.Errorf("Expected the stored fact, got %v", facts)
	}
}

func TestAddDocumentDeduplicatesContent(t *testing.T) {
	store := newTestStore(t, &MockEmbedder{})
	ctx := context.Background()

	first, err := store.AddDocument(ctx, models.MemoryFact{Content: "likes jazz", OwnerID: "42"})
	if err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}
	second, err := store.AddDocument(ctx, models.MemoryFact{Content: "likes jazz", OwnerID: "42"})
	if err != nil {
		t.Fatalf("Duplicate AddDocument failed: %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("Duplicate insert should return the original record, got %s vs %s", second.ID, first.ID)
	}

	facts, _ := store.AllByUser(ctx, "42", "", 0)
	if len(facts) != 1 {
		t.Errorf("Expected a single record after duplicate insert, got %d", len(facts))
	}
}

func TestDeduplicationIsPerOwner(t *testing.T) {
	store := newTestStore(t, &MockEmbedder{})
	ctx := context.Background()

	if _, err := store.AddDocument(ctx, models.MemoryFact{Content: "likes jazz", OwnerID: "1"}); err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}
	if _, err := store.AddDocument(ctx, models.MemoryFact{Content: "likes jazz", OwnerID: "2"}); err != nil {
		t.Fatalf("AddDocument for second owner failed: %v", err)
	}

	one, _ := store.AllByUser(ctx, "1", "", 0)
	two, _ := store.AllByUser(ctx, "2", "", 0)
	if len(one) != 1 || len(two) != 1 {
		t.Errorf("Same content must be storable per owner, got %d and %d", len(one), len(two))
	}
}

func TestSearchSimilarFiltersByThreshold(t *testing.T) {
	embedder := &MockEmbedder{vectors: map[string][]float32{
		"likes jazz":       {1, 0, 0},
		"enjoys saxophone": {0.9, 0.1, 0},
		"owns a bicycle":   {0, 1, 0},
		"jazz music":       {1, 0, 0},
	}}
	store := newTestStore(t, embedder)
	ctx := context.Background()

	for _, content := range []string{"likes jazz", "enjoys saxophone", "owns a bicycle"} {
		if _, err := store.AddDocument(ctx, models.MemoryFact{Content: content, OwnerID: "42"}); err != nil {
			t.Fatalf("AddDocument failed: %v", err)
		}
	}

	docs, err := store.SearchSimilar(ctx, "42", "jazz music", 3, 0.8)
	if err != nil {
		t.Fatalf("SearchSimilar failed: %v", err)
	}
	for _, doc := range docs {
		if doc.Fact.Content == "owns a bicycle" {
			t.Errorf("Unrelated document passed the threshold: %+v", doc)
		}
		if doc.Similarity < 0.8 {
			t.Errorf("Result below threshold: %+v", doc)
		}
	}
	if len(docs) == 0 {
		t.Error("Expected at least the exact-vector match")
	}
}

func TestSearchSimilarEmptyCollection(t *testing.T) {
	store := newTestStore(t, &MockEmbedder{})

	docs, err := store.SearchSimilar(context.Background(), "nobody", "anything", 5, 0.5)
	if err != nil {
		t.Fatalf("SearchSimilar on empty collection failed: %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("Expected no results, got %d", len(docs))
	}
}

func TestAddDocumentRollsBackOnEmbedFailure(t *testing.T) {
	embedder := &MockEmbedder{fail: true}
	store := newTestStore(t, embedder)
	ctx := context.Background()

	if _, err := store.AddDocument(ctx, models.MemoryFact{Content: "likes jazz", OwnerID: "42"}); err == nil {
		t.Fatal("Expected error when embedding fails")
	}

	facts, _ := store.AllByUser(ctx, "42", "", 0)
	if len(facts) != 0 {
		t.Errorf("Failed insert must not leave an index record, got %d", len(facts))
	}

	// After the backend recovers the same content inserts cleanly.
	embedder.fail = false
	if _, err := store.AddDocument(ctx, models.MemoryFact{Content: "likes jazz", OwnerID: "42"}); err != nil {
		t.Fatalf("Insert after recovery failed: %v", err)
	}
	facts, _ = store.AllByUser(ctx, "42", "", 0)
	if len(facts) != 1 {
		t.Errorf("Expected one record after recovery, got %d", len(facts))
	}
}

func TestSearchArchivedResultsBySimilarity(t *testing.T) {
	embedder := &MockEmbedder{vectors: map[string][]float32{
		"The Go language homepage": {1, 0, 0},
		"A cake recipe":            {0, 1, 0},
		"go programming":           {1, 0, 0},
	}}
	store := newTestStore(t, embedder)
	ctx := context.Background()

	store.ArchiveSearchResult(ctx, "https://go.dev", "The Go language homepage", "Go")
	store.ArchiveSearchResult(ctx, "https://cakes.example", "A cake recipe", "Cakes")

	facts, err := store.SearchArchivedResults(ctx, "go programming", 5)
	if err != nil {
		t.Fatalf("SearchArchivedResults failed: %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("Expected only the similar archive entry, got %d", len(facts))
	}
	if facts[0].Content != "The Go language homepage" {
		t.Errorf("Unexpected archived content: %q", facts[0].Content)
	}
	if u, _ := facts[0].Metadata["url"].AsString(); u != "https://go.dev" {
		t.Errorf("Archived url must survive retrieval, got %q", u)
	}
	if s, _ := facts[0].Metadata["summary"].AsString(); s != "Go" {
		t.Errorf("Archived summary must survive retrieval, got %q", s)
	}
}

func TestSearchArchivedResultsRecencyFallback(t *testing.T) {
	embedder := &MockEmbedder{vectors: map[string][]float32{
		"old page":      {0, 1, 0},
		"newer page":    {0, 1, 0},
		"newest page":   {0, 1, 0},
		"unrelated ask": {1, 0, 0},
	}}
	store := newTestStore(t, embedder)
	ctx := context.Background()

	for _, content := range []string{"old page", "newer page", "newest page"} {
		store.ArchiveSearchResult(ctx, "https://example.com/"+content, content, content)
	}

	facts, err := store.SearchArchivedResults(ctx, "unrelated ask", 2)
	if err != nil {
		t.Fatalf("SearchArchivedResults failed: %v", err)
	}
	if len(facts) != 2 {
		t.Fatalf("Expected the 2 most recent archives, got %d", len(facts))
	}
	if facts[0].Content != "newer page" || facts[1].Content != "newest page" {
		t.Errorf("Fallback should keep the newest entries, got %q and %q", facts[0].Content, facts[1].Content)
	}
}

func TestSearchArchivedResultsExcludeMemories(t *testing.T) {
	embedder := &MockEmbedder{vectors: map[string][]float32{
		"likes jazz": {1, 0, 0},
		"jazz query": {1, 0, 0},
	}}
	store := newTestStore(t, embedder)
	ctx := context.Background()

	// A memory fact stored under the global owner must never surface as a
	// search result.
	if _, err := store.AddDocument(ctx, models.MemoryFact{
		Content:  "likes jazz",
		Metadata: map[string]models.Value{"type": models.String("memory")},
	}); err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}

	facts, err := store.SearchArchivedResults(ctx, "jazz query", 5)
	if err != nil {
		t.Fatalf("SearchArchivedResults failed: %v", err)
	}
	if len(facts) != 0 {
		t.Errorf("Non-search documents must be filtered out, got %v", facts)
	}
}

func TestPurgeUserRemovesEverything(t *testing.T) {
	store := newTestStore(t, &MockEmbedder{})
	ctx := context.Background()

	if _, err := store.AddDocument(ctx, models.MemoryFact{Content: "likes jazz", OwnerID: "42"}); err != nil {
		t.Fatalf("AddDocument failed: %v", err)
	}
	if err := store.PurgeUser(ctx, "42"); err != nil {
		t.Fatalf("PurgeUser failed: %v", err)
	}

	facts, _ := store.AllByUser(ctx, "42", "", 0)
	if len(facts) != 0 {
		t.Errorf("Expected no records after purge, got %d", len(facts))
	}

	// Purged content can be stored again.
	if _, err := store.AddDocument(ctx, models.MemoryFact{Content: "likes jazz", OwnerID: "42"}); err != nil {
		t.Fatalf("Insert after purge failed: %v", err)
	}
}
