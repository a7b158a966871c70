package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/skybrief/skybrief/internal/bsky"
	"github.com/skybrief/skybrief/internal/db"
	"github.com/skybrief/skybrief/internal/enrich"
	"github.com/skybrief/skybrief/internal/fetch"
	"github.com/skybrief/skybrief/internal/ingest"
	"github.com/skybrief/skybrief/internal/langdetect"
	"github.com/skybrief/skybrief/internal/links"
	"github.com/skybrief/skybrief/internal/newsdetect"
	"github.com/skybrief/skybrief/internal/queue"
)

func TestMain(m *testing.M) {
	// The language detector builds its preloaded models on first use; warm
	// it here so per-test timeouts cover pipeline work only.
	langdetect.DetectISO6391("the quick brown fox jumps over the lazy dog")
	os.Exit(m.Run())
}

const newsPage = `<!DOCTYPE html>
<html><head>
<title>Quake Shakes Capital</title>
<script type="application/ld+json">
{"@context":"https://schema.org","@type":"NewsArticle","headline":"Quake Shakes Capital","datePublished":"2025-06-01T08:00:00Z"}
</script>
</head><body><article><p>A strong earthquake shook the capital early on Sunday, officials said.</p></article></body></html>`

// fakePipelineStore backs the coordinator, the profile syncer and the
// enrichment service in one place so a test can observe the whole flow.
type fakePipelineStore struct {
	mu sync.Mutex

	sources  map[string]int64
	articles map[string]int64
	posts    map[string]int64
	shares   map[string]bool

	cleanedText   string
	chunksStored  int
	entitiesNamed []string
	syncedHandle  string

	articleShared chan struct{}
	entityMerged  chan struct{}
	profileSynced chan struct{}
}

func newFakePipelineStore() *fakePipelineStore {
	return &fakePipelineStore{
		sources:  make(map[string]int64),
		articles: make(map[string]int64),
		posts:    make(map[string]int64),
		shares:   make(map[string]bool),

		articleShared: make(chan struct{}, 1),
		entityMerged:  make(chan struct{}, 1),
		profileSynced: make(chan struct{}, 1),
	}
}

func (f *fakePipelineStore) FindOrCreateSource(_ context.Context, did string, _ time.Time) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.sources[did]; ok {
		return id, false, nil
	}
	id := int64(len(f.sources) + 1)
	f.sources[did] = id
	return id, true, nil
}

func (f *fakePipelineStore) FindOrCreateArticle(_ context.Context, article db.NewArticle, _ time.Time) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.articles[article.URL]; ok {
		return id, false, nil
	}
	id := int64(len(f.articles) + 1)
	f.articles[article.URL] = id
	return id, true, nil
}

func (f *fakePipelineStore) FindOrCreatePost(_ context.Context, post db.NewPost, _ time.Time) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.posts[post.URI]; ok {
		return id, false, nil
	}
	id := int64(len(f.posts) + 1)
	f.posts[post.URI] = id
	return id, true, nil
}

func (f *fakePipelineStore) FindOrCreateArticlePost(_ context.Context, articleID, postID int64, _ time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := fmt.Sprintf("%d:%d", articleID, postID)
	if f.shares[key] {
		return false, nil
	}
	f.shares[key] = true
	select {
	case f.articleShared <- struct{}{}:
	default:
	}
	return true, nil
}

func (f *fakePipelineStore) GetSourceProfile(_ context.Context, sourceID int64) (db.SourceProfile, error) {
	return db.SourceProfile{SourceID: sourceID, DID: "did:plc:tester"}, nil
}

func (f *fakePipelineStore) UpdateSourceProfile(_ context.Context, _ int64, handle, _, _ *string, _ time.Time) error {
	f.mu.Lock()
	if handle != nil {
		f.syncedHandle = *handle
	}
	f.mu.Unlock()
	select {
	case f.profileSynced <- struct{}{}:
	default:
	}
	return nil
}

func (f *fakePipelineStore) GetArticleContent(_ context.Context, articleID int64) (db.ArticleContent, error) {
	return db.ArticleContent{
		ArticleID:   articleID,
		URL:         "https://news.example/story",
		HTMLContent: newsPage,
	}, nil
}

func (f *fakePipelineStore) SetArticleCleanedText(_ context.Context, _ int64, cleanedText, _ string, _ time.Time) error {
	f.mu.Lock()
	f.cleanedText = cleanedText
	f.mu.Unlock()
	return nil
}

func (f *fakePipelineStore) InsertArticleChunk(_ context.Context, _ db.ChunkInsert, _ time.Time) (bool, error) {
	f.mu.Lock()
	f.chunksStored++
	f.mu.Unlock()
	return true, nil
}

func (f *fakePipelineStore) FindOrCreateEntity(_ context.Context, name, _, _ string, _ time.Time) (int64, bool, error) {
	f.mu.Lock()
	f.entitiesNamed = append(f.entitiesNamed, name)
	f.mu.Unlock()
	return int64(len(f.entitiesNamed)), true, nil
}

func (f *fakePipelineStore) MergeArticleEntity(_ context.Context, _, _ int64, _ int, _ []int, _ float64, _ time.Time) error {
	select {
	case f.entityMerged <- struct{}{}:
	default:
	}
	return nil
}

type fakeAppView struct{}

func (fakeAppView) GetPost(context.Context, string) (*bsky.PostView, error) { return nil, nil }

func (fakeAppView) GetProfile(context.Context, string) (*bsky.Profile, error) {
	return &bsky.Profile{DID: "did:plc:tester", Handle: "tester.bsky.social"}, nil
}

type fakeBackend struct{}

func (fakeBackend) GenerateEmbedding(_ context.Context, _, _ string) (enrich.Embedding, error) {
	return enrich.Embedding{Vector: make([]float64, db.EmbeddingDimensions), ModelVersion: "test-v1"}, nil
}

func (fakeBackend) ExtractEntities(_ context.Context, _ string) ([]enrich.EntityMention, error) {
	return []enrich.EntityMention{{Text: "Officials Bureau", Label: "ORG", Start: 40}}, nil
}

func newTestConsumer(t *testing.T, store *fakePipelineStore) (*Consumer, *queue.Memory) {
	t.Helper()
	return newTestConsumerWorkers(t, store, 4)
}

func newTestConsumerWorkers(t *testing.T, store *fakePipelineStore, workers int) (*Consumer, *queue.Memory) {
	t.Helper()

	logger := zerolog.Nop()
	events := queue.NewMemory(4)
	consumer, err := NewConsumer(
		events,
		links.NewExtractor(fakeAppView{}, logger),
		fetch.NewFetcher(2*time.Second),
		newsdetect.NewClassifier(logger),
		enrich.NewService(store, fakeBackend{}, "", logger),
		ingest.NewProfileSyncer(store, fakeAppView{}, logger),
		func(scheduler ingest.Scheduler) *ingest.Coordinator {
			return ingest.NewCoordinator(store, scheduler, logger)
		},
		Options{WorkerCount: workers, RetryAttempts: 2, RetryBase: time.Millisecond},
		logger,
	)
	if err != nil {
		t.Fatalf("failed to build consumer: %v", err)
	}
	return consumer, events
}

func eventWithLink(link string) json.RawMessage {
	payload := fmt.Sprintf(`{
		"did": "did:plc:tester",
		"commit": {
			"collection": "app.bsky.feed.post",
			"rkey": "3k2aexample",
			"record": {
				"text": "breaking news",
				"createdAt": "2025-06-01T09:00:00Z",
				"facets": [{"features": [{"$type": "app.bsky.richtext.facet#link", "uri": %q}]}]
			}
		}
	}`, link)
	return json.RawMessage(payload)
}

func awaitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestConsumerIngestsNewsLinkEndToEnd(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(newsPage))
	}))
	defer server.Close()

	store := newFakePipelineStore()
	consumer, events := newTestConsumer(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	if err := events.Enqueue(ctx, eventWithLink(server.URL)); err != nil {
		t.Fatalf("unexpected enqueue error: %v", err)
	}

	awaitSignal(t, store.articleShared, "article share")
	awaitSignal(t, store.entityMerged, "entity merge")
	awaitSignal(t, store.profileSynced, "profile sync")

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("unexpected consumer error: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if _, ok := store.sources["did:plc:tester"]; !ok {
		t.Fatal("expected the posting source to be recorded")
	}
	if len(store.articles) != 1 {
		t.Fatalf("expected one article, got %d", len(store.articles))
	}
	if _, ok := store.posts["at://did:plc:tester/app.bsky.feed.post/3k2aexample"]; !ok {
		t.Fatalf("expected the canonical post URI, got %v", store.posts)
	}
	if store.cleanedText == "" {
		t.Fatal("expected enrichment to store cleaned text")
	}
	if store.chunksStored == 0 {
		t.Fatal("expected enrichment to store at least one chunk")
	}
	if len(store.entitiesNamed) != 1 || store.entitiesNamed[0] != "Officials Bureau" {
		t.Fatalf("unexpected entities: %v", store.entitiesNamed)
	}
	if store.syncedHandle != "tester.bsky.social" {
		t.Fatalf("expected the synced handle, got %q", store.syncedHandle)
	}
}

func TestConsumerSingleWorkerCompletesFollowUps(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(newsPage))
	}))
	defer server.Close()

	store := newFakePipelineStore()
	// One worker saturates the event pool with the event itself; scheduling
	// profile sync and enrichment must still make progress.
	consumer, events := newTestConsumerWorkers(t, store, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	if err := events.Enqueue(ctx, eventWithLink(server.URL)); err != nil {
		t.Fatalf("unexpected enqueue error: %v", err)
	}

	awaitSignal(t, store.articleShared, "article share")
	awaitSignal(t, store.entityMerged, "entity merge")
	awaitSignal(t, store.profileSynced, "profile sync")

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("unexpected consumer error: %v", err)
	}
}

func TestConsumerDropsInvalidEvent(t *testing.T) {
	store := newFakePipelineStore()
	consumer, events := newTestConsumer(t, store)

	ctx := context.Background()
	if err := events.Enqueue(ctx, json.RawMessage(`{"not":"an event"}`)); err != nil {
		t.Fatalf("unexpected enqueue error: %v", err)
	}
	events.Close()

	if err := consumer.Run(ctx); err != nil {
		t.Fatalf("expected a clean shutdown, got %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.sources) != 0 || len(store.articles) != 0 {
		t.Fatal("invalid events must not reach the store")
	}
}

func TestConsumerSkipsNonNewsPages(t *testing.T) {
	fetched := make(chan struct{}, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<html><head><title>Shop</title></head><body><p>Buy now</p></body></html>`))
		select {
		case fetched <- struct{}{}:
		default:
		}
	}))
	defer server.Close()

	store := newFakePipelineStore()
	consumer, events := newTestConsumer(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	if err := events.Enqueue(ctx, eventWithLink(server.URL)); err != nil {
		t.Fatalf("unexpected enqueue error: %v", err)
	}

	awaitSignal(t, fetched, "page fetch")
	time.Sleep(50 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("unexpected consumer error: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.articles) != 0 {
		t.Fatal("a non-news page must not create an article")
	}
}
