package rank

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/merlian/merlian/pkg/backend"
	"github.com/merlian/merlian/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestBackend(t *testing.T) *backend.Backend {
	t.Helper()

	b := backend.New(&backend.MockProvider{Dim: 32}, backend.DeviceCPU)
	if err := b.Warm(context.Background()); err != nil {
		t.Fatalf("Failed to warm backend: %v", err)
	}
	return b
}

// addAsset 写入一条测试资产并返回最终ID
func addAsset(t *testing.T, s *store.Store, libID, path, ocrText string, vec []float32) string {
	t.Helper()

	id, err := s.UpsertAsset(&store.Asset{
		LibraryID: libID,
		Path:      path,
		SizeBytes: 1024,
		MTimeNS:   time.Now().UnixNano(),
		Width:     800,
		Height:    600,
		OCRText:   ocrText,
	}, vec)
	if err != nil {
		t.Fatalf("Failed to upsert asset: %v", err)
	}
	return id
}

func TestSearchRejectsUnknownMode(t *testing.T) {
	s := newTestStore(t)
	b := newTestBackend(t)
	r := New(s, b, DefaultWeights())

	_, err := r.Search(context.Background(), "cat", 5, Mode("fuzzy"))
	if !errors.Is(err, ErrUnknownMode) {
		t.Fatalf("Expected ErrUnknownMode, got %v", err)
	}
}

func TestHybridTextyQueryRanksTextFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := newTestBackend(t)
	emb, _ := b.Embedder()

	lib, err := s.AddLibrary("/tmp/shots")
	if err != nil {
		t.Fatal(err)
	}

	queryVec, err := emb.EmbedText(ctx, "error 403")
	if err != nil {
		t.Fatal(err)
	}
	otherVec, err := emb.EmbedText(ctx, "sunset over the ocean")
	if err != nil {
		t.Fatal(err)
	}

	// textID的OCR命中全部查询词元，visID与查询向量完全一致
	textID := addAsset(t, s, lib.ID, "/tmp/shots/forbidden.png", "HTTP 403 Forbidden error page", otherVec)
	visID := addAsset(t, s, lib.ID, "/tmp/shots/beach.png", "", queryVec)

	r := New(s, b, DefaultWeights())
	results, err := r.Search(ctx, "error 403", 5, ModeHybrid)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}

	// 带数字的查询文本权重提升到0.80，OCR全命中压过完美视觉匹配
	if results[0].Asset.ID != textID {
		t.Errorf("Expected %s first, got %s", textID, results[0].Asset.ID)
	}
	if results[0].TextScore != 1.0 {
		t.Errorf("Expected full token overlap, got %f", results[0].TextScore)
	}

	found403 := false
	for _, tok := range results[0].MatchedTokens {
		if tok == "403" {
			found403 = true
		}
	}
	if !found403 {
		t.Errorf("Expected matched tokens to include 403, got %v", results[0].MatchedTokens)
	}

	// 没有OCR的资产文本分为0但不被剔除
	if results[1].Asset.ID != visID {
		t.Errorf("Expected %s second, got %s", visID, results[1].Asset.ID)
	}
	if results[1].TextScore != 0 {
		t.Errorf("Expected zero text score without OCR, got %f", results[1].TextScore)
	}
	if results[1].Rank != 2 {
		t.Errorf("Expected rank 2, got %d", results[1].Rank)
	}
}

func TestVisualModeIgnoresOCR(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := newTestBackend(t)
	emb, _ := b.Embedder()

	lib, _ := s.AddLibrary("/tmp/shots")

	queryVec, _ := emb.EmbedText(ctx, "red square")
	otherVec, _ := emb.EmbedText(ctx, "invoice scan")

	visID := addAsset(t, s, lib.ID, "/tmp/shots/red.png", "", queryVec)
	addAsset(t, s, lib.ID, "/tmp/shots/invoice.png", "red square red square", otherVec)

	r := New(s, b, DefaultWeights())
	results, err := r.Search(ctx, "red square", 5, ModeVisual)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("Expected results")
	}
	if results[0].Asset.ID != visID {
		t.Errorf("Expected exact vector match first, got %s", results[0].Asset.ID)
	}
	if results[0].Score < 0.99 {
		t.Errorf("Expected near-perfect visual score, got %f", results[0].Score)
	}
	if results[0].TextScore != 0 {
		t.Errorf("Visual mode should not compute text score, got %f", results[0].TextScore)
	}
}

func TestColdBackendDegradation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	warm := newTestBackend(t)
	emb, _ := warm.Embedder()

	lib, _ := s.AddLibrary("/tmp/shots")
	vec, _ := emb.EmbedText(ctx, "anything")
	id := addAsset(t, s, lib.ID, "/tmp/shots/receipt.png", "grocery receipt total 42.50", vec)

	// 未预热的后端
	cold := backend.New(&backend.MockProvider{Dim: 32}, backend.DeviceCPU)
	r := New(s, cold, DefaultWeights())

	// 纯视觉模式直接报错
	if _, err := r.Search(ctx, "receipt", 5, ModeVisual); !errors.Is(err, backend.ErrNotReady) {
		t.Fatalf("Expected ErrNotReady, got %v", err)
	}

	// 混合模式降级为纯文本，查询仍然可用
	results, err := r.Search(ctx, "grocery receipt", 5, ModeHybrid)
	if err != nil {
		t.Fatalf("Degraded hybrid search failed: %v", err)
	}
	if len(results) != 1 || results[0].Asset.ID != id {
		t.Fatalf("Expected text-only hit, got %v", results)
	}
	if results[0].VisualScore != 0 {
		t.Errorf("Expected zero visual score when degraded, got %f", results[0].VisualScore)
	}
}

func TestDupSuppressionBeforeTopK(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := newTestBackend(t)
	emb, _ := b.Embedder()

	lib, _ := s.AddLibrary("/tmp/shots")
	vec, _ := emb.EmbedText(ctx, "dashboard")

	repID := addAsset(t, s, lib.ID, "/tmp/shots/dash-1.png", "dashboard metrics", vec)
	dupID := addAsset(t, s, lib.ID, "/tmp/shots/dash-2.png", "dashboard metrics", vec)

	// dup指向rep，rep是组代表
	if err := s.UpdateDupGroups(map[string]string{dupID: repID}); err != nil {
		t.Fatal(err)
	}

	r := New(s, b, DefaultWeights())
	results, err := r.Search(ctx, "dashboard", 10, ModeHybrid)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("Expected duplicates suppressed to 1 result, got %d", len(results))
	}
	if results[0].Asset.ID != repID {
		t.Errorf("Expected representative %s, got %s", repID, results[0].Asset.ID)
	}
}

func TestEmptyQueryVisualOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := newTestBackend(t)
	emb, _ := b.Embedder()

	lib, _ := s.AddLibrary("/tmp/shots")
	vec, _ := emb.EmbedText(ctx, "something")
	addAsset(t, s, lib.ID, "/tmp/shots/a.png", "words here", vec)

	r := New(s, b, DefaultWeights())

	// 查询没有可用词元时结果完全来自视觉召回
	results, err := r.Search(ctx, "??", 5, ModeHybrid)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 visual result, got %d", len(results))
	}
	if results[0].TextScore != 0 {
		t.Errorf("Expected zero text score, got %f", results[0].TextScore)
	}
}

func TestLooksTexty(t *testing.T) {
	cases := []struct {
		query string
		want  bool
	}{
		{"error 403", true},
		{"invoice from acme", true},
		{"sunset over the ocean", false},
		{"receipt total", true},
		{"cat photo", false},
		{"build 2024", true},
	}
	for _, c := range cases {
		if got := looksTexty(c.query); got != c.want {
			t.Errorf("looksTexty(%q) = %v, want %v", c.query, got, c.want)
		}
	}
}
