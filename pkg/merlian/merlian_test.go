package merlian

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/merlian/merlian/pkg/jobs"
	"github.com/merlian/merlian/pkg/rank"
	"github.com/merlian/merlian/pkg/store"
)

func writeTestPNG(t *testing.T, path string, w, h int, c color.RGBA) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatal(err)
	}
}

func newTestMerlian(t *testing.T) (*Merlian, string) {
	t.Helper()

	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.DBPath = filepath.Join(cfg.DataDir, "index.db")
	cfg.ThumbDir = filepath.Join(cfg.DataDir, "thumbs")

	m, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create instance: %v", err)
	}
	t.Cleanup(func() { m.Close() })

	libDir := filepath.Join(dir, "shots")
	if err := os.MkdirAll(libDir, 0o755); err != nil {
		t.Fatal(err)
	}
	return m, libDir
}

func indexAndWait(t *testing.T, m *Merlian, libRef string, opts jobs.IndexOptions) *store.Job {
	t.Helper()

	jobID, err := m.Index(context.Background(), libRef, opts)
	if err != nil {
		t.Fatalf("Failed to submit index: %v", err)
	}
	m.WaitJob(jobID)

	j, err := m.Job(jobID)
	if err != nil {
		t.Fatalf("Failed to read job: %v", err)
	}
	return j
}

func TestEndToEndIndexAndSearch(t *testing.T) {
	ctx := context.Background()
	m, libDir := newTestMerlian(t)

	writeTestPNG(t, filepath.Join(libDir, "forbidden.png"), 400, 300, color.RGBA{240, 240, 240, 255})
	writeTestPNG(t, filepath.Join(libDir, "sunset.png"), 400, 300, color.RGBA{255, 120, 30, 255})
	writeTestPNG(t, filepath.Join(libDir, "invoice.png"), 400, 300, color.RGBA{250, 250, 245, 255})
	os.WriteFile(filepath.Join(libDir, "forbidden.png.txt"), []byte("HTTP 403 Forbidden nginx"), 0o644)
	os.WriteFile(filepath.Join(libDir, "invoice.png.txt"), []byte("Invoice total 128.00 USD"), 0o644)

	if _, err := m.AddLibrary(libDir); err != nil {
		t.Fatalf("Failed to add library: %v", err)
	}

	j := indexAndWait(t, m, libDir, jobs.IndexOptions{WithOCR: true})
	if j.Status != store.JobDone {
		t.Fatalf("Index failed: %s (%s)", j.Status, j.Error)
	}

	// 带数字的查询，OCR命中的截图必须排第一
	results, err := m.Search(ctx, "error 403", 5, rank.ModeHybrid)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("Expected results")
	}
	if filepath.Base(results[0].Asset.Path) != "forbidden.png" {
		t.Errorf("Expected forbidden.png first, got %s", results[0].Asset.Path)
	}

	found := false
	for _, tok := range results[0].MatchedTokens {
		if tok == "403" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected 403 in matched tokens, got %v", results[0].MatchedTokens)
	}

	// 状态投影
	st, err := m.Status()
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalAssets != 3 {
		t.Errorf("Expected 3 assets, got %d", st.TotalAssets)
	}
	if st.WithOCR != 2 {
		t.Errorf("Expected 2 assets with OCR, got %d", st.WithOCR)
	}
	if st.Libraries != 1 {
		t.Errorf("Expected 1 library, got %d", st.Libraries)
	}
	if st.BackendState != "ready" {
		t.Errorf("Expected ready backend after indexing, got %s", st.BackendState)
	}
}

func TestRecentFirstBoundedIndex(t *testing.T) {
	m, libDir := newTestMerlian(t)

	base := time.Now().Add(-10 * time.Hour)
	names := []string{"old-1.png", "old-2.png", "new-1.png", "new-2.png"}
	for i, name := range names {
		p := filepath.Join(libDir, name)
		writeTestPNG(t, p, 100, 100, color.RGBA{uint8(i * 40), 10, 10, 255})
		ts := base.Add(time.Duration(i) * time.Hour)
		if err := os.Chtimes(p, ts, ts); err != nil {
			t.Fatal(err)
		}
	}

	if _, err := m.AddLibrary(libDir); err != nil {
		t.Fatal(err)
	}

	// 有界首次索引只处理最新的两张
	j := indexAndWait(t, m, libDir, jobs.IndexOptions{MaxItems: 2, RecentFirst: true})
	if j.Status != store.JobDone {
		t.Fatalf("Index failed: %s", j.Error)
	}

	st, _ := m.Status()
	if st.TotalAssets != 2 {
		t.Fatalf("Expected 2 assets after bounded run, got %d", st.TotalAssets)
	}
	if _, err := m.AssetByPath(filepath.Join(libDir, "new-2.png")); err != nil {
		t.Errorf("Expected newest file indexed: %v", err)
	}
	if _, err := m.AssetByPath(filepath.Join(libDir, "old-1.png")); err != store.ErrNotFound {
		t.Errorf("Expected oldest file not yet indexed, got %v", err)
	}

	// 无上限的后续运行补齐剩下的，不产生误删
	j2 := indexAndWait(t, m, libDir, jobs.IndexOptions{})
	if j2.Status != store.JobDone {
		t.Fatalf("Follow-up index failed: %s", j2.Error)
	}
	st, _ = m.Status()
	if st.TotalAssets != 4 {
		t.Errorf("Expected all 4 assets indexed, got %d", st.TotalAssets)
	}
}

func TestAddLibraryValidation(t *testing.T) {
	m, libDir := newTestMerlian(t)

	var libErr *LibraryError
	if _, err := m.AddLibrary(filepath.Join(libDir, "missing")); !errors.As(err, &libErr) {
		t.Fatalf("Expected LibraryError for missing path, got %v", err)
	}

	file := filepath.Join(libDir, "not-a-dir.png")
	writeTestPNG(t, file, 10, 10, color.RGBA{1, 1, 1, 255})
	if _, err := m.AddLibrary(file); !errors.As(err, &libErr) {
		t.Fatalf("Expected LibraryError for file path, got %v", err)
	}

	// 同一路径重复注册幂等
	l1, err := m.AddLibrary(libDir)
	if err != nil {
		t.Fatal(err)
	}
	l2, err := m.AddLibrary(libDir)
	if err != nil {
		t.Fatal(err)
	}
	if l1.ID != l2.ID {
		t.Errorf("Expected idempotent registration, got %s vs %s", l1.ID, l2.ID)
	}
}

func TestRemoveLibraryByPath(t *testing.T) {
	m, libDir := newTestMerlian(t)

	writeTestPNG(t, filepath.Join(libDir, "a.png"), 50, 50, color.RGBA{7, 7, 7, 255})
	if _, err := m.AddLibrary(libDir); err != nil {
		t.Fatal(err)
	}
	indexAndWait(t, m, libDir, jobs.IndexOptions{})

	if err := m.RemoveLibrary(libDir); err != nil {
		t.Fatalf("Failed to remove library: %v", err)
	}

	st, _ := m.Status()
	if st.Libraries != 0 || st.TotalAssets != 0 {
		t.Errorf("Expected empty index after removal, got %d libraries %d assets", st.Libraries, st.TotalAssets)
	}
}

func TestReset(t *testing.T) {
	m, libDir := newTestMerlian(t)

	writeTestPNG(t, filepath.Join(libDir, "a.png"), 50, 50, color.RGBA{3, 3, 3, 255})
	if _, err := m.AddLibrary(libDir); err != nil {
		t.Fatal(err)
	}
	indexAndWait(t, m, libDir, jobs.IndexOptions{})

	if err := m.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}

	st, err := m.Status()
	if err != nil {
		t.Fatal(err)
	}
	if st.TotalAssets != 0 || st.Libraries != 0 {
		t.Errorf("Expected empty index after reset, got %+v", st)
	}

	// 重置后整条链路仍然可用
	if _, err := m.AddLibrary(libDir); err != nil {
		t.Fatalf("Add after reset failed: %v", err)
	}
	j := indexAndWait(t, m, libDir, jobs.IndexOptions{})
	if j.Status != store.JobDone {
		t.Fatalf("Index after reset failed: %s", j.Error)
	}
}

func TestInvalidDeviceRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.DBPath = filepath.Join(cfg.DataDir, "index.db")
	cfg.Device = "tpu"

	var devErr *DeviceError
	if _, err := New(cfg); !errors.As(err, &devErr) {
		t.Fatalf("Expected DeviceError, got %v", err)
	}
}
