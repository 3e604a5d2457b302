package format

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/merlian/merlian/pkg/rank"
	"github.com/merlian/merlian/pkg/store"
)

func TestSearchResultProjection(t *testing.T) {
	mt := time.Date(2026, 3, 14, 9, 26, 53, 0, time.Local)
	path := filepath.Join("/shots", "errors", "forbidden.png")

	results := []rank.Result{
		{
			Rank:          1,
			Score:         0.83,
			VisualScore:   0.41,
			TextScore:     1.0,
			MatchedTokens: []string{"403"},
			Asset: &store.Asset{
				ID:        "asset-1",
				Path:      path,
				Width:     1920,
				Height:    1080,
				MTimeNS:   mt.UnixNano(),
				OCRText:   "HTTP 403\nForbidden",
				ThumbPath: "/thumbs/abc.jpg",
			},
		},
	}

	out := searchResultsJSON(results)
	if len(out) != 1 {
		t.Fatalf("Expected 1 projected result, got %d", len(out))
	}

	r := out[0]
	if r.Width != 1920 || r.Height != 1080 {
		t.Errorf("Expected dimensions 1920x1080, got %dx%d", r.Width, r.Height)
	}
	if r.Folder != filepath.Join("/shots", "errors") {
		t.Errorf("Unexpected folder %q", r.Folder)
	}
	if r.CreatedAt != mt.Format(time.RFC3339) {
		t.Errorf("Unexpected created_at %q", r.CreatedAt)
	}
	// 预览把换行压成空格
	if r.OCRPreview != "HTTP 403 Forbidden" {
		t.Errorf("Unexpected OCR preview %q", r.OCRPreview)
	}
	if r.AssetID != "asset-1" || r.Rank != 1 || r.Score != 0.83 {
		t.Errorf("Core fields lost in projection: %+v", r)
	}
}

func TestOCRPreviewTruncation(t *testing.T) {
	if got := ocrPreview(""); got != "" {
		t.Errorf("Expected empty preview, got %q", got)
	}

	long := strings.Repeat("网", 200)
	got := ocrPreview(long)
	runes := []rune(got)
	if len(runes) != ocrPreviewRunes+1 {
		t.Errorf("Expected %d runes plus ellipsis, got %d", ocrPreviewRunes, len(runes))
	}
	if runes[len(runes)-1] != '…' {
		t.Errorf("Expected ellipsis terminator, got %q", got)
	}
}
