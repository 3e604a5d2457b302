package format

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/merlian/merlian/pkg/merlian"
	"github.com/merlian/merlian/pkg/rank"
	"github.com/merlian/merlian/pkg/store"
)

// Format 输出格式类型
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatMD   Format = "md"
)

// OutputSearchResults 输出搜索结果
func OutputSearchResults(results []rank.Result, format Format) error {
	switch format {
	case FormatJSON:
		return outputJSON(searchResultsJSON(results))
	case FormatCSV:
		return outputSearchCSV(results)
	case FormatMD:
		return outputSearchMarkdown(results)
	default:
		return outputSearchText(results)
	}
}

// OutputLibraries 输出素材库列表
func OutputLibraries(libs []store.Library, format Format) error {
	switch format {
	case FormatJSON:
		return outputJSON(libs)
	case FormatCSV:
		w := csv.NewWriter(os.Stdout)
		w.Write([]string{"id", "path", "created_at"})
		for _, l := range libs {
			w.Write([]string{l.ID, l.Path, l.CreatedAt.Format("2006-01-02 15:04:05")})
		}
		w.Flush()
		return w.Error()
	default:
		if len(libs) == 0 {
			fmt.Println("No libraries registered. Use: merlian library add <path>")
			return nil
		}
		for _, l := range libs {
			fmt.Printf("%-36s  %s\n", l.ID, l.Path)
		}
		return nil
	}
}

// OutputStatus 输出索引状态
func OutputStatus(st merlian.Status, format Format) error {
	switch format {
	case FormatJSON:
		return outputJSON(st)
	default:
		fmt.Printf("Assets:        %d\n", st.TotalAssets)
		fmt.Printf("  with OCR:    %d\n", st.WithOCR)
		fmt.Printf("  failed:      %d\n", st.FailedAssets)
		fmt.Printf("Libraries:     %d\n", st.Libraries)
		if st.LastIndexedAt != "" {
			fmt.Printf("Last indexed:  %s\n", st.LastIndexedAt)
		}
		fmt.Printf("Backend:       %s\n", st.BackendState)
		fmt.Printf("Database:      %s\n", st.DBPath)
		return nil
	}
}

// OutputJob 输出任务详情
func OutputJob(j *store.Job, format Format) error {
	switch format {
	case FormatJSON:
		return outputJSON(j)
	default:
		fmt.Printf("Job:       %s\n", j.ID)
		fmt.Printf("Status:    %s\n", j.Status)
		if j.Total > 0 {
			fmt.Printf("Progress:  %d/%d\n", j.Processed, j.Total)
		}
		if j.Message != "" {
			fmt.Printf("Message:   %s\n", j.Message)
		}
		if j.Error != "" {
			fmt.Printf("Error:     %s\n", j.Error)
		}
		return nil
	}
}

// searchResultJSON 面向输出的结果投影
type searchResultJSON struct {
	Rank          int      `json:"rank"`
	Path          string   `json:"path"`
	Folder        string   `json:"folder"`
	Width         int      `json:"width"`
	Height        int      `json:"height"`
	CreatedAt     string   `json:"created_at"`
	Score         float64  `json:"score"`
	VisualScore   float64  `json:"visual_score"`
	TextScore     float64  `json:"text_score"`
	MatchedTokens []string `json:"matched_tokens,omitempty"`
	OCRPreview    string   `json:"ocr_preview,omitempty"`
	ThumbPath     string   `json:"thumb_path,omitempty"`
	AssetID       string   `json:"asset_id"`
}

// ocrPreviewRunes OCR预览的最大字符数
const ocrPreviewRunes = 160

func searchResultsJSON(results []rank.Result) []searchResultJSON {
	out := make([]searchResultJSON, 0, len(results))
	for _, r := range results {
		out = append(out, searchResultJSON{
			Rank:          r.Rank,
			Path:          r.Asset.Path,
			Folder:        filepath.Dir(r.Asset.Path),
			Width:         r.Asset.Width,
			Height:        r.Asset.Height,
			CreatedAt:     r.Asset.ModTime().Format(time.RFC3339),
			Score:         r.Score,
			VisualScore:   r.VisualScore,
			TextScore:     r.TextScore,
			MatchedTokens: r.MatchedTokens,
			OCRPreview:    ocrPreview(r.Asset.OCRText),
			ThumbPath:     r.Asset.ThumbPath,
			AssetID:       r.Asset.ID,
		})
	}
	return out
}

// ocrPreview 截断OCR全文，换行压成空格
func ocrPreview(text string) string {
	s := strings.Join(strings.Fields(text), " ")
	runes := []rune(s)
	if len(runes) <= ocrPreviewRunes {
		return s
	}
	return string(runes[:ocrPreviewRunes]) + "…"
}

func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func outputSearchText(results []rank.Result) error {
	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for _, r := range results {
		fmt.Printf("%2d. [%.3f] %s\n", r.Rank, r.Score, r.Asset.Path)
		detail := fmt.Sprintf("    visual %.3f  text %.3f", r.VisualScore, r.TextScore)
		if len(r.MatchedTokens) > 0 {
			detail += "  matched: " + strings.Join(r.MatchedTokens, ", ")
		}
		fmt.Println(detail)
	}
	return nil
}

func outputSearchCSV(results []rank.Result) error {
	w := csv.NewWriter(os.Stdout)
	w.Write([]string{"rank", "score", "visual_score", "text_score", "matched_tokens", "path"})
	for _, r := range results {
		w.Write([]string{
			strconv.Itoa(r.Rank),
			fmt.Sprintf("%.4f", r.Score),
			fmt.Sprintf("%.4f", r.VisualScore),
			fmt.Sprintf("%.4f", r.TextScore),
			strings.Join(r.MatchedTokens, " "),
			r.Asset.Path,
		})
	}
	w.Flush()
	return w.Error()
}

func outputSearchMarkdown(results []rank.Result) error {
	fmt.Println("| # | Score | Visual | Text | Matched | Path |")
	fmt.Println("|---|-------|--------|------|---------|------|")
	for _, r := range results {
		fmt.Printf("| %d | %.3f | %.3f | %.3f | %s | %s |\n",
			r.Rank, r.Score, r.VisualScore, r.TextScore,
			strings.Join(r.MatchedTokens, " "), r.Asset.Path)
	}
	return nil
}
