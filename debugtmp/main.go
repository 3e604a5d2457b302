package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"github.com/merlian/merlian/pkg/jobs"
	"github.com/merlian/merlian/pkg/merlian"
	"github.com/merlian/merlian/pkg/rank"
	"github.com/merlian/merlian/pkg/store"
)

func writePNG(path string, c color.RGBA) {
	img := image.NewRGBA(image.Rect(0, 0, 400, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 400; x++ {
			img.Set(x, y, c)
		}
	}
	f, _ := os.Create(path)
	defer f.Close()
	png.Encode(f, img)
}

func main() {
	dir, _ := os.MkdirTemp("", "dbg")
	defer os.RemoveAll(dir)
	cfg := merlian.DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	cfg.DBPath = filepath.Join(cfg.DataDir, "index.db")
	cfg.ThumbDir = filepath.Join(cfg.DataDir, "thumbs")
	m, err := merlian.New(cfg)
	if err != nil {
		panic(err)
	}
	defer m.Close()

	libDir := filepath.Join(dir, "shots")
	os.MkdirAll(libDir, 0o755)
	writePNG(filepath.Join(libDir, "forbidden.png"), color.RGBA{240, 240, 240, 255})
	writePNG(filepath.Join(libDir, "sunset.png"), color.RGBA{255, 120, 30, 255})
	writePNG(filepath.Join(libDir, "invoice.png"), color.RGBA{250, 250, 245, 255})
	os.WriteFile(filepath.Join(libDir, "forbidden.png.txt"), []byte("HTTP 403 Forbidden nginx"), 0o644)
	os.WriteFile(filepath.Join(libDir, "invoice.png.txt"), []byte("Invoice total 128.00 USD"), 0o644)

	if _, err := m.AddLibrary(libDir); err != nil {
		panic(err)
	}
	jobID, err := m.Index(context.Background(), libDir, jobs.IndexOptions{WithOCR: true})
	if err != nil {
		panic(err)
	}
	m.WaitJob(jobID)
	j, _ := m.Job(jobID)
	fmt.Println("job:", j.Status, j.Message, j.Error)

	results, err := m.Search(context.Background(), "error 403", 5, rank.ModeHybrid)
	if err != nil {
		panic(err)
	}
	for _, r := range results {
		fmt.Printf("result %s text=%v tokens=%v\n", filepath.Base(r.Asset.Path), r.TextScore, r.MatchedTokens)
	}
	m.Close()

	st, err := store.New(cfg.DBPath)
	if err != nil {
		panic(err)
	}
	defer st.Close()
	rows, err := st.DB().Query(`SELECT path, ocr_text, status || ' dup=' || dup_group || ' id=' || id || ' phash=' || phash || ' q=' || quality FROM assets`)
	if err != nil {
		panic(err)
	}
	for rows.Next() {
		var p, o, s string
		rows.Scan(&p, &o, &s)
		fmt.Printf("asset %s status=%s ocr=%q\n", filepath.Base(p), s, o)
	}
	rows.Close()

	rows, err = st.DB().Query(`SELECT path, ocr_text FROM ocr_fts`)
	if err != nil {
		fmt.Println("fts query err:", err)
	} else {
		for rows.Next() {
			var p, o string
			rows.Scan(&p, &o)
			fmt.Printf("fts %s ocr=%q\n", filepath.Base(p), o)
		}
		rows.Close()
	}

	ids, err := st.FTSCandidates([]string{"error", "403"}, 10)
	fmt.Println("fts candidates:", ids, err)
}
