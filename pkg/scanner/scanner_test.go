package scanner

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/merlian/merlian/pkg/store"
)

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWalkAllowList(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "a.png"), 10)
	writeFile(t, filepath.Join(tmpDir, "sub", "b.jpg"), 10)
	writeFile(t, filepath.Join(tmpDir, "c.txt"), 10)
	writeFile(t, filepath.Join(tmpDir, ".hidden", "d.png"), 10)
	writeFile(t, filepath.Join(tmpDir, "e.WEBP"), 10)

	files, errs := New(nil).Walk(tmpDir)
	if len(errs) != 0 {
		t.Fatalf("Unexpected scan errors: %v", errs)
	}

	got := make(map[string]bool)
	for _, f := range files {
		got[filepath.Base(f.Path)] = true
	}

	// 扩展名大小写不敏感，隐藏目录和非图片被跳过
	for _, want := range []string{"a.png", "b.jpg", "e.WEBP"} {
		if !got[want] {
			t.Errorf("Expected %s in scan results, got %v", want, got)
		}
	}
	if got["c.txt"] || got["d.png"] {
		t.Errorf("Unexpected files in results: %v", got)
	}
}

func TestWalkExclude(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "keep.png"), 10)
	writeFile(t, filepath.Join(tmpDir, "cache", "skip.png"), 10)

	files, _ := New([]string{"cache/**"}).Walk(tmpDir)
	if len(files) != 1 || filepath.Base(files[0].Path) != "keep.png" {
		t.Errorf("Exclude mask not applied: %v", files)
	}
}

func TestDiffCorrectness(t *testing.T) {
	tmpDir := t.TempDir()
	pa := filepath.Join(tmpDir, "a.png")
	pb := filepath.Join(tmpDir, "b.png")
	pc := filepath.Join(tmpDir, "c.png")
	writeFile(t, pa, 10)
	writeFile(t, pb, 10)
	writeFile(t, pc, 10)

	s := New(nil)
	files, _ := s.Walk(tmpDir)

	// 首次索引：全部是新文件
	d := ComputeDiff(files, nil, nil, Constraints{})
	if len(d.New) != 3 || len(d.Changed) != 0 || len(d.Removed) != 0 {
		t.Fatalf("Unexpected initial diff: %+v", d)
	}

	// 构造已存储签名
	stored := make(map[string]store.FileSig)
	for _, f := range files {
		stored[f.Path] = store.FileSig{
			AssetID:   f.Path + "-id",
			SizeBytes: f.SizeBytes,
			MTimeNS:   f.MTimeNS,
		}
	}

	// 无变化时差分为空（幂等）
	d = ComputeDiff(files, stored, nil, Constraints{})
	if len(d.New) != 0 || len(d.Changed) != 0 || len(d.Removed) != 0 {
		t.Fatalf("Expected empty diff for unchanged set: %+v", d)
	}

	// 删除B，修改C的大小
	if err := os.Remove(pb); err != nil {
		t.Fatal(err)
	}
	writeFile(t, pc, 99)

	files, _ = s.Walk(tmpDir)
	d = ComputeDiff(files, stored, nil, Constraints{})

	if len(d.New) != 0 {
		t.Errorf("Expected no new files, got %v", d.New)
	}
	if len(d.Changed) != 1 || d.Changed[0].Path != pc {
		t.Errorf("Expected changed [C], got %v", d.Changed)
	}
	if len(d.Removed) != 1 || d.Removed[0] != pb+"-id" {
		t.Errorf("Expected removed [B], got %v", d.Removed)
	}
}

func TestDiffRecentFirstCap(t *testing.T) {
	tmpDir := t.TempDir()

	// 5个文件，修改时间递增
	var paths []string
	now := time.Now()
	for i := 0; i < 5; i++ {
		p := filepath.Join(tmpDir, string(rune('a'+i))+".png")
		writeFile(t, p, 10)
		mt := now.Add(time.Duration(i) * time.Hour)
		if err := os.Chtimes(p, mt, mt); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}

	files, _ := New(nil).Walk(tmpDir)
	d := ComputeDiff(files, nil, nil, Constraints{MaxItems: 2, RecentFirst: true})

	if len(d.New) != 2 {
		t.Fatalf("Expected 2 capped candidates, got %d", len(d.New))
	}

	// 应当是修改时间最新的两个
	want := map[string]bool{paths[4]: true, paths[3]: true}
	for _, f := range d.New {
		if !want[f.Path] {
			t.Errorf("Unexpected capped candidate %s", f.Path)
		}
	}

	// 截断不影响删除检测：已存储但仍在磁盘上的文件不会被误判删除
	stored := map[string]store.FileSig{
		paths[0]: {AssetID: "id-a", SizeBytes: 10, MTimeNS: files[0].MTimeNS},
	}
	d = ComputeDiff(files, stored, nil, Constraints{MaxItems: 1, RecentFirst: true})
	if len(d.Removed) != 0 {
		t.Errorf("Capped scan incorrectly reported removals: %v", d.Removed)
	}
}

func TestDiffKeepsAssetsUnderUnreadableDirs(t *testing.T) {
	tmpDir := t.TempDir()
	locked := filepath.Join(tmpDir, "locked")
	gone := filepath.Join(tmpDir, "gone.png")
	ok := filepath.Join(tmpDir, "ok.png")
	writeFile(t, ok, 10)

	files, _ := New(nil).Walk(tmpDir)

	// 不可读目录：Walk 报错并跳过，里面的文件不会出现在扫描结果里
	scanErrs := []ScanError{{Path: locked, Err: os.ErrPermission}}

	stored := map[string]store.FileSig{
		filepath.Join(locked, "secret.png"): {AssetID: "id-locked", SizeBytes: 10},
		gone:                                {AssetID: "id-gone", SizeBytes: 10},
		ok:                                  {AssetID: "id-ok", SizeBytes: files[0].SizeBytes, MTimeNS: files[0].MTimeNS},
	}

	d := ComputeDiff(files, stored, scanErrs, Constraints{})

	// 出错子树下的资产保留，真正消失的文件照常判为删除
	if len(d.Removed) != 1 || d.Removed[0] != "id-gone" {
		t.Errorf("Expected removed [id-gone], got %v", d.Removed)
	}

	// 前缀匹配要求目录边界：locked2 不在 locked 之下
	sibling := filepath.Join(tmpDir, "locked2", "x.png")
	stored[sibling] = store.FileSig{AssetID: "id-sibling", SizeBytes: 10}
	d = ComputeDiff(files, stored, scanErrs, Constraints{})
	got := make(map[string]bool)
	for _, id := range d.Removed {
		got[id] = true
	}
	if !got["id-sibling"] || !got["id-gone"] || got["id-locked"] {
		t.Errorf("Unexpected removal set: %v", d.Removed)
	}
}

func TestWalkPermissionDenied(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("running as root, permission bits are not enforced")
	}

	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "ok.png"), 10)

	locked := filepath.Join(tmpDir, "locked")
	writeFile(t, filepath.Join(locked, "secret.png"), 10)
	if err := os.Chmod(locked, 0000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Chmod(locked, 0755) })

	files, errs := New(nil).Walk(tmpDir)

	// 其余目录继续扫描，错误被独立上报
	if len(files) != 1 {
		t.Errorf("Expected 1 readable file, got %d", len(files))
	}
	if len(errs) == 0 {
		t.Error("Expected permission error to be reported")
	}
}
