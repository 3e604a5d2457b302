// Package scanner 负责遍历素材库目录并与已索引状态做差分
package scanner

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/merlian/merlian/pkg/store"
)

// 支持的图片扩展名
var supportedExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".webp": true,
}

// FileRef 磁盘上的候选文件
type FileRef struct {
	Path      string
	SizeBytes int64
	MTimeNS   int64
}

// ScanError 不可读路径
// 作为独立结果上报而不是静默跳过，调用方可以给出可操作的提示
type ScanError struct {
	Path string
	Err  error
}

// Constraints 扫描约束
type Constraints struct {
	// MaxItems 候选数量上限，0表示不限
	MaxItems int
	// RecentFirst 按修改时间倒序排列候选再截断
	// 用于快速的有界首次索引体验
	RecentFirst bool
}

// Diff 差分结果
type Diff struct {
	New     []FileRef
	Changed []FileRef
	Removed []string // 资产ID
	Errors  []ScanError
}

// Scanner 目录扫描器
type Scanner struct {
	exclude []string
}

// New 创建扫描器
func New(exclude []string) *Scanner {
	return &Scanner{exclude: exclude}
}

// Walk 递归收集库根目录下的候选图片文件
// 权限错误不中断扫描，记录后继续
func (s *Scanner) Walk(root string) ([]FileRef, []ScanError) {
	var files []FileRef
	var scanErrs []ScanError

	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			scanErrs = append(scanErrs, ScanError{Path: path, Err: err})
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			// 跳过隐藏目录
			if name := d.Name(); strings.HasPrefix(name, ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		if !supportedExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		if s.excluded(root, path) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			scanErrs = append(scanErrs, ScanError{Path: path, Err: err})
			return nil
		}

		files = append(files, FileRef{
			Path:      path,
			SizeBytes: info.Size(),
			MTimeNS:   info.ModTime().UnixNano(),
		})
		return nil
	})

	return files, scanErrs
}

// excluded 检查文件是否命中排除模式
func (s *Scanner) excluded(root, path string) bool {
	if len(s.exclude) == 0 {
		return false
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}

	for _, pattern := range s.exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// DiffLibrary 扫描库根目录并与已存储签名做差分
func (s *Scanner) DiffLibrary(root string, stored map[string]store.FileSig, cons Constraints) Diff {
	files, scanErrs := s.Walk(root)
	d := ComputeDiff(files, stored, scanErrs, cons)
	d.Errors = append(d.Errors, scanErrs...)
	return d
}

// ComputeDiff 计算 {new, changed, removed} 集合
// 截断只影响 new/changed 候选；removed 依据完整的磁盘文件集合判断，
// 否则有界索引会把没扫到的文件误判成删除。
// 出错路径下的已存文件同样不判为删除：目录不可读时文件没有消失，只是没扫到
func ComputeDiff(files []FileRef, stored map[string]store.FileSig, scanErrs []ScanError, cons Constraints) Diff {
	var d Diff

	// 完整文件集合用于删除检测
	onDisk := make(map[string]bool, len(files))
	for _, f := range files {
		onDisk[f.Path] = true
	}

	candidates := files
	if cons.RecentFirst {
		candidates = make([]FileRef, len(files))
		copy(candidates, files)
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].MTimeNS > candidates[j].MTimeNS
		})
	}
	if cons.MaxItems > 0 && len(candidates) > cons.MaxItems {
		candidates = candidates[:cons.MaxItems]
	}

	for _, f := range candidates {
		sig, ok := stored[f.Path]
		if !ok {
			d.New = append(d.New, f)
			continue
		}
		if sig.SizeBytes != f.SizeBytes || sig.MTimeNS != f.MTimeNS {
			d.Changed = append(d.Changed, f)
		}
	}

	for path, sig := range stored {
		if !onDisk[path] && !underErrored(path, scanErrs) {
			d.Removed = append(d.Removed, sig.AssetID)
		}
	}

	return d
}

// underErrored 检查路径是否等于某个出错路径或位于其之下
func underErrored(path string, scanErrs []ScanError) bool {
	for _, se := range scanErrs {
		if path == se.Path || strings.HasPrefix(path, se.Path+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// IsSupported 检查文件扩展名是否在允许列表内
func IsSupported(path string) bool {
	return supportedExts[strings.ToLower(filepath.Ext(path))]
}

// Stat 获取单个文件的引用信息
func Stat(path string) (FileRef, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileRef{}, err
	}
	return FileRef{
		Path:      path,
		SizeBytes: info.Size(),
		MTimeNS:   info.ModTime().UnixNano(),
	}, nil
}
