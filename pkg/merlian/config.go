package merlian

import (
	"os"
	"path/filepath"

	"github.com/merlian/merlian/pkg/backend"
	"github.com/merlian/merlian/pkg/dedup"
	"github.com/merlian/merlian/pkg/rank"
)

// Config Merlian配置
type Config struct {
	// DataDir 数据根目录
	DataDir string
	// DBPath 索引数据库路径
	DBPath string
	// ThumbDir 缩略图目录
	ThumbDir string
	// Device 模型推理设备 auto/cpu/gpu
	Device backend.Device
	// Provider 模型后端，为空时使用内置的确定性Mock后端
	Provider backend.Provider
	// Workers 并发提取的工作协程数，0取CPU核数
	Workers int
	// ThumbMaxPx 缩略图最长边像素
	ThumbMaxPx int
	// HammingThreshold 近重复判定的感知哈希距离阈值
	HammingThreshold int
	// Quality 质量分权重
	Quality dedup.QualityWeights
	// Rank 混合排序融合权重
	Rank rank.Weights
	// Exclude 扫描排除模式（doublestar，相对库根目录）
	Exclude []string
	// SearchK 默认返回结果数
	SearchK int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".merlian")

	return Config{
		DataDir:          dataDir,
		DBPath:           filepath.Join(dataDir, "index.db"),
		ThumbDir:         filepath.Join(dataDir, "thumbs"),
		Device:           backend.DeviceAuto,
		ThumbMaxPx:       640,
		HammingThreshold: dedup.DefaultHammingThreshold,
		Quality:          dedup.DefaultQualityWeights(),
		Rank:             rank.DefaultWeights(),
		SearchK:          12,
	}
}

// Validate 验证配置并填充默认值
func (c *Config) Validate() error {
	def := DefaultConfig()

	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "index.db")
	}
	if c.ThumbDir == "" {
		c.ThumbDir = filepath.Join(c.DataDir, "thumbs")
	}
	if c.Device == "" {
		c.Device = backend.DeviceAuto
	}
	if !backend.ValidDevice(c.Device) {
		return &DeviceError{Device: string(c.Device)}
	}
	if c.Provider == nil {
		c.Provider = &backend.MockProvider{}
	}
	if c.ThumbMaxPx <= 0 {
		c.ThumbMaxPx = def.ThumbMaxPx
	}
	if c.HammingThreshold <= 0 {
		c.HammingThreshold = def.HammingThreshold
	}
	if c.Quality.Recency == 0 && c.Quality.Resolution == 0 && c.Quality.Textiness == 0 {
		c.Quality = def.Quality
	}
	if c.Rank.Text <= 0 {
		c.Rank = def.Rank
	}
	if c.SearchK <= 0 {
		c.SearchK = def.SearchK
	}

	// 创建必要的目录
	if err := os.MkdirAll(filepath.Dir(c.DBPath), 0755); err != nil {
		return err
	}
	if err := os.MkdirAll(c.ThumbDir, 0755); err != nil {
		return err
	}

	return nil
}
