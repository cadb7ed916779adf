// Package config は実行設定ファイルの読み込みと変換を提供する
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"cluster-fuzz/internal/fuzzer"
	"cluster-fuzz/internal/timeline"
)

// FileConfig は設定ファイルの構造
type FileConfig struct {
	Run RunConfig `yaml:"run" json:"run"`
}

// RunConfig は実行設定
type RunConfig struct {
	Iterations      int    `yaml:"iterations" json:"iterations"`
	ScenarioTimeout string `yaml:"scenario_timeout" json:"scenario_timeout"`

	Workload  WorkloadConfig  `yaml:"workload" json:"workload"`
	Validator ValidatorConfig `yaml:"validator" json:"validator"`
}

// WorkloadConfig は負荷クライアント設定
type WorkloadConfig struct {
	Workers     int `yaml:"workers" json:"workers"`
	CanaryCount int `yaml:"canary_count" json:"canary_count"`
	KeyRange    int `yaml:"key_range" json:"key_range"`
}

// ValidatorConfig はバリデータ設定
type ValidatorConfig struct {
	PollInterval            string `yaml:"poll_interval" json:"poll_interval"`
	UnreachableKeyThreshold int    `yaml:"unreachable_key_threshold" json:"unreachable_key_threshold"`
}

// LoadFile は設定ファイルを読み込む
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

// ToEngineConfig はFileConfigをfuzzer.Configに変換する
// 未指定の項目はデフォルト値のまま残す
func (f *FileConfig) ToEngineConfig() (fuzzer.Config, error) {
	config := fuzzer.DefaultConfig()
	r := f.Run

	if r.Iterations > 0 {
		config.Iterations = r.Iterations
	}
	if r.ScenarioTimeout != "" {
		d, err := time.ParseDuration(r.ScenarioTimeout)
		if err != nil {
			return config, fmt.Errorf("invalid scenario_timeout: %w", err)
		}
		config.Scheduler = timeline.Config{ScenarioTimeout: d}
	}

	if r.Workload.Workers > 0 {
		config.Workload.NumWorkers = r.Workload.Workers
	}
	if r.Workload.CanaryCount > 0 {
		config.Workload.CanaryCount = r.Workload.CanaryCount
	}
	if r.Workload.KeyRange > 0 {
		config.Workload.KeyRange = r.Workload.KeyRange
	}

	if r.Validator.PollInterval != "" {
		d, err := time.ParseDuration(r.Validator.PollInterval)
		if err != nil {
			return config, fmt.Errorf("invalid poll_interval: %w", err)
		}
		config.Validator.PollInterval = d
	}
	if r.Validator.UnreachableKeyThreshold > 0 {
		config.Validator.UnreachableKeyThreshold = r.Validator.UnreachableKeyThreshold
	}

	return config, nil
}

// Validate は設定値の整合性を確認する
func (f *FileConfig) Validate() error {
	if f.Run.Iterations < 0 {
		return fmt.Errorf("iterations must be non-negative, got %d", f.Run.Iterations)
	}
	if f.Run.Workload.Workers < 0 {
		return fmt.Errorf("workload workers must be non-negative, got %d", f.Run.Workload.Workers)
	}
	if f.Run.Validator.UnreachableKeyThreshold < 0 {
		return fmt.Errorf("unreachable_key_threshold must be non-negative, got %d",
			f.Run.Validator.UnreachableKeyThreshold)
	}
	return nil
}
