// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Dedup describes how the harvest service collapses near-duplicate results.
type Dedup struct {
	Method          string  `json:"method" mapstructure:"method"` // prefix, jaccard, both
	PrefixLength    int     `json:"prefixLength" mapstructure:"prefixLength"`
	JaccardThreshold float64 `json:"jaccardThreshold" mapstructure:"jaccardThreshold"`
}

// Harvest holds the defaults consumed by internal/harvest.
type Harvest struct {
	DefaultTarget          int     `json:"defaultTarget" mapstructure:"defaultTarget"`
	SearchLimit            int     `json:"searchLimit" mapstructure:"searchLimit"`
	MinWordCount           int     `json:"minWordCount" mapstructure:"minWordCount"`
	ExpandBreadcrumbs      bool    `json:"expandBreadcrumbs" mapstructure:"expandBreadcrumbs"`
	ContextSize            int     `json:"contextSize" mapstructure:"contextSize"`
	PrioritizeConversations bool   `json:"prioritizeConversations" mapstructure:"prioritizeConversations"`
	MinGrade               float64 `json:"minGrade" mapstructure:"minGrade"`
	LengthBonusMax         float64 `json:"lengthBonusMax" mapstructure:"lengthBonusMax"`
	LengthBonusDivisor     float64 `json:"lengthBonusDivisor" mapstructure:"lengthBonusDivisor"`
	UseHybridSearch        bool    `json:"useHybridSearch" mapstructure:"useHybridSearch"`
	Deduplication          Dedup   `json:"deduplication" mapstructure:"deduplication"`
}

// Cache holds TTLs for the in-memory/Redis-backed caches.
type Cache struct {
	HealthTTLMs        int `json:"healthTtlMs" mapstructure:"healthTtlMs"`
	SearchDebounceMs   int `json:"searchDebounceMs" mapstructure:"searchDebounceMs"`
	EmbeddingCacheTTLMs int `json:"embeddingCacheTtlMs" mapstructure:"embeddingCacheTtlMs"`
}

// QualityGate and Hybrid mirror the retrieval knobs used by internal/search.
type QualityGate struct {
	TargetCount  int     `json:"targetCount" mapstructure:"targetCount"`
	SearchLimit  int     `json:"searchLimit" mapstructure:"searchLimit"`
	MinQuality   float64 `json:"minQuality" mapstructure:"minQuality"`
	MinWordCount int     `json:"minWordCount" mapstructure:"minWordCount"`
}

type Hybrid struct {
	DenseWeight  float64 `json:"denseWeight" mapstructure:"denseWeight"`
	SparseWeight float64 `json:"sparseWeight" mapstructure:"sparseWeight"`
	Limit        int     `json:"limit" mapstructure:"limit"`
	FusionK      int     `json:"fusionK" mapstructure:"fusionK"`
}

type Retrieval struct {
	QualityGate QualityGate `json:"qualityGate" mapstructure:"qualityGate"`
	Hybrid      Hybrid      `json:"hybrid" mapstructure:"hybrid"`
}

// Pyramid configures the optional summary-pyramid embeddings.
type Pyramid struct {
	ChunksPerSummary    int    `json:"chunksPerSummary" mapstructure:"chunksPerSummary"`
	TargetSummaryWords  int    `json:"targetSummaryWords" mapstructure:"targetSummaryWords"`
	TargetApexWords     int    `json:"targetApexWords" mapstructure:"targetApexWords"`
	SummarizationModel  string `json:"summarizationModel" mapstructure:"summarizationModel"`
}

// Embeddings configures the embedding backend client and its chunking policy.
type Embeddings struct {
	Dimensions     int `json:"dimensions" mapstructure:"dimensions"`
	BatchSize      int `json:"batchSize" mapstructure:"batchSize"`
	MaxChunkChars  int `json:"maxChunkChars" mapstructure:"maxChunkChars"`
	TargetChunkChars int `json:"targetChunkChars" mapstructure:"targetChunkChars"`
	MinChunkChars  int `json:"minChunkChars" mapstructure:"minChunkChars"`
}

// Config is the full persisted service configuration.
// RateLimit is deliberately untyped (map[string]interface{}) since rate
// limiting lives outside the core; we only need to round-trip it.
type Config struct {
	Harvest    Harvest                `json:"harvest" mapstructure:"harvest"`
	Cache      Cache                  `json:"cache" mapstructure:"cache"`
	Retrieval  Retrieval              `json:"retrieval" mapstructure:"retrieval"`
	RateLimit  map[string]interface{} `json:"rateLimit" mapstructure:"rateLimit"`
	Pyramid    Pyramid                `json:"pyramid" mapstructure:"pyramid"`
	Embeddings Embeddings             `json:"embeddings" mapstructure:"embeddings"`
}

// Defaults returns the configuration used when no file exists yet, and
// against which a loaded file's missing keys are merged.
func Defaults() Config {
	return Config{
		Harvest: Harvest{
			DefaultTarget:           20,
			SearchLimit:             100,
			MinWordCount:            75,
			ExpandBreadcrumbs:       true,
			ContextSize:             3,
			PrioritizeConversations: true,
			MinGrade:                2.5,
			LengthBonusMax:          0.15,
			LengthBonusDivisor:      500,
			UseHybridSearch:         true,
			Deduplication: Dedup{
				Method:           "both",
				PrefixLength:     120,
				JaccardThreshold: 0.8,
			},
		},
		Cache: Cache{
			HealthTTLMs:         30_000,
			SearchDebounceMs:    250,
			EmbeddingCacheTTLMs: 24 * 60 * 60 * 1000,
		},
		Retrieval: Retrieval{
			QualityGate: QualityGate{TargetCount: 20, SearchLimit: 100, MinQuality: 2.5, MinWordCount: 75},
			Hybrid:      Hybrid{DenseWeight: 0.6, SparseWeight: 0.25, Limit: 20, FusionK: 60},
		},
		RateLimit: map[string]interface{}{},
		Pyramid: Pyramid{
			ChunksPerSummary:   10,
			TargetSummaryWords: 150,
			TargetApexWords:    400,
			SummarizationModel: "",
		},
		Embeddings: Embeddings{
			Dimensions:       768,
			BatchSize:        32,
			MaxChunkChars:    4000,
			TargetChunkChars: 4000,
			MinChunkChars:    200,
		},
	}
}

// Load reads the config JSON at path, merging missing keys against
// Defaults(). A missing file is not an error: Defaults() is returned and
// Save persists it on first write.
func Load(path string) (Config, error) {
	defaults := Defaults()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	setViperDefaults(v, defaults)

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) {
			return defaults, nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaults, nil
		}
		return defaults, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return defaults, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	return cfg, nil
}

// setViperDefaults registers every leaf key so a file that only sets some
// of a section's keys still gets the rest merged from Defaults(). Viper
// merges defaults per key path, not per struct, so whole-struct defaults
// would be shadowed by any partial section in the file.
func setViperDefaults(v *viper.Viper, d Config) {
	v.SetDefault("harvest.defaultTarget", d.Harvest.DefaultTarget)
	v.SetDefault("harvest.searchLimit", d.Harvest.SearchLimit)
	v.SetDefault("harvest.minWordCount", d.Harvest.MinWordCount)
	v.SetDefault("harvest.expandBreadcrumbs", d.Harvest.ExpandBreadcrumbs)
	v.SetDefault("harvest.contextSize", d.Harvest.ContextSize)
	v.SetDefault("harvest.prioritizeConversations", d.Harvest.PrioritizeConversations)
	v.SetDefault("harvest.minGrade", d.Harvest.MinGrade)
	v.SetDefault("harvest.lengthBonusMax", d.Harvest.LengthBonusMax)
	v.SetDefault("harvest.lengthBonusDivisor", d.Harvest.LengthBonusDivisor)
	v.SetDefault("harvest.useHybridSearch", d.Harvest.UseHybridSearch)
	v.SetDefault("harvest.deduplication.method", d.Harvest.Deduplication.Method)
	v.SetDefault("harvest.deduplication.prefixLength", d.Harvest.Deduplication.PrefixLength)
	v.SetDefault("harvest.deduplication.jaccardThreshold", d.Harvest.Deduplication.JaccardThreshold)

	v.SetDefault("cache.healthTtlMs", d.Cache.HealthTTLMs)
	v.SetDefault("cache.searchDebounceMs", d.Cache.SearchDebounceMs)
	v.SetDefault("cache.embeddingCacheTtlMs", d.Cache.EmbeddingCacheTTLMs)

	v.SetDefault("retrieval.qualityGate.targetCount", d.Retrieval.QualityGate.TargetCount)
	v.SetDefault("retrieval.qualityGate.searchLimit", d.Retrieval.QualityGate.SearchLimit)
	v.SetDefault("retrieval.qualityGate.minQuality", d.Retrieval.QualityGate.MinQuality)
	v.SetDefault("retrieval.qualityGate.minWordCount", d.Retrieval.QualityGate.MinWordCount)
	v.SetDefault("retrieval.hybrid.denseWeight", d.Retrieval.Hybrid.DenseWeight)
	v.SetDefault("retrieval.hybrid.sparseWeight", d.Retrieval.Hybrid.SparseWeight)
	v.SetDefault("retrieval.hybrid.limit", d.Retrieval.Hybrid.Limit)
	v.SetDefault("retrieval.hybrid.fusionK", d.Retrieval.Hybrid.FusionK)

	v.SetDefault("rateLimit", d.RateLimit)

	v.SetDefault("pyramid.chunksPerSummary", d.Pyramid.ChunksPerSummary)
	v.SetDefault("pyramid.targetSummaryWords", d.Pyramid.TargetSummaryWords)
	v.SetDefault("pyramid.targetApexWords", d.Pyramid.TargetApexWords)
	v.SetDefault("pyramid.summarizationModel", d.Pyramid.SummarizationModel)

	v.SetDefault("embeddings.dimensions", d.Embeddings.Dimensions)
	v.SetDefault("embeddings.batchSize", d.Embeddings.BatchSize)
	v.SetDefault("embeddings.maxChunkChars", d.Embeddings.MaxChunkChars)
	v.SetDefault("embeddings.targetChunkChars", d.Embeddings.TargetChunkChars)
	v.SetDefault("embeddings.minChunkChars", d.Embeddings.MinChunkChars)
}

// Save writes cfg to path atomically: write to a temp file in the same
// directory, then rename over the destination. Renames are atomic on the
// same filesystem, which avoids ever leaving a half-written config behind.
func Save(path string, cfg Config) error {
	data, err := marshalIndent(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config dir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".config-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp config file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config into place: %w", err)
	}
	return nil
}

// DefaultPath returns the config file location under the user's home
// config directory: ~/.config/archivist/config.json (or the OS equivalent).
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "archivist", "config.json"), nil
}
