package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("METADATA_BACKEND", "")
	t.Setenv("ANALYZER_BACKEND", "")
	t.Setenv("ANALYSIS_CACHE_TTL", "")
	t.Setenv("ANALYSIS_TIMEOUT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MetadataStore != BackendMemory {
		t.Errorf("MetadataStore = %q, want it to follow STORE_BACKEND", cfg.MetadataStore)
	}
	if cfg.CacheTTL != 5*time.Minute {
		t.Errorf("CacheTTL = %v, want 5m", cfg.CacheTTL)
	}
	if cfg.AnalysisTimeout != 60*time.Second {
		t.Errorf("AnalysisTimeout = %v, want 60s", cfg.AnalysisTimeout)
	}
	if cfg.Analyzer != AnalyzerHTTP {
		t.Errorf("Analyzer = %q, want %q", cfg.Analyzer, AnalyzerHTTP)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("METADATA_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("ANALYSIS_CACHE_TTL", "90s")
	t.Setenv("LOG_JSON", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MetadataStore != BackendRedis || cfg.RedisDB != 2 {
		t.Errorf("unexpected redis settings: %+v", cfg)
	}
	if cfg.CacheTTL != 90*time.Second {
		t.Errorf("CacheTTL = %v, want 90s", cfg.CacheTTL)
	}
	if !cfg.LogJSON {
		t.Error("LogJSON should be true")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name:    "memory everything",
			cfg:     Config{Store: BackendMemory, MetadataStore: BackendMemory, Analyzer: AnalyzerHTTP, CacheTTL: time.Minute},
			wantErr: false,
		},
		{
			name:    "bigquery without project",
			cfg:     Config{Store: BackendBigQuery, MetadataStore: BackendMemory, Analyzer: AnalyzerHTTP, CacheTTL: time.Minute},
			wantErr: true,
		},
		{
			name:    "redis without address",
			cfg:     Config{Store: BackendMemory, MetadataStore: BackendRedis, Analyzer: AnalyzerHTTP, CacheTTL: time.Minute},
			wantErr: true,
		},
		{
			name:    "unknown analyzer",
			cfg:     Config{Store: BackendMemory, MetadataStore: BackendMemory, Analyzer: "magic", CacheTTL: time.Minute},
			wantErr: true,
		},
		{
			name:    "zero ttl",
			cfg:     Config{Store: BackendMemory, MetadataStore: BackendMemory, Analyzer: AnalyzerGemini},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
