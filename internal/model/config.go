package model

import (
	"os"
	"path/filepath"
	"time"
)

// Config is the complete runtime configuration
type Config struct {
	HTTP        HTTPConfig        `yaml:"http" mapstructure:"http"`
	Sources     SourcesConfig     `yaml:"sources" mapstructure:"sources"`
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
	Storage     StorageConfig     `yaml:"storage" mapstructure:"storage"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	LogLevel    string            `yaml:"log_level" mapstructure:"log_level"`
	LogFormat   string            `yaml:"log_format" mapstructure:"log_format"`
}

// HTTPConfig holds outbound HTTP settings shared by all source adapters
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent    string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	HTTPProxy    string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy   string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy      string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// SourcesConfig holds per-source endpoints and query limits
type SourcesConfig struct {
	NCBIAPIKey       string `yaml:"ncbi_api_key,omitempty" mapstructure:"ncbi_api_key"`
	NCBIEmail        string `yaml:"ncbi_email,omitempty" mapstructure:"ncbi_email"`
	PubMedMaxResults int    `yaml:"pubmed_max_results" mapstructure:"pubmed_max_results"`
	LookbackYears    int    `yaml:"lookback_years" mapstructure:"lookback_years"`
	TrialsPageSize   int    `yaml:"trials_page_size" mapstructure:"trials_page_size"`
	EUtilsBaseURL    string `yaml:"eutils_base_url" mapstructure:"eutils_base_url"`
	OpenFDABaseURL   string `yaml:"openfda_base_url" mapstructure:"openfda_base_url"`
	TrialsBaseURL    string `yaml:"trials_base_url" mapstructure:"trials_base_url"`
}

// LLMConfig configures the generation service
type LLMConfig struct {
	Provider        string `yaml:"provider" mapstructure:"provider"`
	Model           string `yaml:"model" mapstructure:"model"`
	APIKey          string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL         string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	AzureEndpoint   string `yaml:"azure_endpoint,omitempty" mapstructure:"azure_endpoint"`
	AzureAPIVersion string `yaml:"azure_api_version,omitempty" mapstructure:"azure_api_version"`
	Timeout         int    `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxTokens       int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// CacheConfig configures source response caching
type CacheConfig struct {
	Enabled       bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir           string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL     time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL       time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
	RedisAddr     string        `yaml:"redis_addr,omitempty" mapstructure:"redis_addr"`
	RedisPassword string        `yaml:"redis_password,omitempty" mapstructure:"redis_password"`
	RedisDB       int           `yaml:"redis_db" mapstructure:"redis_db"`
}

// ConcurrencyConfig bounds the fan-out stages
type ConcurrencyConfig struct {
	FullTextWorkers int `yaml:"fulltext_workers" mapstructure:"fulltext_workers"`
	ScoringWorkers  int `yaml:"scoring_workers" mapstructure:"scoring_workers"`
	BatchWorkers    int `yaml:"batch_workers" mapstructure:"batch_workers"`
}

// OutputConfig controls rendering
type OutputConfig struct {
	Dir      string `yaml:"dir" mapstructure:"dir"`
	Markdown bool   `yaml:"markdown" mapstructure:"markdown"`
	Verbose  bool   `yaml:"verbose" mapstructure:"verbose"`
}

// StorageConfig configures optional S3 upload of outputs
type StorageConfig struct {
	S3Bucket string `yaml:"s3_bucket,omitempty" mapstructure:"s3_bucket"`
	S3Prefix string `yaml:"s3_prefix,omitempty" mapstructure:"s3_prefix"`
	S3Region string `yaml:"s3_region,omitempty" mapstructure:"s3_region"`
}

// ServerConfig configures `rxclaims serve`
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	cacheDir := ".rxclaims-cache"
	if home, err := os.UserHomeDir(); err == nil {
		cacheDir = filepath.Join(home, ".rxclaims", "cache")
	}

	return &Config{
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			UserAgent:    "rxclaims/0.1 (+https://github.com/ppiankov/rxclaims)",
			MaxBodyBytes: 20_000_000,
		},
		Sources: SourcesConfig{
			PubMedMaxResults: 20,
			LookbackYears:    5,
			TrialsPageSize:   10,
			EUtilsBaseURL:    "https://eutils.ncbi.nlm.nih.gov/entrez/eutils",
			OpenFDABaseURL:   "https://api.fda.gov/drug/label.json",
			TrialsBaseURL:    "https://clinicaltrials.gov/api/v2/studies",
		},
		LLM: LLMConfig{
			Provider:        "openai",
			Model:           "gpt-4o-mini",
			AzureAPIVersion: "2024-02-15-preview",
			Timeout:         60,
			MaxTokens:       2048,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       cacheDir,
			MemoryTTL: 30 * time.Minute,
			DiskTTL:   24 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			FullTextWorkers: 5,
			ScoringWorkers:  5,
			BatchWorkers:    2,
		},
		Output: OutputConfig{
			Dir: "output",
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		LogLevel:  "info",
		LogFormat: "console",
	}
}
