package config

import (
	_ "embed"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Database  DatabaseConfig
	Redis     RedisConfig
	Web       WebConfig
	Cluster   ClusterConfig
	Trash     TrashConfig
	Embedding EmbeddingConfig
	LogLevel  string
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type RedisConfig struct {
	Addr string // host:port, empty disables the distributed cluster lock
}

type WebConfig struct {
	Host        string
	Port        int
	TokenSecret string // HMAC secret for owner bearer tokens
	CDNDomain   string // public domain images are served from (e.g. cdn.example.com)

	AllowedOrigins []string // CORS whitelist, localhost is always allowed
}

// ImageURL returns the public URL for an object path.
// Falls back to the raw path when no CDN domain is configured.
func (c *WebConfig) ImageURL(path string) string {
	if c.CDNDomain == "" {
		return path
	}
	return "https://" + c.CDNDomain + "/" + path
}

type ClusterConfig struct {
	Eps                    float64       `yaml:"eps"`
	MinSamples             int           `yaml:"min_samples"`
	HNSWThreshold          int           `yaml:"hnsw_threshold"`
	TimeoutPerMillionPairs time.Duration `yaml:"timeout_per_million_pairs"`
	MinTimeout             time.Duration `yaml:"min_timeout"`
	LockTTL                time.Duration `yaml:"lock_ttl"`
}

// RunTimeout returns the time budget for clustering n images.
// The distance matrix is O(n²), so the budget grows with the number of pairs.
func (c *ClusterConfig) RunTimeout(n int) time.Duration {
	pairs := float64(n) * float64(n-1) / 2
	budget := time.Duration(pairs / 1e6 * float64(c.TimeoutPerMillionPairs))
	return max(budget, c.MinTimeout)
}

type TrashConfig struct {
	Retention     time.Duration `yaml:"retention"`
	PurgeInterval time.Duration `yaml:"purge_interval"`
}

type EmbeddingConfig struct {
	Dim int `yaml:"dim"`
}

type defaults struct {
	Cluster   ClusterConfig   `yaml:"cluster"`
	Trash     TrashConfig     `yaml:"trash"`
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads a finite positive float, falling back to the default on bad input.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && !math.IsInf(f, 0) {
		return f
	}
	return defaultVal
}

// envDuration reads a positive Go duration string (e.g. "720h").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma-separated list, dropping empty entries.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var d defaults
	if err := yaml.Unmarshal(defaultsYAML, &d); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr: os.Getenv("REDIS_ADDR"),
		},
		Web: WebConfig{
			Host:        envString("WEB_HOST", "0.0.0.0"),
			Port:        envInt("WEB_PORT", 8080),
			TokenSecret: os.Getenv("WEB_TOKEN_SECRET"),
			CDNDomain:   os.Getenv("CDN_DOMAIN"),

			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
		Cluster: ClusterConfig{
			Eps:                    envFloat("CLUSTER_EPS", d.Cluster.Eps),
			MinSamples:             envInt("CLUSTER_MIN_SAMPLES", d.Cluster.MinSamples),
			HNSWThreshold:          envInt("CLUSTER_HNSW_THRESHOLD", d.Cluster.HNSWThreshold),
			TimeoutPerMillionPairs: envDuration("CLUSTER_TIMEOUT_PER_MILLION_PAIRS", d.Cluster.TimeoutPerMillionPairs),
			MinTimeout:             envDuration("CLUSTER_MIN_TIMEOUT", d.Cluster.MinTimeout),
			LockTTL:                envDuration("CLUSTER_LOCK_TTL", d.Cluster.LockTTL),
		},
		Trash: TrashConfig{
			Retention:     envDuration("TRASH_RETENTION", d.Trash.Retention),
			PurgeInterval: envDuration("TRASH_PURGE_INTERVAL", d.Trash.PurgeInterval),
		},
		Embedding: EmbeddingConfig{
			Dim: envInt("EMBEDDING_DIM", d.Embedding.Dim),
		},
		LogLevel: envString("LOG_LEVEL", "info"),
	}
}
