package config

import (
    "errors"
    "io/fs"
    "os"
    "runtime"
    "strconv"
    "strings"
    "time"

    "github.com/joho/godotenv"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level      string
    Pretty     bool
    File       string
    MaxSizeMB  int
    MaxBackups int
    MaxAgeDays int
    Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
    Send          bool
    APIKey        string
    OrgID         string
    Dataset       string
    FlushInterval time.Duration
}

// ChunkingConfig holds the partitioner and transcoder parameters.
type ChunkingConfig struct {
    MaxSizeMB      float64
    ImageMaxDim    int
    JPEGQuality    int
    RecompressJPEG bool
    Workers        int
    Lookahead      int
    OutputDir      string
}

// MaxChunkSize returns the budget in bytes.
func (c ChunkingConfig) MaxChunkSize() int64 { return MBToBytes(c.MaxSizeMB) }

// StorageConfig defines S3 connectivity.
type StorageConfig struct {
    Bucket          string
    Region          string
    Endpoint        string
    AccessKeyID     string
    SecretAccessKey string
    PathStyle       bool
}

// ServerConfig defines the webhook harness.
type ServerConfig struct {
    Port              string
    RedisURL          string
    MaxConcurrentJobs int
    TempDir           string
    JobTimeout        time.Duration
    StatusTTL         time.Duration
}

// Config is the top-level configuration.
type Config struct {
    Logging  LoggingConfig
    Axiom    AxiomConfig
    Chunking ChunkingConfig
    Storage  StorageConfig
    Server   ServerConfig
}

// Load reads .env files (missing ones are ignored) and then FromEnv.
// Variables already set in the environment win over .env values.
func Load(files ...string) (Config, error) {
    if len(files) == 0 {
        files = []string{".env"}
    }
    for _, f := range files {
        if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
            return Config{}, err
        }
    }
    return FromEnv(), nil
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
    cfg := Config{}

    cfg.Logging = LoggingConfig{
        Level:      getEnv("LOG_LEVEL", "info"),
        Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
        File:       getEnv("LOG_FILE", ""),
        MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
        MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
        MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
        Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
    }

    baseDataset := getEnv("AXIOM_DATASET", "dev")
    cfg.Axiom = AxiomConfig{
        Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
        APIKey:        getEnv("AXIOM_API_KEY", ""),
        OrgID:         getEnv("AXIOM_ORG_ID", ""),
        Dataset:       baseDataset + "_pdfchunk",
        FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
    }

    cfg.Chunking = ChunkingConfig{
        MaxSizeMB:      parseFloat(getEnv("PDFCHUNK_MAX_SIZE_MB", "4.0"), 4.0),
        ImageMaxDim:    parseInt(getEnv("PDFCHUNK_IMAGE_MAX_DIM", "1500"), 1500),
        JPEGQuality:    parseInt(getEnv("PDFCHUNK_JPEG_QUALITY", "75"), 75),
        RecompressJPEG: parseBool(getEnv("PDFCHUNK_RECOMPRESS_JPEG", "false")),
        Workers:        parseInt(getEnv("PDFCHUNK_WORKERS", ""), runtime.NumCPU()),
        Lookahead:      parseInt(getEnv("PDFCHUNK_LOOKAHEAD", "2"), 2),
        OutputDir:      getEnv("PDFCHUNK_OUTPUT_DIR", "output"),
    }

    cfg.Storage = StorageConfig{
        Bucket:          getEnv("AWS_S3_BUCKET", ""),
        Region:          getEnv("AWS_REGION", "us-east-1"),
        Endpoint:        getEnv("AWS_ENDPOINT_URL", ""),
        AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
        SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
        PathStyle:       parseBool(getEnv("AWS_S3_PATH_STYLE", "false")),
    }

    cfg.Server = ServerConfig{
        Port:              getEnv("PORT", "8080"),
        RedisURL:          getEnv("REDIS_URL", ""),
        MaxConcurrentJobs: parseInt(getEnv("MAX_CONCURRENT_JOBS", "2"), 2),
        TempDir:           getEnv("TEMP_DIR", os.TempDir()),
        JobTimeout:        parseDuration(getEnv("JOB_TIMEOUT", "30m"), 30*time.Minute),
        StatusTTL:         parseDuration(getEnv("STATUS_TTL", "24h"), 24*time.Hour),
    }
    if cfg.Server.MaxConcurrentJobs <= 0 { cfg.Server.MaxConcurrentJobs = 1 }

    return cfg
}

// MBToBytes converts megabytes (MiB) to bytes.
func MBToBytes(mb float64) int64 { return int64(mb * 1024 * 1024) }

// Helpers
func getEnv(key, def string) string {
    if v := os.Getenv(key); v != "" {
        return v
    }
    return def
}

func parseInt(s string, def int) int {
    if s == "" { return def }
    if n, err := strconv.Atoi(s); err == nil { return n }
    return def
}

func parseFloat(s string, def float64) float64 {
    if s == "" { return def }
    if f, err := strconv.ParseFloat(s, 64); err == nil { return f }
    return def
}

func parseBool(s string) bool {
    v := strings.ToLower(strings.TrimSpace(s))
    return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
    if s == "" { return def }
    if d, err := time.ParseDuration(s); err == nil { return d }
    return def
}

func devDefaultPretty() string {
    env := strings.ToLower(os.Getenv("ENVIRONMENT"))
    if env == "dev" || env == "development" || env == "local" { return "true" }
    return "false"
}
