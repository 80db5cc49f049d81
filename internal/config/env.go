package config

import (
    "os"
    "strconv"
    "strings"
    "time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
    Level        string
    Pretty       bool
    File         string
    MaxSizeMB    int
    MaxBackups   int
    MaxAgeDays   int
    Compress     bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
    Send          bool
    APIKey        string
    OrgID         string
    Dataset       string
    FlushInterval time.Duration
}

// ServerConfig holds the HTTP listener and request limits.
type ServerConfig struct {
    Addr             string
    ReadTimeout      time.Duration
    WriteTimeout     time.Duration
    ShutdownTimeout  time.Duration
    MaxUploadBytes   int64
    UploadRatePerMin int
}

// SessionConfig controls in-memory editing sessions.
type SessionConfig struct {
    TTL             time.Duration
    CleanupInterval time.Duration
}

// IntakeConfig controls fetching documents by reference.
type IntakeConfig struct {
    AllowFetch   bool
    FileRoot     string // local refs are rejected when empty
    FetchTimeout time.Duration
    AllowedHosts []string // http(s) fetch hosts; empty allows any
}

// MergeConfig defines worker behavior and output tuning.
type MergeConfig struct {
    Concurrency    int
    QueueSize      int
    JobTimeout     time.Duration
    Oversample     float64
    JPEGQuality    int
    ThumbQuality   int
    GrayscaleFlat  bool
}

// StoreConfig selects where job status and merged output live.
type StoreConfig struct {
    RedisURL        string // empty = in-memory job status
    StatusTTL       time.Duration
    ResultBackend   string // "local"|"s3"
    ResultDir       string
    ResultTTL       time.Duration
    CleanupInterval time.Duration
    S3Bucket        string
    S3Prefix        string
    EncryptPassword string // empty = results stored in the clear
}

// Config is the top-level configuration.
type Config struct {
    Logging LoggingConfig
    Axiom   AxiomConfig
    Server  ServerConfig
    Session SessionConfig
    Intake  IntakeConfig
    Merge   MergeConfig
    Store   StoreConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
    cfg := Config{}

    // Logging defaults
    cfg.Logging = LoggingConfig{
        Level:      getEnv("LOG_LEVEL", "info"),
        Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
        File:       getEnv("LOG_FILE", "logs/pagemerge.log"),
        MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
        MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
        MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
        Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
    }

    // Axiom defaults
    baseDataset := getEnv("AXIOM_DATASET", "dev")
    cfg.Axiom = AxiomConfig{
        Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
        APIKey:        getEnv("AXIOM_API_KEY", ""),
        OrgID:         getEnv("AXIOM_ORG_ID", ""),
        Dataset:       baseDataset + "_pagemerge",
        FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
    }

    cfg.Server = ServerConfig{
        Addr:             getEnv("HTTP_ADDR", ":8080"),
        ReadTimeout:      parseDuration(getEnv("HTTP_READ_TIMEOUT", "60s"), 60*time.Second),
        WriteTimeout:     parseDuration(getEnv("HTTP_WRITE_TIMEOUT", "120s"), 120*time.Second),
        ShutdownTimeout:  parseDuration(getEnv("SHUTDOWN_TIMEOUT", "30s"), 30*time.Second),
        MaxUploadBytes:   int64(parseInt(getEnv("MAX_UPLOAD_MB", "100"), 100)) << 20,
        UploadRatePerMin: parseInt(getEnv("UPLOAD_RATE_PER_MIN", "60"), 60),
    }

    cfg.Session = SessionConfig{
        TTL:             parseDuration(getEnv("SESSION_TTL", "2h"), 2*time.Hour),
        CleanupInterval: parseDuration(getEnv("SESSION_CLEANUP_INTERVAL", "10m"), 10*time.Minute),
    }

    cfg.Intake = IntakeConfig{
        AllowFetch:   parseBool(getEnv("INTAKE_ALLOW_FETCH", "true")),
        FileRoot:     getEnv("INTAKE_FILE_ROOT", ""),
        FetchTimeout: parseDuration(getEnv("INTAKE_FETCH_TIMEOUT", "60s"), 60*time.Second),
        AllowedHosts: parseList(getEnv("INTAKE_ALLOWED_HOSTS", "")),
    }

    // Worker defaults
    cfg.Merge = MergeConfig{
        Concurrency:   parseInt(getEnv("MERGE_CONCURRENCY", "4"), 4),
        QueueSize:     parseInt(getEnv("MERGE_QUEUE_SIZE", "64"), 64),
        JobTimeout:    parseDuration(getEnv("MERGE_JOB_TIMEOUT", "10m"), 10*time.Minute),
        Oversample:    parseFloat(getEnv("FLATTEN_OVERSAMPLE", "2.0"), 2.0),
        JPEGQuality:   parseInt(getEnv("FLATTEN_JPEG_QUALITY", "90"), 90),
        ThumbQuality:  parseInt(getEnv("THUMBNAIL_JPEG_QUALITY", "75"), 75),
        GrayscaleFlat: parseBool(getEnv("FLATTEN_GRAYSCALE", "false")),
    }
    if cfg.Merge.Concurrency <= 0 { cfg.Merge.Concurrency = 1 }
    if cfg.Merge.QueueSize < cfg.Merge.Concurrency { cfg.Merge.QueueSize = cfg.Merge.Concurrency }

    cfg.Store = StoreConfig{
        RedisURL:        getEnv("REDIS_URL", ""),
        StatusTTL:       parseDuration(getEnv("JOB_STATUS_TTL", "24h"), 24*time.Hour),
        ResultBackend:   strings.ToLower(getEnv("RESULT_BACKEND", "local")),
        ResultDir:       getEnv("RESULT_DIR", "data/results"),
        ResultTTL:       parseDuration(getEnv("RESULT_TTL", "1h"), time.Hour),
        CleanupInterval: parseDuration(getEnv("RESULT_CLEANUP_INTERVAL", "5m"), 5*time.Minute),
        S3Bucket:        getEnv("S3_BUCKET", ""),
        S3Prefix:        getEnv("S3_PREFIX", "merged/"),
        EncryptPassword: getEnv("RESULT_ENCRYPTION_PASSWORD", ""),
    }

    return cfg
}

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

func parseList(s string) []string {
    var out []string
    for _, part := range strings.Split(s, ",") {
        if p := strings.TrimSpace(part); p != "" { out = append(out, p) }
    }
    return out
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
