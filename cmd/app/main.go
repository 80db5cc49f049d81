package main

import (
    "context"
    "errors"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "syscall"

    "github.com/joho/godotenv"
    "github.com/rs/zerolog/log"

    cfgpkg "github.com/local/pagemerge/internal/config"
    "github.com/local/pagemerge/internal/dispatcher"
    "github.com/local/pagemerge/internal/imagerender"
    "github.com/local/pagemerge/internal/intake"
    logpkg "github.com/local/pagemerge/internal/logger"
    "github.com/local/pagemerge/internal/merge"
    "github.com/local/pagemerge/internal/metrics"
    "github.com/local/pagemerge/internal/orchestrator"
    "github.com/local/pagemerge/internal/statuscheck"
    "github.com/local/pagemerge/internal/storage"
    "github.com/local/pagemerge/internal/store"
)

func main() {
    // .env is optional; real environment wins
    _ = godotenv.Load()
    cfg := cfgpkg.FromEnv()

    if err := logpkg.Init(logpkg.OptionsFromConfig(cfg)); err != nil {
        fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
    }
    defer logpkg.Close()
    metrics.Init()

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()

    // Job status: Redis when configured, memory otherwise
    var status store.StatusStore
    var redisPing statuscheck.Pinger
    if cfg.Store.RedisURL != "" {
        rs, err := store.NewRedisStatus(cfg.Store.RedisURL, cfg.Store.StatusTTL)
        if err != nil {
            log.Fatal().Err(err).Msg("failed to init redis status store")
        }
        status, redisPing = rs, rs
    } else {
        status = store.NewMemoryStatus(cfg.Store.StatusTTL)
        log.Warn().Msg("REDIS_URL not set; job status kept in memory")
    }
    defer status.Close()

    // Merged output
    var results storage.ResultStore
    switch cfg.Store.ResultBackend {
    case "s3":
        s3s, err := storage.NewS3Store(ctx, cfg.Store.S3Bucket, cfg.Store.S3Prefix, cfg.Store.EncryptPassword)
        if err != nil {
            log.Fatal().Err(err).Msg("failed to init s3 result store")
        }
        results = s3s
    default:
        ls, err := storage.NewLocalStore(cfg.Store.ResultDir, cfg.Store.EncryptPassword)
        if err != nil {
            log.Fatal().Err(err).Msg("failed to init local result store")
        }
        go ls.RunCleanup(ctx, cfg.Store.CleanupInterval, cfg.Store.ResultTTL)
        results = ls
    }

    color := imagerender.ColorRGB
    if cfg.Merge.GrayscaleFlat { color = imagerender.ColorGray }
    pipeline := merge.New(merge.NewPDFCPUBackend(cfg.Merge.JPEGQuality), imagerender.Opener(color))

    worker := dispatcher.New(dispatcher.Config{
        Concurrency: cfg.Merge.Concurrency,
        QueueSize:   cfg.Merge.QueueSize,
        JobTimeout:  cfg.Merge.JobTimeout,
        Oversample:  cfg.Merge.Oversample,
    }, pipeline, status, results)
    worker.Start()

    var fetcher *intake.Fetcher
    if cfg.Intake.AllowFetch {
        fetcher = intake.NewFetcher(cfg.Intake.FileRoot, cfg.Server.MaxUploadBytes, cfg.Intake.FetchTimeout, cfg.Intake.AllowedHosts...)
        if len(cfg.Intake.AllowedHosts) == 0 {
            log.Warn().Msg("INTAKE_ALLOWED_HOSTS not set; http fetches may reach any host")
        }
    }

    orch := orchestrator.New(orchestrator.Dependencies{
        Sessions: orchestrator.NewSessions(cfg.Session.TTL, cfg.Session.CleanupInterval),
        Intake:   intake.New(fetcher, cfg.Server.MaxUploadBytes),
        Jobs:     worker,
        Results:  results,
        Thumbs:   imagerender.Thumbnailer{Mode: imagerender.ColorRGB, Quality: cfg.Merge.ThumbQuality},
        Ready: statuscheck.New(statuscheck.Options{
            Redis:   redisPing,
            Results: results,
            Raster:  imagerender.Probe,
        }),
        MaxUploadBytes:   cfg.Server.MaxUploadBytes,
        UploadRatePerMin: cfg.Server.UploadRatePerMin,
    })

    srv := &http.Server{
        Addr:         cfg.Server.Addr,
        Handler:      orch.Routes(),
        ReadTimeout:  cfg.Server.ReadTimeout,
        WriteTimeout: cfg.Server.WriteTimeout,
    }
    go func() {
        log.Info().Str("addr", cfg.Server.Addr).Int("workers", cfg.Merge.Concurrency).Str("results", cfg.Store.ResultBackend).Msg("HTTP server listening")
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            log.Fatal().Err(err).Msg("http server error")
        }
    }()

    <-ctx.Done()
    log.Info().Msg("shutting down")
    shutCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
    defer cancel()
    if err := srv.Shutdown(shutCtx); err != nil {
        log.Warn().Err(err).Msg("http shutdown")
    }
    if err := worker.Stop(shutCtx); err != nil {
        log.Warn().Err(err).Msg("merge workers did not finish in time")
    }
    log.Info().Msg("shutdown complete")
}
