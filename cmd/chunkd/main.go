package main

import (
    "context"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "syscall"
    "time"

    "github.com/rs/zerolog/log"

    "github.com/local/pdfchunk/internal/chunker"
    cfgpkg "github.com/local/pdfchunk/internal/config"
    logpkg "github.com/local/pdfchunk/internal/logger"
    "github.com/local/pdfchunk/internal/metrics"
    "github.com/local/pdfchunk/internal/server"
    "github.com/local/pdfchunk/internal/storage"
    "github.com/local/pdfchunk/internal/store"
)

func main() {
    cfg, err := cfgpkg.Load()
    if err != nil {
        fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
        os.Exit(2)
    }

    if err := logpkg.Init(logpkg.FromConfig(cfg.Logging, cfg.Axiom, "chunkd")); err != nil {
        fmt.Fprintf(os.Stderr, "init logging: %v\n", err)
        os.Exit(2)
    }
    defer logpkg.Close()

    metrics.Init()

    // Object storage
    s3c, err := storage.NewClient(context.Background(), cfg.Storage)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to init s3 client")
    }

    // Status store
    var status store.StatusStore
    if cfg.Server.RedisURL != "" {
        rs, err := store.NewRedisStatus(cfg.Server.RedisURL, cfg.Server.StatusTTL)
        if err != nil {
            log.Fatal().Err(err).Msg("failed to init redis status store")
        }
        defer rs.Close()
        status = rs
    } else {
        log.Warn().Msg("REDIS_URL not set, job status kept in memory")
        status = store.NewMemoryStatus()
    }

    ch := cfg.Chunking
    srv := server.New(server.Dependencies{
        Storage: s3c,
        Status:  status,
        Bucket:  s3c.Bucket(),
        Chunking: chunker.Config{
            MaxChunkSize:   ch.MaxChunkSize(),
            ImageMaxDim:    ch.ImageMaxDim,
            JPEGQuality:    ch.JPEGQuality,
            RecompressJPEG: ch.RecompressJPEG,
            Workers:        ch.Workers,
            Lookahead:      ch.Lookahead,
        },
        TempDir:           cfg.Server.TempDir,
        MaxConcurrentJobs: cfg.Server.MaxConcurrentJobs,
        JobTimeout:        cfg.Server.JobTimeout,
    })
    mux := http.NewServeMux()
    srv.RegisterRoutes(mux)

    // Stale downloads from crashed jobs
    janitorCtx, stopJanitor := context.WithCancel(context.Background())
    defer stopJanitor()
    go func() {
        ticker := time.NewTicker(10 * time.Minute)
        defer ticker.Stop()
        for {
            select {
            case <-janitorCtx.Done():
                return
            case <-ticker.C:
                if n := storage.CleanupTemps(cfg.Server.TempDir, 2*cfg.Server.JobTimeout); n > 0 {
                    log.Info().Int("removed", n).Msg("stale temp files cleaned")
                }
            }
        }
    }()

    port := cfg.Server.Port
    httpSrv := &http.Server{Addr: ":"+port, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

    go func(){
        log.Info().Msgf("HTTP server listening on :%s", port)
        if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
            log.Fatal().Err(err).Msg("http server error")
        }
    }()

    // Graceful shutdown
    stop := make(chan os.Signal, 1)
    signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
    <-stop
    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
    defer cancel()
    _ = httpSrv.Shutdown(ctx)
    if err := srv.Shutdown(ctx); err != nil {
        log.Warn().Err(err).Msg("jobs still running at shutdown")
    }
    fmt.Println("shutdown complete")
}
