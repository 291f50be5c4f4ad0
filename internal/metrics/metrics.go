package metrics

import (
    "net/http"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
    chunksEmitted = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdfchunk",
            Name:      "chunks_emitted_total",
            Help:      "Chunks handed to a sink, by result (ok, oversize, failed)",
        },
        []string{"result"},
    )

    chunkBytes = prometheus.NewHistogram(
        prometheus.HistogramOpts{
            Namespace: "pdfchunk",
            Name:      "chunk_size_bytes",
            Help:      "Serialized size of emitted chunks",
            Buckets:   prometheus.ExponentialBuckets(64<<10, 2, 10),
        },
    )

    pagesProcessed = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "pdfchunk",
            Name:      "pages_processed_total",
            Help:      "Pages committed to a chunk",
        },
    )

    imagesTranscoded = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdfchunk",
            Name:      "images_transcoded_total",
            Help:      "Image transcodes by result (changed, skipped, failed)",
        },
        []string{"result"},
    )

    imageBytesSaved = prometheus.NewCounter(
        prometheus.CounterOpts{
            Namespace: "pdfchunk",
            Name:      "image_bytes_saved_total",
            Help:      "Bytes removed from image streams by transcoding",
        },
    )

    measureLatency = prometheus.NewHistogram(
        prometheus.HistogramOpts{
            Namespace: "pdfchunk",
            Name:      "measure_duration_seconds",
            Help:      "Duration of trial build and serialize",
            Buckets:   prometheus.DefBuckets,
        },
    )

    jobs = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: "pdfchunk",
            Name:      "jobs_total",
            Help:      "Webhook jobs by result (completed, failed, cancelled)",
        },
        []string{"result"},
    )

    jobsInflight = prometheus.NewGauge(
        prometheus.GaugeOpts{
            Namespace: "pdfchunk",
            Name:      "jobs_inflight",
            Help:      "Webhook jobs currently running",
        },
    )
)

// Init registers collectors.
func Init() {
    prometheus.MustRegister(chunksEmitted, chunkBytes, pagesProcessed, imagesTranscoded, imageBytesSaved, measureLatency, jobs, jobsInflight)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveChunk(size int64, oversize bool) {
    result := "ok"
    if oversize { result = "oversize" }
    chunksEmitted.WithLabelValues(result).Inc()
    chunkBytes.Observe(float64(size))
}

func IncChunkFailed() { chunksEmitted.WithLabelValues("failed").Inc() }

func AddPages(n int) { pagesProcessed.Add(float64(n)) }

// ObserveImage records one transcode. saved may be negative when a
// conversion grew the stream.
func ObserveImage(result string, saved int) {
    imagesTranscoded.WithLabelValues(result).Inc()
    if saved > 0 { imageBytesSaved.Add(float64(saved)) }
}

func ObserveMeasure(dur time.Duration) { measureLatency.Observe(dur.Seconds()) }

func IncJob(result string) { jobs.WithLabelValues(result).Inc() }
func JobStarted()          { jobsInflight.Inc() }
func JobFinished()         { jobsInflight.Dec() }
