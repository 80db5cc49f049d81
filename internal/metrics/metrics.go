package metrics

import (
    "net/http"
    "time"

    "github.com/prometheus/client_golang/prometheus"
    "github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pagemerge"

var (
    mergesTotal = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "merges_total",
            Help:      "Merge jobs by result (success, failed, cancelled)",
        },
        []string{"result"},
    )

    mergeDuration = prometheus.NewHistogramVec(
        prometheus.HistogramOpts{
            Namespace: namespace,
            Name:      "merge_duration_seconds",
            Help:      "Duration of merge jobs by result",
            Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
        },
        []string{"result"},
    )

    pagesMerged = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "pages_merged_total",
            Help:      "Pages written to merged output by path (copied, scaled, flattened)",
        },
        []string{"path"},
    )

    intakeFiles = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "intake_files_total",
            Help:      "Files offered to intake by source and result",
        },
        []string{"source", "result"},
    )

    thumbnails = prometheus.NewCounterVec(
        prometheus.CounterOpts{
            Namespace: namespace,
            Name:      "thumbnails_total",
            Help:      "Thumbnails rendered by result",
        },
        []string{"result"},
    )

    sessionsActive = prometheus.NewGauge(
        prometheus.GaugeOpts{
            Namespace: namespace,
            Name:      "sessions_active",
            Help:      "Editing sessions currently held in memory",
        },
    )

    queueDepth = prometheus.NewGauge(
        prometheus.GaugeOpts{
            Namespace: namespace,
            Name:      "merge_queue_depth",
            Help:      "Merge jobs waiting for a worker",
        },
    )
)

// Init registers collectors.
func Init() {
    prometheus.MustRegister(mergesTotal, mergeDuration, pagesMerged, intakeFiles, thumbnails, sessionsActive, queueDepth)
}

// Handler returns the http.Handler for /metrics
func Handler() http.Handler { return promhttp.Handler() }

func ObserveMerge(result string, dur time.Duration) {
    mergesTotal.WithLabelValues(result).Inc()
    mergeDuration.WithLabelValues(result).Observe(dur.Seconds())
}

func AddPages(copied, scaled, flattened int) {
    pagesMerged.WithLabelValues("copied").Add(float64(copied))
    pagesMerged.WithLabelValues("scaled").Add(float64(scaled))
    pagesMerged.WithLabelValues("flattened").Add(float64(flattened))
}

func IncIntake(source, result string) { intakeFiles.WithLabelValues(source, result).Inc() }
func IncThumbnail(result string)      { thumbnails.WithLabelValues(result).Inc() }

func SetSessions(n int)     { sessionsActive.Set(float64(n)) }
func SetQueueDepth(n int)   { queueDepth.Set(float64(n)) }
