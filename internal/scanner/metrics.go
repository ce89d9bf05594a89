package scanner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "airsane_scans_total",
		Help: "Scan jobs by result.",
	}, []string{"result"})

	pagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "airsane_pages_total",
		Help: "Pages scanned.",
	})

	bytesRead = promauto.NewCounter(prometheus.CounterOpts{
		Name: "airsane_read_bytes_total",
		Help: "Raw image bytes read from the device.",
	})

	scanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "airsane_scan_duration_seconds",
		Help:    "Time spent in a scan job.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 8),
	})
)

func observeScan(pages []Page, err error, d time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	scansTotal.WithLabelValues(result).Inc()
	pagesTotal.Add(float64(len(pages)))
	scanDuration.Observe(d.Seconds())
}
