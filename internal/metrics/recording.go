// Package metrics provides Prometheus metrics for the recording pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "facegate"

var (
	recordingActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "recording",
		Name:      "active",
		Help:      "1 while a recording session is running",
	})

	sessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "recording",
		Name:      "sessions_total",
		Help:      "Recording sessions by how they ended",
	}, []string{"reason"})

	startFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "recording",
		Name:      "start_failures_total",
		Help:      "Start requests that could not open the camera or output file",
	}, []string{"cause"})

	stopDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "recording",
		Name:      "stop_duration_seconds",
		Help:      "Time from stop request until resources were released",
		Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
	})

	framesRead = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "capture",
		Name:      "frames_read_total",
		Help:      "Frames read from the camera",
	})

	framesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sink",
		Name:      "frames_written_total",
		Help:      "Frames persisted to recording files",
	})

	detections = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "detect",
		Name:      "faces_total",
		Help:      "Faces detected across all frames",
	})

	classifierErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "detect",
		Name:      "classifier_errors_total",
		Help:      "Classifier calls that failed and were treated as no detection",
	})

	detectSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "detect",
		Name:      "duration_seconds",
		Help:      "Time spent classifying one frame",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	})
)

// SetRecording flips the active gauge.
func SetRecording(active bool) {
	if active {
		recordingActive.Set(1)
		return
	}
	recordingActive.Set(0)
}

// SessionEnded counts a finished session by end reason.
func SessionEnded(reason string) {
	sessionsTotal.WithLabelValues(reason).Inc()
}

// StartFailed counts a rejected start by cause ("device", "sink").
func StartFailed(cause string) {
	startFailuresTotal.WithLabelValues(cause).Inc()
}

// ObserveStop records how long a stop took, in seconds.
func ObserveStop(seconds float64) {
	stopDuration.Observe(seconds)
}

// FrameRead counts one frame taken from the camera.
func FrameRead() {
	framesRead.Inc()
}

// FrameWritten counts one frame persisted to disk.
func FrameWritten() {
	framesWritten.Inc()
}

// FacesDetected adds n detections.
func FacesDetected(n int) {
	if n > 0 {
		detections.Add(float64(n))
	}
}

// ClassifierError counts a failed classifier call.
func ClassifierError() {
	classifierErrors.Inc()
}

// ObserveDetect records classifier latency, in seconds.
func ObserveDetect(seconds float64) {
	detectSeconds.Observe(seconds)
}
