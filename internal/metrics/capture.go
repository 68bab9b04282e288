// Package metrics provides Prometheus metrics for capture sessions.
package metrics

import (
	"maps"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	captureFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "v4lcap",
		Subsystem: "capture",
		Name:      "frames_total",
		Help:      "Frames acquired",
	}, []string{"device"})

	captureNoFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "v4lcap",
		Subsystem: "capture",
		Name:      "no_frame_total",
		Help:      "Acquisition attempts that timed out without a frame",
	}, []string{"device"})

	captureErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "v4lcap",
		Subsystem: "capture",
		Name:      "errors_total",
		Help:      "Capture failures by kind",
	}, []string{"device", "kind"})

	captureRequeueFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "v4lcap",
		Subsystem: "capture",
		Name:      "requeue_failures_total",
		Help:      "Buffers that could not be handed back to the driver",
	}, []string{"device"})

	captureFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "v4lcap",
		Subsystem: "capture",
		Name:      "fps",
		Help:      "Measured frames per second",
	}, []string{"device"})

	captureMeanLuma = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "v4lcap",
		Subsystem: "capture",
		Name:      "mean_luma",
		Help:      "Mean luma of the last sampled frame, 0-255",
	}, []string{"device"})

	// Local cache so the API can report values without scraping.
	captureCache   = make(map[string]*CaptureMetrics)
	captureCacheMu sync.RWMutex
)

// CaptureMetrics holds current metric values for a device.
type CaptureMetrics struct {
	Frames          uint64
	NoFrames        uint64
	RequeueFailures uint64
	Errors          map[string]uint64
	FPS             float64
	MeanLuma        float64
}

// RecordFrame counts one acquired frame.
func RecordFrame(device string) {
	captureFrames.WithLabelValues(device).Inc()
	updateCache(device, func(m *CaptureMetrics) { m.Frames++ })
}

// RecordNoFrame counts one acquisition timeout.
func RecordNoFrame(device string) {
	captureNoFrames.WithLabelValues(device).Inc()
	updateCache(device, func(m *CaptureMetrics) { m.NoFrames++ })
}

// RecordError counts one capture failure of the given kind.
func RecordError(device, kind string) {
	captureErrors.WithLabelValues(device, kind).Inc()
	updateCache(device, func(m *CaptureMetrics) { m.Errors[kind]++ })
}

// AddRequeueFailures adds n buffer requeue failures.
func AddRequeueFailures(device string, n uint64) {
	if n == 0 {
		return
	}
	captureRequeueFailures.WithLabelValues(device).Add(float64(n))
	updateCache(device, func(m *CaptureMetrics) { m.RequeueFailures += n })
}

// SetFPS sets the measured framerate.
func SetFPS(device string, fps float64) {
	captureFPS.WithLabelValues(device).Set(fps)
	updateCache(device, func(m *CaptureMetrics) { m.FPS = fps })
}

// SetMeanLuma sets the mean luma of the last sampled frame.
func SetMeanLuma(device string, luma float64) {
	captureMeanLuma.WithLabelValues(device).Set(luma)
	updateCache(device, func(m *CaptureMetrics) { m.MeanLuma = luma })
}

// DeleteCaptureMetrics removes all metrics for a device.
func DeleteCaptureMetrics(device string) {
	captureFrames.DeleteLabelValues(device)
	captureNoFrames.DeleteLabelValues(device)
	captureErrors.DeletePartialMatch(prometheus.Labels{"device": device})
	captureRequeueFailures.DeleteLabelValues(device)
	captureFPS.DeleteLabelValues(device)
	captureMeanLuma.DeleteLabelValues(device)

	captureCacheMu.Lock()
	delete(captureCache, device)
	captureCacheMu.Unlock()
}

// GetCaptureMetrics returns a copy of the current values for a device, or nil.
func GetCaptureMetrics(device string) *CaptureMetrics {
	captureCacheMu.RLock()
	defer captureCacheMu.RUnlock()
	if m, ok := captureCache[device]; ok {
		dup := *m
		dup.Errors = maps.Clone(m.Errors)
		return &dup
	}
	return nil
}

// Handler returns the Prometheus metrics HTTP handler.
// This collects all promauto-registered metrics automatically.
func Handler() http.Handler {
	return promhttp.Handler()
}

func updateCache(device string, update func(*CaptureMetrics)) {
	captureCacheMu.Lock()
	defer captureCacheMu.Unlock()
	m, ok := captureCache[device]
	if !ok {
		m = &CaptureMetrics{Errors: make(map[string]uint64)}
		captureCache[device] = m
	}
	update(m)
}
