package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

var (
	operationsSubmittedTotal atomic.Uint64
	operationsSucceededTotal atomic.Uint64
	operationsFailedTotal    atomic.Uint64
	operationsTimedOutTotal  atomic.Uint64
	operationsCancelledTotal atomic.Uint64

	operationDuration = newHistogram([]float64{250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000, 300000})
	pollAttempts      = newHistogram([]float64{1, 2, 3, 5, 8, 13, 21, 34, 55, 100})
)

// IncOperationSubmitted increments the submitted counter.
func IncOperationSubmitted() {
	operationsSubmittedTotal.Add(1)
}

// IncOperationSucceeded increments the succeeded counter.
func IncOperationSucceeded() {
	operationsSucceededTotal.Add(1)
}

// IncOperationFailed increments the failed counter.
func IncOperationFailed() {
	operationsFailedTotal.Add(1)
}

// IncOperationTimedOut increments the timed-out counter.
func IncOperationTimedOut() {
	operationsTimedOutTotal.Add(1)
}

// IncOperationCancelled increments the cancelled counter.
func IncOperationCancelled() {
	operationsCancelledTotal.Add(1)
}

// ObserveOperationDurationMs records submission-to-terminal duration.
func ObserveOperationDurationMs(value float64) {
	if value < 0 {
		value = 0
	}
	operationDuration.Observe(value)
}

// ObservePollAttempts records how many polls an operation took to finish.
func ObservePollAttempts(attempts int) {
	if attempts < 0 {
		attempts = 0
	}
	pollAttempts.Observe(float64(attempts))
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/plain; version=0.0.4")
		c.String(http.StatusOK, Render())
	}
}

// Render renders all metrics in Prometheus text format.
func Render() string {
	var buf bytes.Buffer
	writeCounter(&buf, "operations_submitted_total", "Total analysis operations submitted", operationsSubmittedTotal.Load())
	writeCounter(&buf, "operations_succeeded_total", "Total analysis operations succeeded", operationsSucceededTotal.Load())
	writeCounter(&buf, "operations_failed_total", "Total analysis operations failed", operationsFailedTotal.Load())
	writeCounter(&buf, "operations_timed_out_total", "Total analysis operations timed out", operationsTimedOutTotal.Load())
	writeCounter(&buf, "operations_cancelled_total", "Total analysis operations cancelled", operationsCancelledTotal.Load())
	writeHistogram(&buf, "operation_duration_ms", "Operation duration from submit to terminal state in milliseconds", operationDuration.Snapshot())
	writeHistogram(&buf, "operation_poll_attempts", "Poll attempts per operation", pollAttempts.Snapshot())
	return buf.String()
}

type histogram struct {
	mu      sync.Mutex
	bounds  []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type histogramSnapshot struct {
	bounds []float64
	counts []uint64
	sum    float64
	count  uint64
}

func newHistogram(bounds []float64) *histogram {
	return &histogram{
		bounds: bounds,
		counts: make([]uint64, len(bounds)+1),
	}
}

func (h *histogram) Observe(value float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += value
	for i, bound := range h.bounds {
		if value <= bound {
			h.counts[i]++
			return
		}
	}
	h.counts[len(h.bounds)]++
}

func (h *histogram) Snapshot() histogramSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return histogramSnapshot{
		bounds: append([]float64(nil), h.bounds...),
		counts: append([]uint64(nil), h.counts...),
		sum:    h.sum,
		count:  h.count,
	}
}

func writeCounter(buf *bytes.Buffer, name, help string, value uint64) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s counter\n", name)
	fmt.Fprintf(buf, "%s %d\n", name, value)
}

func writeHistogram(buf *bytes.Buffer, name, help string, snap histogramSnapshot) {
	fmt.Fprintf(buf, "# HELP %s %s\n", name, help)
	fmt.Fprintf(buf, "# TYPE %s histogram\n", name)
	var cumulative uint64
	for i, bound := range snap.bounds {
		cumulative += snap.counts[i]
		fmt.Fprintf(buf, "%s_bucket{le=\"%s\"} %d\n", name, formatFloat(bound), cumulative)
	}
	fmt.Fprintf(buf, "%s_bucket{le=\"+Inf\"} %d\n", name, snap.count)
	fmt.Fprintf(buf, "%s_sum %s\n", name, formatFloat(snap.sum))
	fmt.Fprintf(buf, "%s_count %d\n", name, snap.count)
}

func formatFloat(value float64) string {
	if value == float64(int64(value)) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', -1, 64)
}
