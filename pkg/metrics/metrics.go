// Package metrics exposes PAPI's Prometheus surface: one counter for HTTP
// requests by route/method/status, and a set of gauges mirroring C9's
// cluster snapshot (spec §4.9's "metrics" ambient concern, which has no
// teacher precedent in opst-knitfab but is grounded on the pack's
// kubedl-io-kubedl, whose pkg/metrics uses the same
// promauto.NewCounterVec/NewGaugeVec package-level registration style).
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ai4os/papi/pkg/apitypes"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "papi_http_requests_total",
		Help: "Count of HTTP requests served, by route, method and status.",
	}, []string{"route", "method", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "papi_http_request_duration_seconds",
		Help: "HTTP request latency, by route.",
	}, []string{"route"})

	nodeCapacityCPU = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "papi_node_capacity_cpu_cores",
		Help: "Ready node CPU capacity, by VO.",
	}, []string{"vo"})

	nodeCapacityGPU = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "papi_node_capacity_gpu_count",
		Help: "Ready node GPU capacity, by VO.",
	}, []string{"vo"})

	usedCPU = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "papi_used_cpu_cores",
		Help: "CPU cores currently allocated to live deployments, by VO.",
	}, []string{"vo"})

	usedGPU = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "papi_used_gpu_count",
		Help: "GPUs currently allocated to live deployments, by VO.",
	}, []string{"vo"})

	readyNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "papi_ready_nodes",
		Help: "Number of schedulable cluster nodes in the last poll.",
	})

	snapshotStale = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "papi_cluster_snapshot_stale",
		Help: "1 if the last stats poll failed and the served snapshot is stale, 0 otherwise.",
	})
)

// Middleware records one observation per request. Routed by c.Path(),
// the registered route pattern, so per-caller path parameters (uuids,
// kinds) don't explode the label cardinality.
func Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		status := c.Response().Status
		if he, ok := err.(*echo.HTTPError); ok {
			status = he.Code
		}
		route := c.Path()
		requestsTotal.WithLabelValues(route, c.Request().Method, strconv.Itoa(status)).Inc()
		requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		return err
	}
}

// RecordClusterSnapshot mirrors C9's latest snapshot into the gauges
// above; called after every poll alongside the snapshot's atomic swap.
func RecordClusterSnapshot(snap apitypes.ClusterSnapshot) {
	var ready int
	for _, n := range snap.Nodes {
		if n.Status == apitypes.NodeReady {
			ready++
		}
	}
	readyNodes.Set(float64(ready))
	if snap.Stale {
		snapshotStale.Set(1)
	} else {
		snapshotStale.Set(0)
	}
	for vo, usage := range snap.ByVO {
		nodeCapacityCPU.WithLabelValues(vo).Set(float64(usage.Capacity.CPUCores))
		nodeCapacityGPU.WithLabelValues(vo).Set(float64(usage.Capacity.GPUCount))
		usedCPU.WithLabelValues(vo).Set(float64(usage.Used.CPUCores))
		usedGPU.WithLabelValues(vo).Set(float64(usage.Used.GPUCount))
	}
}
