// Package metrics exposes Prometheus counters/gauges for the link,
// discovery, cache and broadcast subsystems, plus a cheap lock-free local
// mirror for deployments that don't scrape Prometheus. Shape lifted from
// the teacher's internal/metrics package, counters renamed to this domain.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/kstaniek/buderus-wps/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	LinkRxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slcan_rx_frames_total",
		Help: "Total CAN frames decoded from the SLCAN link.",
	})
	LinkTxFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slcan_tx_frames_total",
		Help: "Total CAN frames written to the SLCAN link.",
	})
	LinkRxBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slcan_rx_bytes_total",
		Help: "Total bytes read from the serial port.",
	})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total rejected malformed SLCAN lines.",
	})
	RTRReads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtr_reads_total",
		Help: "Total RTR parameter reads issued.",
	})
	ParamWrites = promauto.NewCounter(prometheus.CounterOpts{
		Name: "param_writes_total",
		Help: "Total parameter writes issued.",
	})
	BroadcastFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broadcast_frames_total",
		Help: "Total broadcast frames observed during captures.",
	})
	DiscoveryChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discovery_chunks_total",
		Help: "Total element-data chunks received during discovery.",
	})
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total parameter-table loads served from the on-disk cache.",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total parameter-table loads that fell through the cache.",
	})
	DecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "decode_errors_total",
		Help: "Total value-codec decode failures.",
	})
	FallbackTriggered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "broadcast_fallback_triggered_total",
		Help: "Total times a degenerate RTR response triggered broadcast fallback.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})

	readinessFn atomic.Value // stores func() bool
)

var (
	localLinkRx    uint64
	localLinkTx    uint64
	localMalformed uint64
	localRTRReads  uint64
	localWrites    uint64
	localBroadcast uint64
	localDiscovery uint64
	localCacheHit  uint64
	localCacheMiss uint64
	localDecodeErr uint64
	localFallback  uint64
)

// Snapshot is a cheap copy of the local counters for CLI/log reporting.
type Snapshot struct {
	LinkRx, LinkTx, Malformed      uint64
	RTRReads, Writes, Broadcast    uint64
	Discovery, CacheHit, CacheMiss uint64
	DecodeErr, Fallback            uint64
}

func Snap() Snapshot {
	return Snapshot{
		LinkRx:      atomic.LoadUint64(&localLinkRx),
		LinkTx:      atomic.LoadUint64(&localLinkTx),
		Malformed:   atomic.LoadUint64(&localMalformed),
		RTRReads:    atomic.LoadUint64(&localRTRReads),
		Writes:      atomic.LoadUint64(&localWrites),
		Broadcast:   atomic.LoadUint64(&localBroadcast),
		Discovery:   atomic.LoadUint64(&localDiscovery),
		CacheHit:    atomic.LoadUint64(&localCacheHit),
		CacheMiss:   atomic.LoadUint64(&localCacheMiss),
		DecodeErr:   atomic.LoadUint64(&localDecodeErr),
		Fallback:    atomic.LoadUint64(&localFallback),
	}
}

func IncLinkRx() { LinkRxFrames.Inc(); atomic.AddUint64(&localLinkRx, 1) }
func IncLinkTx() { LinkTxFrames.Inc(); atomic.AddUint64(&localLinkTx, 1) }
func AddLinkBytes(n int) {
	if n > 0 {
		LinkRxBytes.Add(float64(n))
	}
}
func IncMalformed()      { MalformedFrames.Inc(); atomic.AddUint64(&localMalformed, 1) }
func IncRTRRead()        { RTRReads.Inc(); atomic.AddUint64(&localRTRReads, 1) }
func IncWrite()          { ParamWrites.Inc(); atomic.AddUint64(&localWrites, 1) }
func IncBroadcastFrame() { BroadcastFrames.Inc(); atomic.AddUint64(&localBroadcast, 1) }
func IncDiscoveryChunk() { DiscoveryChunks.Inc(); atomic.AddUint64(&localDiscovery, 1) }
func IncCacheHit()       { CacheHits.Inc(); atomic.AddUint64(&localCacheHit, 1) }
func IncCacheMiss()      { CacheMisses.Inc(); atomic.AddUint64(&localCacheMiss, 1) }
func IncDecodeError()    { DecodeErrors.Inc(); atomic.AddUint64(&localDecodeErr, 1) }
func IncFallback()       { FallbackTriggered.Inc(); atomic.AddUint64(&localFallback, 1) }

// InitBuildInfo sets the build info gauge (call once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
}

// SetReadinessFunc registers the predicate served at /ready.
func SetReadinessFunc(fn func() bool) { readinessFn.Store(fn) }

func isReady() bool {
	v := readinessFn.Load()
	if v == nil {
		return true
	}
	return v.(func() bool)()
}

// StartHTTP serves Prometheus metrics at /metrics and a readiness probe at
// /ready, mirroring the teacher's metrics.StartHTTP.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if isReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}
