package observability

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the lansync daemon: transfer
// (send/receive) counters, gossip traffic, and the local store's database
// operations. There is no QUIC/FEC surface in this spec — chunks move over
// plain HTTPS — so those donor metric families are dropped rather than kept
// unwired.
type Metrics struct {
	// Sync metrics
	SyncActionsTotal  *prometheus.CounterVec
	DownloadsActive   prometheus.Gauge
	DownloadDuration  prometheus.Histogram
	ConflictsTotal    prometheus.Counter

	// Chunk transfer metrics
	BytesTransferredTotal *prometheus.CounterVec
	ChunksSentTotal       prometheus.Counter
	ChunksReceivedTotal   prometheus.Counter
	ChunksRetriedTotal    *prometheus.CounterVec
	ChunkIntegrityFailuresTotal prometheus.Counter

	// Gossip (market exchange) metrics
	MarketExchangesTotal *prometheus.CounterVec
	MarketMergeDuration  prometheus.Histogram

	// Peer connection metrics
	PeerConnectionsTotal  *prometheus.CounterVec
	ClientPoolSaturations *prometheus.CounterVec

	// Storage metrics
	DatabaseOperationsTotal *prometheus.CounterVec
	DiskSpaceUsedBytes      prometheus.Gauge
	ChunksGCedTotal         prometheus.Counter

	activeDownloads int64
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		SyncActionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lansync_sync_actions_total",
				Help: "Sync decisions taken, by action kind",
			},
			[]string{"action"},
		),

		DownloadsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "lansync_downloads_active",
				Help: "Currently active receive operations",
			},
		),

		DownloadDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lansync_download_duration_seconds",
				Help:    "Time from receive start to every chunk locally available",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800},
			},
		),

		ConflictsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lansync_conflicts_total",
				Help: "Sync decisions that resolved to conflict",
			},
		),

		BytesTransferredTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lansync_bytes_transferred_total",
				Help: "Total chunk bytes transferred",
			},
			[]string{"direction"},
		),

		ChunksSentTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lansync_chunks_sent_total",
				Help: "Total chunks served to peers over GET /chunk",
			},
		),

		ChunksReceivedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lansync_chunks_received_total",
				Help: "Total chunks fetched from peers and written locally",
			},
		),

		ChunksRetriedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lansync_chunks_retried_total",
				Help: "Chunk fetches re-queued after failure, by reason",
			},
			[]string{"reason"},
		),

		ChunkIntegrityFailuresTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lansync_chunk_integrity_failures_total",
				Help: "Chunks discarded because bytes didn't match the declared hash/size",
			},
		),

		MarketExchangesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lansync_market_exchanges_total",
				Help: "Market gossip round-trips, by result",
			},
			[]string{"result"},
		),

		MarketMergeDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "lansync_market_merge_duration_seconds",
				Help:    "Time spent merging a remote Market into the local one",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			},
		),

		PeerConnectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lansync_peer_connections_total",
				Help: "Outbound connection attempts to peers, by result",
			},
			[]string{"result"},
		),

		ClientPoolSaturations: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lansync_client_pool_saturations_total",
				Help: "Acquire calls that found a peer's client pool at capacity",
			},
			[]string{"peer"},
		),

		DatabaseOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lansync_database_operations_total",
				Help: "Local store operation count, by operation and result",
			},
			[]string{"operation", "result"},
		),

		DiskSpaceUsedBytes: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "lansync_disk_space_used_bytes",
				Help: "Disk space used by chunk storage for synced files",
			},
		),

		ChunksGCedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "lansync_chunks_gced_total",
				Help: "Unreferenced chunks reclaimed by the GC sweep",
			},
		),
	}
}

// RecordSyncAction records one decision.Kind outcome.
func (m *Metrics) RecordSyncAction(action string) {
	m.SyncActionsTotal.WithLabelValues(action).Inc()
	if action == "conflict" {
		m.ConflictsTotal.Inc()
	}
}

// RecordDownloadStart marks a receive operation starting.
func (m *Metrics) RecordDownloadStart() {
	atomic.AddInt64(&m.activeDownloads, 1)
	m.DownloadsActive.Set(float64(atomic.LoadInt64(&m.activeDownloads)))
}

// RecordDownloadComplete marks a receive operation finishing.
func (m *Metrics) RecordDownloadComplete(durationSeconds float64) {
	atomic.AddInt64(&m.activeDownloads, -1)
	m.DownloadsActive.Set(float64(atomic.LoadInt64(&m.activeDownloads)))
	m.DownloadDuration.Observe(durationSeconds)
}

// RecordChunkSent updates metrics for a chunk served to a peer.
func (m *Metrics) RecordChunkSent(bytes int) {
	m.ChunksSentTotal.Inc()
	m.BytesTransferredTotal.WithLabelValues("sent").Add(float64(bytes))
}

// RecordChunkReceived updates metrics for a chunk fetched from a peer.
func (m *Metrics) RecordChunkReceived(bytes int) {
	m.ChunksReceivedTotal.Inc()
	m.BytesTransferredTotal.WithLabelValues("received").Add(float64(bytes))
}

// RecordChunkRetry increments retry counters for a failed chunk fetch.
func (m *Metrics) RecordChunkRetry(reason string) {
	m.ChunksRetriedTotal.WithLabelValues(reason).Inc()
}

// RecordChunkIntegrityFailure increments the hash/size mismatch counter.
func (m *Metrics) RecordChunkIntegrityFailure() {
	m.ChunkIntegrityFailuresTotal.Inc()
}

// RecordMarketExchange records a gossip round-trip's outcome.
func (m *Metrics) RecordMarketExchange(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.MarketExchangesTotal.WithLabelValues(result).Inc()
}

// RecordPeerConnection logs outbound connection attempts.
func (m *Metrics) RecordPeerConnection(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.PeerConnectionsTotal.WithLabelValues(result).Inc()
}

// RecordClientPoolSaturation records an Acquire call that found a peer's
// pool full.
func (m *Metrics) RecordClientPoolSaturation(peerID string) {
	m.ClientPoolSaturations.WithLabelValues(peerID).Inc()
}

// RecordDatabaseOperation records a local store call's outcome.
func (m *Metrics) RecordDatabaseOperation(operation string, success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.DatabaseOperationsTotal.WithLabelValues(operation, result).Inc()
}

// Handler exposes the Prometheus metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
