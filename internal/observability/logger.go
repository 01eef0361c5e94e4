package observability

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	logger zerolog.Logger
}

// NewLogger creates a new structured logger.
func NewLogger(service, version string, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}

	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(output).With().
		Timestamp().
		Str("service", service).
		Str("version", version).
		Str("host", getHostname()).
		Logger()

	return &Logger{
		logger: logger,
	}
}

// WithNamespace adds namespace context to logger.
func (l *Logger) WithNamespace(namespace string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("namespace", namespace).Logger(),
	}
}

// WithPeer adds peer_id context to logger.
func (l *Logger) WithPeer(peerID string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("peer_id", peerID).Logger(),
	}
}

// WithNode adds node (namespace/key/path) context to logger.
func (l *Logger) WithNode(namespace, key, path string) *Logger {
	return &Logger{
		logger: l.logger.With().
			Str("namespace", namespace).
			Str("key", key).
			Str("path", path).
			Logger(),
	}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

// Info logs an info message.
func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Error logs an error message.
func (l *Logger) Error(err error, msg string) {
	l.logger.Error().Err(err).Msg(msg)
}

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(err error, msg string) {
	l.logger.Fatal().Err(err).Msg(msg)
}

// SyncStarted logs the start of a receive operation for one node.
func (l *Logger) SyncStarted(namespace, key, path string, size int64, totalChunks int) {
	l.logger.Info().
		Str("namespace", namespace).
		Str("key", key).
		Str("path", path).
		Int64("size", size).
		Int("total_chunks", totalChunks).
		Msg("receive started")
}

// ChunkSent logs a chunk served to a peer over GET /chunk.
func (l *Logger) ChunkSent(namespace, hash string, size int, toPeer string) {
	l.logger.Debug().
		Str("namespace", namespace).
		Str("hash", hash).
		Int("size", size).
		Str("to_peer", toPeer).
		Msg("chunk sent")
}

// SyncProgress logs the scheduling loop's status line: one icon per chunk,
// ✔ available, ✖ still needed, ⌛ in flight, as spec.md's receive engine
// asks for.
func (l *Logger) SyncProgress(namespace, key string, available, needed, inFlight int, icons string) {
	l.logger.Info().
		Str("namespace", namespace).
		Str("key", key).
		Int("available", available).
		Int("needed", needed).
		Int("in_flight", inFlight).
		Str("status", icons).
		Msg("receive progress")
}

// SyncCompleted logs a receive operation finishing with every chunk local.
func (l *Logger) SyncCompleted(namespace, key string, size int64, duration time.Duration) {
	l.logger.Info().
		Str("namespace", namespace).
		Str("key", key).
		Int64("size", size).
		Float64("duration_seconds", duration.Seconds()).
		Msg("receive completed")
}

// ChunkIntegrityFailed logs a chunk whose bytes didn't match its declared
// hash or size.
func (l *Logger) ChunkIntegrityFailed(namespace, hash string, fromPeer string, retryCount int) {
	l.logger.Error().
		Str("namespace", namespace).
		Str("hash", hash).
		Str("from_peer", fromPeer).
		Int("retry_count", retryCount).
		Msg("chunk integrity check failed")
}

// GossipSent logs a market exchange initiated with a peer.
func (l *Logger) GossipSent(namespace, key, toPeer string) {
	l.logger.Debug().
		Str("namespace", namespace).
		Str("key", key).
		Str("to_peer", toPeer).
		Msg("market exchange sent")
}

// ConflictDetected logs a sync decision that resolved to conflict.
func (l *Logger) ConflictDetected(namespace, key string) {
	l.logger.Warn().
		Str("namespace", namespace).
		Str("key", key).
		Msg("sync conflict: local and remote diverged, no automatic resolution")
}

// PeerConnectFailed logs a failed outbound connection to a peer.
func (l *Logger) PeerConnectFailed(peerID, addr string, err error) {
	l.logger.Error().
		Str("peer_id", peerID).
		Str("addr", addr).
		Err(err).
		Msg("peer connection failed")
}

// Helper function to get hostname.
func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return hostname
}
