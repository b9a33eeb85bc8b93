// Package health keeps the node's gRPC health status in line with the
// integrity of its hash chain.
package health

import (
	"errors"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/jmerrifield20/pohledger/internal/poh"
)

// Config holds chain monitor configuration.
type Config struct {
	VerifyInterval time.Duration
	// Service is the name reported to the health server. Empty means the
	// overall server status.
	Service string
}

// MetricsRecordFunc is an optional callback for recording verification results.
type MetricsRecordFunc func(ok bool)

// ChainMonitor periodically replays the entries appended since the last
// verified checkpoint. The first mismatch marks the node NOT_SERVING and
// the status stays there; a corrupted chain does not heal.
type ChainMonitor struct {
	recorder   *poh.Recorder
	health     *health.Server
	cfg        Config
	mu         sync.Mutex
	checkpoint poh.Checkpoint
	failed     error
	onMetrics  MetricsRecordFunc
	logger     *zap.Logger
}

// NewChainMonitor creates a ChainMonitor and reports SERVING for cfg.Service.
func NewChainMonitor(recorder *poh.Recorder, hs *health.Server, cfg Config, logger *zap.Logger) *ChainMonitor {
	if cfg.VerifyInterval == 0 {
		cfg.VerifyInterval = 10 * time.Second
	}
	hs.SetServingStatus(cfg.Service, grpc_health_v1.HealthCheckResponse_SERVING)
	return &ChainMonitor{
		recorder:   recorder,
		health:     hs,
		cfg:        cfg,
		checkpoint: poh.Checkpoint{Hash: recorder.Genesis()},
		logger:     logger,
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (m *ChainMonitor) SetMetricsRecord(fn MetricsRecordFunc) {
	m.onMetrics = fn
}

// Start runs Check every VerifyInterval until quit is signalled.
func (m *ChainMonitor) Start(quit <-chan os.Signal) {
	ticker := time.NewTicker(m.cfg.VerifyInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check()
		case <-quit:
			return
		}
	}
}

// Check verifies the entries appended since the previous successful check
// and returns the first mismatch found, now or in an earlier check.
func (m *ChainMonitor) Check() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failed != nil {
		return m.failed
	}

	entries := m.recorder.EntriesSince(m.checkpoint.Index)
	cp, err := poh.VerifyFrom(m.checkpoint, entries)
	if m.onMetrics != nil {
		m.onMetrics(err == nil)
	}
	if err != nil {
		m.failed = err
		fields := []zap.Field{zap.Error(err)}
		var mm *poh.MismatchError
		if errors.As(err, &mm) {
			fields = append(fields, zap.Int("index", mm.Index))
		}
		m.logger.Error("hash chain verification failed", fields...)
		m.health.SetServingStatus(m.cfg.Service, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
		return err
	}

	if cp.Index != m.checkpoint.Index {
		m.logger.Debug("hash chain verified",
			zap.Int("entries", cp.Index),
			zap.String("hash", cp.Hash.Hex()),
		)
	}
	m.checkpoint = cp
	return nil
}

// Checkpoint returns the last verified position.
func (m *ChainMonitor) Checkpoint() poh.Checkpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.checkpoint
}
