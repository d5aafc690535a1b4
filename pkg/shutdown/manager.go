// Package shutdown stops long-running migrator components in reverse start order.
package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	shutdownDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "migrator_shutdown_duration_seconds",
		Help:    "Total time taken to shut down gracefully",
		Buckets: []float64{0.5, 1, 5, 10, 20, 30, 60},
	})

	shutdownErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "migrator_shutdown_errors_total",
		Help: "Total number of shutdown errors by component",
	}, []string{"component"})
)

// ShutdownFunc shuts down one component
type ShutdownFunc func(context.Context) error

// Component is a registered shutdown step
type Component struct {
	Name         string
	ShutdownFunc ShutdownFunc
}

// Manager runs registered components' shutdown in REVERSE registration order (LIFO),
// one at a time, so a worker stops before the stores it writes to are closed
type Manager struct {
	logger     *zap.Logger
	components []Component
	timeout    time.Duration
	mu         sync.Mutex
}

// NewManager creates a shutdown manager whose whole shutdown is bounded by timeout
func NewManager(logger *zap.Logger, timeout time.Duration) *Manager {
	return &Manager{logger: logger, timeout: timeout}
}

// Register adds a shutdown step
func (sm *Manager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	sm.components = append(sm.components, Component{Name: name, ShutdownFunc: fn})
	sm.logger.Debug("Registered shutdown component",
		zap.String("component", name),
		zap.Int("registration_order", len(sm.components)),
	)
}

// RegisterCloser registers a component with a Close() error method
func (sm *Manager) RegisterCloser(name string, closer interface{ Close() error }) {
	sm.Register(name, func(ctx context.Context) error {
		return closer.Close()
	})
}

// RegisterNoErr registers a shutdown function that cannot fail
func (sm *Manager) RegisterNoErr(name string, fn func()) {
	sm.Register(name, func(ctx context.Context) error {
		fn()
		return nil
	})
}

// NotifyContext returns a context cancelled on SIGINT or SIGTERM
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// Shutdown runs every registered step and returns the errors keyed by component
func (sm *Manager) Shutdown() map[string]error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), sm.timeout)
	defer cancel()

	sm.mu.Lock()
	components := make([]Component, len(sm.components))
	copy(components, sm.components)
	sm.mu.Unlock()

	sm.logger.Info("Starting graceful shutdown",
		zap.Int("component_count", len(components)),
		zap.Duration("timeout", sm.timeout),
	)

	errs := make(map[string]error)
	for i := len(components) - 1; i >= 0; i-- {
		comp := components[i]
		if ctx.Err() != nil {
			sm.logger.Warn("Shutdown timeout exceeded, skipping component", zap.String("component", comp.Name))
			continue
		}

		stepStart := time.Now()
		if err := comp.ShutdownFunc(ctx); err != nil {
			errs[comp.Name] = err
			shutdownErrors.WithLabelValues(comp.Name).Inc()
			sm.logger.Error("Component shutdown failed",
				zap.String("component", comp.Name),
				zap.Error(err),
				zap.Duration("elapsed", time.Since(stepStart)),
			)
			continue
		}
		sm.logger.Debug("Component shut down",
			zap.String("component", comp.Name),
			zap.Duration("elapsed", time.Since(stepStart)),
		)
	}

	elapsed := time.Since(start)
	shutdownDuration.Observe(elapsed.Seconds())
	if len(errs) > 0 {
		sm.logger.Error("Graceful shutdown completed with errors",
			zap.Int("error_count", len(errs)),
			zap.Duration("elapsed", elapsed),
		)
	} else {
		sm.logger.Info("Graceful shutdown completed", zap.Duration("elapsed", elapsed))
	}
	return errs
}
