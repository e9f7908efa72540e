package connectionmonitor

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultHealthCheckInterval defines interval between connection health checks
	DefaultHealthCheckInterval = 30 * time.Second
	// DefaultReconnectWait defines the wait between reconnection attempts
	DefaultReconnectWait = 5 * time.Second
	// DefaultMaxReconnectAttempts defines maximum number of reconnection attempts
	DefaultMaxReconnectAttempts = 3
)

// ConnectionMonitor represents connection state monitoring interface
type ConnectionMonitor interface {
	// Start starts connection monitoring
	Start(ctx context.Context) error
	// Stop stops connection monitoring
	Stop()
}

// HealthChecker is anything whose connectivity can be checked and restored.
// The endpoint pool implements it by probing its selected endpoints and
// re-probing the configured mirrors in priority order.
type HealthChecker interface {
	// CheckConnection checks if the selected endpoints are alive
	CheckConnection(ctx context.Context) error
	// Reconnect attempts to move to a live endpoint
	Reconnect(ctx context.Context) error
}

// Options tunes the monitor loop. Zero values fall back to the defaults.
type Options struct {
	Interval             time.Duration
	ReconnectWait        time.Duration
	MaxReconnectAttempts int
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultHealthCheckInterval
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = DefaultReconnectWait
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	return o
}

type connectionMonitor struct {
	target       HealthChecker
	logger       *logrus.Logger
	name         string
	opts         Options
	stopChan     chan struct{}
	done         chan struct{}
	isMonitoring bool
	monitorMutex sync.Mutex
}

// NewConnectionMonitor creates a new connection monitor instance.
//
// Parameters:
// - target: the component whose endpoints are monitored.
// - logger: the logger for logging purposes.
// - name: the name used in log fields.
// - opts: the loop timings.
//
// Returns:
// - ConnectionMonitor: the new connection monitor instance.
func NewConnectionMonitor(target HealthChecker, logger *logrus.Logger, name string, opts Options) ConnectionMonitor {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &connectionMonitor{
		target: target,
		logger: logger,
		name:   name,
		opts:   opts.withDefaults(),
	}
}

// Start starts connection monitoring.
//
// Parameters:
// - ctx: the context bounding the monitor lifetime.
//
// Returns:
// - error: an error if the connection monitor is already running.
func (m *connectionMonitor) Start(ctx context.Context) error {
	m.monitorMutex.Lock()
	defer m.monitorMutex.Unlock()

	if m.isMonitoring {
		return errors.Errorf("connection monitor is already running for %s", m.name)
	}
	m.isMonitoring = true
	m.stopChan = make(chan struct{})
	m.done = make(chan struct{})

	go m.monitorConnection(ctx, m.stopChan, m.done)
	return nil
}

// Stop stops connection monitoring and waits for the loop to exit.
func (m *connectionMonitor) Stop() {
	m.monitorMutex.Lock()
	if !m.isMonitoring {
		m.monitorMutex.Unlock()
		return
	}
	close(m.stopChan)
	done := m.done
	m.isMonitoring = false
	m.monitorMutex.Unlock()

	<-done
}

func (m *connectionMonitor) monitorConnection(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.WithField("pool", m.name).Info("Connection monitoring stopped due to context cancellation")
			return

		case <-stop:
			m.logger.WithField("pool", m.name).Info("Connection monitoring stopped")
			return

		case <-ticker.C:
			if err := m.checkAndReconnect(ctx, stop); err != nil {
				m.logger.WithFields(logrus.Fields{
					"pool":  m.name,
					"error": err,
				}).Error("Failed to check or reconnect")
			}
		}
	}
}

// checkAndReconnect checks the selected endpoints and, when they are down,
// retries Reconnect a bounded number of times.
func (m *connectionMonitor) checkAndReconnect(ctx context.Context, stop <-chan struct{}) error {
	err := m.target.CheckConnection(ctx)
	if err == nil {
		m.logger.WithField("pool", m.name).Debug("Health check successful")
		return nil
	}

	m.logger.WithFields(logrus.Fields{
		"pool":  m.name,
		"error": err,
	}).Warn("Health check failed, attempting to reconnect")

	for attempt := 1; attempt <= m.opts.MaxReconnectAttempts; attempt++ {
		err = m.target.Reconnect(ctx)
		if err == nil {
			m.logger.WithFields(logrus.Fields{
				"pool":    m.name,
				"attempt": attempt,
			}).Info("Reconnected to a live endpoint")
			return nil
		}

		m.logger.WithFields(logrus.Fields{
			"pool":    m.name,
			"attempt": attempt,
			"error":   err,
		}).Warn("Reconnection attempt failed")

		if attempt == m.opts.MaxReconnectAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		case <-time.After(m.opts.ReconnectWait):
		}
	}

	return errors.Wrapf(err, "failed to reconnect %s", m.name)
}
