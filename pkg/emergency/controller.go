// Package emergency adapts the run's cancellation controller: a stop file
// and SIGINT/SIGTERM watcher that triggers the registered callbacks (in
// practice, the Parallel Executor's Cancel) exactly once.
package emergency

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/farmanp/windtunnel/pkg/logging"
)

// Controller watches for an emergency stop request and fans it out to
// registered callbacks.
type Controller struct {
	stopFile       string
	stopCh         chan struct{}
	stopped        bool
	mutex          sync.RWMutex
	callbacks      []func()
	pollInterval   time.Duration
	signalHandlers bool
	log            *logging.Logger
}

// Config configures the emergency controller.
type Config struct {
	StopFile             string
	PollInterval         time.Duration
	EnableSignalHandlers bool
	Log                  *logging.Logger
}

// New creates an emergency controller.
func New(cfg Config) *Controller {
	if cfg.StopFile == "" {
		cfg.StopFile = "/tmp/windtunnel-emergency-stop"
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 1 * time.Second
	}

	return &Controller{
		stopFile:       cfg.StopFile,
		stopCh:         make(chan struct{}),
		callbacks:      make([]func(), 0),
		pollInterval:   cfg.PollInterval,
		signalHandlers: cfg.EnableSignalHandlers,
		log:            cfg.Log,
	}
}

// Start begins monitoring for emergency stop conditions.
func (c *Controller) Start(ctx context.Context) {
	go c.watchStopFile(ctx)
	if c.signalHandlers {
		go c.watchSignals(ctx)
	}
}

func (c *Controller) watchStopFile(ctx context.Context) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.checkStopFile() {
				c.logf("emergency stop file detected", "path", c.stopFile)
				c.triggerStop("stop file detected")
				return
			}
		}
	}
}

func (c *Controller) watchSignals(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		signal.Stop(sigCh)
		return
	case sig := <-sigCh:
		c.logf("emergency stop signal received", "signal", sig.String())
		c.triggerStop(fmt.Sprintf("signal: %v", sig))
		signal.Stop(sigCh)
		return
	}
}

func (c *Controller) checkStopFile() bool {
	_, err := os.Stat(c.stopFile)
	return err == nil
}

// triggerStop fires exactly once: later calls after the first are no-ops.
func (c *Controller) triggerStop(reason string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.stopped {
		return
	}
	c.stopped = true
	close(c.stopCh)

	c.logf("emergency stop triggered", "reason", reason)
	for i, callback := range c.callbacks {
		c.logf("running emergency stop callback", "index", i+1, "total", len(c.callbacks))
		callback()
	}
}

// Stop manually triggers an emergency stop.
func (c *Controller) Stop(reason string) {
	c.triggerStop(reason)
}

// IsStopped reports whether an emergency stop has already fired.
func (c *Controller) IsStopped() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.stopped
}

// StopChannel returns a channel that closes when stop is triggered.
func (c *Controller) StopChannel() <-chan struct{} {
	return c.stopCh
}

// OnStop registers a callback invoked once, when stop fires. The
// Run Controller registers the Parallel Executor's Cancel here so an
// emergency stop halts scheduling of any unstarted instance.
func (c *Controller) OnStop(callback func()) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.callbacks = append(c.callbacks, callback)
}

// CreateStopFile creates the emergency stop file, for manual operator use.
func (c *Controller) CreateStopFile() error {
	f, err := os.Create(c.stopFile)
	if err != nil {
		return fmt.Errorf("failed to create stop file: %w", err)
	}
	defer f.Close()

	_, err = f.WriteString(fmt.Sprintf("Emergency stop requested at %s\n", time.Now().Format(time.RFC3339)))
	if err != nil {
		return fmt.Errorf("failed to write to stop file: %w", err)
	}
	return nil
}

// RemoveStopFile removes the emergency stop file, if present.
func (c *Controller) RemoveStopFile() error {
	err := os.Remove(c.stopFile)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stop file: %w", err)
	}
	return nil
}

// GetStopFilePath returns the stop file path being watched.
func (c *Controller) GetStopFilePath() string {
	return c.stopFile
}

func (c *Controller) logf(msg string, kv ...any) {
	if c.log == nil {
		return
	}
	c.log.Warn(msg, kv...)
}
