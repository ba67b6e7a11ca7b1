//go:build linux

package shell

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

var trapOnce sync.Once

type trapConfig struct {
	killAfter time.Duration
}

// TrapOption configures TrapSignals.
type TrapOption func(*trapConfig)

// WithKillAfter sends SIGKILL to every job still running d after the
// trapped signal was delivered.
func WithKillAfter(d time.Duration) TrapOption {
	return func(c *trapConfig) {
		c.killAfter = d
	}
}

// TrapSignals installs the process-wide handler for SIGINT and SIGTERM.
// On the first of them every tracked job in every scope receives the same
// signal, all jobs are waited for, and the process exits with 128+signal.
// A second signal during that wait exits immediately. Only the first call
// has any effect.
func TrapSignals(opts ...TrapOption) {
	trapOnce.Do(func() {
		var cfg trapConfig
		for _, opt := range opts {
			opt(&cfg)
		}
		r := defaultRegistry()

		sigCh := make(chan os.Signal, 2)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		go func() {
			sig := (<-sigCh).(syscall.Signal)
			go func() {
				second := (<-sigCh).(syscall.Signal)
				log().Warn("second signal received, exiting without waiting for jobs", "signal", second)
				r.exit(128 + int(second))
			}()
			r.shutdown(sig, cfg.killAfter)
		}()
	})
}
