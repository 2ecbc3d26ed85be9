package gwatchdog

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"
)

// MonitorConfig controls how often and how strictly a subsystem is probed.
type MonitorConfig struct {
	// Name identifies the subsystem in logs and errors.
	Name string

	// Probes are sent every Interval, plus or minus up to Jitter.
	Interval, Jitter time.Duration

	// The subsystem must accept the probe and close Alive within ResponseTimeout.
	ResponseTimeout time.Duration
}

func (c MonitorConfig) validate() error {
	var err error
	if c.Name == "" {
		err = errors.Join(err, errors.New("Name must not be empty"))
	}
	if c.Interval <= 0 {
		err = errors.Join(err, errors.New("Interval must be positive"))
	}
	if c.Jitter <= 0 || c.Jitter > c.Interval {
		err = errors.Join(err, errors.New("Jitter must be positive and no greater than Interval"))
	}
	if c.ResponseTimeout <= 0 {
		err = errors.Join(err, errors.New("ResponseTimeout must be positive"))
	}
	return err
}

func monitor(
	ctx context.Context,
	log *slog.Logger,
	cfg MonitorConfig,
	wg *sync.WaitGroup,
	sigCh chan<- Signal,
	cancel context.CancelCauseFunc,
) {
	defer wg.Done()

	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))

	for {
		j := rng.Int64N(int64(2*cfg.Jitter)) - int64(cfg.Jitter)
		timer := time.NewTimer(cfg.Interval + time.Duration(j))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if !probe(ctx, cfg.ResponseTimeout, sigCh) {
				if ctx.Err() != nil {
					return
				}
				log.Error("Subsystem failed to respond to watchdog", "timeout", cfg.ResponseTimeout)
				cancel(FailureToRespondError{SubsystemName: cfg.Name})
				return
			}
		}
	}
}

// probe reports whether the subsystem acknowledged a signal within timeout.
func probe(ctx context.Context, timeout time.Duration, sigCh chan<- Signal) bool {
	alive := make(chan struct{})
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case sigCh <- Signal{Alive: alive}:
	case <-timer.C:
		return false
	}

	select {
	case <-ctx.Done():
		return false
	case <-alive:
		return true
	case <-timer.C:
		select {
		case <-alive:
			return true
		default:
			return false
		}
	}
}
