package connection

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Supervisor drives automatic reconnection after an unexpected disconnect of
// the saved scanner. It runs at most one loop at a time; triggering cancels
// any previous loop first. Each attempt is preceded by one delay from the
// fixed schedule, and the loop stops early on the first success. When the
// schedule is exhausted the state settles to Disconnected and no further
// automatic attempts happen until an explicit resume or manual reconnect.
type Supervisor struct {
	manager *Manager
	delays  []time.Duration
	logger  *logrus.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func newSupervisor(m *Manager, delays []time.Duration, logger *logrus.Logger) *Supervisor {
	return &Supervisor{
		manager: m,
		delays:  delays,
		logger:  logger,
	}
}

// Trigger starts a reconnection loop, replacing any loop already running.
func (s *Supervisor) Trigger() {
	s.stop(false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	s.manager.transition(Reconnecting)
	go s.run(ctx, done)
}

// Stop cancels the loop, aborting an in-progress delay or attempt, and waits
// for it to exit so no orphaned timers remain. Safe to call when idle.
func (s *Supervisor) Stop() {
	s.stop(true)
}

func (s *Supervisor) stop(settle bool) {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	if settle {
		s.manager.settleFromReconnect()
	}
}

func (s *Supervisor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for attempt, delay := range s.delays {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.logger.WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"delay":   delay,
		}).Info("Attempting scanner reconnection")

		err := s.manager.autoConnect(ctx, false)
		if err == nil {
			s.logger.Info("Scanner reconnected")
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.logger.WithError(err).Debug("Reconnection attempt failed")
	}

	s.logger.Warn("Reconnection attempts exhausted")
	s.manager.settleFromReconnect()
}
