package mqtt

import (
	"context"
	"sync/atomic"
	"time"
)

// Supervisor timing defaults. Reconnect delay and attempt cap come from
// configuration; these govern the idle and cooldown cadence.
const (
	// superviseInterval is how often the supervisor re-evaluates the
	// connection while connected (or while waiting out a failure).
	superviseInterval = 5 * time.Second

	// keepaliveInterval is how often liveness bookkeeping is refreshed
	// while connected. The MQTT client handles wire keepalive itself; this
	// only feeds the observability surface.
	keepaliveInterval = 30 * time.Second

	// defaultCooldown is the wait after exhausting reconnect attempts
	// before the counter resets. The supervisor never gives up permanently.
	defaultCooldown = 60 * time.Second
)

// supervisedTransport is the slice of Client the supervisor drives.
// Faked in tests.
type supervisedTransport interface {
	IsConnected() bool
	connect(ctx context.Context) error
}

// supervisor drives the disconnected -> connecting -> connected state
// machine from its own goroutine, independent of the publish drain worker,
// so a stuck publish path cannot starve reconnection and vice versa.
//
// While disconnected it attempts reconnection up to maxAttempts times with a
// fixed delay between attempts (brokers here sit on the local network, so
// escalating backoff buys nothing). After exhausting attempts it cools down,
// resets the counter and tries again indefinitely.
type supervisor struct {
	transport supervisedTransport
	logger    Logger

	reconnectDelay time.Duration
	maxAttempts    int
	cooldown       time.Duration

	// lastKeepalive is the unix time of the most recent liveness
	// bookkeeping tick, exposed via the statistics snapshot.
	lastKeepalive atomic.Int64

	stopCh chan struct{}
	done   chan struct{}
}

func newSupervisor(transport supervisedTransport, delay time.Duration, maxAttempts int, cooldown time.Duration, logger Logger) *supervisor {
	if maxAttempts < 1 {
		maxAttempts = 10
	}
	if cooldown <= 0 {
		cooldown = defaultCooldown
	}
	return &supervisor{
		transport:      transport,
		logger:         logger,
		reconnectDelay: delay,
		maxAttempts:    maxAttempts,
		cooldown:       cooldown,
		stopCh:         make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// start launches the supervision loop.
func (s *supervisor) start() {
	go s.run()
}

// stop signals the loop to exit and waits for it, bounded by timeout.
func (s *supervisor) stop(timeout time.Duration) {
	close(s.stopCh)
	select {
	case <-s.done:
	case <-time.After(timeout):
		s.logger.Warn("connection supervisor did not stop in time")
	}
}

func (s *supervisor) run() {
	defer close(s.done)

	attempts := 0
	lastPing := time.Now()

	for {
		if s.sleeping(0) {
			return
		}

		if s.transport.IsConnected() {
			attempts = 0
			if time.Since(lastPing) >= keepaliveInterval {
				lastPing = time.Now()
				s.lastKeepalive.Store(lastPing.Unix())
				s.logger.Debug("mqtt keepalive check, connection is active")
			}
			if s.sleeping(superviseInterval) {
				return
			}
			continue
		}

		if attempts >= s.maxAttempts {
			s.logger.Error("max reconnection attempts reached, entering cooldown",
				"attempts", attempts,
				"cooldown", s.cooldown,
			)
			if s.sleeping(s.cooldown) {
				return
			}
			attempts = 0
			continue
		}

		attempts++
		s.logger.Info("attempting broker reconnection",
			"attempt", attempts,
			"max_attempts", s.maxAttempts,
		)

		ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
		err := s.transport.connect(ctx)
		cancel()

		if err != nil {
			s.logger.Warn("reconnection attempt failed",
				"attempt", attempts,
				"error", err,
			)
			if s.sleeping(s.reconnectDelay) {
				return
			}
			continue
		}

		s.logger.Info("broker connection established", "attempts", attempts)
		attempts = 0
	}
}

// sleeping waits for d (returning immediately when d is zero) and reports
// whether the supervisor has been stopped.
func (s *supervisor) sleeping(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-s.stopCh:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-s.stopCh:
		return true
	case <-timer.C:
		return false
	}
}
