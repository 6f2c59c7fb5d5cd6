// Package systemd reports service state to the supervisor over sd_notify.
// Outside systemd (no NOTIFY_SOCKET) every call is a no-op.
package systemd

import (
	"context"
	"path/filepath"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/smazurov/facegate/internal/events"
	"github.com/smazurov/facegate/internal/logging"
)

// Notifier sends readiness, status and watchdog pings.
type Notifier struct {
	logger   logging.Logger
	notify   func(state string) (bool, error)
	interval func() (time.Duration, error)
}

// NewNotifier creates a Notifier bound to NOTIFY_SOCKET.
func NewNotifier(logger logging.Logger) *Notifier {
	return &Notifier{
		logger: logger,
		notify: func(state string) (bool, error) {
			return daemon.SdNotify(false, state)
		},
		interval: func() (time.Duration, error) {
			return daemon.SdWatchdogEnabled(false)
		},
	}
}

func (n *Notifier) send(state string) {
	sent, err := n.notify(state)
	if err != nil {
		n.logger.Warn("sd_notify failed", "state", state, "error", err)
		return
	}
	if sent {
		n.logger.Debug("sd_notify sent", "state", state)
	}
}

// Ready tells systemd the API is listening.
func (n *Notifier) Ready() { n.send(daemon.SdNotifyReady) }

// Stopping tells systemd shutdown has begun.
func (n *Notifier) Stopping() { n.send(daemon.SdNotifyStopping) }

// Status sets the free-form status line shown by systemctl status.
func (n *Notifier) Status(msg string) { n.send("STATUS=" + msg) }

// FollowRecording keeps the status line in step with the recorder:
// "recording <file>" while a session is live, "idle" otherwise.
// The returned function unsubscribes.
func (n *Notifier) FollowRecording(bus *events.Bus) func() {
	unsubStart := bus.Subscribe(func(e events.RecordingStartedEvent) {
		n.Status("recording " + filepath.Base(e.Path))
	})
	unsubStop := bus.Subscribe(func(events.RecordingStoppedEvent) {
		n.Status("idle")
	})
	return func() {
		unsubStart()
		unsubStop()
	}
}

// Watchdog pings at half the unit's WatchdogSec until ctx is done. It
// returns immediately when the watchdog is not enabled.
func (n *Notifier) Watchdog(ctx context.Context) {
	interval, err := n.interval()
	if err != nil {
		n.logger.Warn("Reading watchdog interval failed", "error", err)
		return
	}
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	n.logger.Debug("Watchdog enabled", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
