package notify

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/arbiterhq/casedesk/pkg/audit"
	"github.com/arbiterhq/casedesk/pkg/observability"
)

const (
	minReconnectInterval = 2 * time.Second
	maxReconnectInterval = 30 * time.Second

	// reloadDelay coalesces bursts of role changes into one reload. A
	// sync that touches many users raises one NOTIFY per user; waiting
	// a few seconds lets the whole burst land before a single refresh.
	reloadDelay = 3 * time.Second
)

// Handler receives each decoded role change event
type Handler func(event *audit.RoleChangeNotification)

// ReloadFunc is called once per burst of role changes, after a short
// settle delay
type ReloadFunc func()

// pqListener is the subset of *pq.Listener the role listener needs,
// split out so tests can drive notifications in-process
type pqListener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// RoleChangeListener subscribes to the role change channel and invokes
// a handler per event plus an optional coalesced reload callback
type RoleChangeListener struct {
	listener pqListener
	handler  Handler
	reload   ReloadFunc
	logger   *observability.Logger

	mu          sync.Mutex
	reloadTimer *time.Timer
	closed      bool
	done        chan struct{}
}

// NewRoleChangeListener connects a dedicated listening session to the
// database. The handler may be nil when only the reload callback is
// wanted, and vice versa.
func NewRoleChangeListener(connStr string, handler Handler, reload ReloadFunc, logger *observability.Logger) (*RoleChangeListener, error) {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}

	pl := pq.NewListener(connStr, minReconnectInterval, maxReconnectInterval, func(event pq.ListenerEventType, err error) {
		if err != nil {
			logger.WithError(err).Warn("Role change listener connection event")
		}
	})

	l := &RoleChangeListener{
		listener: pl,
		handler:  handler,
		reload:   reload,
		logger:   logger,
		done:     make(chan struct{}),
	}
	if err := l.start(); err != nil {
		pl.Close()
		return nil, err
	}
	return l, nil
}

func (l *RoleChangeListener) start() error {
	if err := l.listener.Listen(audit.RoleChangeChannel); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", audit.RoleChangeChannel, err)
	}
	go l.run()
	return nil
}

func (l *RoleChangeListener) run() {
	defer close(l.done)

	for {
		select {
		case n, ok := <-l.listener.NotificationChannel():
			if !ok {
				return
			}
			if n == nil {
				// nil means the connection was re-established; anything
				// may have changed in the gap
				l.logger.Info("Role change listener reconnected, scheduling reload")
				l.scheduleReload()
				continue
			}
			l.dispatch(n.Extra)
		case <-time.After(90 * time.Second):
			if err := l.listener.Ping(); err != nil {
				l.logger.WithError(err).Warn("Role change listener ping failed")
			}
		}
	}
}

func (l *RoleChangeListener) dispatch(payload string) {
	event := &audit.RoleChangeNotification{}
	if err := json.Unmarshal([]byte(payload), event); err != nil {
		l.logger.WithError(err).Warn("Dropping undecodable role change payload")
		return
	}

	l.logger.WithFields(map[string]interface{}{
		"user_id":  event.UserID,
		"new_role": event.NewRole,
	}).Debug("Role change received")

	if l.handler != nil {
		l.handler(event)
	}
	l.scheduleReload()
}

// scheduleReload arms the coalescing timer. A burst of events keeps
// resetting it, so the reload runs once, shortly after the burst ends.
func (l *RoleChangeListener) scheduleReload() {
	if l.reload == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	if l.reloadTimer != nil {
		l.reloadTimer.Stop()
	}
	l.reloadTimer = time.AfterFunc(reloadDelay, l.reload)
}

// Close stops the listener and cancels any pending reload
func (l *RoleChangeListener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	if l.reloadTimer != nil {
		l.reloadTimer.Stop()
		l.reloadTimer = nil
	}
	l.mu.Unlock()

	err := l.listener.Close()
	<-l.done
	return err
}
