// Package connection owns the lifecycle of the single active scanner link:
// connect, characteristic resolution, subscription, teardown, and the
// backoff-driven reconnection supervisor layered on top.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/scanlink/scanlink/configstore"
	"github.com/scanlink/scanlink/decode"
	"github.com/scanlink/scanlink/discovery"
	"github.com/scanlink/scanlink/internal/bleadapter"
	"github.com/scanlink/scanlink/internal/eventbus"
	"github.com/scanlink/scanlink/registry"
)

// ErrNoSavedScanner indicates AutoConnect was called without a usable saved
// configuration.
var ErrNoSavedScanner = errors.New("no saved scanner")

// Options configures the connection manager.
type Options struct {
	// ConnectTimeout bounds each platform connection attempt.
	ConnectTimeout time.Duration `default:"30s"`

	// EventBuffer is the per-subscriber buffer for state/barcode streams.
	EventBuffer int `default:"16"`

	// ReconnectDelays is the supervisor's backoff schedule.
	ReconnectDelays []time.Duration
}

// DefaultOptions returns manager options with the standard backoff schedule.
func DefaultOptions() *Options {
	opts := &Options{}
	defaults.SetDefaults(opts)
	opts.ReconnectDelays = DefaultReconnectDelays()
	return opts
}

// DefaultReconnectDelays returns the fixed reconnection backoff schedule.
func DefaultReconnectDelays() []time.Duration {
	return []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		30 * time.Second,
	}
}

// Manager is the single owner of the active peripheral handle, the subscribed
// characteristic, and the process-wide connection state. All state mutation
// funnels through it; discovery and UI code only observe published events.
type Manager struct {
	adapter     bleadapter.Adapter
	registry    *registry.Registry
	store       configstore.Store
	coordinator *discovery.Coordinator
	decoder     *decode.Decoder
	supervisor  *Supervisor
	logger      *logrus.Logger
	opts        *Options

	states   *eventbus.Broadcaster[State]
	barcodes *eventbus.Broadcaster[string]

	mu        sync.Mutex
	state     State
	conn      bleadapter.Peripheral
	subChar   bleadapter.Characteristic
	stopWatch chan struct{}

	feedback Feedback
}

// NewManager wires a connection manager over the given adapter, registry,
// and config store.
func NewManager(adapter bleadapter.Adapter, reg *registry.Registry, store configstore.Store, opts *Options, logger *logrus.Logger) *Manager {
	if opts == nil {
		opts = DefaultOptions()
	}
	if len(opts.ReconnectDelays) == 0 {
		opts.ReconnectDelays = DefaultReconnectDelays()
	}
	if logger == nil {
		logger = logrus.New()
	}

	m := &Manager{
		adapter:     adapter,
		registry:    reg,
		store:       store,
		coordinator: discovery.NewCoordinator(adapter, reg, logger),
		decoder:     decode.NewDecoder(),
		logger:      logger,
		opts:        opts,
		states:      eventbus.NewBroadcaster[State](opts.EventBuffer),
		barcodes:    eventbus.NewBroadcaster[string](opts.EventBuffer),
		state:       Disconnected,
	}
	m.supervisor = newSupervisor(m, opts.ReconnectDelays, logger)
	return m
}

// SetFeedback installs the haptic feedback hook.
func (m *Manager) SetFeedback(f Feedback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback = f
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// States returns a new subscription to connection-state transitions.
func (m *Manager) States() <-chan State {
	return m.states.Subscribe()
}

// Barcodes returns a new subscription to decoded barcodes, delivered in
// decode order.
func (m *Manager) Barcodes() <-chan string {
	return m.barcodes.Subscribe()
}

// Discover runs a discovery session through the coordinator, reflecting it in
// the connection state when the manager is otherwise idle.
func (m *Manager) Discover(ctx context.Context, opts *discovery.Options) ([]*discovery.Device, error) {
	m.mu.Lock()
	if m.state == Disconnected {
		m.setStateLocked(Scanning)
	}
	m.mu.Unlock()

	devices, err := m.coordinator.Discover(ctx, opts)

	m.mu.Lock()
	if m.state == Scanning {
		m.setStateLocked(Disconnected)
	}
	m.mu.Unlock()

	return devices, err
}

// Connect establishes a connection to a discovered candidate, resolves its
// barcode characteristic, subscribes, and persists the pairing. On any
// failure the connection is torn down and the state settles to Disconnected.
func (m *Manager) Connect(ctx context.Context, dev *discovery.Device) error {
	// A user connect supersedes any reconnect loop. The supervisor must not
	// settle Reconnecting to Disconnected here; observers would read that as
	// terminal when a connect attempt is about to start.
	m.supervisor.stop(false)
	m.teardown(Connecting)

	p, err := m.dial(ctx, dev.DeviceID)
	if err != nil {
		m.transition(Disconnected)
		return fmt.Errorf("failed to connect to %s: %w", dev.DeviceID, err)
	}

	char, err := resolveCharacteristic(ctx, p, dev.Name, m.registry, m.logger)
	if err != nil {
		_ = p.Disconnect()
		m.transition(Disconnected)
		return err
	}

	return m.attach(ctx, p, char, dev.Name, dev.Manufacturer, true)
}

// AutoConnect connects directly to the saved scanner, skipping discovery.
// The saved service/characteristic pair is tried first; if it is no longer
// resolvable the full fallback resolver runs.
func (m *Manager) AutoConnect(ctx context.Context) error {
	m.supervisor.Stop()
	return m.autoConnect(ctx, true)
}

func (m *Manager) autoConnect(ctx context.Context, announce bool) error {
	cfg, err := m.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load scanner config: %w", err)
	}
	if cfg == nil {
		return ErrNoSavedScanner
	}

	if announce {
		m.transition(Connecting)
	}

	p, err := m.dial(ctx, cfg.DeviceID)
	if err != nil {
		if announce {
			m.transition(Disconnected)
		}
		return fmt.Errorf("failed to connect to saved scanner %s: %w", cfg.DeviceID, err)
	}

	char, err := m.resolveSaved(ctx, p, cfg)
	if err != nil {
		_ = p.Disconnect()
		if announce {
			m.transition(Disconnected)
		}
		return err
	}

	return m.attach(ctx, p, char, cfg.DeviceName, cfg.Manufacturer, announce)
}

// resolveSaved prefers the persisted service/characteristic pair and falls
// back to the generic resolver when firmware changes invalidated it.
func (m *Manager) resolveSaved(ctx context.Context, p bleadapter.Peripheral, cfg *configstore.SavedScannerConfig) (bleadapter.Characteristic, error) {
	services, err := p.Services(ctx)
	if err != nil {
		return bleadapter.Characteristic{}, fmt.Errorf("failed to enumerate services: %w", err)
	}

	if cfg.ServiceUUID != "" && cfg.CharacteristicUUID != "" {
		if char, ok := findCharacteristic(services, cfg.ServiceUUID, cfg.CharacteristicUUID); ok {
			return char, nil
		}
		m.logger.WithFields(logrus.Fields{
			"service":        cfg.ServiceUUID,
			"characteristic": cfg.CharacteristicUUID,
		}).Warn("Saved characteristic no longer resolvable, falling back")
	}

	if char, ok := firstNotifiable(services); ok {
		return char, nil
	}
	return bleadapter.Characteristic{}, ErrNoNotifiableCharacteristic
}

// attach subscribes, persists the pairing, installs the handle, and moves to
// Connected. announce=false keeps failure states quiet for the supervisor,
// which owns the Reconnecting state while retrying.
func (m *Manager) attach(ctx context.Context, p bleadapter.Peripheral, char bleadapter.Characteristic, name, manufacturer string, announce bool) error {
	if err := p.Subscribe(ctx, char, m.onNotification); err != nil {
		_ = p.Disconnect()
		if announce {
			m.transition(Disconnected)
		}
		return fmt.Errorf("failed to subscribe to %s: %w", char.UUID, err)
	}

	cfg := &configstore.SavedScannerConfig{
		DeviceID:           p.DeviceID(),
		DeviceName:         name,
		Manufacturer:       manufacturer,
		ServiceUUID:        char.ServiceUUID,
		CharacteristicUUID: char.UUID,
	}
	if err := m.store.Save(cfg); err != nil {
		// The live connection is still good; reconnection just won't have
		// a fresh characteristic hint.
		m.logger.WithError(err).Warn("Failed to persist scanner config")
	}

	m.decoder.Reset()

	stop := make(chan struct{})
	m.mu.Lock()
	m.conn = p
	m.subChar = char
	m.stopWatch = stop
	m.setStateLocked(Connected)
	m.mu.Unlock()

	go m.watch(p, stop)

	m.logger.WithFields(logrus.Fields{
		"device_id":      p.DeviceID(),
		"name":           name,
		"service":        char.ServiceUUID,
		"characteristic": char.UUID,
	}).Info("Scanner connected")
	return nil
}

func (m *Manager) dial(ctx context.Context, deviceID string) (bleadapter.Peripheral, error) {
	dialCtx := ctx
	if m.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, m.opts.ConnectTimeout)
		defer cancel()
	}
	return m.adapter.Connect(dialCtx, deviceID)
}

// watch waits for the link to drop. stop is closed on expected teardown.
func (m *Manager) watch(p bleadapter.Peripheral, stop chan struct{}) {
	select {
	case <-stop:
	case <-p.Disconnected():
		m.handleDrop(p)
	}
}

// handleDrop reacts to an unexpected disconnect. Only a drop of the currently
// saved device hands off to the reconnection supervisor; anything else
// settles to Disconnected.
func (m *Manager) handleDrop(p bleadapter.Peripheral) {
	m.mu.Lock()
	if m.conn != p {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.subChar = bleadapter.Characteristic{}
	m.stopWatch = nil
	m.mu.Unlock()

	m.logger.WithField("device_id", p.DeviceID()).Warn("Scanner disconnected unexpectedly")

	cfg, err := m.store.Load()
	if err == nil && cfg != nil && cfg.DeviceID == p.DeviceID() {
		m.supervisor.Trigger()
		return
	}
	m.transition(Disconnected)
}

// Disconnect tears down the active connection on user request. Any
// reconnection loop is halted first.
func (m *Manager) Disconnect() error {
	m.supervisor.Stop()
	m.teardown(Disconnected)
	return nil
}

// RemoveScanner unsubscribes, disconnects, and deletes the persisted pairing.
// Safe to call from any state, including mid-reconnect.
func (m *Manager) RemoveScanner() error {
	m.supervisor.Stop()
	m.teardown(Disconnected)

	if err := m.store.Clear(); err != nil {
		return fmt.Errorf("failed to clear scanner config: %w", err)
	}
	m.logger.Info("Scanner removed")
	return nil
}

// Pause stops reconnection activity, e.g. when the app backgrounds. The
// active connection, if any, is left alone.
func (m *Manager) Pause() {
	m.supervisor.Stop()
}

// Resume performs exactly one AutoConnect attempt if the manager is still
// disconnected and a saved scanner exists. It never starts a backoff loop.
func (m *Manager) Resume(ctx context.Context) error {
	if m.State() != Disconnected {
		return nil
	}

	cfg, err := m.store.Load()
	if err != nil {
		return fmt.Errorf("failed to load scanner config: %w", err)
	}
	if cfg == nil {
		return nil
	}
	return m.autoConnect(ctx, true)
}

// Close shuts the manager down: supervisor, connection, and event streams.
func (m *Manager) Close() error {
	m.supervisor.Stop()
	m.teardown(Disconnected)
	m.states.Close()
	m.barcodes.Close()
	return nil
}

// teardown releases the peripheral handle on every exit path and moves the
// state to next: Disconnected for user-facing teardowns, Connecting when a
// fresh connect attempt immediately follows.
func (m *Manager) teardown(next State) {
	m.mu.Lock()
	p := m.conn
	char := m.subChar
	stop := m.stopWatch
	m.conn = nil
	m.subChar = bleadapter.Characteristic{}
	m.stopWatch = nil
	m.setStateLocked(next)
	m.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if p != nil {
		if char.UUID != "" {
			// The link is going away either way.
			_ = p.Unsubscribe(char)
		}
		if err := p.Disconnect(); err != nil {
			m.logger.WithError(err).Warn("Error disconnecting scanner")
		}
	}
}

func (m *Manager) onNotification(data []byte) {
	barcode, ok := m.decoder.Decode(data)
	if !ok {
		return
	}

	m.logger.WithField("barcode", barcode).Debug("Barcode received")
	m.barcodes.Publish(barcode)

	m.mu.Lock()
	f := m.feedback
	m.mu.Unlock()
	if f != nil {
		f.Buzz()
	}
}

func (m *Manager) transition(s State) {
	m.mu.Lock()
	m.setStateLocked(s)
	m.mu.Unlock()
}

// settleFromReconnect moves Reconnecting to Disconnected without disturbing
// a state the user changed in the meantime.
func (m *Manager) settleFromReconnect() {
	m.mu.Lock()
	if m.state == Reconnecting {
		m.setStateLocked(Disconnected)
	}
	m.mu.Unlock()
}

func (m *Manager) setStateLocked(s State) {
	if m.state == s {
		return
	}
	m.logger.WithFields(logrus.Fields{
		"from": m.state.String(),
		"to":   s.String(),
	}).Debug("Connection state changed")
	m.state = s
	m.states.Publish(s)
}
