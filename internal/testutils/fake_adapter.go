package testutils

import (
	"context"
	"fmt"
	"sync"

	"github.com/scanlink/scanlink/internal/bleadapter"
)

// FakeAdapter is a scriptable bleadapter.Adapter. Scan replays the configured
// advertisements in order and then blocks until the context ends, matching
// the shape of a real platform scan. Connect hands out a fresh FakeConn per
// dial so reconnection tests see independent disconnect channels.
type FakeAdapter struct {
	mu              sync.Mutex
	advertisements  []bleadapter.Advertisement
	peripherals     map[string]*FakePeripheral
	scanErr         error
	connectAttempts map[string]int
	conns           map[string][]*FakeConn

	// ConnectHook, when set, runs before each dial and may fail it.
	// attempt is 1-based per device id.
	ConnectHook func(deviceID string, attempt int) error
}

// NewFakeAdapter creates an empty fake adapter.
func NewFakeAdapter() *FakeAdapter {
	return &FakeAdapter{
		peripherals:     make(map[string]*FakePeripheral),
		connectAttempts: make(map[string]int),
		conns:           make(map[string][]*FakeConn),
	}
}

// WithAdvertisements appends advertisements replayed by Scan, in order.
func (a *FakeAdapter) WithAdvertisements(advs ...bleadapter.Advertisement) *FakeAdapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.advertisements = append(a.advertisements, advs...)
	return a
}

// WithPeripheral registers a connectable peripheral blueprint.
func (a *FakeAdapter) WithPeripheral(p *FakePeripheral) *FakeAdapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.peripherals[p.id] = p
	return a
}

// WithScanError makes Scan fail immediately.
func (a *FakeAdapter) WithScanError(err error) *FakeAdapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scanErr = err
	return a
}

func (a *FakeAdapter) Scan(ctx context.Context, h bleadapter.AdvHandler) error {
	a.mu.Lock()
	scanErr := a.scanErr
	advs := append([]bleadapter.Advertisement{}, a.advertisements...)
	a.mu.Unlock()

	if scanErr != nil {
		return scanErr
	}

	for _, adv := range advs {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		h(adv)
	}

	<-ctx.Done()
	return nil
}

func (a *FakeAdapter) Connect(ctx context.Context, deviceID string) (bleadapter.Peripheral, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.connectAttempts[deviceID]++
	attempt := a.connectAttempts[deviceID]
	hook := a.ConnectHook
	bp, ok := a.peripherals[deviceID]
	a.mu.Unlock()

	if hook != nil {
		if err := hook(deviceID, attempt); err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", bleadapter.ErrDeviceNotFound, deviceID)
	}

	conn := newFakeConn(bp)
	a.mu.Lock()
	a.conns[deviceID] = append(a.conns[deviceID], conn)
	a.mu.Unlock()
	return conn, nil
}

// ConnectAttempts returns how many times deviceID has been dialed.
func (a *FakeAdapter) ConnectAttempts(deviceID string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connectAttempts[deviceID]
}

// LastConn returns the most recent connection to deviceID, or nil.
func (a *FakeAdapter) LastConn(deviceID string) *FakeConn {
	a.mu.Lock()
	defer a.mu.Unlock()

	conns := a.conns[deviceID]
	if len(conns) == 0 {
		return nil
	}
	return conns[len(conns)-1]
}

// FakePeripheral is the GATT blueprint for a connectable fake device.
type FakePeripheral struct {
	id           string
	services     []bleadapter.Service
	servicesErr  error
	subscribeErr error
}

// NewFakePeripheral creates a blueprint for deviceID.
func NewFakePeripheral(deviceID string) *FakePeripheral {
	return &FakePeripheral{id: deviceID}
}

// DeviceID returns the identity the blueprint was created with.
func (p *FakePeripheral) DeviceID() string {
	return p.id
}

// WithService appends a GATT service with the given characteristics.
func (p *FakePeripheral) WithService(uuid string, chars ...bleadapter.Characteristic) *FakePeripheral {
	for i := range chars {
		chars[i].ServiceUUID = uuid
	}
	p.services = append(p.services, bleadapter.Service{UUID: uuid, Characteristics: chars})
	return p
}

// WithServicesError makes service enumeration fail.
func (p *FakePeripheral) WithServicesError(err error) *FakePeripheral {
	p.servicesErr = err
	return p
}

// WithSubscribeError makes every Subscribe call fail.
func (p *FakePeripheral) WithSubscribeError(err error) *FakePeripheral {
	p.subscribeErr = err
	return p
}

// NotifyChar is shorthand for a notifiable characteristic.
func NotifyChar(uuid string) bleadapter.Characteristic {
	return bleadapter.Characteristic{UUID: uuid, Notifiable: true}
}

// PlainChar is shorthand for a read/write-only characteristic.
func PlainChar(uuid string) bleadapter.Characteristic {
	return bleadapter.Characteristic{UUID: uuid}
}

// FakeConn is one live connection to a FakePeripheral.
type FakeConn struct {
	bp           *FakePeripheral
	disconnected chan struct{}

	mu         sync.Mutex
	closed     bool
	handler    func([]byte)
	subscribed *bleadapter.Characteristic
}

func newFakeConn(bp *FakePeripheral) *FakeConn {
	return &FakeConn{
		bp:           bp,
		disconnected: make(chan struct{}),
	}
}

func (c *FakeConn) DeviceID() string {
	return c.bp.id
}

func (c *FakeConn) Services(ctx context.Context) ([]bleadapter.Service, error) {
	if c.bp.servicesErr != nil {
		return nil, c.bp.servicesErr
	}
	return c.bp.services, nil
}

func (c *FakeConn) Subscribe(ctx context.Context, char bleadapter.Characteristic, h func(data []byte)) error {
	if c.bp.subscribeErr != nil {
		return c.bp.subscribeErr
	}
	if !char.Notifiable {
		return bleadapter.ErrNotNotifiable
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
	c.subscribed = &char
	return nil
}

func (c *FakeConn) Unsubscribe(char bleadapter.Characteristic) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = nil
	c.subscribed = nil
	return nil
}

func (c *FakeConn) Disconnect() error {
	c.drop()
	return nil
}

func (c *FakeConn) Disconnected() <-chan struct{} {
	return c.disconnected
}

// Drop simulates the peripheral vanishing (unexpected disconnect).
func (c *FakeConn) Drop() {
	c.drop()
}

func (c *FakeConn) drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.disconnected)
	}
}

// IsClosed reports whether the link has been torn down.
func (c *FakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// SubscribedUUID returns the UUID of the currently subscribed characteristic,
// or "" when none.
func (c *FakeConn) SubscribedUUID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribed == nil {
		return ""
	}
	return c.subscribed.UUID
}

// PushNotification delivers a raw payload to the subscriber, mimicking a
// value-updated event.
func (c *FakeConn) PushNotification(data []byte) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()

	if h != nil {
		h(data)
	}
}
