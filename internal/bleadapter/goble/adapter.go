// Package goble implements the bleadapter capability surface on top of
// github.com/go-ble/ble.
package goble

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"

	"github.com/scanlink/scanlink/internal/bleadapter"
)

// DeviceFactory creates ble.Device instances. Overridable in tests.
var DeviceFactory = func() (ble.Device, error) {
	return newPlatformDevice()
}

// Adapter is the production BLE adapter. The underlying platform device is
// created lazily on first use and reused afterwards.
type Adapter struct {
	logger *logrus.Logger

	mu  sync.Mutex
	dev ble.Device
}

// New creates a go-ble backed adapter.
func New(logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Adapter{logger: logger}
}

func (a *Adapter) device() (ble.Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dev != nil {
		return a.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		return nil, err
	}
	a.dev = dev
	return dev, nil
}

// Scan streams advertisements until ctx ends. Cancellation and deadline
// expiry are normal scan termination, not errors.
func (a *Adapter) Scan(ctx context.Context, h bleadapter.AdvHandler) error {
	dev, err := a.device()
	if err != nil {
		return err
	}

	err = dev.Scan(ctx, true, func(adv ble.Advertisement) {
		h(convertAdvertisement(adv))
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("scan failed: %w", err)
	}
	return nil
}

// Connect dials the device and discovers its full GATT profile.
func (a *Adapter) Connect(ctx context.Context, deviceID string) (bleadapter.Peripheral, error) {
	dev, err := a.device()
	if err != nil {
		return nil, err
	}

	client, err := dev.Dial(ctx, ble.NewAddr(deviceID))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", deviceID, err)
	}

	profile, err := client.DiscoverProfile(true)
	if err != nil {
		_ = client.CancelConnection()
		return nil, fmt.Errorf("failed to discover profile of %s: %w", deviceID, err)
	}

	p := &peripheral{
		client:   client,
		deviceID: deviceID,
		chars:    make(map[charKey]*ble.Characteristic),
		logger:   a.logger,
	}
	for _, svc := range profile.Services {
		svcUUID := bleadapter.NormalizeUUID(svc.UUID.String())
		out := bleadapter.Service{UUID: svcUUID}
		for _, char := range svc.Characteristics {
			charUUID := bleadapter.NormalizeUUID(char.UUID.String())
			notifiable := char.Property&(ble.CharNotify|ble.CharIndicate) != 0
			out.Characteristics = append(out.Characteristics, bleadapter.Characteristic{
				ServiceUUID: svcUUID,
				UUID:        charUUID,
				Notifiable:  notifiable,
			})
			p.chars[charKey{svcUUID, charUUID}] = char
		}
		p.services = append(p.services, out)
	}

	a.logger.WithFields(logrus.Fields{
		"device_id": deviceID,
		"services":  len(p.services),
	}).Debug("Connected and discovered profile")
	return p, nil
}

func convertAdvertisement(adv ble.Advertisement) bleadapter.Advertisement {
	services := adv.Services()
	uuids := make([]string, 0, len(services))
	for _, u := range services {
		uuids = append(uuids, bleadapter.NormalizeUUID(u.String()))
	}
	return bleadapter.Advertisement{
		DeviceID:     adv.Addr().String(),
		Name:         adv.LocalName(),
		RSSI:         adv.RSSI(),
		ServiceUUIDs: uuids,
	}
}

type charKey struct {
	service string
	uuid    string
}

type peripheral struct {
	client   ble.Client
	deviceID string
	services []bleadapter.Service
	chars    map[charKey]*ble.Characteristic
	logger   *logrus.Logger
}

func (p *peripheral) DeviceID() string {
	return p.deviceID
}

func (p *peripheral) Services(ctx context.Context) ([]bleadapter.Service, error) {
	return p.services, nil
}

func (p *peripheral) Subscribe(ctx context.Context, char bleadapter.Characteristic, h func(data []byte)) error {
	bleChar, ind, err := p.lookup(char)
	if err != nil {
		return err
	}

	if err := p.client.Subscribe(bleChar, ind, func(data []byte) {
		// go-ble may reuse the notification buffer; hand out a copy.
		buf := make([]byte, len(data))
		copy(buf, data)
		h(buf)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", char.UUID, err)
	}
	return nil
}

func (p *peripheral) Unsubscribe(char bleadapter.Characteristic) error {
	bleChar, ind, err := p.lookup(char)
	if err != nil {
		return err
	}
	if err := p.client.Unsubscribe(bleChar, ind); err != nil {
		return fmt.Errorf("failed to unsubscribe from %s: %w", char.UUID, err)
	}
	return nil
}

func (p *peripheral) Disconnect() error {
	if err := p.client.CancelConnection(); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	return nil
}

func (p *peripheral) Disconnected() <-chan struct{} {
	return p.client.Disconnected()
}

// lookup maps a characteristic back to its go-ble handle and picks the
// notify/indicate flag: notifications are preferred, indications are the
// fallback for scanners that only support acknowledged pushes.
func (p *peripheral) lookup(char bleadapter.Characteristic) (*ble.Characteristic, bool, error) {
	bleChar, ok := p.chars[charKey{char.ServiceUUID, char.UUID}]
	if !ok {
		return nil, false, fmt.Errorf("characteristic %s not found in service %s", char.UUID, char.ServiceUUID)
	}
	if bleChar.Property&ble.CharNotify != 0 {
		return bleChar, false, nil
	}
	if bleChar.Property&ble.CharIndicate != 0 {
		return bleChar, true, nil
	}
	return nil, false, bleadapter.ErrNotNotifiable
}
