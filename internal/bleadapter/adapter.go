// Package bleadapter defines the narrow BLE capability surface the rest of
// scanlink depends on: scan with cancellation, connect by device id, service
// enumeration, and characteristic subscription. Production code wires the
// go-ble implementation from the goble subpackage; tests substitute fakes.
package bleadapter

import (
	"context"
	"errors"
)

// Errors returned by adapter implementations.
var (
	// ErrPermissionDenied indicates Bluetooth is not authorized or powered off.
	ErrPermissionDenied = errors.New("bluetooth not authorized")

	// ErrDeviceNotFound indicates the requested device id is not reachable.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrNotNotifiable indicates the characteristic does not support
	// notifications or indications.
	ErrNotNotifiable = errors.New("characteristic is not notifiable")
)

// Advertisement is a single BLE advertisement event observed during a scan.
// ServiceUUIDs are normalized (lowercase, short form for SIG-base UUIDs).
type Advertisement struct {
	DeviceID     string
	Name         string
	RSSI         int
	ServiceUUIDs []string
}

// AdvHandler receives advertisement events in arrival order.
type AdvHandler func(adv Advertisement)

// Characteristic identifies a GATT characteristic within its service.
type Characteristic struct {
	ServiceUUID string
	UUID        string
	Notifiable  bool
}

// Service is a GATT service with its characteristics in discovery order.
type Service struct {
	UUID            string
	Characteristics []Characteristic
}

// Peripheral is a live connection to a single BLE device.
type Peripheral interface {
	// DeviceID returns the platform identity the peripheral was dialed with.
	DeviceID() string

	// Services enumerates GATT services and characteristics.
	Services(ctx context.Context) ([]Service, error)

	// Subscribe registers h for value notifications on char. At most one
	// subscription is active per peripheral in this subsystem.
	Subscribe(ctx context.Context, char Characteristic, h func(data []byte)) error

	// Unsubscribe stops notifications on char.
	Unsubscribe(char Characteristic) error

	// Disconnect tears the connection down. Safe to call more than once.
	Disconnect() error

	// Disconnected is closed when the link drops, expectedly or not.
	Disconnected() <-chan struct{}
}

// Adapter is the hardware Bluetooth surface.
type Adapter interface {
	// Scan delivers advertisements to h until ctx is done. Implementations
	// return nil on cancellation or deadline expiry; only genuine failures
	// (e.g. Bluetooth unauthorized) produce an error.
	Scan(ctx context.Context, h AdvHandler) error

	// Connect dials the device and enumerates its GATT profile.
	Connect(ctx context.Context, deviceID string) (Peripheral, error)
}
