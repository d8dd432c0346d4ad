//go:build darwin

package goble

import (
	"fmt"
	"strings"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/darwin"

	"github.com/scanlink/scanlink/internal/bleadapter"
)

func newPlatformDevice() (ble.Device, error) {
	dev, err := darwin.NewDevice()
	if err != nil {
		// CoreBluetooth reports a powered-off or unauthorized radio through
		// its manager state rather than a typed error.
		if strings.Contains(err.Error(), "central manager has invalid state") {
			if strings.Contains(err.Error(), "have=4") { // StatePoweredOff
				return nil, fmt.Errorf("%w: Bluetooth is turned off", bleadapter.ErrPermissionDenied)
			}
			return nil, fmt.Errorf("%w: %v", bleadapter.ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	return dev, nil
}
