//go:build linux

package goble

import (
	"fmt"
	"strings"

	"github.com/go-ble/ble"
	"github.com/go-ble/ble/linux"

	"github.com/scanlink/scanlink/internal/bleadapter"
)

func newPlatformDevice() (ble.Device, error) {
	dev, err := linux.NewDevice()
	if err != nil {
		// HCI open fails with EPERM when the binary lacks cap_net_admin.
		if strings.Contains(err.Error(), "operation not permitted") {
			return nil, fmt.Errorf("%w: %v", bleadapter.ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	return dev, nil
}
