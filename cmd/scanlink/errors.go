package main

import (
	"context"
	"errors"

	"github.com/scanlink/scanlink/connection"
	"github.com/scanlink/scanlink/internal/bleadapter"
)

// FormatUserError translates internal errors into actionable messages for the
// terminal. Unknown errors pass through unchanged.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, bleadapter.ErrPermissionDenied):
		return "Bluetooth is unavailable. Check that Bluetooth is turned on and that scanlink has permission to use it."
	case errors.Is(err, bleadapter.ErrDeviceNotFound):
		return "Scanner not found. Make sure it is powered on and in pairing mode, then run 'scanlink discover'."
	case errors.Is(err, connection.ErrNoSavedScanner):
		return "No scanner is paired yet. Run 'scanlink discover' and then 'scanlink connect <device-id>'."
	case errors.Is(err, connection.ErrNoNotifiableCharacteristic):
		return "This device does not expose a barcode data channel. It may not be a supported scanner."
	case errors.Is(err, context.DeadlineExceeded):
		return "The operation timed out. Move closer to the scanner and try again."
	default:
		return err.Error()
	}
}
