package connection

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/scanlink/scanlink/internal/bleadapter"
	"github.com/scanlink/scanlink/registry"
)

// ErrNoNotifiableCharacteristic indicates no characteristic supporting
// notify/indicate was found on the connected peripheral.
var ErrNoNotifiableCharacteristic = errors.New("no notifiable characteristic found")

// resolveCharacteristic locates the barcode notification channel in two
// phases: registry entries whose name patterns match the device get their
// registered service/characteristic UUIDs tried first; otherwise the first
// notifiable characteristic anywhere wins. Known devices get a precise,
// low-risk match; unknown devices a best-effort fallback.
func resolveCharacteristic(ctx context.Context, p bleadapter.Peripheral, name string, reg *registry.Registry, logger *logrus.Logger) (bleadapter.Characteristic, error) {
	services, err := p.Services(ctx)
	if err != nil {
		return bleadapter.Characteristic{}, fmt.Errorf("failed to enumerate services: %w", err)
	}

	for _, def := range reg.Definitions() {
		if !def.MatchesName(name) {
			continue
		}
		for _, svcUUID := range def.ServiceUUIDs {
			svc, ok := findService(services, svcUUID)
			if !ok {
				continue
			}

			if def.CharacteristicUUID != "" {
				for _, char := range svc.Characteristics {
					if char.UUID == def.CharacteristicUUID && char.Notifiable {
						logger.WithFields(logrus.Fields{
							"definition":     def.ID,
							"characteristic": char.UUID,
						}).Debug("Resolved characteristic from registry")
						return char, nil
					}
				}
				continue
			}

			// Registered service without a specific characteristic: take
			// its first notifiable one.
			for _, char := range svc.Characteristics {
				if char.Notifiable {
					return char, nil
				}
			}
		}
	}

	if char, ok := firstNotifiable(services); ok {
		logger.WithField("characteristic", char.UUID).Debug("Resolved characteristic via fallback")
		return char, nil
	}
	return bleadapter.Characteristic{}, ErrNoNotifiableCharacteristic
}

func findService(services []bleadapter.Service, uuid string) (bleadapter.Service, bool) {
	for _, svc := range services {
		if svc.UUID == uuid {
			return svc, true
		}
	}
	return bleadapter.Service{}, false
}

// findCharacteristic looks up an exact service/characteristic pair, accepting
// it only when notifiable.
func findCharacteristic(services []bleadapter.Service, serviceUUID, charUUID string) (bleadapter.Characteristic, bool) {
	svc, ok := findService(services, serviceUUID)
	if !ok {
		return bleadapter.Characteristic{}, false
	}
	for _, char := range svc.Characteristics {
		if char.UUID == charUUID && char.Notifiable {
			return char, true
		}
	}
	return bleadapter.Characteristic{}, false
}

// firstNotifiable scans every service in discovery order for the first
// characteristic supporting notify/indicate.
func firstNotifiable(services []bleadapter.Service) (bleadapter.Characteristic, bool) {
	for _, svc := range services {
		for _, char := range svc.Characteristics {
			if char.Notifiable {
				return char, true
			}
		}
	}
	return bleadapter.Characteristic{}, false
}
