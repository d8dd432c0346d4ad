package main

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/scanlink/scanlink/configstore"
	"github.com/scanlink/scanlink/connection"
	"github.com/scanlink/scanlink/internal/bleadapter/goble"
	"github.com/scanlink/scanlink/registry"
)

// newManager wires the production stack: go-ble adapter, bundled scanner
// registry, and the per-user config file.
func newManager(logger *logrus.Logger) (*connection.Manager, error) {
	path, err := configstore.DefaultPath()
	if err != nil {
		return nil, fmt.Errorf("failed to locate config directory: %w", err)
	}

	adapter := goble.New(logger)
	reg := registry.Load(logger)
	store := configstore.NewFileStore(path, logger)

	return connection.NewManager(adapter, reg, store, connection.DefaultOptions(), logger), nil
}
