package discovery_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanlink/scanlink/discovery"
	"github.com/scanlink/scanlink/internal/bleadapter"
	"github.com/scanlink/scanlink/internal/testutils"
	"github.com/scanlink/scanlink/registry"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	reg, err := registry.Parse([]byte(`
version: 1
scanner_keywords: [scanner, barcode]
manufacturer_keywords: [zebra, socket]
scanners:
  - id: zebra-cs4070
    manufacturer: Zebra
    models: [CS4070]
    name_patterns: ["cs4070"]
    service_uuids: ["c3f19881-bbe6-4834-a2e7-5cb4cfd6e7d3"]
    characteristic_uuid: "c3f19882-bbe6-4834-a2e7-5cb4cfd6e7d3"
`))
	require.NoError(t, err)
	return reg
}

func adv(id, name string, rssi int, uuids ...string) bleadapter.Advertisement {
	return bleadapter.Advertisement{
		DeviceID:     id,
		Name:         name,
		RSSI:         rssi,
		ServiceUUIDs: bleadapter.NormalizeUUIDs(uuids),
	}
}

func shortOptions(advanced bool) *discovery.Options {
	return &discovery.Options{Timeout: 50 * time.Millisecond, Advanced: advanced}
}

func TestDiscoverClassifiesAndRanks(t *testing.T) {
	adapter := testutils.NewFakeAdapter().WithAdvertisements(
		adv("id-unknown", "Random Gadget", -40),
		adv("id-weak", "Barcode Scanner", -80),
		adv("id-known", "CS4070:1234", -70),
		adv("id-strong", "Barcode Scanner Pro", -50),
	)
	c := discovery.NewCoordinator(adapter, testRegistry(t), testutils.NewTestLogger(t))

	devices, err := c.Discover(context.Background(), shortOptions(true))
	require.NoError(t, err)
	require.Len(t, devices, 4)

	// Known scanner first despite weaker signal and lower score, then the
	// heuristic candidates by score, then RSSI breaks the remaining tie.
	assert.Equal(t, "id-known", devices[0].DeviceID)
	assert.True(t, devices[0].IsKnownScanner)
	assert.Equal(t, "Zebra", devices[0].Manufacturer)
	assert.Equal(t, "CS4070", devices[0].Model)

	assert.Equal(t, "id-strong", devices[1].DeviceID)
	assert.Equal(t, "id-weak", devices[2].DeviceID)
	assert.Equal(t, "id-unknown", devices[3].DeviceID)
}

func TestDiscoverScoring(t *testing.T) {
	t.Run("rssi bonus applied above threshold", func(t *testing.T) {
		adapter := testutils.NewFakeAdapter().WithAdvertisements(
			adv("id-1", "Socket Scanner", -50),
		)
		c := discovery.NewCoordinator(adapter, testRegistry(t), testutils.NewTestLogger(t))

		devices, err := c.Discover(context.Background(), shortOptions(true))
		require.NoError(t, err)
		require.Len(t, devices, 1)

		// 20 (manufacturer "socket") + 30 (keyword "scanner") + 10 (RSSI).
		assert.Equal(t, 60, devices[0].HeuristicScore)
		assert.False(t, devices[0].IsKnownScanner)
	})

	t.Run("no rssi bonus at or below threshold", func(t *testing.T) {
		adapter := testutils.NewFakeAdapter().WithAdvertisements(
			adv("id-1", "Socket Scanner", -60),
		)
		c := discovery.NewCoordinator(adapter, testRegistry(t), testutils.NewTestLogger(t))

		devices, err := c.Discover(context.Background(), shortOptions(true))
		require.NoError(t, err)
		require.Len(t, devices, 1)
		assert.Equal(t, 50, devices[0].HeuristicScore)
	})
}

func TestDiscoverDeduplicatesByDeviceID(t *testing.T) {
	adapter := testutils.NewFakeAdapter().WithAdvertisements(
		adv("id-1", "Barcode Scanner", -50),
		adv("id-1", "Barcode Scanner Renamed", -30),
		adv("id-1", "Barcode Scanner", -90),
	)
	c := discovery.NewCoordinator(adapter, testRegistry(t), testutils.NewTestLogger(t))

	devices, err := c.Discover(context.Background(), shortOptions(true))
	require.NoError(t, err)
	require.Len(t, devices, 1)

	// First-seen advertisement wins.
	assert.Equal(t, "Barcode Scanner", devices[0].Name)
	assert.Equal(t, -50, devices[0].RSSI)
}

func TestDiscoverIgnoresUnnamedDevices(t *testing.T) {
	adapter := testutils.NewFakeAdapter().WithAdvertisements(
		adv("id-unnamed", "", -40),
		adv("id-named", "Barcode Scanner", -50),
	)
	c := discovery.NewCoordinator(adapter, testRegistry(t), testutils.NewTestLogger(t))

	devices, err := c.Discover(context.Background(), shortOptions(true))
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "id-named", devices[0].DeviceID)
}

func TestDiscoverNonAdvancedFiltersUnknown(t *testing.T) {
	adapter := testutils.NewFakeAdapter().WithAdvertisements(
		adv("id-known", "CS4070", -50),
		adv("id-heuristic", "Barcode Scanner", -40),
		adv("id-other", "Headphones", -30),
	)
	c := discovery.NewCoordinator(adapter, testRegistry(t), testutils.NewTestLogger(t))

	devices, err := c.Discover(context.Background(), shortOptions(false))
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "id-known", devices[0].DeviceID)
	assert.True(t, devices[0].IsKnownScanner)
}

func TestDiscoverCallerCancellation(t *testing.T) {
	adapter := testutils.NewFakeAdapter().WithAdvertisements(
		adv("id-1", "Barcode Scanner", -50),
	)
	c := discovery.NewCoordinator(adapter, testRegistry(t), testutils.NewTestLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	devices, err := c.Discover(ctx, &discovery.Options{Timeout: time.Minute, Advanced: true})
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

func TestDiscoverNewSessionCancelsPrevious(t *testing.T) {
	adapter := testutils.NewFakeAdapter().WithAdvertisements(
		adv("id-1", "Barcode Scanner", -50),
	)
	c := discovery.NewCoordinator(adapter, testRegistry(t), testutils.NewTestLogger(t))

	firstDone := make(chan error, 1)
	go func() {
		_, err := c.Discover(context.Background(), &discovery.Options{Timeout: time.Minute, Advanced: true})
		firstDone <- err
	}()
	time.Sleep(20 * time.Millisecond)

	devices, err := c.Discover(context.Background(), shortOptions(true))
	require.NoError(t, err)
	assert.Len(t, devices, 1)

	select {
	case err := <-firstDone:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("previous discovery session was not cancelled")
	}
}

func TestDiscoverScanFailure(t *testing.T) {
	adapter := testutils.NewFakeAdapter().WithScanError(bleadapter.ErrPermissionDenied)
	c := discovery.NewCoordinator(adapter, testRegistry(t), testutils.NewTestLogger(t))

	_, err := c.Discover(context.Background(), shortOptions(true))
	require.Error(t, err)
	assert.ErrorIs(t, err, bleadapter.ErrPermissionDenied)
}

func TestDefaultOptions(t *testing.T) {
	opts := discovery.DefaultOptions()

	assert.Equal(t, 10*time.Second, opts.Timeout)
	assert.False(t, opts.Advanced)
}
