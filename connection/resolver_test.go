package connection

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanlink/scanlink/internal/bleadapter"
	"github.com/scanlink/scanlink/internal/testutils"
	"github.com/scanlink/scanlink/registry"
)

const (
	zebraService = "c3f19881bbe64834a2e75cb4cfd6e7d3"
	zebraChar    = "c3f19882bbe64834a2e75cb4cfd6e7d3"
)

func resolverRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	reg, err := registry.Parse([]byte(`
version: 1
scanner_keywords: [scanner, barcode]
manufacturer_keywords: [zebra]
scanners:
  - id: zebra-cs4070
    manufacturer: Zebra
    models: [CS4070]
    name_patterns: ["cs4070"]
    service_uuids: ["c3f19881-bbe6-4834-a2e7-5cb4cfd6e7d3"]
    characteristic_uuid: "c3f19882-bbe6-4834-a2e7-5cb4cfd6e7d3"
  - id: acme-generic
    manufacturer: Acme
    models: [G1]
    name_patterns: ["acme"]
    service_uuids: ["aa00"]
`))
	require.NoError(t, err)
	return reg
}

func connectFake(t *testing.T, bp *testutils.FakePeripheral) bleadapter.Peripheral {
	t.Helper()

	adapter := testutils.NewFakeAdapter().WithPeripheral(bp)
	p, err := adapter.Connect(context.Background(), bp.DeviceID())
	require.NoError(t, err)
	return p
}

func TestResolveCharacteristicRegistryMatch(t *testing.T) {
	bp := testutils.NewFakePeripheral("AA:01").
		WithService("180a", testutils.PlainChar("2a29")).
		WithService(zebraService,
			testutils.PlainChar("c3f19880bbe64834a2e75cb4cfd6e7d3"),
			testutils.NotifyChar(zebraChar),
		)
	p := connectFake(t, bp)

	char, err := resolveCharacteristic(context.Background(), p, "CS4070:5678", resolverRegistry(t), testutils.NewTestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, zebraChar, char.UUID)
	assert.Equal(t, zebraService, char.ServiceUUID)
}

func TestResolveCharacteristicRegistryServiceWithoutSpecificChar(t *testing.T) {
	// The acme entry registers a service but no characteristic; the first
	// notifiable characteristic in that service is used.
	bp := testutils.NewFakePeripheral("AA:02").
		WithService("aa00",
			testutils.PlainChar("aa01"),
			testutils.NotifyChar("aa02"),
		)
	p := connectFake(t, bp)

	char, err := resolveCharacteristic(context.Background(), p, "Acme G1", resolverRegistry(t), testutils.NewTestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "aa02", char.UUID)
}

func TestResolveCharacteristicSkipsNonNotifiableRegistryChar(t *testing.T) {
	// The registered characteristic exists but cannot notify; the resolver
	// falls through to the generic scan.
	bp := testutils.NewFakePeripheral("AA:03").
		WithService(zebraService, testutils.PlainChar(zebraChar)).
		WithService("bb00", testutils.NotifyChar("bb01"))
	p := connectFake(t, bp)

	char, err := resolveCharacteristic(context.Background(), p, "CS4070", resolverRegistry(t), testutils.NewTestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "bb01", char.UUID)
}

func TestResolveCharacteristicFallbackForUnknownDevice(t *testing.T) {
	bp := testutils.NewFakePeripheral("AA:04").
		WithService("180a", testutils.PlainChar("2a29")).
		WithService("cc00", testutils.NotifyChar("cc01"), testutils.NotifyChar("cc02"))
	p := connectFake(t, bp)

	char, err := resolveCharacteristic(context.Background(), p, "Mystery Scanner", resolverRegistry(t), testutils.NewTestLogger(t))
	require.NoError(t, err)

	// First notifiable characteristic in enumeration order wins.
	assert.Equal(t, "cc01", char.UUID)
}

func TestResolveCharacteristicNothingNotifiable(t *testing.T) {
	bp := testutils.NewFakePeripheral("AA:05").
		WithService("180a", testutils.PlainChar("2a29"))
	p := connectFake(t, bp)

	_, err := resolveCharacteristic(context.Background(), p, "Mystery", resolverRegistry(t), testutils.NewTestLogger(t))
	assert.ErrorIs(t, err, ErrNoNotifiableCharacteristic)
}

func TestResolveCharacteristicServicesError(t *testing.T) {
	bp := testutils.NewFakePeripheral("AA:06").
		WithServicesError(assert.AnError)
	p := connectFake(t, bp)

	_, err := resolveCharacteristic(context.Background(), p, "Mystery", resolverRegistry(t), testutils.NewTestLogger(t))
	assert.ErrorIs(t, err, assert.AnError)
}

func TestFindCharacteristicRequiresNotifiable(t *testing.T) {
	services := []bleadapter.Service{
		{UUID: "aa00", Characteristics: []bleadapter.Characteristic{
			{ServiceUUID: "aa00", UUID: "aa01", Notifiable: false},
		}},
	}

	_, ok := findCharacteristic(services, "aa00", "aa01")
	assert.False(t, ok)

	services[0].Characteristics[0].Notifiable = true
	char, ok := findCharacteristic(services, "aa00", "aa01")
	require.True(t, ok)
	assert.Equal(t, "aa01", char.UUID)
}
