package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T) *Registry {
	t.Helper()

	reg, err := Parse([]byte(`
version: 1
scanner_keywords: [scanner, barcode]
manufacturer_keywords: [zebra, socket, honeywell]
scanners:
  - id: zebra-cs4070
    manufacturer: Zebra
    models: [CS4070, CS6080]
    name_patterns: ["cs4070", "zebra"]
    service_uuids: ["c3f19881-bbe6-4834-a2e7-5cb4cfd6e7d3"]
    characteristic_uuid: "c3f19882-bbe6-4834-a2e7-5cb4cfd6e7d3"
  - id: honeywell-8675i
    manufacturer: Honeywell
    models: [8675i]
    name_patterns: ["8675i"]
    service_uuids: ["3e3d9d8e-7b91-4a9e-95d3-d655e8ff1c3a"]
`))
	require.NoError(t, err)
	return reg
}

func TestMatchKnown(t *testing.T) {
	reg := testRegistry(t)

	t.Run("matches by name pattern", func(t *testing.T) {
		m, ok := reg.MatchKnown("Zebra CS4070", nil)

		require.True(t, ok)
		assert.Equal(t, "Zebra", m.Manufacturer)
		assert.Equal(t, "CS4070", m.Model)
	})

	t.Run("matches by advertised uuid", func(t *testing.T) {
		m, ok := reg.MatchKnown("mystery device", []string{"3e3d9d8e-7b91-4a9e-95d3-d655e8ff1c3a"})

		require.True(t, ok)
		assert.Equal(t, "Honeywell", m.Manufacturer)
	})

	t.Run("first match wins in document order", func(t *testing.T) {
		// Name matches the second entry, UUID the first; iteration order
		// reaches the zebra entry before the honeywell one.
		m, ok := reg.MatchKnown("8675i", []string{"c3f19881-bbe6-4834-a2e7-5cb4cfd6e7d3"})

		require.True(t, ok)
		assert.Equal(t, "Zebra", m.Manufacturer)
	})

	t.Run("no match", func(t *testing.T) {
		_, ok := reg.MatchKnown("AirPods Pro", []string{"180f"})
		assert.False(t, ok)
	})

	t.Run("empty name with no uuids", func(t *testing.T) {
		_, ok := reg.MatchKnown("", nil)
		assert.False(t, ok)
	})
}

func TestHeuristicScore(t *testing.T) {
	reg := testRegistry(t)

	t.Run("case-insensitive", func(t *testing.T) {
		upper := reg.HeuristicScore("ZEBRA SCANNER", nil)
		lower := reg.HeuristicScore("zebra scanner", nil)

		assert.Equal(t, upper, lower)
		assert.Equal(t, ScoreScannerKeyword+ScoreManufacturerKeyword, upper)
	})

	t.Run("purely additive", func(t *testing.T) {
		// Scanner keyword + manufacturer keyword + one known UUID.
		score := reg.HeuristicScore("Zebra Scanner", []string{"c3f19881-bbe6-4834-a2e7-5cb4cfd6e7d3"})
		assert.Equal(t, 90, score)
	})

	t.Run("hid service bonus", func(t *testing.T) {
		score := reg.HeuristicScore("", []string{"00001812-0000-1000-8000-00805f9b34fb"})
		assert.Equal(t, ScoreHIDService, score)
	})

	t.Run("duplicate advertised uuids counted once", func(t *testing.T) {
		uuid := "c3f19881-bbe6-4834-a2e7-5cb4cfd6e7d3"
		score := reg.HeuristicScore("", []string{uuid, uuid})
		assert.Equal(t, ScoreKnownServiceUUID, score)
	})

	t.Run("no name scores zero", func(t *testing.T) {
		assert.Equal(t, 0, reg.HeuristicScore("", nil))
	})

	t.Run("socket scanner without uuids", func(t *testing.T) {
		score := reg.HeuristicScore("Socket Scanner", nil)
		assert.Equal(t, 50, score)
	})
}

func TestHeuristicScoreEmptyRegistry(t *testing.T) {
	reg, err := Parse([]byte("version: 1\n"))
	require.NoError(t, err)

	// No keywords or known UUIDs; only the HID service still counts.
	assert.Equal(t, 0, reg.HeuristicScore("Zebra Scanner", nil))
	assert.Equal(t, ScoreHIDService, reg.HeuristicScore("Zebra Scanner", []string{"1812"}))

	_, ok := reg.MatchKnown("Zebra Scanner", nil)
	assert.False(t, ok)
}
