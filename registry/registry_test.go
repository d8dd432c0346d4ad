package registry

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadBundledDefinitions(t *testing.T) {
	reg := Load(logrus.New())

	require.NotNil(t, reg)
	assert.Equal(t, 1, reg.Version())
	assert.NotZero(t, reg.Len())
	assert.NotEmpty(t, reg.KnownUUIDs())
}

func TestParse(t *testing.T) {
	t.Run("normalizes patterns and uuids", func(t *testing.T) {
		reg, err := Parse([]byte(`
version: 3
scanner_keywords: [Scanner]
manufacturer_keywords: [Acme]
scanners:
  - id: acme-x1
    manufacturer: Acme
    models: [X1]
    name_patterns: ["ACME X"]
    service_uuids: ["0000FF00-0000-1000-8000-00805F9B34FB"]
    characteristic_uuid: "0000FF01-0000-1000-8000-00805F9B34FB"
`))
		require.NoError(t, err)
		assert.Equal(t, 3, reg.Version())

		defs := reg.Definitions()
		require.Len(t, defs, 1)
		assert.Equal(t, []string{"acme x"}, defs[0].NamePatterns)
		assert.Equal(t, []string{"ff00"}, defs[0].ServiceUUIDs)
		assert.Equal(t, "ff01", defs[0].CharacteristicUUID)

		_, known := reg.KnownUUIDs()["ff00"]
		assert.True(t, known)
	})

	t.Run("missing id rejected", func(t *testing.T) {
		_, err := Parse([]byte("scanners:\n  - manufacturer: Acme\n"))
		assert.Error(t, err)
	})

	t.Run("malformed document rejected", func(t *testing.T) {
		_, err := Parse([]byte("scanners: {not a list"))
		assert.Error(t, err)
	})

	t.Run("definitions keep document order", func(t *testing.T) {
		reg, err := Parse([]byte(`
scanners:
  - id: first
    manufacturer: A
  - id: second
    manufacturer: B
  - id: third
    manufacturer: C
`))
		require.NoError(t, err)

		defs := reg.Definitions()
		require.Len(t, defs, 3)
		assert.Equal(t, "first", defs[0].ID)
		assert.Equal(t, "second", defs[1].ID)
		assert.Equal(t, "third", defs[2].ID)
	})
}

func TestDefinitionMatchesName(t *testing.T) {
	def := &Definition{NamePatterns: []string{"cs4070", "zebra"}}

	assert.True(t, def.MatchesName("Zebra CS4070 Scanner"))
	assert.True(t, def.MatchesName("ZEBRA"))
	assert.False(t, def.MatchesName("Honeywell 8675i"))
	assert.False(t, def.MatchesName(""))
}
