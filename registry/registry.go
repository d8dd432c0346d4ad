// Package registry holds the static reference data for known BLE barcode
// scanners and the advertisement classifier built on top of it. Definitions
// are bundled with the binary and loaded once; the registry is read-only for
// the process lifetime.
package registry

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"gopkg.in/yaml.v3"

	"github.com/scanlink/scanlink/internal/bleadapter"
)

//go:embed definitions.yaml
var bundledDefinitions []byte

// Definition is an immutable reference record for one known scanner family.
type Definition struct {
	ID                 string   `yaml:"id"`
	Manufacturer       string   `yaml:"manufacturer"`
	Models             []string `yaml:"models"`
	NamePatterns       []string `yaml:"name_patterns"`
	ServiceUUIDs       []string `yaml:"service_uuids"`
	CharacteristicUUID string   `yaml:"characteristic_uuid"`
}

// MatchesName reports whether the device name contains any of the
// definition's name patterns (case-insensitive substring).
func (d *Definition) MatchesName(name string) bool {
	if name == "" {
		return false
	}
	lower := strings.ToLower(name)
	for _, pattern := range d.NamePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// Registry is the loaded scanner reference data plus the global heuristic
// keyword lists.
type Registry struct {
	version              int
	definitions          *orderedmap.OrderedMap[string, *Definition]
	scannerKeywords      []string
	manufacturerKeywords []string
	knownUUIDs           map[string]struct{}
}

// document mirrors the YAML layout of the definitions file.
type document struct {
	Version              int           `yaml:"version"`
	ScannerKeywords      []string      `yaml:"scanner_keywords"`
	ManufacturerKeywords []string      `yaml:"manufacturer_keywords"`
	Scanners             []*Definition `yaml:"scanners"`
}

// Load parses the bundled definitions. A malformed document degrades to an
// empty registry so classification falls back to heuristics only.
func Load(logger *logrus.Logger) *Registry {
	if logger == nil {
		logger = logrus.New()
	}

	reg, err := Parse(bundledDefinitions)
	if err != nil {
		logger.WithError(err).Warn("Failed to load scanner definitions, using empty registry")
		return empty()
	}

	logger.WithFields(logrus.Fields{
		"version":  reg.version,
		"scanners": reg.definitions.Len(),
	}).Debug("Loaded scanner registry")
	return reg
}

// Parse builds a registry from a raw definitions document.
func Parse(data []byte) (*Registry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse scanner definitions: %w", err)
	}

	reg := empty()
	reg.version = doc.Version
	reg.scannerKeywords = lowerAll(doc.ScannerKeywords)
	reg.manufacturerKeywords = lowerAll(doc.ManufacturerKeywords)

	for _, def := range doc.Scanners {
		if def.ID == "" {
			return nil, fmt.Errorf("scanner definition missing id")
		}
		def.NamePatterns = lowerAll(def.NamePatterns)
		def.ServiceUUIDs = bleadapter.NormalizeUUIDs(def.ServiceUUIDs)
		def.CharacteristicUUID = bleadapter.NormalizeUUID(def.CharacteristicUUID)

		reg.definitions.Set(def.ID, def)
		for _, uuid := range def.ServiceUUIDs {
			reg.knownUUIDs[uuid] = struct{}{}
		}
	}

	return reg, nil
}

func empty() *Registry {
	return &Registry{
		definitions: orderedmap.New[string, *Definition](),
		knownUUIDs:  make(map[string]struct{}),
	}
}

// Version returns the definitions document version, 0 for an empty registry.
func (r *Registry) Version() int {
	return r.version
}

// Len returns the number of loaded definitions.
func (r *Registry) Len() int {
	return r.definitions.Len()
}

// Definitions returns all definitions in document order. First-match-wins
// semantics in the classifier and resolver rely on this ordering.
func (r *Registry) Definitions() []*Definition {
	defs := make([]*Definition, 0, r.definitions.Len())
	for pair := r.definitions.Oldest(); pair != nil; pair = pair.Next() {
		defs = append(defs, pair.Value)
	}
	return defs
}

// KnownUUIDs returns the aggregate set of service UUIDs across all
// definitions, normalized.
func (r *Registry) KnownUUIDs() map[string]struct{} {
	return r.knownUUIDs
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
