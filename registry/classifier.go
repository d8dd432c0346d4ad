package registry

import (
	"strings"

	"github.com/scanlink/scanlink/internal/bleadapter"
)

// Heuristic score weights. The RSSI proximity bonus is intentionally not part
// of the classifier; discovery applies it when ranking candidates.
const (
	ScoreScannerKeyword      = 30
	ScoreManufacturerKeyword = 20
	ScoreKnownServiceUUID    = 40
	ScoreHIDService          = 25
)

// HIDServiceUUID is the standard Bluetooth HID service, normalized. Many
// scanners expose it even when their data channel is vendor-specific.
const HIDServiceUUID = "1812"

// Match identifies the registry entry an advertisement matched.
type Match struct {
	Manufacturer string
	Model        string
}

// MatchKnown reports whether the advertised name/UUIDs exactly match a
// registered scanner. A device matches if its name contains any registered
// name pattern or its advertised UUID set intersects the entry's UUIDs.
// First match in document order wins.
func (r *Registry) MatchKnown(name string, serviceUUIDs []string) (Match, bool) {
	normalized := bleadapter.NormalizeUUIDs(serviceUUIDs)

	for pair := r.definitions.Oldest(); pair != nil; pair = pair.Next() {
		def := pair.Value
		if def.MatchesName(name) || intersects(normalized, def.ServiceUUIDs) {
			m := Match{Manufacturer: def.Manufacturer}
			if len(def.Models) > 0 {
				m.Model = def.Models[0]
			}
			return m, true
		}
	}
	return Match{}, false
}

// HeuristicScore estimates how likely an unrecognized device is a barcode
// scanner. Additive and unbounded: each scanner keyword in the lowercased
// name scores 30, each manufacturer keyword 20, each advertised UUID from the
// aggregate known set 40, and the HID service 25. A device with no name
// cannot match any keyword.
func (r *Registry) HeuristicScore(name string, serviceUUIDs []string) int {
	score := 0

	if name != "" {
		lower := strings.ToLower(name)
		for _, kw := range r.scannerKeywords {
			if strings.Contains(lower, kw) {
				score += ScoreScannerKeyword
			}
		}
		for _, kw := range r.manufacturerKeywords {
			if strings.Contains(lower, kw) {
				score += ScoreManufacturerKeyword
			}
		}
	}

	for _, uuid := range dedupe(bleadapter.NormalizeUUIDs(serviceUUIDs)) {
		if _, known := r.knownUUIDs[uuid]; known {
			score += ScoreKnownServiceUUID
		}
		if uuid == HIDServiceUUID {
			score += ScoreHIDService
		}
	}

	return score
}

func intersects(a []string, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func dedupe(uuids []string) []string {
	seen := make(map[string]struct{}, len(uuids))
	out := uuids[:0]
	for _, u := range uuids {
		if _, dup := seen[u]; dup {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
