package bleadapter

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID
// (0000xxxx-0000-1000-8000-00805f9b34fb) after normalization.
const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the internal format: lowercase, no
// dashes, no 0x prefix. Full 128-bit UUIDs in the Bluetooth SIG base range are
// reduced to their 16-bit short form (e.g. the HID service becomes "1812").
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.ReplaceAll(uuid, "-", ""))
	u = strings.TrimPrefix(u, "0x")

	if len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix) {
		return u[4:8]
	}
	return u
}

// NormalizeUUIDs normalizes a slice of UUID strings.
func NormalizeUUIDs(uuids []string) []string {
	normalized := make([]string, len(uuids))
	for i, u := range uuids {
		normalized[i] = NormalizeUUID(u)
	}
	return normalized
}

// ParseUUID128List extracts 128-bit service UUIDs from a raw advertisement
// data field. BLE transmits each UUID as 16 little-endian bytes; a trailing
// chunk shorter than 16 bytes is malformed and skipped rather than failing
// the whole advertisement.
func ParseUUID128List(raw []byte) []string {
	uuids := make([]string, 0, len(raw)/16)
	for len(raw) >= 16 {
		chunk := raw[:16]
		raw = raw[16:]

		// Reverse into big-endian wire order before formatting.
		be := make([]byte, 16)
		for i, b := range chunk {
			be[15-i] = b
		}
		s := hex.EncodeToString(be)
		dashed := fmt.Sprintf("%s-%s-%s-%s-%s", s[0:8], s[8:12], s[12:16], s[16:20], s[20:32])
		uuids = append(uuids, NormalizeUUID(dashed))
	}
	return uuids
}
