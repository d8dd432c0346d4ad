// Package decode turns raw BLE notification payloads into barcode strings.
// Scanners commonly append CR/LF or NUL terminators, and many fire the same
// notification twice in quick succession; the decoder trims the former and
// suppresses the latter.
package decode

import (
	"strings"
	"sync"
	"time"
)

// DefaultDuplicateWindow is how long an identical consecutive barcode is
// treated as a duplicate of the previous one.
const DefaultDuplicateWindow = time.Second

const terminators = "\r\n\x00"

// Trim strips one contiguous run of CR, LF, and NUL terminators from each end
// of the payload and reports whether anything meaningful remains. A payload
// that is empty or whitespace-only after trimming yields no result.
func Trim(raw []byte) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}

	s := strings.Trim(string(raw), terminators)
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// Decoder decodes notification payloads and drops immediate duplicates.
// Duplicate suppression is a single-slot sliding comparison: only the most
// recent barcode and its observation time are remembered.
type Decoder struct {
	window time.Duration
	now    func() time.Time

	mu     sync.Mutex
	last   string
	lastAt time.Time
}

// NewDecoder creates a decoder with the default 1s duplicate window.
func NewDecoder() *Decoder {
	return &Decoder{
		window: DefaultDuplicateWindow,
		now:    time.Now,
	}
}

// NewDecoderWithClock creates a decoder with an injected clock, for tests.
func NewDecoderWithClock(window time.Duration, now func() time.Time) *Decoder {
	return &Decoder{window: window, now: now}
}

// Decode converts raw notification bytes into a barcode. The second return is
// false when the payload is empty, undecodable to anything meaningful, or a
// duplicate of the immediately preceding barcode within the window.
func (d *Decoder) Decode(raw []byte) (string, bool) {
	barcode, ok := Trim(raw)
	if !ok {
		return "", false
	}

	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	duplicate := barcode == d.last && now.Sub(d.lastAt) < d.window
	d.last = barcode
	d.lastAt = now

	if duplicate {
		return "", false
	}
	return barcode, true
}

// Reset clears the duplicate-suppression slot, e.g. on a new connection.
func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.last = ""
	d.lastAt = time.Time{}
}
