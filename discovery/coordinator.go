// Package discovery runs cancelable BLE scan sessions and turns raw
// advertisements into a ranked list of scanner candidates.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"

	"github.com/scanlink/scanlink/internal/bleadapter"
	"github.com/scanlink/scanlink/registry"
)

// RSSI ranking bonus applied by the coordinator, on top of the classifier's
// heuristic score. Kept out of the classifier so the score stays a pure
// function of name and UUIDs.
const (
	StrongRSSIThreshold = -60
	StrongRSSIBonus     = 10
)

// Device is one discovered candidate, valid for the scan session it came from.
type Device struct {
	DeviceID       string
	Name           string
	RSSI           int
	ServiceUUIDs   []string
	IsKnownScanner bool
	Manufacturer   string
	Model          string
	HeuristicScore int
}

// Options configures a discovery session.
type Options struct {
	// Timeout bounds the scan; the session also ends on ctx cancellation.
	Timeout time.Duration `default:"10s"`

	// Advanced returns every named device instead of known scanners only.
	Advanced bool
}

// DefaultOptions returns discovery options with the standard 10s timeout.
func DefaultOptions() *Options {
	opts := &Options{}
	defaults.SetDefaults(opts)
	return opts
}

// Coordinator owns discovery sessions. Only one session may be active at a
// time; starting a new one cancels and awaits the previous session first.
type Coordinator struct {
	adapter  bleadapter.Adapter
	registry *registry.Registry
	logger   *logrus.Logger

	mu         sync.Mutex
	cancelPrev context.CancelFunc
	prevDone   chan struct{}
}

// NewCoordinator creates a discovery coordinator.
func NewCoordinator(adapter bleadapter.Adapter, reg *registry.Registry, logger *logrus.Logger) *Coordinator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Coordinator{
		adapter:  adapter,
		registry: reg,
		logger:   logger,
	}
}

// Discover runs one scan session and returns candidates ranked by known
// status, heuristic score, and RSSI, in that order. Devices advertising no
// name are ignored; the first advertisement per device id wins.
func (c *Coordinator) Discover(ctx context.Context, opts *Options) ([]*Device, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	sessionCtx, done := c.beginSession(ctx, opts.Timeout)
	defer done()

	c.logger.WithFields(logrus.Fields{
		"timeout":  opts.Timeout,
		"advanced": opts.Advanced,
	}).Info("Starting scanner discovery")

	seen := hashmap.New[string, *Device]()
	var order []*Device
	var orderMu sync.Mutex

	err := c.adapter.Scan(sessionCtx, func(adv bleadapter.Advertisement) {
		if adv.Name == "" {
			return
		}

		dev := c.classify(adv)
		if _, loaded := seen.GetOrInsert(adv.DeviceID, dev); loaded {
			// First-seen advertisement wins within a session.
			return
		}

		orderMu.Lock()
		order = append(order, dev)
		orderMu.Unlock()

		c.logger.WithFields(logrus.Fields{
			"device": dev.Name,
			"id":     dev.DeviceID,
			"rssi":   dev.RSSI,
			"known":  dev.IsKnownScanner,
			"score":  dev.HeuristicScore,
		}).Debug("Discovered candidate")
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	orderMu.Lock()
	candidates := make([]*Device, len(order))
	copy(candidates, order)
	orderMu.Unlock()

	if !opts.Advanced {
		filtered := candidates[:0]
		for _, dev := range candidates {
			if dev.IsKnownScanner {
				filtered = append(filtered, dev)
			}
		}
		candidates = filtered
	}

	rank(candidates)

	c.logger.WithField("candidates", len(candidates)).Info("Discovery completed")
	return candidates, nil
}

// beginSession cancels any in-flight session, then installs this one as the
// single active session.
func (c *Coordinator) beginSession(ctx context.Context, timeout time.Duration) (context.Context, func()) {
	c.mu.Lock()
	if c.cancelPrev != nil {
		prevCancel, prevDone := c.cancelPrev, c.prevDone
		c.mu.Unlock()
		prevCancel()
		<-prevDone
		c.mu.Lock()
	}

	sessionCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		sessionCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		sessionCtx, cancel = context.WithCancel(ctx)
	}

	finished := make(chan struct{})
	c.cancelPrev = cancel
	c.prevDone = finished
	c.mu.Unlock()

	var once sync.Once
	return sessionCtx, func() {
		once.Do(func() {
			cancel()
			close(finished)

			c.mu.Lock()
			if c.prevDone == finished {
				c.cancelPrev = nil
				c.prevDone = nil
			}
			c.mu.Unlock()
		})
	}
}

func (c *Coordinator) classify(adv bleadapter.Advertisement) *Device {
	dev := &Device{
		DeviceID:     adv.DeviceID,
		Name:         adv.Name,
		RSSI:         adv.RSSI,
		ServiceUUIDs: adv.ServiceUUIDs,
	}

	if m, ok := c.registry.MatchKnown(adv.Name, adv.ServiceUUIDs); ok {
		dev.IsKnownScanner = true
		dev.Manufacturer = m.Manufacturer
		dev.Model = m.Model
	}

	dev.HeuristicScore = c.registry.HeuristicScore(adv.Name, adv.ServiceUUIDs)
	if adv.RSSI > StrongRSSIThreshold {
		dev.HeuristicScore += StrongRSSIBonus
	}
	return dev
}

// rank orders candidates: known scanners first, then by heuristic score,
// then by signal strength. The UI relies on this exact tie-break order.
func rank(devices []*Device) {
	sort.SliceStable(devices, func(i, j int) bool {
		a, b := devices[i], devices[j]
		if a.IsKnownScanner != b.IsKnownScanner {
			return a.IsKnownScanner
		}
		if a.HeuristicScore != b.HeuristicScore {
			return a.HeuristicScore > b.HeuristicScore
		}
		return a.RSSI > b.RSSI
	})
}
