// Package hlc implements the Hybrid Logical Clock used to order CRDT
// operations in the sync layer (spec.md §3 "HLC", §4.3, §8).
package hlc

import (
	"fmt"
	"sync"
	"time"

	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
)

// Timestamp is (wall_ms, logical_counter, device_id), ordered
// lexicographically in that field order, per spec §3.
type Timestamp struct {
	WallMS  int64
	Counter uint32
	Device  string
}

// Compare returns -1, 0, or 1 as t is less than, equal to, or greater than
// o, comparing wall time first, then counter, then device id as a final
// tie-break so total order is well defined even across identical
// (wall, counter) pairs from different devices.
func (t Timestamp) Compare(o Timestamp) int {
	if t.WallMS != o.WallMS {
		if t.WallMS < o.WallMS {
			return -1
		}
		return 1
	}
	if t.Counter != o.Counter {
		if t.Counter < o.Counter {
			return -1
		}
		return 1
	}
	if t.Device == o.Device {
		return 0
	}
	if t.Device < o.Device {
		return -1
	}
	return 1
}

// Before reports whether t strictly precedes o in total order.
func (t Timestamp) Before(o Timestamp) bool { return t.Compare(o) < 0 }

// After reports whether t strictly follows o in total order.
func (t Timestamp) After(o Timestamp) bool { return t.Compare(o) > 0 }

// Zero reports whether t is the zero Timestamp (used as "since the
// beginning of time" in watermark queries).
func (t Timestamp) Zero() bool { return t.WallMS == 0 && t.Counter == 0 && t.Device == "" }

func (t Timestamp) String() string {
	return fmt.Sprintf("%d.%d@%s", t.WallMS, t.Counter, t.Device)
}

// maxInt64 returns the later of two wall-clock milliseconds.
func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// Clock generates monotonically increasing Timestamps for one device.
// The critical section is O(1), matching spec §5 ("HLC generator: a single
// mutex; critical section is O(1)").
type Clock struct {
	mu         sync.Mutex
	lastWall   int64
	lastCount  uint32
	device     string
	skewBound  time.Duration
	now        func() time.Time
}

// NewClock creates a Clock for the given device id. skewBound is the
// maximum wall-clock drift tolerated from a received Timestamp before
// Update treats it as a fatal clock-skew condition (spec §4.3).
func NewClock(deviceID string, skewBound time.Duration) *Clock {
	return &Clock{device: deviceID, skewBound: skewBound, now: time.Now}
}

// Next produces the next Timestamp for a local event.
func (c *Clock) Next() Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()

	wall := c.now().UnixMilli()
	if wall > c.lastWall {
		c.lastWall = wall
		c.lastCount = 0
	} else {
		// wall <= lastWall: either the clock didn't advance or went
		// backwards; either way we stay on lastWall and bump the counter.
		c.lastCount++
	}
	return Timestamp{WallMS: c.lastWall, Counter: c.lastCount, Device: c.device}
}

// Update folds a received Timestamp into the clock state per spec §4.3:
// last becomes max(last, received) component-wise, with the counter
// incremented when the wall portions tie.
func (c *Clock) Update(received Timestamp) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	localWall := c.now().UnixMilli()
	drift := received.WallMS - maxInt64(localWall, c.lastWall)
	if drift > c.skewBound.Milliseconds() {
		return errs.New(errs.Internal, fmt.Sprintf(
			"clock skew %dms from device %s exceeds bound %s", drift, received.Device, c.skewBound))
	}

	newWall := maxInt64(maxInt64(c.lastWall, received.WallMS), localWall)
	switch {
	case newWall == c.lastWall && newWall == received.WallMS:
		if received.Counter >= c.lastCount {
			c.lastCount = received.Counter + 1
		} else {
			c.lastCount++
		}
	case newWall == c.lastWall:
		c.lastCount++
	case newWall == received.WallMS:
		c.lastCount = received.Counter + 1
	default:
		c.lastCount = 0
	}
	c.lastWall = newWall
	return nil
}
