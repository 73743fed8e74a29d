package idgen

import (
	"fmt"
	"sync"
	"time"
)

const (
	timestampBits = 41
	machineIDBits = 10
	sequenceBits  = 12

	maxMachineID = (1 << machineIDBits) - 1 // 1023
	maxSequence  = (1 << sequenceBits) - 1   // 4095

	machineIDShift = sequenceBits
	timestampShift = sequenceBits + machineIDBits

	// DefaultEpoch is 2024-01-01T00:00:00Z in unix ms.
	DefaultEpoch int64 = 1704067200000
)

// SnowflakeGenerator generates 64-bit snowflake IDs rendered as zero-padded
// decimal strings, so string order equals numeric order.
type SnowflakeGenerator struct {
	mu        sync.Mutex
	epoch     int64
	machineID int64
	sequence  int64
	lastTime  int64
	now       func() int64
}

// NewSnowflakeGenerator creates a new SnowflakeGenerator.
// machineID must be in range [0, 1023]. A zero epoch selects DefaultEpoch.
func NewSnowflakeGenerator(machineID int64, epoch int64) (*SnowflakeGenerator, error) {
	if machineID < 0 || machineID > maxMachineID {
		return nil, fmt.Errorf("machine_id must be between 0 and %d, got %d", maxMachineID, machineID)
	}
	if epoch == 0 {
		epoch = DefaultEpoch
	}
	return &SnowflakeGenerator{
		epoch:     epoch,
		machineID: machineID,
		now:       func() int64 { return time.Now().UnixMilli() },
	}, nil
}

func (g *SnowflakeGenerator) Generate() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now < g.lastTime {
		return "", fmt.Errorf("clock moved backwards: current=%d, last=%d", now, g.lastTime)
	}
	return g.next(now, false)
}

// GenerateAt never fails on a backwards clock. When t is older than the last
// id, or the sequence for that millisecond is exhausted, the id borrows the
// following millisecond.
func (g *SnowflakeGenerator) GenerateAt(t time.Time) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := t.UnixMilli()
	if now < g.lastTime {
		now = g.lastTime
	}
	return g.next(now, true)
}

func (g *SnowflakeGenerator) next(now int64, logical bool) (string, error) {
	if now-g.epoch < 0 {
		return "", fmt.Errorf("current time is before custom epoch")
	}

	if now == g.lastTime {
		g.sequence = (g.sequence + 1) & maxSequence
		if g.sequence == 0 {
			if logical {
				now++
			}
			// Sequence exhausted, wait for next millisecond
			for now <= g.lastTime {
				now = g.now()
			}
		}
	} else {
		g.sequence = 0
	}

	g.lastTime = now

	id := ((now - g.epoch) << timestampShift) | (g.machineID << machineIDShift) | g.sequence
	return fmt.Sprintf("%019d", id), nil
}

// Timestamp extracts the unix ms creation time of a snowflake id.
func (g *SnowflakeGenerator) Timestamp(id int64) int64 {
	return ((id >> timestampShift) & ((1 << timestampBits) - 1)) + g.epoch
}
