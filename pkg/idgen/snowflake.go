package idgen

import (
	"fmt"
	"sync"
	"time"
)

// ============================================================================
// Snowflake record numbers
// ============================================================================
//
// Audit entries, inventory issues, losses and ledger events get a sortable record number.
// Transaction ids are NOT generated here: they are random UUIDs assigned by the coordinator.
//
//   0 - 41 bit timestamp - 10 bit worker id - 12 bit sequence
//
// ============================================================================

const (
	epoch          = int64(1704067200000) // 2024-01-01 00:00:00 UTC
	workerIDBits   = 10
	sequenceBits   = 12
	maxWorkerID    = -1 ^ (-1 << workerIDBits)
	maxSequence    = -1 ^ (-1 << sequenceBits)
	workerIDShift  = sequenceBits
	timestampShift = sequenceBits + workerIDBits
)

// Snowflake generates 64-bit ids that grow with time.
type Snowflake struct {
	mu        sync.Mutex
	timestamp int64
	workerID  int64
	sequence  int64
}

var (
	defaultGenerator *Snowflake
	once             sync.Once
)

// NewSnowflake returns a generator for the given worker id.
func NewSnowflake(workerID int64) (*Snowflake, error) {
	if workerID < 0 || workerID > maxWorkerID {
		return nil, fmt.Errorf("workerID must be within 0-%d, got %d", maxWorkerID, workerID)
	}
	return &Snowflake{workerID: workerID}, nil
}

// Init configures the default generator. Only the first call has an effect.
func Init(workerID int64) error {
	var err error
	once.Do(func() {
		defaultGenerator, err = NewSnowflake(workerID)
	})
	return err
}

// NextID returns the next id of the default generator.
func NextID() int64 {
	if defaultGenerator == nil {
		_ = Init(1)
	}
	return defaultGenerator.Generate()
}

// Generate returns the next id.
func (s *Snowflake) Generate() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UnixMilli()

	if now == s.timestamp {
		s.sequence = (s.sequence + 1) & maxSequence
		if s.sequence == 0 {
			// sequence exhausted, spin to the next millisecond
			for now <= s.timestamp {
				now = time.Now().UnixMilli()
			}
		}
	} else {
		s.sequence = 0
	}

	s.timestamp = now

	return ((now - epoch) << timestampShift) |
		(s.workerID << workerIDShift) |
		s.sequence
}

// GenerateAuditNo returns an audit entry number, e.g. AUD1234567890123.
func GenerateAuditNo() string {
	return fmt.Sprintf("AUD%d", NextID())
}

// GenerateIssueNo returns an inventory issue number.
func GenerateIssueNo() string {
	return fmt.Sprintf("ISS%d", NextID())
}

// GenerateLossNo returns an inventory loss number.
func GenerateLossNo() string {
	return fmt.Sprintf("LOS%d", NextID())
}

// GenerateEventNo returns a ledger event number used as the outbox message id.
func GenerateEventNo() string {
	return fmt.Sprintf("EVT%d", NextID())
}
