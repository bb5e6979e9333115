package snowflake

import (
	"fmt"
	"sync"
	"time"
)

// Snowflake IDs are the authoritative ordering for message history: they are
// monotonically increasing per process, so "fetch before id" pagination works
// without a separate sequence column.
//
// The layout is 41-bit milliseconds since a custom epoch, 4-bit worker and
// 8-bit increment, 53 bits total. IDs must survive a round trip through
// JSON parsers that store numbers as float64 (52-bit mantissa), so the full
// value has to stay below 2^53 or the low bits get rounded away client-side.

type Snowflake struct {
	Timestamp int64
	WorkerID  int64
	Increment int64
}

// epoch is 2024-01-01T00:00:00Z in unix milliseconds. 41 bits of milliseconds
// past it lasts until the year 2093.
const epoch int64 = 1704067200000

const (
	timestampLength int64 = 41
	workerLength    int64 = 4
	incrementLength int64 = 8

	workerPos    = incrementLength
	timestampPos = incrementLength + workerLength
)

var (
	maxWorkerValue    = int64(1)<<workerLength - 1
	maxIncrementValue = int64(1)<<incrementLength - 1

	lastIncrement, lastTimestamp int64
	mutex                        sync.Mutex

	workerID    int64 = 0
	hasWorkerID       = false
)

func Setup(id int64) error {
	if id > maxWorkerValue {
		return fmt.Errorf("worker ID value exceeds maximum value of [%d]", maxWorkerValue)
	} else if !hasWorkerID {
		workerID = id
		hasWorkerID = true
		return nil
	}

	return fmt.Errorf("worker ID for snowflake generator has been already set")
}

func Generate() (int64, error) {
	mutex.Lock()
	defer mutex.Unlock()

	timestamp := time.Now().UnixMilli() - epoch
	if timestamp == lastTimestamp {
		lastIncrement += 1
		if lastIncrement > maxIncrementValue {
			return 0, fmt.Errorf("increment overflow after increment reached %d", lastIncrement)
		}
	} else {
		lastIncrement = 0
		lastTimestamp = timestamp
	}

	return timestamp<<timestampPos | workerID<<workerPos | lastIncrement, nil
}

// Extract splits an id into its parts. Timestamp comes back as unix
// milliseconds, not milliseconds past the custom epoch.
func Extract(snowflakeId int64) Snowflake {
	return Snowflake{
		Timestamp: snowflakeId>>timestampPos + epoch,
		WorkerID:  (snowflakeId >> workerPos) & ((1 << workerLength) - 1),
		Increment: snowflakeId & ((1 << incrementLength) - 1),
	}
}

func ExtractTimestamp(snowflakeId int64) int64 {
	return snowflakeId>>timestampPos + epoch
}
