package snowflake

import (
	"testing"
	"time"
)

func TestSetupSnowflake(t *testing.T) {
	err := Setup(0)
	if err != nil {
		t.Error(err)
	}
}

func TestGenerateSnowflake(t *testing.T) {
	_, err := Generate()
	if err != nil {
		t.Error(err)
	}
}

func TestGenerateMonotonic(t *testing.T) {
	var last int64
	for range 1000 {
		id, err := Generate()
		if err != nil {
			// increment overflow within a single millisecond is acceptable
			return
		}
		if id <= last {
			t.Fatalf("expected monotonically increasing ids, got %d after %d", id, last)
		}
		last = id
	}
}

// Clients parse ids as JSON numbers with float64 semantics, so every id has
// to round-trip through a 52-bit mantissa without losing its low bits.
func TestIDSurvivesFloat64RoundTrip(t *testing.T) {
	for range 100 {
		id, err := Generate()
		if err != nil {
			t.Fatal(err)
		}
		if id >= 1<<53 {
			t.Fatalf("id %d does not fit in 53 bits", id)
		}
		if int64(float64(id)) != id {
			t.Fatalf("id %d is not exactly representable as a float64", id)
		}
	}
}

func TestExtractedTimestampIsCurrent(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatal(err)
	}

	now := time.Now().UnixMilli()
	extracted := ExtractTimestamp(id)
	if extracted > now || now-extracted > 1000 {
		t.Errorf("extracted timestamp %d is not near %d", extracted, now)
	}
}

func TestExtractRoundTrip(t *testing.T) {
	id, err := Generate()
	if err != nil {
		t.Fatal(err)
	}

	parts := Extract(id)
	if parts.Timestamp != ExtractTimestamp(id) {
		t.Errorf("Extract and ExtractTimestamp disagree: %d vs %d", parts.Timestamp, ExtractTimestamp(id))
	}
	if parts.WorkerID != 0 {
		t.Errorf("expected worker ID 0, got %d", parts.WorkerID)
	}
}
