package telemetry

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func mustState(t *testing.T, vals Values) *CurrentState {
	t.Helper()
	s, err := NewCurrentState(zap.NewNop(), vals)
	if err != nil {
		t.Fatalf("NewCurrentState: %v", err)
	}
	return s
}

func TestNewCurrentStateSeedsLedger(t *testing.T) {
	s := mustState(t, Values{
		"identifier":          int64(1),
		"engine_rpm":          int64(800),
		"state_timestamp_utc": int64(1700000000),
	})
	if ts, _ := s.LastUpdated("engine_rpm"); ts != 1700000000 {
		t.Errorf("engine_rpm ledger = %d, want 1700000000", ts)
	}
	// every governed attribute is seeded, present in the batch or not
	if ts, ok := s.LastUpdated("speed"); !ok || ts != 1700000000 {
		t.Errorf("speed ledger = %d (ok=%v), want 1700000000", ts, ok)
	}
	if _, ok := s.LastUpdated("state_timestamp_utc"); ok {
		t.Error("timestamp attributes must not carry ledger entries")
	}
}

func TestNewCurrentStateLedgerWithoutTimestamp(t *testing.T) {
	s := mustState(t, Values{"identifier": int64(1), "engine_rpm": int64(800)})
	if ts, _ := s.LastUpdated("engine_rpm"); ts != -1 {
		t.Errorf("ledger = %d, want -1", ts)
	}

	// a zero timestamp is treated as absent
	s = mustState(t, Values{"identifier": int64(1), "state_timestamp_utc": int64(0)})
	if ts, _ := s.LastUpdated("engine_rpm"); ts != -1 {
		t.Errorf("ledger with zero timestamp = %d, want -1", ts)
	}
}

func TestNewCurrentStateRequiresIdentifier(t *testing.T) {
	if _, err := NewCurrentState(zap.NewNop(), Values{"engine_rpm": int64(800)}); !errors.Is(err, ErrMissingAttribute) {
		t.Fatalf("err = %v, want ErrMissingAttribute", err)
	}
}

func TestMergeAppliesFresherUpdates(t *testing.T) {
	lg := zap.NewNop()
	s := mustState(t, Values{
		"identifier":          int64(1),
		"engine_rpm":          int64(800),
		"state_timestamp_utc": int64(1700000000),
	})

	next, applied, err := s.Merge(lg, Values{
		"engine_rpm":          int64(2500),
		"speed":               60.0,
		"state_timestamp_utc": int64(1700000060),
	}, true)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(applied) != 3 {
		t.Errorf("applied = %v, want 3 entries", applied)
	}
	if next.EngineRPM == nil || *next.EngineRPM != 2500 {
		t.Errorf("EngineRPM = %v, want 2500", next.EngineRPM)
	}
	if next.Speed == nil || *next.Speed != 60 {
		t.Errorf("Speed = %v, want 60", next.Speed)
	}
	if ts, _ := next.LastUpdated("engine_rpm"); ts != 1700000060 {
		t.Errorf("ledger = %d, want 1700000060", ts)
	}
	// the receiver is untouched
	if *s.EngineRPM != 800 {
		t.Errorf("original mutated: EngineRPM = %d", *s.EngineRPM)
	}
}

func TestMergeRejectsStaleUpdates(t *testing.T) {
	lg := zap.NewNop()
	s := mustState(t, Values{
		"identifier":          int64(1),
		"engine_rpm":          int64(2500),
		"state_timestamp_utc": int64(1700000060),
	})

	next, applied, err := s.Merge(lg, Values{
		"engine_rpm":          int64(800),
		"state_timestamp_utc": int64(1700000000),
	}, true)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if next.EngineRPM == nil || *next.EngineRPM != 2500 {
		t.Errorf("EngineRPM = %v, want stale value rejected", next.EngineRPM)
	}
	if _, ok := applied["engine_rpm"]; ok {
		t.Error("stale engine_rpm reported as applied")
	}
	// the older timestamp itself still lands, timestamps are ungoverned
	if next.StateTimestampUTC == nil || *next.StateTimestampUTC != 1700000000 {
		t.Errorf("StateTimestampUTC = %v", next.StateTimestampUTC)
	}
	if ts, _ := next.LastUpdated("engine_rpm"); ts != 1700000060 {
		t.Errorf("ledger regressed to %d", ts)
	}
}

func TestMergeEqualTimestampIsIdempotent(t *testing.T) {
	lg := zap.NewNop()
	s := mustState(t, Values{
		"identifier":          int64(1),
		"state_timestamp_utc": int64(1700000000),
	})
	batch := Values{
		"engine_rpm":          int64(900),
		"state_timestamp_utc": int64(1700000060),
	}
	once, _, err := s.Merge(lg, batch, true)
	if err != nil {
		t.Fatalf("first Merge: %v", err)
	}
	twice, applied, err := once.Merge(lg, batch, true)
	if err != nil {
		t.Fatalf("second Merge: %v", err)
	}
	if _, ok := applied["engine_rpm"]; !ok {
		t.Error("equal-timestamp update must re-apply")
	}
	if *twice.EngineRPM != *once.EngineRPM {
		t.Errorf("EngineRPM diverged: %d vs %d", *twice.EngineRPM, *once.EngineRPM)
	}
	if a, _ := twice.LastUpdated("engine_rpm"); a != 1700000060 {
		t.Errorf("ledger = %d, want 1700000060", a)
	}
}

func TestMergeUnknownAttributeFailsWhole(t *testing.T) {
	lg := zap.NewNop()
	s := mustState(t, Values{
		"identifier":          int64(1),
		"engine_rpm":          int64(800),
		"state_timestamp_utc": int64(1700000000),
	})
	next, _, err := s.Merge(lg, Values{
		"engine_rpm":          int64(2500),
		"definitely_bogus":    int64(1),
		"state_timestamp_utc": int64(1700000060),
	}, true)
	if !errors.Is(err, ErrUnknownAttribute) {
		t.Fatalf("err = %v, want ErrUnknownAttribute", err)
	}
	if next != nil {
		t.Error("Merge returned a state despite the error")
	}
	if *s.EngineRPM != 800 {
		t.Errorf("original mutated: EngineRPM = %d", *s.EngineRPM)
	}
}

func TestMergeWithoutTimestampLastWriteWins(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	lg := zap.New(core)
	s := mustState(t, Values{
		"identifier":          int64(1),
		"engine_rpm":          int64(2500),
		"state_timestamp_utc": int64(1700000060),
	})

	next, applied, err := s.Merge(lg, Values{"engine_rpm": int64(100)}, false)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if next.EngineRPM == nil || *next.EngineRPM != 100 {
		t.Errorf("EngineRPM = %v, want last-write-wins 100", next.EngineRPM)
	}
	if _, ok := applied["engine_rpm"]; !ok {
		t.Error("untimestamped update not reported as applied")
	}
	// the ledger keeps its previous watermark
	if ts, _ := next.LastUpdated("engine_rpm"); ts != 1700000060 {
		t.Errorf("ledger = %d, want 1700000060", ts)
	}
	if logs.Len() == 0 {
		t.Error("expected a warning for the untimestamped update")
	}

	// silenced merges log nothing
	logs.TakeAll()
	if _, _, err := next.Merge(lg, Values{"engine_rpm": int64(200)}, true); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if logs.Len() != 0 {
		t.Error("silenced merge still logged")
	}
}

func TestMergeEmptyBatchReturnsReceiver(t *testing.T) {
	lg := zap.NewNop()
	s := mustState(t, Values{"identifier": int64(1)})
	next, applied, err := s.Merge(lg, Values{}, true)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if next != s {
		t.Error("empty merge must return the receiver")
	}
	if len(applied) != 0 {
		t.Errorf("applied = %v, want empty", applied)
	}
}

func TestHTTPStateValuesFlattensSubObjects(t *testing.T) {
	lg := zap.NewNop()
	vals, err := HTTPStateValues(lg, map[string]any{
		"dev_id": 1,
		"can": map[string]any{
			"mileage_CAN": 10500.5,
		},
		"heater": map[string]any{
			"heater_power": 1,
		},
		"state_utc": 1700000000,
	}, nil)
	if err != nil {
		t.Fatalf("HTTPStateValues: %v", err)
	}
	if got, _ := vals.Float64("can_mileage"); got != 10500.5 {
		t.Errorf("can_mileage = %v, want 10500.5", got)
	}
	if got, _ := vals["heater_power"].(bool); !got {
		t.Errorf("heater_power = %v, want true", vals["heater_power"])
	}
}

func TestDirection(t *testing.T) {
	tests := []struct {
		degrees float64
		want    string
	}{
		{0, "N"},
		{45, "NE"},
		{90, "E"},
		{180, "S"},
		{270, "W"},
		{359, "N"},
		{22.5, "NNE"},
	}
	for _, tc := range tests {
		if got := DegreesToDirection(tc.degrees); got != tc.want {
			t.Errorf("DegreesToDirection(%v) = %s, want %s", tc.degrees, got, tc.want)
		}
	}

	s := mustState(t, Values{"identifier": int64(1)})
	if s.Direction() != "N" {
		t.Errorf("Direction with nil rotation = %s, want N", s.Direction())
	}
}
