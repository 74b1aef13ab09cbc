package telemetry

import (
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSchemaMapAliases(t *testing.T) {
	lg := zap.NewNop()

	tests := []struct {
		name string
		data map[string]any
		want int64
	}{
		{"primary key", map[string]any{"dev_id": 100}, 100},
		{"fallback key", map[string]any{"id": 200}, 200},
		{"primary wins", map[string]any{"dev_id": 100, "id": 200}, 100},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			vals, err := StateSchema.Map(lg, tc.data, nil)
			if err != nil {
				t.Fatalf("Map: %v", err)
			}
			got, ok := vals.Int64("identifier")
			if !ok || got != tc.want {
				t.Fatalf("identifier = %v (ok=%v), want %d", vals["identifier"], ok, tc.want)
			}
		})
	}
}

func TestSchemaMapPresetWins(t *testing.T) {
	lg := zap.NewNop()
	vals, err := StateSchema.Map(lg,
		map[string]any{"dev_id": 100, "engine_rpm": 900},
		Values{"identifier": int64(5), "engine_rpm": int64(1200)})
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if got, _ := vals.Int64("identifier"); got != 5 {
		t.Errorf("identifier = %d, want preset 5", got)
	}
	if got, _ := vals.Int64("engine_rpm"); got != 1200 {
		t.Errorf("engine_rpm = %d, want preset 1200", got)
	}
}

func TestSchemaMapRequiredMissing(t *testing.T) {
	lg := zap.NewNop()
	if _, err := StateSchema.Map(lg, map[string]any{"engine_rpm": 900}, nil); !errors.Is(err, ErrMissingAttribute) {
		t.Fatalf("err = %v, want ErrMissingAttribute", err)
	}
	// a preset satisfies the requirement
	if _, err := StateSchema.Map(lg, map[string]any{"engine_rpm": 900}, Values{"identifier": int64(1)}); err != nil {
		t.Fatalf("Map with preset identifier: %v", err)
	}
}

func TestMalformedScalarsStoreNil(t *testing.T) {
	lg := zap.NewNop()
	vals, err := StateSchema.Map(lg, map[string]any{
		"dev_id":     1,
		"engine_rpm": "not-a-number",
		"voltage":    "also-bad",
	}, nil)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	for _, attr := range []string{"engine_rpm", "voltage"} {
		raw, ok := vals[attr]
		if !ok {
			t.Errorf("%s absent, want present with nil value", attr)
		}
		if raw != nil {
			t.Errorf("%s = %v, want nil", attr, raw)
		}
	}
}

func TestEmptyValuesCollapseToNil(t *testing.T) {
	lg := zap.NewNop()
	vals, err := StateSchema.Map(lg, map[string]any{
		"dev_id":  1,
		"phone":   "",
		"gear":    "D",
		"balance": map[string]any{},
	}, nil)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if vals["phone"] != nil {
		t.Errorf("phone = %v, want nil", vals["phone"])
	}
	if vals["balance"] != nil {
		t.Errorf("balance = %v, want nil", vals["balance"])
	}
	if got, _ := vals["gear"].(string); got != "D" {
		t.Errorf("gear = %v, want D", vals["gear"])
	}
}

func TestLockCoordinateScaling(t *testing.T) {
	lg := zap.NewNop()
	vals, err := StateSchema.Map(lg, map[string]any{
		"dev_id": 1,
		"lock_x": 55123456,
		"lock_y": "37654321",
	}, nil)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	if got, _ := vals.Float64("lock_latitude"); got != 55.123456 {
		t.Errorf("lock_latitude = %v, want 55.123456", got)
	}
	if got, _ := vals.Float64("lock_longitude"); got != 37.654321 {
		t.Errorf("lock_longitude = %v, want 37.654321", got)
	}
}

func TestBoolTruthiness(t *testing.T) {
	lg := zap.NewNop()
	tests := []struct {
		raw  any
		want any
	}{
		{1, true},
		{0, false},
		{"on", true},
		{"", false},
		{nil, nil},
	}
	for _, tc := range tests {
		vals, err := StateSchema.Map(lg, map[string]any{"dev_id": 1, "move": tc.raw}, nil)
		if err != nil {
			t.Fatalf("Map(%v): %v", tc.raw, err)
		}
		if got := vals["is_moving"]; got != tc.want {
			t.Errorf("is_moving(%v) = %v, want %v", tc.raw, got, tc.want)
		}
	}
}

func TestIntListDropsMalformedElements(t *testing.T) {
	lg := zap.NewNop()
	vals, err := StateSchema.Map(lg, map[string]any{
		"dev_id":        1,
		"heater_errors": []any{1, "2", "bad", 3.0},
	}, nil)
	if err != nil {
		t.Fatalf("Map: %v", err)
	}
	got, _ := vals["heater_errors"].([]int64)
	want := []int64{1, 2, 3}
	if len(got) != len(want) {
		t.Fatalf("heater_errors = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("heater_errors = %v, want %v", got, want)
		}
	}
}

func TestUnknownKeyReporting(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	lg := zap.New(core)

	// ignored keys with matching values stay silent
	if _, err := StateSchema.Map(lg, map[string]any{"dev_id": 1, "smeter": 0, "imei": "x"}, nil); err != nil {
		t.Fatalf("Map: %v", err)
	}
	if n := logs.Len(); n != 0 {
		t.Fatalf("got %d log entries for ignored keys, want 0", n)
	}

	// an ignored key with an unexpected value is reported
	if _, err := StateSchema.Map(lg, map[string]any{"dev_id": 1, "smeter": 42}, nil); err != nil {
		t.Fatalf("Map: %v", err)
	}
	if logs.Len() == 0 {
		t.Fatal("expected a report for smeter=42")
	}
	logs.TakeAll()

	// a genuinely unknown key is reported
	if _, err := StateSchema.Map(lg, map[string]any{"dev_id": 1, "brand_new_field": 7}, nil); err != nil {
		t.Fatalf("Map: %v", err)
	}
	found := false
	for _, e := range logs.TakeAll() {
		for _, f := range e.Context {
			if f.Key == "key" && f.String == "brand_new_field" {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("brand_new_field was not reported")
	}
}

func TestNewFuelTank(t *testing.T) {
	lg := zap.NewNop()
	tank := NewFuelTank(lg, map[string]any{
		"id":    2,
		"val":   43.5,
		"ras":   8.1,
		"ras_t": 1,
		"m":     nil,
	})
	if tank.ID != 2 {
		t.Errorf("ID = %d, want 2", tank.ID)
	}
	if tank.Value == nil || *tank.Value != 43.5 {
		t.Errorf("Value = %v, want 43.5", tank.Value)
	}
	if tank.ConsumptionType == nil || *tank.ConsumptionType != ConsumptionLitersPer100Km {
		t.Errorf("ConsumptionType = %v, want per-100km", tank.ConsumptionType)
	}
}

func TestNewSimCard(t *testing.T) {
	lg := zap.NewNop()

	sim, err := NewSimCard(lg, map[string]any{
		"phoneNumber": "+70000000000",
		"isActive":    1,
		"balance":     map[string]any{"value": 150.5, "cur": "RUB"},
	})
	if err != nil {
		t.Fatalf("NewSimCard: %v", err)
	}
	if sim.Phone != "+70000000000" || !sim.IsActive {
		t.Errorf("sim = %+v", sim)
	}
	if sim.Balance == nil || sim.Balance.Value == nil || *sim.Balance.Value != 150.5 {
		t.Errorf("Balance = %+v", sim.Balance)
	}
	if sim.Balance.Currency == nil || *sim.Balance.Currency != "RUB" {
		t.Errorf("Currency = %v", sim.Balance.Currency)
	}

	if _, err := NewSimCard(lg, map[string]any{"isActive": 1}); !errors.Is(err, ErrMissingAttribute) {
		t.Fatalf("err = %v, want ErrMissingAttribute", err)
	}
}

func TestLiquidSensorUnits(t *testing.T) {
	lg := zap.NewNop()
	vals := ConvLiquidSensors(lg, []any{
		map[string]any{"num": 1, "level": 50.0, "unit": 1},
		map[string]any{"num": 2, "level": 30.0, "unit": 2},
		map[string]any{"level": 10.0}, // no identifier, dropped
	})
	sensors, _ := vals.([]LiquidSensor)
	if len(sensors) != 2 {
		t.Fatalf("got %d sensors, want 2", len(sensors))
	}
	if !sensors[0].IsPercentage() || sensors[0].IsLiters() {
		t.Errorf("sensor 1 units misread: %+v", sensors[0])
	}
	if !sensors[1].IsLiters() || sensors[1].IsPercentage() {
		t.Errorf("sensor 2 units misread: %+v", sensors[1])
	}
}

func TestOBDCodeScalarForms(t *testing.T) {
	lg := zap.NewNop()
	vals := ConvOBDCodes(lg, []any{
		map[string]any{"code": "P0300", "dtime": 1700000000},
		"P0171",
		1234,
	})
	codes, _ := vals.([]OBDCode)
	if len(codes) != 3 {
		t.Fatalf("got %d codes, want 3", len(codes))
	}
	if codes[0].Code != "P0300" || codes[0].Timestamp != 1700000000 {
		t.Errorf("codes[0] = %+v", codes[0])
	}
	if codes[1].Code != "P0171" || codes[2].Code != "1234" {
		t.Errorf("scalar codes = %+v, %+v", codes[1], codes[2])
	}
}

func TestNewTrackAndHTTPTrack(t *testing.T) {
	lg := zap.NewNop()

	trk, err := NewTrack(lg, map[string]any{
		"id":     10,
		"length": 12.5,
		"points": []any{
			map[string]any{"dtime": 1700000000, "x": 55.7, "y": 37.6, "speed": 60},
			map[string]any{"ts": 1700000060, "x": 55.8, "y": 37.7},
			map[string]any{"x": 55.9}, // missing halves, dropped
		},
	})
	if err != nil {
		t.Fatalf("NewTrack: %v", err)
	}
	if trk.Identifier != 10 || len(trk.Points) != 2 {
		t.Fatalf("track = %+v", trk)
	}
	if trk.Points[1].Timestamp != 1700000060 {
		t.Errorf("ts alias not honored: %+v", trk.Points[1])
	}

	htrk, err := NewHTTPTrack(lg, map[string]any{
		"id":     11,
		"closed": true,
		"start":  1700000000,
		"end":    1700000600,
		"items": []any{
			map[string]any{"dtime": 1700000300, "x": 55.7, "y": 37.6},
		},
	})
	if err != nil {
		t.Fatalf("NewHTTPTrack: %v", err)
	}
	if htrk.IsClosed == nil || !*htrk.IsClosed {
		t.Errorf("IsClosed = %v", htrk.IsClosed)
	}
	if len(htrk.Points) != 1 {
		t.Errorf("items alias not honored: %+v", htrk.Points)
	}
}

func TestNewTrackingEvent(t *testing.T) {
	lg := zap.NewNop()
	ev, err := NewTrackingEvent(lg, map[string]any{
		"id":          500,
		"eventid1":    14,
		"dev_id":      1,
		"dtime":       1700000000,
		"bit_state_1": 1,
	}, nil)
	if err != nil {
		t.Fatalf("NewTrackingEvent: %v", err)
	}
	if ev.PrimaryEvent() != EventTrackingEnabled {
		t.Errorf("PrimaryEvent = %v, want tracking enabled", ev.PrimaryEvent())
	}
	if ev.BitState == nil || !ev.BitState.Has(BitLocked) {
		t.Errorf("BitState = %v", ev.BitState)
	}

	ev2, err := NewTrackingEvent(lg, map[string]any{"id": 501, "eventid1": 999999}, nil)
	if err != nil {
		t.Fatalf("NewTrackingEvent: %v", err)
	}
	if ev2.PrimaryEvent() != EventUnknown {
		t.Errorf("PrimaryEvent = %v, want unknown fallback", ev2.PrimaryEvent())
	}
}

func TestNewTrackingPointPreset(t *testing.T) {
	lg := zap.NewNop()
	p, err := NewTrackingPoint(lg, map[string]any{
		"track_id": 7,
		"dtime":    1700000000,
		"x":        55.7,
		"y":        37.6,
	}, Values{"device_id": int64(42)})
	if err != nil {
		t.Fatalf("NewTrackingPoint: %v", err)
	}
	if p.DeviceID != 42 || p.TrackID != 7 || p.Timestamp != 1700000000 {
		t.Fatalf("point = %+v", p)
	}

	if _, err := NewTrackingPoint(lg, map[string]any{"dtime": 1}, nil); !errors.Is(err, ErrMissingAttribute) {
		t.Fatalf("err = %v, want ErrMissingAttribute", err)
	}
}
