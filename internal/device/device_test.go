package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/pangazer/internal/telemetry"
)

type fakeCommander struct {
	mu       sync.Mutex
	commands []telemetry.CommandID
	err      error
}

func (f *fakeCommander) RemoteCommand(_ context.Context, _ int64, command telemetry.CommandID, _ map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.commands = append(f.commands, command)
	return nil
}

func (f *fakeCommander) WakeUpDevice(context.Context, int64) error { return nil }

func (f *fakeCommander) sent() []telemetry.CommandID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]telemetry.CommandID(nil), f.commands...)
}

func newTestDevice(t *testing.T, opts ...Option) (*Device, *fakeCommander) {
	t.Helper()
	fc := &fakeCommander{}
	dev, err := New(zap.NewNop(), fc, map[string]any{
		"id":    42,
		"name":  "My Car",
		"model": "DXL 5000",
		"type":  "alarm",
	}, nil, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return dev, fc
}

func TestParseDeviceID(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		want    int64
		wantErr bool
	}{
		{"int", 42, 42, false},
		{"int64", int64(42), 42, false},
		{"float", 42.0, 42, false},
		{"string", "42", 42, false},
		{"zero", 0, 0, true},
		{"zero string", "0", 0, true},
		{"empty string", "", 0, true},
		{"nil", nil, 0, true},
		{"garbage", "abc", 0, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseDeviceID(tc.raw)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("ParseDeviceID(%v) = %d, want error", tc.raw, got)
				}
				return
			}
			if err != nil || got != tc.want {
				t.Fatalf("ParseDeviceID(%v) = %d, %v, want %d", tc.raw, got, err, tc.want)
			}
		})
	}
}

func TestApplyUpdateDerivesUTCOffset(t *testing.T) {
	dev, _ := newTestDevice(t)

	_, _, err := dev.ApplyUpdate(telemetry.Values{
		"online_timestamp":     int64(1700000600),
		"online_timestamp_utc": int64(1700000000),
	})
	if err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if off := dev.UTCOffset(); off != 600 {
		t.Fatalf("UTCOffset = %d, want 600", off)
	}
}

func TestApplyUpdateBackfillsTimestampPairs(t *testing.T) {
	dev, _ := newTestDevice(t, WithUTCOffset(600))

	state, _, err := dev.ApplyUpdate(telemetry.Values{
		"state_timestamp_utc":    int64(1700000000),
		"online_timestamp":       int64(1700000600),
		"settings_timestamp_utc": int64(1699990000),
		"command_timestamp":      int64(1699980600),
	})
	if err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if state.StateTimestamp == nil || *state.StateTimestamp != 1700000600 {
		t.Errorf("StateTimestamp = %v, want 1700000600", state.StateTimestamp)
	}
	if state.OnlineTimestampUTC == nil || *state.OnlineTimestampUTC != 1700000000 {
		t.Errorf("OnlineTimestampUTC = %v, want 1700000000", state.OnlineTimestampUTC)
	}
	if state.SettingsTimestamp == nil || *state.SettingsTimestamp != 1699990600 {
		t.Errorf("SettingsTimestamp = %v, want 1699990600", state.SettingsTimestamp)
	}
	if state.CommandTimestampUTC == nil || *state.CommandTimestampUTC != 1699980000 {
		t.Errorf("CommandTimestampUTC = %v, want 1699980000", state.CommandTimestampUTC)
	}
}

func TestApplyUpdateMergesIncrementally(t *testing.T) {
	dev, _ := newTestDevice(t)

	if _, _, err := dev.ApplyUpdate(telemetry.Values{
		"engine_rpm":          int64(800),
		"state_timestamp_utc": int64(1700000000),
	}); err != nil {
		t.Fatalf("first ApplyUpdate: %v", err)
	}

	// stale batch is dropped attribute-wise
	state, applied, err := dev.ApplyUpdate(telemetry.Values{
		"engine_rpm":          int64(100),
		"state_timestamp_utc": int64(1699999000),
	})
	if err != nil {
		t.Fatalf("second ApplyUpdate: %v", err)
	}
	if _, ok := applied["engine_rpm"]; ok {
		t.Error("stale engine_rpm applied")
	}
	if state.EngineRPM == nil || *state.EngineRPM != 800 {
		t.Errorf("EngineRPM = %v, want 800", state.EngineRPM)
	}
}

func TestRemoteCommandLifecycle(t *testing.T) {
	dev, fc := newTestDevice(t)
	ctx := context.Background()

	// no state yet
	if err := dev.Lock(ctx); !errors.Is(err, ErrStateUnavailable) {
		t.Fatalf("err = %v, want ErrStateUnavailable", err)
	}

	if _, _, err := dev.ApplyUpdate(telemetry.Values{
		"command_timestamp_utc": int64(1700000000),
		"state_timestamp_utc":   int64(1700000000),
	}); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	errCh := make(chan error, 1)
	go func() {
		defer wg.Done()
		errCh <- dev.Lock(ctx)
	}()

	// wait for the slot to be occupied, then confirm via a command
	// timestamp advance
	deadline := time.After(2 * time.Second)
	for !dev.ControlBusy() {
		select {
		case <-deadline:
			t.Fatal("command never became pending")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if err := dev.Lock(ctx); !errors.Is(err, ErrDeviceBusy) {
		t.Fatalf("concurrent command err = %v, want ErrDeviceBusy", err)
	}

	if _, _, err := dev.ApplyUpdate(telemetry.Values{
		"command_timestamp_utc": int64(1700000060),
	}); err != nil {
		t.Fatalf("confirming ApplyUpdate: %v", err)
	}

	wg.Wait()
	if err := <-errCh; err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if got := fc.sent(); len(got) != 1 || got[0] != telemetry.CommandLock {
		t.Fatalf("sent commands = %v", got)
	}
	if dev.ControlBusy() {
		t.Error("slot still busy after confirmation")
	}
}

func TestRemoteCommandTimeout(t *testing.T) {
	dev, _ := newTestDevice(t, WithControlTimeout(20*time.Millisecond))
	ctx := context.Background()

	if _, _, err := dev.ApplyUpdate(telemetry.Values{
		"state_timestamp_utc": int64(1700000000),
	}); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}

	if err := dev.TriggerHorn(ctx); !errors.Is(err, ErrCommandTimeout) {
		t.Fatalf("err = %v, want ErrCommandTimeout", err)
	}
	if dev.ControlBusy() {
		t.Error("slot still busy after timeout")
	}
}

func TestReleaseControl(t *testing.T) {
	dev, _ := newTestDevice(t)
	ctx := context.Background()

	if err := dev.ReleaseControl(nil); !errors.Is(err, ErrNoPendingCommand) {
		t.Fatalf("err = %v, want ErrNoPendingCommand", err)
	}

	if _, _, err := dev.ApplyUpdate(telemetry.Values{
		"state_timestamp_utc": int64(1700000000),
	}); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}

	boom := errors.New("command rejected")
	errCh := make(chan error, 1)
	go func() { errCh <- dev.StartEngine(ctx) }()

	deadline := time.After(2 * time.Second)
	for !dev.ControlBusy() {
		select {
		case <-deadline:
			t.Fatal("command never became pending")
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if err := dev.ReleaseControl(boom); err != nil {
		t.Fatalf("ReleaseControl: %v", err)
	}
	if err := <-errCh; !errors.Is(err, boom) {
		t.Fatalf("StartEngine err = %v, want %v", err, boom)
	}
}

func TestSetLastPoint(t *testing.T) {
	dev, _ := newTestDevice(t)

	lat, lon := 55.7, 37.6
	wrong := &telemetry.TrackingPoint{DeviceID: 99, TrackID: 1, Timestamp: 1700000000}
	if err := dev.SetLastPoint(wrong); !errors.Is(err, ErrDeviceIDMismatch) {
		t.Fatalf("err = %v, want ErrDeviceIDMismatch", err)
	}

	if _, _, err := dev.ApplyUpdate(telemetry.Values{
		"speed":               10.0,
		"state_timestamp":     int64(1700000000),
		"state_timestamp_utc": int64(1700000000),
	}); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}

	speed := 88.0
	fuel := int64(45)
	p := &telemetry.TrackingPoint{
		DeviceID:  42,
		TrackID:   7,
		Timestamp: 1700000100,
		Latitude:  &lat,
		Longitude: &lon,
		Speed:     &speed,
		Fuel:      &fuel,
	}
	if err := dev.SetLastPoint(p); err != nil {
		t.Fatalf("SetLastPoint: %v", err)
	}
	if dev.LastPoint() != p {
		t.Error("last point not recorded")
	}
	state := dev.State()
	if state.Speed == nil || *state.Speed != 88 {
		t.Errorf("Speed = %v, want folded 88", state.Speed)
	}
	if state.Latitude == nil || *state.Latitude != lat {
		t.Errorf("Latitude = %v, want %v", state.Latitude, lat)
	}
	if state.Fuel == nil || *state.Fuel != 45 {
		t.Errorf("Fuel = %v, want 45", state.Fuel)
	}

	// an older point is kept but not folded into state
	oldSpeed := 5.0
	stale := &telemetry.TrackingPoint{DeviceID: 42, TrackID: 7, Timestamp: 1699990000, Speed: &oldSpeed}
	if err := dev.SetLastPoint(stale); err != nil {
		t.Fatalf("SetLastPoint: %v", err)
	}
	if dev.LastPoint() != stale {
		t.Error("stale point not recorded as last point")
	}
	if *dev.State().Speed != 88 {
		t.Errorf("Speed = %v, stale point folded in", *dev.State().Speed)
	}
}

func TestAttributeAccessors(t *testing.T) {
	dev, _ := newTestDevice(t)
	if dev.Name() != "My Car" || dev.Model() != "DXL 5000" || dev.Type() != "alarm" {
		t.Errorf("accessors: name=%q model=%q type=%q", dev.Name(), dev.Model(), dev.Type())
	}

	if err := dev.SetAttributes(map[string]any{"id": 43}); !errors.Is(err, ErrDeviceIDMismatch) {
		t.Fatalf("err = %v, want ErrDeviceIDMismatch", err)
	}
	if err := dev.SetAttributes(map[string]any{
		"id":       42,
		"name":     "Renamed",
		"car_type": 2,
		"features": map[string]any{"autostart": 1, "bluetooth": 0},
	}); err != nil {
		t.Fatalf("SetAttributes: %v", err)
	}
	if dev.Name() != "Renamed" {
		t.Errorf("Name = %q after update", dev.Name())
	}
	if dev.CarType() != "moto" {
		t.Errorf("CarType = %q, want moto", dev.CarType())
	}
	features, ok := dev.Features()
	if !ok || !features.Has(telemetry.FeatureAutostart) || features.Has(telemetry.FeatureBluetooth) {
		t.Errorf("Features = %b (ok=%v)", features, ok)
	}
}

func TestSystemInfoAccessors(t *testing.T) {
	dev, _ := newTestDevice(t)
	if dev.VIN() != "" || dev.IMEI() != "" {
		t.Error("expected empty system info")
	}
	dev.SetSystemInfo(map[string]any{
		"vin":   "XTA210990Y2712345",
		"imei":  "356938035643809",
		"dtime": "2026-08-20T10:30:00Z",
	})
	if dev.VIN() != "XTA210990Y2712345" || dev.IMEI() != "356938035643809" {
		t.Errorf("vin=%q imei=%q", dev.VIN(), dev.IMEI())
	}
	ts, ok := dev.SettingsTimestamp()
	if !ok || ts != 1787221800 {
		t.Errorf("SettingsTimestamp = %d (ok=%v)", ts, ok)
	}
}

func TestIsOnline(t *testing.T) {
	dev, _ := newTestDevice(t)
	if dev.IsOnline() {
		t.Error("device online without state")
	}
	if _, _, err := dev.ApplyUpdate(telemetry.Values{"is_online": true}); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if !dev.IsOnline() {
		t.Error("device offline after online update")
	}
}
