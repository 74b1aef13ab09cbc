package device

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/pangazer/internal/telemetry"
)

// DefaultControlTimeout 指令确认的默认等待时长
const DefaultControlTimeout = 30 * time.Second

var (
	// ErrStateUnavailable 设备尚无状态，需要先完成一次状态更新
	ErrStateUnavailable = errors.New("state update is required")

	// ErrDeviceIDMismatch 载荷里的设备标识与本设备不符
	ErrDeviceIDMismatch = errors.New("device identifier mismatch")
)

// Commander 设备向云端下发指令所需的最小接口
type Commander interface {
	RemoteCommand(ctx context.Context, deviceID int64, command telemetry.CommandID, params map[string]any) error
	WakeUpDevice(ctx context.Context, deviceID int64) error
}

// Option 配置单台设备
type Option func(*Device)

// WithControlTimeout 设置指令确认等待时长
func WithControlTimeout(d time.Duration) Option {
	return func(dev *Device) { dev.controlTimeout = d }
}

// WithUTCOffset 固定设备的 UTC 偏移，不再跟随账号
func WithUTCOffset(seconds int64) Option {
	return func(dev *Device) { dev.utcOffset = &seconds }
}

// WithUpdateWarnings 开启无时间戳更新的告警日志
func WithUpdateWarnings() Option {
	return func(dev *Device) { dev.silenceUpdateWarnings = false }
}

// Device 单台车载终端：属性、调和后的状态、最近轨迹点与事件，
// 以及远程指令执行
type Device struct {
	lg        *zap.Logger
	commander Commander

	mu         sync.RWMutex
	id         int64
	attributes map[string]any
	systemInfo map[string]any
	features   *telemetry.Features
	state      *telemetry.CurrentState
	lastPoint  *telemetry.TrackingPoint
	lastEvent  *telemetry.TrackingEvent

	// utcOffset 为 nil 时跟随 accountOffset
	utcOffset     *int64
	accountOffset func() int64

	controlTimeout        time.Duration
	silenceUpdateWarnings bool
	slot                  *commandSlot
}

// New 构建设备。attributes 必须携带可解析的 id；accountOffset 提供
// 账号级 UTC 偏移回退，可为 nil。
func New(lg *zap.Logger, commander Commander, attributes map[string]any, accountOffset func() int64, opts ...Option) (*Device, error) {
	id, err := ParseDeviceID(attributes["id"])
	if err != nil {
		return nil, err
	}
	if accountOffset == nil {
		accountOffset = func() int64 { return 0 }
	}
	dev := &Device{
		lg:                    lg.With(zap.Int64("device_id", id)),
		commander:             commander,
		id:                    id,
		attributes:            attributes,
		accountOffset:         accountOffset,
		controlTimeout:        DefaultControlTimeout,
		silenceUpdateWarnings: true,
		slot:                  newCommandSlot(),
	}
	for _, opt := range opts {
		opt(dev)
	}
	return dev, nil
}

// ParseDeviceID 解析载荷中的设备标识，空值或零值视为非法
func ParseDeviceID(raw any) (int64, error) {
	if raw == nil {
		return 0, fmt.Errorf("parse device id: empty value")
	}
	if s, ok := raw.(string); ok && s == "" {
		return 0, fmt.Errorf("parse device id: empty value")
	}
	var id int64
	switch t := raw.(type) {
	case int64:
		id = t
	case int:
		id = int64(t)
	case float64:
		id = int64(t)
	case string:
		n, err := strconv.ParseInt(t, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse device id %q: %w", t, err)
		}
		id = n
	default:
		return 0, fmt.Errorf("parse device id: unsupported type %T", raw)
	}
	if id == 0 {
		return 0, fmt.Errorf("parse device id: zero value")
	}
	return id, nil
}

// ID 设备标识
func (d *Device) ID() int64 { return d.id }

// UTCOffset 生效的 UTC 偏移：设备自身优先，否则回退账号级
func (d *Device) UTCOffset() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.utcOffset != nil {
		return *d.utcOffset
	}
	return d.accountOffset()
}

// SetUTCOffset 固定设备的 UTC 偏移
func (d *Device) SetUTCOffset(seconds int64) {
	d.mu.Lock()
	d.utcOffset = &seconds
	d.mu.Unlock()
}

// State 当前调和后的状态，尚未收到任何状态时为 nil
func (d *Device) State() *telemetry.CurrentState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// SetState 直接替换状态。command_timestamp_utc 严格前进时结算在途指令
func (d *Device) SetState(next *telemetry.CurrentState) {
	d.mu.Lock()
	old := d.state
	d.state = next
	d.mu.Unlock()
	d.resolveOnCommandAdvance(old, next)
}

func (d *Device) resolveOnCommandAdvance(old, next *telemetry.CurrentState) {
	if next == nil || !d.slot.Busy() {
		return
	}
	if old == nil {
		d.slot.Resolve(nil)
		return
	}
	oldTS := int64(-1)
	if old.CommandTimestampUTC != nil {
		oldTS = *old.CommandTimestampUTC
	}
	if next.CommandTimestampUTC != nil && *next.CommandTimestampUTC > oldTS {
		d.slot.Resolve(nil)
	}
}

// ApplyUpdate 调和时间戳后合并一个更新批次，返回后继状态与实际落盘的
// 属性子集。首个批次直接构建状态。
func (d *Device) ApplyUpdate(vals telemetry.Values) (*telemetry.CurrentState, telemetry.Values, error) {
	vals = vals.Clone()
	d.reconcileTimestamps(vals)

	d.mu.RLock()
	current := d.state
	silence := d.silenceUpdateWarnings
	d.mu.RUnlock()

	if current == nil {
		d.lg.Debug("initializing state object")
		if !vals.Has("identifier") {
			vals["identifier"] = d.id
		}
		next, err := telemetry.NewCurrentState(d.lg, vals)
		if err != nil {
			return nil, nil, err
		}
		d.SetState(next)
		applied := vals.Clone()
		delete(applied, "identifier")
		return next, applied, nil
	}

	next, applied, err := current.Merge(d.lg, vals, silence)
	if err != nil {
		return nil, nil, err
	}
	if len(applied) == 0 {
		d.lg.Debug("no attributes to update")
		return current, applied, nil
	}
	d.lg.Debug("updating state object")
	d.SetState(next)
	return next, applied, nil
}

// timestampFamilies 本地/UTC 成对出现的时间戳族
var timestampFamilies = []string{"online", "state", "settings", "command"}

// reconcileTimestamps 从首个双值齐全的族推导 UTC 偏移（取整到分钟），
// 再为全部族补齐缺失的一半。偏移推导仅用 online 与 state 两族。
func (d *Device) reconcileTimestamps(vals telemetry.Values) {
	offset := d.UTCOffset()
	for _, family := range timestampFamilies[:2] {
		local, okLocal := vals.Int64(family + "_timestamp")
		utc, okUTC := vals.Int64(family + "_timestamp_utc")
		if !okLocal || !okUTC {
			continue
		}
		derived := int64(math.Round(float64(local-utc)/60)) * 60
		if derived != offset {
			d.lg.Debug("calculated utc offset", zap.Int64("seconds", derived))
			d.SetUTCOffset(derived)
		}
		offset = derived
		break
	}

	for _, family := range timestampFamilies {
		localKey := family + "_timestamp"
		utcKey := localKey + "_utc"
		if utc, ok := vals.Int64(utcKey); ok {
			if !vals.Has(localKey) {
				vals[localKey] = utc + offset
			}
		} else if local, ok := vals.Int64(localKey); ok {
			vals[utcKey] = local - offset
		}
	}
}

// LastPoint 最近收到的追踪点
func (d *Device) LastPoint() *telemetry.TrackingPoint {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastPoint
}

// SetLastPoint 记录追踪点。点采样时刻不早于当前状态时间戳时，把坐标、
// 油量与速度折算进状态。
func (d *Device) SetLastPoint(p *telemetry.TrackingPoint) error {
	if p == nil {
		d.mu.Lock()
		d.lastPoint = nil
		d.mu.Unlock()
		return nil
	}
	if p.DeviceID != d.id {
		return fmt.Errorf("%w: point belongs to %d", ErrDeviceIDMismatch, p.DeviceID)
	}

	d.mu.RLock()
	current := d.state
	silence := d.silenceUpdateWarnings
	d.mu.RUnlock()

	if current != nil {
		stateTS := int64(-1)
		if current.StateTimestamp != nil {
			stateTS = *current.StateTimestamp
		}
		if stateTS < p.Timestamp {
			changes := telemetry.Values{}
			if p.Fuel != nil {
				changes["fuel"] = float64(*p.Fuel)
			}
			if p.Speed != nil {
				changes["speed"] = *p.Speed
			}
			if p.Latitude != nil {
				changes["latitude"] = *p.Latitude
			}
			if p.Longitude != nil {
				changes["longitude"] = *p.Longitude
			}
			if next, applied, err := current.Merge(d.lg, changes, silence); err != nil {
				return err
			} else if len(applied) > 0 {
				d.SetState(next)
			}
		}
	}

	d.mu.Lock()
	d.lastPoint = p
	d.mu.Unlock()
	return nil
}

// LastEvent 最近收到的追踪事件
func (d *Device) LastEvent() *telemetry.TrackingEvent {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.lastEvent
}

// SetLastEvent 记录追踪事件
func (d *Device) SetLastEvent(e *telemetry.TrackingEvent) {
	d.mu.Lock()
	d.lastEvent = e
	d.mu.Unlock()
}

// IsOnline 设备是否在线
func (d *Device) IsOnline() bool {
	s := d.State()
	return s != nil && s.IsOnline != nil && *s.IsOnline
}

// Attributes 服务端下发的原始属性字典
func (d *Device) Attributes() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.attributes
}

// SetAttributes 替换属性字典，设备标识必须一致
func (d *Device) SetAttributes(attributes map[string]any) error {
	id, err := ParseDeviceID(attributes["id"])
	if err != nil {
		return err
	}
	if id != d.id {
		return ErrDeviceIDMismatch
	}
	d.mu.Lock()
	d.attributes = attributes
	d.features = nil
	d.mu.Unlock()
	return nil
}

func (d *Device) attrString(key string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, _ := d.attributes[key].(string)
	return s
}

// Name 设备名称
func (d *Device) Name() string { return d.attrString("name") }

// Model 设备型号
func (d *Device) Model() string { return d.attrString("model") }

// Type 设备类型（alarm / nav8 / nav12）
func (d *Device) Type() string { return d.attrString("type") }

// Color 车身颜色
func (d *Device) Color() string { return d.attrString("color") }

// PhotoID 车辆照片标识
func (d *Device) PhotoID() string { return d.attrString("photo") }

// CarTypeID 原始车辆类型编号
func (d *Device) CarTypeID() (int64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v := telemetry.Values(d.attributes)
	return v.Int64("car_type")
}

// CarType 车辆类型的文字表述
func (d *Device) CarType() string {
	id, ok := d.CarTypeID()
	if !ok {
		return ""
	}
	switch id {
	case 1:
		return "truck"
	case 2:
		return "moto"
	default:
		return "car"
	}
}

// FirmwareVersion 固件版本，取属性字典与系统信息中的较大者
func (d *Device) FirmwareVersion() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	fw, _ := d.attributes["firmware"].(string)
	if d.systemInfo != nil {
		if sysFW, _ := d.systemInfo["firmware"].(string); sysFW > fw {
			fw = sysFW
		}
	}
	return fw
}

// VoiceVersion 语音包版本，取属性字典与系统信息中的较大者
func (d *Device) VoiceVersion() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, _ := d.attributes["voice_version"].(string)
	if d.systemInfo != nil {
		if sysV, _ := d.systemInfo["voice"].(string); sysV > v {
			v = sysV
		}
	}
	return v
}

// Features 属性字典 features 下声明的能力位掩码
func (d *Device) Features() (telemetry.Features, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.features == nil {
		raw, ok := d.attributes["features"].(map[string]any)
		if !ok {
			return 0, false
		}
		f := telemetry.FeaturesFromDict(raw)
		d.features = &f
	}
	return *d.features, true
}

// SystemInfo 最近拉取的系统信息
func (d *Device) SystemInfo() map[string]any {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.systemInfo
}

// SetSystemInfo 替换系统信息
func (d *Device) SetSystemInfo(info map[string]any) {
	d.mu.Lock()
	d.systemInfo = info
	d.mu.Unlock()
}

// VIN 系统信息中的车架号
func (d *Device) VIN() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.systemInfo == nil {
		return ""
	}
	vin, _ := d.systemInfo["vin"].(string)
	return vin
}

// IMEI 系统信息中的模块 IMEI
func (d *Device) IMEI() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.systemInfo == nil {
		return ""
	}
	imei, _ := d.systemInfo["imei"].(string)
	return imei
}

// SettingsTimestamp 系统信息 dtime 字段解析出的设置时间
func (d *Device) SettingsTimestamp() (int64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.systemInfo == nil {
		return 0, false
	}
	raw, _ := d.systemInfo["dtime"].(string)
	if raw == "" {
		return 0, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Unix(), true
		}
	}
	return 0, false
}

// ControlBusy 是否有在途指令
func (d *Device) ControlBusy() bool { return d.slot.Busy() }

// ReleaseControl 手动结算在途指令，err 非空时等待方收到该错误
func (d *Device) ReleaseControl(err error) error {
	if !d.slot.Resolve(err) {
		return ErrNoPendingCommand
	}
	return nil
}

// RemoteCommand 下发远程指令。ensureComplete 为真时占用指令槽并等待
// command_timestamp_utc 前进确认；否则只负责发出。
func (d *Device) RemoteCommand(ctx context.Context, command telemetry.CommandID, params map[string]any, ensureComplete bool) error {
	if d.State() == nil {
		return ErrStateUnavailable
	}
	if !ensureComplete {
		if d.slot.Busy() {
			return ErrDeviceBusy
		}
		return d.commander.RemoteCommand(ctx, d.id, command, params)
	}

	if err := d.slot.Begin(); err != nil {
		return err
	}
	if err := d.commander.RemoteCommand(ctx, d.id, command, params); err != nil {
		d.slot.abandon()
		return err
	}

	d.mu.RLock()
	timeout := d.controlTimeout
	d.mu.RUnlock()
	d.lg.Debug("ensuring command completion",
		zap.Int64("command", int64(command)),
		zap.Duration("timeout", timeout))
	if err := d.slot.Wait(ctx, timeout); err != nil {
		d.slot.abandon()
		return err
	}
	d.lg.Debug("command executed successfully", zap.Int64("command", int64(command)))
	return nil
}

// WakeUp 唤醒设备
func (d *Device) WakeUp(ctx context.Context) error {
	return d.commander.WakeUpDevice(ctx, d.id)
}

// 常用指令的便捷封装

func (d *Device) Lock(ctx context.Context) error {
	return d.RemoteCommand(ctx, telemetry.CommandLock, nil, true)
}

func (d *Device) Unlock(ctx context.Context) error {
	return d.RemoteCommand(ctx, telemetry.CommandUnlock, nil, true)
}

func (d *Device) StartEngine(ctx context.Context) error {
	return d.RemoteCommand(ctx, telemetry.CommandStartEngine, nil, true)
}

func (d *Device) StopEngine(ctx context.Context) error {
	return d.RemoteCommand(ctx, telemetry.CommandStopEngine, nil, true)
}

func (d *Device) EnableTracking(ctx context.Context) error {
	return d.RemoteCommand(ctx, telemetry.CommandEnableTracking, nil, true)
}

func (d *Device) DisableTracking(ctx context.Context) error {
	return d.RemoteCommand(ctx, telemetry.CommandDisableTracking, nil, true)
}

func (d *Device) EnableActiveSecurity(ctx context.Context) error {
	return d.RemoteCommand(ctx, telemetry.CommandEnableActiveSecurity, nil, true)
}

func (d *Device) DisableActiveSecurity(ctx context.Context) error {
	return d.RemoteCommand(ctx, telemetry.CommandDisableActiveSecurity, nil, true)
}

func (d *Device) TurnOnBlockHeater(ctx context.Context) error {
	return d.RemoteCommand(ctx, telemetry.CommandTurnOnBlockHeater, nil, true)
}

func (d *Device) TurnOffBlockHeater(ctx context.Context) error {
	return d.RemoteCommand(ctx, telemetry.CommandTurnOffBlockHeater, nil, true)
}

func (d *Device) TurnOnExtChannel(ctx context.Context) error {
	return d.RemoteCommand(ctx, telemetry.CommandTurnOnExtChannel, nil, true)
}

func (d *Device) TurnOffExtChannel(ctx context.Context) error {
	return d.RemoteCommand(ctx, telemetry.CommandTurnOffExtChannel, nil, true)
}

func (d *Device) EnableServiceMode(ctx context.Context) error {
	return d.RemoteCommand(ctx, telemetry.CommandEnableServiceMode, nil, true)
}

func (d *Device) DisableServiceMode(ctx context.Context) error {
	return d.RemoteCommand(ctx, telemetry.CommandDisableServiceMode, nil, true)
}

func (d *Device) TriggerHorn(ctx context.Context) error {
	return d.RemoteCommand(ctx, telemetry.CommandTriggerHorn, nil, true)
}

func (d *Device) TriggerLight(ctx context.Context) error {
	return d.RemoteCommand(ctx, telemetry.CommandTriggerLight, nil, true)
}

func (d *Device) TriggerTrunk(ctx context.Context) error {
	return d.RemoteCommand(ctx, telemetry.CommandTriggerTrunk, nil, true)
}

// SetClimateTemperature 设置空调目标温度
func (d *Device) SetClimateTemperature(ctx context.Context, celsius int) error {
	return d.RemoteCommand(ctx, telemetry.CommandClimateSetTemperature,
		map[string]any{telemetry.CommandParamClimateTemp: celsius}, true)
}
