package account

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/pangazer/internal/api/pandora"
	"github.com/langchou/pangazer/internal/device"
	"github.com/langchou/pangazer/internal/telemetry"
)

// ErrUTCOffsetOutOfRange UTC 偏移超出一天范围
var ErrUTCOffsetOutOfRange = errors.New("utc offset too large")

// Option 配置账号
type Option func(*Account)

// WithUTCOffset 固定账号级 UTC 偏移（秒）
func WithUTCOffset(seconds int64) Option {
	return func(a *Account) { a.utcOffset = seconds }
}

// WithLocalUTCOffset 以本机时区作为账号级 UTC 偏移
func WithLocalUTCOffset() Option {
	return func(a *Account) {
		_, offset := time.Now().Zone()
		a.utcOffset = int64(offset)
	}
}

// WithUpdateWarnings 新建设备时开启无时间戳更新的告警日志
func WithUpdateWarnings() Option {
	return func(a *Account) {
		a.deviceOptions = append(a.deviceOptions, device.WithUpdateWarnings())
	}
}

// WithDeviceOptions 追加新建设备的配置项
func WithDeviceOptions(opts ...device.Option) Option {
	return func(a *Account) {
		a.deviceOptions = append(a.deviceOptions, opts...)
	}
}

// WithoutOnlineReconnect 设备重新上线时不再重建 WebSocket 连接
func WithoutOnlineReconnect() Option {
	return func(a *Account) { a.reconnectOnDeviceOnline = false }
}

// WithWSReadTimeout 调整推送通道的静默上限
func WithWSReadTimeout(d time.Duration) Option {
	return func(a *Account) { a.wsReadTimeout = d }
}

// Account 云端账号：维护名下设备的注册表，驱动 HTTP 增量轮询与
// WebSocket 推送两条更新通道
type Account struct {
	lg     *zap.Logger
	client *pandora.Client

	mu         sync.RWMutex
	devices    map[int64]*device.Device
	lastUpdate int64

	utcOffset               int64
	reconnectOnDeviceOnline bool
	wsReadTimeout           time.Duration
	deviceOptions           []device.Option
}

// New 创建账号
func New(lg *zap.Logger, client *pandora.Client, opts ...Option) (*Account, error) {
	a := &Account{
		lg:                      lg,
		client:                  client,
		devices:                 make(map[int64]*device.Device),
		lastUpdate:              -1,
		reconnectOnDeviceOnline: true,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.utcOffset <= -86400 || a.utcOffset >= 86400 {
		return nil, fmt.Errorf("%w: %d seconds", ErrUTCOffsetOutOfRange, a.utcOffset)
	}
	return a, nil
}

// Client 底层云端客户端
func (a *Account) Client() *pandora.Client { return a.client }

// UTCOffset 账号级 UTC 偏移（秒）
func (a *Account) UTCOffset() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.utcOffset
}

// LastUpdate 最近一次增量更新的服务端时间戳，尚未拉取时为 -1
func (a *Account) LastUpdate() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastUpdate
}

// Device 按标识取设备
func (a *Account) Device(id int64) (*device.Device, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	dev, ok := a.devices[id]
	return dev, ok
}

// Devices 名下全部设备，按标识排序
func (a *Account) Devices() []*device.Device {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*device.Device, 0, len(a.devices))
	for _, dev := range a.devices {
		out = append(out, dev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// ParseDeviceID 解析载荷中的设备标识，部分响应缺失 dev_id 时回退 id
func ParseDeviceID(data map[string]any) (int64, error) {
	raw, ok := data["dev_id"]
	if !ok {
		raw = data["id"]
	}
	return device.ParseDeviceID(raw)
}

// RefreshDevices 拉取设备列表：已注册设备刷新属性，新设备注册入表
func (a *Account) RefreshDevices(ctx context.Context) error {
	a.lg.Debug("updating device list")
	attrsList, err := a.client.FetchDevices(ctx)
	if err != nil {
		return err
	}

	for _, attrs := range attrsList {
		id, err := device.ParseDeviceID(attrs["id"])
		if err != nil {
			a.lg.Warn("device list entry with bad identifier", zap.Error(err))
			continue
		}
		if dev, ok := a.Device(id); ok {
			if err := dev.SetAttributes(attrs); err != nil {
				a.lg.Warn("could not refresh device attributes",
					zap.Int64("device_id", id), zap.Error(err))
			}
			continue
		}
		dev, err := device.New(a.lg, a.client, attrs, a.UTCOffset, a.deviceOptions...)
		if err != nil {
			a.lg.Warn("could not register device", zap.Error(err))
			continue
		}
		a.mu.Lock()
		a.devices[id] = dev
		a.mu.Unlock()
		a.lg.Debug("new device created", zap.Int64("device_id", id))
	}
	return nil
}

// timeDeltaAttrs 增量更新 time 字典的服务端键到状态属性的映射
var timeDeltaAttrs = [...]struct{ key, attr string }{
	{"onlined", "online_timestamp"},
	{"online", "online_timestamp_utc"},
	{"command", "command_timestamp_utc"},
	{"setting", "settings_timestamp_utc"},
}

// processHTTPState 合并 HTTP 通道的状态与时间戳更新。在线标志取自
// stats 字典 online 键的真值。
func (a *Account) processHTTPState(dev *device.Device, stats, deltas map[string]any) (*telemetry.CurrentState, telemetry.Values, error) {
	vals := telemetry.Values{}
	if len(stats) > 0 {
		a.lg.Debug("received data update from http", zap.Int64("device_id", dev.ID()))
		mapped, err := telemetry.HTTPStateValues(a.lg, stats, telemetry.Values{
			"identifier": dev.ID(),
			"is_online":  telemetry.Truthy(stats["online"]),
		})
		if err != nil {
			return nil, nil, err
		}
		vals = mapped
	}
	if len(deltas) > 0 {
		a.lg.Debug("received time update from http", zap.Int64("device_id", dev.ID()))
		for _, m := range timeDeltaAttrs {
			if v, ok := telemetry.Values(deltas).Int64(m.key); ok {
				vals[m.attr] = v
			}
		}
	}
	return dev.ApplyUpdate(vals)
}

// processEvent 构建追踪事件并在其更新时记录为设备最近事件，
// HTTP 事件流与 WebSocket event 消息共用
func (a *Account) processEvent(dev *device.Device, data map[string]any) (*telemetry.TrackingEvent, error) {
	event, err := telemetry.NewTrackingEvent(a.lg, data, telemetry.Values{"device_id": dev.ID()})
	if err != nil {
		return nil, err
	}
	last := dev.LastEvent()
	if last == nil || last.Timestamp == nil ||
		(event.Timestamp != nil && *last.Timestamp < *event.Timestamp) {
		dev.SetLastEvent(event)
	}
	return event, nil
}

// RequestUpdates 拉取自上次以来的增量更新并应用到各设备，返回每台
// 设备实际落盘的属性子集与新事件
func (a *Account) RequestUpdates(ctx context.Context) (map[int64]telemetry.Values, []*telemetry.TrackingEvent, error) {
	since := a.LastUpdate()
	if since < 0 {
		a.lg.Info("fetching initial state")
	} else {
		a.lg.Info("fetching updates", zap.Int64("since", since))
	}

	data, err := a.client.RequestUpdates(ctx, since)
	if err != nil {
		return nil, nil, err
	}

	// stats 与 time 先按设备归并再一次性应用
	type deviceUpdate struct {
		stats  map[string]any
		deltas map[string]any
	}
	updates := map[int64]*deviceUpdate{}
	for _, key := range []string{"stats", "time"} {
		mapping, _ := data[key].(map[string]any)
		for rawID, payload := range mapping {
			id, err := strconv.ParseInt(rawID, 10, 64)
			if err != nil {
				a.lg.Warn("bad device id in updates",
					zap.String("section", key), zap.String("device_id", rawID))
				continue
			}
			if _, ok := a.Device(id); !ok {
				a.lg.Warn("received updates for uninitialized device",
					zap.String("section", key), zap.Int64("device_id", id))
				continue
			}
			m, ok := payload.(map[string]any)
			if !ok {
				continue
			}
			u := updates[id]
			if u == nil {
				u = &deviceUpdate{}
				updates[id] = u
			}
			if key == "stats" {
				u.stats = m
			} else {
				u.deltas = m
			}
		}
	}

	applied := map[int64]telemetry.Values{}
	for id, u := range updates {
		dev, _ := a.Device(id)
		_, vals, err := a.processHTTPState(dev, u.stats, u.deltas)
		if err != nil {
			return nil, nil, fmt.Errorf("apply updates for device %d: %w", id, err)
		}
		applied[id] = vals
	}

	var events []*telemetry.TrackingEvent
	entries, _ := data["lenta"].([]any)
	for _, entry := range entries {
		wrapper, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		obj, ok := wrapper["obj"].(map[string]any)
		if !ok {
			continue
		}
		id, err := ParseDeviceID(obj)
		if err != nil {
			a.lg.Warn("bad device id in event data", zap.Error(err))
			continue
		}
		dev, ok := a.Device(id)
		if !ok {
			a.lg.Warn("received event for uninitialized device", zap.Int64("device_id", id))
			continue
		}
		event, err := a.processEvent(dev, obj)
		if err != nil {
			a.lg.Warn("dropping malformed event", zap.Error(err))
			continue
		}
		events = append(events, event)
	}

	if ts, ok := telemetry.Values(data).Int64("ts"); ok {
		a.mu.Lock()
		a.lastUpdate = ts
		a.mu.Unlock()
	} else {
		a.lg.Warn("response did not contain timestamp")
	}
	return applied, events, nil
}

// FetchEvents 拉取事件流并构建追踪事件，已注册设备的最近事件随之刷新
func (a *Account) FetchEvents(ctx context.Context, from, to int64, limit int, deviceID int64) ([]*telemetry.TrackingEvent, error) {
	raw, err := a.client.FetchEvents(ctx, from, to, limit, deviceID)
	if err != nil {
		return nil, err
	}
	events := make([]*telemetry.TrackingEvent, 0, len(raw))
	for _, obj := range raw {
		id, err := ParseDeviceID(obj)
		if err != nil {
			a.lg.Warn("bad device id in event data", zap.Error(err))
			continue
		}
		var event *telemetry.TrackingEvent
		if dev, ok := a.Device(id); ok {
			event, err = a.processEvent(dev, obj)
		} else {
			event, err = telemetry.NewTrackingEvent(a.lg, obj, telemetry.Values{"device_id": id})
		}
		if err != nil {
			a.lg.Warn("dropping malformed event", zap.Error(err))
			continue
		}
		events = append(events, event)
	}
	return events, nil
}

// GeocodeDevice 反查设备当前位置的短地址
func (a *Account) GeocodeDevice(ctx context.Context, dev *device.Device, language string) (string, error) {
	state := dev.State()
	if state == nil || state.Latitude == nil || state.Longitude == nil {
		return "", device.ErrStateUnavailable
	}
	short, _, err := a.client.Geocode(ctx, *state.Latitude, *state.Longitude, language, false)
	return short, err
}
