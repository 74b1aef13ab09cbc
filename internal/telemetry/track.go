package telemetry

import (
	"go.uber.org/zap"
)

// Balance 带可选币种的金额（SIM 卡余额）
type Balance struct {
	Value    *float64
	Currency *string
}

var balanceSchema = NewSchema("Balance", nil,
	Field{Attr: "value", Keys: []string{"value"}, Conv: ConvFloat},
	Field{Attr: "currency", Keys: []string{"cur"}, Conv: ConvEmpty(ConvString)},
)

// NewBalance 由原始载荷构建余额
func NewBalance(lg *zap.Logger, data map[string]any) *Balance {
	vals, _ := balanceSchema.Map(lg, data, nil)
	return &Balance{
		Value:    f64p(vals, "value"),
		Currency: strp(vals, "currency"),
	}
}

// ConvBalance 转换嵌套余额对象，已构建实例原样通过
func ConvBalance(lg *zap.Logger, x any) any {
	switch t := x.(type) {
	case *Balance:
		return t
	case map[string]any:
		return NewBalance(lg, t)
	default:
		return nil
	}
}

// FuelTank 单个油箱及其油耗计数
type FuelTank struct {
	ID                     int64
	Value                  *float64
	Consumption            *float64
	ConsumptionTotal       *float64
	ConsumptionSinceRefuel *float64
	ConsumptionType        *FuelConsumptionType
}

var fuelTankSchema = NewSchema("FuelTank",
	map[string]any{"m": nil},
	Field{Attr: "id", Keys: []string{"id"}, Conv: ConvInt},
	Field{Attr: "value", Keys: []string{"val"}, Conv: ConvFloat},
	Field{Attr: "consumption", Keys: []string{"ras"}, Conv: ConvFloat},
	Field{Attr: "consumption_total", Keys: []string{"ras_a"}, Conv: ConvFloat},
	Field{Attr: "consumption_since_refuel", Keys: []string{"ras_z"}, Conv: ConvFloat},
	Field{Attr: "consumption_type", Keys: []string{"ras_t"}, Conv: ConvInt},
)

// NewFuelTank 由原始载荷构建油箱
func NewFuelTank(lg *zap.Logger, data map[string]any) *FuelTank {
	vals, _ := fuelTankSchema.Map(lg, data, nil)
	t := &FuelTank{
		Value:                  f64p(vals, "value"),
		Consumption:            f64p(vals, "consumption"),
		ConsumptionTotal:       f64p(vals, "consumption_total"),
		ConsumptionSinceRefuel: f64p(vals, "consumption_since_refuel"),
	}
	t.ID, _ = vals.Int64("id")
	if n, ok := vals.Int64("consumption_type"); ok {
		ct := FuelConsumptionType(n)
		t.ConsumptionType = &ct
	}
	return t
}

// ConvFuelTanks 转换原始油箱列表，nil 返回空切片
func ConvFuelTanks(lg *zap.Logger, x any) any {
	items, _ := x.([]any)
	out := make([]FuelTank, 0, len(items))
	for _, item := range items {
		if m, ok := item.(map[string]any); ok {
			out = append(out, *NewFuelTank(lg, m))
		} else {
			lg.Warn("dropping malformed fuel tank entry", zap.Any("value", item))
		}
	}
	return out
}

// SimCard 设备内安装的一张 SIM 卡
type SimCard struct {
	Phone    string
	IsActive bool
	Balance  *Balance
}

var simCardSchema = NewSchema("SimCard", nil,
	Field{Attr: "phone", Keys: []string{"phoneNumber"}, Conv: ConvString, Required: true},
	Field{Attr: "is_active", Keys: []string{"isActive"}, Conv: ConvBool, Required: true},
	Field{Attr: "balance", Keys: []string{"balance"}, Conv: ConvEmpty(ConvBalance)},
)

// NewSimCard 由原始载荷构建 SIM 卡记录
func NewSimCard(lg *zap.Logger, data map[string]any) (*SimCard, error) {
	vals, err := simCardSchema.Map(lg, data, nil)
	if err != nil {
		return nil, err
	}
	s := &SimCard{}
	if p := strp(vals, "phone"); p != nil {
		s.Phone = *p
	}
	if b := boolp(vals, "is_active"); b != nil {
		s.IsActive = *b
	}
	s.Balance, _ = vals["balance"].(*Balance)
	return s, nil
}

// ConvSimCards 转换原始 SIM 列表，丢弃畸形条目
func ConvSimCards(lg *zap.Logger, x any) any {
	items, _ := x.([]any)
	out := make([]SimCard, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			lg.Warn("dropping malformed sim entry", zap.Any("value", item))
			continue
		}
		s, err := NewSimCard(lg, m)
		if err != nil {
			lg.Warn("dropping incomplete sim entry", zap.Error(err))
			continue
		}
		out = append(out, *s)
	}
	return out
}

// LiquidSensor 外接液位（油位）传感器读数
type LiquidSensor struct {
	Identifier  int64
	Level       *float64
	Temperature *float64
	Unit        *int64
	Voltage     *float64
}

// IsPercentage 判断传感器是否以百分比上报液位
func (s LiquidSensor) IsPercentage() bool { return s.Unit != nil && *s.Unit == 1 }

// IsLiters 判断传感器是否以升上报液位
func (s LiquidSensor) IsLiters() bool { return s.Unit != nil && *s.Unit == 2 }

var liquidSensorSchema = NewSchema("LiquidSensor", nil,
	Field{Attr: "identifier", Keys: []string{"num"}, Conv: ConvInt, Required: true},
	Field{Attr: "level", Keys: []string{"level"}, Conv: ConvFloat},
	Field{Attr: "temperature", Keys: []string{"temp"}, Conv: ConvFloat},
	Field{Attr: "unit", Keys: []string{"unit"}, Conv: ConvInt},
	Field{Attr: "voltage", Keys: []string{"voltage"}, Conv: ConvFloat},
)

// ConvLiquidSensors 转换原始传感器列表，丢弃畸形条目
func ConvLiquidSensors(lg *zap.Logger, x any) any {
	items, _ := x.([]any)
	out := make([]LiquidSensor, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			lg.Warn("dropping malformed liquid sensor entry", zap.Any("value", item))
			continue
		}
		vals, err := liquidSensorSchema.Map(lg, m, nil)
		if err != nil {
			lg.Warn("dropping incomplete liquid sensor entry", zap.Error(err))
			continue
		}
		s := LiquidSensor{
			Level:       f64p(vals, "level"),
			Temperature: f64p(vals, "temperature"),
			Unit:        i64p(vals, "unit"),
			Voltage:     f64p(vals, "voltage"),
		}
		s.Identifier, _ = vals.Int64("identifier")
		out = append(out, s)
	}
	return out
}

// OBDCode OBD 上报的一条故障码
type OBDCode struct {
	Code      string
	Timestamp int64
}

var obdCodeSchema = NewSchema("OBDCode", nil,
	Field{Attr: "code", Keys: []string{"code"}, Conv: ConvString},
	Field{Attr: "timestamp", Keys: []string{"dtime"}, Conv: ConvInt},
)

// ConvOBDCodes 转换原始故障码列表，标量条目按无时间戳的裸码接受
func ConvOBDCodes(lg *zap.Logger, x any) any {
	items, _ := x.([]any)
	out := make([]OBDCode, 0, len(items))
	for _, item := range items {
		switch t := item.(type) {
		case map[string]any:
			vals, _ := obdCodeSchema.Map(lg, t, nil)
			c := OBDCode{}
			if s := strp(vals, "code"); s != nil {
				c.Code = *s
			}
			c.Timestamp, _ = vals.Int64("timestamp")
			out = append(out, c)
		case string:
			out = append(out, OBDCode{Code: t})
		default:
			if n, ok := toInt64(item); ok {
				out = append(out, OBDCode{Code: stringify(n)})
			} else {
				lg.Warn("dropping malformed OBD code entry", zap.Any("value", item))
			}
		}
	}
	return out
}

// TrackPoint 轨迹内的单个采样点（WebSocket 推送或轨迹拉取）
type TrackPoint struct {
	Timestamp int64
	Latitude  float64
	Longitude float64
	Fuel      *int64
	Speed     *int64
	Flags     *int64
}

var trackPointSchema = NewSchema("TrackPoint", nil,
	Field{Attr: "timestamp", Keys: []string{"dtime", "ts"}, Conv: ConvInt, Required: true},
	Field{Attr: "latitude", Keys: []string{"x"}, Conv: ConvFloat, Required: true},
	Field{Attr: "longitude", Keys: []string{"y"}, Conv: ConvFloat, Required: true},
	Field{Attr: "fuel", Keys: []string{"fuel"}, Conv: ConvInt},
	Field{Attr: "speed", Keys: []string{"speed"}, Conv: ConvInt},
	Field{Attr: "flags", Keys: []string{"flags"}, Conv: ConvInt},
)

func convTrackPoints(lg *zap.Logger, x any) []TrackPoint {
	items, _ := x.([]any)
	out := make([]TrackPoint, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			lg.Warn("dropping malformed track point", zap.Any("value", item))
			continue
		}
		vals, err := trackPointSchema.Map(lg, m, nil)
		if err != nil {
			lg.Warn("dropping incomplete track point", zap.Error(err))
			continue
		}
		p := TrackPoint{
			Fuel:  i64p(vals, "fuel"),
			Speed: i64p(vals, "speed"),
			Flags: i64p(vals, "flags"),
		}
		p.Timestamp, _ = vals.Int64("timestamp")
		p.Latitude, _ = vals.Float64("latitude")
		p.Longitude, _ = vals.Float64("longitude")
		out = append(out, p)
	}
	return out
}

// Track 一条行驶轨迹（WebSocket 形态）
type Track struct {
	Identifier int64
	Length     *float64
	Speed      *int64
	Points     []TrackPoint
}

var trackSchema = NewSchema("Track", nil,
	Field{Attr: "identifier", Keys: []string{"id"}, Conv: ConvInt, Required: true},
	Field{Attr: "length", Keys: []string{"length"}, Conv: ConvFloat},
	Field{Attr: "speed", Keys: []string{"speed"}, Conv: ConvInt},
	Field{Attr: "points", Keys: []string{"points"}},
)

// NewTrack 由 WebSocket 原始载荷构建轨迹
func NewTrack(lg *zap.Logger, data map[string]any) (*Track, error) {
	vals, err := trackSchema.Map(lg, data, nil)
	if err != nil {
		return nil, err
	}
	t := &Track{
		Length: f64p(vals, "length"),
		Speed:  i64p(vals, "speed"),
		Points: convTrackPoints(lg, vals["points"]),
	}
	t.Identifier, _ = vals.Int64("identifier")
	return t, nil
}

// ConvTrack 转换嵌套轨迹对象，已构建实例原样通过
func ConvTrack(lg *zap.Logger, x any) any {
	switch t := x.(type) {
	case *Track:
		return t
	case map[string]any:
		trk, err := NewTrack(lg, t)
		if err != nil {
			lg.Warn("dropping malformed track", zap.Error(err))
			return nil
		}
		return trk
	default:
		return nil
	}
}

// HTTPTrack HTTP 轨迹数据接口返回的轨迹形态，在 WebSocket 形态之上
// 附带起止元数据
type HTTPTrack struct {
	Track
	IsClosed       *bool
	StartTimestamp *int64
	EndTimestamp   *int64
}

var httpTrackSchema = NewSchema("HTTPTrack", nil,
	Field{Attr: "identifier", Keys: []string{"id"}, Conv: ConvInt, Required: true},
	Field{Attr: "length", Keys: []string{"length"}, Conv: ConvFloat},
	Field{Attr: "speed", Keys: []string{"speed"}, Conv: ConvInt},
	Field{Attr: "is_closed", Keys: []string{"closed"}, Conv: ConvBool},
	Field{Attr: "start_timestamp", Keys: []string{"start"}, Conv: ConvInt},
	Field{Attr: "end_timestamp", Keys: []string{"end"}, Conv: ConvInt},
	Field{Attr: "points", Keys: []string{"points", "items"}},
)

// NewHTTPTrack 由 HTTP 轨迹数据载荷构建轨迹
func NewHTTPTrack(lg *zap.Logger, data map[string]any) (*HTTPTrack, error) {
	vals, err := httpTrackSchema.Map(lg, data, nil)
	if err != nil {
		return nil, err
	}
	t := &HTTPTrack{
		IsClosed:       boolp(vals, "is_closed"),
		StartTimestamp: i64p(vals, "start_timestamp"),
		EndTimestamp:   i64p(vals, "end_timestamp"),
	}
	t.Length = f64p(vals, "length")
	t.Speed = i64p(vals, "speed")
	t.Points = convTrackPoints(lg, vals["points"])
	t.Identifier, _ = vals.Int64("identifier")
	return t, nil
}

// TrackingPoint 绑定设备与轨迹的不可变 GPS/遥测采样
type TrackingPoint struct {
	DeviceID  int64
	TrackID   int64
	Timestamp int64

	Latitude  *float64
	Longitude *float64
	LBSCoords *bool

	Fuel     *int64
	Speed    *float64
	Flags    *int64
	MaxSpeed *float64
	Length   *float64
}

// TrackingPointSchema 将原始点载荷（WebSocket point 消息、HTTP 轨迹
// 拉取）映射为 TrackingPoint 属性
var TrackingPointSchema = NewSchema("TrackingPoint", nil,
	Field{Attr: "device_id", Keys: []string{"dev_id"}, Conv: ConvInt, Required: true},
	Field{Attr: "track_id", Keys: []string{"track_id"}, Conv: ConvInt, Required: true},
	Field{Attr: "timestamp", Keys: []string{"dtime"}, Conv: ConvInt, Required: true},
	Field{Attr: "latitude", Keys: []string{"x"}, Conv: ConvFloat},
	Field{Attr: "longitude", Keys: []string{"y"}, Conv: ConvFloat},
	Field{Attr: "lbs_coords", Keys: []string{"Lbs_coords"}, Conv: ConvBool},
	Field{Attr: "fuel", Keys: []string{"fuel"}, Conv: ConvInt},
	Field{Attr: "speed", Keys: []string{"speed"}, Conv: ConvFloat},
	Field{Attr: "flags", Keys: []string{"flags"}, Conv: ConvInt},
	Field{Attr: "max_speed", Keys: []string{"max_speed"}, Conv: ConvFloat},
	Field{Attr: "length", Keys: []string{"length"}, Conv: ConvFloat},
)

// NewTrackingPoint 由原始载荷构建追踪点。预设值覆盖载荷派生值并可
// 满足必填属性
func NewTrackingPoint(lg *zap.Logger, data map[string]any, preset Values) (*TrackingPoint, error) {
	vals, err := TrackingPointSchema.Map(lg, data, preset)
	if err != nil {
		return nil, err
	}
	p := &TrackingPoint{
		Latitude:  f64p(vals, "latitude"),
		Longitude: f64p(vals, "longitude"),
		LBSCoords: boolp(vals, "lbs_coords"),
		Fuel:      i64p(vals, "fuel"),
		Speed:     f64p(vals, "speed"),
		Flags:     i64p(vals, "flags"),
		MaxSpeed:  f64p(vals, "max_speed"),
		Length:    f64p(vals, "length"),
	}
	p.DeviceID, _ = vals.Int64("device_id")
	p.TrackID, _ = vals.Int64("track_id")
	p.Timestamp, _ = vals.Int64("timestamp")
	return p, nil
}

// TrackingEvent 离散事件（落锁、警报、碰撞等），附带触发时刻的位置
// 与车况快照
type TrackingEvent struct {
	Identifier       int64
	EventIDPrimary   *int64
	EventIDSecondary *int64
	EventType        *int64

	DeviceID          *int64
	Timestamp         *int64
	RecordedTimestamp *int64
	Timezone          *int64

	Latitude       *float64
	Longitude      *float64
	Rotation       *float64
	StartLatitude  *float64
	StartLongitude *float64
	EndLatitude    *float64
	EndLongitude   *float64
	GeozoneID      *int64
	Length         *float64
	Points         *int64
	LBSCoords      *bool

	BitState            *BitStatus
	Fuel                *int64
	GSMLevel            *int64
	CabinTemperature    *float64
	EngineTemperature   *float64
	ExteriorTemperature *int64
	Voltage             *float64
	Speed               *float64
	EngineRPM           *int64
}

// PrimaryEvent 解码主事件标识，未知时回落为 EventUnknown
func (e *TrackingEvent) PrimaryEvent() PrimaryEventID {
	if e.EventIDPrimary == nil {
		return EventUnknown
	}
	return PrimaryEvent(*e.EventIDPrimary)
}

// ConvBitStatus 将原始整数转换为 BitStatus 位集
func ConvBitStatus(lg *zap.Logger, x any) any {
	if x == nil {
		return nil
	}
	n, ok := toInt64(x)
	if !ok {
		lg.Warn("could not convert bit state, storing no value", zap.Any("value", x))
		return nil
	}
	return BitStatus(n)
}

// TrackingEventSchema 将原始事件载荷（WebSocket event 消息、HTTP 事件
// 流条目）映射为 TrackingEvent 属性
var TrackingEventSchema = NewSchema("TrackingEvent", nil,
	Field{Attr: "identifier", Keys: []string{"id"}, Conv: ConvInt, Required: true},
	Field{Attr: "event_id_primary", Keys: []string{"eventid1"}, Conv: ConvInt},
	Field{Attr: "event_id_secondary", Keys: []string{"eventid2"}, Conv: ConvInt},
	Field{Attr: "event_type", Keys: []string{"type"}, Conv: ConvInt},
	Field{Attr: "device_id", Keys: []string{"dev_id"}, Conv: ConvInt},
	Field{Attr: "timestamp", Keys: []string{"dtime"}, Conv: ConvInt},
	Field{Attr: "recorded_timestamp", Keys: []string{"dtime_rec"}, Conv: ConvInt},
	Field{Attr: "timezone", Keys: []string{"timezone"}, Conv: ConvInt},
	Field{Attr: "latitude", Keys: []string{"x"}, Conv: ConvFloat},
	Field{Attr: "longitude", Keys: []string{"y"}, Conv: ConvFloat},
	Field{Attr: "rotation", Keys: []string{"rot"}, Conv: ConvFloat},
	Field{Attr: "start_latitude", Keys: []string{"start_x"}, Conv: ConvFloat},
	Field{Attr: "start_longitude", Keys: []string{"start_y"}, Conv: ConvFloat},
	Field{Attr: "end_latitude", Keys: []string{"end_x"}, Conv: ConvFloat},
	Field{Attr: "end_longitude", Keys: []string{"end_y"}, Conv: ConvFloat},
	Field{Attr: "geozone_id", Keys: []string{"geozone_id"}, Conv: ConvInt},
	Field{Attr: "length", Keys: []string{"len"}, Conv: ConvFloat},
	Field{Attr: "points", Keys: []string{"points"}, Conv: ConvInt},
	Field{Attr: "lbs_coords", Keys: []string{"lbs_mode"}, Conv: ConvBool},
	Field{Attr: "bit_state", Keys: []string{"bit_state_1"}, Conv: ConvBitStatus},
	Field{Attr: "fuel", Keys: []string{"fuel"}, Conv: ConvInt},
	Field{Attr: "gsm_level", Keys: []string{"gsm_level"}, Conv: ConvInt},
	Field{Attr: "cabin_temperature", Keys: []string{"cabin_temp"}, Conv: ConvFloat},
	Field{Attr: "engine_temperature", Keys: []string{"engine_temp"}, Conv: ConvFloat},
	Field{Attr: "exterior_temperature", Keys: []string{"out_temp"}, Conv: ConvInt},
	Field{Attr: "voltage", Keys: []string{"voltage"}, Conv: ConvFloat},
	Field{Attr: "speed", Keys: []string{"speed"}, Conv: ConvFloat},
	Field{Attr: "engine_rpm", Keys: []string{"engine_rpm"}, Conv: ConvInt},
)

// NewTrackingEvent 由原始载荷构建追踪事件
func NewTrackingEvent(lg *zap.Logger, data map[string]any, preset Values) (*TrackingEvent, error) {
	vals, err := TrackingEventSchema.Map(lg, data, preset)
	if err != nil {
		return nil, err
	}
	e := &TrackingEvent{
		EventIDPrimary:      i64p(vals, "event_id_primary"),
		EventIDSecondary:    i64p(vals, "event_id_secondary"),
		EventType:           i64p(vals, "event_type"),
		DeviceID:            i64p(vals, "device_id"),
		Timestamp:           i64p(vals, "timestamp"),
		RecordedTimestamp:   i64p(vals, "recorded_timestamp"),
		Timezone:            i64p(vals, "timezone"),
		Latitude:            f64p(vals, "latitude"),
		Longitude:           f64p(vals, "longitude"),
		Rotation:            f64p(vals, "rotation"),
		StartLatitude:       f64p(vals, "start_latitude"),
		StartLongitude:      f64p(vals, "start_longitude"),
		EndLatitude:         f64p(vals, "end_latitude"),
		EndLongitude:        f64p(vals, "end_longitude"),
		GeozoneID:           i64p(vals, "geozone_id"),
		Length:              f64p(vals, "length"),
		Points:              i64p(vals, "points"),
		LBSCoords:           boolp(vals, "lbs_coords"),
		Fuel:                i64p(vals, "fuel"),
		GSMLevel:            i64p(vals, "gsm_level"),
		CabinTemperature:    f64p(vals, "cabin_temperature"),
		EngineTemperature:   f64p(vals, "engine_temperature"),
		ExteriorTemperature: i64p(vals, "exterior_temperature"),
		Voltage:             f64p(vals, "voltage"),
		Speed:               f64p(vals, "speed"),
		EngineRPM:           i64p(vals, "engine_rpm"),
	}
	e.Identifier, _ = vals.Int64("identifier")
	if bs, ok := vals["bit_state"].(BitStatus); ok {
		e.BitState = &bs
	}
	return e, nil
}

func i64p(v Values, attr string) *int64 {
	if n, ok := v.Int64(attr); ok {
		return &n
	}
	return nil
}

func f64p(v Values, attr string) *float64 {
	if f, ok := v.Float64(attr); ok {
		return &f
	}
	return nil
}

func boolp(v Values, attr string) *bool {
	if b, ok := v[attr].(bool); ok {
		return &b
	}
	return nil
}

func strp(v Values, attr string) *string {
	if s, ok := v[attr].(string); ok {
		return &s
	}
	return nil
}
