package telemetry

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// sf 声明受默认新鲜度来源约束的状态字段
func sf(attr, key string, conv Converter) Field {
	return Field{Attr: attr, Keys: []string{key}, Conv: conv, TimestampSource: DefaultTimestampSource}
}

// sfFree 声明无条件应用的状态字段（时间戳、标识与在线标志）
func sfFree(attr string, keys []string, conv Converter) Field {
	return Field{Attr: attr, Keys: keys, Conv: conv}
}

// StateSchema 设备实时状态的完整属性表。受约束属性的新鲜度统一由
// state_timestamp_utc 决定；时间戳属性本身、标识和在线标志无条件更新
var StateSchema = NewSchema("CurrentState",
	map[string]any{
		// 待映射
		"dtime_rec": nil,
		// 单独解析
		"can":    nil,
		"heater": nil,
		// 未解析，大概率不需要
		"benish_mode": nil,
		"cmd_code":    nil,
		"cmd_result":  nil,
		"counter1":    nil,
		"counter2":    nil,
		"gps_ready":   nil,
		"imei":        nil,
		"land":        nil,
		// 推测来自轨迹
		"length":    nil,
		"max_speed": nil,
		"timezone":  nil,
		"track_id":  nil,
		"dtime":     nil,
		"flags":     nil,
		"tconsum":   nil,
		"props":     nil,
		// 无意义的默认值
		"loadaxis": "",
		"smeter":   0,
		"socket1":  0,
		"socket2":  0,
	},
	Field{Attr: "identifier", Keys: []string{"dev_id", "id"}, Conv: ConvInt, Required: true},

	sf("active_sim", "active_sim", ConvInt),
	sf("balance", "balance", ConvEmpty(ConvBalance)),
	sf("balance_other", "balance1", ConvEmpty(ConvBalance)),
	sf("bit_state", "bit_state_1", ConvBitStatus),
	sf("can_mileage", "mileage_CAN", ConvFloat),
	sf("engine_rpm", "engine_rpm", ConvInt),
	sf("engine_temperature", "engine_temp", ConvFloat),
	sf("exterior_temperature", "out_temp", ConvFloat),
	sf("fuel", "fuel", ConvFloat),
	sf("gsm_level", "gsm_level", ConvInt),
	sf("interior_temperature", "cabin_temp", ConvFloat),
	sf("is_evacuating", "evaq", ConvBool),
	sf("is_moving", "move", ConvBool),
	sfFree("is_online", []string{"online_mode"}, ConvBool),
	sf("key_number", "brelok", ConvInt),
	sf("latitude", "x", ConvFloat),
	sf("lock_latitude", "lock_x", ConvLockCoordinate),
	sf("lock_longitude", "lock_y", ConvLockCoordinate),
	sf("longitude", "y", ConvFloat),
	sf("mileage", "mileage", ConvFloat),
	sf("engine_hours", "motohours", ConvFloat),
	sf("phone", "phone", ConvEmpty(ConvString)),
	sf("phone_other", "phone1", ConvEmpty(ConvString)),
	sf("relay", "relay", ConvInt),
	sf("rotation", "rot", ConvFloat),
	sf("speed", "speed", ConvFloat),
	sf("tag_number", "metka", ConvInt),
	sf("tracking_remaining", "track_remains", ConvFloat),
	sf("voltage", "voltage", ConvFloat),
	sf("internal_voltage", "internal_power", ConvFloat),
	sf("gear", "gear", ConvEmpty(ConvString)),
	sf("battery_warm_up", "battery_warm_up", ConvBool),
	sf("lbs_coords", "Lbs_coords", ConvBool),
	sf("engine_remains", "engine_remains", ConvInt),
	sf("obd_error_codes", "OBD_codes", ConvOBDCodes),

	// 安全带
	sf("can_belt_back_center", "CAN_back_center_belt", ConvBool),
	sf("can_belt_back_left", "CAN_back_left_belt", ConvBool),
	sf("can_belt_back_right", "CAN_back_right_belt", ConvBool),
	sf("can_belt_driver", "CAN_driver_belt", ConvBool),
	sf("can_belt_passenger", "CAN_passenger_belt", ConvBool),

	// 车窗
	sf("can_glass_back_left", "CAN_back_left_glass", ConvBool),
	sf("can_glass_back_right", "CAN_back_right_glass", ConvBool),
	sf("can_glass_driver", "CAN_driver_glass", ConvBool),
	sf("can_glass_passenger", "CAN_passenger_glass", ConvBool),

	// 胎压，服务端前后键名互换
	sf("can_tpms_back_left", "CAN_TMPS_forvard_left", ConvFloat),
	sf("can_tpms_back_right", "CAN_TMPS_forvard_right", ConvFloat),
	sf("can_tpms_front_left", "CAN_TMPS_back_left", ConvFloat),
	sf("can_tpms_front_right", "CAN_TMPS_back_right", ConvFloat),
	sf("can_tpms_reserve", "CAN_TMPS_reserve", ConvFloat),

	// 空调
	sf("climate_firmware", "fw_climate", ConvInt),
	sf("can_climate", "CAN_climate", ConvBool),
	sf("can_climate_ac", "CAN_climate_ac", ConvBool),
	sf("can_climate_defroster", "CAN_climate_defroster", ConvBool),
	sf("can_climate_evb_heat", "CAN_climate_evb_heat", ConvBool),
	sf("can_climate_glass_heat", "CAN_climate_glass_heat", ConvBool),
	sf("can_climate_seat_heat_level", "CAN_climate_seat_heat_lvl", ConvInt),
	sf("can_climate_seat_vent_level", "CAN_climate_seat_vent_lvl", ConvInt),
	sf("can_climate_steering_heat", "CAN_climate_steering_heat", ConvBool),
	sf("can_climate_temperature", "CAN_climate_temp", ConvInt),

	// 预热器
	sf("heater_errors", "heater_errors", ConvIntList),
	sf("heater_flame", "heater_flame", ConvBool),
	sf("heater_power", "heater_power", ConvBool),
	sf("heater_temperature", "heater_temperature", ConvFloat),
	sf("heater_voltage", "heater_voltage", ConvFloat),

	// CAN 总线
	sf("can_average_speed", "CAN_average_speed", ConvFloat),
	sf("can_consumption", "CAN_consumption", ConvFloat),
	sf("can_consumption_after", "CAN_consumption_after", ConvFloat),
	sf("can_days_to_maintenance", "CAN_days_to_maintenance", ConvInt),
	sf("can_low_liquid", "CAN_low_liquid", ConvBool),
	sf("can_mileage_by_battery", "CAN_mileage_by_battery", ConvFloat),
	sf("can_mileage_to_empty", "CAN_mileage_to_empty", ConvFloat),
	sf("can_mileage_to_maintenance", "CAN_mileage_to_maintenance", ConvFloat),
	sf("can_engine_hours", "motohours_CAN", ConvFloat),
	sf("can_need_pads_exchange", "CAN_need_pads_exchange", ConvBool),
	sf("can_seat_taken", "CAN_seat_taken", ConvBool),

	// 电动车
	sf("ev_state_of_charge", "SOC", ConvFloat),
	sf("ev_state_of_health", "SOH", ConvFloat),
	sf("ev_charging_connected", "charging_connect", ConvBool),
	sf("ev_charging_slow", "charging_slow", ConvBool),
	sf("ev_charging_fast", "charging_fast", ConvBool),
	sf("ev_status_ready", "ev_status_ready", ConvBool),
	sf("battery_temperature", "battery_temperature", ConvInt),

	sf("liquid_sensors", "liquid_sensor", ConvLiquidSensors),
	sf("bunker", "bunker", ConvInt),
	sf("ex_status", "ex_status", ConvInt),
	sf("fuel_tanks", "tanks", ConvFuelTanks),
	sf("sims", "sims", ConvSimCards),

	sfFree("state_timestamp", []string{"state"}, ConvInt),
	sfFree("state_timestamp_utc", []string{"state_utc"}, ConvInt),
	sfFree("online_timestamp", []string{"online"}, ConvInt),
	sfFree("online_timestamp_utc", []string{"online_utc"}, ConvInt),
	sfFree("settings_timestamp", nil, ConvInt),
	sfFree("settings_timestamp_utc", []string{"setting_utc"}, ConvInt),
	sfFree("command_timestamp", nil, ConvInt),
	sfFree("command_timestamp_utc", []string{"command_utc"}, ConvInt),
	sf("track", "track", ConvEmpty(ConvTrack)),
)

// HTTPStateValues 映射 HTTP 状态载荷，先把嵌套的 can 与 heater 子对象
// 平铺到顶层（键冲突时子对象优先）
func HTTPStateValues(lg *zap.Logger, data map[string]any, preset Values) (Values, error) {
	flat := data
	can, _ := data["can"].(map[string]any)
	heater, _ := data["heater"].(map[string]any)
	if len(can) > 0 || len(heater) > 0 {
		flat = make(map[string]any, len(data)+len(can)+len(heater))
		for k, v := range data {
			flat[k] = v
		}
		for k, v := range can {
			flat[k] = v
		}
		for k, v := range heater {
			flat[k] = v
		}
	}
	return StateSchema.Map(lg, flat, preset)
}

// WSStateValues 映射 WebSocket 状态载荷
func WSStateValues(lg *zap.Logger, data map[string]any, preset Values) (Values, error) {
	return StateSchema.Map(lg, data, preset)
}

// CurrentState 单台设备调和后的实时状态。实例不可变，Merge 产生后继。
// 标量属性均为指针以区分缺失与显式无值
type CurrentState struct {
	Identifier int64

	ActiveSim           *int64
	Balance             *Balance
	BalanceOther        *Balance
	BitState            *BitStatus
	CANMileage          *float64
	EngineRPM           *int64
	EngineTemperature   *float64
	ExteriorTemperature *float64
	Fuel                *float64
	GSMLevel            *int64
	InteriorTemperature *float64
	IsEvacuating        *bool
	IsMoving            *bool
	IsOnline            *bool
	KeyNumber           *int64
	Latitude            *float64
	LockLatitude        *float64
	LockLongitude       *float64
	Longitude           *float64
	Mileage             *float64
	EngineHours         *float64
	Phone               *string
	PhoneOther          *string
	Relay               *int64
	Rotation            *float64
	Speed               *float64
	TagNumber           *int64
	TrackingRemaining   *float64
	Voltage             *float64
	InternalVoltage     *float64
	Gear                *string
	BatteryWarmUp       *bool
	LBSCoords           *bool
	EngineRemains       *int64
	OBDErrorCodes       []OBDCode

	CANBeltBackCenter *bool
	CANBeltBackLeft   *bool
	CANBeltBackRight  *bool
	CANBeltDriver     *bool
	CANBeltPassenger  *bool

	CANGlassBackLeft  *bool
	CANGlassBackRight *bool
	CANGlassDriver    *bool
	CANGlassPassenger *bool

	CANTPMSBackLeft   *float64
	CANTPMSBackRight  *float64
	CANTPMSFrontLeft  *float64
	CANTPMSFrontRight *float64
	CANTPMSReserve    *float64

	ClimateFirmware         *int64
	CANClimate              *bool
	CANClimateAC            *bool
	CANClimateDefroster     *bool
	CANClimateEVBHeat       *bool
	CANClimateGlassHeat     *bool
	CANClimateSeatHeatLevel *int64
	CANClimateSeatVentLevel *int64
	CANClimateSteeringHeat  *bool
	CANClimateTemperature   *int64

	HeaterErrors      []int64
	HeaterFlame       *bool
	HeaterPower       *bool
	HeaterTemperature *float64
	HeaterVoltage     *float64

	CANAverageSpeed         *float64
	CANConsumption          *float64
	CANConsumptionAfter     *float64
	CANDaysToMaintenance    *int64
	CANLowLiquid            *bool
	CANMileageByBattery     *float64
	CANMileageToEmpty       *float64
	CANMileageToMaintenance *float64
	CANEngineHours          *float64
	CANNeedPadsExchange     *bool
	CANSeatTaken            *bool

	EVStateOfCharge     *float64
	EVStateOfHealth     *float64
	EVChargingConnected *bool
	EVChargingSlow      *bool
	EVChargingFast      *bool
	EVStatusReady       *bool
	BatteryTemperature  *int64

	LiquidSensors []LiquidSensor
	Bunker        *int64
	ExStatus      *int64
	FuelTanks     []FuelTank
	Sims          []SimCard

	StateTimestamp       *int64
	StateTimestampUTC    *int64
	OnlineTimestamp      *int64
	OnlineTimestampUTC   *int64
	SettingsTimestamp    *int64
	SettingsTimestampUTC *int64
	CommandTimestamp     *int64
	CommandTimestampUTC  *int64
	Track                *Track

	lastUpdated map[string]int64
}

// NewCurrentState 由已映射批次构建设备首个状态。全部属性无条件应用，
// 新鲜度账本按各属性的时间戳来源播种，来源暂无可用值时记 -1
func NewCurrentState(lg *zap.Logger, vals Values) (*CurrentState, error) {
	id, ok := vals.Int64("identifier")
	if !ok {
		return nil, fmt.Errorf("%s: %w: identifier", StateSchema.Name, ErrMissingAttribute)
	}
	s := &CurrentState{Identifier: id}
	for attr, value := range vals {
		if attr == "identifier" {
			continue
		}
		if err := s.set(attr, value); err != nil {
			return nil, err
		}
	}
	s.lastUpdated = make(map[string]int64)
	for _, f := range StateSchema.Fields() {
		if f.TimestampSource == "" {
			continue
		}
		s.lastUpdated[f.Attr] = s.freshness(f.TimestampSource)
	}
	return s, nil
}

// LastUpdated 返回属性最后一次写入时生效的时间戳，从未受可用时间戳
// 约束时为 -1
func (s *CurrentState) LastUpdated(attr string) (int64, bool) {
	ts, ok := s.lastUpdated[attr]
	return ts, ok
}

// Merge 应用更新批次，返回后继状态与实际落盘的属性子集。账本条目
// 严格新于批次时间戳的属性被跳过；无可用时间戳的更新按后写胜出应用，
// 未静默时记录日志。出现未知属性时整批失败，不构建任何状态
func (s *CurrentState) Merge(lg *zap.Logger, changes Values, silenceWarnings bool) (*CurrentState, Values, error) {
	for attr := range changes {
		if attr == "identifier" {
			continue
		}
		if _, ok := StateSchema.Field(attr); !ok {
			return nil, nil, fmt.Errorf("%s: %w: %s", StateSchema.Name, ErrUnknownAttribute, attr)
		}
	}

	applied := make(Values, len(changes))
	ledgerUpdates := make(map[string]int64)
	warnPerSource := make(map[string][]string)
	skipPerSource := make(map[string][]string)

	for attr, value := range changes {
		if attr == "identifier" {
			continue
		}
		f, _ := StateSchema.Field(attr)
		if src := f.TimestampSource; src != "" {
			ts, ok := changes.Int64(src)
			switch {
			case !ok:
				if !silenceWarnings {
					warnPerSource[src] = append(warnPerSource[src], attr)
				}
			case s.lastUpdated[attr] > ts:
				skipPerSource[src] = append(skipPerSource[src], attr)
				continue
			default:
				ledgerUpdates[attr] = ts
			}
		}
		applied[attr] = value
	}

	logGrouped(lg, warnPerSource, "updating attributes without a timestamp")
	logGrouped(lg, skipPerSource, "skipping stale attribute updates")

	if len(applied) == 0 {
		return s, applied, nil
	}

	next := s.clone()
	for attr, value := range applied {
		if err := next.set(attr, value); err != nil {
			return nil, nil, err
		}
	}
	for attr, ts := range ledgerUpdates {
		next.lastUpdated[attr] = ts
	}
	return next, applied, nil
}

func logGrouped(lg *zap.Logger, perSource map[string][]string, msg string) {
	for src, attrs := range perSource {
		sort.Strings(attrs)
		lg.Debug(msg,
			zap.String("timestamp_source", src),
			zap.String("attributes", strings.Join(attrs, ", ")))
	}
}

func (s *CurrentState) clone() *CurrentState {
	next := *s
	next.lastUpdated = make(map[string]int64, len(s.lastUpdated))
	for k, v := range s.lastUpdated {
		next.lastUpdated[k] = v
	}
	return &next
}

// freshness 读取时间戳属性用于账本播种，缺失或为零时落为 -1，
// 任意真实时间戳都可将其取代
func (s *CurrentState) freshness(source string) int64 {
	var v *int64
	switch source {
	case "state_timestamp_utc":
		v = s.StateTimestampUTC
	case "state_timestamp":
		v = s.StateTimestamp
	case "online_timestamp_utc":
		v = s.OnlineTimestampUTC
	case "online_timestamp":
		v = s.OnlineTimestamp
	case "settings_timestamp_utc":
		v = s.SettingsTimestampUTC
	case "settings_timestamp":
		v = s.SettingsTimestamp
	case "command_timestamp_utc":
		v = s.CommandTimestampUTC
	case "command_timestamp":
		v = s.CommandTimestamp
	}
	if v == nil || *v == 0 {
		return -1
	}
	return *v
}

var compassSides = []string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// DegreesToDirection 将角度渲染为十六方位罗盘朝向
func DegreesToDirection(degrees float64) string {
	n := len(compassSides)
	idx := int(math.Round(degrees/(360/float64(n)))) % n
	if idx < 0 {
		idx += n
	}
	return compassSides[idx]
}

// Direction 当前转向角的文字表述
func (s *CurrentState) Direction() string {
	var rot float64
	if s.Rotation != nil {
		rot = *s.Rotation
	}
	return DegreesToDirection(rot)
}

func asI64(x any) *int64 {
	if x == nil {
		return nil
	}
	if n, ok := toInt64(x); ok {
		return &n
	}
	return nil
}

func asF64(x any) *float64 {
	if x == nil {
		return nil
	}
	if f, ok := toFloat64(x); ok {
		return &f
	}
	return nil
}

func asBool(x any) *bool {
	if b, ok := x.(bool); ok {
		return &b
	}
	return nil
}

func asStr(x any) *string {
	if s, ok := x.(string); ok {
		return &s
	}
	return nil
}

func asBalance(x any) *Balance {
	b, _ := x.(*Balance)
	return b
}

func (s *CurrentState) set(attr string, value any) error {
	switch attr {
	case "active_sim":
		s.ActiveSim = asI64(value)
	case "balance":
		s.Balance = asBalance(value)
	case "balance_other":
		s.BalanceOther = asBalance(value)
	case "bit_state":
		if bs, ok := value.(BitStatus); ok {
			s.BitState = &bs
		} else {
			s.BitState = nil
		}
	case "can_mileage":
		s.CANMileage = asF64(value)
	case "engine_rpm":
		s.EngineRPM = asI64(value)
	case "engine_temperature":
		s.EngineTemperature = asF64(value)
	case "exterior_temperature":
		s.ExteriorTemperature = asF64(value)
	case "fuel":
		s.Fuel = asF64(value)
	case "gsm_level":
		s.GSMLevel = asI64(value)
	case "interior_temperature":
		s.InteriorTemperature = asF64(value)
	case "is_evacuating":
		s.IsEvacuating = asBool(value)
	case "is_moving":
		s.IsMoving = asBool(value)
	case "is_online":
		s.IsOnline = asBool(value)
	case "key_number":
		s.KeyNumber = asI64(value)
	case "latitude":
		s.Latitude = asF64(value)
	case "lock_latitude":
		s.LockLatitude = asF64(value)
	case "lock_longitude":
		s.LockLongitude = asF64(value)
	case "longitude":
		s.Longitude = asF64(value)
	case "mileage":
		s.Mileage = asF64(value)
	case "engine_hours":
		s.EngineHours = asF64(value)
	case "phone":
		s.Phone = asStr(value)
	case "phone_other":
		s.PhoneOther = asStr(value)
	case "relay":
		s.Relay = asI64(value)
	case "rotation":
		s.Rotation = asF64(value)
	case "speed":
		s.Speed = asF64(value)
	case "tag_number":
		s.TagNumber = asI64(value)
	case "tracking_remaining":
		s.TrackingRemaining = asF64(value)
	case "voltage":
		s.Voltage = asF64(value)
	case "internal_voltage":
		s.InternalVoltage = asF64(value)
	case "gear":
		s.Gear = asStr(value)
	case "battery_warm_up":
		s.BatteryWarmUp = asBool(value)
	case "lbs_coords":
		s.LBSCoords = asBool(value)
	case "engine_remains":
		s.EngineRemains = asI64(value)
	case "obd_error_codes":
		s.OBDErrorCodes, _ = value.([]OBDCode)
	case "can_belt_back_center":
		s.CANBeltBackCenter = asBool(value)
	case "can_belt_back_left":
		s.CANBeltBackLeft = asBool(value)
	case "can_belt_back_right":
		s.CANBeltBackRight = asBool(value)
	case "can_belt_driver":
		s.CANBeltDriver = asBool(value)
	case "can_belt_passenger":
		s.CANBeltPassenger = asBool(value)
	case "can_glass_back_left":
		s.CANGlassBackLeft = asBool(value)
	case "can_glass_back_right":
		s.CANGlassBackRight = asBool(value)
	case "can_glass_driver":
		s.CANGlassDriver = asBool(value)
	case "can_glass_passenger":
		s.CANGlassPassenger = asBool(value)
	case "can_tpms_back_left":
		s.CANTPMSBackLeft = asF64(value)
	case "can_tpms_back_right":
		s.CANTPMSBackRight = asF64(value)
	case "can_tpms_front_left":
		s.CANTPMSFrontLeft = asF64(value)
	case "can_tpms_front_right":
		s.CANTPMSFrontRight = asF64(value)
	case "can_tpms_reserve":
		s.CANTPMSReserve = asF64(value)
	case "climate_firmware":
		s.ClimateFirmware = asI64(value)
	case "can_climate":
		s.CANClimate = asBool(value)
	case "can_climate_ac":
		s.CANClimateAC = asBool(value)
	case "can_climate_defroster":
		s.CANClimateDefroster = asBool(value)
	case "can_climate_evb_heat":
		s.CANClimateEVBHeat = asBool(value)
	case "can_climate_glass_heat":
		s.CANClimateGlassHeat = asBool(value)
	case "can_climate_seat_heat_level":
		s.CANClimateSeatHeatLevel = asI64(value)
	case "can_climate_seat_vent_level":
		s.CANClimateSeatVentLevel = asI64(value)
	case "can_climate_steering_heat":
		s.CANClimateSteeringHeat = asBool(value)
	case "can_climate_temperature":
		s.CANClimateTemperature = asI64(value)
	case "heater_errors":
		s.HeaterErrors, _ = value.([]int64)
	case "heater_flame":
		s.HeaterFlame = asBool(value)
	case "heater_power":
		s.HeaterPower = asBool(value)
	case "heater_temperature":
		s.HeaterTemperature = asF64(value)
	case "heater_voltage":
		s.HeaterVoltage = asF64(value)
	case "can_average_speed":
		s.CANAverageSpeed = asF64(value)
	case "can_consumption":
		s.CANConsumption = asF64(value)
	case "can_consumption_after":
		s.CANConsumptionAfter = asF64(value)
	case "can_days_to_maintenance":
		s.CANDaysToMaintenance = asI64(value)
	case "can_low_liquid":
		s.CANLowLiquid = asBool(value)
	case "can_mileage_by_battery":
		s.CANMileageByBattery = asF64(value)
	case "can_mileage_to_empty":
		s.CANMileageToEmpty = asF64(value)
	case "can_mileage_to_maintenance":
		s.CANMileageToMaintenance = asF64(value)
	case "can_engine_hours":
		s.CANEngineHours = asF64(value)
	case "can_need_pads_exchange":
		s.CANNeedPadsExchange = asBool(value)
	case "can_seat_taken":
		s.CANSeatTaken = asBool(value)
	case "ev_state_of_charge":
		s.EVStateOfCharge = asF64(value)
	case "ev_state_of_health":
		s.EVStateOfHealth = asF64(value)
	case "ev_charging_connected":
		s.EVChargingConnected = asBool(value)
	case "ev_charging_slow":
		s.EVChargingSlow = asBool(value)
	case "ev_charging_fast":
		s.EVChargingFast = asBool(value)
	case "ev_status_ready":
		s.EVStatusReady = asBool(value)
	case "battery_temperature":
		s.BatteryTemperature = asI64(value)
	case "liquid_sensors":
		s.LiquidSensors, _ = value.([]LiquidSensor)
	case "bunker":
		s.Bunker = asI64(value)
	case "ex_status":
		s.ExStatus = asI64(value)
	case "fuel_tanks":
		s.FuelTanks, _ = value.([]FuelTank)
	case "sims":
		s.Sims, _ = value.([]SimCard)
	case "state_timestamp":
		s.StateTimestamp = asI64(value)
	case "state_timestamp_utc":
		s.StateTimestampUTC = asI64(value)
	case "online_timestamp":
		s.OnlineTimestamp = asI64(value)
	case "online_timestamp_utc":
		s.OnlineTimestampUTC = asI64(value)
	case "settings_timestamp":
		s.SettingsTimestamp = asI64(value)
	case "settings_timestamp_utc":
		s.SettingsTimestampUTC = asI64(value)
	case "command_timestamp":
		s.CommandTimestamp = asI64(value)
	case "command_timestamp_utc":
		s.CommandTimestampUTC = asI64(value)
	case "track":
		s.Track, _ = value.(*Track)
	default:
		return fmt.Errorf("%s: %w: %s", StateSchema.Name, ErrUnknownAttribute, attr)
	}
	return nil
}
