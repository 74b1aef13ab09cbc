package telemetry

// 设备属性字典中上报的设备类型
const (
	DeviceTypeAlarm = "alarm"
	DeviceTypeNav8  = "nav8"
	DeviceTypeNav12 = "nav12"
)

// WSMessageType 区分更新 WebSocket 上的推送消息
type WSMessageType string

const (
	WSMessageInitialState   WSMessageType = "initial-state"
	WSMessageState          WSMessageType = "state"
	WSMessagePoint          WSMessageType = "point"
	WSMessageCommand        WSMessageType = "command"
	WSMessageEvent          WSMessageType = "event"
	WSMessageUpdateSettings WSMessageType = "update-settings"
)

// CommandID 标识可在设备上执行的远程指令
type CommandID int64

const (
	// 锁车
	CommandLock   CommandID = 1
	CommandUnlock CommandID = 2

	// 发动机
	CommandStartEngine CommandID = 4
	CommandStopEngine  CommandID = 8

	// 追踪
	CommandEnableTracking  CommandID = 16
	CommandDisableTracking CommandID = 32

	// 主动安防
	CommandEnableActiveSecurity  CommandID = 17
	CommandDisableActiveSecurity CommandID = 18

	// 预热器
	CommandTurnOnBlockHeater  CommandID = 21
	CommandTurnOffBlockHeater CommandID = 22

	// 外部（定时）通道
	CommandTurnOnExtChannel  CommandID = 33
	CommandTurnOffExtChannel CommandID = 34

	// 服务模式
	CommandEnableServiceMode  CommandID = 40
	CommandDisableServiceMode CommandID = 41

	// 状态输出
	CommandEnableStatusOutput  CommandID = 48
	CommandDisableStatusOutput CommandID = 49

	// 杂项指令
	CommandTriggerHorn  CommandID = 23
	CommandTriggerLight CommandID = 24
	CommandTriggerTrunk CommandID = 35
	CommandCheck        CommandID = 255

	// 故障码管理
	CommandEraseDTC CommandID = 57856
	CommandReadDTC  CommandID = 57857

	// 附加指令
	CommandAdditional1 CommandID = 100
	CommandAdditional2 CommandID = 128

	// 连接开关
	CommandEnableConnection  CommandID = 240
	CommandDisableConnection CommandID = 15

	// NAV12 专用指令
	CommandNav12DisableServiceMode  CommandID = 57374
	CommandNav12EnableServiceMode   CommandID = 57375
	CommandNav12TurnOffBlockHeater  CommandID = 57353
	CommandNav12TurnOnBlockHeater   CommandID = 57354
	CommandNav12ResetErrors         CommandID = 57408
	CommandNav12EnableStatusOutput  CommandID = 57372
	CommandNav12DisableStatusOutput CommandID = 57371

	// Benish OBD 指令
	CommandBenishDisableServiceMode   CommandID = 57632
	CommandBenishEnableServiceMode    CommandID = 57633
	CommandBenishDisableEngineBlock   CommandID = 57346
	CommandBenishEnableEngineBlocking CommandID = 57347

	// 空调指令
	CommandClimateSetTemperature      CommandID = 58624
	CommandClimateSeatHeatTurnOn      CommandID = 58625
	CommandClimateSeatHeatTurnOff     CommandID = 58626
	CommandClimateSeatVentTurnOn      CommandID = 58627
	CommandClimateSeatVentTurnOff     CommandID = 58628
	CommandClimateGlassHeatTurnOn     CommandID = 58629
	CommandClimateGlassHeatTurnOff    CommandID = 58630
	CommandClimateSteeringHeatTurnOn  CommandID = 58631
	CommandClimateSteeringHeatTurnOff CommandID = 58632
	CommandClimateACTurnOn            CommandID = 58633
	CommandClimateACTurnOff           CommandID = 58634
	CommandClimateSysTurnOn           CommandID = 58635
	CommandClimateSysTurnOff          CommandID = 58636
	CommandClimateDefrosterTurnOn     CommandID = 58637
	CommandClimateDefrosterTurnOff    CommandID = 58638
	CommandClimateModeComfort         CommandID = 58639
	CommandClimateModeVent            CommandID = 58640
	CommandClimateBatteryHeatTurnOn   CommandID = 58647
	CommandClimateBatteryHeatTurnOff  CommandID = 58648

	// 系统能耗控制
	CommandEnableStealthMode CommandID = 50
)

// CommandParamClimateTemp 是 CommandClimateSetTemperature 的参数键
const CommandParamClimateTemp = "climate_temp"

// BitStatus 解码 bit_state_1 状态参数
type BitStatus int64

const (
	BitLocked                BitStatus = 1 << 0
	BitAlarm                 BitStatus = 1 << 1
	BitEngineRunning         BitStatus = 1 << 2
	BitIgnition              BitStatus = 1 << 3
	BitAutostartActive       BitStatus = 1 << 4
	BitHandsFreeLocking      BitStatus = 1 << 5
	BitHandsFreeUnlocking    BitStatus = 1 << 6
	BitGSMActive             BitStatus = 1 << 7
	BitGPSActive             BitStatus = 1 << 8
	BitTrackingEnabled       BitStatus = 1 << 9
	BitEngineLocked          BitStatus = 1 << 10
	BitExtSensorAlertZone    BitStatus = 1 << 11
	BitExtSensorMainZone     BitStatus = 1 << 12
	BitSensorAlertZone       BitStatus = 1 << 13
	BitSensorMainZone        BitStatus = 1 << 14
	BitAutostartEnabled      BitStatus = 1 << 15
	BitIncomingSMSEnabled    BitStatus = 1 << 16
	BitIncomingCallsEnabled  BitStatus = 1 << 17
	BitExteriorLightsActive  BitStatus = 1 << 18
	BitSirenWarningsEnabled  BitStatus = 1 << 19
	BitSirenSoundEnabled     BitStatus = 1 << 20
	BitDoorDriverOpen        BitStatus = 1 << 21
	BitDoorPassengerOpen     BitStatus = 1 << 22
	BitDoorBackLeftOpen      BitStatus = 1 << 23
	BitDoorBackRightOpen     BitStatus = 1 << 24
	BitTrunkOpen             BitStatus = 1 << 25
	BitHoodOpen              BitStatus = 1 << 26
	BitHandbrakeEngaged      BitStatus = 1 << 27
	BitBrakesEngaged         BitStatus = 1 << 28
	BitBlockHeaterActive     BitStatus = 1 << 29
	BitActiveSecurityEnabled BitStatus = 1 << 30
	BitBlockHeaterEnabled    BitStatus = 1 << 31
	BitEvacuationModeActive  BitStatus = 1 << 33
	BitServiceModeActive     BitStatus = 1 << 34
	BitStayHomeActive        BitStatus = 1 << 35
	BitSecurityTagsIgnored   BitStatus = 1 << 60
	BitSecurityTagsEnforced  BitStatus = 1 << 61
)

// Has 判断 flag 的全部位是否置位
func (b BitStatus) Has(flag BitStatus) bool {
	return b&flag == flag
}

// PrimaryEventID 解码追踪事件的 eventid1 字段
type PrimaryEventID int64

const (
	EventUnknown                  PrimaryEventID = 0
	EventLockingEnabled           PrimaryEventID = 1
	EventLockingDisabled          PrimaryEventID = 2
	EventAlert                    PrimaryEventID = 3
	EventEngineStarted            PrimaryEventID = 4
	EventEngineStopped            PrimaryEventID = 5
	EventEngineLocked             PrimaryEventID = 6
	EventServiceModeEnabled       PrimaryEventID = 7
	EventSettingsChanged          PrimaryEventID = 8
	EventRefuel                   PrimaryEventID = 9
	EventCollision                PrimaryEventID = 10
	EventGSMConnection            PrimaryEventID = 11
	EventEmergencyCall            PrimaryEventID = 12
	EventFailedStartAttempt       PrimaryEventID = 13
	EventTrackingEnabled          PrimaryEventID = 14
	EventTrackingDisabled         PrimaryEventID = 15
	EventSystemPowerLoss          PrimaryEventID = 16
	EventSecureTrunkOpen          PrimaryEventID = 17
	EventFactoryTesting           PrimaryEventID = 18
	EventPowerDip                 PrimaryEventID = 19
	EventCheckReceived            PrimaryEventID = 20
	EventSystemLogin              PrimaryEventID = 29
	EventActiveSecurityEnabled    PrimaryEventID = 32
	EventActiveSecurityDisabled   PrimaryEventID = 33
	EventActiveSecurityAlert      PrimaryEventID = 34
	EventBlockHeaterEnabled       PrimaryEventID = 35
	EventBlockHeaterDisabled      PrimaryEventID = 36
	EventRoughRoadConditions      PrimaryEventID = 37
	EventDriving                  PrimaryEventID = 38
	EventEngineRunningProlonged   PrimaryEventID = 40
	EventServiceModeDisabled      PrimaryEventID = 41
	EventGSMChannelEnabled        PrimaryEventID = 42
	EventGSMChannelDisabled       PrimaryEventID = 43
	EventNav11Status              PrimaryEventID = 48
	EventDTCReadRequest           PrimaryEventID = 166
	EventDTCReadError             PrimaryEventID = 167
	EventDTCReadActive            PrimaryEventID = 168
	EventDTCEraseRequest          PrimaryEventID = 169
	EventDTCEraseActive           PrimaryEventID = 170
	EventSystemMessage            PrimaryEventID = 176
	EventEcoModeEnabled           PrimaryEventID = 177
	EventEcoModeDisabled          PrimaryEventID = 178
	EventTirePressureLow          PrimaryEventID = 179
	EventBluetoothStatus          PrimaryEventID = 220
	EventTagRequirementEnabled    PrimaryEventID = 230
	EventTagRequirementDisabled   PrimaryEventID = 231
	EventTagPollingEnabled        PrimaryEventID = 232
	EventTagPollingDisabled       PrimaryEventID = 233
	EventPoint                    PrimaryEventID = 250
)

var primaryEventNames = map[PrimaryEventID]string{
	EventLockingEnabled: "locking_enabled", EventLockingDisabled: "locking_disabled",
	EventAlert: "alert", EventEngineStarted: "engine_started",
	EventEngineStopped: "engine_stopped", EventEngineLocked: "engine_locked",
	EventServiceModeEnabled: "service_mode_enabled", EventSettingsChanged: "settings_changed",
	EventRefuel: "refuel", EventCollision: "collision",
	EventGSMConnection: "gsm_connection", EventEmergencyCall: "emergency_call",
	EventFailedStartAttempt: "failed_start_attempt", EventTrackingEnabled: "tracking_enabled",
	EventTrackingDisabled: "tracking_disabled", EventSystemPowerLoss: "system_power_loss",
	EventSecureTrunkOpen: "secure_trunk_open", EventFactoryTesting: "factory_testing",
	EventPowerDip: "power_dip", EventCheckReceived: "check_received",
	EventSystemLogin: "system_login", EventActiveSecurityEnabled: "active_security_enabled",
	EventActiveSecurityDisabled: "active_security_disabled",
	EventActiveSecurityAlert:    "active_security_alert",
	EventBlockHeaterEnabled:     "block_heater_enabled",
	EventBlockHeaterDisabled:    "block_heater_disabled",
	EventRoughRoadConditions:    "rough_road_conditions", EventDriving: "driving",
	EventEngineRunningProlonged: "engine_running_prolonged",
	EventServiceModeDisabled:    "service_mode_disabled",
	EventGSMChannelEnabled:      "gsm_channel_enabled",
	EventGSMChannelDisabled:     "gsm_channel_disabled", EventNav11Status: "nav11_status",
	EventDTCReadRequest: "dtc_read_request", EventDTCReadError: "dtc_read_error",
	EventDTCReadActive: "dtc_read_active", EventDTCEraseRequest: "dtc_erase_request",
	EventDTCEraseActive: "dtc_erase_active", EventSystemMessage: "system_message",
	EventEcoModeEnabled: "eco_mode_enabled", EventEcoModeDisabled: "eco_mode_disabled",
	EventTirePressureLow: "tire_pressure_low", EventBluetoothStatus: "bluetooth_status",
	EventTagRequirementEnabled:  "tag_requirement_enabled",
	EventTagRequirementDisabled: "tag_requirement_disabled",
	EventTagPollingEnabled:      "tag_polling_enabled",
	EventTagPollingDisabled:     "tag_polling_disabled", EventPoint: "point",
}

// PrimaryEvent 将 eventid1 映射到已知事件集，未知标识回落为
// EventUnknown
func PrimaryEvent(id int64) PrimaryEventID {
	e := PrimaryEventID(id)
	if _, ok := primaryEventNames[e]; ok {
		return e
	}
	return EventUnknown
}

func (e PrimaryEventID) String() string {
	if name, ok := primaryEventNames[e]; ok {
		return name
	}
	return "unknown"
}

// AlertType 解码警报事件的子类型
type AlertType int64

const (
	AlertBattery               AlertType = 1
	AlertExtSensorWarningZone  AlertType = 2
	AlertExtSensorMainZone     AlertType = 3
	AlertCrackSensorWarnZone   AlertType = 4
	AlertCrackSensorMainZone   AlertType = 5
	AlertBrakePedalPressed     AlertType = 6
	AlertHandbrakeEngaged      AlertType = 7
	AlertInclineDetected       AlertType = 8
	AlertMovementDetected      AlertType = 9
	AlertEngineIgnition        AlertType = 10
)

// FuelConsumptionType 解码油箱的 ras_t 字段
type FuelConsumptionType int64

const (
	ConsumptionLitersPer100Km FuelConsumptionType = 1
	ConsumptionLitersPerHour  FuelConsumptionType = 2
)

// Features 设备属性字典 features 下声明的能力位掩码
type Features uint64

const (
	FeatureActiveSecurity Features = 1 << iota
	FeatureAutoCheck
	FeatureAutostart
	FeatureBeep
	FeatureBenish
	FeatureBluetooth
	FeatureCamper
	FeatureChannel
	FeatureConnection
	FeatureCustomPhones
	FeatureEvents
	FeatureExtendProps
	FeatureHeater
	FeatureHeaterFrom40
	FeatureKeepAlive
	FeatureLight
	FeatureMoto
	FeatureNav
	FeatureNav11
	FeatureNav12
	FeatureNav12EGTS
	FeatureNoAutorun
	FeatureNoFuel
	FeatureNoHeat
	FeatureNoNotification
	FeatureNoSensors
	FeatureNoSettings
	FeatureNoTrack
	FeatureNoAppSettings
	FeatureNotification
	FeatureOBDCodes
	FeatureSaveModeTime
	FeatureSchedule
	FeatureSensors
	FeatureStealthMode
	FeatureSubscription
	FeatureTrack
	FeatureTracking
	FeatureTrunk
	FeatureValue100
	FeatureWatchLikeTag
)

var featureKeys = map[string]Features{
	"active_security": FeatureActiveSecurity,
	"auto_check":      FeatureAutoCheck,
	"autostart":       FeatureAutostart,
	"beep":            FeatureBeep,
	"benish":          FeatureBenish,
	"bluetooth":       FeatureBluetooth,
	"camper":          FeatureCamper,
	"channel":         FeatureChannel,
	"connection":      FeatureConnection,
	"custom_phones":   FeatureCustomPhones,
	"events":          FeatureEvents,
	"extend_props":    FeatureExtendProps,
	"heater":          FeatureHeater,
	"heater_from_40":  FeatureHeaterFrom40,
	"keep_alive":      FeatureKeepAlive,
	"light":           FeatureLight,
	"moto":            FeatureMoto,
	"nav":             FeatureNav,
	"nav11":           FeatureNav11,
	"nav12":           FeatureNav12,
	"nav12egts":       FeatureNav12EGTS,
	"no_autorun":      FeatureNoAutorun,
	"no_fuel":         FeatureNoFuel,
	"no_heat":         FeatureNoHeat,
	"no_notification": FeatureNoNotification,
	"no_sensors":      FeatureNoSensors,
	"no_settings":     FeatureNoSettings,
	"no_track":        FeatureNoTrack,
	"noappsett":       FeatureNoAppSettings,
	"notification":    FeatureNotification,
	"obd_codes":       FeatureOBDCodes,
	"save_mode_time":  FeatureSaveModeTime,
	"schedule":        FeatureSchedule,
	"sensors":         FeatureSensors,
	"stealth_mode":    FeatureStealthMode,
	"subscription":    FeatureSubscription,
	"track":           FeatureTrack,
	"tracking":        FeatureTracking,
	"trunk":           FeatureTrunk,
	"value_100":       FeatureValue100,
	"watch_like_tag":  FeatureWatchLikeTag,
}

// FeaturesFromDict 由原始 features 字典构建位掩码，正值视为启用
func FeaturesFromDict(features map[string]any) Features {
	var result Features
	for key, flag := range featureKeys {
		if v, ok := features[key]; ok {
			if n, ok := toFloat64(v); ok && n > 0 {
				result |= flag
			}
		}
	}
	return result
}

// Has 判断 flag 的全部位是否置位
func (f Features) Has(flag Features) bool {
	return f&flag == flag
}
