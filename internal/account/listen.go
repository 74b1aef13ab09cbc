package account

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/pangazer/internal/api/pandora"
	"github.com/langchou/pangazer/internal/device"
	"github.com/langchou/pangazer/internal/telemetry"
)

// Callbacks 推送更新的订阅回调，任意字段可为 nil
type Callbacks struct {
	// OnState 状态合并完成后调用，applied 为实际落盘的属性子集
	OnState func(dev *device.Device, state *telemetry.CurrentState, applied telemetry.Values)
	// OnCommand 收到指令回执后调用
	OnCommand func(dev *device.Device, command, result int64, reply any)
	// OnEvent 收到追踪事件后调用
	OnEvent func(dev *device.Device, event *telemetry.TrackingEvent)
	// OnPoint 收到追踪点后调用，state 与 applied 仅在点折算进状态时非空
	OnPoint func(dev *device.Device, point *telemetry.TrackingPoint, state *telemetry.CurrentState, applied telemetry.Values)
	// OnUpdateSettings 设备设置变更后调用
	OnUpdateSettings func(dev *device.Device, data map[string]any)
}

// Listen 持续消费更新 WebSocket 直到 ctx 取消。设备由离线转为在线时
// 重建连接以便立即取得完整的初始状态。
func (a *Account) Listen(ctx context.Context, cb Callbacks) error {
	listener := pandora.NewListener(a.lg, a.client, pandora.ListenerCallbacks{
		OnMessage: func(msg pandora.WSMessage) bool {
			return a.handleWSMessage(cb, msg)
		},
	})
	if a.wsReadTimeout != 0 {
		listener.SetReadTimeout(a.wsReadTimeout)
	}
	err := listener.Run(ctx)
	a.lg.Info("ws updates listener stopped")
	return err
}

// handleWSMessage 按消息类型分发处理，返回 false 要求重建连接
func (a *Account) handleWSMessage(cb Callbacks, msg pandora.WSMessage) bool {
	id, err := ParseDeviceID(msg.Data)
	if err != nil {
		a.lg.Warn("ws data with invalid device id",
			zap.String("type", string(msg.Type)), zap.Error(err))
		return true
	}
	dev, ok := a.Device(id)
	if !ok {
		a.lg.Warn("ws data for unregistered device",
			zap.String("type", string(msg.Type)), zap.Int64("device_id", id))
		return true
	}

	switch msg.Type {
	case telemetry.WSMessageInitialState:
		a.lg.Debug("initializing state from ws", zap.Int64("device_id", id))
		state, applied, err := a.processWSState(dev, msg.Data)
		if err != nil {
			a.lg.Warn("could not process initial state", zap.Error(err))
			return true
		}
		if cb.OnState != nil {
			cb.OnState(dev, state, applied)
		}

	case telemetry.WSMessageState:
		a.lg.Debug("updating state from ws", zap.Int64("device_id", id))
		prevOnline := dev.IsOnline()
		state, applied, err := a.processWSState(dev, msg.Data)
		if err != nil {
			a.lg.Warn("could not process state update", zap.Error(err))
			return true
		}
		if cb.OnState != nil {
			cb.OnState(dev, state, applied)
		}
		if a.reconnectOnDeviceOnline && !prevOnline && dev.IsOnline() {
			a.lg.Debug("restarting ws to fetch new state after device went online",
				zap.Int64("device_id", id))
			return false
		}

	case telemetry.WSMessagePoint:
		point, state, applied, err := a.processWSPoint(dev, msg.Data)
		if err != nil {
			a.lg.Warn("could not process tracking point", zap.Error(err))
			return true
		}
		if cb.OnPoint != nil {
			cb.OnPoint(dev, point, state, applied)
		}

	case telemetry.WSMessageCommand:
		command, result, reply := a.processWSCommand(dev, msg.Data)
		if cb.OnCommand != nil {
			cb.OnCommand(dev, command, result, reply)
		}

	case telemetry.WSMessageEvent:
		event, err := a.processEvent(dev, msg.Data)
		if err != nil {
			a.lg.Warn("could not process tracking event", zap.Error(err))
			return true
		}
		if cb.OnEvent != nil {
			cb.OnEvent(dev, event)
		}

	case telemetry.WSMessageUpdateSettings:
		data := a.processWSUpdateSettings(dev, msg.Data)
		if cb.OnUpdateSettings != nil {
			cb.OnUpdateSettings(dev, data)
		}

	default:
		a.lg.Warn("ws data of unknown type", zap.String("type", string(msg.Type)))
	}
	return true
}

// processWSState 合并 WebSocket 通道的状态载荷
func (a *Account) processWSState(dev *device.Device, data map[string]any) (*telemetry.CurrentState, telemetry.Values, error) {
	vals, err := telemetry.WSStateValues(a.lg, data, telemetry.Values{"identifier": dev.ID()})
	if err != nil {
		return nil, nil, err
	}
	return dev.ApplyUpdate(vals)
}

// processWSPoint 处理追踪点消息。点采样时刻不早于当前状态时间戳时，
// 先把载荷折算进状态再记录该点。
func (a *Account) processWSPoint(dev *device.Device, data map[string]any) (*telemetry.TrackingPoint, *telemetry.CurrentState, telemetry.Values, error) {
	ts, ok := telemetry.Values(data).Int64("dtime")
	if !ok || ts == 0 {
		ts = time.Now().Unix()
	}

	var state *telemetry.CurrentState
	var applied telemetry.Values
	if current := dev.State(); current != nil {
		stateTS := int64(-1)
		if current.StateTimestamp != nil {
			stateTS = *current.StateTimestamp
		}
		if stateTS <= ts {
			vals, err := telemetry.WSStateValues(a.lg, data, telemetry.Values{
				"identifier":      dev.ID(),
				"state_timestamp": ts,
			})
			if err != nil {
				return nil, nil, nil, err
			}
			if state, applied, err = dev.ApplyUpdate(vals); err != nil {
				return nil, nil, nil, err
			}
		}
	}

	point, err := telemetry.NewTrackingPoint(a.lg, data, telemetry.Values{
		"device_id": dev.ID(),
		"timestamp": ts,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	if err := dev.SetLastPoint(point); err != nil {
		return nil, nil, nil, err
	}
	return point, state, applied, nil
}

// processWSCommand 处理指令回执：结果无法解码时按失败处理，有在途
// 指令时据此结算指令槽
func (a *Account) processWSCommand(dev *device.Device, data map[string]any) (int64, int64, any) {
	vals := telemetry.Values(data)
	command, _ := vals.Int64("command")
	reply := data["reply"]

	result, ok := vals.Int64("result")
	if !ok {
		a.lg.Warn("could not decode command result, assuming an error",
			zap.Int64("command", command), zap.Any("result", data["result"]))
		result = 1
	}

	if dev.ControlBusy() {
		var resolution error
		if result != 0 {
			resolution = &pandora.StatusError{
				Status: fmt.Sprintf("command %d failed: reply=%v", command, reply),
			}
		}
		if err := dev.ReleaseControl(resolution); err != nil {
			a.lg.Debug("command already settled", zap.Int64("command", command))
		}
	}
	return command, result, reply
}

// processWSUpdateSettings 设置变更暂无本地处理，补上设备标识后转交回调
func (a *Account) processWSUpdateSettings(dev *device.Device, data map[string]any) map[string]any {
	out := make(map[string]any, len(data)+1)
	for k, v := range data {
		out[k] = v
	}
	out["device_id"] = dev.ID()
	return out
}
