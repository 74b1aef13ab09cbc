package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/pangazer/internal/account"
	"github.com/langchou/pangazer/internal/config"
	"github.com/langchou/pangazer/internal/device"
	"github.com/langchou/pangazer/internal/telemetry"
	"github.com/langchou/pangazer/pkg/ws"
)

// Update 一次状态变化的订阅载荷
type Update struct {
	DeviceID int64                   `json:"device_id"`
	State    *telemetry.CurrentState `json:"state"`
	Applied  telemetry.Values        `json:"applied"`
}

// CommandResult 指令回执的订阅载荷
type CommandResult struct {
	DeviceID int64 `json:"device_id"`
	Command  int64 `json:"command"`
	Result   int64 `json:"result"`
	Reply    any   `json:"reply,omitempty"`
}

// Monitor 监控服务：HTTP 增量轮询与 WebSocket 推送双链路拉取更新，
// 变化扇出给订阅者与本地广播 Hub
type Monitor struct {
	cfg     *config.Config
	logger  *zap.Logger
	account *account.Account
	wsHub   *ws.Hub // 可为 nil

	mu          sync.RWMutex
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	subscribers []chan *Update
	running     bool
}

// NewMonitor 创建监控服务
func NewMonitor(cfg *config.Config, logger *zap.Logger, acc *account.Account, wsHub *ws.Hub) *Monitor {
	return &Monitor{
		cfg:     cfg,
		logger:  logger,
		account: acc,
		wsHub:   wsHub,
	}
}

// Account 底层账号
func (m *Monitor) Account() *account.Account { return m.account }

// Start 启动服务
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.logger.Info("monitor already running, skipping start")
		return nil
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.running = true
	m.mu.Unlock()

	m.logger.Info("starting monitor")

	// 同步设备列表
	if err := m.account.RefreshDevices(ctx); err != nil {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		return fmt.Errorf("refresh devices: %w", err)
	}

	// 启动轮询
	m.wg.Add(1)
	go m.pollLoop(ctx)

	// 启动推送监听（双链路架构）
	m.wg.Add(1)
	go m.listenLoop(ctx)

	m.logger.Info("monitor started")
	return nil
}

// Stop 停止服务
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	m.logger.Info("stopping monitor")
	cancel()
	m.wg.Wait()

	m.mu.Lock()
	for _, ch := range m.subscribers {
		close(ch)
	}
	m.subscribers = nil
	m.mu.Unlock()
	m.logger.Info("monitor stopped")
}

// Subscribe 订阅状态更新
func (m *Monitor) Subscribe() <-chan *Update {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan *Update, 10)
	m.subscribers = append(m.subscribers, ch)
	return ch
}

// publish 扇出一次状态变化，慢消费者丢弃
func (m *Monitor) publish(update *Update) {
	m.mu.RLock()
	for _, ch := range m.subscribers {
		select {
		case ch <- update:
		default:
		}
	}
	m.mu.RUnlock()

	if m.wsHub != nil {
		m.wsHub.BroadcastStateUpdate(update)
	}
}

// pollLoop 周期性拉取增量更新，失败时指数退避
func (m *Monitor) pollLoop(ctx context.Context) {
	defer m.wg.Done()

	interval := m.cfg.PollInterval
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		applied, events, err := m.account.RequestUpdates(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			interval *= 2
			if interval > m.cfg.PollBackoffMax {
				interval = m.cfg.PollBackoffMax
			}
			m.logger.Error("update poll failed",
				zap.Duration("retry_in", interval), zap.Error(err))
			timer.Reset(interval)
			continue
		}
		interval = m.cfg.PollInterval

		for id, vals := range applied {
			if len(vals) == 0 {
				continue
			}
			if dev, ok := m.account.Device(id); ok {
				m.publish(&Update{DeviceID: id, State: dev.State(), Applied: vals})
			}
		}
		for _, event := range events {
			if m.wsHub != nil {
				m.wsHub.BroadcastEvent(event)
			}
		}
		timer.Reset(interval)
	}
}

// listenLoop 消费云端推送通道直到 ctx 取消
func (m *Monitor) listenLoop(ctx context.Context) {
	defer m.wg.Done()

	err := m.account.Listen(ctx, account.Callbacks{
		OnState: func(dev *device.Device, state *telemetry.CurrentState, applied telemetry.Values) {
			if len(applied) == 0 {
				return
			}
			m.publish(&Update{DeviceID: dev.ID(), State: state, Applied: applied})
		},
		OnPoint: func(dev *device.Device, point *telemetry.TrackingPoint, state *telemetry.CurrentState, applied telemetry.Values) {
			if m.wsHub != nil {
				m.wsHub.BroadcastPoint(point)
			}
			if state != nil && len(applied) > 0 {
				m.publish(&Update{DeviceID: dev.ID(), State: state, Applied: applied})
			}
		},
		OnEvent: func(dev *device.Device, event *telemetry.TrackingEvent) {
			if m.wsHub != nil {
				m.wsHub.BroadcastEvent(event)
			}
		},
		OnCommand: func(dev *device.Device, command, result int64, reply any) {
			if m.wsHub != nil {
				m.wsHub.BroadcastCommandResult(&CommandResult{
					DeviceID: dev.ID(),
					Command:  command,
					Result:   result,
					Reply:    reply,
				})
			}
		},
	})
	if err != nil && ctx.Err() == nil {
		m.logger.Error("updates listener exited", zap.Error(err))
	}
}
