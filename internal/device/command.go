package device

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/looplab/fsm"
)

// 指令槽状态常量
const (
	slotIdle    = "idle"
	slotPending = "pending"
)

// 事件常量
const (
	eventBegin   = "begin"
	eventResolve = "resolve"
)

var (
	// ErrDeviceBusy 设备已有在途指令
	ErrDeviceBusy = errors.New("device is busy executing command")

	// ErrCommandTimeout 等待指令确认超时
	ErrCommandTimeout = errors.New("command confirmation timed out")

	// ErrNoPendingCommand 没有可释放的在途指令
	ErrNoPendingCommand = errors.New("no pending command to release")
)

// commandSlot 单槽位指令状态机：同一时刻最多一条在途指令，
// 结果经一次性带缓冲通道送达等待方
type commandSlot struct {
	mu   sync.Mutex
	fsm  *fsm.FSM
	done chan error
}

func newCommandSlot() *commandSlot {
	return &commandSlot{
		fsm: fsm.NewFSM(
			slotIdle,
			fsm.Events{
				{Name: eventBegin, Src: []string{slotIdle}, Dst: slotPending},
				{Name: eventResolve, Src: []string{slotPending}, Dst: slotIdle},
			},
			nil,
		),
	}
}

// Busy 判断是否有在途指令
func (c *commandSlot) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fsm.Current() == slotPending
}

// Begin 占用槽位，已占用时返回 ErrDeviceBusy
func (c *commandSlot) Begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.fsm.Event(context.Background(), eventBegin); err != nil {
		return ErrDeviceBusy
	}
	c.done = make(chan error, 1)
	return nil
}

// Resolve 结算在途指令并释放槽位，空闲时返回 false
func (c *commandSlot) Resolve(err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fsm.Current() != slotPending {
		return false
	}
	c.done <- err
	c.done = nil
	_ = c.fsm.Event(context.Background(), eventResolve)
	return true
}

// abandon 放弃在途指令并释放槽位，不向等待方送达结果
func (c *commandSlot) abandon() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fsm.Current() != slotPending {
		return
	}
	c.done = nil
	_ = c.fsm.Event(context.Background(), eventResolve)
}

// Wait 阻塞等待结算，超时返回 ErrCommandTimeout
func (c *commandSlot) Wait(ctx context.Context, timeout time.Duration) error {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done == nil {
		return ErrNoPendingCommand
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return ErrCommandTimeout
	case <-ctx.Done():
		return ctx.Err()
	}
}
