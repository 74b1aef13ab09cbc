package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/pangazer/internal/device"
	"github.com/langchou/pangazer/internal/telemetry"
)

// deviceSummary 设备列表条目
type deviceSummary struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Model    string `json:"model"`
	Type     string `json:"type"`
	CarType  string `json:"car_type,omitempty"`
	Firmware string `json:"firmware,omitempty"`
	IsOnline bool   `json:"is_online"`
}

// ListDevices 获取设备列表
func (h *Handler) ListDevices(c *gin.Context) {
	devices := h.monitor.Account().Devices()
	out := make([]deviceSummary, 0, len(devices))
	for _, dev := range devices {
		out = append(out, deviceSummary{
			ID:       dev.ID(),
			Name:     dev.Name(),
			Model:    dev.Model(),
			Type:     dev.Type(),
			CarType:  dev.CarType(),
			Firmware: dev.FirmwareVersion(),
			IsOnline: dev.IsOnline(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": out})
}

func (h *Handler) lookupDevice(c *gin.Context) (*device.Device, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid device id"})
		return nil, false
	}
	dev, ok := h.monitor.Account().Device(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return nil, false
	}
	return dev, true
}

// GetDevice 获取设备属性
func (h *Handler) GetDevice(c *gin.Context) {
	dev, ok := h.lookupDevice(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": dev.Attributes()})
}

// GetDeviceState 获取设备实时状态
func (h *Handler) GetDeviceState(c *gin.Context) {
	dev, ok := h.lookupDevice(c)
	if !ok {
		return
	}
	state := dev.State()
	if state == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "device state not available yet"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": state})
}

// SendCommand 下发远程指令
func (h *Handler) SendCommand(c *gin.Context) {
	dev, ok := h.lookupDevice(c)
	if !ok {
		return
	}

	var req struct {
		Command int64          `json:"command" binding:"required"`
		Params  map[string]any `json:"params"`
		Ensure  bool           `json:"ensure"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	err := dev.RemoteCommand(c.Request.Context(),
		telemetry.CommandID(req.Command), req.Params, req.Ensure)
	if err != nil {
		h.logger.Error("command dispatch failed",
			zap.Int64("device_id", dev.ID()),
			zap.Int64("command", req.Command), zap.Error(err))
		status := http.StatusBadGateway
		if errors.Is(err, device.ErrDeviceBusy) || errors.Is(err, device.ErrStateUnavailable) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   "command sent",
		"device_id": dev.ID(),
		"command":   req.Command,
	})
}

// WakeUpDevice 唤醒设备
func (h *Handler) WakeUpDevice(c *gin.Context) {
	dev, ok := h.lookupDevice(c)
	if !ok {
		return
	}
	if err := dev.WakeUp(c.Request.Context()); err != nil {
		h.logger.Error("wakeup failed", zap.Int64("device_id", dev.ID()), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "wakeup sent", "device_id": dev.ID()})
}

// ListEvents 拉取事件流
func (h *Handler) ListEvents(c *gin.Context) {
	from, _ := strconv.ParseInt(c.DefaultQuery("from", "0"), 10, 64)
	to, _ := strconv.ParseInt(c.DefaultQuery("to", "0"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	deviceID, _ := strconv.ParseInt(c.DefaultQuery("device_id", "0"), 10, 64)

	events, err := h.monitor.Account().FetchEvents(c.Request.Context(), from, to, limit, deviceID)
	if err != nil {
		h.logger.Error("could not fetch events", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": events})
}
