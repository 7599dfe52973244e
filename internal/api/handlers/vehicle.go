package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/langchou/fordpass/internal/api/fordpass"
	"github.com/langchou/fordpass/internal/service"
)

// GetStatus 获取车辆状态
// GET /api/vehicle/status
func (h *Handler) GetStatus(c *gin.Context) {
	status, err := h.vehicle.Status(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to get vehicle status", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": status})
}

type refreshRequest struct {
	VIN string `json:"vin" binding:"omitempty,len=17,alphanum"`
}

// RequestUpdate 请求车辆上报最新数据
// POST /api/vehicle/refresh
// 请求体可选，vin 为空时使用当前车辆
func (h *Handler) RequestUpdate(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "detail": err.Error()})
		return
	}

	code, err := h.vehicle.RequestUpdate(c.Request.Context(), req.VIN)
	if err != nil {
		h.respondError(c, "Failed to request update", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"status": code}})
}

// StartEngine 远程启动
func (h *Handler) StartEngine(c *gin.Context) {
	h.runCommand(c, fordpass.CommandEngineStart, h.vehicle.Start)
}

// StopEngine 远程熄火
func (h *Handler) StopEngine(c *gin.Context) {
	h.runCommand(c, fordpass.CommandEngineStop, h.vehicle.Stop)
}

// LockDoors 锁车
func (h *Handler) LockDoors(c *gin.Context) {
	h.runCommand(c, fordpass.CommandDoorLock, h.vehicle.Lock)
}

// UnlockDoors 解锁
func (h *Handler) UnlockDoors(c *gin.Context) {
	h.runCommand(c, fordpass.CommandDoorUnlock, h.vehicle.Unlock)
}

// runCommand 执行命令并等待最终结果
// 命令被接受但未成功时返回 200 与 success=false
func (h *Handler) runCommand(c *gin.Context, name string, fn func(context.Context) (*service.CommandResult, error)) {
	result, err := fn(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to run "+name, err)
		return
	}

	h.logger.Info("Command finished via API", zap.String("command", name), zap.Bool("success", result.Success))
	c.JSON(http.StatusOK, gin.H{"data": result})
}

// GetGuardStatus 守护模式状态 (实验性)
func (h *Handler) GetGuardStatus(c *gin.Context) {
	status, err := h.vehicle.GuardStatus(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to get guard status", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": status})
}

// EnableGuard 开启守护模式
func (h *Handler) EnableGuard(c *gin.Context) {
	resp, err := h.vehicle.EnableGuard(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to enable guard mode", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rawResponse(resp)})
}

// DisableGuard 关闭守护模式
func (h *Handler) DisableGuard(c *gin.Context) {
	resp, err := h.vehicle.DisableGuard(c.Request.Context())
	if err != nil {
		h.respondError(c, "Failed to disable guard mode", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rawResponse(resp)})
}

// rawResponse 透传上游响应，非 JSON 响应体按字符串返回
func rawResponse(resp *fordpass.RawResponse) gin.H {
	out := gin.H{"status_code": resp.StatusCode}
	switch {
	case len(resp.Body) == 0:
		out["body"] = nil
	case gjson.ValidBytes(resp.Body):
		out["body"] = json.RawMessage(resp.Body)
	default:
		out["body"] = string(resp.Body)
	}
	return out
}

// Authenticate 强制重新登录
// POST /api/token
func (h *Handler) Authenticate(c *gin.Context) {
	if err := h.vehicle.Authenticate(c.Request.Context()); err != nil {
		h.respondError(c, "Failed to authenticate", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// ClearToken 删除持久化令牌
// DELETE /api/token
func (h *Handler) ClearToken(c *gin.Context) {
	if err := h.vehicle.ClearToken(c.Request.Context()); err != nil {
		h.logger.Error("Failed to clear token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear token", "detail": err.Error()})
		return
	}

	h.logger.Info("Token cleared via API")
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
