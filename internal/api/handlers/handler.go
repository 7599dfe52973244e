package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/langchou/fordpass/internal/api/fordpass"
	"github.com/langchou/fordpass/internal/service"
)

// Vehicle 处理器依赖的车辆服务，由 *service.VehicleService 实现
type Vehicle interface {
	VIN() string
	Status(ctx context.Context) (json.RawMessage, error)
	Start(ctx context.Context) (*service.CommandResult, error)
	Stop(ctx context.Context) (*service.CommandResult, error)
	Lock(ctx context.Context) (*service.CommandResult, error)
	Unlock(ctx context.Context) (*service.CommandResult, error)
	EnableGuard(ctx context.Context) (*fordpass.RawResponse, error)
	DisableGuard(ctx context.Context) (*fordpass.RawResponse, error)
	GuardStatus(ctx context.Context) (json.RawMessage, error)
	RequestUpdate(ctx context.Context, vin string) (int, error)
	Authenticate(ctx context.Context) error
	ClearToken(ctx context.Context) error
}

// Handler HTTP 处理器
type Handler struct {
	logger  *zap.Logger
	vehicle Vehicle
}

// NewHandler 创建处理器
func NewHandler(logger *zap.Logger, vehicle Vehicle) *Handler {
	return &Handler{
		logger:  logger,
		vehicle: vehicle,
	}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		// 车辆
		api.GET("/vehicle/status", h.GetStatus)
		api.POST("/vehicle/refresh", h.RequestUpdate)

		// 远程命令，等待车辆执行完成
		api.POST("/vehicle/start", h.StartEngine)
		api.POST("/vehicle/stop", h.StopEngine)
		api.POST("/vehicle/lock", h.LockDoors)
		api.POST("/vehicle/unlock", h.UnlockDoors)

		// 守护模式
		api.GET("/vehicle/guard", h.GetGuardStatus)
		api.POST("/vehicle/guard", h.EnableGuard)
		api.DELETE("/vehicle/guard", h.DisableGuard)

		// 令牌
		api.POST("/token", h.Authenticate)
		api.DELETE("/token", h.ClearToken)
	}

	// 健康检查
	r.GET("/health", h.HealthCheck)
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"vin":    h.vehicle.VIN(),
	})
}

// respondError 将会话错误映射为 HTTP 响应
func (h *Handler) respondError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	c.JSON(errorStatus(err), gin.H{
		"error":           msg,
		"detail":          err.Error(),
		"upstream_status": fordpass.StatusCode(err),
	})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, fordpass.ErrPollLimit):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	default:
		return http.StatusBadGateway
	}
}

// nginx 约定的客户端断开状态码
const statusClientClosedRequest = 499
