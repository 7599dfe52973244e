package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/langchou/fordpass/internal/api/fordpass"
)

const statusCacheKey = "status_%s"

// VehicleClient 车辆会话需要提供的操作，由 *fordpass.Session 实现
type VehicleClient interface {
	VIN() string
	Status(ctx context.Context) (json.RawMessage, error)
	Start(ctx context.Context) (bool, error)
	Stop(ctx context.Context) (bool, error)
	Lock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) (bool, error)
	EnableGuard(ctx context.Context) (*fordpass.RawResponse, error)
	DisableGuard(ctx context.Context) (*fordpass.RawResponse, error)
	GuardStatus(ctx context.Context) (json.RawMessage, error)
	RequestUpdate(ctx context.Context, vin string) (int, error)
	Authenticate(ctx context.Context) error
	ClearToken(ctx context.Context) error
}

// CommandResult 命令执行结果
type CommandResult struct {
	Command    string `json:"command"`
	Success    bool   `json:"success"`
	DurationMS int64  `json:"duration_ms"`
}

// VehicleService 车辆服务
// 同一刷新周期内的多个调用方共享一份状态快照
type VehicleService struct {
	logger *zap.Logger
	client VehicleClient
	cache  *gocache.Cache // nil 表示不共享快照
	ttl    time.Duration

	mu sync.Mutex // 合并并发的快照请求
}

// NewVehicleService 创建车辆服务，ttl 为 0 时每次都请求服务器
func NewVehicleService(logger *zap.Logger, client VehicleClient, ttl time.Duration) *VehicleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &VehicleService{
		logger: logger,
		client: client,
		ttl:    ttl,
	}
	if ttl > 0 {
		svc.cache = gocache.New(ttl, 2*ttl)
	}
	return svc
}

// VIN 车辆识别码
func (s *VehicleService) VIN() string {
	return s.client.VIN()
}

// Status 获取车辆状态快照
func (s *VehicleService) Status(ctx context.Context) (json.RawMessage, error) {
	if s.cache == nil {
		return s.client.Status(ctx)
	}

	key := fmt.Sprintf(statusCacheKey, s.client.VIN())
	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, found := s.cache.Get(key); found {
		return cached.(json.RawMessage), nil
	}

	status, err := s.client.Status(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set(key, status, gocache.DefaultExpiration)
	return status, nil
}

// Invalidate 丢弃当前快照
func (s *VehicleService) Invalidate() {
	if s.cache == nil {
		return
	}
	s.cache.Delete(fmt.Sprintf(statusCacheKey, s.client.VIN()))
}

// Start 远程启动
func (s *VehicleService) Start(ctx context.Context) (*CommandResult, error) {
	return s.runCommand(ctx, fordpass.CommandEngineStart, s.client.Start)
}

// Stop 远程熄火
func (s *VehicleService) Stop(ctx context.Context) (*CommandResult, error) {
	return s.runCommand(ctx, fordpass.CommandEngineStop, s.client.Stop)
}

// Lock 锁车
func (s *VehicleService) Lock(ctx context.Context) (*CommandResult, error) {
	return s.runCommand(ctx, fordpass.CommandDoorLock, s.client.Lock)
}

// Unlock 解锁
func (s *VehicleService) Unlock(ctx context.Context) (*CommandResult, error) {
	return s.runCommand(ctx, fordpass.CommandDoorUnlock, s.client.Unlock)
}

// runCommand 执行命令，成功后快照失效
func (s *VehicleService) runCommand(ctx context.Context, name string, fn func(context.Context) (bool, error)) (*CommandResult, error) {
	started := time.Now()
	ok, err := fn(ctx)
	if err != nil {
		s.logger.Error("Command request failed", zap.String("command", name), zap.Error(err))
		return nil, err
	}

	elapsed := time.Since(started)
	result := &CommandResult{Command: name, Success: ok, DurationMS: elapsed.Milliseconds()}
	if ok {
		s.Invalidate()
		s.logger.Info("Command completed", zap.String("command", name), zap.Duration("duration", elapsed))
	} else {
		s.logger.Warn("Command did not succeed", zap.String("command", name))
	}
	return result, nil
}

// EnableGuard 开启守护模式
func (s *VehicleService) EnableGuard(ctx context.Context) (*fordpass.RawResponse, error) {
	resp, err := s.client.EnableGuard(ctx)
	if err == nil {
		s.Invalidate()
	}
	return resp, err
}

// DisableGuard 关闭守护模式
func (s *VehicleService) DisableGuard(ctx context.Context) (*fordpass.RawResponse, error) {
	resp, err := s.client.DisableGuard(ctx)
	if err == nil {
		s.Invalidate()
	}
	return resp, err
}

// GuardStatus 守护模式状态
func (s *VehicleService) GuardStatus(ctx context.Context) (json.RawMessage, error) {
	return s.client.GuardStatus(ctx)
}

// RequestUpdate 请求车辆上报最新数据
func (s *VehicleService) RequestUpdate(ctx context.Context, vin string) (int, error) {
	code, err := s.client.RequestUpdate(ctx, vin)
	if err != nil {
		return 0, err
	}
	s.Invalidate()
	return code, nil
}

// Authenticate 强制重新登录
func (s *VehicleService) Authenticate(ctx context.Context) error {
	if err := s.client.Authenticate(ctx); err != nil {
		s.logger.Error("Authentication failed", zap.Error(err))
		return err
	}
	s.logger.Info("Authenticated")
	return nil
}

// ClearToken 清除持久化令牌
func (s *VehicleService) ClearToken(ctx context.Context) error {
	return s.client.ClearToken(ctx)
}
