package fordpass

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/langchou/fordpass/internal/state"
)

// 命令仍在执行中的状态码
const statusCommandPending = 552

// 命令名称
const (
	CommandEngineStart = "engine_start"
	CommandEngineStop  = "engine_stop"
	CommandDoorLock    = "door_lock"
	CommandDoorUnlock  = "door_unlock"
)

func (s *Session) engineURL() string {
	return fmt.Sprintf("%s/vehicles/v2/%s/engine/start", s.endpoints.Base, s.creds.VIN)
}

func (s *Session) lockURL() string {
	return fmt.Sprintf("%s/vehicles/v2/%s/doors/lock", s.endpoints.Base, s.creds.VIN)
}

// Start 远程启动发动机
func (s *Session) Start(ctx context.Context) (bool, error) {
	return s.requestAndPoll(ctx, CommandEngineStart, MethodPut, s.engineURL())
}

// Stop 远程关闭发动机
func (s *Session) Stop(ctx context.Context) (bool, error) {
	return s.requestAndPoll(ctx, CommandEngineStop, MethodDelete, s.engineURL())
}

// Lock 锁车
func (s *Session) Lock(ctx context.Context) (bool, error) {
	return s.requestAndPoll(ctx, CommandDoorLock, MethodPut, s.lockURL())
}

// Unlock 解锁
func (s *Session) Unlock(ctx context.Context) (bool, error) {
	return s.requestAndPoll(ctx, CommandDoorUnlock, MethodDelete, s.lockURL())
}

// requestAndPoll 下发命令并轮询至终态
// 下发失败返回错误；命令执行失败返回 false
func (s *Session) requestAndPoll(ctx context.Context, name string, method Method, resource string) (bool, error) {
	cmd := state.NewCommand(name, s.onCommandTransition)

	resp, err := s.authorizedDo(ctx, method, resource, nil)
	if err != nil {
		_ = cmd.Fail()
		return false, fmt.Errorf("%s: %w", name, err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = cmd.Fail()
		return false, &StatusError{Op: name, StatusCode: resp.StatusCode, Body: truncateBody(resp.Body), Err: ErrRequest}
	}

	commandID := gjson.GetBytes(resp.Body, "commandId").String()
	if commandID == "" {
		_ = cmd.Fail()
		return false, fmt.Errorf("%s: %w: response has no commandId", name, ErrRequest)
	}
	if err := cmd.Accept(commandID); err != nil {
		return false, err
	}

	return s.pollCommand(ctx, cmd, resource+"/"+commandID)
}

// pollCommand 以固定间隔轮询命令状态直到成功或失败
func (s *Session) pollCommand(ctx context.Context, cmd *state.Command, pollURL string) (bool, error) {
	pending := rate.Sometimes{First: 1, Interval: 30 * time.Second}

	for !cmd.Done() {
		resp, err := s.authorizedDo(ctx, MethodGet, pollURL, nil)
		if err != nil {
			_ = cmd.Fail()
			return false, fmt.Errorf("%s: poll: %w", cmd.Name(), err)
		}
		polls := cmd.RecordPoll()

		switch code := gjson.GetBytes(resp.Body, "status").Int(); code {
		case statusCommandPending:
			if s.maxPolls > 0 && polls >= s.maxPolls {
				_ = cmd.Fail()
				return false, fmt.Errorf("%s: %w after %d polls", cmd.Name(), ErrPollLimit, polls)
			}
			pending.Do(func() {
				s.logger.Debug("Command is pending",
					zap.String("command", cmd.Name()),
					zap.String("command_id", cmd.ID()),
					zap.Int("polls", polls))
			})
			if err := s.sleep(ctx, s.pollInterval); err != nil {
				_ = cmd.Fail()
				return false, fmt.Errorf("%s: %w", cmd.Name(), err)
			}
		case http.StatusOK:
			if err := cmd.Complete(); err != nil {
				return false, err
			}
		default:
			s.logger.Info("Command failed",
				zap.String("command", cmd.Name()),
				zap.String("command_id", cmd.ID()),
				zap.Int64("status", code))
			_ = cmd.Fail()
		}
	}

	snap := cmd.Snapshot()
	s.logger.Debug("Command finished",
		zap.String("command", snap.Name),
		zap.String("command_id", snap.CommandID),
		zap.String("state", snap.State),
		zap.Int("polls", snap.Polls))
	return cmd.Succeeded(), nil
}

// onCommandTransition 记录命令状态变化，在状态机锁内调用
func (s *Session) onCommandTransition(name, from, to string) {
	s.logger.Debug("Command state changed",
		zap.String("command", name),
		zap.String("from", from),
		zap.String("to", to))
}
