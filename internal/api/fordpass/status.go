package fordpass

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// 总是返回最新数据的刷新时间阈值
const lastRefreshThreshold = "01-01-1970 00:00:00"

func statusQuery() url.Values {
	return url.Values{"lrdt": {lastRefreshThreshold}}
}

func (s *Session) statusURL() string {
	return fmt.Sprintf("%s/vehicles/v4/%s/status", s.endpoints.Base, s.creds.VIN)
}

func (s *Session) guardURL() string {
	return fmt.Sprintf("%s/guardmode/v1/%s/session", s.endpoints.Guard, s.creds.VIN)
}

// Status 获取车辆状态，原样返回 vehiclestatus
// 401 时刷新令牌后重试一次
func (s *Session) Status(ctx context.Context) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.acquireToken(ctx); err != nil {
		return nil, err
	}

	resp, err := s.do(ctx, MethodGet, s.statusURL(), statusQuery())
	if err != nil {
		return nil, fmt.Errorf("status request: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return vehicleStatus(resp)
	case http.StatusUnauthorized:
		s.logger.Debug("401 with status request, refreshing token")
		if err := s.refreshToken(ctx, s.token); err != nil {
			return nil, err
		}
		if err := s.acquireToken(ctx); err != nil {
			return nil, err
		}

		resp, err = s.do(ctx, MethodGet, s.statusURL(), statusQuery())
		if err != nil {
			return nil, fmt.Errorf("status request retry: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return nil, &StatusError{Op: "status retry", StatusCode: resp.StatusCode, Body: truncateBody(resp.Body), Err: ErrRequest}
		}
		return vehicleStatus(resp)
	default:
		return nil, &StatusError{Op: "status", StatusCode: resp.StatusCode, Body: truncateBody(resp.Body), Err: ErrRequest}
	}
}

// vehicleStatus 检查响应体内的状态码并取出 vehiclestatus
func vehicleStatus(resp *RawResponse) (json.RawMessage, error) {
	if code := gjson.GetBytes(resp.Body, "status"); code.Exists() && code.Int() == http.StatusPaymentRequired {
		return nil, &StatusError{Op: "status", StatusCode: int(code.Int()), Body: truncateBody(resp.Body), Err: ErrRequest}
	}

	payload := gjson.GetBytes(resp.Body, "vehiclestatus")
	if !payload.Exists() {
		return nil, fmt.Errorf("status: %w: response has no vehiclestatus", ErrRequest)
	}
	return json.RawMessage(payload.Raw), nil
}

// GuardStatus 获取守护模式状态 (实验性)
func (s *Session) GuardStatus(ctx context.Context) (json.RawMessage, error) {
	resp, err := s.authorizedDo(ctx, MethodGet, s.guardURL(), statusQuery())
	if err != nil {
		return nil, fmt.Errorf("guard status request: %w", err)
	}
	if !gjson.ValidBytes(resp.Body) {
		return nil, &StatusError{Op: "guard status", StatusCode: resp.StatusCode, Body: truncateBody(resp.Body), Err: ErrRequest}
	}
	return json.RawMessage(resp.Body), nil
}

// EnableGuard 开启守护模式，不轮询结果
func (s *Session) EnableGuard(ctx context.Context) (*RawResponse, error) {
	return s.guardSession(ctx, MethodPut)
}

// DisableGuard 关闭守护模式，不轮询结果
func (s *Session) DisableGuard(ctx context.Context) (*RawResponse, error) {
	return s.guardSession(ctx, MethodDelete)
}

func (s *Session) guardSession(ctx context.Context, method Method) (*RawResponse, error) {
	resp, err := s.authorizedDo(ctx, method, s.guardURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("guard %s request: %w", method, err)
	}
	s.logger.Debug("Guard mode response",
		zap.String("method", method.String()),
		zap.Int("status", resp.StatusCode),
		zap.ByteString("body", resp.Body))
	return resp, nil
}

// RequestUpdate 请求车辆上报最新数据，返回响应体中的 status
// vin 为空时使用会话绑定的车辆
func (s *Session) RequestUpdate(ctx context.Context, vin string) (int, error) {
	if vin == "" {
		vin = s.creds.VIN
	}

	rawURL := fmt.Sprintf("%s/vehicles/v2/%s/status", s.endpoints.Base, vin)
	resp, err := s.authorizedDo(ctx, MethodPut, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("request update: %w", err)
	}

	code := gjson.GetBytes(resp.Body, "status")
	if !code.Exists() {
		return 0, &StatusError{Op: "request update", StatusCode: resp.StatusCode, Body: truncateBody(resp.Body), Err: ErrRequest}
	}
	return int(code.Int()), nil
}
