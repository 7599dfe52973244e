package fordpass

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

const (
	clientID  = "9fb503e0-715b-47e8-adfd-ad4b7770f73b"
	userAgent = "fordpass-ap/93 CFNetwork/1197 Darwin/20.0.0"

	// DefaultPollInterval 命令轮询间隔
	DefaultPollInterval = 5 * time.Second
	// DefaultHTTPTimeout 单次 HTTP 请求超时
	DefaultHTTPTimeout = 30 * time.Second
)

// Options 会话可选配置
type Options struct {
	Store           TokenStore // nil 表示不持久化
	TokenFiles      *FileStore // 清除令牌时删除的文件，与持久化是否启用无关
	Logger          *zap.Logger
	HTTPClient      *http.Client
	Endpoints       *Endpoints
	PollInterval    time.Duration
	MaxPollAttempts int // 0 表示不限制
}

// Session FordPass 会话，管理令牌并代理所有认证请求
// 令牌检查、刷新与依赖它的请求在同一把锁内完成
type Session struct {
	creds      Credentials
	appID      uuid.UUID
	store      TokenStore
	files      *FileStore
	logger     *zap.Logger
	httpClient *http.Client
	endpoints  Endpoints

	pollInterval time.Duration
	maxPolls     int

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	token Token
}

// NewSession 创建会话
func NewSession(creds Credentials, opts Options) (*Session, error) {
	appID, err := creds.Region.ApplicationID()
	if err != nil {
		return nil, err
	}
	if creds.VIN == "" {
		return nil, fmt.Errorf("vin is required")
	}

	s := &Session{
		creds:        creds,
		appID:        appID,
		store:        opts.Store,
		files:        opts.TokenFiles,
		logger:       opts.Logger,
		httpClient:   opts.HTTPClient,
		endpoints:    DefaultEndpoints(),
		pollInterval: opts.PollInterval,
		maxPolls:     opts.MaxPollAttempts,
		now:          time.Now,
		sleep:        sleepContext,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	if opts.Endpoints != nil {
		s.endpoints = *opts.Endpoints
	}
	if s.pollInterval <= 0 {
		s.pollInterval = DefaultPollInterval
	}
	s.logger = s.logger.With(zap.String("vin", creds.VIN))

	return s, nil
}

// VIN 会话绑定的车辆识别码
func (s *Session) VIN() string {
	return s.creds.VIN
}

// Persistent 是否启用令牌持久化
func (s *Session) Persistent() bool {
	return s.store != nil
}

// Token 当前内存中的令牌副本
func (s *Session) Token() Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// SetToken 设置内存中的令牌 (例如从外部导入)
func (s *Session) SetToken(token Token) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = token
}

// Authenticate 强制重新登录
func (s *Session) Authenticate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticate(ctx)
}

// ClearToken 删除持久化的令牌以及配置位置和旧位置上的令牌文件
// 未启用持久化时同样删除文件
func (s *Session) ClearToken(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if s.store != nil {
		if err := s.store.Clear(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if s.files != nil && TokenStore(s.files) != s.store {
		if err := s.files.Clear(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("clear token: %w", err)
	}
	s.logger.Info("Token cleared")
	return nil
}

// authenticate 两阶段登录
// 1. 用户名密码换取短期 code
// 2. code 换取 API access_token 与 refresh_token
func (s *Session) authenticate(ctx context.Context) error {
	form := url.Values{}
	form.Set("client_id", clientID)
	form.Set("grant_type", "password")
	form.Set("username", s.creds.Username)
	form.Set("password", s.creds.Password)

	header := defaultHeaders("application/x-www-form-urlencoded")
	resp, err := s.send(ctx, http.MethodPost, s.endpoints.Identity, header, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("authenticate stage 1: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Op: "authenticate stage 1", StatusCode: resp.StatusCode, Body: truncateBody(resp.Body), Err: ErrAuthentication}
	}

	code := gjson.GetBytes(resp.Body, "access_token").String()
	if code == "" {
		return fmt.Errorf("authenticate stage 1: %w: response has no access_token", ErrAuthentication)
	}
	s.logger.Debug("Fetched token stage 1")

	payload, _ := json.Marshal(map[string]string{"code": code})
	header = defaultHeaders("application/json")
	header.Set("Application-Id", applicationIDHeader(s.appID))
	resp, err = s.send(ctx, http.MethodPut, s.endpoints.OAuth, header, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("authenticate stage 2: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Op: "authenticate stage 2", StatusCode: resp.StatusCode, Body: truncateBody(resp.Body), Err: ErrAuthentication}
	}

	var token Token
	if err := json.Unmarshal(resp.Body, &token); err != nil {
		return fmt.Errorf("authenticate stage 2: decode token: %w", err)
	}

	s.logger.Info("Authenticated", zap.Int("expires_in", token.ExpiresIn))
	return s.storeToken(ctx, token)
}

// refreshToken 使用 refresh_token 换取新令牌
// 401 表示 refresh_token 已失效，回退到完整登录
func (s *Session) refreshToken(ctx context.Context, current Token) error {
	payload, _ := json.Marshal(map[string]string{"refresh_token": current.RefreshToken})
	header := defaultHeaders("application/json")
	header.Set("Application-Id", applicationIDHeader(s.appID))

	resp, err := s.send(ctx, http.MethodPut, s.endpoints.Refresh, header, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("refresh token request: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var token Token
		if err := json.Unmarshal(resp.Body, &token); err != nil {
			return fmt.Errorf("decode refresh response: %w", err)
		}
		s.logger.Debug("Token refreshed", zap.Int("expires_in", token.ExpiresIn))
		return s.storeToken(ctx, token)
	case http.StatusUnauthorized:
		s.logger.Debug("Refresh token rejected, authenticating from scratch")
		return s.authenticate(ctx)
	default:
		return &StatusError{Op: "refresh token", StatusCode: resp.StatusCode, Body: truncateBody(resp.Body), Err: ErrTokenRefresh}
	}
}

// acquireToken 在每次认证请求前调用，必要时刷新或登录
func (s *Session) acquireToken(ctx context.Context) error {
	current := s.token
	if s.store != nil {
		loaded, err := s.readToken(ctx)
		switch {
		case err == nil:
			current = *loaded
		case errors.Is(err, ErrTokenNotFound):
			// 首次运行，使用内存中的令牌
		default:
			return err
		}
	}
	s.token = current

	if current.IsExpired(s.now()) {
		s.logger.Debug("Token has expired, requesting new token")
		if err := s.refreshToken(ctx, current); err != nil {
			return err
		}
	}

	if s.token.AccessToken == "" {
		s.logger.Debug("No token, authenticating")
		return s.authenticate(ctx)
	}
	return nil
}

// storeToken 更新内存令牌并在启用时持久化
func (s *Session) storeToken(ctx context.Context, token Token) error {
	token.ExpiryDate = expiryDate(s.now(), token.ExpiresIn)
	s.token = token
	if s.store == nil {
		return nil
	}
	return s.writeToken(ctx, token)
}

// writeToken 重新计算过期时间后覆盖保存
func (s *Session) writeToken(ctx context.Context, token Token) error {
	token.ExpiryDate = expiryDate(s.now(), token.ExpiresIn)
	if err := s.store.Save(ctx, &token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}

// readToken 读取持久化令牌，内容损坏时重新登录后再读取
func (s *Session) readToken(ctx context.Context) (*Token, error) {
	token, err := s.store.Load(ctx)
	if err == nil || !errors.Is(err, ErrMalformedToken) {
		return token, err
	}

	s.logger.Warn("Fixing malformed token", zap.Error(err))
	if err := s.authenticate(ctx); err != nil {
		return nil, err
	}
	return s.store.Load(ctx)
}

// authorizedDo 获取令牌并发送一次请求
func (s *Session) authorizedDo(ctx context.Context, method Method, rawURL string, query url.Values) (*RawResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.acquireToken(ctx); err != nil {
		return nil, err
	}
	return s.do(ctx, method, rawURL, query)
}

// do 共享请求原语：附加认证与区域请求头，无重试
func (s *Session) do(ctx context.Context, method Method, rawURL string, query url.Values) (*RawResponse, error) {
	if len(query) > 0 {
		rawURL += "?" + query.Encode()
	}

	header := defaultHeaders("application/json")
	header.Set("auth-token", s.token.AccessToken)
	header.Set("Application-Id", applicationIDHeader(s.appID))

	return s.send(ctx, method.String(), rawURL, header, nil)
}

// send 发送请求并读取完整响应体
func (s *Session) send(ctx context.Context, method, rawURL string, header http.Header, body io.Reader) (*RawResponse, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header = header

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	return &RawResponse{StatusCode: resp.StatusCode, Body: data}, nil
}

// defaultHeaders 每次请求都返回新的请求头
// 不设置 Accept-Encoding，由 Transport 协商 gzip 并自动解压
func defaultHeaders(contentType string) http.Header {
	h := make(http.Header, 4)
	h.Set("Accept", "*/*")
	h.Set("Accept-Language", "en-us")
	h.Set("User-Agent", userAgent)
	h.Set("Content-Type", contentType)
	return h
}

// sleepContext 可被取消的等待
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
