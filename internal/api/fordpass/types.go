package fordpass

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Region FordPass 账号所在区域
type Region string

const (
	RegionUKEurope     Region = "UK&Europe"
	RegionAustralia    Region = "Australia"
	RegionNorthAmerica Region = "North America & Canada"
)

// 区域对应的 Application-Id
var regionApplicationIDs = map[Region]uuid.UUID{
	RegionUKEurope:     uuid.MustParse("1E8C7794-FF5F-49BC-9596-A1E0C86C5B19"),
	RegionAustralia:    uuid.MustParse("5C80A6BB-CF0D-4A30-BDBF-FC804B5C1A98"),
	RegionNorthAmerica: uuid.MustParse("71A3AD0A-CF46-4CCF-B473-FC7FE5BC4592"),
}

// Regions 返回所有支持的区域
func Regions() []Region {
	return []Region{RegionUKEurope, RegionAustralia, RegionNorthAmerica}
}

// ApplicationID 返回区域的 Application-Id
func (r Region) ApplicationID() (uuid.UUID, error) {
	id, ok := regionApplicationIDs[r]
	if !ok {
		return uuid.Nil, fmt.Errorf("unknown region %q, expected one of %q", string(r), Regions())
	}
	return id, nil
}

// applicationIDHeader 请求头使用大写形式
func applicationIDHeader(id uuid.UUID) string {
	return strings.ToUpper(id.String())
}

// Credentials 登录凭据，会话期间不可变
type Credentials struct {
	Username string
	Password string
	VIN      string
	Region   Region
}

// Token 认证令牌，与令牌文件格式一致
type Token struct {
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	ExpiresIn    int     `json:"expires_in"`
	ExpiryDate   float64 `json:"expiry_date,omitempty"` // 客户端计算的过期时间 (epoch 秒)
}

// ExpiresAt 过期时间，未设置时返回零值
func (t *Token) ExpiresAt() time.Time {
	if t.ExpiryDate == 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(t.ExpiryDate)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// IsExpired 检查 token 是否过期，未设置过期时间视为未过期
func (t *Token) IsExpired(now time.Time) bool {
	if t.ExpiryDate == 0 {
		return false
	}
	return !now.Before(t.ExpiresAt())
}

// expiryDate 计算 now + expiresIn 的 epoch 秒
func expiryDate(now time.Time, expiresIn int) float64 {
	return float64(now.Add(time.Duration(expiresIn)*time.Second).UnixNano()) / 1e9
}

// Method 请求方法
type Method int

const (
	MethodGet Method = iota
	MethodPut
	MethodDelete
)

func (m Method) String() string {
	switch m {
	case MethodGet:
		return http.MethodGet
	case MethodPut:
		return http.MethodPut
	case MethodDelete:
		return http.MethodDelete
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// Endpoints FordPass 服务地址
type Endpoints struct {
	Identity string // 第一阶段用户名密码换取 code
	OAuth    string // 第二阶段 code 换取 API token
	Refresh  string
	Base     string // 车辆状态与命令
	Guard    string // 守护模式
}

// DefaultEndpoints 生产环境地址
func DefaultEndpoints() Endpoints {
	return Endpoints{
		Identity: "https://sso.ci.ford.com/oidc/endpoint/default/token",
		OAuth:    "https://api.mps.ford.com/api/oauth2/v1/token",
		Refresh:  "https://api.mps.ford.com/api/oauth2/v1/refresh",
		Base:     "https://usapi.cv.ford.com/api",
		Guard:    "https://api.mps.ford.com/api",
	}
}

// RawResponse 未解析的响应
type RawResponse struct {
	StatusCode int
	Body       []byte
}

// 错误定义
var (
	ErrAuthentication = errors.New("authentication failed")
	ErrTokenRefresh   = errors.New("token refresh failed")
	ErrRequest        = errors.New("request failed")
	ErrMalformedToken = errors.New("malformed token record")
	ErrTokenNotFound  = errors.New("token record not found")
	ErrPollLimit      = errors.New("command poll limit reached")
)

// StatusError 携带 HTTP 状态码的错误
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: %v: status=%d", e.Op, e.Err, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v: status=%d body=%s", e.Op, e.Err, e.StatusCode, e.Body)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// StatusCode 从错误链中提取 HTTP 状态码，不存在时返回 0
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// truncateBody 截断响应体用于错误信息
func truncateBody(body []byte) string {
	const limit = 256
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
