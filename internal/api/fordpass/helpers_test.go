package fordpass

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testVIN = "1FTFW1E50MFA00001"

// 常用路径
var (
	pathIdentity = "POST /identity/token"
	pathOAuth    = "PUT /oauth2/v1/token"
	pathRefresh  = "PUT /oauth2/v1/refresh"
	pathStatus   = "GET /api/vehicles/v4/" + testVIN + "/status"
	pathEngine   = "/api/vehicles/v2/" + testVIN + "/engine/start"
	pathLock     = "/api/vehicles/v2/" + testVIN + "/doors/lock"
	pathGuard    = "/guard/guardmode/v1/" + testVIN + "/session"
)

type fakeResponse struct {
	code int
	body string
}

// fakeServer 模拟 FordPass 各服务端点，按 "METHOD /path" 路由并计数
type fakeServer struct {
	srv      *httptest.Server
	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	hits     map[string]int
}

func newFakeServer(t *testing.T) *fakeServer {
	t.Helper()

	f := &fakeServer{
		handlers: make(map[string]http.HandlerFunc),
		hits:     make(map[string]int),
	}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		f.mu.Lock()
		f.hits[key]++
		h := f.handlers[key]
		f.mu.Unlock()

		if h == nil {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
	t.Cleanup(f.srv.Close)

	f.handle(pathIdentity, respond(http.StatusOK, `{"access_token":"code-1"}`))
	f.handle(pathOAuth, tokenResponse("access-1", "refresh-1", 3600))
	f.handle(pathRefresh, tokenResponse("access-2", "refresh-2", 3600))
	return f
}

func (f *fakeServer) handle(key string, h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[key] = h
}

func (f *fakeServer) hit(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[key]
}

func (f *fakeServer) endpoints() *Endpoints {
	return &Endpoints{
		Identity: f.srv.URL + "/identity/token",
		OAuth:    f.srv.URL + "/oauth2/v1/token",
		Refresh:  f.srv.URL + "/oauth2/v1/refresh",
		Base:     f.srv.URL + "/api",
		Guard:    f.srv.URL + "/guard",
	}
}

func respond(code int, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		fmt.Fprint(w, body)
	}
}

func tokenResponse(access, refresh string, expiresIn int) http.HandlerFunc {
	return respond(http.StatusOK, fmt.Sprintf(`{"access_token":%q,"refresh_token":%q,"expires_in":%d}`, access, refresh, expiresIn))
}

// sequence 依次返回响应，用完后重复最后一个
func sequence(responses ...fakeResponse) http.HandlerFunc {
	var mu sync.Mutex
	i := 0
	return func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		resp := responses[i]
		if i < len(responses)-1 {
			i++
		}
		mu.Unlock()
		respond(resp.code, resp.body)(w, r)
	}
}

func pollStatuses(codes ...int) http.HandlerFunc {
	responses := make([]fakeResponse, len(codes))
	for i, c := range codes {
		responses[i] = fakeResponse{code: http.StatusOK, body: fmt.Sprintf(`{"status":%d}`, c)}
	}
	return sequence(responses...)
}

func testCredentials() Credentials {
	return Credentials{
		Username: "driver@example.com",
		Password: "secret",
		VIN:      testVIN,
		Region:   RegionNorthAmerica,
	}
}

// newTestSession 创建指向 fakeServer 的会话，记录每次轮询等待
func newTestSession(t *testing.T, f *fakeServer, opts Options) (*Session, *[]time.Duration) {
	t.Helper()

	opts.Endpoints = f.endpoints()
	s, err := NewSession(testCredentials(), opts)
	require.NoError(t, err)

	var sleeps []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return ctx.Err()
	}
	return s, &sleeps
}

// validToken 一小时后过期的令牌
func validToken(access string) Token {
	return Token{
		AccessToken:  access,
		RefreshToken: "refresh-0",
		ExpiresIn:    3600,
		ExpiryDate:   expiryDate(time.Now(), 3600),
	}
}
