package qiao

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/qiao/pkg/errors"
	"github.com/tokmz/qiao/pkg/logger"
)

func noopHandlers() (func(*RequestContext) (string, error), func(string) *Reply) {
	return func(rc *RequestContext) (string, error) { return "", nil },
		func(v string) *Reply { return OK(v) }
}

func TestEndpointValidate(t *testing.T) {
	tests := []struct {
		name string
		ep   *Endpoint
		want string
	}{
		{"missing name", &Endpoint{Path: "/x", Method: http.MethodGet}, "name is required"},
		{"missing path", &Endpoint{Name: "x", Method: http.MethodGet}, "no path template"},
		{"empty method", &Endpoint{Name: "x", Path: "/x"}, "not bindable"},
		{"options method", &Endpoint{Name: "x", Path: "/x", Method: http.MethodOptions}, "not bindable"},
		{"connect method", &Endpoint{Name: "x", Path: "/x", Method: http.MethodConnect}, "not bindable"},
		{"lowercase method", &Endpoint{Name: "x", Path: "/x", Method: "get"}, "not bindable"},
		{"websocket type", &Endpoint{Name: "x", Path: "/x", Method: http.MethodGet, Type: EndpointWebsocket}, "pkg/ws"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ep.validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.True(t, errors.IsKind(err, errors.KindConfiguration))
		})
	}
}

func TestBindWebsocketRejected(t *testing.T) {
	reg := newTestRegistry(t, newEchoBus(t))
	reqH, respH := noopHandlers()

	err := Bind(reg, &Endpoint{
		Name:   "feed.ws",
		Path:   "/feed",
		Method: http.MethodGet,
		Type:   EndpointWebsocket,
	}, reqH, respH, nil)

	// 拒绝是明确的：既可按哨兵匹配，也可按类别匹配
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWebsocketEndpoint))
	assert.True(t, errors.IsKind(err, errors.KindConfiguration))
}

func TestBindBadTemplateIsolated(t *testing.T) {
	bus := newEchoBus(t, "good.op")
	reg := newTestRegistry(t, bus)
	reqH, respH := noopHandlers()

	err := Bind(reg, &Endpoint{
		Name:   "bad.op",
		Path:   "/$a/$b/$c/$d/$e/$f/$g",
		Method: http.MethodGet,
		Type:   EndpointExternal,
	}, reqH, respH, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 6 variables")

	// 失败只影响那一条路由
	require.NoError(t, Bind(reg, &Endpoint{
		Name:   "good.op",
		Path:   "/good",
		Method: http.MethodGet,
		Type:   EndpointExternal,
	}, reqH, respH, nil))

	w := doRequest(reg, http.MethodGet, "/good", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBindDuplicateRouteRecovered(t *testing.T) {
	bus := newEchoBus(t, "first.op", "second.op")
	reg := newTestRegistry(t, bus)

	require.NoError(t, Bind(reg, &Endpoint{
		Name:   "first.op",
		Path:   "/dup",
		Method: http.MethodGet,
		Type:   EndpointExternal,
	}, func(rc *RequestContext) (string, error) { return "first", nil },
		func(v string) *Reply { return OK(gin.H{"who": v}) }, nil))

	// gin 对重复路由 panic，这里应收编为配置错误而非崩溃
	reqH, respH := noopHandlers()
	err := Bind(reg, &Endpoint{
		Name:   "second.op",
		Path:   "/dup",
		Method: http.MethodGet,
		Type:   EndpointExternal,
	}, reqH, respH, nil)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfiguration))

	// 先注册的路由继续服务
	w := doRequest(reg, http.MethodGet, "/dup", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "first")
}

func TestBindAfterFreeze(t *testing.T) {
	reg := newTestRegistry(t, newEchoBus(t))
	reg.freeze(func() {})

	reqH, respH := noopHandlers()
	err := Bind(reg, &Endpoint{
		Name:   "late.op",
		Path:   "/late",
		Method: http.MethodGet,
	}, reqH, respH, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frozen")
}

func TestBindNilArguments(t *testing.T) {
	reg := newTestRegistry(t, newEchoBus(t))
	reqH, respH := noopHandlers()

	err := Bind(reg, nil, reqH, respH, nil)
	require.Error(t, err)

	err = Bind[string, string](reg, &Endpoint{Name: "x", Path: "/x", Method: http.MethodGet}, nil, respH, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request and response handlers")

	err = Bind[string, string](reg, &Endpoint{Name: "y", Path: "/y", Method: http.MethodGet}, reqH, nil, nil)
	require.Error(t, err)
}

func TestNewRegistryNilCommander(t *testing.T) {
	_, err := NewRegistry(nil)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfiguration))
}

func TestNewRegistryRejectsCredentialedWildcardCORS(t *testing.T) {
	cfg := DefaultCORSConfig()
	cfg.AllowCredentials = true

	_, err := NewRegistry(newEchoBus(t), WithLogger(logger.Nop()), WithCORS(cfg))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfiguration))
	assert.Contains(t, err.Error(), "AllowCredentials")
}

func TestRegistryRoutes(t *testing.T) {
	reg := newTestRegistry(t, newEchoBus(t, "a.op"))
	reqH, respH := noopHandlers()

	require.NoError(t, Bind(reg, &Endpoint{
		Name:   "a.op",
		Path:   "/a/$id",
		Method: http.MethodGet,
	}, reqH, respH, nil))

	paths := make(map[string]bool)
	for _, ri := range reg.Routes() {
		paths[ri.Method+" "+ri.Path] = true
	}

	assert.True(t, paths["GET /internal/a/:id"])
	// 运维端点随注册表一起装配
	assert.True(t, paths["GET /internal/ping"])
	assert.True(t, paths["GET /internal/health"])
	assert.True(t, paths["POST /internal/shutdown"])
}

func TestEndpointTypeString(t *testing.T) {
	assert.Equal(t, "internal", EndpointInternal.String())
	assert.Equal(t, "external", EndpointExternal.String())
	assert.Equal(t, "websocket", EndpointWebsocket.String())
}
