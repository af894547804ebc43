package qiao

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokmz/qiao/pkg/errors"
	"github.com/tokmz/qiao/pkg/ws"
)

func TestMountRawHandler(t *testing.T) {
	reg := newTestRegistry(t, newEchoBus(t))

	require.NoError(t, reg.Mount(http.MethodGet, "/raw/$name", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "raw:%s", r.URL.Path)
	})))

	w := doRequest(reg, http.MethodGet, "/raw/probe", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "raw:/raw/probe", w.Body.String())
}

func TestMountValidation(t *testing.T) {
	reg := newTestRegistry(t, newEchoBus(t))
	h := http.NotFoundHandler()

	err := reg.Mount(http.MethodGet, "/x", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nil handler")

	err = reg.Mount(http.MethodOptions, "/x", h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not bindable")

	err = reg.Mount(http.MethodGet, "no-slash", h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must begin with '/'")

	require.NoError(t, reg.Mount(http.MethodGet, "/dup", h))
	err = reg.Mount(http.MethodGet, "/dup", h)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindConfiguration))

	reg.freeze(func() {})
	err = reg.Mount(http.MethodGet, "/late", h)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frozen")
}

func TestMountWebsocketEcho(t *testing.T) {
	reg := newTestRegistry(t, newEchoBus(t))

	srv, err := ws.NewServer(&ws.Handlers[string, string]{
		Decode:    func(data []byte, binary bool) (string, error) { return string(data), nil },
		Encode:    func(out string) ([]byte, error) { return []byte(out), nil },
		OnMessage: func(p *ws.Pusher[string, string], input string) { _ = p.Reply(input + "/pong") },
	}, ws.WithAllowAllOrigins(), ws.WithMetrics(reg.WebsocketMetrics()))
	require.NoError(t, err)

	require.NoError(t, reg.Mount(http.MethodGet, "/ws/echo", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = srv.Handle(w, r)
	})))

	ts := httptest.NewServer(reg.Handler())
	t.Cleanup(ts.Close)

	client, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws/echo", nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte("ping")))
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "ping/pong", string(data))
}

func TestWebsocketMetricsAccessor(t *testing.T) {
	reg := newTestRegistry(t, newEchoBus(t))
	assert.IsType(t, &ws.NoopMetrics{}, reg.WebsocketMetrics())

	pm := ws.NewPromMetrics(prometheus.NewRegistry(), "qiao_test")
	reg = newTestRegistry(t, newEchoBus(t), WithWebsocketMetrics(pm))
	assert.Same(t, pm, reg.WebsocketMetrics())
}
