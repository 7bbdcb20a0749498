package ws

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/grpcbridge/internal/bridge"
	"github.com/GriffinCanCode/grpcbridge/internal/grpc/calls"
	"github.com/GriffinCanCode/grpcbridge/internal/grpc/channel"
	"github.com/GriffinCanCode/grpcbridge/internal/infrastructure/config"
	"github.com/GriffinCanCode/grpcbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/grpcbridge/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type frame map[string]any

type client struct {
	t       *testing.T
	conn    *websocket.Conn
	pending []frame
}

func setup(t *testing.T) (*bridge.Module, string) {
	t.Helper()
	srv := testutil.NewServer(t, nil)

	cfg := config.Default()
	cfg.Channel.Host = testutil.Target
	cfg.Channel.Insecure = true

	metrics := monitoring.NewMetrics()
	module := bridge.New(cfg, bridge.WithDialOptions(srv.DialOption()), bridge.WithMetrics(metrics))
	t.Cleanup(func() { module.Close(time.Second) })

	router := gin.New()
	router.GET("/stream", NewHandler(module, metrics, nil).HandleConnection)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)

	return module, "ws" + strings.TrimPrefix(ts.URL, "http") + "/stream"
}

func dial(t *testing.T, url string) *client {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	c := &client{t: t, conn: conn}
	hello := c.next(func(f frame) bool { return f["type"] == FrameSystem })
	require.NotEmpty(t, hello["sessionId"])
	require.NotEmpty(t, hello["connectionId"])
	return c
}

func (c *client) send(cmd map[string]any) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(cmd))
}

// next returns the first frame match accepts, reading more as needed.
// Frames it skips stay buffered for later calls.
func (c *client) next(match func(frame) bool) frame {
	c.t.Helper()
	for i, f := range c.pending {
		if match(f) {
			c.pending = append(c.pending[:i], c.pending[i+1:]...)
			return f
		}
	}

	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		_, data, err := c.conn.ReadMessage()
		require.NoError(c.t, err)
		var f frame
		require.NoError(c.t, json.Unmarshal(data, &f))
		if match(f) {
			return f
		}
		c.pending = append(c.pending, f)
	}
}

func (c *client) call(cmd map[string]any) frame {
	c.t.Helper()
	c.send(cmd)
	reqID := cmd["requestId"]
	return c.next(func(f frame) bool {
		return f["type"] == FrameResult && f["requestId"] == reqID
	})
}

// events reads call events for handle until its terminal one.
func (c *client) events(handle float64) []map[string]any {
	c.t.Helper()
	var out []map[string]any
	for {
		f := c.next(func(f frame) bool {
			if f["type"] != FrameEvent {
				return false
			}
			ev := f["event"].(map[string]any)
			return ev["id"] == handle
		})
		assert.Equal(c.t, "grpc-call", f["name"])
		ev := f["event"].(map[string]any)
		out = append(out, ev)
		if ev["type"] == "trailers" || ev["type"] == "error" {
			return out
		}
	}
}

func types(evs []map[string]any) []any {
	out := make([]any, len(evs))
	for i, ev := range evs {
		out[i] = ev["type"]
	}
	return out
}

func TestUnaryOverWebSocket(t *testing.T) {
	_, url := setup(t)
	c := dial(t, url)

	res := c.call(map[string]any{"type": "initChannel", "requestId": "1"})
	require.Equal(t, true, res["ok"], res)

	res = c.call(map[string]any{
		"type":      "sendUnary",
		"requestId": "2",
		"id":        1,
		"path":      "/test.Echo/Unary",
		"data":      "YWJj",
		"headers":   map[string]any{"x-user": "alice"},
	})
	require.Equal(t, true, res["ok"], res)

	evs := c.events(1)
	require.Equal(t, []any{"headers", "response", "trailers"}, types(evs))
	assert.Equal(t, "echo", evs[0]["payload"].(map[string]any)["x-server"])
	assert.Equal(t, "YWJj", evs[1]["payload"])
	assert.Equal(t, "done", evs[2]["payload"].(map[string]any)["x-trailer"])
}

func TestClientStreamingOverWebSocket(t *testing.T) {
	_, url := setup(t)
	c := dial(t, url)
	c.call(map[string]any{"type": "initChannel", "requestId": "init"})

	for i, chunk := range []string{"YQ==", "Yg==", "Yw=="} {
		res := c.call(map[string]any{
			"type":      "sendClientStreamingChunk",
			"requestId": "chunk" + string(rune('0'+i)),
			"id":        2,
			"path":      "/test.Echo/Collect",
			"data":      chunk,
		})
		require.Equal(t, true, res["ok"], res)
	}

	res := c.call(map[string]any{"type": "finishClientStreaming", "requestId": "fin", "id": 2})
	assert.Equal(t, true, res["value"])

	evs := c.events(2)
	assert.Equal(t, "YSxiLGM=", evs[len(evs)-2]["payload"])

	res = c.call(map[string]any{"type": "finishClientStreaming", "requestId": "fin2", "id": 2})
	assert.Equal(t, true, res["ok"])
	assert.Equal(t, false, res["value"])
}

func TestErrorEventOverWebSocket(t *testing.T) {
	_, url := setup(t)
	c := dial(t, url)
	c.call(map[string]any{"type": "initChannel", "requestId": "init"})

	c.call(map[string]any{"type": "sendUnary", "requestId": "1", "id": 4, "path": "/test.Echo/Fail", "data": "eA=="})

	evs := c.events(4)
	last := evs[len(evs)-1]
	assert.Equal(t, "error", last["type"])
	assert.Equal(t, "INVALID_ARGUMENT: bad payload", last["error"])
	assert.Equal(t, float64(3), last["code"])
	assert.Equal(t, "invalid", last["trailers"].(map[string]any)["x-reason"])
}

func TestCommandErrors(t *testing.T) {
	_, url := setup(t)
	c := dial(t, url)

	res := c.call(map[string]any{"type": "sendUnary", "requestId": "1", "id": 1, "path": "/test.Echo/Unary"})
	assert.Equal(t, false, res["ok"])
	assert.Equal(t, "channel_not_ready", res["kind"])

	c.call(map[string]any{"type": "initChannel", "requestId": "2"})
	res = c.call(map[string]any{"type": "sendUnary", "requestId": "3", "id": 1, "path": "bad"})
	assert.Equal(t, "invalid_request", res["kind"])

	res = c.call(map[string]any{"type": "explode", "requestId": "4"})
	assert.Equal(t, false, res["ok"])
	assert.Contains(t, res["error"], "unknown command")

	require.NoError(t, c.conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	res = c.next(func(f frame) bool { return f["type"] == FrameResult && f["requestId"] == "" })
	assert.Contains(t, res["error"], "invalid command")

	c.send(map[string]any{"type": "ping", "requestId": "5"})
	pong := c.next(func(f frame) bool { return f["type"] == FramePong })
	assert.Equal(t, "5", pong["requestId"])

	c.send(map[string]any{"type": "getHost"})
	res = c.next(func(f frame) bool {
		reqID, _ := f["requestId"].(string)
		return f["type"] == FrameResult && strings.HasPrefix(reqID, "req_")
	})
	assert.Equal(t, true, res["ok"])
}

func TestConfigurationCommands(t *testing.T) {
	module, url := setup(t)
	c := dial(t, url)

	c.call(map[string]any{"type": "setHost", "requestId": "1", "host": "example.com:443"})
	c.call(map[string]any{"type": "setIsInsecure", "requestId": "2", "insecure": false})
	c.call(map[string]any{"type": "setCompression", "requestId": "3", "enabled": true, "compressor": "zstd"})
	c.call(map[string]any{"type": "setResponseSizeLimit", "requestId": "4", "limit": 2048})
	c.call(map[string]any{"type": "setKeepAlive", "requestId": "5", "enabled": true, "time": 15, "timeout": 3})

	assert.Equal(t, "example.com:443", c.call(map[string]any{"type": "getHost", "requestId": "6"})["value"])
	assert.Equal(t, false, c.call(map[string]any{"type": "getIsInsecure", "requestId": "7"})["value"])

	cfg := module.ChannelSettings()
	assert.Equal(t, channel.Compression{Enabled: true, Compressor: "zstd"}, cfg.Compression)
	assert.Equal(t, 2048, cfg.ResponseSizeLimit)
	assert.Equal(t, 15*time.Second, cfg.KeepAlive.Time)

	assert.Equal(t, "UNKNOWN", c.call(map[string]any{"type": "connectionState", "requestId": "8"})["value"])
}

func TestDiagnosticsPushed(t *testing.T) {
	_, url := setup(t)
	c := dial(t, url)

	c.call(map[string]any{"type": "setDiagnosticsEnabled", "requestId": "1", "enabled": true})
	c.call(map[string]any{"type": "initChannel", "requestId": "2"})
	c.send(map[string]any{"type": "resetConnection", "requestId": "3", "reason": "manual"})

	f := c.next(func(f frame) bool {
		return f["type"] == FrameDiagnostic && f["message"] == "resetConnection manual"
	})
	assert.NotNil(t, f)

	res := c.call(map[string]any{"type": "enterIdle", "requestId": "4"})
	assert.Equal(t, true, res["ok"])
}

func TestNewerConnectionTakesEvents(t *testing.T) {
	module, url := setup(t)
	first := dial(t, url)
	second := dial(t, url)

	second.call(map[string]any{"type": "initChannel", "requestId": "1"})
	second.call(map[string]any{"type": "sendUnary", "requestId": "2", "id": 9, "path": "/test.Echo/Unary", "data": "eA=="})
	assert.Len(t, second.events(9), 3)

	// the first connection closing must not detach the second
	require.NoError(t, first.conn.Close())
	time.Sleep(50 * time.Millisecond)

	second.call(map[string]any{"type": "sendUnary", "requestId": "3", "id": 10, "path": "/test.Echo/Unary", "data": "eA=="})
	assert.Len(t, second.events(10), 3)
	assert.Equal(t, 0, module.Status().ActiveCalls)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "channel_not_ready", errorKind(channel.ErrChannelNotReady))
	assert.Equal(t, "transport", errorKind(&calls.TransportError{Err: calls.ErrCallClosed}))
	assert.Equal(t, "invalid_request", errorKind(&calls.TransportError{Err: calls.ErrInvalidPath}))
	assert.Equal(t, "internal", errorKind(errUnknownCommand))
}
