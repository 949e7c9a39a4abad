package wsui

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"traction/engine"
	"traction/engine/clock"
	"traction/engine/device"
	"traction/engine/runtime"
)

func dialTestServer(t *testing.T) (*websocket.Conn, *runtime.Loop, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(0)
	motor := device.NewMockMotor(clk)
	cfg := engine.Defaults()
	cfg.MetricsEnabled = false
	eng, err := engine.New(cfg, engine.WithClock(clk), engine.WithMotor(motor))
	require.NoError(t, err)
	loop := runtime.NewLoop(runtime.Options{Engine: eng})

	srv := httptest.NewServer(NewServer(Options{Controller: loop, PushInterval: 10 * time.Millisecond}).Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return ws, loop, clk
}

func TestStatePushedToClient(t *testing.T) {
	ws, _, _ := dialTestServer(t)
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))

	var st engine.ThrottleState
	require.NoError(t, ws.ReadJSON(&st))
	require.Equal(t, "stopped", st.Direction)
	require.Equal(t, 1.0, st.MaxSpeed)
}

func TestClientCommandReachesController(t *testing.T) {
	ws, loop, _ := dialTestServer(t)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"set_speed","target":0.4,"strategy":{"kind":"immediate"}}`)))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st := loop.State(); st.TargetSpeed == 0.4 && st.CurrentSource == "web_local" {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("command never reached controller: %+v", loop.State())
}

func TestUndecodableCommandKeepsConnectionAlive(t *testing.T) {
	ws, loop, _ := dialTestServer(t)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, ws.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"set_speed","target":0.2}`)))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if loop.State().TargetSpeed == 0.2 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("connection did not survive bad frame")
}
