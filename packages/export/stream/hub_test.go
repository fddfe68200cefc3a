package stream

import (
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/conserve/packages/solver"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testGrid(t *testing.T) *solver.Grid {
	t.Helper()
	grid, err := solver.NewGrid(0, 0.4, 0.1)
	require.NoError(t, err)
	return grid
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub("burgers-sine-upwind", testGrid(t), 0.5, WithMaxRate(0))
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))

	hello := read(t, conn)
	assert.Equal(t, TypeGrid, hello.Type)
	assert.Equal(t, "burgers-sine-upwind", hello.Name)
	assert.Len(t, hello.X, 4)
	assert.Equal(t, 1, hub.Clients())

	hub.Observe(0, solver.State{1, 2, 3, 4})
	hub.Observe(3, solver.State{4, 3, 2, 1})

	frame := read(t, conn)
	assert.Equal(t, TypeFrame, frame.Type)
	assert.Equal(t, 0, frame.Step)
	assert.Equal(t, []float64{1, 2, 3, 4}, frame.U)

	frame = read(t, conn)
	assert.Equal(t, 3, frame.Step)
	assert.Equal(t, 1.5, frame.Time)

	hub.Finish(4, solver.State{0, 0, 0, 0}, errors.New("numerical instability"))
	frame = read(t, conn)
	assert.Equal(t, 4, frame.Step)
	done := read(t, conn)
	assert.Equal(t, TypeDone, done.Type)
	assert.Equal(t, "numerical instability", done.Error)
}

func TestHub_LateClientGetsLatestFrame(t *testing.T) {
	hub := NewHub("run", testGrid(t), 1)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	hub.Observe(0, solver.State{1, 1, 1, 1})
	hub.Finish(10, solver.State{2, 2, 2, 2}, nil)

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	assert.Equal(t, TypeGrid, read(t, conn).Type)

	latest := read(t, conn)
	assert.Equal(t, 10, latest.Step)
	assert.Equal(t, []float64{2, 2, 2, 2}, latest.U)

	done := read(t, conn)
	assert.Equal(t, TypeDone, done.Type)
	assert.Empty(t, done.Error)
}

func TestHub_RateLimit(t *testing.T) {
	hub := NewHub("run", testGrid(t), 1, WithMaxRate(0.001))
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	read(t, conn)

	hub.Observe(0, solver.State{0, 0, 0, 0})
	hub.Observe(1, solver.State{1, 1, 1, 1})
	hub.Observe(2, solver.State{2, 2, 2, 2})
	hub.Observe(3, solver.State{3, 3, 3, 3})
	hub.Finish(4, nil, nil)

	assert.Equal(t, 0, read(t, conn).Step)
	assert.Equal(t, 1, read(t, conn).Step, "first frame after step 0 uses the burst")
	assert.Equal(t, TypeDone, read(t, conn).Type, "frames over the cap are dropped")
}

func TestServer(t *testing.T) {
	hub := NewHub("run", testGrid(t), 1)
	srv, err := Listen("127.0.0.1:0", hub)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(srv.URL(), "ws://127.0.0.1:"))
	assert.True(t, strings.HasSuffix(srv.URL(), Path))

	conn := dial(t, srv.URL())
	assert.Equal(t, TypeGrid, read(t, conn).Type)

	require.NoError(t, srv.Close())
	assert.Equal(t, 0, hub.Clients())

	_, _, err = conn.ReadMessage()
	assert.Error(t, err)
}
