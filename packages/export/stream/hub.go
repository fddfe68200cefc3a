// Package stream broadcasts the frames of a running integration to
// websocket clients.
package stream

import (
	"net/http"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/conserve/packages/solver"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Message types sent to clients.
const (
	TypeGrid  = "grid"
	TypeFrame = "frame"
	TypeDone  = "done"
)

// DefaultMaxRate caps the number of frames sent per second.
const DefaultMaxRate = 30

const writeWait = 5 * time.Second

// Message is the JSON document sent over the socket. Grid messages carry
// the cell centres, frame messages the state.
type Message struct {
	Type  string    `json:"type"`
	Name  string    `json:"name"`
	Step  int       `json:"step"`
	Time  float64   `json:"t"`
	X     []float64 `json:"x,omitempty"`
	U     []float64 `json:"u,omitempty"`
	Error string    `json:"error,omitempty"`
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub is an http.Handler that upgrades requests to websockets and fans
// frames out to every connected client.
type Hub struct {
	name   string
	grid   *solver.Grid
	dt     float64
	logger *zap.Logger

	limiter *rate.Limiter

	clientsMu sync.RWMutex
	clients   map[*websocket.Conn]*sync.Mutex

	latestMu sync.Mutex
	latest   *Message
	done     *Message
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Hub) {
		h.logger = logger
	}
}

// WithMaxRate sets the frame rate cap; zero or less disables it.
func WithMaxRate(fps float64) Option {
	return func(h *Hub) {
		if fps <= 0 {
			h.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		h.limiter = rate.NewLimiter(rate.Limit(fps), 1)
	}
}

// NewHub creates a hub for the run called name on grid with time step dt.
func NewHub(name string, grid *solver.Grid, dt float64, opts ...Option) *Hub {
	h := &Hub{
		name:    name,
		grid:    grid,
		dt:      dt,
		logger:  zap.NewNop(),
		limiter: rate.NewLimiter(DefaultMaxRate, 1),
		clients: make(map[*websocket.Conn]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP upgrades the connection, sends the grid and the latest frame,
// then keeps the client registered until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	connMutex := &sync.Mutex{}
	connMutex.Lock()
	h.clientsMu.Lock()
	h.clients[conn] = connMutex
	h.clientsMu.Unlock()
	defer func() {
		h.clientsMu.Lock()
		delete(h.clients, conn)
		h.clientsMu.Unlock()
	}()

	h.logger.Debug("client connected", zap.String("remote", r.RemoteAddr))

	err = h.write(conn, &Message{Type: TypeGrid, Name: h.name, X: h.grid.X})
	h.latestMu.Lock()
	latest, done := h.latest, h.done
	h.latestMu.Unlock()
	if err == nil && latest != nil {
		err = h.write(conn, latest)
	}
	if err == nil && done != nil {
		err = h.write(conn, done)
	}
	connMutex.Unlock()
	if err != nil {
		h.logger.Warn("websocket write failed", zap.Error(err))
		return
	}

	// Drain control frames until the client goes away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.logger.Debug("client disconnected", zap.Error(err))
			return
		}
	}
}

func (h *Hub) write(conn *websocket.Conn, msg *Message) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

// Observe broadcasts the state after step. It has the signature of a
// runner observer. Frames beyond the rate cap are dropped, except step 0.
func (h *Hub) Observe(step int, state solver.State) {
	msg := &Message{
		Type: TypeFrame,
		Name: h.name,
		Step: step,
		Time: float64(step) * h.dt,
		U:    state.Clone(),
	}

	h.latestMu.Lock()
	h.latest = msg
	h.latestMu.Unlock()

	if step != 0 && !h.limiter.Allow() {
		return
	}
	h.broadcast(msg)
}

// Finish sends the final state and a done message carrying err, if any.
func (h *Hub) Finish(steps int, final solver.State, err error) {
	if final != nil {
		msg := &Message{
			Type: TypeFrame,
			Name: h.name,
			Step: steps,
			Time: float64(steps) * h.dt,
			U:    final.Clone(),
		}
		h.latestMu.Lock()
		h.latest = msg
		h.latestMu.Unlock()
		h.broadcast(msg)
	}

	done := &Message{Type: TypeDone, Name: h.name, Step: steps, Time: float64(steps) * h.dt}
	if err != nil {
		done.Error = err.Error()
	}
	h.latestMu.Lock()
	h.done = done
	h.latestMu.Unlock()
	h.broadcast(done)
}

func (h *Hub) broadcast(msg *Message) {
	h.clientsMu.RLock()
	clientsToRemove := []*websocket.Conn{}
	for client, mutex := range h.clients {
		mutex.Lock()
		err := h.write(client, msg)
		mutex.Unlock()
		if err != nil {
			h.logger.Warn("websocket write failed", zap.Error(err))
			client.Close()
			clientsToRemove = append(clientsToRemove, client)
		}
	}
	h.clientsMu.RUnlock()

	if len(clientsToRemove) > 0 {
		h.clientsMu.Lock()
		for _, client := range clientsToRemove {
			delete(h.clients, client)
		}
		h.clientsMu.Unlock()
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	for client, mutex := range h.clients {
		mutex.Lock()
		_ = client.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"),
			time.Now().Add(writeWait))
		client.Close()
		mutex.Unlock()
		delete(h.clients, client)
	}
	return nil
}
