// classifier/pkg/server/dashboard.go

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"rgehrsitz/classifier/pkg/compiler"
	"rgehrsitz/classifier/pkg/logging"
)

// Dashboard pushes the rule store status to websocket clients, on every
// swap and on a fixed interval.
type Dashboard struct {
	rules          Rules
	source         string
	updateInterval time.Duration

	clients      map[*websocket.Conn]bool
	clientsMutex sync.Mutex
	swaps        chan *compiler.RuleSet
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func NewDashboard(rules Rules, source string, updateInterval time.Duration) *Dashboard {
	if updateInterval <= 0 {
		updateInterval = 5 * time.Second
	}
	return &Dashboard{
		rules:          rules,
		source:         source,
		updateInterval: updateInterval,
		clients:        make(map[*websocket.Conn]bool),
		swaps:          make(chan *compiler.RuleSet, 1),
	}
}

// NotifySwap queues rs for broadcast. It is meant to be registered with
// RuleStore.OnSwap and never blocks; a pending update is replaced.
func (d *Dashboard) NotifySwap(rs *compiler.RuleSet) {
	for {
		select {
		case d.swaps <- rs:
			return
		default:
		}
		select {
		case <-d.swaps:
		default:
		}
	}
}

// Run broadcasts until ctx is cancelled and then disconnects all clients.
func (d *Dashboard) Run(ctx context.Context) {
	ticker := time.NewTicker(d.updateInterval)
	defer ticker.Stop()
	defer d.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case rs := <-d.swaps:
			d.broadcast(StatusOf(rs, d.source))
		case <-ticker.C:
			d.broadcast(StatusOf(d.rules.Snapshot(), d.source))
		}
	}
}

// Clients returns the number of connected clients.
func (d *Dashboard) Clients() int {
	d.clientsMutex.Lock()
	defer d.clientsMutex.Unlock()
	return len(d.clients)
}

func (d *Dashboard) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Logger.Warn().Err(err).Msg("Error upgrading to WebSocket")
		return
	}
	defer conn.Close()

	logging.Logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Dashboard client connected")

	// the current status goes out before the client is registered, so no
	// broadcast can interleave with it
	if err := d.send(conn, StatusOf(d.rules.Snapshot(), d.source)); err != nil {
		return
	}

	d.clientsMutex.Lock()
	d.clients[conn] = true
	d.clientsMutex.Unlock()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	d.clientsMutex.Lock()
	delete(d.clients, conn)
	d.clientsMutex.Unlock()

	logging.Logger.Debug().Str("remote", conn.RemoteAddr().String()).Msg("Dashboard client disconnected")
}

func (d *Dashboard) send(conn *websocket.Conn, status Status) error {
	message, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, message)
}

func (d *Dashboard) broadcast(status Status) {
	message, err := json.Marshal(status)
	if err != nil {
		logging.Logger.Error().Err(err).Msg("Error marshaling dashboard status")
		return
	}

	d.clientsMutex.Lock()
	defer d.clientsMutex.Unlock()
	for client := range d.clients {
		if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
			logging.Logger.Warn().Err(err).Msg("Error sending status to dashboard client")
			client.Close()
			delete(d.clients, client)
		}
	}
}

func (d *Dashboard) closeAll() {
	d.clientsMutex.Lock()
	defer d.clientsMutex.Unlock()
	for client := range d.clients {
		client.Close()
		delete(d.clients, client)
	}
}
