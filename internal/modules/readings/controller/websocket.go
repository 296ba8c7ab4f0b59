package controller

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"bsf-dashboard/internal/modules/readings/types"
	"bsf-dashboard/internal/modules/readings/variants"
	"bsf-dashboard/internal/utils"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// handleWebSocket pushes the selected view once on connect and again after
// every applied batch. Clients only listen; anything they send is discarded.
func (c *readingsControllerImpl) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	v, p, err := c.lookup(r.PathValue("name"))
	if err != nil {
		utils.WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	sel, err := parseSelection(r, v)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		c.logger.Warn("websocket upgrade failed", "variant", v.Name, "error", err)
		return
	}
	defer conn.Close()

	clientID := uuid.NewString()
	logger := c.logger.With("variant", v.Name, "client_id", clientID)
	logger.Info("websocket client connected", "window", sel.Window, "metric", sel.Metric)
	defer logger.Info("websocket client disconnected")

	updates := p.Subscribe()
	defer p.Unsubscribe(updates)

	closed := make(chan struct{})
	go readPump(conn, closed)

	if err := c.pushView(conn, v, p, sel); err != nil {
		logger.Debug("websocket write failed", "error", err)
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-updates:
			if err := c.pushView(conn, v, p, sel); err != nil {
				logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				logger.Debug("websocket ping failed", "error", err)
				return
			}
		}
	}
}

func (c *readingsControllerImpl) pushView(conn *websocket.Conn, v variants.Variant, p Poller, sel types.Selection) error {
	snap, view := p.View(sel, c.now())
	if err := conn.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
		return err
	}
	return conn.WriteJSON(presentView(v.Name, snap, view))
}

// readPump drains the connection so control frames are processed, and closes
// done when the peer goes away.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
