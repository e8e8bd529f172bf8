// Package wshub is the gateway's WebSocket transport (C9): it upgrades
// incoming connections, parses subscribe/unsubscribe frames, and drains
// each connection's hub.Subscriber queue back out over the socket.
package wshub

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/algorealm/triggr/hub"
)

const (
	pingInterval = 30 * time.Second
	pongTimeout  = 60 * time.Second
	writeTimeout = 5 * time.Second
)

// inboundFrame is the client-to-server envelope of spec §4.9:
// {"data":"subscribe:<topic>"} or {"data":"unsubscribe:<topic>"}.
type inboundFrame struct {
	Data string `json:"data"`
}

type conn struct {
	id  int64
	wc  *websocket.Conn
	bus *hub.Bus
	sub *hub.Subscriber
}

func newConn(wc *websocket.Conn, bus *hub.Bus, queueDepth int) *conn {
	id := hub.NextID()
	return &conn{id: id, wc: wc, bus: bus, sub: hub.NewSubscriber(id, queueDepth)}
}

// read pumps inbound frames until the client disconnects. Unknown frames
// are ignored rather than closing the connection.
func (c *conn) read() {
	c.wc.SetReadDeadline(time.Now().Add(pongTimeout))
	c.wc.SetPongHandler(func(string) error {
		c.wc.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})
	for {
		_, data, err := c.wc.ReadMessage()
		if err != nil {
			return
		}
		var f inboundFrame
		if json.Unmarshal(data, &f) != nil {
			continue
		}
		switch {
		case strings.HasPrefix(f.Data, "subscribe:"):
			c.bus.Subscribe(strings.TrimPrefix(f.Data, "subscribe:"), c.sub)
		case strings.HasPrefix(f.Data, "unsubscribe:"):
			c.bus.Unsubscribe(strings.TrimPrefix(f.Data, "unsubscribe:"), c.id)
		}
	}
}

// writeLoop drains c.sub.Queue onto the socket and pings on pingInterval
// until the queue is closed or a write fails.
func (c *conn) writeLoop() {
	t := time.NewTicker(pingInterval)
	defer t.Stop()
	defer c.wc.Close()
	for {
		select {
		case p, ok := <-c.sub.Queue:
			if !ok {
				c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
				c.wc.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			b, err := json.Marshal(p)
			if err != nil {
				continue
			}
			c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.wc.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-t.C:
			c.wc.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.wc.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
