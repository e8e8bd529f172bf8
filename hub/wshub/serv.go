package wshub

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/algorealm/triggr/hub"
	"github.com/algorealm/triggr/log"
)

// Serve upgrades r into a WebSocket connection subscribed against bus,
// per spec §4.9. queueDepth sizes each connection's outbound buffer
// (spec §4.8's default is 256).
func Serve(bus *hub.Bus, queueDepth int, logger log.Logger) http.HandlerFunc {
	upgr := &websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return func(w http.ResponseWriter, r *http.Request) {
		wc, err := upgr.Upgrade(w, r, nil)
		if err != nil {
			logger.Error("wshub: upgrade failed", "cause", err)
			return
		}
		c := newConn(wc, bus, queueDepth)
		go c.writeLoop()
		c.read()
		bus.UnsubscribeAll(c.id)
	}
}
