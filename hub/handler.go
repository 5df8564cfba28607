package hub

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	// The live feed carries the same data the public intake routes accept,
	// and tracking snippets connect from arbitrary origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS upgrades the request and registers the connection as an observer
// for its lifetime. Observers only listen; inbound messages are read and
// discarded until the connection closes.
func (h *Hub) HandleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		return
	}

	log.Printf("Live observer connected: %s", c.Request.RemoteAddr)
	o := h.register(conn)

	go func() {
		defer func() {
			h.unregister(o)
			log.Printf("Live observer disconnected: %s", c.Request.RemoteAddr)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
