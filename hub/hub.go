// api/hub/hub.go
package hub

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"pagepulse/api/models"
)

// sendBufferSize bounds how far one observer may fall behind before it is
// dropped. There is no other queueing.
const sendBufferSize = 64

type observer struct {
	conn *websocket.Conn
	send chan []byte
}

func newObserver(conn *websocket.Conn) *observer {
	o := &observer{
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
	go o.writePump()
	return o
}

// writePump drains the send channel onto the connection. One goroutine per
// observer, so a slow or broken socket never delays anyone else.
func (o *observer) writePump() {
	defer o.conn.Close()
	for msg := range o.send {
		if err := o.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (o *observer) close() {
	close(o.send)
}

// Hub owns the set of live observers and pushes a best-effort notification
// for every accepted event to each of them. Callers never touch the observer
// set directly.
type Hub struct {
	mu        sync.RWMutex
	observers map[*observer]bool
}

func NewHub() *Hub {
	return &Hub{
		observers: make(map[*observer]bool),
	}
}

func (h *Hub) register(conn *websocket.Conn) *observer {
	o := newObserver(conn)

	h.mu.Lock()
	h.observers[o] = true
	h.mu.Unlock()

	return o
}

func (h *Hub) unregister(o *observer) {
	h.mu.Lock()
	if _, ok := h.observers[o]; ok {
		delete(h.observers, o)
		o.close()
	}
	h.mu.Unlock()
}

// Publish delivers a notification for event to every currently registered
// observer. Delivery is fire-and-forget: observers that cannot keep up are
// unregistered and the failure is absorbed. Publish never returns an error
// and must never affect the intake response.
func (h *Hub) Publish(event models.Event) {
	data, err := json.Marshal(notificationFor(event))
	if err != nil {
		log.Printf("Error marshalling live notification: %v", err)
		return
	}

	// The read lock is held across the sends: unregister closes the send
	// channel under the write lock, so a send can never hit a channel that
	// a concurrent disconnect has already closed. Each send is non-blocking,
	// so the lock is never held waiting on an observer.
	var slow []*observer

	h.mu.RLock()
	for o := range h.observers {
		select {
		case o.send <- data:
		default:
			slow = append(slow, o)
		}
	}
	h.mu.RUnlock()

	for _, o := range slow {
		log.Printf("Live observer too slow, disconnecting")
		h.unregister(o)
	}
}

// ObserverCount reports the number of currently connected observers.
func (h *Hub) ObserverCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}
