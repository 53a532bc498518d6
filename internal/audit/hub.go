// Package audit owns the append-only scan log and its live fan-out: a
// single campus-wide hub of WebSocket subscribers, plus read-only analytics
// projections over the log.
package audit

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/campusgate/gatepass/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 10 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512 * 1024

	recentBacklog = 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Envelope is the neutral wire shape every push to a subscriber uses.
type Envelope struct {
	Type string `json:"type"` // "initial", "new_scan", "pong"
	Data any    `json:"data,omitempty"`
}

// Subscriber is a live push-channel session. It holds no reference back to
// the Hub: the Hub owns subscribers in a flat map, breaking the manager/
// subscriber reference cycle the original code had.
type Subscriber struct {
	id   uint64
	conn *websocket.Conn
	send chan []byte
}

// Hub fans out every inserted scan record to all connected subscribers.
// A send that blocks or errors drops only that subscriber; others are
// unaffected.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[uint64]*Subscriber
	nextID      uint64
	recentFn    func(limit int) []model.ScanLog
}

// NewHub returns an empty Hub. recentFn supplies the initial backlog sent to
// a newly connected subscriber; it is normally Recorder.Recent.
func NewHub(recentFn func(limit int) []model.ScanLog) *Hub {
	return &Hub{subscribers: make(map[uint64]*Subscriber), recentFn: recentFn}
}

// ServeWS upgrades the request and registers a new subscriber.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("audit: ws upgrade error: %v", err)
		return
	}

	h.mu.Lock()
	h.nextID++
	sub := &Subscriber{id: h.nextID, conn: conn, send: make(chan []byte, 256)}
	h.subscribers[sub.id] = sub
	h.mu.Unlock()

	if h.recentFn != nil {
		if payload, err := json.Marshal(Envelope{Type: "initial", Data: h.recentFn(recentBacklog)}); err == nil {
			select {
			case sub.send <- payload:
			default:
			}
		}
	}

	go h.writePump(sub)
	go h.readPump(sub)
}

func (h *Hub) readPump(sub *Subscriber) {
	defer h.remove(sub.id)

	sub.conn.SetReadLimit(maxMessageSize)
	sub.conn.SetReadDeadline(time.Now().Add(pongWait + pingPeriod))
	sub.conn.SetPongHandler(func(string) error {
		sub.conn.SetReadDeadline(time.Now().Add(pongWait + pingPeriod))
		return nil
	})

	for {
		_, msg, err := sub.conn.ReadMessage()
		if err != nil {
			return
		}
		var in struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(msg, &in) == nil && in.Type == "ping" {
			if payload, err := json.Marshal(Envelope{Type: "pong"}); err == nil {
				select {
				case sub.send <- payload:
				default:
				}
			}
		}
	}
}

func (h *Hub) writePump(sub *Subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		sub.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-sub.send:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				sub.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := sub.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			sub.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := sub.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subscribers[id]; ok {
		close(sub.send)
		delete(h.subscribers, id)
	}
}

// Broadcast serializes rec into a "new_scan" envelope and fans it out to
// every subscriber. A subscriber whose send buffer is full misses this one
// message without affecting the rest; this call never blocks the caller on
// a slow subscriber. A subscriber leaves the hub only when its own
// connection fails, which its read and write pumps detect.
func (h *Hub) Broadcast(rec model.ScanLog) {
	payload, err := json.Marshal(Envelope{Type: "new_scan", Data: rec})
	if err != nil {
		log.Printf("audit: marshal broadcast: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subscribers {
		select {
		case sub.send <- payload:
		default:
			// Subscriber too slow; their own writePump/readPump will tear
			// them down on the next failed write.
		}
	}
}

// SubscriberCount reports the number of currently connected subscribers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
