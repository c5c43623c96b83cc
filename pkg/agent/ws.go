package agent

import (
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const writeWait = 5 * time.Second

type subscriber struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *subscriber) send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// hub fans state snapshots out to websocket subscribers.
type hub struct {
	upgrader websocket.Upgrader

	mu          sync.Mutex
	closed      bool
	subscribers map[*subscriber]struct{}
}

func newHub() *hub {
	return &hub{
		subscribers: make(map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *hub) add(conn *websocket.Conn) *subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	sub := &subscriber{conn: conn}
	h.subscribers[sub] = struct{}{}
	return sub
}

func (h *hub) remove(sub *subscriber) {
	h.mu.Lock()
	_, ok := h.subscribers[sub]
	delete(h.subscribers, sub)
	h.mu.Unlock()

	if ok {
		sub.conn.Close()
	}
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

func (h *hub) broadcast(state State) {
	h.mu.Lock()
	subs := make([]*subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	if len(subs) == 0 {
		return
	}

	data, err := json.Marshal(state)
	if err != nil {
		log.Errorf("error encoding state to json: %v", err)
		return
	}
	for _, sub := range subs {
		if err := sub.send(data); err != nil {
			log.Debugf("dropping websocket subscriber: %v", err)
			h.remove(sub)
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	h.closed = true
	subs := h.subscribers
	h.subscribers = make(map[*subscriber]struct{})
	h.mu.Unlock()

	for sub := range subs {
		sub.conn.Close()
	}
}

// ws streams a state snapshot after every sampler update. Messages from the client are
// ignored.
func (a *Agent) ws(w http.ResponseWriter, r *http.Request) {
	conn, err := a.hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("websocket upgrade failed: %v", err)
		return
	}

	sub := a.hub.add(conn)
	if sub == nil {
		conn.Close()
		return
	}
	defer a.hub.remove(sub)

	data, err := json.Marshal(a.State())
	if err != nil {
		log.Errorf("error encoding state to json: %v", err)
		return
	}
	if err := sub.send(data); err != nil {
		return
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
