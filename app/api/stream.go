package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/gorilla/websocket"

	"github.com/dorominseok/festival-pj/app/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 32
)

// stream message types
const (
	msgSession  = "session"
	msgWishlist = "wishlist"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamMessage is pushed to stream clients on every session or wishlist change
type streamMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// streamClient is a single websocket connection
type streamClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// GET /stream upgrades to websocket. The current session and wishlist are sent first,
// then every change as it happens.
func (s *Server) streamCtrl(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WARN] can't upgrade stream connection, %v", err)
		return
	}
	c := &streamClient{conn: conn, send: make(chan []byte, sendBuffer), done: make(chan struct{})}
	s.streams.add(c)
	defer s.streams.remove(c)

	// initial state is read under the same lock changes are pushed with, the last message
	// of each type always carries the latest state
	var mu sync.Mutex
	pushLocked := func(msg streamMessage) {
		mu.Lock()
		defer mu.Unlock()
		c.push(msg)
	}
	unsubSession := s.Session.Subscribe(func(u *models.User) { pushLocked(streamMessage{Type: msgSession, Data: u}) })
	defer unsubSession()
	unsubWishlist := s.Wishlist.Subscribe(func(l []models.Festival) { pushLocked(streamMessage{Type: msgWishlist, Data: l}) })
	defer unsubWishlist()

	mu.Lock()
	c.push(streamMessage{Type: msgSession, Data: s.Session.Current()})
	c.push(streamMessage{Type: msgWishlist, Data: s.Wishlist.Wishlist()})
	mu.Unlock()

	log.Printf("[DEBUG] stream client connected from %s", r.RemoteAddr)
	go c.writePump()
	c.readPump()
	log.Printf("[DEBUG] stream client from %s disconnected", r.RemoteAddr)
}

// push queues msg, a client not keeping up is disconnected
func (c *streamClient) push(msg streamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WARN] can't marshal stream message %s, %v", msg.Type, err)
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		log.Printf("[WARN] stream client too slow, disconnecting")
		c.close()
	}
}

func (c *streamClient) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readPump discards incoming messages and returns when the connection breaks
func (c *streamClient) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[DEBUG] stream read error, %v", err)
			}
			return
		}
	}
}

// writePump sends queued messages and pings until the client is closed
func (c *streamClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// streamRegistry tracks open stream clients so shutdown can close them
type streamRegistry struct {
	mu      sync.Mutex
	clients map[*streamClient]struct{}
}

func (sr *streamRegistry) add(c *streamClient) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.clients == nil {
		sr.clients = map[*streamClient]struct{}{}
	}
	sr.clients[c] = struct{}{}
}

func (sr *streamRegistry) remove(c *streamClient) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	delete(sr.clients, c)
}

func (sr *streamRegistry) closeAll() {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	for c := range sr.clients {
		c.close()
	}
}
