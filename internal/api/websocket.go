package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/AaronLay10/StagePlayer/internal/events"
)

const (
	defaultRecentEvents = 50
	maxRecentEvents     = 256

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// access control is done by RequireAnyRole, not by origin
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// wsClient streams events to one websocket peer.
//
// Query parameters: recent=N replays the last N events on connect,
// prefix=a,b only forwards events whose name starts with one of them.
type wsClient struct {
	conn     *websocket.Conn
	sub      events.Subscriber
	prefixes []string
}

func (c *wsClient) wants(e events.Event) bool {
	if len(c.prefixes) == 0 {
		return true
	}
	for _, p := range c.prefixes {
		if strings.HasPrefix(e.Name, p) {
			return true
		}
	}
	return false
}

func (c *wsClient) send(e events.Event) error {
	if !c.wants(e) {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop consumes control frames until the peer goes away.
func (c *wsClient) readLoop(done chan<- struct{}) {
	defer close(done)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writeLoop(done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case e, ok := <-c.sub:
			if !ok {
				return
			}
			if err := c.send(e); err != nil {
				log.Printf("ws write event failed: %v", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func parseRecent(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("recent"))
	switch {
	case err != nil || n < 0:
		return defaultRecentEvents
	case n > maxRecentEvents:
		return maxRecentEvents
	default:
		return n
	}
}

func parsePrefixes(r *http.Request) []string {
	raw := r.URL.Query().Get("prefix")
	if raw == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// wsEventsHandler handles WebSocket connections for live event streaming.
func wsEventsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}

	c := &wsClient{
		conn:     conn,
		sub:      events.Subscribe(),
		prefixes: parsePrefixes(r),
	}
	defer func() {
		events.Unsubscribe(c.sub)
		conn.Close()
	}()

	if n := parseRecent(r); n > 0 {
		for _, e := range events.RecentEvents(n) {
			if err := c.send(e); err != nil {
				log.Printf("ws write recent event failed: %v", err)
				return
			}
		}
	}

	done := make(chan struct{})
	go c.readLoop(done)
	c.writeLoop(done)
}
