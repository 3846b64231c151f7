// Package websocket broadcasts link output to dashboard clients as JSON.
package websocket

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	fx "github.com/robotalks/radiolink/pkg/framework"
	"github.com/robotalks/radiolink/pkg/forward"
	"github.com/robotalks/radiolink/pkg/radio/link"
	"github.com/robotalks/radiolink/pkg/radio/wire"
)

// DefaultBacklog is the number of messages queued per client.
const DefaultBacklog = 64

// Message is one JSON message sent to clients.
type Message struct {
	Type       string                    `json:"type"`
	Frame      *wire.Frame               `json:"frame,omitempty"`
	Diagnostic *forward.DiagnosticRecord `json:"diagnostic,omitempty"`
}

// Hub fans messages out to connected clients. A client which cannot keep
// up loses messages instead of slowing down the others.
type Hub struct {
	Backlog int

	lock    sync.Mutex
	clients map[*client]struct{}
	now     func() time.Time
}

type client struct {
	conn   *websocket.Conn
	sendCh chan *Message
}

// NewHub creates a Hub.
func NewHub() *Hub {
	return &Hub{Backlog: DefaultBacklog, now: time.Now}
}

// Handler returns the websocket endpoint.
func (h *Hub) Handler() http.Handler {
	return websocket.Handler(h.serve)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.clients)
}

// HandleFrame implements forward.FrameHandler.
func (h *Hub) HandleFrame(ctx context.Context, frame *wire.Frame) {
	h.Broadcast(&Message{Type: "frame", Frame: frame})
}

// HandleDiagnostic implements forward.DiagnosticHandler.
func (h *Hub) HandleDiagnostic(ctx context.Context, d link.Diagnostic) {
	h.Broadcast(&Message{Type: "diagnostic", Diagnostic: forward.NewDiagnosticRecord(d, h.now())})
}

// Broadcast queues msg to every client.
func (h *Hub) Broadcast(msg *Message) {
	h.lock.Lock()
	defer h.lock.Unlock()
	for c := range h.clients {
		select {
		case c.sendCh <- msg:
		default:
			glog.V(2).Infof("client lagging, %s dropped", msg.Type)
		}
	}
}

func (h *Hub) serve(conn *websocket.Conn) {
	backlog := h.Backlog
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	c := &client{conn: conn, sendCh: make(chan *Message, backlog)}
	h.lock.Lock()
	if h.clients == nil {
		h.clients = make(map[*client]struct{})
	}
	h.clients[c] = struct{}{}
	h.lock.Unlock()
	glog.Infof("dashboard client %s connected", conn.Request().RemoteAddr)
	defer h.remove(c)

	// clients never send, reading only detects the disconnect
	go func() {
		io.Copy(io.Discard, conn)
		h.remove(c)
	}()

	for msg := range c.sendCh {
		if err := websocket.JSON.Send(conn, msg); err != nil {
			glog.V(1).Infof("send to %s: %v", conn.Request().RemoteAddr, err)
			return
		}
	}
}

func (h *Hub) remove(c *client) {
	h.lock.Lock()
	defer h.lock.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.sendCh)
		glog.Infof("dashboard client %s disconnected", c.conn.Request().RemoteAddr)
	}
}

// Server serves a Hub over HTTP.
type Server struct {
	Addr string
	Path string
	Hub  *Hub
}

// Run implements Runnable.
func (s *Server) Run(ctx context.Context) error {
	path := s.Path
	if path == "" {
		path = "/ws"
	}
	mux := http.NewServeMux()
	mux.Handle(path, s.Hub.Handler())
	srv := &http.Server{Addr: s.Addr, Handler: mux}
	glog.Infof("dashboard feed on %s%s", s.Addr, path)
	return fx.RunWithContextCloser(ctx, srv, func() error {
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
}
