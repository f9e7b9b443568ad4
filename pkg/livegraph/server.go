// Package livegraph streams a fiber's graph and watchdog lifecycle events
// to connected WebSocket observers — a live debugging view of a running
// fiber's resource graph, the same role the teacher's pkg/live played for
// broadcasting virtual-DOM patches, repointed from DOM patches to
// async-resource lifecycle events (init/before/after/resolve/fault).
package livegraph

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/errgroup"

	"github.com/recera/fiberiso/pkg/fault"
	"github.com/recera/fiberiso/pkg/graph"
)

// EventKind names the lifecycle transition an Event reports.
type EventKind string

const (
	EventInit    EventKind = "init"
	EventBefore  EventKind = "before"
	EventAfter   EventKind = "after"
	EventResolve EventKind = "resolve"
	EventFault   EventKind = "fault"
)

// Event is the wire shape broadcast to every connected session.
type Event struct {
	Kind      EventKind `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	FiberID   uint64    `json:"fiberId"`
	AsyncID   uint64    `json:"asyncId,omitempty"`
	NodeType  string    `json:"nodeType,omitempty"`
	ChildID   uint64    `json:"childId,omitempty"`
	FaultCode string    `json:"faultCode,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// Server accepts WebSocket connections and fans Events out to every
// currently-connected Session. Grounded on pkg/live.Server's
// sessions-map-under-RWMutex shape.
type Server struct {
	upgrader websocket.Upgrader
	log      hclog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	g      *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
}

// Session is one connected WebSocket client.
type Session struct {
	id   string
	conn *websocket.Conn
	send chan Event
	log  hclog.Logger
}

// NewServer constructs a Server. Call Close to stop every session's writer
// goroutine and release the errgroup.
func NewServer(log hclog.Logger) *Server {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)
	return &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		log:      log,
		sessions: make(map[string]*Session),
		g:        g,
		ctx:      gctx,
		cancel:   cancel,
	}
}

// ServeHTTP upgrades the request to a WebSocket and registers a new
// session keyed by the request's RemoteAddr, then blocks reading (and
// discarding) incoming frames until the connection closes — clients of
// this protocol are read-only observers.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("livegraph: upgrade failed", "error", err)
		return
	}

	sess := &Session{
		id:   r.RemoteAddr,
		conn: conn,
		send: make(chan Event, 256),
		log:  s.log,
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	s.g.Go(func() error {
		sess.writeLoop(s.ctx)
		return nil
	})

	sess.readLoop()

	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	close(sess.send)
}

// Broadcast fans ev out to every connected session, dropping it for any
// session whose send buffer is full rather than blocking the caller — a
// slow observer must never throttle the fiber it is watching.
func (s *Server) Broadcast(ev Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		select {
		case sess.send <- ev:
		default:
			s.log.Warn("livegraph: session send buffer full, dropping event", "session", sess.id)
		}
	}
}

// Close stops every session's writer goroutine and waits for them to
// return.
func (s *Server) Close() error {
	s.cancel()
	return s.g.Wait()
}

func (sess *Session) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			sess.conn.Close()
			return
		case ev, ok := <-sess.send:
			if !ok {
				sess.conn.Close()
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				sess.log.Warn("livegraph: marshal event failed", "error", err)
				continue
			}
			if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				sess.log.Debug("livegraph: write failed, closing session", "session", sess.id, "error", err)
				sess.conn.Close()
				return
			}
		}
	}
}

func (sess *Session) readLoop() {
	for {
		if _, _, err := sess.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Tap wraps a graph.Observer, broadcasting an Event to srv for every
// lifecycle call before delegating to inner. Attach a Tap in place of the
// watchdog on any node whose lifecycle should be visible to connected
// inspectors, e.g. the root node every pkg/resource constructor creates
// under.
type Tap struct {
	srv   *Server
	inner graph.Observer
}

// NewTap constructs a Tap broadcasting to srv and forwarding to inner.
// inner may be nil, in which case the Tap only broadcasts.
func NewTap(srv *Server, inner graph.Observer) *Tap {
	return &Tap{srv: srv, inner: inner}
}

func (t *Tap) OnInit(n *graph.Node, child *graph.Node) error {
	t.srv.Broadcast(Event{
		Kind:      EventInit,
		Timestamp: time.Now(),
		FiberID:   n.FiberID(),
		AsyncID:   n.AsyncID,
		NodeType:  child.Type,
		ChildID:   child.AsyncID,
	})
	if t.inner == nil {
		return nil
	}
	return t.inner.OnInit(n, child)
}

func (t *Tap) OnBefore(n *graph.Node) error {
	t.srv.Broadcast(Event{
		Kind:      EventBefore,
		Timestamp: time.Now(),
		FiberID:   n.FiberID(),
		AsyncID:   n.AsyncID,
		NodeType:  n.Type,
	})
	if t.inner == nil {
		return nil
	}
	return t.inner.OnBefore(n)
}

func (t *Tap) OnAfter(n *graph.Node) error {
	t.srv.Broadcast(Event{
		Kind:      EventAfter,
		Timestamp: time.Now(),
		FiberID:   n.FiberID(),
		AsyncID:   n.AsyncID,
		NodeType:  n.Type,
	})
	var err error
	if t.inner != nil {
		err = t.inner.OnAfter(n)
	}
	t.reportFault(n, err)
	return err
}

func (t *Tap) OnPromiseResolve(n *graph.Node) error {
	t.srv.Broadcast(Event{
		Kind:      EventResolve,
		Timestamp: time.Now(),
		FiberID:   n.FiberID(),
		AsyncID:   n.AsyncID,
		NodeType:  n.Type,
	})
	var err error
	if t.inner != nil {
		err = t.inner.OnPromiseResolve(n)
	}
	t.reportFault(n, err)
	return err
}

func (t *Tap) reportFault(n *graph.Node, err error) {
	flt, ok := err.(*fault.Fault)
	if !ok || flt == nil {
		return
	}
	t.srv.Broadcast(Event{
		Kind:      EventFault,
		Timestamp: time.Now(),
		FiberID:   n.FiberID(),
		AsyncID:   n.AsyncID,
		NodeType:  n.Type,
		FaultCode: string(flt.Code),
		Message:   flt.Message,
	})
}
