// Package inspector is a terminal UI that connects to a pkg/livegraph
// server and renders the fiber tree, pending-resource counts, and the most
// recent fault as they stream in. Grounded on the teacher's
// cmd/vango/internal/ui scaffolding wizard's Model/Update/View split
// (model.go/handlers.go/render.go), repointed from a project-creation
// wizard to a read-only live dashboard.
package inspector

import (
	"encoding/json"

	"github.com/gorilla/websocket"

	"github.com/recera/fiberiso/pkg/livegraph"
)

// client owns the WebSocket connection to a livegraph server and decodes
// incoming frames into livegraph.Event values, delivered on Events.
type client struct {
	conn   *websocket.Conn
	Events chan livegraph.Event
	errs   chan error
}

// dial connects to addr's livegraph WebSocket endpoint.
func dial(addr string) (*client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(addr, nil)
	if err != nil {
		return nil, err
	}
	c := &client{
		conn:   conn,
		Events: make(chan livegraph.Event, 256),
		errs:   make(chan error, 1),
	}
	go c.readLoop()
	return c, nil
}

func (c *client) readLoop() {
	defer close(c.Events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.errs <- err
			return
		}
		var ev livegraph.Event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		c.Events <- ev
	}
}

func (c *client) Close() error {
	return c.conn.Close()
}
