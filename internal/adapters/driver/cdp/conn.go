package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

type rpcRequest struct {
	ID        int64  `json:"id"`
	Method    string `json:"method"`
	Params    any    `json:"params,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcMessage struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
	// Method is set on protocol events, which this client discards.
	Method string `json:"method"`
}

// conn is a minimal DevTools protocol client: id-matched JSON calls
// over one websocket, with a single read pump dispatching responses.
type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan rpcMessage
	readErr error
	closed  bool

	done chan struct{}
}

func dial(ctx context.Context, endpoint string) (*conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial browser endpoint: %w", err)
	}

	c := &conn{
		ws:      ws,
		pending: map[int64]chan rpcMessage{},
		done:    make(chan struct{}),
	}
	go c.readLoop()

	return c, nil
}

func (c *conn) readLoop() {
	defer close(c.done)

	for {
		var message rpcMessage
		if err := c.ws.ReadJSON(&message); err != nil {
			c.failPending(err)
			return
		}
		if message.Method != "" {
			continue
		}

		c.mu.Lock()
		waiter, ok := c.pending[message.ID]
		delete(c.pending, message.ID)
		c.mu.Unlock()

		if ok {
			waiter <- message
		}
	}
}

func (c *conn) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.readErr = err
	for id, waiter := range c.pending {
		close(waiter)
		delete(c.pending, id)
	}
}

func (c *conn) call(ctx context.Context, sessionID, method string, params any, out any) error {
	c.mu.Lock()
	if c.readErr != nil {
		err := c.readErr
		c.mu.Unlock()
		return fmt.Errorf("%s: connection lost: %w", method, err)
	}
	c.nextID++
	id := c.nextID
	waiter := make(chan rpcMessage, 1)
	c.pending[id] = waiter
	c.mu.Unlock()

	request := rpcRequest{ID: id, Method: method, Params: params, SessionID: sessionID}

	c.writeMu.Lock()
	err := c.ws.WriteJSON(request)
	c.writeMu.Unlock()
	if err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("%s: write: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	case message, ok := <-waiter:
		if !ok {
			return fmt.Errorf("%s: connection lost", method)
		}
		if message.Error != nil {
			return fmt.Errorf("%s: %s (code %d)", method, message.Error.Message, message.Error.Code)
		}
		if out != nil && len(message.Result) > 0 {
			if err := json.Unmarshal(message.Result, out); err != nil {
				return fmt.Errorf("%s: decode result: %w", method, err)
			}
		}
		return nil
	}
}

func (c *conn) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	err := c.ws.Close()
	<-c.done
	return err
}
