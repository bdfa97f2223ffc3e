// Package protocol is the push channel of the chat backend: one WebSocket per
// session carrying JSON-encoded models.Message frames in both directions.
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"mchat/models"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	maxFrameSize = 1 << 20
)

var (
	ErrClosed       = errors.New("connection closed")
	ErrUnauthorized = errors.New("socket refused: not logged in")
)

// Conn is a client connection to the /ws endpoint.
type Conn struct {
	ws *websocket.Conn

	mu        sync.Mutex
	onMessage []func(models.Message)
	onClose   []func(error)
	listening bool

	sendMu    sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
	closed    bool
}

// Dial opens the socket at url. The session cookie is taken from jar, the
// same jar the REST client logged in with.
func Dial(ctx context.Context, url string, jar http.CookieJar) (*Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
		Jar:              jar,
	}
	ws, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	ws.SetReadLimit(maxFrameSize)

	return &Conn{
		ws:   ws,
		done: make(chan struct{}),
	}, nil
}

// OnMessage registers a handler for every decoded frame. Handlers run on the
// read goroutine in arrival order.
func (c *Conn) OnMessage(h func(models.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = append(c.onMessage, h)
}

// OnClose registers a handler called once when the connection ends. err is
// nil when Close was called locally.
func (c *Conn) OnClose(h func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = append(c.onClose, h)
}

// Listen starts the read and ping loops. Register handlers before calling it
// so no frame is dropped.
func (c *Conn) Listen() {
	c.mu.Lock()
	if c.listening {
		c.mu.Unlock()
		return
	}
	c.listening = true
	c.mu.Unlock()

	go c.readLoop()
	go c.pingLoop()
}

// Send writes msg as a single text frame.
func (c *Conn) Send(msg models.Message) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return ErrClosed
	}
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}

// Close sends a close frame and tears the connection down. Safe to call more
// than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.sendMu.Lock()
		c.closed = true
		close(c.done)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.sendMu.Unlock()

		err = c.ws.Close()

		c.mu.Lock()
		listening := c.listening
		c.mu.Unlock()
		// without a read loop nobody else will report the close
		if !listening {
			c.notifyClose(nil)
		}
	})
	return err
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Conn) readLoop() {
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.isClosed() {
				c.notifyClose(nil)
				return
			}
			log.Debug().Err(err).Msg("[ws] read failed")
			c.markClosed()
			c.notifyClose(err)
			return
		}

		var msg models.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Int("bytes", len(data)).Msg("[ws] skipping malformed frame")
			continue
		}
		c.dispatch(msg)
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.sendMu.Lock()
			if c.closed {
				c.sendMu.Unlock()
				return
			}
			err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
			c.sendMu.Unlock()
			if err != nil {
				log.Debug().Err(err).Msg("[ws] ping failed")
				return
			}
		}
	}
}

// markClosed stops Send and the ping loop after a remote disconnect.
func (c *Conn) markClosed() {
	c.closeOnce.Do(func() {
		c.sendMu.Lock()
		c.closed = true
		close(c.done)
		c.sendMu.Unlock()
		c.ws.Close()
	})
}

func (c *Conn) dispatch(msg models.Message) {
	c.mu.Lock()
	handlers := append(([]func(models.Message))(nil), c.onMessage...)
	c.mu.Unlock()

	for _, h := range handlers {
		h(msg)
	}
}

func (c *Conn) notifyClose(err error) {
	c.mu.Lock()
	handlers := c.onClose
	c.onClose = nil
	c.mu.Unlock()

	for _, h := range handlers {
		h(err)
	}
}
