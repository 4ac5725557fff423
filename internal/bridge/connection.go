package bridge

import (
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

const (
	sendChSize = 4096
	maxBackoff = 30 * time.Second
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// session is one dialled socket. Its loops exit when stop closes.
type session struct {
	conn *ws.Conn
	stop chan struct{}
	once sync.Once
}

// connection keeps a socket to the host open, redialling until closed.
// A single write goroutine per session drains sendCh.
type connection struct {
	mu     sync.Mutex
	sess   *session
	sendCh chan []byte
	done   chan struct{} // closed on shutdown
	closed bool

	wsURL  string
	secret string

	// onMessage receives every inbound frame, on the read goroutine.
	onMessage func([]byte)
	// onConnect runs after every successful dial, including redials.
	onConnect func()
	logger    *slog.Logger
}

func newConnection(logger *slog.Logger, onMessage func([]byte), onConnect func()) *connection {
	return &connection{
		sendCh:    make(chan []byte, sendChSize),
		done:      make(chan struct{}),
		onMessage: onMessage,
		onConnect: onConnect,
		logger:    logger,
	}
}

// dial connects once. Later failures are redialled in the background.
func (c *connection) dial(rawURL, secret string) error {
	c.mu.Lock()
	c.wsURL = rawURL
	c.secret = secret
	c.mu.Unlock()

	conn, err := c.open()
	if err != nil {
		return err
	}
	c.start(conn)
	return nil
}

// open performs a single WebSocket dial with the secret query param.
func (c *connection) open() (*ws.Conn, error) {
	c.mu.Lock()
	rawURL, secret := c.wsURL, c.secret
	c.mu.Unlock()

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if secret != "" {
		q := u.Query()
		q.Set("secret", secret)
		u.RawQuery = q.Encode()
	}

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (c *connection) start(conn *ws.Conn) {
	s := &session{conn: conn, stop: make(chan struct{})}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.sess = s
	c.mu.Unlock()

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go c.writeLoop(s)
	go c.readLoop(s)

	if c.onConnect != nil {
		c.onConnect()
	}
}

// fail tears down s and schedules a redial. Only the first call per session acts.
func (c *connection) fail(s *session, err error) {
	s.once.Do(func() {
		close(s.stop)
		_ = s.conn.Close()

		c.mu.Lock()
		if c.sess == s {
			c.sess = nil
		}
		closed := c.closed
		c.mu.Unlock()

		if closed {
			return
		}
		c.logger.Warn("Host connection lost", "error", err)
		go c.redial()
	})
}

func (c *connection) writeLoop(s *session) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-s.stop:
			return
		case <-ping.C:
			if err := s.conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.fail(s, err)
				return
			}
		case data := <-c.sendCh:
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.fail(s, err)
				return
			}
			if err := s.conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.fail(s, err)
				return
			}
		}
	}
}

func (c *connection) readLoop(s *session) {
	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.fail(s, err)
			}
			return
		}
		c.onMessage(message)
	}
}

// redial retries with exponential backoff until a dial succeeds or the
// connection is closed.
func (c *connection) redial() {
	backoff := time.Second
	for attempt := 1; ; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		conn, err := c.open()
		if err != nil {
			c.logger.Warn("Redial failed", "attempt", attempt, "retryIn", backoff, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		c.logger.Info("Host reconnected", "attempt", attempt)
		c.start(conn)
		return
	}
}

// send queues data for the write loop, dropping it when the queue is full.
// Frames queued while disconnected go out after the next dial.
func (c *connection) send(data []byte) {
	select {
	case c.sendCh <- data:
	default:
		c.logger.Warn("Host send queue full, dropping message")
	}
}

// close sends a close frame and stops every goroutine.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	s := c.sess
	c.sess = nil
	c.mu.Unlock()

	if s == nil {
		return nil
	}
	s.once.Do(func() { close(s.stop) })
	_ = s.conn.WriteControl(
		ws.CloseMessage,
		ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
		time.Now().Add(writeWait),
	)
	return s.conn.Close()
}
