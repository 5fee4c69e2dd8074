package ws

import (
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fathima-sithara/realtime-service/internal/models"
)

// EventHandler is called for every well-formed inbound envelope.
type EventHandler func(c *Client, env *Envelope)

type Options struct {
	PingInterval  time.Duration
	WriteDeadline time.Duration
	PongWait      time.Duration
	ReadLimit     int64
	RatePerSec    int
}

// Client is one live websocket connection with its verified identity.
type Client struct {
	User models.User
	Send chan []byte

	conn    *websocket.Conn
	limiter *rate.Limiter
	opts    Options
	closed  int32
	done    chan struct{}
	log     *zap.SugaredLogger
}

func NewClient(conn *websocket.Conn, user models.User, opts Options, log *zap.SugaredLogger) *Client {
	if opts.PingInterval == 0 {
		opts.PingInterval = 25 * time.Second
	}
	if opts.WriteDeadline == 0 {
		opts.WriteDeadline = 10 * time.Second
	}
	if opts.PongWait == 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.ReadLimit == 0 {
		opts.ReadLimit = 64 * 1024
	}
	if opts.RatePerSec == 0 {
		opts.RatePerSec = 20
	}
	return &Client{
		User:    user,
		Send:    make(chan []byte, 256),
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.RatePerSec),
		opts:    opts,
		done:    make(chan struct{}),
		log:     log,
	}
}

// Enqueue hands a frame to the write pump without blocking. Reports false
// when the client is closed or the buffer is full (slow consumer). Send is
// never closed: a fan-out goroutine may be mid-Enqueue when Close runs, and
// a send on a closed channel panics.
func (c *Client) Enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case <-c.done:
		return false
	case c.Send <- b:
		return true
	default:
		return false
	}
}

func (c *Client) SendEnvelope(env *Envelope) bool {
	b, err := json.Marshal(env)
	if err != nil {
		return false
	}
	return c.Enqueue(b)
}

func (c *Client) Close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	}
}

// Closed reports whether Close has run.
func (c *Client) Closed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// ReadPump blocks until the connection drops, feeding inbound envelopes to
// onEvent. The caller is responsible for hub registration around it.
func (c *Client) ReadPump(onEvent EventHandler) {
	defer c.Close()

	c.conn.SetReadLimit(c.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if !c.limiter.Allow() {
			continue
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.log.Debugw("malformed frame dropped", "user", c.User.ID)
			continue
		}
		onEvent(c, &env)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(c.opts.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(time.Second))
			return
		case msg := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteDeadline))
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(time.Second)); err != nil {
				return
			}
		}
	}
}
