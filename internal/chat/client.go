package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"example.com/gatherings/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024
)

// Client is one websocket connection. Frames are queued on a bounded channel
// drained by writePump; until the join snapshot is primed, live frames are
// held in pending instead.
type Client struct {
	conn    *websocket.Conn
	userID  string
	send    chan Frame
	limiter *rate.Limiter
	logger  *log.Logger
	// canPost is set from the comments:write scope; read-only clients may
	// only watch the room.
	canPost bool

	mu      sync.Mutex
	primed  bool
	pending []Frame

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient wraps conn. queueSize bounds both the outbound queue and the
// held-back frames before priming.
func NewClient(conn *websocket.Conn, userID string, queueSize int, limiter *rate.Limiter, logger *log.Logger) *Client {
	if queueSize <= 0 {
		queueSize = 64
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Client{
		conn:    conn,
		userID:  userID,
		send:    make(chan Frame, queueSize),
		limiter: limiter,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Enqueue implements Subscriber.
func (c *Client) Enqueue(frame Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.primed {
		if len(c.pending) >= cap(c.send) {
			return false
		}
		c.pending = append(c.pending, frame)
		return true
	}
	return c.push(frame)
}

// Prime implements Subscriber.
func (c *Client) Prime(snapshot Frame, seen map[string]struct{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.primed {
		return c.push(snapshot)
	}
	if !c.push(snapshot) {
		return false
	}
	for _, frame := range c.pending {
		if _, dup := seen[frame.commentID]; dup && frame.commentID != "" {
			continue
		}
		if !c.push(frame) {
			return false
		}
	}
	c.pending = nil
	c.primed = true
	return true
}

func (c *Client) push(frame Frame) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close terminates the connection. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// readPump processes inbound frames until the connection fails or ctx ends.
func (c *Client) readPump(ctx context.Context, svc *Service) {
	defer func() {
		svc.Disconnect(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var frame Frame
		if err := c.conn.ReadJSON(&frame); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.Enqueue(errorFrame("malformed frame"))
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Printf("chat: read from %s: %v", c.userID, err)
			}
			return
		}
		if ctx.Err() != nil {
			return
		}
		c.handle(ctx, svc, frame)
	}
}

func (c *Client) handle(ctx context.Context, svc *Service, frame Frame) {
	switch frame.Type {
	case FrameSendComment:
		var msg SendComment
		if err := json.Unmarshal(frame.Payload, &msg); err != nil {
			c.Enqueue(errorFrame("invalid SendComment payload"))
			return
		}
		if !c.canPost {
			c.Enqueue(errorFrame("scope comments:write required to post"))
			return
		}
		if c.limiter != nil && !c.limiter.Allow() {
			sendsThrottled.Inc()
			c.Enqueue(errorFrame("rate limit exceeded"))
			return
		}
		res := svc.Send(ctx, c.userID, msg)
		if res.Outcome() != domain.OutcomeSuccess {
			c.Enqueue(errorFrame(res.Message()))
		}
	default:
		c.Enqueue(errorFrame("unknown frame type " + frame.Type))
	}
}

// writePump drains the queue to the socket and keeps the connection alive.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(frame); err != nil {
				c.logger.Printf("chat: write to %s: %v", c.userID, err)
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
