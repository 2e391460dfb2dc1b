package signal

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pairview/internal/core/domain"
	"pairview/internal/infrastructure/middleware"
)

// connection wraps one signaling socket. Outbound traffic goes through a
// single buffered channel drained by one writer goroutine, which keeps
// delivery serialized and in enqueue order per recipient.
type connection struct {
	id     string
	ws     *websocket.Conn
	claims *middleware.RoomClaims

	send chan *domain.Envelope
	done chan struct{}
	once sync.Once

	// roomID and joined are only touched from this connection's reader
	// goroutine and the cleanup path that follows it.
	roomID string
	joined bool

	limiter *rate.Limiter
}

func newConnection(id string, ws *websocket.Conn, claims *middleware.RoomClaims, sendBuffer int, msgLimiter *rate.Limiter) *connection {
	return &connection{
		id:      id,
		ws:      ws,
		claims:  claims,
		send:    make(chan *domain.Envelope, sendBuffer),
		done:    make(chan struct{}),
		limiter: msgLimiter,
	}
}

// enqueue hands an envelope to the write pump. Returns false when the
// connection is already gone; the message is dropped, which is fine since
// the peer is past caring.
func (c *connection) enqueue(env *domain.Envelope) bool {
	select {
	case c.send <- env:
		return true
	case <-c.done:
		return false
	}
}

// close marks the connection dead. Safe to call multiple times.
func (c *connection) close() {
	c.once.Do(func() {
		close(c.done)
	})
}

// writePump drains the send channel onto the socket. It owns all writes to
// the underlying connection except the control pings sent by the read loop,
// which gorilla permits concurrently.
func (c *connection) writePump(writeTimeout time.Duration, logger *zap.SugaredLogger) {
	for {
		select {
		case env := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteJSON(env); err != nil {
				logger.Debugw("write failed, dropping connection",
					"connection_id", c.id, "error", err)
				c.close()
				return
			}
		case <-c.done:
			return
		}
	}
}

// allowMessage applies the per-socket message rate limit.
func (c *connection) allowMessage() bool {
	if c.limiter == nil {
		return true
	}
	return c.limiter.Allow()
}

// interviewer reports whether this socket presented a token carrying the
// interviewer claim. Sockets without tokens are treated as privileged so
// deployments without an external token issuer keep working.
func (c *connection) interviewer() bool {
	if c.claims == nil {
		return true
	}
	return c.claims.Interviewer
}
