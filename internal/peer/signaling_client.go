package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pairview/internal/core/domain"
)

// Signaler is the negotiator's view of the signaling channel. Split out so
// negotiation logic can be driven by a fake transport in tests.
type Signaler interface {
	ConnectionID() string
	JoinRoom(roomID string) error
	LeaveRoom(roomID string) error
	SendOffer(roomID string, desc domain.SessionDescription) error
	SendAnswer(roomID string, desc domain.SessionDescription) error
	SendCandidate(roomID string, cand domain.ICECandidate) error
	SendCodeChange(roomID string, text string) error
	EndInterview(roomID string) error
}

// SignalingClient is a WebSocket client for the relay. Inbound envelopes
// are delivered on Events in arrival order; the read loop never blocks on
// handler work.
type SignalingClient struct {
	ws     *websocket.Conn
	connID string

	writeMu sync.Mutex

	Events chan *domain.Envelope

	closeOnce sync.Once
	closed    chan struct{}

	logger *zap.SugaredLogger
}

// Dial connects to the relay and waits for the connected bootstrap event
// that carries the assigned connection id. token may be empty.
func Dial(ctx context.Context, url, token string, logger *zap.SugaredLogger) (*SignalingClient, error) {
	if token != "" {
		url += "?token=" + token
	}

	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling server: %w", err)
	}

	c := &SignalingClient{
		ws:     ws,
		Events: make(chan *domain.Envelope, 32),
		closed: make(chan struct{}),
		logger: logger,
	}

	// The connected event always precedes room traffic.
	deadline := time.Now().Add(10 * time.Second)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	ws.SetReadDeadline(deadline)

	var env domain.Envelope
	if err := ws.ReadJSON(&env); err != nil {
		ws.Close()
		return nil, fmt.Errorf("read bootstrap event: %w", err)
	}
	if env.Type != domain.EventConnected {
		ws.Close()
		return nil, fmt.Errorf("expected %s event, got %s", domain.EventConnected, env.Type)
	}
	var payload domain.ConnectedPayload
	if err := json.Unmarshal(env.Payload, &payload); err != nil || payload.ConnectionID == "" {
		ws.Close()
		return nil, fmt.Errorf("invalid connected payload: %w", err)
	}
	c.connID = payload.ConnectionID
	ws.SetReadDeadline(time.Time{})

	ws.SetPingHandler(func(appData string) error {
		c.writeMu.Lock()
		defer c.writeMu.Unlock()
		return ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	go c.readLoop()

	logger.Infow("signaling connected", "connection_id", c.connID)
	return c, nil
}

func (c *SignalingClient) readLoop() {
	defer close(c.Events)
	for {
		var env domain.Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			select {
			case <-c.closed:
			default:
				c.logger.Infow("signaling read loop ended", "error", err)
			}
			return
		}
		select {
		case c.Events <- &env:
		case <-c.closed:
			return
		}
	}
}

func (c *SignalingClient) ConnectionID() string {
	return c.connID
}

func (c *SignalingClient) send(env *domain.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteJSON(env)
}

func (c *SignalingClient) JoinRoom(roomID string) error {
	return c.send(domain.NewEnvelope(domain.EventJoinRoom, roomID, nil))
}

func (c *SignalingClient) LeaveRoom(roomID string) error {
	return c.send(domain.NewEnvelope(domain.EventLeaveRoom, roomID, nil))
}

func (c *SignalingClient) SendOffer(roomID string, desc domain.SessionDescription) error {
	return c.send(domain.NewEnvelope(domain.EventOffer, roomID, domain.DescriptionPayload{Description: desc}))
}

func (c *SignalingClient) SendAnswer(roomID string, desc domain.SessionDescription) error {
	return c.send(domain.NewEnvelope(domain.EventAnswer, roomID, domain.DescriptionPayload{Description: desc}))
}

func (c *SignalingClient) SendCandidate(roomID string, cand domain.ICECandidate) error {
	return c.send(domain.NewEnvelope(domain.EventICECandidate, roomID, domain.CandidatePayload{Candidate: cand}))
}

func (c *SignalingClient) SendCodeChange(roomID string, text string) error {
	return c.send(domain.NewEnvelope(domain.EventCodeChange, roomID, domain.CodeChangePayload{Change: text}))
}

func (c *SignalingClient) EndInterview(roomID string) error {
	return c.send(domain.NewEnvelope(domain.EventEndInterview, roomID, nil))
}

// Close tears down the socket. The Events channel closes once the read
// loop observes the closed connection.
func (c *SignalingClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
