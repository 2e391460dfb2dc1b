package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"pairview/internal/core/domain"
	"pairview/internal/core/ports"
	"pairview/internal/infrastructure/middleware"
	"pairview/internal/infrastructure/monitoring"
	"pairview/pkg/tracing"
	"pairview/pkg/utils"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Options tune the relay's socket handling.
type Options struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	SendBuffer     int
	MaxMessageSize int64
	// MessagesPerSecond and MessageBurst bound per-socket inbound traffic.
	// Zero disables the limit.
	MessagesPerSecond float64
	MessageBurst      int
}

func DefaultOptions() Options {
	return Options{
		PingInterval:   25 * time.Second,
		PongTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Second,
		SendBuffer:     32,
		MaxMessageSize: 64 * 1024,
	}
}

// WebSocketServer is the signaling relay: it tracks room membership through
// the RoomStore and forwards negotiation traffic between exactly the
// members of a room, never interpreting payloads beyond stamping the
// sender id.
type WebSocketServer struct {
	rooms       ports.RoomStore
	lifecycle   ports.LifecycleService
	verifier    *middleware.TokenVerifier
	connLimiter *middleware.RateLimiterStore
	metrics     *monitoring.PrometheusCollector
	opts        Options

	mu         sync.RWMutex
	conns      map[string]*connection
	everJoined map[string]bool

	monitorMu sync.Mutex
	monitors  map[string]context.CancelFunc
	filledAt  map[string]time.Time

	ctx    context.Context
	cancel context.CancelFunc

	logger *zap.SugaredLogger
}

func NewWebSocketServer(rooms ports.RoomStore, lifecycle ports.LifecycleService, verifier *middleware.TokenVerifier, connLimiter *middleware.RateLimiterStore, metrics *monitoring.PrometheusCollector, opts Options, logger *zap.SugaredLogger) *WebSocketServer {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebSocketServer{
		rooms:       rooms,
		lifecycle:   lifecycle,
		verifier:    verifier,
		connLimiter: connLimiter,
		metrics:     metrics,
		opts:        opts,
		conns:       make(map[string]*connection),
		everJoined:  make(map[string]bool),
		monitors:    make(map[string]context.CancelFunc),
		filledAt:    make(map[string]time.Time),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger,
	}
}

// Shutdown stops lifecycle monitors and closes every socket.
func (s *WebSocketServer) Shutdown() {
	s.cancel()

	s.mu.Lock()
	for _, c := range s.conns {
		c.close()
		c.ws.Close()
	}
	s.mu.Unlock()
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.connLimiter != nil && !s.connLimiter.Allow(middleware.ClientIP(r)) {
		http.Error(w, "too many connections", http.StatusTooManyRequests)
		return
	}

	var claims *middleware.RoomClaims
	if s.verifier != nil {
		if token := r.URL.Query().Get("token"); token != "" {
			parsed, err := s.verifier.Verify(token)
			if err != nil {
				s.logger.Warnw("rejecting socket with invalid room token", "error", err)
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			claims = parsed
		}
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	var msgLimiter *rate.Limiter
	if s.opts.MessagesPerSecond > 0 {
		msgLimiter = rate.NewLimiter(rate.Limit(s.opts.MessagesPerSecond), s.opts.MessageBurst)
	}

	c := newConnection(utils.GenerateConnectionID(), ws, claims, s.opts.SendBuffer, msgLimiter)

	s.mu.Lock()
	s.conns[c.id] = c
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SocketConnected()
	}

	s.logger.Infow("socket connected", "connection_id", c.id)

	go c.writePump(s.opts.WriteTimeout, s.logger)

	// The client learns its assigned id before any room traffic; role
	// computation depends on it.
	c.enqueue(domain.NewEnvelope(domain.EventConnected, "", domain.ConnectedPayload{ConnectionID: c.id}))

	if s.opts.MaxMessageSize > 0 {
		ws.SetReadLimit(s.opts.MaxMessageSize)
	}
	ws.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.opts.PingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan *domain.Envelope, 10)
	errorChan := make(chan error, 1)

	go func() {
		for {
			var env domain.Envelope
			if err := ws.ReadJSON(&env); err != nil {
				errorChan <- err
				return
			}
			ws.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
			messageChan <- &env
		}
	}()

	for {
		select {
		case env := <-messageChan:
			s.handleMessage(c, env)

		case <-pingTicker.C:
			deadline := time.Now().Add(s.opts.WriteTimeout)
			if err := ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				s.logger.Debugw("ping failed", "connection_id", c.id, "error", err)
				goto cleanup
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("read error", "connection_id", c.id, "error", err)
			}
			goto cleanup

		case <-c.done:
			goto cleanup

		case <-s.ctx.Done():
			goto cleanup
		}
	}

cleanup:
	// Abrupt disconnects are implicit leaves: the remaining member learns
	// immediately instead of waiting on a connection-state timeout. The
	// session itself is NOT finalized here; the other participant may keep
	// waiting and the lifecycle monitor settles the status at window end.
	s.removeFromRoom(c, false)

	c.close()
	s.mu.Lock()
	delete(s.conns, c.id)
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.SocketDisconnected()
	}

	s.logger.Infow("socket disconnected", "connection_id", c.id)
}

// handleMessage validates and dispatches one inbound envelope. Malformed
// traffic is logged and dropped; nothing a client sends can take the relay
// down.
func (s *WebSocketServer) handleMessage(c *connection, env *domain.Envelope) {
	if !c.allowMessage() {
		s.drop(c, "rate-limited", nil)
		return
	}
	if err := env.ValidateInbound(); err != nil {
		s.drop(c, "invalid", err)
		return
	}

	tracer := tracing.Tracer("pairview/signal")
	ctx, span := tracer.Start(s.ctx, "signal."+string(env.Type))
	span.SetAttributes(
		attribute.String("room_id", env.RoomID),
		attribute.String("connection_id", c.id),
	)
	defer span.End()

	switch env.Type {
	case domain.EventJoinRoom:
		s.handleJoinRoom(ctx, c, env.RoomID)
	case domain.EventLeaveRoom:
		s.handleLeaveRoom(ctx, c, env.RoomID)
	case domain.EventOffer, domain.EventAnswer, domain.EventICECandidate, domain.EventCodeChange:
		s.forward(ctx, c, env)
	case domain.EventEndInterview:
		s.handleEndInterview(ctx, c, env.RoomID)
	}
}

func (s *WebSocketServer) handleJoinRoom(ctx context.Context, c *connection, roomID string) {
	if c.roomID == roomID {
		return
	}
	if c.roomID != "" {
		s.drop(c, "already-in-room", nil)
		return
	}

	now := utils.Now()

	// The time window gates entry when the relay knows about the session.
	// An unknown room id is a stale or forged link: logged and rejected.
	if s.lifecycle != nil {
		_, err := s.lifecycle.Authorize(ctx, domain.SessionID(roomID), now)
		switch {
		case errors.Is(err, domain.ErrSessionNotFound):
			s.rejectJoin(c, roomID, domain.ErrCodeUnknownSession, "session not found")
			return
		case errors.Is(err, domain.ErrWindowNotOpen):
			s.rejectJoin(c, roomID, domain.ErrCodeWindowNotOpen, "session has not started yet")
			return
		case errors.Is(err, domain.ErrWindowClosed):
			// Settle the record for a too-late arrival.
			if s.wasJoined(roomID) {
				s.lifecycle.Complete(ctx, domain.SessionID(roomID), now)
			} else {
				s.lifecycle.MarkNotAttended(ctx, domain.SessionID(roomID), now)
			}
			s.rejectJoin(c, roomID, domain.ErrCodeWindowClosed, "session window has ended")
			return
		case err != nil:
			s.rejectJoin(c, roomID, domain.ErrCodeGateError, "session lookup failed")
			return
		}
	}

	members, err := s.rooms.Join(ctx, roomID, c.id)
	if err != nil {
		if errors.Is(err, domain.ErrRoomFull) {
			if s.metrics != nil {
				s.metrics.RecordJoinRejection("room-full")
			}
			c.enqueue(domain.NewEnvelope(domain.EventRoomFull, roomID, nil))
			s.logger.Infow("join rejected, room full", "room_id", roomID, "connection_id", c.id)
			return
		}
		s.logger.Errorw("room join failed", "room_id", roomID, "connection_id", c.id, "error", err)
		s.drop(c, "store-error", err)
		return
	}

	c.roomID = roomID
	c.joined = true
	s.setEverJoined(roomID)

	if s.metrics != nil {
		s.metrics.RecordJoin()
		s.updateRoomGauge(ctx)
	}

	existing := make([]string, 0, len(members))
	for _, id := range members {
		if id != c.id {
			existing = append(existing, id)
		}
	}

	s.logger.Infow("joined room", "room_id", roomID, "connection_id", c.id, "members", members)

	// Bootstrap the joiner, then give everyone the authoritative member
	// list for role computation.
	c.enqueue(domain.NewEnvelope(domain.EventExistingUsers, roomID, domain.ExistingUsersPayload{
		RoomSize:        len(existing),
		ExistingUserIDs: existing,
	}))
	s.broadcastRoomState(roomID, members)

	for _, id := range existing {
		s.sendTo(id, domain.NewEnvelope(domain.EventUserJoined, roomID, domain.UserJoinedPayload{
			UserID:   c.id,
			RoomSize: len(members),
		}))
	}

	// The pre-existing member initiates the offer. Server-driven kickoff
	// removes any client-side race about who goes first.
	if len(existing) == 1 {
		s.logger.Infow("directing existing peer to initiate offer",
			"room_id", roomID, "initiator", existing[0])
		s.sendTo(existing[0], domain.NewEnvelope(domain.EventInitiateOffer, roomID, domain.InitiateOfferPayload{
			RoomID: roomID,
		}))
		s.markRoomFilled(roomID)
	}

	if s.lifecycle != nil {
		if err := s.lifecycle.MarkStarted(ctx, domain.SessionID(roomID), now); err != nil {
			s.logger.Warnw("failed to mark session started", "room_id", roomID, "error", err)
		}
		s.ensureMonitor(roomID)
	}
}

func (s *WebSocketServer) handleLeaveRoom(ctx context.Context, c *connection, roomID string) {
	if c.roomID != roomID {
		s.drop(c, "not-in-room", domain.ErrNotInRoom)
		return
	}
	hadJoined := c.joined
	s.removeFromRoom(c, true)

	// An explicit leave by a participant who had joined finalizes the
	// session; an abrupt socket drop does not.
	if s.lifecycle != nil && hadJoined {
		if err := s.lifecycle.Complete(ctx, domain.SessionID(roomID), utils.Now()); err != nil {
			s.logger.Warnw("failed to complete session on leave", "room_id", roomID, "error", err)
		}
	}
}

// forward relays negotiation and editor traffic to every other room member
// with the sender id stamped in, preserving per-sender emission order.
func (s *WebSocketServer) forward(ctx context.Context, c *connection, env *domain.Envelope) {
	if c.roomID != env.RoomID {
		s.drop(c, "not-in-room", domain.ErrNotInRoom)
		return
	}

	members, err := s.rooms.Members(ctx, env.RoomID)
	if err != nil {
		s.logger.Errorw("member lookup failed", "room_id", env.RoomID, "error", err)
		return
	}

	out, err := stampSender(env, c.id)
	if err != nil {
		s.drop(c, "invalid", err)
		return
	}

	for _, id := range members {
		if id == c.id {
			continue
		}
		s.sendTo(id, out)
	}

	if s.metrics != nil {
		s.metrics.RecordRelayed(env.Type)
	}
}

func (s *WebSocketServer) handleEndInterview(ctx context.Context, c *connection, roomID string) {
	if c.roomID != roomID {
		s.drop(c, "not-in-room", domain.ErrNotInRoom)
		return
	}
	if !c.interviewer() {
		s.drop(c, "not-privileged", nil)
		c.enqueue(domain.NewEnvelope(domain.EventError, roomID, domain.ErrorPayload{
			Message: "only the interviewer can end the session for all",
		}))
		return
	}

	members, err := s.rooms.Members(ctx, roomID)
	if err != nil {
		s.logger.Errorw("member lookup failed", "room_id", roomID, "error", err)
		return
	}

	s.logger.Infow("interview ended", "room_id", roomID, "ended_by", c.id)

	// Everyone, sender included, runs the same teardown path.
	for _, id := range members {
		s.sendTo(id, domain.NewEnvelope(domain.EventInterviewEnded, roomID, nil))
	}

	if s.lifecycle != nil {
		if err := s.lifecycle.Complete(ctx, domain.SessionID(roomID), utils.Now()); err != nil {
			s.logger.Warnw("failed to complete session", "room_id", roomID, "error", err)
		}
	}
}

// removeFromRoom takes the connection out of its room and notifies the
// remainder. explicit distinguishes a leave-room message from a socket
// drop; membership handling is identical either way.
func (s *WebSocketServer) removeFromRoom(c *connection, explicit bool) {
	roomID := c.roomID
	if roomID == "" {
		return
	}
	c.roomID = ""

	members, err := s.rooms.Leave(context.Background(), roomID, c.id)
	if err != nil {
		s.logger.Errorw("room leave failed", "room_id", roomID, "connection_id", c.id, "error", err)
		return
	}

	s.logger.Infow("left room", "room_id", roomID, "connection_id", c.id, "explicit", explicit)

	for _, id := range members {
		s.sendTo(id, domain.NewEnvelope(domain.EventUserLeft, roomID, domain.UserLeftPayload{UserID: c.id}))
	}
	s.broadcastRoomState(roomID, members)

	s.recordRoomDrained(roomID)
	if s.metrics != nil {
		s.updateRoomGauge(context.Background())
	}
}

func (s *WebSocketServer) broadcastRoomState(roomID string, members []string) {
	env := domain.NewEnvelope(domain.EventRoomState, roomID, domain.RoomSnapshot{
		RoomID:  roomID,
		Members: members,
	})
	for _, id := range members {
		s.sendTo(id, env)
	}
}

func (s *WebSocketServer) sendTo(connID string, env *domain.Envelope) {
	s.mu.RLock()
	c, exists := s.conns[connID]
	s.mu.RUnlock()
	if !exists {
		return
	}
	c.enqueue(env)
}

func (s *WebSocketServer) drop(c *connection, reason string, err error) {
	if s.metrics != nil {
		s.metrics.RecordDropped(reason)
	}
	s.logger.Debugw("dropped message", "connection_id", c.id, "reason", reason, "error", err)
}

func (s *WebSocketServer) rejectJoin(c *connection, roomID, reason, message string) {
	if s.metrics != nil {
		s.metrics.RecordJoinRejection(reason)
	}
	s.logger.Infow("join rejected", "room_id", roomID, "connection_id", c.id, "reason", reason)
	c.enqueue(domain.NewEnvelope(domain.EventError, roomID, domain.ErrorPayload{Code: reason, Message: message}))
}

func (s *WebSocketServer) setEverJoined(roomID string) {
	s.mu.Lock()
	s.everJoined[roomID] = true
	s.mu.Unlock()
}

func (s *WebSocketServer) wasJoined(roomID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.everJoined[roomID]
}

func (s *WebSocketServer) updateRoomGauge(ctx context.Context) {
	if n, err := s.rooms.RoomCount(ctx); err == nil {
		s.metrics.SetRoomsActive(n)
	}
}

func (s *WebSocketServer) markRoomFilled(roomID string) {
	s.monitorMu.Lock()
	if _, ok := s.filledAt[roomID]; !ok {
		s.filledAt[roomID] = time.Now()
	}
	s.monitorMu.Unlock()
}

func (s *WebSocketServer) recordRoomDrained(roomID string) {
	s.monitorMu.Lock()
	filled, ok := s.filledAt[roomID]
	if ok {
		delete(s.filledAt, roomID)
	}
	s.monitorMu.Unlock()
	if ok && s.metrics != nil {
		s.metrics.RecordRoomOccupancy(time.Since(filled))
	}
}

// ensureMonitor starts the window expiry poll for a room exactly once. On
// expiry the remaining members get interview-ended so they tear down and
// leave without any further user action.
func (s *WebSocketServer) ensureMonitor(roomID string) {
	s.monitorMu.Lock()
	defer s.monitorMu.Unlock()
	if _, running := s.monitors[roomID]; running {
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.monitors[roomID] = cancel

	go func() {
		defer func() {
			s.monitorMu.Lock()
			delete(s.monitors, roomID)
			s.monitorMu.Unlock()
		}()

		s.lifecycle.Monitor(ctx, domain.SessionID(roomID),
			func() bool { return s.wasJoined(roomID) },
			func(status domain.LifecycleStatus) {
				members, err := s.rooms.Members(context.Background(), roomID)
				if err != nil {
					s.logger.Warnw("member lookup failed on expiry", "room_id", roomID, "error", err)
					return
				}
				s.logger.Infow("session window expired", "room_id", roomID, "status", status)
				for _, id := range members {
					s.sendTo(id, domain.NewEnvelope(domain.EventInterviewEnded, roomID, nil))
				}
			})
	}()
}

// HealthCheck reports relay liveness and connection counts.
func (s *WebSocketServer) HealthCheck(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	connectionCount := len(s.conns)
	s.mu.RUnlock()

	response := map[string]interface{}{
		"status":      "healthy",
		"timestamp":   time.Now().Unix(),
		"connections": connectionCount,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
