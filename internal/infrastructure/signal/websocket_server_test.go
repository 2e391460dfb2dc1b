package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"pairview/internal/core/domain"
	"pairview/internal/core/ports"
	"pairview/internal/core/services"
	"pairview/internal/infrastructure/repositories/memory"
)

func newTestRelay(t *testing.T, lifecycle ports.LifecycleService) *httptest.Server {
	t.Helper()

	opts := DefaultOptions()
	opts.PingInterval = 100 * time.Millisecond
	opts.PongTimeout = time.Second

	srv := NewWebSocketServer(memory.NewRoomStore(), lifecycle, nil, nil, nil, opts, zaptest.NewLogger(t).Sugar())
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	t.Cleanup(func() {
		srv.Shutdown()
		ts.Close()
	})
	return ts
}

type testClient struct {
	t  *testing.T
	ws *websocket.Conn
	id string
}

func dialTestClient(t *testing.T, ts *httptest.Server) *testClient {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	c := &testClient{t: t, ws: ws}

	env := c.waitFor(domain.EventConnected)
	var payload domain.ConnectedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	require.NotEmpty(t, payload.ConnectionID)
	c.id = payload.ConnectionID
	return c
}

func (c *testClient) send(env *domain.Envelope) {
	c.t.Helper()
	require.NoError(c.t, c.ws.WriteJSON(env))
}

func (c *testClient) join(roomID string) {
	c.send(domain.NewEnvelope(domain.EventJoinRoom, roomID, nil))
}

// waitFor reads envelopes until one of the wanted type arrives, failing
// the test after a deadline. Unrelated events are skipped.
func (c *testClient) waitFor(want domain.EventType) *domain.Envelope {
	c.t.Helper()
	c.ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		var env domain.Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			c.t.Fatalf("waiting for %s: %v", want, err)
		}
		if env.Type == want {
			return &env
		}
	}
}

// expectNothing asserts no envelope of the given type arrives within the
// window.
func (c *testClient) expectNothing(unwanted domain.EventType, window time.Duration) {
	c.t.Helper()
	c.ws.SetReadDeadline(time.Now().Add(window))
	for {
		var env domain.Envelope
		if err := c.ws.ReadJSON(&env); err != nil {
			return
		}
		if env.Type == unwanted {
			c.t.Fatalf("received unexpected %s event", unwanted)
		}
	}
}

// newOpenLifecycle builds a lifecycle service over one session whose
// window is currently open.
func newOpenLifecycle(t *testing.T, roomID string) (*services.LifecycleService, ports.SessionRepository) {
	t.Helper()
	repo := memory.NewSessionRepository()
	require.NoError(t, repo.Put(context.Background(), &domain.Session{
		ID:              domain.SessionID(roomID),
		ScheduledStart:  time.Now().Add(-5 * time.Minute),
		DurationMinutes: 60,
		Status:          domain.StatusScheduled,
	}))
	return services.NewLifecycleService(repo, nil, 10*time.Millisecond, zaptest.NewLogger(t).Sugar()), repo
}

func sessionStatus(t *testing.T, repo ports.SessionRepository, roomID string) domain.LifecycleStatus {
	t.Helper()
	session, err := repo.Get(context.Background(), domain.SessionID(roomID))
	require.NoError(t, err)
	return session.Status
}

func TestRelay_FirstJoinerWaitsAlone(t *testing.T) {
	ts := newTestRelay(t, nil)
	a := dialTestClient(t, ts)
	a.join("room-1")

	env := a.waitFor(domain.EventExistingUsers)
	var existing domain.ExistingUsersPayload
	require.NoError(t, json.Unmarshal(env.Payload, &existing))
	assert.Empty(t, existing.ExistingUserIDs)

	env = a.waitFor(domain.EventRoomState)
	var state domain.RoomSnapshot
	require.NoError(t, json.Unmarshal(env.Payload, &state))
	assert.Equal(t, []string{a.id}, state.Members)

	// Alone in the room there is nobody to negotiate with.
	a.expectNothing(domain.EventInitiateOffer, 200*time.Millisecond)
}

func TestRelay_SecondJoinTriggersInitiateOffer(t *testing.T) {
	ts := newTestRelay(t, nil)

	a := dialTestClient(t, ts)
	a.join("room-1")
	a.waitFor(domain.EventRoomState)

	b := dialTestClient(t, ts)
	b.join("room-1")

	// The joiner learns who is already present.
	env := b.waitFor(domain.EventExistingUsers)
	var existing domain.ExistingUsersPayload
	require.NoError(t, json.Unmarshal(env.Payload, &existing))
	assert.Equal(t, []string{a.id}, existing.ExistingUserIDs)

	// The pre-existing member, not the joiner, is told to start the offer.
	env = a.waitFor(domain.EventUserJoined)
	var joined domain.UserJoinedPayload
	require.NoError(t, json.Unmarshal(env.Payload, &joined))
	assert.Equal(t, b.id, joined.UserID)
	assert.Equal(t, 2, joined.RoomSize)

	a.waitFor(domain.EventInitiateOffer)
	b.expectNothing(domain.EventInitiateOffer, 200*time.Millisecond)
}

func TestRelay_ThirdJoinerRejected(t *testing.T) {
	ts := newTestRelay(t, nil)

	a := dialTestClient(t, ts)
	a.join("room-1")
	a.waitFor(domain.EventRoomState)

	b := dialTestClient(t, ts)
	b.join("room-1")
	b.waitFor(domain.EventRoomState)
	a.waitFor(domain.EventUserJoined)

	c := dialTestClient(t, ts)
	c.join("room-1")
	c.waitFor(domain.EventRoomFull)

	// The intruder must not leak into membership broadcasts.
	a.expectNothing(domain.EventUserJoined, 200*time.Millisecond)
}

func TestRelay_OfferRelayedOnlyToOtherMember(t *testing.T) {
	ts := newTestRelay(t, nil)

	a := dialTestClient(t, ts)
	a.join("room-1")
	a.waitFor(domain.EventRoomState)
	b := dialTestClient(t, ts)
	b.join("room-1")
	b.waitFor(domain.EventRoomState)

	a.send(domain.NewEnvelope(domain.EventOffer, "room-1", domain.DescriptionPayload{
		Description: domain.SessionDescription{Type: "offer", SDP: "v=0 test"},
	}))

	env := b.waitFor(domain.EventOffer)
	var payload domain.DescriptionPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "v=0 test", payload.Description.SDP)
	assert.Equal(t, a.id, payload.SenderID, "relay must stamp the sender id")

	a.expectNothing(domain.EventOffer, 200*time.Millisecond)
}

func TestRelay_PerSenderOrderPreserved(t *testing.T) {
	ts := newTestRelay(t, nil)

	a := dialTestClient(t, ts)
	a.join("room-1")
	a.waitFor(domain.EventRoomState)
	b := dialTestClient(t, ts)
	b.join("room-1")
	b.waitFor(domain.EventRoomState)

	for i := 0; i < 5; i++ {
		a.send(domain.NewEnvelope(domain.EventICECandidate, "room-1", domain.CandidatePayload{
			Candidate: domain.ICECandidate{Candidate: "candidate:" + string(rune('0'+i))},
		}))
	}

	for i := 0; i < 5; i++ {
		env := b.waitFor(domain.EventICECandidate)
		var payload domain.CandidatePayload
		require.NoError(t, json.Unmarshal(env.Payload, &payload))
		assert.Equal(t, "candidate:"+string(rune('0'+i)), payload.Candidate.Candidate)
	}
}

func TestRelay_CodeChangeForwarded(t *testing.T) {
	ts := newTestRelay(t, nil)

	a := dialTestClient(t, ts)
	a.join("room-1")
	a.waitFor(domain.EventRoomState)
	b := dialTestClient(t, ts)
	b.join("room-1")
	b.waitFor(domain.EventRoomState)

	b.send(domain.NewEnvelope(domain.EventCodeChange, "room-1", domain.CodeChangePayload{
		Change: "package main",
	}))

	env := a.waitFor(domain.EventCodeChange)
	var payload domain.CodeChangePayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, "package main", payload.Change)
	assert.Equal(t, b.id, payload.SenderID)
}

func TestRelay_DisconnectNotifiesRemainderAndFreesSeat(t *testing.T) {
	lifecycle, repo := newOpenLifecycle(t, "room-1")
	ts := newTestRelay(t, lifecycle)

	a := dialTestClient(t, ts)
	a.join("room-1")
	a.waitFor(domain.EventRoomState)
	b := dialTestClient(t, ts)
	b.join("room-1")
	b.waitFor(domain.EventRoomState)
	a.waitFor(domain.EventInitiateOffer)

	// Abrupt drop, no leave-room message.
	a.ws.Close()

	env := b.waitFor(domain.EventUserLeft)
	var left domain.UserLeftPayload
	require.NoError(t, json.Unmarshal(env.Payload, &left))
	assert.Equal(t, a.id, left.UserID)

	// A socket drop must not finalize the session; the other side waits.
	assert.Equal(t, domain.StatusOngoing, sessionStatus(t, repo, "room-1"))

	// The seat is free again and a rejoin restarts negotiation, with the
	// waiting member directed to offer.
	a2 := dialTestClient(t, ts)
	a2.join("room-1")
	a2.waitFor(domain.EventRoomState)
	b.waitFor(domain.EventInitiateOffer)
}

func TestRelay_ExplicitLeaveCompletesSession(t *testing.T) {
	lifecycle, repo := newOpenLifecycle(t, "room-1")
	ts := newTestRelay(t, lifecycle)

	a := dialTestClient(t, ts)
	a.join("room-1")
	a.waitFor(domain.EventRoomState)

	a.send(domain.NewEnvelope(domain.EventLeaveRoom, "room-1", nil))

	require.Eventually(t, func() bool {
		return sessionStatus(t, repo, "room-1") == domain.StatusCompleted
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRelay_EndInterviewBroadcastsToEveryone(t *testing.T) {
	lifecycle, repo := newOpenLifecycle(t, "room-1")
	ts := newTestRelay(t, lifecycle)

	a := dialTestClient(t, ts)
	a.join("room-1")
	a.waitFor(domain.EventRoomState)
	b := dialTestClient(t, ts)
	b.join("room-1")
	b.waitFor(domain.EventRoomState)

	a.send(domain.NewEnvelope(domain.EventEndInterview, "room-1", nil))

	// Sender included: both sides run the same teardown.
	a.waitFor(domain.EventInterviewEnded)
	b.waitFor(domain.EventInterviewEnded)

	require.Eventually(t, func() bool {
		return sessionStatus(t, repo, "room-1") == domain.StatusCompleted
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRelay_JoinBeforeWindowRejected(t *testing.T) {
	repo := memory.NewSessionRepository()
	require.NoError(t, repo.Put(context.Background(), &domain.Session{
		ID:              "room-1",
		ScheduledStart:  time.Now().Add(time.Hour),
		DurationMinutes: 60,
		Status:          domain.StatusScheduled,
	}))
	lifecycle := services.NewLifecycleService(repo, nil, 10*time.Millisecond, zaptest.NewLogger(t).Sugar())
	ts := newTestRelay(t, lifecycle)

	a := dialTestClient(t, ts)
	a.join("room-1")

	env := a.waitFor(domain.EventError)
	var payload domain.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, domain.ErrCodeWindowNotOpen, payload.Code)
	assert.Contains(t, payload.Message, "not started")
	assert.Equal(t, domain.StatusScheduled, sessionStatus(t, repo, "room-1"))
}

func TestRelay_JoinAfterWindowMarksNotAttended(t *testing.T) {
	repo := memory.NewSessionRepository()
	require.NoError(t, repo.Put(context.Background(), &domain.Session{
		ID:              "room-1",
		ScheduledStart:  time.Now().Add(-2 * time.Hour),
		DurationMinutes: 60,
		Status:          domain.StatusScheduled,
	}))
	lifecycle := services.NewLifecycleService(repo, nil, 10*time.Millisecond, zaptest.NewLogger(t).Sugar())
	ts := newTestRelay(t, lifecycle)

	a := dialTestClient(t, ts)
	a.join("room-1")

	env := a.waitFor(domain.EventError)
	var payload domain.ErrorPayload
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, domain.ErrCodeWindowClosed, payload.Code)
	assert.Contains(t, payload.Message, "ended")

	// Nobody ever made it in: the record settles as not attended.
	require.Eventually(t, func() bool {
		return sessionStatus(t, repo, "room-1") == domain.StatusNotAttended
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRelay_UnknownSessionRejected(t *testing.T) {
	lifecycle, _ := newOpenLifecycle(t, "room-1")
	ts := newTestRelay(t, lifecycle)

	a := dialTestClient(t, ts)
	a.join("no-such-session")
	a.waitFor(domain.EventError)
}

func TestRelay_JoinMarksSessionOngoing(t *testing.T) {
	lifecycle, repo := newOpenLifecycle(t, "room-1")
	ts := newTestRelay(t, lifecycle)

	a := dialTestClient(t, ts)
	a.join("room-1")
	a.waitFor(domain.EventRoomState)

	require.Eventually(t, func() bool {
		return sessionStatus(t, repo, "room-1") == domain.StatusOngoing
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRelay_ForwardOutsideRoomDropped(t *testing.T) {
	ts := newTestRelay(t, nil)

	a := dialTestClient(t, ts)
	b := dialTestClient(t, ts)
	b.join("room-1")
	b.waitFor(domain.EventRoomState)

	// a never joined room-1; its traffic must not reach b.
	a.send(domain.NewEnvelope(domain.EventOffer, "room-1", domain.DescriptionPayload{
		Description: domain.SessionDescription{Type: "offer", SDP: "v=0 forged"},
	}))

	b.expectNothing(domain.EventOffer, 200*time.Millisecond)
}

func TestRelay_MalformedMessageIgnored(t *testing.T) {
	ts := newTestRelay(t, nil)

	a := dialTestClient(t, ts)
	a.join("room-1")
	a.waitFor(domain.EventRoomState)

	// Unknown type, then invalid payload: the socket must survive both.
	require.NoError(t, a.ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus","roomId":"room-1"}`)))
	require.NoError(t, a.ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"offer","roomId":"room-1","payload":{}}`)))

	b := dialTestClient(t, ts)
	b.join("room-1")
	a.waitFor(domain.EventUserJoined)
}
