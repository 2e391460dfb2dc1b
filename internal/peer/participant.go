package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"pairview/internal/core/domain"
)

// ParticipantConfig wires a headless participant into one room.
type ParticipantConfig struct {
	ServerURL  string
	Token      string
	RoomID     string
	ICEServers []webrtc.ICEServer
	Negotiator NegotiatorOptions

	// CodeDebounce coalesces local editor keystrokes before broadcast.
	// Zero means the editor default.
	CodeDebounce time.Duration
	// GateCheckInterval is how long to wait before retrying a join that
	// was rejected because the session window has not opened yet.
	GateCheckInterval time.Duration
}

// Participant is a headless room member: it joins, negotiates a peer
// session, streams synthetic media and mirrors the shared editor. Used
// for load checks and end-to-end verification against a live relay.
type Participant struct {
	cfg    ParticipantConfig
	client *SignalingClient
	signal Signaler
	pc     *webrtc.PeerConnection
	neg    *Negotiator
	media  *Media
	editor *Editor
	role   *Role
	logger *zap.SugaredLogger
}

// NewParticipant dials the relay and prepares the peer connection. Run
// drives the session.
func NewParticipant(ctx context.Context, cfg ParticipantConfig, logger *zap.SugaredLogger) (*Participant, error) {
	client, err := Dial(ctx, cfg.ServerURL, cfg.Token, logger)
	if err != nil {
		return nil, err
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.ICEServers})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	media, err := NewMedia(logger)
	if err != nil {
		client.Close()
		pc.Close()
		return nil, err
	}

	role := NewRole(client.ConnectionID())
	neg := NewNegotiator(pc, client, role, cfg.RoomID, cfg.Negotiator, logger)

	p := &Participant{
		cfg:    cfg,
		client: client,
		signal: client,
		pc:     pc,
		neg:    neg,
		media:  media,
		editor: NewEditor(client, cfg.RoomID, cfg.CodeDebounce, logger),
		role:   role,
		logger: logger,
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		init := cand.ToJSON()
		if err := client.SendCandidate(cfg.RoomID, domain.ICECandidate{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		}); err != nil {
			logger.Warnw("candidate send failed", "error", err)
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		logger.Infow("peer connection state", "state", s.String())
		neg.HandleConnectionStateChange(s)
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		logger.Infow("remote track", "kind", track.Kind().String(), "id", track.ID())
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := track.Read(buf); err != nil {
					return
				}
			}
		}()
	})

	return p, nil
}

// Run joins the room and processes relay events until the session ends
// or ctx is cancelled.
func (p *Participant) Run(ctx context.Context) error {
	p.neg.SetState(StateAcquiringMedia)
	if err := p.media.Attach(ctx, p.pc); err != nil {
		return err
	}

	if err := p.signal.JoinRoom(p.cfg.RoomID); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			p.signal.LeaveRoom(p.cfg.RoomID)
			return ctx.Err()
		case env, ok := <-p.client.Events:
			if !ok {
				return fmt.Errorf("signaling connection lost")
			}
			done, err := p.handleEvent(ctx, env)
			if err != nil {
				p.logger.Warnw("event handling failed", "type", env.Type, "error", err)
			}
			if done {
				return nil
			}
		}
	}
}

func (p *Participant) handleEvent(ctx context.Context, env *domain.Envelope) (bool, error) {
	switch env.Type {
	case domain.EventRoomState:
		var payload domain.RoomSnapshot
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return false, err
		}
		p.role.LockFromList(payload.Members)
		p.logger.Infow("room state", "members", payload.Members, "polite", p.role.Polite())

	case domain.EventExistingUsers:
		var payload domain.ExistingUsersPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return false, err
		}
		if len(payload.ExistingUserIDs) == 1 {
			p.role.LockFromPeer(payload.ExistingUserIDs[0])
		}

	case domain.EventUserJoined:
		var payload domain.UserJoinedPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return false, err
		}
		p.role.LockFromPeer(payload.UserID)

	case domain.EventInitiateOffer:
		return false, p.neg.HandleInitiateOffer(ctx)

	case domain.EventOffer:
		var payload domain.DescriptionPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return false, err
		}
		return false, p.neg.HandleOffer(payload.Description, payload.SenderID)

	case domain.EventAnswer:
		var payload domain.DescriptionPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return false, err
		}
		return false, p.neg.HandleAnswer(payload.Description, payload.SenderID)

	case domain.EventICECandidate:
		var payload domain.CandidatePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return false, err
		}
		return false, p.neg.HandleCandidate(payload.Candidate)

	case domain.EventUserLeft:
		// Peer dropped; keep waiting in the room for a rejoin. A fresh
		// initiate-offer arrives when they come back.
		p.logger.Infow("peer left, waiting")
		return false, p.neg.HandlePeerLeft()

	case domain.EventInterviewEnded:
		p.logger.Infow("interview ended by server")
		return true, nil

	case domain.EventRoomFull:
		return true, fmt.Errorf("room is full")

	case domain.EventCodeChange:
		var payload domain.CodeChangePayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return false, err
		}
		p.editor.ApplyRemote(payload.Change)

	case domain.EventError:
		var payload domain.ErrorPayload
		if err := json.Unmarshal(env.Payload, &payload); err != nil {
			return false, err
		}
		// Before the window opens the seat is not lost, just early: keep
		// the socket and re-knock on the gate interval.
		if payload.Code == domain.ErrCodeWindowNotOpen && p.cfg.GateCheckInterval > 0 {
			p.logger.Infow("session window not open, retrying join",
				"room_id", p.cfg.RoomID, "retry_in", p.cfg.GateCheckInterval)
			time.AfterFunc(p.cfg.GateCheckInterval, func() {
				if err := p.signal.JoinRoom(p.cfg.RoomID); err != nil {
					p.logger.Warnw("join retry failed", "error", err)
				}
			})
			return false, nil
		}
		return true, fmt.Errorf("relay error: %s", payload.Message)
	}
	return false, nil
}

// Editor exposes the shared code buffer.
func (p *Participant) Editor() *Editor { return p.editor }

// Media exposes the local track toggles.
func (p *Participant) Media() *Media { return p.media }

// Close tears down the peer session and the signaling socket.
func (p *Participant) Close() {
	p.editor.Close()
	p.neg.Close()
	p.client.Close()
}
