package peer

import (
	"context"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"pairview/internal/core/domain"
)

// State tracks where the peer session is in its life.
type State int

const (
	StateIdle State = iota
	StateAcquiringMedia
	StateNegotiating
	StateConnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAcquiringMedia:
		return "acquiring-media"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// peerConnection is the subset of *webrtc.PeerConnection the negotiator
// drives. Narrowed so negotiation paths can run against a fake.
type peerConnection interface {
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	RemoteDescription() *webrtc.SessionDescription
	SignalingState() webrtc.SignalingState
	ConnectionState() webrtc.PeerConnectionState
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	Close() error
}

// NegotiatorOptions tunes timing. Zero values fall back to the defaults
// used in production.
type NegotiatorOptions struct {
	// StableWait bounds how long a server-directed offer waits for the
	// signaling state to settle before forcing a rollback.
	StableWait time.Duration
	// StablePoll is the interval at which the wait re-checks the state.
	StablePoll time.Duration
}

func (o *NegotiatorOptions) withDefaults() {
	if o.StableWait <= 0 {
		o.StableWait = 3 * time.Second
	}
	if o.StablePoll <= 0 {
		o.StablePoll = 100 * time.Millisecond
	}
}

// Negotiator runs perfect negotiation for one peer session: it reacts to
// relay events, keeps exactly one live description exchange in flight,
// and resolves offer collisions by role.
type Negotiator struct {
	mu sync.Mutex

	pc     peerConnection
	signal Signaler
	role   *Role
	roomID string
	opts   NegotiatorOptions
	logger *zap.SugaredLogger

	state State

	// makingOffer covers the span from CreateOffer until the local
	// description is set, so a collision during that window is detected.
	makingOffer bool
	// settingRemoteAnswer guards against treating our own answer
	// application as a collision.
	settingRemoteAnswer bool

	// pendingCandidates holds candidates that arrived before the remote
	// description. Drained in arrival order.
	pendingCandidates []domain.ICECandidate
}

// NewNegotiator wires a negotiator around an established peer connection.
// The arbiter role must belong to the same connection id as the signaler.
func NewNegotiator(pc peerConnection, signal Signaler, role *Role, roomID string, opts NegotiatorOptions, logger *zap.SugaredLogger) *Negotiator {
	opts.withDefaults()
	return &Negotiator{
		pc:     pc,
		signal: signal,
		role:   role,
		roomID: roomID,
		opts:   opts,
		logger: logger,
		state:  StateIdle,
	}
}

// State reports the current lifecycle state.
func (n *Negotiator) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// SetState moves the lifecycle forward. Closed is terminal.
func (n *Negotiator) SetState(s State) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateClosed {
		return
	}
	n.state = s
}

// HandleInitiateOffer reacts to the relay directing this peer to start
// the exchange. Offers are only ever produced here, never from the
// negotiationneeded callback, so renegotiation storms cannot start.
func (n *Negotiator) HandleInitiateOffer(ctx context.Context) error {
	n.mu.Lock()
	if n.state == StateClosed {
		n.mu.Unlock()
		return nil
	}
	n.state = StateNegotiating
	n.mu.Unlock()

	if err := n.waitForStable(ctx); err != nil {
		return err
	}

	n.mu.Lock()
	n.makingOffer = true
	n.mu.Unlock()
	defer func() {
		n.mu.Lock()
		n.makingOffer = false
		n.mu.Unlock()
	}()

	offer, err := n.pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := n.pc.SetLocalDescription(offer); err != nil {
		return err
	}

	local := n.pc.LocalDescription()
	n.logger.Debugw("sending offer", "room_id", n.roomID)
	return n.signal.SendOffer(n.roomID, domain.SessionDescription{
		Type: local.Type.String(),
		SDP:  local.SDP,
	})
}

// waitForStable polls until the signaling state settles. If it does not
// within the bound, a rollback forces it stable so the pending offer is
// built on a clean slate.
func (n *Negotiator) waitForStable(ctx context.Context) error {
	if n.pc.SignalingState() == webrtc.SignalingStateStable {
		return nil
	}
	deadline := time.NewTimer(n.opts.StableWait)
	defer deadline.Stop()
	ticker := time.NewTicker(n.opts.StablePoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n.pc.SignalingState() == webrtc.SignalingStateStable {
				return nil
			}
		case <-deadline.C:
			n.logger.Warnw("signaling state never settled, rolling back", "room_id", n.roomID)
			return n.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback})
		}
	}
}

// HandleOffer applies a remote offer, resolving glare by role: the
// impolite side ignores the colliding offer, the polite side rolls its
// own offer back and answers.
func (n *Negotiator) HandleOffer(desc domain.SessionDescription, senderID string) error {
	n.mu.Lock()
	polite := n.role.ForSender(senderID)

	ready := n.pc.SignalingState() == webrtc.SignalingStateStable || n.settingRemoteAnswer
	collision := n.makingOffer || !ready
	if collision && !polite {
		n.mu.Unlock()
		n.logger.Debugw("ignoring colliding offer", "room_id", n.roomID, "sender", senderID)
		return nil
	}
	n.state = StateNegotiating
	n.mu.Unlock()

	if collision {
		// Polite side abandons its own attempt before taking theirs.
		if err := n.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); err != nil {
			return err
		}
	}

	if err := n.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  desc.SDP,
	}); err != nil {
		return err
	}
	if err := n.drainCandidates(); err != nil {
		return err
	}

	answer, err := n.pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	if err := n.pc.SetLocalDescription(answer); err != nil {
		return err
	}

	local := n.pc.LocalDescription()
	n.logger.Debugw("sending answer", "room_id", n.roomID, "sender", senderID)
	return n.signal.SendAnswer(n.roomID, domain.SessionDescription{
		Type: local.Type.String(),
		SDP:  local.SDP,
	})
}

// HandleAnswer applies a remote answer. Answers arriving with no offer
// outstanding are stale and dropped.
func (n *Negotiator) HandleAnswer(desc domain.SessionDescription, senderID string) error {
	n.mu.Lock()
	n.role.ForSender(senderID)
	if n.pc.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
		n.mu.Unlock()
		n.logger.Debugw("dropping stale answer", "room_id", n.roomID, "sender", senderID)
		return nil
	}
	n.settingRemoteAnswer = true
	n.mu.Unlock()

	err := n.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  desc.SDP,
	})

	n.mu.Lock()
	n.settingRemoteAnswer = false
	n.mu.Unlock()

	if err != nil {
		return err
	}
	return n.drainCandidates()
}

// HandleCandidate adds a trickled candidate, buffering it when the
// remote description is not in place yet.
func (n *Negotiator) HandleCandidate(cand domain.ICECandidate) error {
	n.mu.Lock()
	if n.pc.RemoteDescription() == nil {
		n.pendingCandidates = append(n.pendingCandidates, cand)
		n.mu.Unlock()
		return nil
	}
	n.mu.Unlock()
	return n.addCandidate(cand)
}

// drainCandidates flushes the buffer in arrival order. Call only after
// the remote description is applied.
func (n *Negotiator) drainCandidates() error {
	n.mu.Lock()
	pending := n.pendingCandidates
	n.pendingCandidates = nil
	n.mu.Unlock()

	for _, cand := range pending {
		if err := n.addCandidate(cand); err != nil {
			return err
		}
	}
	return nil
}

func (n *Negotiator) addCandidate(cand domain.ICECandidate) error {
	return n.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:        cand.Candidate,
		SDPMid:           cand.SDPMid,
		SDPMLineIndex:    cand.SDPMLineIndex,
		UsernameFragment: cand.UsernameFragment,
	})
}

// HandlePeerLeft discards in-flight exchange state when the remote side
// drops: buffered candidates belong to the departed peer, and a pending
// local offer is rolled back so the next server-directed offer starts
// from a stable state. The connection itself stays up for a rejoin.
func (n *Negotiator) HandlePeerLeft() error {
	n.mu.Lock()
	if n.state == StateClosed {
		n.mu.Unlock()
		return nil
	}
	n.pendingCandidates = nil
	n.state = StateIdle
	n.mu.Unlock()

	if n.pc.SignalingState() == webrtc.SignalingStateHaveLocalOffer {
		return n.pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback})
	}
	return nil
}

// HandleConnectionStateChange mirrors transport state into the session
// state. Failed transports close the session; there is no automatic
// reconnect, the peer rejoins instead.
func (n *Negotiator) HandleConnectionStateChange(s webrtc.PeerConnectionState) {
	switch s {
	case webrtc.PeerConnectionStateConnected:
		n.SetState(StateConnected)
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		n.Close()
	}
}

// Close tears the peer connection down. Idempotent.
func (n *Negotiator) Close() error {
	n.mu.Lock()
	if n.state == StateClosed {
		n.mu.Unlock()
		return nil
	}
	n.state = StateClosed
	n.pendingCandidates = nil
	n.mu.Unlock()
	return n.pc.Close()
}
