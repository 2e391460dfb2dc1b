package signal

import (
	"encoding/json"
	"fmt"

	"pairview/internal/core/domain"
)

// stampSender rebuilds a relayed envelope with the sender's connection id
// injected into the payload. The payload is decoded only as far as the
// closed union requires; its contents are otherwise passed through
// untouched.
func stampSender(env *domain.Envelope, senderID string) (*domain.Envelope, error) {
	switch env.Type {
	case domain.EventOffer, domain.EventAnswer:
		var p domain.DescriptionPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
		p.SenderID = senderID
		return domain.NewEnvelope(env.Type, env.RoomID, p), nil

	case domain.EventICECandidate:
		var p domain.CandidatePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode ice-candidate payload: %w", err)
		}
		p.SenderID = senderID
		return domain.NewEnvelope(env.Type, env.RoomID, p), nil

	case domain.EventCodeChange:
		var p domain.CodeChangePayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode code-change payload: %w", err)
		}
		p.SenderID = senderID
		return domain.NewEnvelope(env.Type, env.RoomID, p), nil
	}

	return nil, fmt.Errorf("%w: %q is not relayable", domain.ErrUnknownEvent, env.Type)
}
