package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateInbound(t *testing.T) {
	tests := []struct {
		name    string
		env     *Envelope
		wantErr bool
	}{
		{
			name:    "join-room",
			env:     NewEnvelope(EventJoinRoom, "room-1", nil),
			wantErr: false,
		},
		{
			name:    "leave-room",
			env:     NewEnvelope(EventLeaveRoom, "room-1", nil),
			wantErr: false,
		},
		{
			name: "offer with sdp",
			env: NewEnvelope(EventOffer, "room-1", DescriptionPayload{
				Description: SessionDescription{Type: "offer", SDP: "v=0"},
			}),
			wantErr: false,
		},
		{
			name: "offer missing sdp",
			env: NewEnvelope(EventOffer, "room-1", DescriptionPayload{
				Description: SessionDescription{Type: "offer"},
			}),
			wantErr: true,
		},
		{
			name: "ice candidate",
			env: NewEnvelope(EventICECandidate, "room-1", CandidatePayload{
				Candidate: ICECandidate{Candidate: "candidate:1 1 udp 2 127.0.0.1 9 typ host"},
			}),
			wantErr: false,
		},
		{
			name:    "ice candidate empty",
			env:     NewEnvelope(EventICECandidate, "room-1", CandidatePayload{}),
			wantErr: true,
		},
		{
			name:    "code change with empty text is fine",
			env:     NewEnvelope(EventCodeChange, "room-1", CodeChangePayload{Change: ""}),
			wantErr: false,
		},
		{
			name:    "end-interview",
			env:     NewEnvelope(EventEndInterview, "room-1", nil),
			wantErr: false,
		},
		{
			name:    "missing room id",
			env:     NewEnvelope(EventJoinRoom, "", nil),
			wantErr: true,
		},
		{
			name:    "empty type",
			env:     &Envelope{},
			wantErr: true,
		},
		{
			name:    "unknown type",
			env:     NewEnvelope("bogus", "room-1", nil),
			wantErr: true,
		},
		{
			name:    "server-only type rejected from clients",
			env:     NewEnvelope(EventInitiateOffer, "room-1", nil),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.ValidateInbound()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnvelope_WireFormat(t *testing.T) {
	env := NewEnvelope(EventOffer, "room-1", DescriptionPayload{
		Description: SessionDescription{Type: "offer", SDP: "v=0"},
		SenderID:    "conn-a",
	})

	raw, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded Envelope
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, EventOffer, decoded.Type)
	assert.Equal(t, "room-1", decoded.RoomID)

	var payload DescriptionPayload
	require.NoError(t, json.Unmarshal(decoded.Payload, &payload))
	assert.Equal(t, "conn-a", payload.SenderID)
	assert.Equal(t, "v=0", payload.Description.SDP)
}
