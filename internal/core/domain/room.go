package domain

// RoomCapacity is the fixed number of participants a live interview room
// can hold: the interviewer and the candidate.
const RoomCapacity = 2

// ConnectionID identifies one signaling socket. Role assignment depends on
// ids being unique and totally ordered, nothing more.
type ConnectionID = string

// RoomSnapshot is the membership view broadcast to clients on every join
// and leave. Members are sorted ascending so both peers derive the same
// polite/impolite roles from the same list.
type RoomSnapshot struct {
	RoomID  string   `json:"roomId"`
	Members []string `json:"members"`
}
