package session

import "encoding/json"

type Session struct {
	ProjectId string `redis:"project_id"`
	HostId    string `redis:"host_id"`
	CreatedAt int64  `redis:"created_at"`
}

type Member struct {
	DisplayName      string  `redis:"display_name"`
	Role             string  `redis:"role"`
	IsConnected      bool    `redis:"is_connected"`
	IsListening      bool    `redis:"is_listening"`
	ReportedPosition float64 `redis:"reported_position"`
	ReportedAt       int64   `redis:"reported_at"`
	JoinedAt         int64   `redis:"joined_at"`
}

// Clock is the authoritative playback state of a session. Position is in
// seconds, UpdatedAt in unix milliseconds.
type Clock struct {
	Position  float64 `redis:"position"`
	IsPlaying bool    `redis:"is_playing"`
	UpdatedAt int64   `redis:"updated_at"`
}

type Comment struct {
	AuthorId  string  `redis:"author_id"`
	Content   string  `redis:"content"`
	Anchor    int     `redis:"anchor"`
	Timecode  float64 `redis:"timecode"`
	Resolved  bool    `redis:"resolved"`
	CreatedAt int64   `redis:"created_at"`
}

type Edit struct {
	Id          string  `json:"id"`
	AuthorId    string  `json:"author_id"`
	Section     string  `json:"section"`
	Description string  `json:"description"`
	Timecode    float64 `json:"timecode"`
	AppliedAt   int64   `json:"applied_at"`
}

// EventRecord is one entry of a session's append-only event log. Data is
// the serialized event as it was published; Sequence is the log score it
// was appended under.
type EventRecord struct {
	Sequence int64
	Data     json.RawMessage
}

type CreateSession struct {
	ProjectId   string `redis:"project_id"`
	MemberId    string `redis:"member_id"`
	DisplayName string `redis:"display_name"`
}

type JoinSession struct {
	SessionId   string `redis:"session_id"`
	MemberId    string `redis:"member_id"`
	DisplayName string `redis:"display_name"`
	GrantedRole string `redis:"granted_role"`
}
