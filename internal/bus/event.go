package bus

import "encoding/json"

const (
	EventPlay            = "PLAY"
	EventPause           = "PAUSE"
	EventSeek            = "SEEK"
	EventHostTransfer    = "HOST_TRANSFER"
	EventJoin            = "JOIN"
	EventLeave           = "LEAVE"
	EventRoleChanged     = "ROLE_CHANGED"
	EventCommentAdded    = "COMMENT_ADDED"
	EventCommentResolved = "COMMENT_RESOLVED"
	EventEditApplied     = "EDIT_APPLIED"
)

// Event is one entry of a session's totally ordered log. Sequence is
// assigned at publish time, strictly increasing per session with no gaps.
// Receivers must apply events idempotently keyed by sequence.
type Event struct {
	Id        string          `json:"id"`
	SessionId string          `json:"session_id"`
	Sequence  int64           `json:"sequence"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	AuthorId  string          `json:"author_id"`
	IssuedAt  int64           `json:"issued_at"`
}
