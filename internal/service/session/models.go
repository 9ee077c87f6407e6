package session

const (
	RoleOwner  = "owner"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// roleRank orders roles for permission checks. Unknown roles rank below
// viewer and therefore never pass any check.
func roleRank(role string) int {
	switch role {
	case RoleOwner:
		return 3
	case RoleEditor:
		return 2
	case RoleViewer:
		return 1
	default:
		return 0
	}
}

type Member struct {
	Id          string `json:"id"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	IsConnected bool   `json:"is_connected"`
	IsListening bool   `json:"is_listening"`
}

type ClockState struct {
	Position  float64 `json:"position"`
	IsPlaying bool    `json:"is_playing"`
	UpdatedAt int64   `json:"updated_at"`
}

type Comment struct {
	Id        string  `json:"id"`
	AuthorId  string  `json:"author_id"`
	Content   string  `json:"content"`
	Anchor    int     `json:"anchor"`
	Timecode  float64 `json:"timecode"`
	Resolved  bool    `json:"resolved"`
	CreatedAt int64   `json:"created_at"`
}

type Edit struct {
	Id          string  `json:"id"`
	AuthorId    string  `json:"author_id"`
	Section     string  `json:"section"`
	Description string  `json:"description"`
	Timecode    float64 `json:"timecode"`
	AppliedAt   int64   `json:"applied_at"`
}

// SessionState is the snapshot sent to a member right after joining.
// LastSequence is the event-log cursor to subscribe from: events with a
// higher sequence are not reflected in the snapshot yet.
type SessionState struct {
	SessionId    string     `json:"session_id"`
	ProjectId    string     `json:"project_id"`
	HostId       string     `json:"host_id"`
	Clock        ClockState `json:"clock"`
	Members      []Member   `json:"members"`
	Comments     []Comment  `json:"comments"`
	Edits        []Edit     `json:"edits"`
	LastSequence int64      `json:"last_sequence"`
}

type DriftStatus string

const (
	DriftInSync DriftStatus = "in_sync"
	DriftSoft   DriftStatus = "soft"
	DriftHard   DriftStatus = "hard"
	// DriftStale marks a report older than the last accepted one. It is
	// dropped without any correction.
	DriftStale DriftStatus = "stale"
)

type Quality string

const (
	QualityExcellent Quality = "excellent"
	QualityGood      Quality = "good"
	QualityFair      Quality = "fair"
	QualityPoor      Quality = "poor"
)

// DriftReport is the engine's answer to one position report. On
// DriftHard the member must snap its local position to Expected; on
// DriftSoft the expected position is advisory.
type DriftReport struct {
	Status   DriftStatus `json:"status"`
	Expected float64     `json:"expected"`
	Drift    float64     `json:"drift"`
	Quality  Quality     `json:"quality"`
}

type MemberDiagnostics struct {
	MemberId      string  `json:"member_id"`
	Quality       Quality `json:"quality"`
	AvgDrift      float64 `json:"avg_drift"`
	LatencyMs     float64 `json:"latency_ms"`
	JitterMs      float64 `json:"jitter_ms"`
	PacketLossPct float64 `json:"packet_loss_pct"`
	IsListening   bool    `json:"is_listening"`
	LastReportAt  int64   `json:"last_report_at"`
}

// event payloads

type PlaybackPayload struct {
	Position float64 `json:"position"`
}

type HostTransferPayload struct {
	NewHostId string `json:"new_host_id"`
	Reason    string `json:"reason"`
}

type JoinPayload struct {
	Member Member `json:"member"`
}

type LeavePayload struct {
	MemberId string `json:"member_id"`
}

type RoleChangedPayload struct {
	MemberId string `json:"member_id"`
	Role     string `json:"role"`
}

type CommentResolvedPayload struct {
	CommentId string `json:"comment_id"`
}
