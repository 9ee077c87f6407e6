package session

type SetSessionParams struct {
	SessionId string
	ProjectId string
	HostId    string
	CreatedAt int64
}

type SetMemberParams struct {
	SessionId        string
	MemberId         string
	DisplayName      string
	Role             string
	IsConnected      bool
	IsListening      bool
	ReportedPosition float64
	ReportedAt       int64
	JoinedAt         int64
}

type GetMemberParams struct {
	SessionId string
	MemberId  string
}

type UpdateMemberReportParams struct {
	SessionId        string
	MemberId         string
	ReportedPosition float64
	ReportedAt       int64
}

type SetClockParams struct {
	SessionId string
	Position  float64
	IsPlaying bool
	UpdatedAt int64
}

type UpdateClockParams struct {
	SessionId string
	Position  float64
	IsPlaying bool
	UpdatedAt int64
}

type SetCommentParams struct {
	SessionId string
	CommentId string
	AuthorId  string
	Content   string
	Anchor    int
	Timecode  float64
	CreatedAt int64
}

type GetCommentParams struct {
	SessionId string
	CommentId string
}

type SetCreateSessionParams struct {
	Token       string
	ProjectId   string
	MemberId    string
	DisplayName string
}

type SetJoinSessionParams struct {
	Token       string
	SessionId   string
	MemberId    string
	DisplayName string
	GrantedRole string
}
