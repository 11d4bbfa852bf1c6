package domain

import "time"

// Credential holds everything needed to rebuild a userbot connection for
// one operator: the Telegram application pair plus the exported session.
type Credential struct {
	OperatorID   int64
	APIID        int
	APIHash      string
	SessionToken string
}

// ChatRecord is a chat known to the dispatcher, optionally bound to a
// dependency chat that must receive a paced message first.
type ChatRecord struct {
	ChatID           int64
	Title            string
	DependencyChatID *int64
}

// ChatInfo is a dialog discovered during a chat scan.
type ChatInfo struct {
	ID    int64
	Title string
}

// UserInfo describes the account behind an authorized connection.
type UserInfo struct {
	ID        int64
	Username  string
	FirstName string
}

// Outcome is the structured result of a dispatch operation. Transport
// errors never cross the dispatcher boundary as raw errors; callers get
// an Outcome they can relay to the operator as-is.
type Outcome struct {
	OK     bool
	Detail string

	// DependencyChatID is the warm-up chat a dependency-aware send
	// actually delivered to first, nil when the target has no link.
	DependencyChatID *int64
}

// AuditEvent mirrors the operational event log: every auth completion
// and delivery attempt produces one.
type AuditEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Audit event types.
const (
	EventAuthSuccess    = "AUTH_SUCCESS"
	EventAuthSuccess2FA = "AUTH_SUCCESS_2FA"
	EventLogout         = "LOGOUT"
	EventSendSuccess    = "SEND_SUCCESS"
	EventSendFail       = "SEND_FAIL"
	EventJoinSuccess    = "JOIN_SUCCESS"
	EventJoinFail       = "JOIN_FAIL"
	EventDepSend        = "SENDDEP_DEP"
	EventMainSend       = "SENDDEP_MAIN"
)

// LoginStage identifies the current step of the credential-collection flow.
type LoginStage int

const (
	StageAPIID LoginStage = iota
	StageAPIHash
	StagePhone
	StageCode
	StagePassword
	StageDone
)

// String returns a human-readable stage name.
func (s LoginStage) String() string {
	switch s {
	case StageAPIID:
		return "api_id"
	case StageAPIHash:
		return "api_hash"
	case StagePhone:
		return "phone"
	case StageCode:
		return "code"
	case StagePassword:
		return "password"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// LoginReply is returned after every login flow turn: the stage the flow
// is now in and the prompt to relay to the operator.
type LoginReply struct {
	Stage   LoginStage `json:"stage"`
	Message string     `json:"message"`
	Done    bool       `json:"done"`
}
