package protocol

import "time"

// SessionStarted is published when a candidate connects.
type SessionStarted struct {
	SessionID string    `json:"session_id"`
	NodeID    string    `json:"node_id"`
	Resumed   bool      `json:"resumed"`
	TraceID   string    `json:"trace_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TurnCompleted is published after a turn has been triaged and recorded.
type TurnCompleted struct {
	SessionID  string    `json:"session_id"`
	Turn       int       `json:"turn"`
	NodeID     string    `json:"node_id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	Signal     string    `json:"signal"`
	Confidence float64   `json:"confidence"`
	NextNodeID string    `json:"next_node_id"`
	TraceID    string    `json:"trace_id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// TurnReprompt is published when an answer could not be transcribed.
type TurnReprompt struct {
	SessionID string    `json:"session_id"`
	NodeID    string    `json:"node_id"`
	Reason    string    `json:"reason"`
	TraceID   string    `json:"trace_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// AnalysisCompleted carries a deep analysis of one answer.
type AnalysisCompleted struct {
	SessionID    string    `json:"session_id"`
	NodeID       string    `json:"node_id"`
	Question     string    `json:"question"`
	Answer       string    `json:"answer"`
	AnalysisText string    `json:"analysis_text"`
	Score        int       `json:"score"`
	LatencyMS    int64     `json:"latency_ms"`
	TraceID      string    `json:"trace_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// SessionEnded is published once per connection when the interview stops.
type SessionEnded struct {
	SessionID string    `json:"session_id"`
	Reason    string    `json:"reason"`
	NodeID    string    `json:"node_id"`
	Turns     int       `json:"turns"`
	TraceID   string    `json:"trace_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notice is a small JSON message sent to the candidate in a text frame.
type Notice struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id"`
	Text      string `json:"text,omitempty"`
}

// Notice types. A prompt notice carries the question text when no audio
// could be produced because speech output is disabled. session_in_use is sent
// to a second connection for a session that is already live.
const (
	NoticePrompt          = "prompt"
	NoticeSynthesisFailed = "synthesis_failed"
	NoticeInterviewEnded  = "interview_ended"
	NoticeSessionInUse    = "session_in_use"
)

const (
	SubjectSessionStarted    = "interview.session.started"
	SubjectTurnCompleted     = "interview.turn.completed"
	SubjectTurnReprompt      = "interview.turn.reprompt"
	SubjectAnalysisCompleted = "interview.analysis.completed"
	SubjectSessionEnded      = "interview.session.ended"
)
