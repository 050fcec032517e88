package models

// Request is one text-processing request. It is consumed by exactly one worker.
type Request struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

// HasCorrelation reports whether the request carries session or user ids.
func (r Request) HasCorrelation() bool {
	return r.SessionID != "" || r.UserID != ""
}

// Preview returns the first n characters of the text for log lines.
func (r Request) Preview(n int) string {
	runes := []rune(r.Text)
	if len(runes) <= n {
		return r.Text
	}
	return string(runes[:n])
}

// SubmitRequest represents the request body for submitting a request over HTTP
type SubmitRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Wait      bool   `json:"wait"`
	// Queue hands the request to the Redis request queue instead of the
	// local dispatcher.
	Queue bool `json:"queue"`
}

// SubmitResponse is returned after a request has been handed to the dispatcher
type SubmitResponse struct {
	Sequence uint64        `json:"sequence"`
	Status   string        `json:"status"`
	Report   *WorkerReport `json:"report,omitempty"`
}
